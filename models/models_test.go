package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sorrelsocial/sorrel/internal/cache"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllTables()...))
	return db
}

func mkActor(t *testing.T, db *gorm.DB, name, domain, typ string) *models.Actor {
	t.Helper()
	actor := &models.Actor{
		ID:     snowflake.Now(),
		Type:   typ,
		Name:   name,
		Domain: domain,
		URI:    "https://" + domain + "/users/" + name,
	}
	require.NoError(t, db.Create(actor).Error)
	return actor
}

func mkPost(t *testing.T, db *gorm.DB, actor *models.Actor, uri string) *models.Post {
	t.Helper()
	post := &models.Post{
		ID:      snowflake.Now(),
		URI:     uri,
		ActorID: actor.ID,
		Content: "hello",
	}
	inserted, err := models.NewPosts(db).Insert(post)
	require.NoError(t, err)
	require.True(t, inserted)
	return post
}

func TestActivityInsert(t *testing.T) {
	db := setupTestDB(t)
	activities := models.NewActivities(db)

	t.Run("first delivery wins", func(t *testing.T) {
		require := require.New(t)
		activity := &models.Activity{
			URI:          "https://remote.example/activities/1",
			ActivityType: "Create",
			ActorURI:     "https://remote.example/users/alice",
			State:        models.ActivityReceived,
		}
		inserted, err := activities.Insert(activity)
		require.NoError(err)
		require.True(inserted)

		dup := &models.Activity{
			URI:          "https://remote.example/activities/1",
			ActivityType: "Create",
			ActorURI:     "https://remote.example/users/alice",
			State:        models.ActivityReceived,
		}
		inserted, err = activities.Insert(dup)
		require.NoError(err)
		require.False(inserted)

		var count int64
		require.NoError(db.Model(&models.Activity{}).Count(&count).Error)
		require.EqualValues(1, count)
	})

	t.Run("state transitions are persisted", func(t *testing.T) {
		require := require.New(t)
		activity := &models.Activity{
			URI:          "https://remote.example/activities/2",
			ActivityType: "Like",
			ActorURI:     "https://remote.example/users/alice",
			State:        models.ActivityReceived,
		}
		_, err := activities.Insert(activity)
		require.NoError(err)
		require.NoError(activities.SetState(activity, models.ActivityApplied))

		got, err := activities.FindByURI(activity.URI)
		require.NoError(err)
		require.Equal(models.ActivityApplied, got.State)
	})
}

func TestPostTombstone(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	posts := models.NewPosts(db)
	author := mkActor(t, db, "alice", "remote.example", "Person")
	post := mkPost(t, db, author, "https://remote.example/notes/1")

	require.NoError(posts.Tombstone(post.URI))

	// a late duplicate Create must not resurrect the post
	inserted, err := posts.Insert(&models.Post{
		URI:     post.URI,
		ActorID: author.ID,
		Content: "resurrected",
	})
	require.NoError(err)
	require.False(inserted)

	got, err := posts.FindByURI(post.URI)
	require.NoError(err)
	require.True(got.Deleted)
	require.Empty(got.Content)
}

func TestReactionCounters(t *testing.T) {
	db := setupTestDB(t)
	reactions := models.NewReactions(db)
	author := mkActor(t, db, "alice", "remote.example", "Person")
	post := mkPost(t, db, author, "https://remote.example/notes/1")

	t.Run("distinct actors count once each", func(t *testing.T) {
		require := require.New(t)
		bob := mkActor(t, db, "bob", "other.example", "Person")
		carol := mkActor(t, db, "carol", "other.example", "Person")
		for i, actor := range []*models.Actor{bob, carol, bob} {
			added, err := reactions.Add(&models.Reaction{
				PostID:  post.ID,
				ActorID: actor.ID,
				Name:    "like",
				URI:     "https://other.example/likes/" + actor.Name,
			})
			require.NoError(err)
			require.Equal(i < 2, added)
		}
		got, err := models.NewPosts(db).FindByURI(post.URI)
		require.NoError(err)
		require.EqualValues(2, got.LikesCount)
	})

	t.Run("remove decrements once", func(t *testing.T) {
		require := require.New(t)
		bob, err := models.NewActors(db).Find("bob", "other.example")
		require.NoError(err)
		for i := 0; i < 2; i++ {
			removed, err := reactions.Remove(&models.Reaction{
				PostID:  post.ID,
				ActorID: bob.ID,
				Name:    "like",
			})
			require.NoError(err)
			require.Equal(i == 0, removed)
		}
		got, err := models.NewPosts(db).FindByURI(post.URI)
		require.NoError(err)
		require.EqualValues(1, got.LikesCount)
	})

	t.Run("unknown reaction kinds are rejected", func(t *testing.T) {
		require := require.New(t)
		carol, err := models.NewActors(db).Find("carol", "other.example")
		require.NoError(err)
		_, err = reactions.Add(&models.Reaction{
			PostID:  post.ID,
			ActorID: carol.ID,
			Name:    "bookmark",
		})
		require.ErrorIs(err, models.ErrUnknownReaction)
	})
}

func TestRelationships(t *testing.T) {
	db := setupTestDB(t)
	rels := models.NewRelationships(db)
	target := mkActor(t, db, "alice", "local.example", "LocalPerson")

	t.Run("accept promotes a pending follow", func(t *testing.T) {
		require := require.New(t)
		follower := mkActor(t, db, "bob", "remote.example", "Person")
		require.NoError(rels.Request(follower, target, "https://remote.example/follows/1", true))

		pending, err := rels.Pending(target)
		require.NoError(err)
		require.Len(pending, 1)

		require.NoError(rels.Accept(follower.ID, target.ID))
		rel, err := rels.Find(follower.ID, target.ID)
		require.NoError(err)
		require.True(rel.Following)
		require.False(rel.Pending)

		followers, err := rels.Followers(target)
		require.NoError(err)
		require.Len(followers, 1)
		require.Equal(follower.URI, followers[0].URI)
	})

	t.Run("repeated follow cannot demote an accepted edge", func(t *testing.T) {
		require := require.New(t)
		follower, err := models.NewActors(db).Find("bob", "remote.example")
		require.NoError(err)
		require.NoError(rels.Request(follower, target, "https://remote.example/follows/2", true))

		rel, err := rels.Find(follower.ID, target.ID)
		require.NoError(err)
		require.True(rel.Following)
		require.False(rel.Pending)
	})

	t.Run("remove drops the edge", func(t *testing.T) {
		require := require.New(t)
		follower, err := models.NewActors(db).Find("bob", "remote.example")
		require.NoError(err)
		require.NoError(rels.Remove(follower.ID, target.ID))
		_, err = rels.Find(follower.ID, target.ID)
		require.ErrorIs(err, gorm.ErrRecordNotFound)
	})
}

func TestActorStore(t *testing.T) {
	db := setupTestDB(t)
	store := models.NewActorStore(db)
	ctx := context.Background()

	uri := "https://remote.example/users/alice"
	doc := map[string]any{
		"id":                uri,
		"type":              "Person",
		"preferredUsername": "alice",
		"inbox":             uri + "/inbox",
		"endpoints":         map[string]any{"sharedInbox": "https://remote.example/inbox"},
	}

	t.Run("save then load round trips", func(t *testing.T) {
		require := require.New(t)
		fetched := time.Now().Truncate(time.Second)
		require.NoError(store.Save(ctx, uri, doc, fetched))

		got, when, err := store.Load(ctx, uri)
		require.NoError(err)
		require.Equal(uri, got["id"])
		require.WithinDuration(fetched, when, time.Second)
	})

	t.Run("save again keeps the identity row", func(t *testing.T) {
		require := require.New(t)
		before, err := models.NewActors(db).FindByURI(uri)
		require.NoError(err)
		require.NoError(store.Save(ctx, uri, doc, time.Now()))
		after, err := models.NewActors(db).FindByURI(uri)
		require.NoError(err)
		require.Equal(before.ID, after.ID)
	})

	t.Run("delete clears the document but not the actor", func(t *testing.T) {
		require := require.New(t)
		require.NoError(store.Delete(ctx, uri))
		_, _, err := store.Load(ctx, uri)
		require.ErrorIs(err, cache.ErrNotCached)

		actor, err := models.NewActors(db).FindByURI(uri)
		require.NoError(err)
		require.Equal("alice", actor.Name)
	})
}

func TestActorFromObject(t *testing.T) {
	t.Run("a full document maps every field", func(t *testing.T) {
		require := require.New(t)
		actor, err := models.ActorFromObject(map[string]any{
			"id":                        "https://remote.example/users/alice",
			"type":                      "Service",
			"preferredUsername":         "alice",
			"name":                      "Alice",
			"summary":                   "hi",
			"manuallyApprovesFollowers": true,
			"inbox":                     "https://remote.example/users/alice/inbox",
			"endpoints":                 map[string]any{"sharedInbox": "https://remote.example/inbox"},
			"publicKey":                 map[string]any{"publicKeyPem": "PEM"},
		})
		require.NoError(err)
		require.Equal("alice", actor.Name)
		require.Equal("remote.example", actor.Domain)
		require.Equal("Service", actor.Type)
		require.Equal("Alice", actor.DisplayName)
		require.True(actor.Locked)
		require.Equal("https://remote.example/inbox", actor.Inbox())
		require.Equal([]byte("PEM"), actor.PublicKey)
	})

	t.Run("a document without an id is rejected", func(t *testing.T) {
		_, err := models.ActorFromObject(map[string]any{"type": "Person"})
		require.Error(t, err)
	})
}

func TestFederationLists(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	federation := models.NewFederation(db)

	require.NoError(federation.AllowDomain("friendly.example"))
	require.NoError(federation.AllowDomain("friendly.example"))
	var count int64
	require.NoError(db.Model(&models.DomainAllow{}).Count(&count).Error)
	require.EqualValues(1, count)

	require.NoError(federation.BlockDomain("spam.example"))
	require.NoError(federation.UnblockDomain("spam.example"))
	require.NoError(db.Model(&models.DomainBlock{}).Count(&count).Error)
	require.EqualValues(0, count)

	require.NoError(federation.BlockActor("https://spam.example/users/eve"))
	require.NoError(db.Model(&models.ActorBlock{}).Count(&count).Error)
	require.EqualValues(1, count)
}
