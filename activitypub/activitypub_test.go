package activitypub

import (
	"context"
	"fmt"
	"testing"

	"github.com/sorrelsocial/sorrel/internal/cache"
	"github.com/sorrelsocial/sorrel/internal/crypto"
	"github.com/sorrelsocial/sorrel/internal/policy"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testDomain = "sorrel.example"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)
	require.NoError(db.AutoMigrate(models.AllTables()...))
	return db
}

// testEnv builds an Env whose actor cache is fed from the fixtures map
// instead of the network.
func testEnv(t *testing.T, db *gorm.DB, fixtures map[string]map[string]any) *Env {
	t.Helper()
	fetch := func(ctx context.Context, uri string) (map[string]any, error) {
		if obj, ok := fixtures[uri]; ok {
			return obj, nil
		}
		return nil, fmt.Errorf("no fixture for %s", uri)
	}
	probe := func(ctx context.Context, uri string) bool { return true }
	dispatcher := NewDispatcher(db, 1, 0)
	dispatcher.post = func(context.Context, *models.Account, string, map[string]any) error {
		return nil
	}
	return &Env{
		DB:         db,
		Domain:     testDomain,
		Actors:     cache.NewActors(testDomain, models.NewActorStore(db), fetch, probe),
		Policy:     policy.New(db, 0, 0),
		Dispatcher: dispatcher,
	}
}

// mockAccount creates a local actor with an account behind it.
func mockAccount(t *testing.T, db *gorm.DB, name string, opts ...func(*models.Actor)) *models.Account {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)

	actor := &models.Actor{
		ID:        snowflake.Now(),
		Type:      "LocalPerson",
		Name:      name,
		Domain:    testDomain,
		URI:       fmt.Sprintf("https://%s/users/%s", testDomain, name),
		PublicKey: kp.PublicKey,
	}
	for _, opt := range opts {
		opt(actor)
	}
	require.NoError(db.Create(actor).Error)

	account := &models.Account{
		ID:         snowflake.Now(),
		ActorID:    actor.ID,
		Email:      name + "@" + testDomain,
		PrivateKey: kp.PrivateKey,
	}
	require.NoError(db.Create(account).Error)
	account.Actor = actor
	return account
}

func withLocked(locked bool) func(*models.Actor) {
	return func(a *models.Actor) {
		a.Locked = locked
	}
}

// remoteActorDoc returns an actor document fixture and its URI.
func remoteActorDoc(t *testing.T, name, domain string) (string, map[string]any) {
	t.Helper()
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(t, err)
	uri := fmt.Sprintf("https://%s/users/%s", domain, name)
	return uri, map[string]any{
		"id":                uri,
		"type":              "Person",
		"preferredUsername": name,
		"inbox":             uri + "/inbox",
		"outbox":            uri + "/outbox",
		"endpoints": map[string]any{
			"sharedInbox": fmt.Sprintf("https://%s/inbox", domain),
		},
		"publicKey": map[string]any{
			"id":           uri + "#main-key",
			"owner":        uri,
			"publicKeyPem": string(kp.PublicKey),
		},
	}
}

func storedActivity(t *testing.T, db *gorm.DB, obj map[string]any) *models.Activity {
	t.Helper()
	activity := &models.Activity{
		URI:          obj["id"].(string),
		ActivityType: obj["type"].(string),
		ActorURI:     obj["actor"].(string),
		Object:       obj,
	}
	_, err := models.NewActivities(db).Insert(activity)
	require.NoError(t, err)
	return activity
}
