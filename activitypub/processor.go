package activitypub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sorrelsocial/sorrel/activitypub/activities"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// reactionLocks serialises counter updates per object URI across the
// process.
var reactionLocks keyLocks

// ProcessActivity applies a stored activity to the local state. Activities
// that refer to objects we do not hold are no-ops, not errors; only
// storage failures propagate.
func (e *Env) ProcessActivity(ctx context.Context, activity *models.Activity) error {
	switch activity.ActivityType {
	case "Create":
		return e.processCreate(ctx, activity)
	case "Follow":
		return e.processFollow(ctx, activity)
	case "Accept":
		return e.processAccept(ctx, activity)
	case "Reject":
		return e.processReject(ctx, activity)
	case "Like":
		return e.processReaction(ctx, activity, "like")
	case "Announce":
		return e.processReaction(ctx, activity, "announce")
	case "Undo":
		return e.processUndo(ctx, activity)
	case "Delete":
		return e.processDelete(ctx, activity)
	case "Update":
		return e.processUpdate(ctx, activity)
	default:
		// unknown activity types are accepted and ignored
		fmt.Println("ProcessActivity: ignoring", activity.ActivityType, activity.URI)
		return nil
	}
}

func (e *Env) processCreate(ctx context.Context, activity *models.Activity) error {
	obj := mapFromAny(activity.Object["object"])
	uri := stringFromAny(obj["id"])
	if uri == "" {
		return fmt.Errorf("create %s: object has no id", activity.URI)
	}
	actor, err := e.actorForURI(ctx, activity.ActorURI)
	if err != nil {
		return err
	}

	id := snowflake.Now()
	if published := timeFromAnyOrZero(obj["published"]); !published.IsZero() {
		id = snowflake.TimeToID(published)
	}
	post := &models.Post{
		ID:           id,
		URI:          uri,
		ActorID:      actor.ID,
		InReplyToURI: stringFromAny(obj["inReplyTo"]),
		Content:      stringFromAny(obj["content"]),
		SpoilerText:  stringFromAny(obj["summary"]),
		Sensitive:    boolFromAny(obj["sensitive"]),
		Visibility:   visibilityOf(obj),
		Object:       obj,
	}
	for _, tag := range anyToSlice(obj["tag"]) {
		t := mapFromAny(tag)
		if stringFromAny(t["type"]) == "Hashtag" {
			post.Tags = append(post.Tags, models.PostTag{
				PostID: post.ID,
				Name:   strings.ToLower(strings.TrimLeft(stringFromAny(t["name"]), "#")),
			})
		}
	}

	inserted, err := models.NewPosts(e.DB).Insert(post)
	if err != nil {
		return err
	}
	if !inserted {
		// a duplicate, or a tombstoned URI; either way the first write won
		return nil
	}
	e.maybeRefreshAuthor(ctx, actor)
	return e.notifyMentions(ctx, actor, obj)
}

// maybeRefreshAuthor schedules a background refresh of a remote author
// whose cached document has gone stale, and drops the cache entry outright
// if their avatar no longer resolves. Failures here never block acceptance.
func (e *Env) maybeRefreshAuthor(ctx context.Context, actor *models.Actor) {
	if actor.IsLocal() {
		return
	}
	if err := e.Actors.CheckForChangedActor(ctx, actor.URI, actor.Avatar); err != nil {
		fmt.Println("maybeRefreshAuthor: checking", actor.URI, "failed:", err)
	}
	if time.Since(actor.RefreshedAt) < 24*time.Hour {
		return
	}
	err := e.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ActorRefreshRequest{ActorID: actor.ID}).Error
	if err != nil {
		fmt.Println("maybeRefreshAuthor: scheduling", actor.URI, "failed:", err)
	}
}

// notifyMentions records a mention notification for each local account
// tagged in the object.
func (e *Env) notifyMentions(ctx context.Context, from *models.Actor, obj map[string]any) error {
	accounts := models.NewAccounts(e.DB)
	for _, tag := range anyToSlice(obj["tag"]) {
		t := mapFromAny(tag)
		if stringFromAny(t["type"]) != "Mention" {
			continue
		}
		local, err := models.NewActors(e.DB).FindByURI(stringFromAny(t["href"]))
		if err != nil || local.IsRemote() {
			continue
		}
		account, err := accounts.AccountForActor(local)
		if err != nil {
			continue
		}
		notification := &models.Notification{
			ID:        snowflake.Now(),
			AccountID: account.ID,
			Kind:      "mention",
			ObjectURI: stringFromAny(obj["id"]),
		}
		if err := e.DB.Create(notification).Error; err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) processFollow(ctx context.Context, activity *models.Activity) error {
	targetURI := objectURI(activity.Object["object"])
	target, err := models.NewActors(e.DB).FindByURI(targetURI)
	if err != nil || target.IsRemote() {
		// follows of actors we do not host are ignored
		fmt.Println("processFollow: not a local actor:", targetURI)
		return nil
	}
	follower, err := e.actorForURI(ctx, activity.ActorURI)
	if err != nil {
		return err
	}

	pending := target.Locked
	if err := models.NewRelationships(e.DB).Request(follower, target, activity.URI, pending); err != nil {
		return err
	}

	account, err := models.NewAccounts(e.DB).AccountForActor(target)
	if err != nil {
		return err
	}
	notification := &models.Notification{
		ID:        snowflake.Now(),
		AccountID: account.ID,
		Kind:      "follow",
		ObjectURI: activity.URI,
	}
	if err := e.DB.Create(notification).Error; err != nil {
		return err
	}

	if pending {
		return nil
	}
	return e.SendAccept(ctx, account, follower, activity.Object)
}

// SendAccept delivers an Accept of the given Follow activity to the
// follower's inbox.
func (e *Env) SendAccept(ctx context.Context, account *models.Account, follower *models.Actor, follow map[string]any) error {
	accept := activities.Accept(account.Actor, follow)
	return e.Dispatcher.Deliver(account, accept, []string{follower.Inbox()})
}

func (e *Env) processAccept(ctx context.Context, activity *models.Activity) error {
	return e.resolveFollowResponse(ctx, activity, true)
}

func (e *Env) processReject(ctx context.Context, activity *models.Activity) error {
	return e.resolveFollowResponse(ctx, activity, false)
}

// resolveFollowResponse applies a remote Accept or Reject of one of our
// Follow activities, located by the follow's id.
func (e *Env) resolveFollowResponse(ctx context.Context, activity *models.Activity, accepted bool) error {
	followURI := objectURI(activity.Object["object"])
	if followURI == "" {
		return nil
	}
	var rel models.Relationship
	if err := e.DB.Where("uri = ?", followURI).Take(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// response to a follow we never sent
			return nil
		}
		return err
	}
	rels := models.NewRelationships(e.DB)
	if accepted {
		return rels.Accept(rel.ActorID, rel.TargetID)
	}
	return rels.Remove(rel.ActorID, rel.TargetID)
}

func (e *Env) processReaction(ctx context.Context, activity *models.Activity, name string) error {
	targetURI := objectURI(activity.Object["object"])
	post, err := models.NewPosts(e.DB).FindByURI(targetURI)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// a reaction to a post we do not hold
			return nil
		}
		return err
	}
	actor, err := e.actorForURI(ctx, activity.ActorURI)
	if err != nil {
		return err
	}

	unlock := reactionLocks.Lock(targetURI)
	defer unlock()
	added, err := models.NewReactions(e.DB).Add(&models.Reaction{
		PostID:  post.ID,
		ActorID: actor.ID,
		Name:    name,
		URI:     activity.URI,
	})
	if err != nil || !added {
		return err
	}
	return e.notifyReaction(post, activity.URI, name)
}

func (e *Env) notifyReaction(post *models.Post, activityURI, kind string) error {
	author, err := models.NewActors(e.DB).FindByID(post.ActorID)
	if err != nil || author.IsRemote() {
		return nil
	}
	account, err := models.NewAccounts(e.DB).AccountForActor(author)
	if err != nil {
		return nil
	}
	return e.DB.Create(&models.Notification{
		ID:        snowflake.Now(),
		AccountID: account.ID,
		Kind:      kind,
		ObjectURI: activityURI,
	}).Error
}

func (e *Env) processUndo(ctx context.Context, activity *models.Activity) error {
	inner := activity.Object["object"]
	switch stringFromAny(mapFromAny(inner)["type"]) {
	case "Like":
		return e.undoReaction(ctx, activity, mapFromAny(inner), "like")
	case "Announce":
		return e.undoReaction(ctx, activity, mapFromAny(inner), "announce")
	case "Follow":
		return e.undoFollow(ctx, activity, mapFromAny(inner))
	case "":
		// the object is a bare id; find what it created
		return e.undoByURI(ctx, activity, objectURI(inner))
	default:
		return nil
	}
}

func (e *Env) undoReaction(ctx context.Context, activity *models.Activity, inner map[string]any, name string) error {
	targetURI := objectURI(inner["object"])
	post, err := models.NewPosts(e.DB).FindByURI(targetURI)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	actor, err := models.NewActors(e.DB).FindByURI(activity.ActorURI)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// never saw this actor, so nothing to undo
			return nil
		}
		return err
	}
	unlock := reactionLocks.Lock(targetURI)
	defer unlock()
	_, err = models.NewReactions(e.DB).Remove(&models.Reaction{
		PostID:  post.ID,
		ActorID: actor.ID,
		Name:    name,
	})
	return err
}

func (e *Env) undoFollow(ctx context.Context, activity *models.Activity, inner map[string]any) error {
	target, err := models.NewActors(e.DB).FindByURI(objectURI(inner["object"]))
	if err != nil {
		return nil
	}
	follower, err := models.NewActors(e.DB).FindByURI(activity.ActorURI)
	if err != nil {
		return nil
	}
	return models.NewRelationships(e.DB).Remove(follower.ID, target.ID)
}

// undoByURI undoes whatever the activity with the given id did: a
// reaction, or a follow edge. An id we never recorded is a no-op.
func (e *Env) undoByURI(ctx context.Context, activity *models.Activity, uri string) error {
	if uri == "" {
		return nil
	}
	if reaction, err := models.NewReactions(e.DB).FindByURI(uri); err == nil {
		unlock := reactionLocks.Lock(uri)
		defer unlock()
		_, err = models.NewReactions(e.DB).Remove(reaction)
		return err
	}
	var rel models.Relationship
	if err := e.DB.Where("uri = ?", uri).Take(&rel).Error; err == nil {
		return models.NewRelationships(e.DB).Remove(rel.ActorID, rel.TargetID)
	}
	return nil
}

func (e *Env) processDelete(ctx context.Context, activity *models.Activity) error {
	uri := objectURI(activity.Object["object"])
	if uri == "" {
		return nil
	}
	if uri == activity.ActorURI {
		// an actor deleting itself; drop the cached document
		return e.Actors.Invalidate(ctx, uri)
	}
	post, err := e.authoredPost(activity, uri)
	if err != nil || post == nil {
		return err
	}
	return models.NewPosts(e.DB).Tombstone(uri)
}

func (e *Env) processUpdate(ctx context.Context, activity *models.Activity) error {
	obj := mapFromAny(activity.Object["object"])
	uri := stringFromAny(obj["id"])
	if uri == "" {
		return nil
	}
	switch stringFromAny(obj["type"]) {
	case "Person", "Application", "Service", "Group", "Organization":
		if uri != activity.ActorURI {
			// actors may only update their own document
			fmt.Println("processUpdate:", activity.ActorURI, "sent a profile for", uri)
			return nil
		}
		e.Actors.Put(ctx, uri, obj)
		return nil
	default:
		post, err := e.authoredPost(activity, uri)
		if err != nil || post == nil {
			return err
		}
		return e.DB.Model(&models.Post{}).
			Where("id = ? AND deleted = ?", post.ID, false).
			UpdateColumns(map[string]interface{}{
				"content":      stringFromAny(obj["content"]),
				"spoiler_text": stringFromAny(obj["summary"]),
				"sensitive":    boolFromAny(obj["sensitive"]),
				"object":       obj,
			}).Error
	}
}

// authoredPost returns the stored post at uri if the activity's actor is
// its author. Posts we do not hold, and posts held by anyone else, return
// nil: an actor naming someone else's object cannot touch it.
func (e *Env) authoredPost(activity *models.Activity, uri string) (*models.Post, error) {
	post, err := models.NewPosts(e.DB).FindByURI(uri)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	author, err := models.NewActors(e.DB).FindByID(post.ActorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if author.URI != activity.ActorURI {
		fmt.Println("processor:", activity.ActorURI, "named an object owned by", author.URI)
		return nil, nil
	}
	return post, nil
}

// visibilityOf derives the visibility of an object from its addressing.
func visibilityOf(obj map[string]any) string {
	for _, recipient := range anyToSlice(obj["to"]) {
		if recipient == publicToken {
			return "public"
		}
	}
	for _, recipient := range anyToSlice(obj["cc"]) {
		if recipient == publicToken {
			return "unlisted"
		}
	}
	return "limited"
}
