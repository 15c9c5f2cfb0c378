package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/activitypub/activities"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

type FollowRequestsCmd struct {
	Actor   string `required:"" help:"local account, as user@domain"`
	Approve string `help:"approve the pending follow from this actor URL" xor:"action"`
	Reject  string `help:"reject the pending follow from this actor URL" xor:"action"`
}

func (f *FollowRequestsCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	account, err := findAccount(db, f.Actor)
	if err != nil {
		return err
	}
	switch {
	case f.Approve != "":
		return f.resolve(db, account, f.Approve, true)
	case f.Reject != "":
		return f.resolve(db, account, f.Reject, false)
	default:
		pending, err := models.NewRelationships(db).Pending(account.Actor)
		if err != nil {
			return err
		}
		for _, rel := range pending {
			fmt.Printf("%s\t%s\n", rel.Actor.URI, rel.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	}
}

// resolve approves or rejects the pending follow from the given actor,
// delivering the Accept or Reject to the follower's inbox.
func (f *FollowRequestsCmd) resolve(db *gorm.DB, account *models.Account, followerURI string, approve bool) error {
	follower, err := models.NewActors(db).FindByURI(followerURI)
	if err != nil {
		return err
	}
	rels := models.NewRelationships(db)
	rel, err := rels.Find(follower.ID, account.ActorID)
	if err != nil {
		return err
	}
	if !rel.Pending {
		return fmt.Errorf("%s: %w", followerURI, models.ErrNotPending)
	}

	follow := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       rel.URI,
		"type":     "Follow",
		"actor":    follower.URI,
		"object":   account.Actor.URI,
	}
	var response map[string]any
	if approve {
		response = activities.Accept(account.Actor, follow)
	} else {
		response = activities.Reject(account.Actor, follow)
	}

	client, err := activitypub.NewClient(account)
	if err != nil {
		return err
	}
	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Post(c, follower.Inbox(), response); err != nil {
		return err
	}

	if approve {
		return rels.Accept(follower.ID, account.ActorID)
	}
	return rels.Remove(follower.ID, account.ActorID)
}
