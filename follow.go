package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/activitypub/activities"
	"github.com/sorrelsocial/sorrel/internal/webfinger"
	"github.com/sorrelsocial/sorrel/models"
)

type FollowCmd struct {
	Actor  string `required:"" help:"local account to follow with, as user@domain"`
	Object string `required:"" help:"actor to follow, as user@domain or a URL"`
}

func (f *FollowCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}

	account, err := findAccount(db, f.Actor)
	if err != nil {
		return err
	}

	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	uri, err := resolveActorURI(c, f.Object)
	if err != nil {
		return err
	}
	fetcher := activitypub.NewRemoteActorFetcher(account)
	obj, err := fetcher.Fetch(c, uri)
	if err != nil {
		return err
	}
	target, err := models.NewActors(db).FindOrCreate(uri, func(string) (*models.Actor, error) {
		return models.ActorFromObject(obj)
	})
	if err != nil {
		return err
	}

	follow := activities.Follow(account.Actor, target)
	if err := models.NewRelationships(db).Request(account.Actor, target, follow["id"].(string), true); err != nil {
		return err
	}

	client, err := activitypub.NewClient(account)
	if err != nil {
		return err
	}
	if err := client.Post(c, target.Inbox(), follow); err != nil {
		return err
	}
	fmt.Println("follow requested:", target.URI)
	return nil
}

// resolveActorURI turns a user@domain handle into an actor URL via
// webfinger; URLs pass through untouched.
func resolveActorURI(ctx context.Context, object string) (string, error) {
	acct, err := webfinger.Parse(object)
	if err != nil {
		// not a handle, assume a URL
		return object, nil
	}
	finger, err := acct.Fetch(ctx)
	if err != nil {
		return "", err
	}
	return finger.ActivityPub()
}
