package main

import (
	"context"
	"os"
	"time"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/internal/webfinger"
	"github.com/sorrelsocial/sorrel/models"
)

// findAccount looks up a local account by its user@domain handle.
func findAccount(db *gorm.DB, handle string) (*models.Account, error) {
	acct, err := webfinger.Parse(handle)
	if err != nil {
		return nil, err
	}
	return models.NewAccounts(db).Find(acct.User, acct.Host)
}

type ActorCmd struct {
	SignAs string `required:"" help:"local account to sign the request with, as user@domain"`
	Object string `required:"" help:"actor to fetch, as user@domain or a URL"`
}

func (a *ActorCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	account, err := findAccount(db, a.SignAs)
	if err != nil {
		return err
	}

	c, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	uri, err := resolveActorURI(c, a.Object)
	if err != nil {
		return err
	}
	obj, err := activitypub.NewRemoteActorFetcher(account).Fetch(c, uri)
	if err != nil {
		return err
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "  ",
	}, os.Stdout, obj)
}
