package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/group"

	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/activitypub/activities"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
)

type PostCmd struct {
	Actor   string `required:"" help:"local account to post as, as user@domain"`
	Message string `required:"" help:"text of the post"`
	To      string `enum:"public,followers" default:"public" help:"audience of the post"`
}

func (p *PostCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	account, err := findAccount(db, p.Actor)
	if err != nil {
		return err
	}
	actor := account.Actor

	id := snowflake.Now()
	obj := map[string]any{
		"id":           fmt.Sprintf("%s/statuses/%d", actor.URI, id),
		"type":         "Note",
		"attributedTo": actor.URI,
		"content":      p.Message,
		"published":    id.ToTime().UTC().Format("2006-01-02T15:04:05Z"),
	}
	visibility := "limited"
	if p.To == "public" {
		visibility = "public"
		obj["to"] = []any{"https://www.w3.org/ns/activitystreams#Public"}
		obj["cc"] = []any{actor.URI + "/followers"}
	} else {
		obj["to"] = []any{actor.URI + "/followers"}
		obj["cc"] = []any{}
	}

	inserted, err := models.NewPosts(db).Insert(&models.Post{
		ID:         id,
		URI:        obj["id"].(string),
		ActorID:    actor.ID,
		Content:    p.Message,
		Visibility: visibility,
		Object:     obj,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("post %s already exists", obj["id"])
	}

	dispatcher := activitypub.NewDispatcher(db, 4, time.Minute)
	runCtx, cancel := context.WithCancel(context.Background())
	g := group.New(runCtx)
	g.Add(dispatcher.Run)
	if err := dispatcher.Send(account, activities.Create(actor, obj)); err != nil {
		cancel()
		g.Wait()
		return err
	}
	dispatcher.Drain()
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("posted:", obj["id"])
	return nil
}
