// Package activities builds the ActivityPub activities this server mints.
package activities

import (
	"fmt"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
)

const (
	FOLLOW   = "Follow"
	LIKE     = "Like"
	ANNOUNCE = "Announce"
	UNDO     = "Undo"
	ACCEPT   = "Accept"
	REJECT   = "Reject"
	CREATE   = "Create"
)

// NewID mints a unique activity id under the actor's domain.
func NewID(actor *models.Actor) string {
	return fmt.Sprintf("https://%s/activities/%d", actor.Domain, snowflake.Now())
}

func Follow(actor, object *models.Actor) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       NewID(actor),
		"type":     FOLLOW,
		"actor":    actor.URI,
		"object":   object.URI,
	}
}

func Like(actor *models.Actor, object string) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       NewID(actor),
		"type":     LIKE,
		"actor":    actor.URI,
		"object":   object,
	}
}

func Announce(actor *models.Actor, object string) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       NewID(actor),
		"type":     ANNOUNCE,
		"actor":    actor.URI,
		"object":   object,
		"to":       []any{"https://www.w3.org/ns/activitystreams#Public"},
		"cc":       []any{actor.URI + "/followers"},
	}
}

// Undo wraps a previously sent activity.
func Undo(actor *models.Actor, activity map[string]any) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       NewID(actor),
		"type":     UNDO,
		"actor":    actor.URI,
		"object":   activity,
	}
}

func Unfollow(actor, object *models.Actor) map[string]any {
	return Undo(actor, Follow(actor, object))
}

// Accept accepts a received Follow activity.
func Accept(actor *models.Actor, follow map[string]any) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       NewID(actor),
		"type":     ACCEPT,
		"actor":    actor.URI,
		"object":   follow,
	}
}

// Reject declines a received Follow activity.
func Reject(actor *models.Actor, follow map[string]any) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       NewID(actor),
		"type":     REJECT,
		"actor":    actor.URI,
		"object":   follow,
	}
}

// Create wraps a newly authored object.
func Create(actor *models.Actor, object map[string]any) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       fmt.Sprint(object["id"], "/activity"),
		"type":     CREATE,
		"actor":    actor.URI,
		"object":   object,
		"to":       object["to"],
		"cc":       object["cc"],
	}
}
