package activitypub

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sorrelsocial/sorrel/internal/httpx"
	"github.com/sorrelsocial/sorrel/internal/to"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// UsersShow serves the actor document for a local account.
func UsersShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := models.NewActors(env.DB).Find(chi.URLParam(r, "name"), env.Domain)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}
	if actor.IsRemote() {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not a local actor", actor.URI))
	}
	return to.ActivityJSON(w, actorDocument(env.Domain, actor))
}

// actorDocument renders the public ActivityPub representation of a local
// actor.
func actorDocument(domain string, actor *models.Actor) map[string]any {
	return map[string]any{
		"@context": []any{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                        actor.URI,
		"type":                      actor.ActorType(),
		"preferredUsername":         actor.Name,
		"name":                      actor.DisplayName,
		"summary":                   actor.Note,
		"url":                       actor.URL(),
		"manuallyApprovesFollowers": actor.Locked,
		"inbox":                     actor.URI + "/inbox",
		"outbox":                    actor.URI + "/outbox",
		"followers":                 actor.URI + "/followers",
		"following":                 actor.URI + "/following",
		"endpoints": map[string]any{
			"sharedInbox": fmt.Sprintf("https://%s/inbox", domain),
		},
		"publicKey": map[string]any{
			"id":           actor.PublicKeyID(),
			"owner":        actor.URI,
			"publicKeyPem": string(actor.PublicKey),
		},
	}
}
