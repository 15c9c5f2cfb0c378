// Package activitypub implements the federation surface: the inbox
// acceptance pipeline, the actor and collection documents, and outbound
// delivery.
package activitypub

import (
	"context"
	"crypto"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sorrelsocial/sorrel/internal/cache"
	icrypto "github.com/sorrelsocial/sorrel/internal/crypto"
	"github.com/sorrelsocial/sorrel/internal/httpsig"
	"github.com/sorrelsocial/sorrel/internal/policy"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// Env carries the dependencies of the federation handlers.
type Env struct {
	DB         *gorm.DB
	Domain     string
	Actors     *cache.Actors
	Policy     *policy.Policy
	Dispatcher *Dispatcher
	// SecureMode requires a valid signature on federation GETs as well
	// as POSTs.
	SecureMode bool
}

// GetKey resolves a signature keyId to the signing actor's public key,
// going through the actor cache.
func (e *Env) GetKey(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	obj, err := e.Actors.Get(ctx, trimKeyID(keyID))
	if err != nil {
		return nil, err
	}
	pemBytes := stringFromAny(mapFromAny(obj["publicKey"])["publicKeyPem"])
	if pemBytes == "" {
		return nil, fmt.Errorf("actor %s has no public key", trimKeyID(keyID))
	}
	return icrypto.ParseRSAPublicKey([]byte(pemBytes))
}

// actorForURI returns the stored actor row for uri, fetching and caching
// the remote document if it is not known yet.
func (e *Env) actorForURI(ctx context.Context, uri string) (*models.Actor, error) {
	obj, err := e.Actors.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return models.NewActors(e.DB).FindOrCreate(uri, func(string) (*models.Actor, error) {
		return models.ActorFromObject(obj)
	})
}

// RequireSigned wraps a GET handler so that, in secure mode, only signed
// requests from known actors are served.
func (e *Env) RequireSigned(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.SecureMode {
			if err := httpsig.Verify(r, func(keyID string) (crypto.PublicKey, error) {
				return e.GetKey(r.Context(), keyID)
			}); err != nil {
				log.Printf("HTTP: method: %s, path: %s, status: %d, error: %s", r.Method, r.URL.Path, http.StatusUnauthorized, err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// trimKeyID removes the #main-key suffix from the key id.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}

const publicToken = "https://www.w3.org/ns/activitystreams#Public"

func boolFromAny(v any) bool {
	b, _ := v.(bool)
	return b
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anyToSlice(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	default:
		return nil
	}
}

// objectURI returns the id of an activity's object whether it is embedded
// or referenced by id.
func objectURI(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["id"])
	default:
		return ""
	}
}

func timeFromAnyOrZero(v any) time.Time {
	switch v := v.(type) {
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	case time.Time:
		return v
	default:
		return time.Time{}
	}
}

// parseBool parses a boolean value from a request parameter.
// If the parameter is not present, or cannot be parsed, it returns false.
func parseBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "true", "1":
		return true
	default:
		return false
	}
}
