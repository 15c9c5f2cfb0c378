package activitypub

import (
	"crypto"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/sorrelsocial/sorrel/internal/httpsig"
	"github.com/sorrelsocial/sorrel/internal/httpx"
	"github.com/sorrelsocial/sorrel/internal/policy"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// Inbox accepts an inbound activity. The pipeline is strictly ordered:
// decode, verify the signature, admit, store, apply. Verification and
// admission failures never leak detail back to the peer beyond the status
// code.
func Inbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	switch httpx.MediaType(r) {
	case "application/activity+json", "application/ld+json", "application/json":
		// ok
	default:
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("unsupported content type %q", r.Header.Get("Content-Type")))
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	var act map[string]any
	if err := json.Unmarshal(body, &act); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	if err := httpsig.VerifyDigest(r, body); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	if err := httpsig.Verify(r, func(keyID string) (crypto.PublicKey, error) {
		return env.GetKey(r.Context(), keyID)
	}); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}

	// a delivery to /users/{name}/inbox is addressed to that account;
	// a shared inbox delivery has no target until the activity is applied
	var target *models.Account
	if name := chi.URLParam(r, "name"); name != "" {
		target, err = models.NewAccounts(env.DB).Find(name, env.Domain)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return httpx.Error(http.StatusNotFound, err)
			}
			return err
		}
	}

	senderURI := stringFromAny(act["actor"])
	if err := env.Policy.Admit(act, senderURI, target); err != nil {
		return httpx.Error(admissionStatus(err), err)
	}

	activity := &models.Activity{
		URI:          stringFromAny(act["id"]),
		ActivityType: stringFromAny(act["type"]),
		ActorURI:     senderURI,
		State:        models.ActivityReceived,
		Object:       act,
	}
	activities := models.NewActivities(env.DB)
	inserted, err := activities.Insert(activity)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := activities.FindByURI(activity.URI)
		if err != nil {
			return err
		}
		switch stored.State {
		case models.ActivityFailed, models.ActivityReceived:
			// the earlier delivery never got applied; this redelivery,
			// which our 5xx invited, retries it
			activity = stored
		default:
			// already seen this activity id; the first delivery won
			w.WriteHeader(http.StatusAccepted)
			return nil
		}
	} else {
		// the checks above already passed, so the stored row walks the
		// lifecycle immediately
		if err := activities.SetState(activity, models.ActivityVerified); err != nil {
			return err
		}
		if err := activities.SetState(activity, models.ActivityAdmitted); err != nil {
			return err
		}
	}
	if err := env.ProcessActivity(r.Context(), activity); err != nil {
		if serr := activities.SetState(activity, models.ActivityFailed); serr != nil {
			fmt.Println("Inbox: recording failure for", activity.URI, "failed:", serr)
		}
		return err
	}
	if err := activities.SetState(activity, models.ActivityApplied); err != nil {
		return err
	}
	env.Policy.Record(senderURI)
	w.WriteHeader(http.StatusOK)
	return nil
}

// admissionStatus maps an admission failure to its HTTP status.
func admissionStatus(err error) int {
	switch {
	case errors.Is(err, policy.ErrMalformedActivity):
		return http.StatusBadRequest
	case errors.Is(err, policy.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		// not federated, blocked, capability denied
		return http.StatusForbidden
	}
}
