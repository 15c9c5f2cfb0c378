package wellknown

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/internal/httpx"
	"github.com/sorrelsocial/sorrel/internal/webfinger"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// webfingerQuery is the decoded query string of a webfinger request.
type webfingerQuery struct {
	Resource string   `schema:"resource,required"`
	Rel      []string `schema:"rel"`
}

// WebfingerShow answers resource lookups with a JRD document.
func WebfingerShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	var query webfingerQuery
	if err := httpx.Params(r, &query); err != nil {
		return err
	}
	acct, err := webfinger.Parse(query.Resource)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	// use the host from the request, not the acct, so lookups against an
	// alias domain still resolve
	actor, err := models.NewActors(env.DB).Find(acct.User, r.Host)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}
	if actor.IsRemote() {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not a local actor", actor.URI))
	}

	links := []map[string]any{
		{
			"rel":  "http://webfinger.net/rel/profile-page",
			"type": "text/html",
			"href": actor.URL(),
		},
		{
			"rel":  "self",
			"type": "application/activity+json",
			"href": actor.URI,
		},
	}
	if len(query.Rel) > 0 {
		links = filterLinks(links, query.Rel)
	}

	w.Header().Set("Content-Type", "application/jrd+json")
	return json.MarshalFull(w, map[string]any{
		"subject": acct.String(),
		"aliases": []string{
			actor.URL(),
			actor.URI,
		},
		"links": links,
	})
}

// filterLinks keeps only the links whose rel the caller asked for.
func filterLinks(links []map[string]any, rels []string) []map[string]any {
	keep := make([]map[string]any, 0, len(links))
	for _, link := range links {
		for _, rel := range rels {
			if link["rel"] == rel {
				keep = append(keep, link)
				break
			}
		}
	}
	return keep
}
