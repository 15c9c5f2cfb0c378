package activitypub

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sorrelsocial/sorrel/internal/algorithms"
	"github.com/sorrelsocial/sorrel/internal/httpx"
	"github.com/sorrelsocial/sorrel/internal/to"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// pageParams is the pagination window of a collection page request.
type pageParams struct {
	Page  bool   `schema:"page"`
	MaxID uint64 `schema:"max_id"`
	MinID uint64 `schema:"min_id"`
	Limit int    `schema:"limit"`
}

func (p *pageParams) limit() int {
	switch {
	case p.Limit <= 0:
		return 20
	case p.Limit > 40:
		return 40
	default:
		return p.Limit
	}
}

// Outbox serves a local actor's outbox as an OrderedCollection of their
// public posts.
func Outbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := localActor(env, r)
	if err != nil {
		return err
	}
	var params pageParams
	if err := httpx.Params(r, &params); err != nil {
		return err
	}
	if !params.Page {
		var count int64
		if err := env.DB.Model(&models.Post{}).
			Where("actor_id = ? AND visibility = ? AND deleted = ?", actor.ID, "public", false).
			Count(&count).Error; err != nil {
			return err
		}
		return to.ActivityJSON(w, collectionIndex(r, count))
	}

	query := env.DB.Where("actor_id = ? AND visibility = ? AND deleted = ?", actor.ID, "public", false)
	query = query.Scopes(paginate(&params)).Preload("Actor")
	var posts []*models.Post
	if err := query.Find(&posts).Error; err != nil {
		return err
	}
	resp := collectionPage(r)
	if len(posts) > 0 {
		resp["next"] = fmt.Sprintf("https://%s%s?max_id=%d&page=true", r.Host, r.URL.Path, posts[len(posts)-1].ID)
		resp["prev"] = fmt.Sprintf("https://%s%s?min_id=%d&page=true", r.Host, r.URL.Path, posts[0].ID)
	}
	resp["orderedItems"] = algorithms.Map(posts, postToItem)
	return to.ActivityJSON(w, resp)
}

// Followers serves the accepted followers of a local actor.
func Followers(env *Env, w http.ResponseWriter, r *http.Request) error {
	return followCollection(env, w, r, func(rels *models.Relationships, actor *models.Actor) ([]*models.Actor, error) {
		return rels.Followers(actor)
	})
}

// Following serves the actors a local actor follows.
func Following(env *Env, w http.ResponseWriter, r *http.Request) error {
	return followCollection(env, w, r, func(rels *models.Relationships, actor *models.Actor) ([]*models.Actor, error) {
		return rels.Following(actor)
	})
}

func followCollection(env *Env, w http.ResponseWriter, r *http.Request, fetch func(*models.Relationships, *models.Actor) ([]*models.Actor, error)) error {
	actor, err := localActor(env, r)
	if err != nil {
		return err
	}
	actors, err := fetch(models.NewRelationships(env.DB), actor)
	if err != nil {
		return err
	}
	if !parseBool(r, "page") {
		return to.ActivityJSON(w, collectionIndex(r, int64(len(actors))))
	}
	resp := collectionPage(r)
	resp["orderedItems"] = algorithms.Map(actors, func(a *models.Actor) any { return a.URI })
	return to.ActivityJSON(w, resp)
}

func localActor(env *Env, r *http.Request) (*models.Actor, error) {
	actor, err := models.NewActors(env.DB).Find(chi.URLParam(r, "name"), env.Domain)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.Error(http.StatusNotFound, err)
		}
		return nil, err
	}
	if actor.IsRemote() {
		return nil, httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not a local actor", actor.URI))
	}
	return actor, nil
}

func collectionIndex(r *http.Request, count int64) map[string]any {
	return map[string]any{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         fmt.Sprintf("https://%s%s", r.Host, r.URL.Path),
		"type":       "OrderedCollection",
		"totalItems": count,
		"first":      fmt.Sprintf("https://%s%s?page=true", r.Host, r.URL.Path),
		"last":       fmt.Sprintf("https://%s%s?min_id=0&page=true", r.Host, r.URL.Path),
	}
}

func collectionPage(r *http.Request) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       r.URL.String(),
		"type":     "OrderedCollectionPage",
		"partOf":   fmt.Sprintf("https://%s%s", r.Host, r.URL.Path),
	}
}

// paginate orders newest first within the requested id window.
func paginate(params *pageParams) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if params.MaxID > 0 {
			db = db.Where("id < ?", params.MaxID)
		}
		if params.MinID > 0 {
			db = db.Where("id > ?", params.MinID)
		}
		return db.Order("id desc").Limit(params.limit())
	}
}

func postToItem(p *models.Post) *Item {
	return &Item{
		ID:        p.URI + "/activity",
		Type:      "Create",
		Actor:     p.Actor.URI,
		Published: p.ID.ToTime().Format("2006-01-02T15:04:05Z"),
		To:        []string{publicToken},
		CC:        []string{p.Actor.URI + "/followers"},
		Object:    postObject(p),
	}
}

// Item is one entry of an outbox page.
type Item struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor"`
	Published string   `json:"published"`
	To        []string `json:"to"`
	CC        []string `json:"cc"`
	Object    any      `json:"object"`
}

func postObject(p *models.Post) any {
	if len(p.Object) > 0 {
		return p.Object
	}
	return map[string]any{
		"id":           p.URI,
		"type":         "Note",
		"attributedTo": p.Actor.URI,
		"content":      p.Content,
		"published":    p.ID.ToTime().Format("2006-01-02T15:04:05Z"),
	}
}
