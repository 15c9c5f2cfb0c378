package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sorrelsocial/sorrel/internal/cache"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Actor struct {
	ID             snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	UpdatedAt      time.Time
	Type           string `gorm:"size:16;default:'Person';not null"`
	Name           string `gorm:"size:64;uniqueIndex:idx_actors_name_domain;not null"`
	Domain         string `gorm:"size:64;uniqueIndex:idx_actors_name_domain;not null"`
	URI            string `gorm:"size:500;uniqueIndex;not null"`
	DisplayName    string `gorm:"size:128"`
	Locked         bool   `gorm:"not null;default:false"`
	Note           string `gorm:"type:text"`
	Avatar         string `gorm:"size:500"`
	InboxURL       string `gorm:"size:500"`
	OutboxURL      string `gorm:"size:500"`
	SharedInboxURL string `gorm:"size:500"`
	PublicKey      []byte `gorm:"type:text"`
	// RefreshedAt is when the actor document was last fetched from its
	// origin; the cache layer uses it for expiry.
	RefreshedAt time.Time
	// Object is the raw actor document as received. Cleared when the
	// cache entry is invalidated.
	Object map[string]any `gorm:"serializer:json"`
}

func (a *Actor) Acct() string {
	if a.IsLocal() {
		return a.Name
	}
	return fmt.Sprintf("%s@%s", a.Name, a.Domain)
}

// IsLocal indicates whether the actor is local to the instance.
func (a *Actor) IsLocal() bool {
	switch a.Type {
	case "LocalPerson", "LocalService":
		return true
	default:
		return false
	}
}

func (a *Actor) IsRemote() bool {
	return !a.IsLocal()
}

// ActorType maps the stored type to the ActivityPub type.
func (a *Actor) ActorType() string {
	switch a.Type {
	case "LocalPerson":
		return "Person"
	case "LocalService":
		return "Service"
	default:
		return a.Type
	}
}

func (a *Actor) PublicKeyID() string {
	return fmt.Sprintf("%s#main-key", a.URI)
}

// Inbox returns the inbox deliveries should be addressed to, preferring
// the instance wide shared inbox when the actor advertises one.
func (a *Actor) Inbox() string {
	if a.SharedInboxURL != "" {
		return a.SharedInboxURL
	}
	return a.InboxURL
}

func (a *Actor) URL() string {
	return fmt.Sprintf("https://%s/@%s", a.Domain, a.Name)
}

type Actors struct {
	db *gorm.DB
}

func NewActors(db *gorm.DB) *Actors {
	return &Actors{db: db}
}

// Find finds an actor by its name and domain.
func (a *Actors) Find(name, domain string) (*Actor, error) {
	var actor Actor
	return &actor, a.db.Where("name = ? AND domain = ?", name, domain).Take(&actor).Error
}

// FindByID returns an actor by its primary key.
func (a *Actors) FindByID(id snowflake.ID) (*Actor, error) {
	var actor Actor
	return &actor, a.db.Take(&actor, id).Error
}

// FindByURI returns an actor by its canonical URL if it exists locally.
func (a *Actors) FindByURI(uri string) (*Actor, error) {
	var actor Actor
	return &actor, a.db.Where("uri = ?", uri).Take(&actor).Error
}

// FindOrCreate finds an actor by URI, calling fetch to create it if it is
// not known yet.
func (a *Actors) FindOrCreate(uri string, fetch func(string) (*Actor, error)) (*Actor, error) {
	actor, err := a.FindByURI(uri)
	if err == nil {
		// found cached actor
		return actor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	actor, err = fetch(uri)
	if err != nil {
		return nil, err
	}
	if err := a.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		UpdateAll: true,
	}).Create(actor).Error; err != nil {
		return nil, err
	}
	return actor, nil
}

// ActorFromObject builds an Actor row from a raw actor document.
func ActorFromObject(obj map[string]any) (*Actor, error) {
	uri := stringFromAny(obj["id"])
	if uri == "" {
		return nil, errors.New("actor document has no id")
	}
	domain, err := domainOf(uri)
	if err != nil {
		return nil, err
	}
	name := stringFromAny(obj["preferredUsername"])
	if name == "" {
		name = stringFromAny(obj["name"])
	}
	return &Actor{
		ID:             snowflake.Now(),
		Type:           actorTypeOf(stringFromAny(obj["type"])),
		Name:           name,
		Domain:         domain,
		URI:            uri,
		DisplayName:    stringFromAny(obj["name"]),
		Locked:         boolFromAny(obj["manuallyApprovesFollowers"]),
		Note:           stringFromAny(obj["summary"]),
		Avatar:         stringFromAny(mapFromAny(obj["icon"])["url"]),
		InboxURL:       stringFromAny(obj["inbox"]),
		OutboxURL:      stringFromAny(obj["outbox"]),
		SharedInboxURL: stringFromAny(mapFromAny(obj["endpoints"])["sharedInbox"]),
		PublicKey:      []byte(stringFromAny(mapFromAny(obj["publicKey"])["publicKeyPem"])),
		RefreshedAt:    time.Now(),
		Object:         obj,
	}, nil
}

func actorTypeOf(t string) string {
	switch t {
	case "Person", "Application", "Service", "Group", "Organization":
		return t
	default:
		return "Person"
	}
}

// ActorStore adapts the actors table to the cache.Store interface. Deleting
// a cache entry clears the stored document but keeps the identity row, so
// follow relationships survive a cache invalidation.
type ActorStore struct {
	db *gorm.DB
}

func NewActorStore(db *gorm.DB) *ActorStore {
	return &ActorStore{db: db}
}

func (s *ActorStore) Load(ctx context.Context, uri string) (map[string]any, time.Time, error) {
	var actor Actor
	if err := s.db.WithContext(ctx).Where("uri = ?", uri).Take(&actor).Error; err != nil {
		return nil, time.Time{}, cache.ErrNotCached
	}
	if len(actor.Object) == 0 || stringFromAny(actor.Object["id"]) == "" {
		// missing or corrupt document is a cache miss
		return nil, time.Time{}, cache.ErrNotCached
	}
	return actor.Object, actor.RefreshedAt, nil
}

func (s *ActorStore) Save(ctx context.Context, uri string, obj map[string]any, fetched time.Time) error {
	actor, err := ActorFromObject(obj)
	if err != nil {
		return err
	}
	actor.RefreshedAt = fetched
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "locked", "note", "avatar", "inbox_url",
			"outbox_url", "shared_inbox_url", "public_key",
			"refreshed_at", "object",
		}),
	}).Create(actor).Error
}

func (s *ActorStore) Delete(ctx context.Context, uri string) error {
	return s.db.WithContext(ctx).Model(&Actor{}).Where("uri = ?", uri).
		UpdateColumns(map[string]interface{}{
			"object":       nil,
			"refreshed_at": time.Time{},
		}).Error
}
