// package cache holds actor documents fetched from remote instances.
//
// The cache is two layered: a memory map for the hot path and a Store for
// documents that should survive a restart. Entries expire after TTL and are
// purged by a periodic sweep, not per request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sorrelsocial/sorrel/internal/backoff"
)

// ErrNotCached is returned by a Store when it has no entry for the URL.
// A Store that finds a corrupt entry should also return ErrNotCached so the
// caller re-fetches instead of crashing.
var ErrNotCached = errors.New("not cached")

// DefaultTTL is how long an entry lives without being read.
const DefaultTTL = 48 * time.Hour

// Store is the persistent layer beneath the memory map.
type Store interface {
	Load(ctx context.Context, uri string) (map[string]any, time.Time, error)
	Save(ctx context.Context, uri string, obj map[string]any, fetched time.Time) error
	Delete(ctx context.Context, uri string) error
}

// FetchFunc retrieves an actor document from its origin server.
type FetchFunc func(ctx context.Context, uri string) (map[string]any, error)

// ProbeFunc reports whether the resource at uri still exists.
type ProbeFunc func(ctx context.Context, uri string) bool

type entry struct {
	object  map[string]any
	fetched time.Time
}

// Actors caches actor documents keyed by canonical actor URL.
// Operations on the same URL are mutually exclusive; different URLs
// proceed independently.
type Actors struct {
	// TTL overrides DefaultTTL when non-zero.
	TTL time.Duration

	domain string
	store  Store
	fetch  FetchFunc
	probe  ProbeFunc

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

// NewActors returns an actor cache for the instance at domain.
func NewActors(domain string, store Store, fetch FetchFunc, probe ProbeFunc) *Actors {
	return &Actors{
		domain:  domain,
		store:   store,
		fetch:   fetch,
		probe:   probe,
		entries: make(map[string]*entry),
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// SkipCache reports whether uri refers to something that is not a person
// document and must not be cached: status URLs and instance /actor endpoints.
func SkipCache(uri string) bool {
	return strings.Contains(uri, "statuses") || strings.HasSuffix(uri, "/actor")
}

// Get returns the actor document for uri, consulting memory, then the
// store, then the origin server. A memory hit refreshes the entry's
// timestamp so hot entries stay alive; a store load does not.
func (a *Actors) Get(ctx context.Context, uri string) (map[string]any, error) {
	if SkipCache(uri) {
		return a.fetch(ctx, uri)
	}

	unlock := a.lock(uri)
	defer unlock()

	a.mu.Lock()
	if e, ok := a.entries[uri]; ok {
		e.fetched = a.now()
		obj := e.object
		a.mu.Unlock()
		return obj, nil
	}
	a.mu.Unlock()

	// any store failure, including corrupt data, is a cache miss
	if obj, fetched, err := a.store.Load(ctx, uri); err == nil {
		a.mu.Lock()
		a.entries[uri] = &entry{object: obj, fetched: fetched}
		a.mu.Unlock()
		return obj, nil
	}

	obj, err := a.fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("fetching actor %s: %w", uri, err)
	}
	a.putLocked(ctx, uri, obj)
	return obj, nil
}

// Put stores an actor document under uri in both layers.
func (a *Actors) Put(ctx context.Context, uri string, obj map[string]any) {
	if SkipCache(uri) {
		return
	}
	unlock := a.lock(uri)
	defer unlock()
	a.putLocked(ctx, uri, obj)
}

func (a *Actors) putLocked(ctx context.Context, uri string, obj map[string]any) {
	now := a.now()
	a.mu.Lock()
	a.entries[uri] = &entry{object: obj, fetched: now}
	a.mu.Unlock()
	// the store write is retried at the storage boundary, never inline
	// with a sleep loop in business logic
	if err := backoff.Retry(ctx, 3, 250*time.Millisecond, func() error {
		return a.store.Save(ctx, uri, obj, now)
	}); err != nil {
		fmt.Println("cache: saving actor", uri, "failed:", err)
	}
}

// Invalidate removes uri from both the memory map and the store.
func (a *Actors) Invalidate(ctx context.Context, uri string) error {
	unlock := a.lock(uri)
	defer unlock()
	a.mu.Lock()
	delete(a.entries, uri)
	a.mu.Unlock()
	return a.store.Delete(ctx, uri)
}

// ExpireOlderThan purges memory entries whose timestamp is older than age.
// It returns the number of entries removed.
func (a *Actors) ExpireOlderThan(age time.Duration) int {
	cutoff := a.now().Add(-age)
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for uri, e := range a.entries {
		if e.fetched.Before(cutoff) {
			delete(a.entries, uri)
			removed++
		}
	}
	return removed
}

// Sweep runs the expiry sweep every interval until ctx is cancelled.
func (a *Actors) Sweep(ctx context.Context, interval time.Duration) error {
	ttl := a.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.ExpireOlderThan(ttl); n > 0 {
				fmt.Println("cache: expired", n, "actors")
			}
		}
	}
}

// CheckForChangedActor invalidates the cache entry for actorURI when the
// actor's declared avatar no longer resolves. A dead avatar hosted on a
// foreign domain is taken as evidence the profile changed without an
// Update activity reaching us. The probe carries a short deadline so a
// slow remote cannot stall the caller.
func (a *Actors) CheckForChangedActor(ctx context.Context, actorURI, avatarURL string) error {
	if avatarURL == "" {
		return nil
	}
	u, err := url.Parse(avatarURL)
	if err != nil {
		return nil
	}
	if u.Host == "" || u.Host == a.domain {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if a.probe(ctx, avatarURL) {
		return nil
	}
	fmt.Println("cache: avatar gone, invalidating", actorURI)
	return a.Invalidate(context.Background(), actorURI)
}

// lock acquires the per-URL mutex, creating it on first use.
func (a *Actors) lock(uri string) func() {
	a.mu.Lock()
	mu, ok := a.locks[uri]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[uri] = mu
	}
	a.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}
