package webfinger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidHandle is returned for handles that cannot be parsed.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrActorNotFound is returned when the JRD has no ActivityPub link.
	ErrActorNotFound = errors.New("no ActivityPub link found")
	// ErrResolutionFailed is returned for network and endpoint failures;
	// the caller may retry later.
	ErrResolutionFailed = errors.New("webfinger resolution failed")
)

// DefaultNegativeTTL is how long a failed resolution is remembered before
// the domain is tried again.
const DefaultNegativeTTL = 5 * time.Minute

// A Resolver resolves handles to actor URLs, caching successes for the
// lifetime of the process and failures for NegativeTTL so an unreachable
// domain is not hammered once per mention.
type Resolver struct {
	// NegativeTTL overrides DefaultNegativeTTL when non-zero.
	NegativeTTL time.Duration

	// fetch is replaceable for tests.
	fetch func(ctx context.Context, acct *Acct) (*Webfinger, error)

	mu       sync.Mutex
	urls     map[string]string    // normalised handle -> actor URL
	failures map[string]time.Time // normalised handle -> time of last failure
	now      func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{
		fetch: func(ctx context.Context, acct *Acct) (*Webfinger, error) {
			return acct.Fetch(ctx)
		},
		urls:     make(map[string]string),
		failures: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Resolve returns the actor URL for the given handle.
func (r *Resolver) Resolve(ctx context.Context, handle string) (string, error) {
	acct, err := Parse(handle)
	if err != nil {
		return "", err
	}
	key := acct.String()

	r.mu.Lock()
	if uri, ok := r.urls[key]; ok {
		r.mu.Unlock()
		return uri, nil
	}
	if failed, ok := r.failures[key]; ok && r.now().Sub(failed) < r.negativeTTL() {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s (cached failure)", ErrResolutionFailed, key)
	}
	r.mu.Unlock()

	wf, err := r.fetch(ctx, acct)
	if err != nil {
		r.fail(key)
		return "", fmt.Errorf("%w: %s: %s", ErrResolutionFailed, key, err)
	}
	uri, err := wf.ActivityPub()
	if err != nil {
		// a well-formed JRD with no usable link will not grow one soon
		r.fail(key)
		return "", err
	}

	r.mu.Lock()
	r.urls[key] = uri
	delete(r.failures, key)
	r.mu.Unlock()
	return uri, nil
}

// Forget drops any cached state for the given handle.
func (r *Resolver) Forget(handle string) {
	acct, err := Parse(handle)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.urls, acct.String())
	delete(r.failures, acct.String())
	r.mu.Unlock()
}

func (r *Resolver) fail(key string) {
	r.mu.Lock()
	r.failures[key] = r.now()
	r.mu.Unlock()
}

func (r *Resolver) negativeTTL() time.Duration {
	if r.NegativeTTL > 0 {
		return r.NegativeTTL
	}
	return DefaultNegativeTTL
}
