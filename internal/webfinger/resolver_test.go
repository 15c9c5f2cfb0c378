package webfinger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func jrdFor(href string) *Webfinger {
	return &Webfinger{
		Links: []Link{
			{Rel: "self", Type: "application/activity+json", Href: href},
		},
	}
}

func TestResolveCachesSuccess(t *testing.T) {
	require := require.New(t)
	r := NewResolver()
	calls := 0
	r.fetch = func(ctx context.Context, acct *Acct) (*Webfinger, error) {
		calls++
		require.Equal("acct:alice@example.com", acct.String())
		return jrdFor("https://example.com/users/alice"), nil
	}

	uri, err := r.Resolve(context.Background(), "alice@example.com")
	require.NoError(err)
	require.Equal("https://example.com/users/alice", uri)

	// second call is served from cache, even with the network gone
	r.fetch = func(ctx context.Context, acct *Acct) (*Webfinger, error) {
		t.Fatal("unexpected fetch")
		return nil, nil
	}
	uri, err = r.Resolve(context.Background(), "alice@example.com")
	require.NoError(err)
	require.Equal("https://example.com/users/alice", uri)
	require.Equal(1, calls)
}

func TestResolveNegativeCache(t *testing.T) {
	require := require.New(t)
	r := NewResolver()
	now := time.Now()
	r.now = func() time.Time { return now }
	calls := 0
	r.fetch = func(ctx context.Context, acct *Acct) (*Webfinger, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	_, err := r.Resolve(context.Background(), "bob@down.example")
	require.ErrorIs(err, ErrResolutionFailed)
	require.Equal(1, calls)

	// within the negative TTL the fetch is not retried
	_, err = r.Resolve(context.Background(), "bob@down.example")
	require.ErrorIs(err, ErrResolutionFailed)
	require.Equal(1, calls)

	now = now.Add(DefaultNegativeTTL + time.Second)
	r.fetch = func(ctx context.Context, acct *Acct) (*Webfinger, error) {
		calls++
		return jrdFor("https://down.example/users/bob"), nil
	}
	uri, err := r.Resolve(context.Background(), "bob@down.example")
	require.NoError(err)
	require.Equal("https://down.example/users/bob", uri)
	require.Equal(2, calls)
}

func TestResolveNoLink(t *testing.T) {
	require := require.New(t)
	r := NewResolver()
	r.fetch = func(ctx context.Context, acct *Acct) (*Webfinger, error) {
		return &Webfinger{}, nil
	}
	_, err := r.Resolve(context.Background(), "carol@example.com")
	require.ErrorIs(err, ErrActorNotFound)
}

func TestResolveInvalidHandle(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(context.Background(), "not a handle")
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestForget(t *testing.T) {
	require := require.New(t)
	r := NewResolver()
	calls := 0
	r.fetch = func(ctx context.Context, acct *Acct) (*Webfinger, error) {
		calls++
		return jrdFor("https://example.com/users/alice"), nil
	}
	_, err := r.Resolve(context.Background(), "alice@example.com")
	require.NoError(err)
	r.Forget("alice@example.com")
	_, err = r.Resolve(context.Background(), "alice@example.com")
	require.NoError(err)
	require.Equal(2, calls)
}
