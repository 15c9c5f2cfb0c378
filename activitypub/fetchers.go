package activitypub

import (
	"context"
	"fmt"

	"github.com/sorrelsocial/sorrel/models"
)

// RemoteActorFetcher retrieves actor documents from their origin servers,
// signing each request as a local account. Its Fetch and Probe methods
// satisfy the actor cache's FetchFunc and ProbeFunc.
type RemoteActorFetcher struct {
	// signAs is the account that will be used to sign the request
	signAs *models.Account
}

func NewRemoteActorFetcher(signAs *models.Account) *RemoteActorFetcher {
	return &RemoteActorFetcher{
		signAs: signAs,
	}
}

// Fetch retrieves the actor document at uri.
func (f *RemoteActorFetcher) Fetch(ctx context.Context, uri string) (map[string]any, error) {
	fmt.Println("RemoteActorFetcher.fetch:", uri)
	c, err := NewClient(f.signAs)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := c.Fetch(ctx, uri, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Probe reports whether the resource at uri still resolves. Used by the
// actor cache's avatar change check.
func (f *RemoteActorFetcher) Probe(ctx context.Context, uri string) bool {
	c, err := NewClient(f.signAs)
	if err != nil {
		return false
	}
	return c.Exists(ctx, uri)
}
