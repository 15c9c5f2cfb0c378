package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/internal/cache"
	"github.com/sorrelsocial/sorrel/internal/webfinger"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// NewActorRefreshProcessor drains the actor refresh requests: each actor is
// re-resolved through webfinger and its cached document replaced.
func NewActorRefreshProcessor(db *gorm.DB, admin *models.Account, actors *cache.Actors) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		fmt.Println("ActorRefreshProcessor started")
		defer fmt.Println("ActorRefreshProcessor stopped")

		refresher := &actorRefresher{
			signAs:   admin,
			actors:   actors,
			resolver: webfinger.NewResolver(),
		}

		db := db.WithContext(ctx)
		for {
			if err := process(db, actorRefreshScope, refresher.processActorRefresh); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(30 * time.Second):
				// continue
			}
		}
	}
}

func actorRefreshScope(db *gorm.DB) *gorm.DB {
	return db.Preload("Actor").Where("attempts < 3")
}

type actorRefresher struct {
	// signAs is the account to sign requests as.
	signAs *models.Account
	actors *cache.Actors
	// resolver remembers failed lookups, so a dead domain fails fast on
	// every sweep instead of timing out each time
	resolver *webfinger.Resolver
}

func (a *actorRefresher) processActorRefresh(db *gorm.DB, request *models.ActorRefreshRequest) error {
	if request.Actor.IsLocal() {
		// ignore local actors
		return nil
	}
	ctx := db.Statement.Context
	handle := request.Actor.Name + "@" + request.Actor.Domain
	fmt.Println("processActorRefresh", handle)
	uri, err := a.resolver.Resolve(ctx, handle)
	if err != nil {
		return err
	}

	obj, err := activitypub.NewRemoteActorFetcher(a.signAs).Fetch(ctx, uri)
	if err != nil {
		return err
	}
	// Put refreshes both the memory layer and the stored document; the
	// actor keeps its original id because the store saves by uri
	a.actors.Put(ctx, uri, obj)
	return nil
}
