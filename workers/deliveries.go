package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/sorrelsocial/sorrel/activitypub"
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// NewDeliveryProcessor retries deliveries that exhausted their in-process
// backoff. Each request gets three slow attempts before it is dropped.
func NewDeliveryProcessor(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		fmt.Println("DeliveryProcessor started")
		defer fmt.Println("DeliveryProcessor stopped")

		db := db.WithContext(ctx)
		for {
			if err := process(db, deliveryScope, processDelivery); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Minute):
				// continue
			}
		}
	}
}

func deliveryScope(db *gorm.DB) *gorm.DB {
	return db.Preload("Account").Preload("Account.Actor").Where("attempts < 3")
}

func processDelivery(db *gorm.DB, request *models.DeliveryRequest) error {
	fmt.Println("processDelivery:", request.ActivityURI, "to", request.InboxURL)
	var activity map[string]any
	if err := json.Unmarshal(request.Activity, &activity); err != nil {
		return err
	}
	client, err := activitypub.NewClient(request.Account)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(db.Statement.Context, 30*time.Second)
	defer cancel()
	return client.Post(ctx, request.InboxURL, activity)
}
