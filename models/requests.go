package models

import (
	"time"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
)

// Request is the common bookkeeping embedded in background request tables.
type Request struct {
	ID uint32 `gorm:"primarykey;"`
	// CreatedAt is the time the request was created.
	CreatedAt time.Time
	// UpdatedAt is the time the request was last updated.
	UpdatedAt time.Time
	// Attempts is the number of times the request has been attempted.
	Attempts uint32 `gorm:"not null;default:0"`
	// LastAttempt is the time the request was last attempted.
	LastAttempt time.Time
	// LastResult is the result of the last attempt if it failed.
	LastResult string `gorm:"type:text;"`
}

// ActorRefreshRequest is a request to refresh an actor's cached document.
type ActorRefreshRequest struct {
	Request
	// ActorID is the ID of the actor to refresh.
	ActorID snowflake.ID `gorm:"uniqueIndex;not null;"`
	// Actor is the actor to refresh.
	Actor *Actor `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
}

// DeliveryRequest is a delivery that exhausted its in-process retries and
// was parked for the slow background sweeper.
type DeliveryRequest struct {
	Request
	// AccountID is the local account the delivery is signed as.
	AccountID snowflake.ID `gorm:"not null;uniqueIndex:idx_delivery_account_inbox_activity"`
	Account   *Account     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	// InboxURL is the destination inbox.
	InboxURL string `gorm:"size:500;not null;uniqueIndex:idx_delivery_account_inbox_activity"`
	// ActivityURI is the id of the activity being delivered.
	ActivityURI string `gorm:"size:500;not null;uniqueIndex:idx_delivery_account_inbox_activity"`
	// Activity is the serialised activity body.
	Activity []byte `gorm:"type:text;not null"`
}
