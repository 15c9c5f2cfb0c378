package models

import (
	"time"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Processing states of an accepted delivery. An activity never moves
// backwards.
const (
	ActivityReceived = "received"
	ActivityVerified = "verified"
	ActivityAdmitted = "admitted"
	ActivityApplied  = "applied"
	ActivityRejected = "rejected"
	ActivityFailed   = "failed"
)

// Activity is an inbound activity accepted into the inbox. The unique index
// on URI makes acceptance idempotent: redelivery of the same activity id is
// a write-once no-op.
type Activity struct {
	ID           snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt    time.Time
	URI          string `gorm:"size:500;uniqueIndex;not null"`
	ActivityType string `gorm:"size:32;not null"`
	ActorURI     string `gorm:"size:500;not null"`
	State        string `gorm:"size:16;not null;default:'received'"`
	Object       map[string]any `gorm:"serializer:json"`
}

func (Activity) TableName() string {
	return "inbox"
}

type Activities struct {
	db *gorm.DB
}

func NewActivities(db *gorm.DB) *Activities {
	return &Activities{db: db}
}

// Insert stores the activity if its URI has not been seen before.
// It reports whether the row was inserted; false means a duplicate.
func (a *Activities) Insert(activity *Activity) (bool, error) {
	if activity.ID == 0 {
		activity.ID = snowflake.Now()
	}
	res := a.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		DoNothing: true,
	}).Create(activity)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetState records a state transition.
func (a *Activities) SetState(activity *Activity, state string) error {
	activity.State = state
	return a.db.Model(activity).UpdateColumn("state", state).Error
}

// FindByURI returns the stored activity with the given id.
func (a *Activities) FindByURI(uri string) (*Activity, error) {
	var activity Activity
	return &activity, a.db.Where("uri = ?", uri).Take(&activity).Error
}
