package models

import (
	"errors"
	"time"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Relationship is a directed follow edge from Actor to Target. Pending and
// Following are mutually exclusive: a follow awaiting approval is pending,
// an accepted follow is following, never both.
type Relationship struct {
	ActorID   snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Actor     *Actor       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	TargetID  snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Target    *Actor       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Following bool         `gorm:"not null;default:false"`
	Pending   bool         `gorm:"not null;default:false"`
	// URI is the id of the Follow activity that created the edge, used to
	// correlate Accept/Reject and Undo.
	URI       string `gorm:"size:500"`
	UpdatedAt time.Time
}

type Relationships struct {
	db *gorm.DB
}

func NewRelationships(db *gorm.DB) *Relationships {
	return &Relationships{db: db}
}

// Request records a follow request from follower to target. If the edge
// already exists, in any state, nothing changes: a repeated Follow is
// idempotent and cannot demote an accepted follow back to pending.
func (r *Relationships) Request(follower, target *Actor, uri string, pending bool) error {
	rel := &Relationship{
		ActorID:   follower.ID,
		TargetID:  target.ID,
		Pending:   pending,
		Following: !pending,
		URI:       uri,
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rel).Error
}

// Accept promotes a pending follow. Accepting an already accepted follow is
// a no-op.
func (r *Relationships) Accept(followerID, targetID snowflake.ID) error {
	return r.db.Model(&Relationship{}).
		Where("actor_id = ? AND target_id = ?", followerID, targetID).
		UpdateColumns(map[string]interface{}{
			"following": true,
			"pending":   false,
		}).Error
}

// Remove drops the edge entirely; used for Reject and Undo Follow.
func (r *Relationships) Remove(followerID, targetID snowflake.ID) error {
	return r.db.Where("actor_id = ? AND target_id = ?", followerID, targetID).
		Delete(&Relationship{}).Error
}

// Find returns the edge between follower and target.
func (r *Relationships) Find(followerID, targetID snowflake.ID) (*Relationship, error) {
	var rel Relationship
	return &rel, r.db.Where("actor_id = ? AND target_id = ?", followerID, targetID).Take(&rel).Error
}

// Followers returns the accepted followers of target.
func (r *Relationships) Followers(target *Actor) ([]*Actor, error) {
	var rels []Relationship
	if err := r.db.Preload("Actor").
		Where("target_id = ? AND following = ?", target.ID, true).
		Find(&rels).Error; err != nil {
		return nil, err
	}
	actors := make([]*Actor, 0, len(rels))
	for _, rel := range rels {
		if rel.Actor != nil {
			actors = append(actors, rel.Actor)
		}
	}
	return actors, nil
}

// Following returns the actors target follows.
func (r *Relationships) Following(actor *Actor) ([]*Actor, error) {
	var rels []Relationship
	if err := r.db.Preload("Target").
		Where("actor_id = ? AND following = ?", actor.ID, true).
		Find(&rels).Error; err != nil {
		return nil, err
	}
	actors := make([]*Actor, 0, len(rels))
	for _, rel := range rels {
		if rel.Target != nil {
			actors = append(actors, rel.Target)
		}
	}
	return actors, nil
}

// Pending returns the follow requests awaiting approval for target.
func (r *Relationships) Pending(target *Actor) ([]Relationship, error) {
	var rels []Relationship
	return rels, r.db.Preload("Actor").
		Where("target_id = ? AND pending = ?", target.ID, true).
		Find(&rels).Error
}

// ErrNotPending is returned when approving a follow that is not pending.
var ErrNotPending = errors.New("follow request is not pending")
