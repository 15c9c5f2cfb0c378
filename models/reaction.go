package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reaction records a like or announce of a post by an actor. The composite
// primary key makes reactions idempotent per (post, actor, kind).
type Reaction struct {
	PostID    snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	ActorID   snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Name      string       `gorm:"primarykey;size:16"` // like, announce
	URI       string       `gorm:"size:500;index"`     // the activity id, for Undo by id
	CreatedAt time.Time
}

type Reactions struct {
	db *gorm.DB
}

func NewReactions(db *gorm.DB) *Reactions {
	return &Reactions{db: db}
}

// Add records the reaction and bumps the post's counter, unless the same
// actor has already reacted the same way. Reports whether it was recorded.
func (r *Reactions) Add(reaction *Reaction) (bool, error) {
	if !knownReaction(reaction.Name) {
		return false, fmt.Errorf("%w: %q", ErrUnknownReaction, reaction.Name)
	}
	var added bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true
		return tx.Model(&Post{}).Where("id = ?", reaction.PostID).
			UpdateColumn(counterFor(reaction.Name), gorm.Expr(counterFor(reaction.Name)+" + 1")).Error
	})
	return added, err
}

// Remove reverses a prior reaction, decrementing the counter. Removing a
// reaction that was never recorded is a no-op.
func (r *Reactions) Remove(reaction *Reaction) (bool, error) {
	if !knownReaction(reaction.Name) {
		return false, fmt.Errorf("%w: %q", ErrUnknownReaction, reaction.Name)
	}
	var removed bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND actor_id = ? AND name = ?",
			reaction.PostID, reaction.ActorID, reaction.Name).Delete(&Reaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&Post{}).Where("id = ?", reaction.PostID).
			UpdateColumn(counterFor(reaction.Name), gorm.Expr(counterFor(reaction.Name)+" - 1")).Error
	})
	return removed, err
}

// FindByURI locates a reaction by the activity id that created it.
func (r *Reactions) FindByURI(uri string) (*Reaction, error) {
	var reaction Reaction
	err := r.db.Where("uri = ?", uri).Take(&reaction).Error
	return &reaction, err
}

func knownReaction(name string) bool {
	return name == "like" || name == "announce"
}

func counterFor(name string) string {
	if name == "announce" {
		return "shares_count"
	}
	return "likes_count"
}

// ErrUnknownReaction is returned for reaction kinds we do not track.
var ErrUnknownReaction = errors.New("unknown reaction")
