package models

import (
	"time"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Post is a stored status, local or remote. Posts are immutable once
// accepted except for reaction counters and tombstoning.
type Post struct {
	ID           snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	UpdatedAt    time.Time
	URI          string `gorm:"size:500;uniqueIndex;not null"`
	ActorID      snowflake.ID `gorm:"index;not null"`
	Actor        *Actor       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	InReplyToURI string       `gorm:"size:500"`
	Content      string       `gorm:"type:text"`
	SpoilerText  string       `gorm:"size:255"`
	Sensitive    bool         `gorm:"not null;default:false"`
	Visibility   string       `gorm:"size:16;not null;default:'public'"`
	LikesCount   int32        `gorm:"not null;default:0"`
	SharesCount  int32        `gorm:"not null;default:0"`
	// Deleted marks a tombstone. The row is kept so a late duplicate
	// Create cannot resurrect the post.
	Deleted bool           `gorm:"not null;default:false"`
	Object  map[string]any `gorm:"serializer:json"`
	Tags    []PostTag      `gorm:"constraint:OnDelete:CASCADE;"`
}

// PostTag is a hashtag index row.
type PostTag struct {
	PostID snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	Name   string       `gorm:"primarykey;size:100"`
}

// Notification records an event a local account should be told about.
type Notification struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	AccountID snowflake.ID `gorm:"index;not null"`
	Account   *Account     `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Kind      string       `gorm:"size:16;not null"` // mention, follow, like, announce
	ObjectURI string       `gorm:"size:500;not null"`
}

type Posts struct {
	db *gorm.DB
}

func NewPosts(db *gorm.DB) *Posts {
	return &Posts{db: db}
}

// Insert stores the post if its URI has not been seen before, reporting
// whether a row was written. A tombstoned URI stays tombstoned.
func (p *Posts) Insert(post *Post) (bool, error) {
	if post.ID == 0 {
		post.ID = snowflake.Now()
	}
	res := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		DoNothing: true,
	}).Create(post)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByURI returns the post with the given object id.
func (p *Posts) FindByURI(uri string) (*Post, error) {
	var post Post
	return &post, p.db.Where("uri = ?", uri).Take(&post).Error
}

// Tombstone marks the post deleted and clears its content. Reapplying a
// tombstone is a no-op.
func (p *Posts) Tombstone(uri string) error {
	return p.db.Model(&Post{}).Where("uri = ?", uri).
		UpdateColumns(map[string]interface{}{
			"deleted": true,
			"content": "",
			"object":  nil,
		}).Error
}
