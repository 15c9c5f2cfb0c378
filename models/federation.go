package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DomainAllow is a federation allow-list entry. An empty allow list, or an
// entry of "*", federates with everyone.
type DomainAllow struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	Domain    string `gorm:"size:64;uniqueIndex;not null"`
}

// DomainBlock refuses all traffic from a domain.
type DomainBlock struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	Domain    string `gorm:"size:64;uniqueIndex;not null"`
}

// ActorBlock refuses all traffic from a single actor.
type ActorBlock struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	URI       string `gorm:"size:500;uniqueIndex;not null"`
}

type Federation struct {
	db *gorm.DB
}

func NewFederation(db *gorm.DB) *Federation {
	return &Federation{db: db}
}

func (f *Federation) AllowDomain(domain string) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&DomainAllow{Domain: domain}).Error
}

func (f *Federation) DenyDomain(domain string) error {
	return f.db.Where("domain = ?", domain).Delete(&DomainAllow{}).Error
}

func (f *Federation) BlockDomain(domain string) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&DomainBlock{Domain: domain}).Error
}

func (f *Federation) UnblockDomain(domain string) error {
	return f.db.Where("domain = ?", domain).Delete(&DomainBlock{}).Error
}

func (f *Federation) BlockActor(uri string) error {
	return f.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ActorBlock{URI: uri}).Error
}

func (f *Federation) UnblockActor(uri string) error {
	return f.db.Where("uri = ?", uri).Delete(&ActorBlock{}).Error
}
