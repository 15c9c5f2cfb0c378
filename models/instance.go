package models

import (
	"time"

	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
)

// Instance is this server's own record: its domain and admin account.
type Instance struct {
	ID          snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Domain      string `gorm:"size:64;uniqueIndex;not null"`
	Title       string `gorm:"size:128"`
	Description string `gorm:"type:text"`
	AdminID     *snowflake.ID
	Admin       *Account `gorm:"<-:false;"`
}

type Instances struct {
	db *gorm.DB
}

func NewInstances(db *gorm.DB) *Instances {
	return &Instances{db: db}
}

// FindByDomain returns the instance record for the given domain.
func (i *Instances) FindByDomain(domain string) (*Instance, error) {
	var instance Instance
	return &instance, i.db.Where("domain = ?", domain).Take(&instance).Error
}

// Admin returns the instance's admin account, with its actor preloaded.
// Remote fetches are signed as the admin.
func (i *Instances) Admin(domain string) (*Account, error) {
	instance, err := i.FindByDomain(domain)
	if err != nil {
		return nil, err
	}
	if instance.AdminID == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var admin Account
	return &admin, i.db.Joins("Actor").Where("accounts.id = ?", *instance.AdminID).Take(&admin).Error
}
