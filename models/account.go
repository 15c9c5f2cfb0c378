package models

import (
	"crypto/rsa"
	"time"

	"github.com/sorrelsocial/sorrel/internal/crypto"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"gorm.io/gorm"
)

// Account is a local account: an actor we hold the private key for.
type Account struct {
	ID                snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ActorID           snowflake.ID `gorm:"uniqueIndex;not null"`
	Actor             *Actor       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Email             string       `gorm:"size:64;uniqueIndex;not null"`
	EncryptedPassword []byte       `gorm:"size:64;not null"`
	PrivateKey        []byte       `gorm:"type:text;not null"`

	// interaction restrictions, enforced by admission
	RejectReplies   bool `gorm:"not null;default:false"`
	RejectLikes     bool `gorm:"not null;default:false"`
	RejectAnnounces bool `gorm:"not null;default:false"`
}

// PrivKey returns the account's RSA private key.
func (a *Account) PrivKey() (*rsa.PrivateKey, error) {
	_, priv, err := crypto.ParseRSAPrivateKey(a.PrivateKey)
	return priv, err
}

// PublicKeyID returns the key id outbound requests are signed with.
func (a *Account) PublicKeyID() string {
	return a.Actor.PublicKeyID()
}

type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

// Find finds a local account by name and domain.
func (a *Accounts) Find(name, domain string) (*Account, error) {
	var account Account
	return &account, a.db.Joins("Actor").
		Where("Actor.name = ? AND Actor.domain = ?", name, domain).
		Take(&account).Error
}

// AccountForActor returns the local account behind the given actor.
func (a *Accounts) AccountForActor(actor *Actor) (*Account, error) {
	var account Account
	return &account, a.db.Joins("Actor").Where("actor_id = ?", actor.ID).Take(&account).Error
}
