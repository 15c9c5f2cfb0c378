package main

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sorrelsocial/sorrel/internal/crypto"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
)

type CreateAccountCmd struct {
	Email    string `required:"" help:"email address of the account to create"`
	Password string `required:"" help:"password of the account to create"`
	Admin    bool   `help:"make this account the instance admin"`
}

func (c *CreateAccountCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}

	name, domain, found := strings.Cut(c.Email, "@")
	if !found {
		return errors.New("invalid email address")
	}
	instance, err := models.NewInstances(db).FindByDomain(domain)
	if err != nil {
		return err
	}

	passwd, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	keypair, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		actor := &models.Actor{
			ID:          snowflake.Now(),
			Type:        "LocalPerson",
			Name:        name,
			Domain:      domain,
			URI:         "https://" + domain + "/users/" + name,
			DisplayName: name,
			PublicKey:   keypair.PublicKey,
		}
		if err := tx.Create(actor).Error; err != nil {
			return err
		}
		account := &models.Account{
			ID:                snowflake.Now(),
			ActorID:           actor.ID,
			Email:             c.Email,
			EncryptedPassword: passwd,
			PrivateKey:        keypair.PrivateKey,
		}
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		if c.Admin {
			return tx.Model(&models.Instance{}).
				Where("id = ?", instance.ID).
				Update("admin_id", account.ID).Error
		}
		return nil
	})
}
