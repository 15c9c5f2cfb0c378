package main

import (
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
)

type CreateInstanceCmd struct {
	Domain      string `required:"" help:"domain name of the instance to create"`
	Title       string `help:"title of the instance to create"`
	Description string `help:"description of the instance to create"`
}

func (c *CreateInstanceCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	return db.Create(&models.Instance{
		ID:          snowflake.Now(),
		Domain:      c.Domain,
		Title:       c.Title,
		Description: c.Description,
	}).Error
}
