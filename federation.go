package main

import (
	"github.com/sorrelsocial/sorrel/models"
)

type AllowDomainCmd struct {
	Domain string `arg:"" required:"" help:"domain to admit deliveries from"`
}

func (a *AllowDomainCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	return models.NewFederation(db).AllowDomain(a.Domain)
}

type DenyDomainCmd struct {
	Domain string `arg:"" required:"" help:"domain to stop admitting deliveries from"`
}

func (d *DenyDomainCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	return models.NewFederation(db).DenyDomain(d.Domain)
}
