package main

import (
	"strings"

	"github.com/sorrelsocial/sorrel/models"
)

type BlockCmd struct {
	Target string `arg:"" required:"" help:"actor URL or domain to block"`
}

func (b *BlockCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	federation := models.NewFederation(db)
	if strings.Contains(b.Target, "/") {
		return federation.BlockActor(b.Target)
	}
	return federation.BlockDomain(b.Target)
}

type UnblockCmd struct {
	Target string `arg:"" required:"" help:"actor URL or domain to unblock"`
}

func (b *UnblockCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	federation := models.NewFederation(db)
	if strings.Contains(b.Target, "/") {
		return federation.UnblockActor(b.Target)
	}
	return federation.UnblockDomain(b.Target)
}
