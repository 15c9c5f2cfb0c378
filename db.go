package main

import (
	"github.com/sorrelsocial/sorrel/models"
	"gorm.io/gorm"
)

// openDB opens the database and brings the schema up to date.
func openDB(ctx *Context) (*gorm.DB, error) {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		return nil, err
	}
	return db, nil
}
