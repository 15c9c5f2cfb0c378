//go:build sqlite

package main

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newDialector(dsn string) gorm.Dialector {
	return &sqlite.Dialector{DSN: dsn}
}

func configureDB(db *gorm.DB) error {
	// gorm relies on cascading deletes, which sqlite gates behind a pragma
	return db.Exec("PRAGMA foreign_keys = ON").Error
}
