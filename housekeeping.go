package main

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type HousekeepingCmd struct {
	Keep time.Duration `help:"how long applied activities are kept" default:"720h"`
}

func (c *HousekeepingCmd) Run(ctx *Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		// applied activities only matter for duplicate suppression; peers
		// stop redelivering long before the retention window closes
		res := tx.Exec(`
			DELETE FROM inbox
			WHERE state IN ('applied', 'rejected')
			AND updated_at < ?
		`, time.Now().Add(-c.Keep))
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "settled activities")

		res = tx.Exec(`
			DELETE FROM posts
			WHERE actor_id NOT IN (SELECT id FROM actors)
		`)
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "posts of unknown actors")

		res = tx.Exec(`
			DELETE FROM post_tags
			WHERE post_id NOT IN (SELECT id FROM posts)
		`)
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "orphaned hashtags")

		res = tx.Exec(`
			DELETE FROM reactions
			WHERE post_id NOT IN (SELECT id FROM posts)
		`)
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "orphaned reactions")

		// requests that exhausted their retries are never picked up again
		res = tx.Exec(`DELETE FROM actor_refresh_requests WHERE attempts >= 3`)
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "exhausted refresh requests")

		res = tx.Exec(`DELETE FROM delivery_requests WHERE attempts >= 3`)
		if res.Error != nil {
			return res.Error
		}
		fmt.Println("deleted", res.RowsAffected, "exhausted delivery requests")
		return nil
	})
}
