// Package migration drives schema changes for the repository package's
// three tables (identity_tb, device_information_tb, direct_message_tb)
// through gormigrate, in the teacher's migration style: one file per
// change, each wrapped in a HasTable/HasColumn guard so re-running a
// migration on an up-to-date database is a no-op.
package migration

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate applies every pending migration in order.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		initialSchemaMigration(),
	})
	return m.Migrate()
}

// Rollback reverts the most recently applied migration.
func Rollback(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		initialSchemaMigration(),
	})
	return m.RollbackLast()
}
