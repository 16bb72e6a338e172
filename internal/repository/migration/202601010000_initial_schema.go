package migration

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/chatfabric/relay-node/internal/repository"
)

// initialSchemaMigration creates the three tables §6 specifies as the
// persisted schema contract.
func initialSchemaMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "202601010000",
		Migrate: func(tx *gorm.DB) error {
			if !tx.Migrator().HasTable(&repository.IdentityRecord{}) {
				if err := tx.Migrator().CreateTable(&repository.IdentityRecord{}); err != nil {
					return fmt.Errorf("could not create identity_tb: %w", err)
				}
			}
			if !tx.Migrator().HasTable(&repository.DeviceInformationRecord{}) {
				if err := tx.Migrator().CreateTable(&repository.DeviceInformationRecord{}); err != nil {
					return fmt.Errorf("could not create device_information_tb: %w", err)
				}
			}
			if !tx.Migrator().HasTable(&repository.DirectMessageRecord{}) {
				if err := tx.Migrator().CreateTable(&repository.DirectMessageRecord{}); err != nil {
					return fmt.Errorf("could not create direct_message_tb: %w", err)
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&repository.DirectMessageRecord{}) {
				if err := tx.Migrator().DropTable(&repository.DirectMessageRecord{}); err != nil {
					return fmt.Errorf("could not drop direct_message_tb: %w", err)
				}
			}
			if tx.Migrator().HasTable(&repository.DeviceInformationRecord{}) {
				if err := tx.Migrator().DropTable(&repository.DeviceInformationRecord{}); err != nil {
					return fmt.Errorf("could not drop device_information_tb: %w", err)
				}
			}
			if tx.Migrator().HasTable(&repository.IdentityRecord{}) {
				if err := tx.Migrator().DropTable(&repository.IdentityRecord{}); err != nil {
					return fmt.Errorf("could not drop identity_tb: %w", err)
				}
			}
			return nil
		},
	}
}
