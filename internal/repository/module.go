package repository

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DatabaseConfig carries the one recognized key §6 lists for persistence.
type DatabaseConfig struct {
	URI string
}

var Module = fx.Module("repository",
	fx.Provide(
		NewDB,
		NewParticipantRepository,
		NewDeviceRepository,
		NewMessageRepository,
	),
)

// NewDB opens the GORM connection used by every repository in this package.
func NewDB(cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URI), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("repository: opening database: %w", err)
	}
	return db, nil
}
