package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/chatfabric/relay-node/internal/domain/model"
)

// ParticipantRepository persists identity_tb: the participant
// identifier <-> routing identity pairing, allocated once per participant.
type ParticipantRepository interface {
	// FindByIdentifier returns the stored participant, or found=false if
	// this node has never seen this participant identifier before.
	FindByIdentifier(ctx context.Context, identifier string) (p model.Participant, found bool, err error)

	// Create persists a newly allocated routing identity for identifier.
	Create(ctx context.Context, identifier, routingIdentity string) error
}

// DeviceRepository persists device_information_tb.
type DeviceRepository interface {
	Save(ctx context.Context, participantIdentifier string, device model.Device) error
}

type gormParticipantRepository struct {
	db *gorm.DB
}

// NewParticipantRepository constructs a GORM-backed ParticipantRepository.
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &gormParticipantRepository{db: db}
}

func (r *gormParticipantRepository) FindByIdentifier(ctx context.Context, identifier string) (model.Participant, bool, error) {
	var record IdentityRecord
	err := r.db.WithContext(ctx).
		Where("participant_identifier = ?", identifier).
		First(&record).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Participant{}, false, nil
	}
	if err != nil {
		return model.Participant{}, false, fmt.Errorf("repository: finding identity %q: %w", identifier, err)
	}

	return model.Participant{
		Identifier:      record.ParticipantIdentifier,
		RoutingIdentity: record.RoutingIdentifier,
	}, true, nil
}

func (r *gormParticipantRepository) Create(ctx context.Context, identifier, routingIdentity string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := IdentityRecord{ParticipantIdentifier: identifier, RoutingIdentifier: routingIdentity}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("repository: creating identity %q: %w", identifier, err)
		}
		return nil
	})
}

type gormDeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository constructs a GORM-backed DeviceRepository.
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &gormDeviceRepository{db: db}
}

func (r *gormDeviceRepository) Save(ctx context.Context, participantIdentifier string, device model.Device) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity IdentityRecord
		if err := tx.Where("participant_identifier = ?", participantIdentifier).First(&identity).Error; err != nil {
			return fmt.Errorf("repository: locating identity %q for device save: %w", participantIdentifier, err)
		}

		payload, err := json.Marshal(device)
		if err != nil {
			return fmt.Errorf("repository: encoding device information: %w", err)
		}

		record := DeviceInformationRecord{IdentityID: identity.ID, Information: payload}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("repository: saving device information for %q: %w", participantIdentifier, err)
		}
		return nil
	})
}
