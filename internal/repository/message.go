package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MessageRepository persists direct_message_tb, the audit trail of relayed
// direct messages. Persistence is best-effort: local dispatch still
// succeeds on a PersistenceFailure (§7), so callers do not fail the relay
// on a Save error; the Participant Service discards it without logging.
type MessageRepository interface {
	Save(ctx context.Context, senderIdentifier, targetIdentifier string, payload []byte, node, marker string, receivedAt time.Time) error
}

type gormMessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a GORM-backed MessageRepository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Save(ctx context.Context, senderIdentifier, targetIdentifier string, payload []byte, node, marker string, receivedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sender, target IdentityRecord
		if err := tx.Where("participant_identifier = ?", senderIdentifier).First(&sender).Error; err != nil {
			return fmt.Errorf("repository: locating sender identity %q: %w", senderIdentifier, err)
		}
		if err := tx.Where("participant_identifier = ?", targetIdentifier).First(&target).Error; err != nil {
			return fmt.Errorf("repository: locating target identity %q: %w", targetIdentifier, err)
		}

		record := DirectMessageRecord{
			SenderID:   sender.ID,
			TargetID:   target.ID,
			Message:    payload,
			ReceivedAt: receivedAt,
			Node:       node,
			Marker:     marker,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("repository: saving direct message marker %q: %w", marker, err)
		}
		return nil
	})
}
