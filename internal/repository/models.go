// Package repository implements the external-contract persistence layer
// described in §6 EXTERNAL INTERFACES: identity/routing-identity pairs,
// per-device information, and the direct-message audit trail. These tables
// are out of the core's scope to design in depth; only their contract is
// specified, so the schema here follows §6 literally.
package repository

import "time"

// IdentityRecord backs identity_tb: the unique pairing between a
// participant's external identifier and the routing identity this node
// minted for it.
type IdentityRecord struct {
	ID                    uint   `gorm:"primaryKey"`
	ParticipantIdentifier string `gorm:"column:participant_identifier;uniqueIndex"`
	RoutingIdentifier     string `gorm:"column:routing_identifier;uniqueIndex"`
}

func (IdentityRecord) TableName() string { return "identity_tb" }

// DeviceInformationRecord backs device_information_tb: one row per
// successful identification, storing the reporting device's attributes as
// JSON (a device that identifies twice gets two rows).
type DeviceInformationRecord struct {
	ID         uint   `gorm:"primaryKey"`
	IdentityID uint   `gorm:"column:identity_id;index"`
	Information []byte `gorm:"column:information;type:jsonb"`
}

func (DeviceInformationRecord) TableName() string { return "device_information_tb" }

// DirectMessageRecord backs direct_message_tb: the audit trail of relayed
// direct messages, keyed by the marker minted on relay_direct_message.
type DirectMessageRecord struct {
	ID         uint      `gorm:"primaryKey"`
	SenderID   uint      `gorm:"column:sender_id;index"`
	TargetID   uint      `gorm:"column:target_id;index"`
	Message    []byte    `gorm:"column:message;type:bytea"`
	ReceivedAt time.Time `gorm:"column:received_at"`
	Node       string    `gorm:"column:node"`
	Marker     string    `gorm:"column:marker;index"`
}

func (DirectMessageRecord) TableName() string { return "direct_message_tb" }
