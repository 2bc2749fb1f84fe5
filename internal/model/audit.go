package model

import "time"

// Dispatch record statuses.
const (
	DispatchStatusSent   = "sent"
	DispatchStatusFailed = "failed"
)

// Consent event types.
const (
	ConsentEventRegistered = "registered"
	ConsentEventRevoked    = "revoked"
)

// DispatchRecord is the append-only audit row for one notification attempt.
// Rows are write-once; nothing in the relay updates or deletes them.
type DispatchRecord struct {
	MessageID   string    `gorm:"primaryKey;size:64"`
	IdentityKey string    `gorm:"index;size:64;not null"`
	Origin      string    `gorm:"size:256;not null"`
	Title       string    `gorm:"size:256"`
	Body        string    `gorm:"size:512"`
	Status      string    `gorm:"size:16;not null"`
	Reason      string    `gorm:"size:64"`
	Transport   string    `gorm:"size:16"`
	Timestamp   time.Time `gorm:"not null"`
}

// ConsentEvent is the append-only audit row for one registration or
// revocation.
type ConsentEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Type        string    `gorm:"size:16;not null"`
	IdentityKey string    `gorm:"index;size:64;not null"`
	Origin      string    `gorm:"size:256;not null"`
	Timestamp   time.Time `gorm:"not null"`
}
