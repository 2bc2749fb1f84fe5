package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CapabilitySet is the set of operations granted to an API key, stored as a
// JSON text column.
type CapabilitySet []string

// Value implements driver.Valuer.
func (c CapabilitySet) Value() (driver.Value, error) {
	if c == nil {
		c = CapabilitySet{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *CapabilitySet) Scan(value any) error {
	if value == nil {
		*c = CapabilitySet{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported capability set source type %T", value)
	}
}

// Contains reports whether the set grants the named capability.
func (c CapabilitySet) Contains(capability string) bool {
	for _, v := range c {
		if v == capability {
			return true
		}
	}
	return false
}

// TenantKey is one issued API key. Keys are created by an out-of-band
// administrative process; the relay only reads them, except for usage
// attribution fields.
type TenantKey struct {
	Key          string        `gorm:"primaryKey;size:255"`
	Origin       string        `gorm:"index;size:256;not null"`
	Capabilities CapabilitySet `gorm:"type:text;not null"`
	Environment  string        `gorm:"size:32;not null"`
	Active       bool          `gorm:"not null"`
	ExpiresAt    *time.Time
	CreatedBy    string `gorm:"size:256"`

	// Usage attribution, updated asynchronously on successful authorization.
	LastUsedAt *time.Time
	UseCount   int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
