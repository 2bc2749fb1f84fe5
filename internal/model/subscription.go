package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Permission records one origin's consent grant on a subscription.
type Permission struct {
	Granted   bool      `json:"granted"`
	GrantedAt time.Time `json:"granted_at"`
}

// PermissionMap maps a tenant origin to its consent grant. Stored as a JSON
// text column so the map can grow to multiple origins without a schema change.
type PermissionMap map[string]Permission

// Value implements driver.Valuer.
func (m PermissionMap) Value() (driver.Value, error) {
	if m == nil {
		m = PermissionMap{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *PermissionMap) Scan(value any) error {
	if value == nil {
		*m = PermissionMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported permission map source type %T", value)
	}
}

// Subscription holds one user's delivery credentials and per-origin consent
// state. The primary key is the derived identity key, so repeated
// registrations for the same (user, origin) pair collide onto one row.
type Subscription struct {
	IdentityKey string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"index;size:256;not null"`
	Origin      string `gorm:"index;size:256;not null"`

	// Delivery targets. At least one transport must be populated; both may
	// coexist when the client re-registered through a different transport.
	FCMToken        string `gorm:"column:fcm_token;size:512"`
	WebPushEndpoint string `gorm:"size:1024"`
	P256DH          string `gorm:"column:p256dh;size:256"`
	AuthSecret      string `gorm:"size:256"`

	DeviceInfo  string        `gorm:"size:512"`
	Permissions PermissionMap `gorm:"type:text;not null"`
	Active      bool          `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// HasCloudPushTarget reports whether a cloud push token is present.
func (s *Subscription) HasCloudPushTarget() bool {
	return s.FCMToken != ""
}

// HasWebPushTarget reports whether the complete Web Push key set is present.
func (s *Subscription) HasWebPushTarget() bool {
	return s.WebPushEndpoint != "" && s.P256DH != "" && s.AuthSecret != ""
}
