package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"push-relay-backend/internal/model"
)

// ErrNotFound is returned when no row exists for the given key. Callers must
// map it to 404 semantics, never to an authorization failure.
var ErrNotFound = errors.New("not found")

// DeliveryTarget carries the transport credentials presented at registration.
// Exactly one transport's fields are expected per registration, but the store
// merges rather than replaces, so a device keeps credentials it registered
// earlier through the other transport.
type DeliveryTarget struct {
	FCMToken        string
	WebPushEndpoint string
	P256DH          string
	AuthSecret      string
}

// Store defines the interface for all database operations.
type Store interface {
	UpsertSubscription(ctx context.Context, identityKey, userID, origin string, target DeliveryTarget, deviceInfo string) (*model.Subscription, error)
	GetSubscription(ctx context.Context, identityKey string) (*model.Subscription, error)
	RevokeSubscription(ctx context.Context, identityKey, origin string) (*model.Subscription, error)

	GetTenantKey(ctx context.Context, key string) (*model.TenantKey, error)
	TouchTenantKeyUsage(ctx context.Context, key string) error

	AppendDispatchRecord(ctx context.Context, rec *model.DispatchRecord) error
	GetDispatchRecord(ctx context.Context, messageID string) (*model.DispatchRecord, error)
	ListConsentEvents(ctx context.Context, identityKey string) ([]model.ConsentEvent, error)

	Ping(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UpsertSubscription creates or merges the subscription for identityKey and
// grants the registering origin's permission. The insert-or-ignore on the
// primary key closes the race between two concurrent first registrations;
// after it, exactly one row exists and both writers merge into it.
func (s *gormStore) UpsertSubscription(ctx context.Context, identityKey, userID, origin string, target DeliveryTarget, deviceInfo string) (*model.Subscription, error) {
	now := time.Now().UTC()
	var out model.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := model.Subscription{
			IdentityKey: identityKey,
			UserID:      userID,
			Origin:      origin,
			Permissions: model.PermissionMap{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity_key"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		var sub model.Subscription
		if err := tx.First(&sub, "identity_key = ?", identityKey).Error; err != nil {
			return err
		}

		// Merge: new transport fields overwrite same-named old fields, the
		// other transport's prior credentials are preserved.
		if target.FCMToken != "" {
			sub.FCMToken = target.FCMToken
		}
		if target.WebPushEndpoint != "" {
			sub.WebPushEndpoint = target.WebPushEndpoint
			sub.P256DH = target.P256DH
			sub.AuthSecret = target.AuthSecret
		}
		if deviceInfo != "" {
			sub.DeviceInfo = deviceInfo
		}
		if sub.Permissions == nil {
			sub.Permissions = model.PermissionMap{}
		}
		sub.Permissions[origin] = model.Permission{Granted: true, GrantedAt: now}
		sub.Active = true
		sub.UpdatedAt = now

		if err := tx.Save(&sub).Error; err != nil {
			return err
		}

		event := model.ConsentEvent{
			Type:        model.ConsentEventRegistered,
			IdentityKey: identityKey,
			Origin:      origin,
			Timestamp:   now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscription retrieves a subscription by identity key.
func (s *gormStore) GetSubscription(ctx context.Context, identityKey string) (*model.Subscription, error) {
	var sub model.Subscription
	if err := s.db.WithContext(ctx).First(&sub, "identity_key = ?", identityKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// RevokeSubscription withdraws the origin's consent. The row is never
// deleted; once the last granted origin revokes, the subscription only goes
// inactive so the audit trail stays intact.
func (s *gormStore) RevokeSubscription(ctx context.Context, identityKey, origin string) (*model.Subscription, error) {
	now := time.Now().UTC()
	var out model.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.Subscription
		if err := tx.First(&sub, "identity_key = ?", identityKey).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		delete(sub.Permissions, origin)

		active := false
		for _, p := range sub.Permissions {
			if p.Granted {
				active = true
				break
			}
		}
		sub.Active = active
		sub.UpdatedAt = now

		// Save skips zero-valued fields on partial structs; Select forces the
		// recomputed Active through even when it turned false.
		if err := tx.Model(&sub).Select("Permissions", "Active", "UpdatedAt").Updates(&sub).Error; err != nil {
			return err
		}

		event := model.ConsentEvent{
			Type:        model.ConsentEventRevoked,
			IdentityKey: identityKey,
			Origin:      origin,
			Timestamp:   now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTenantKey retrieves an issued API key record.
func (s *gormStore) GetTenantKey(ctx context.Context, key string) (*model.TenantKey, error) {
	var tk model.TenantKey
	if err := s.db.WithContext(ctx).First(&tk, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tk, nil
}

// TouchTenantKeyUsage records usage attribution for a key. Best-effort from
// the caller's perspective; errors are surfaced for logging only.
func (s *gormStore) TouchTenantKeyUsage(ctx context.Context, key string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&model.TenantKey{}).
		Where("key = ?", key).
		Updates(map[string]any{
			"last_used_at": now,
			"use_count":    gorm.Expr("use_count + 1"),
		}).Error
}

// AppendDispatchRecord writes one audit row per notification attempt.
// Append-only: message IDs are unique per attempt, so conflicts indicate a
// caller bug and surface as errors.
func (s *gormStore) AppendDispatchRecord(ctx context.Context, rec *model.DispatchRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetDispatchRecord retrieves the audit row for a message ID.
func (s *gormStore) GetDispatchRecord(ctx context.Context, messageID string) (*model.DispatchRecord, error) {
	var rec model.DispatchRecord
	if err := s.db.WithContext(ctx).First(&rec, "message_id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListConsentEvents returns the consent history for an identity key in write
// order.
func (s *gormStore) ListConsentEvents(ctx context.Context, identityKey string) ([]model.ConsentEvent, error) {
	var events []model.ConsentEvent
	err := s.db.WithContext(ctx).
		Where("identity_key = ?", identityKey).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Ping reports store reachability for the readiness probe.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
