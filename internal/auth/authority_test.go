package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"push-relay-backend/config"
	"push-relay-backend/internal/model"
	"push-relay-backend/internal/store"
)

const validKey = "live-key-0123456789abcdef0123456789abcdef"

func newTestAuthority(t *testing.T, cfg config.AuthConfig) (*Authority, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.TenantKey{}))

	if cfg.MinKeyLength == 0 {
		cfg.MinKeyLength = 32
	}
	if cfg.KeyCacheSeconds == 0 {
		cfg.KeyCacheSeconds = 30
	}
	return NewAuthority(store.NewGormStore(db), cfg), db
}

func seedKey(t *testing.T, db *gorm.DB, tk model.TenantKey) {
	t.Helper()
	require.NoError(t, db.Create(&tk).Error)
}

func TestAuthorize_Success(t *testing.T) {
	authority, db := newTestAuthority(t, config.AuthConfig{})
	seedKey(t, db, model.TenantKey{
		Key:          validKey,
		Origin:       "a.example",
		Capabilities: model.CapabilitySet{CapabilitySend, CapabilityManage},
		Environment:  "production",
		Active:       true,
	})

	tenant, err := authority.Authorize(context.Background(), validKey)
	require.NoError(t, err)
	assert.Equal(t, "a.example", tenant.Origin)
	assert.Equal(t, validKey, tenant.KeyID)
	assert.True(t, tenant.Allows(CapabilitySend))
	assert.True(t, tenant.Allows(CapabilityManage))
	assert.False(t, tenant.Allows("admin:everything"))
}

func TestAuthorize_ErrorKinds(t *testing.T) {
	authority, db := newTestAuthority(t, config.AuthConfig{})

	expired := time.Now().Add(-time.Hour)
	seedKey(t, db, model.TenantKey{
		Key: "deactivated-0123456789abcdef012345678", Origin: "a.example",
		Capabilities: model.CapabilitySet{}, Active: false,
	})
	seedKey(t, db, model.TenantKey{
		Key: "expired-key-0123456789abcdef012345678", Origin: "a.example",
		Capabilities: model.CapabilitySet{}, Active: true, ExpiresAt: &expired,
	})

	cases := []struct {
		name         string
		presentedKey string
		wantKind     string
	}{
		{"missing", "", KindMissing},
		{"malformed", "too-short", KindMalformed},
		{"invalid", "unknown-key-0123456789abcdef012345678", KindInvalid},
		{"deactivated", "deactivated-0123456789abcdef012345678", KindDeactivated},
		{"expired", "expired-key-0123456789abcdef012345678", KindExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := authority.Authorize(context.Background(), tc.presentedKey)
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tc.wantKind, authErr.Kind)
		})
	}
}

func TestAuthorize_DevSentinel(t *testing.T) {
	authority, _ := newTestAuthority(t, config.AuthConfig{
		Environment:    "development",
		DevSentinelKey: "dev-key",
	})

	tenant, err := authority.Authorize(context.Background(), "dev-key")
	require.NoError(t, err)
	assert.Equal(t, "development", tenant.Environment)
	assert.True(t, tenant.Allows(CapabilitySend))
	assert.True(t, tenant.Allows(CapabilityManage))
}

func TestAuthorize_SentinelDisabledOutsideDevelopment(t *testing.T) {
	// Production configs never carry a sentinel; a short key is malformed.
	authority, _ := newTestAuthority(t, config.AuthConfig{Environment: "production"})

	_, err := authority.Authorize(context.Background(), "dev-key")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindMalformed, authErr.Kind)
}

func TestAuthorize_RecordsUsage(t *testing.T) {
	authority, db := newTestAuthority(t, config.AuthConfig{})
	seedKey(t, db, model.TenantKey{
		Key: validKey, Origin: "a.example",
		Capabilities: model.CapabilitySet{CapabilitySend}, Active: true,
	})

	_, err := authority.Authorize(context.Background(), validKey)
	require.NoError(t, err)

	// The usage write is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var tk model.TenantKey
		require.NoError(t, db.First(&tk, "key = ?", validKey).Error)
		if tk.UseCount > 0 {
			assert.NotNil(t, tk.LastUsedAt)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("usage attribution was never written")
}

func TestAuthorize_CachesLookups(t *testing.T) {
	authority, db := newTestAuthority(t, config.AuthConfig{})
	seedKey(t, db, model.TenantKey{
		Key: validKey, Origin: "a.example",
		Capabilities: model.CapabilitySet{CapabilitySend}, Active: true,
	})

	_, err := authority.Authorize(context.Background(), validKey)
	require.NoError(t, err)

	// Dropping the row does not invalidate the cache within its TTL.
	require.NoError(t, db.Delete(&model.TenantKey{Key: validKey}).Error)

	_, err = authority.Authorize(context.Background(), validKey)
	assert.NoError(t, err)
}
