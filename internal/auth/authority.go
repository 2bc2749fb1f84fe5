// Package auth resolves presented API keys to tenant identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"push-relay-backend/config"
	"push-relay-backend/internal/model"
	"push-relay-backend/internal/store"
)

// Capability strings granted to tenant keys.
const (
	CapabilitySend   = "notifications:send"
	CapabilityManage = "subscriptions:manage"
)

// AuthError kinds.
const (
	KindMissing     = "missing"
	KindMalformed   = "malformed"
	KindInvalid     = "invalid"
	KindDeactivated = "deactivated"
	KindExpired     = "expired"
)

// AuthError is returned when a presented key cannot be resolved to a tenant.
type AuthError struct {
	Kind string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization failed: %s", e.Kind)
}

// TenantContext identifies the tenant behind a successful authorization. It
// is passed explicitly down the call chain, never stashed in process state.
type TenantContext struct {
	Origin       string
	Capabilities model.CapabilitySet
	Environment  string
	// KeyID attributes the request to the specific presented key, not just
	// the origin, for rate limiting and abuse tracing.
	KeyID string
}

// Allows reports whether the tenant holds the named capability.
func (t *TenantContext) Allows(capability string) bool {
	return t.Capabilities.Contains(capability)
}

// Authority enforces the API key lifecycle at the authorization boundary.
type Authority struct {
	store    store.Store
	cfg      config.AuthConfig
	keyCache *cache.Cache
}

// NewAuthority creates a tenant authority backed by the key store.
func NewAuthority(s store.Store, cfg config.AuthConfig) *Authority {
	return &Authority{
		store:    s,
		cfg:      cfg,
		keyCache: cache.New(cfg.KeyCacheTTL(), 2*cfg.KeyCacheTTL()),
	}
}

// Authorize resolves presentedKey to a TenantContext. Deactivated and expired
// keys are rejected outright, never downgraded. On success a usage-audit
// write is triggered asynchronously; its failure never fails the request.
func (a *Authority) Authorize(ctx context.Context, presentedKey string) (*TenantContext, error) {
	if presentedKey == "" {
		return nil, &AuthError{Kind: KindMissing}
	}

	// The sentinel is configured out of production entirely; config.Load
	// clears it unless the environment is development.
	if a.cfg.DevSentinelKey != "" && presentedKey == a.cfg.DevSentinelKey {
		return &TenantContext{
			Origin:       "localhost",
			Capabilities: model.CapabilitySet{CapabilitySend, CapabilityManage},
			Environment:  "development",
			KeyID:        presentedKey,
		}, nil
	}

	if len(presentedKey) < a.cfg.MinKeyLength {
		return nil, &AuthError{Kind: KindMalformed}
	}

	tk, err := a.lookup(ctx, presentedKey)
	if err != nil {
		return nil, err
	}

	if !tk.Active {
		return nil, &AuthError{Kind: KindDeactivated}
	}
	if tk.ExpiresAt != nil && tk.ExpiresAt.Before(time.Now()) {
		return nil, &AuthError{Kind: KindExpired}
	}

	go a.recordUsage(tk.Key)

	return &TenantContext{
		Origin:       tk.Origin,
		Capabilities: tk.Capabilities,
		Environment:  tk.Environment,
		KeyID:        tk.Key,
	}, nil
}

// lookup fetches the key record, serving repeat authorizations from a short
// TTL cache. Deactivation and expiry are re-evaluated on every request, so
// the cache only delays visibility of out-of-band key edits by its TTL.
func (a *Authority) lookup(ctx context.Context, presentedKey string) (*model.TenantKey, error) {
	if cached, found := a.keyCache.Get(presentedKey); found {
		return cached.(*model.TenantKey), nil
	}

	tk, err := a.store.GetTenantKey(ctx, presentedKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &AuthError{Kind: KindInvalid}
		}
		return nil, err
	}

	a.keyCache.Set(presentedKey, tk, cache.DefaultExpiration)
	return tk, nil
}

// recordUsage attributes one successful authorization to the key.
func (a *Authority) recordUsage(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.TouchTenantKeyUsage(ctx, key); err != nil {
		log.Printf("failed to record usage for key %s...: %v", keyPrefix(key), err)
	}
}

// keyPrefix truncates a key for logging so full credentials never hit logs.
func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
