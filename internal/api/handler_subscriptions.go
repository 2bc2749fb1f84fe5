package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"push-relay-backend/internal/auth"
	"push-relay-backend/internal/consent"
	"push-relay-backend/internal/identity"
	"push-relay-backend/internal/store"
)

type webPushKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type registerRequest struct {
	UserID     string       `json:"userId" binding:"required"`
	FCMToken   string       `json:"fcmToken"`
	Endpoint   string       `json:"endpoint"`
	Keys       *webPushKeys `json:"keys"`
	DeviceInfo string       `json:"deviceInfo"`
}

// RegisterSubscription creates or merges the subscription for the
// authenticated origin's user. Registration is idempotent: the derived user
// key collides repeated registrations onto one record.
func (h *Handler) RegisterSubscription(c *gin.Context) {
	tenant := tenantFrom(c)
	if !tenant.Allows(auth.CapabilityManage) {
		c.JSON(http.StatusForbidden, gin.H{"error": "key lacks subscriptions:manage capability"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := store.DeliveryTarget{FCMToken: req.FCMToken}
	if req.Endpoint != "" && req.Keys != nil {
		target.WebPushEndpoint = req.Endpoint
		target.P256DH = req.Keys.P256DH
		target.AuthSecret = req.Keys.Auth
	}
	if target.FCMToken == "" && target.WebPushEndpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either fcmToken or endpoint with keys is required"})
		return
	}

	userKey := identity.DeriveKey(req.UserID, tenant.Origin)
	sub, err := h.store.UpsertSubscription(c.Request.Context(), userKey, req.UserID, tenant.Origin, target, req.DeviceInfo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "userKey": sub.IdentityKey})
}

// RevokeSubscription withdraws the authenticated origin's consent for the
// given user key.
func (h *Handler) RevokeSubscription(c *gin.Context) {
	tenant := tenantFrom(c)
	if !tenant.Allows(auth.CapabilityManage) {
		c.JSON(http.StatusForbidden, gin.H{"error": "key lacks subscriptions:manage capability"})
		return
	}

	userKey := c.Param("userKey")
	if _, err := h.store.RevokeSubscription(c.Request.Context(), userKey, tenant.Origin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPermissions reports the authenticated origin's consent state for the
// given user key.
func (h *Handler) GetPermissions(c *gin.Context) {
	tenant := tenantFrom(c)
	userKey := c.Param("userKey")

	sub, err := h.store.GetSubscription(c.Request.Context(), userKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	granted, grantedAt := consent.GrantedAt(sub, tenant.Origin)
	var timestamp any
	if granted {
		timestamp = grantedAt
	}

	c.JSON(http.StatusOK, gin.H{
		"userKey":       sub.IdentityKey,
		"origin":        tenant.Origin,
		"hasPermission": granted,
		"timestamp":     timestamp,
		"active":        sub.Active,
	})
}
