package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"push-relay-backend/internal/consent"
	"push-relay-backend/internal/delivery"
	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/store"
)

type notificationBody struct {
	Title string         `json:"title" binding:"required,max=100"`
	Body  string         `json:"body" binding:"required,max=200"`
	Icon  string         `json:"icon"`
	Badge string         `json:"badge"`
	Data  map[string]any `json:"data"`
}

type sendRequest struct {
	UserKey      string           `json:"userKey" binding:"required"`
	Notification notificationBody `json:"notification" binding:"required"`
}

// SendNotification dispatches one notification attempt to the subscription
// behind the requested user key.
func (h *Handler) SendNotification(c *gin.Context) {
	tenant := tenantFrom(c)

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.dispatcher.Send(c.Request.Context(), tenant, req.UserKey, dispatch.Notification{
		Title: req.Notification.Title,
		Body:  req.Notification.Body,
		Icon:  req.Notification.Icon,
		Badge: req.Notification.Badge,
		Data:  req.Notification.Data,
	})
	if err != nil {
		h.writeSendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": receipt.MessageID,
		"timestamp": receipt.Timestamp,
	})
}

// writeSendError maps dispatch failures to the boundary's status codes.
// Token-invalid deliveries get a distinct, stable 410 so callers can prune
// dead tokens.
func (h *Handler) writeSendError(c *gin.Context, err error) {
	var denial *consent.Denial
	var deliveryErr *delivery.Error

	switch {
	case errors.Is(err, dispatch.ErrCapabilityDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "key lacks notifications:send capability"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.As(err, &denial):
		c.JSON(http.StatusForbidden, gin.H{"error": denial.Reason})
	case errors.As(err, &deliveryErr):
		switch deliveryErr.Kind {
		case delivery.KindInvalidToken:
			c.JSON(http.StatusGone, gin.H{"error": delivery.KindInvalidToken})
		case delivery.KindTimeout:
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": delivery.KindTimeout})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": delivery.KindTransportFailure})
		}
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetNotificationStatus returns the audit record for a message ID.
func (h *Handler) GetNotificationStatus(c *gin.Context) {
	messageID := c.Param("messageId")

	rec, err := h.dispatcher.Status(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messageId": rec.MessageID,
		"status":    rec.Status,
		"origin":    rec.Origin,
		"timestamp": rec.Timestamp,
	})
}
