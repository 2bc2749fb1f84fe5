package api

import (
	"push-relay-backend/internal/auth"
	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	authority      *auth.Authority
	dispatcher     *dispatch.Service
	vapidPublicKey string
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, authority *auth.Authority, dispatcher *dispatch.Service, vapidPublicKey string) *Handler {
	return &Handler{
		store:          s,
		authority:      authority,
		dispatcher:     dispatcher,
		vapidPublicKey: vapidPublicKey,
	}
}
