// Package dispatch orchestrates one notification send end to end:
// authorize, look up the subscription, check consent, deliver, record.
package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"push-relay-backend/internal/auth"
	"push-relay-backend/internal/consent"
	"push-relay-backend/internal/delivery"
	"push-relay-backend/internal/model"
	"push-relay-backend/internal/store"
)

// ErrCapabilityDenied is returned when the tenant's key does not hold the
// notifications:send capability.
var ErrCapabilityDenied = errors.New("key lacks notifications:send capability")

// Notification is the caller-supplied content for one send.
type Notification struct {
	Title string
	Body  string
	Icon  string
	Badge string
	Data  map[string]any
}

// Receipt confirms a delivered notification.
type Receipt struct {
	MessageID string
	Timestamp time.Time
}

// Service runs the send state machine. Strictly sequential per request, no
// automatic retries; every attempt gets a fresh message ID so callers can
// retry safely.
type Service struct {
	store   store.Store
	router  *delivery.Router
	timeout time.Duration
}

// NewService creates a dispatch service.
func NewService(s store.Store, router *delivery.Router, timeout time.Duration) *Service {
	return &Service{store: s, router: router, timeout: timeout}
}

// Send delivers one notification to the subscription behind userKey on
// behalf of the tenant. Audit rows are written once a subscription was
// found; auth failures and unknown keys leave no dispatch record.
func (s *Service) Send(ctx context.Context, tenant *auth.TenantContext, userKey string, n Notification) (*Receipt, error) {
	if !tenant.Allows(auth.CapabilitySend) {
		return nil, ErrCapabilityDenied
	}

	sub, err := s.store.GetSubscription(ctx, userKey)
	if err != nil {
		return nil, err
	}

	messageID := uuid.NewString()

	if err := consent.CheckSend(sub, tenant.Origin); err != nil {
		var denial *consent.Denial
		reason := ""
		if errors.As(err, &denial) {
			reason = denial.Reason
		}
		s.record(ctx, &model.DispatchRecord{
			MessageID:   messageID,
			IdentityKey: sub.IdentityKey,
			Origin:      tenant.Origin,
			Title:       n.Title,
			Body:        n.Body,
			Status:      model.DispatchStatusFailed,
			Reason:      reason,
			Timestamp:   time.Now().UTC(),
		})
		return nil, err
	}

	payload := &delivery.Payload{
		Title:     n.Title,
		Body:      n.Body,
		Icon:      n.Icon,
		Badge:     n.Badge,
		MessageID: messageID,
		Origin:    tenant.Origin,
		Data:      n.Data,
	}

	deliverCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.router.Deliver(deliverCtx, sub, payload)

	now := time.Now().UTC()
	rec := &model.DispatchRecord{
		MessageID:   messageID,
		IdentityKey: sub.IdentityKey,
		Origin:      tenant.Origin,
		Title:       n.Title,
		Body:        n.Body,
		Timestamp:   now,
	}

	if err != nil {
		rec.Status = model.DispatchStatusFailed
		var derr *delivery.Error
		if errors.As(err, &derr) {
			rec.Reason = derr.Kind
		}
		s.record(ctx, rec)
		return nil, err
	}

	rec.Status = model.DispatchStatusSent
	rec.Transport = result.Transport
	s.record(ctx, rec)

	return &Receipt{MessageID: messageID, Timestamp: now}, nil
}

// Status returns the audit record for a message ID.
func (s *Service) Status(ctx context.Context, messageID string) (*model.DispatchRecord, error) {
	return s.store.GetDispatchRecord(ctx, messageID)
}

// record appends the dispatch audit row. Best-effort: an audit failure is
// logged and never changes the outcome reported to the caller. The write
// runs detached from request cancellation so an expired delivery deadline
// cannot also kill the audit row.
func (s *Service) record(ctx context.Context, rec *model.DispatchRecord) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.AppendDispatchRecord(auditCtx, rec); err != nil {
		log.Printf("failed to append dispatch record %s: %v", rec.MessageID, err)
	}
}
