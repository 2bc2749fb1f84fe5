package delivery

import (
	"context"
	"errors"

	"push-relay-backend/internal/model"
)

// ErrNoTransport is returned when the subscription carries no usable
// delivery target. The consent guard normally rejects these before routing.
var ErrNoTransport = errors.New("subscription has no delivery target")

// Router selects and invokes the transport matching the credentials stored
// on the subscription. One attempt, one transport, one outcome: a cloud push
// failure is never retried over web push within the same attempt.
type Router struct {
	cloudPush Transport
	webPush   Transport
}

// NewRouter creates a delivery router over the two transports.
func NewRouter(cloudPush, webPush Transport) *Router {
	return &Router{cloudPush: cloudPush, webPush: webPush}
}

// Deliver sends the payload through the preferred transport. The cloud push
// token wins when present; web push is used otherwise.
func (r *Router) Deliver(ctx context.Context, sub *model.Subscription, payload *Payload) (*Result, error) {
	var transport Transport
	switch {
	case sub.HasCloudPushTarget():
		transport = r.cloudPush
	case sub.HasWebPushTarget():
		transport = r.webPush
	default:
		return nil, ErrNoTransport
	}

	providerMessageID, err := transport.Send(ctx, sub, payload)
	if err != nil {
		return nil, err
	}
	return &Result{
		Transport:         transport.Name(),
		ProviderMessageID: providerMessageID,
	}, nil
}
