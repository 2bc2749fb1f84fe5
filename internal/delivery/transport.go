// Package delivery routes notification attempts to the correct push
// transport and normalizes provider failures into a common taxonomy.
package delivery

import (
	"context"
	"fmt"

	"push-relay-backend/internal/model"
)

// Transport names, recorded on dispatch audit rows.
const (
	TransportCloudPush = "cloudPush"
	TransportWebPush   = "webPush"
)

// Error kinds.
const (
	KindInvalidToken     = "invalid_token"
	KindTransportFailure = "transport_failure"
	KindTimeout          = "timeout"
)

// Error is a provider failure normalized to a stable kind.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("delivery failed (%s)", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Payload is one notification attempt's content. MessageID and Origin are
// always embedded in the data section so the receiving client can correlate
// and deduplicate attempts.
type Payload struct {
	Title     string
	Body      string
	Icon      string
	Badge     string
	MessageID string
	Origin    string
	Data      map[string]any
}

// dataSection builds the client-visible data map with the correlation fields
// attached.
func (p *Payload) dataSection() map[string]any {
	data := make(map[string]any, len(p.Data)+2)
	for k, v := range p.Data {
		data[k] = v
	}
	data["messageId"] = p.MessageID
	data["origin"] = p.Origin
	return data
}

// Transport sends one notification through one provider.
type Transport interface {
	Name() string
	Send(ctx context.Context, sub *model.Subscription, payload *Payload) (providerMessageID string, err error)
}

// Result reports a completed delivery.
type Result struct {
	Transport         string
	ProviderMessageID string
}
