package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"push-relay-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push
// notification, so tests can substitute the provider call.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// webPushSender is the real implementation using the webpush library.
type webPushSender struct{}

func (s *webPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// WebPushTransport delivers through the Web Push protocol with the stored
// endpoint and key set.
type WebPushTransport struct {
	options *webpush.Options
	sender  NotificationSender
}

// NewWebPushTransport creates a web push transport with the given VAPID
// options.
func NewWebPushTransport(options *webpush.Options) *WebPushTransport {
	return &WebPushTransport{
		options: options,
		sender:  &webPushSender{},
	}
}

// Name implements Transport.
func (t *WebPushTransport) Name() string {
	return TransportWebPush
}

// Send implements Transport. Failures surface as transport_failure; a gone
// endpoint (404/410 from the push service) is logged so an operator job can
// prune it, the relay never auto-deletes.
func (t *WebPushTransport) Send(ctx context.Context, sub *model.Subscription, payload *Payload) (string, error) {
	body, err := json.Marshal(map[string]any{
		"title": payload.Title,
		"body":  payload.Body,
		"icon":  payload.Icon,
		"badge": payload.Badge,
		"data":  payload.dataSection(),
	})
	if err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}

	wpSub := &webpush.Subscription{
		Endpoint: sub.WebPushEndpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.AuthSecret,
		},
	}

	resp, err := t.sender.Send(ctx, body, wpSub, t.options)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		log.Printf("web push endpoint for subscription %s is gone (status %d)", sub.IdentityKey, resp.StatusCode)
		return "", &Error{Kind: KindTransportFailure, Err: fmt.Errorf("push service returned %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Kind: KindTransportFailure, Err: fmt.Errorf("push service returned %d", resp.StatusCode)}
	}

	// Web Push has no provider message ID; the Location header, when set,
	// points at the accepted message resource.
	return resp.Header.Get("Location"), nil
}
