package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"push-relay-backend/config"
	"push-relay-backend/internal/model"
)

// fcmResponse models the provider's send response.
type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Token-invalid error classes from the provider. These map to invalid_token
// so callers get a stable signal to prune dead tokens.
var fcmInvalidTokenErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MismatchSenderId":    true,
}

// CloudPushTransport delivers through the cloud push-messaging provider's
// HTTP API.
type CloudPushTransport struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

// NewCloudPushTransport creates a cloud push transport from config.
func NewCloudPushTransport(cfg config.FCMConfig) *CloudPushTransport {
	return &CloudPushTransport{
		endpoint:  cfg.Endpoint,
		serverKey: cfg.ServerKey,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Transport.
func (t *CloudPushTransport) Name() string {
	return TransportCloudPush
}

// Send implements Transport.
func (t *CloudPushTransport) Send(ctx context.Context, sub *model.Subscription, payload *Payload) (string, error) {
	body, err := json.Marshal(map[string]any{
		"to": sub.FCMToken,
		"notification": map[string]any{
			"title": payload.Title,
			"body":  payload.Body,
			"icon":  payload.Icon,
			"badge": payload.Badge,
		},
		"data": payload.dataSection(),
	})
	if err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+t.serverKey)

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Kind: KindTimeout, Err: err}
		}
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &Error{Kind: KindTransportFailure, Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, respBody)}
	}

	var parsed fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: fmt.Errorf("malformed provider response: %w", err)}
	}
	if len(parsed.Results) == 0 {
		return "", &Error{Kind: KindTransportFailure, Err: errors.New("provider returned no results")}
	}

	result := parsed.Results[0]
	if result.Error != "" {
		if fcmInvalidTokenErrors[result.Error] {
			return "", &Error{Kind: KindInvalidToken, Err: fmt.Errorf("provider rejected token: %s", result.Error)}
		}
		return "", &Error{Kind: KindTransportFailure, Err: fmt.Errorf("provider error: %s", result.Error)}
	}

	return result.MessageID, nil
}
