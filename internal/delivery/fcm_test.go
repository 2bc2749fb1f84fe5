package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-relay-backend/config"
	"push-relay-backend/internal/model"
)

func cloudPushSub() *model.Subscription {
	return &model.Subscription{IdentityKey: "k1", FCMToken: "tok1"}
}

func newFCMServer(t *testing.T, handler http.HandlerFunc) *CloudPushTransport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewCloudPushTransport(config.FCMConfig{
		Endpoint:  server.URL,
		ServerKey: "server-key",
	})
}

func TestCloudPushTransport_Send(t *testing.T) {
	transport := newFCMServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tok1", body["to"])
		notification := body["notification"].(map[string]any)
		assert.Equal(t, "Hi", notification["title"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "m1", data["messageId"])
		assert.Equal(t, "a.example", data["origin"])

		json.NewEncoder(w).Encode(map[string]any{
			"success": 1,
			"results": []map[string]any{{"message_id": "fcm-123"}},
		})
	})

	providerID, err := transport.Send(context.Background(), cloudPushSub(), &Payload{
		Title:     "Hi",
		Body:      "there",
		MessageID: "m1",
		Origin:    "a.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "fcm-123", providerID)
}

func TestCloudPushTransport_InvalidToken(t *testing.T) {
	for _, providerError := range []string{"NotRegistered", "InvalidRegistration", "MismatchSenderId"} {
		t.Run(providerError, func(t *testing.T) {
			transport := newFCMServer(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"failure": 1,
					"results": []map[string]any{{"error": providerError}},
				})
			})

			_, err := transport.Send(context.Background(), cloudPushSub(), &Payload{MessageID: "m1"})
			var derr *Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, KindInvalidToken, derr.Kind)
		})
	}
}

func TestCloudPushTransport_ProviderError(t *testing.T) {
	transport := newFCMServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"failure": 1,
			"results": []map[string]any{{"error": "InternalServerError"}},
		})
	})

	_, err := transport.Send(context.Background(), cloudPushSub(), &Payload{MessageID: "m1"})
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindTransportFailure, derr.Kind)
}

func TestCloudPushTransport_HTTPFailure(t *testing.T) {
	transport := newFCMServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := transport.Send(context.Background(), cloudPushSub(), &Payload{MessageID: "m1"})
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindTransportFailure, derr.Kind)
}

func TestCloudPushTransport_Timeout(t *testing.T) {
	transport := newFCMServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 1) // already expired
	defer cancel()

	_, err := transport.Send(ctx, cloudPushSub(), &Payload{MessageID: "m1"})
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindTimeout, derr.Kind)
}
