package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"push-relay-backend/internal/auth"
	"push-relay-backend/internal/consent"
	"push-relay-backend/internal/delivery"
	"push-relay-backend/internal/model"
	"push-relay-backend/internal/store"
)

type fakeTransport struct {
	name  string
	calls int
	err   error
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(ctx context.Context, sub *model.Subscription, payload *delivery.Payload) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "provider-id", nil
}

// failingAuditStore wraps a real store but refuses dispatch-record appends.
type failingAuditStore struct {
	store.Store
}

func (f *failingAuditStore) AppendDispatchRecord(ctx context.Context, rec *model.DispatchRecord) error {
	return errors.New("audit backend down")
}

func newTestStore(t *testing.T) (store.Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Subscription{},
		&model.TenantKey{},
		&model.DispatchRecord{},
		&model.ConsentEvent{},
	))
	return store.NewGormStore(db), db
}

func sendTenant() *auth.TenantContext {
	return &auth.TenantContext{
		Origin:       "a.example",
		Capabilities: model.CapabilitySet{auth.CapabilitySend},
		Environment:  "production",
		KeyID:        "key-1",
	}
}

func newService(s store.Store, cloud, web delivery.Transport) *Service {
	return NewService(s, delivery.NewRouter(cloud, web), 5*time.Second)
}

func registerSub(t *testing.T, s store.Store) string {
	t.Helper()
	sub, err := s.UpsertSubscription(context.Background(), "k1", "u1", "a.example",
		store.DeliveryTarget{FCMToken: "tok1"}, "")
	require.NoError(t, err)
	return sub.IdentityKey
}

func dispatchRecordCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&model.DispatchRecord{}).Count(&count).Error)
	return count
}

func TestSend_DeliversAndRecords(t *testing.T) {
	s, _ := newTestStore(t)
	cloud := &fakeTransport{name: delivery.TransportCloudPush}
	svc := newService(s, cloud, &fakeTransport{name: delivery.TransportWebPush})
	key := registerSub(t, s)

	receipt, err := svc.Send(context.Background(), sendTenant(), key, Notification{Title: "Hi", Body: "there"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.MessageID)
	assert.Equal(t, 1, cloud.calls)

	rec, err := svc.Status(context.Background(), receipt.MessageID)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchStatusSent, rec.Status)
	assert.Equal(t, delivery.TransportCloudPush, rec.Transport)
	assert.Equal(t, "a.example", rec.Origin)
	assert.Equal(t, key, rec.IdentityKey)
}

func TestSend_FreshMessageIDPerAttempt(t *testing.T) {
	s, _ := newTestStore(t)
	svc := newService(s, &fakeTransport{name: delivery.TransportCloudPush}, &fakeTransport{name: delivery.TransportWebPush})
	key := registerSub(t, s)

	first, err := svc.Send(context.Background(), sendTenant(), key, Notification{Title: "Hi", Body: "x"})
	require.NoError(t, err)
	second, err := svc.Send(context.Background(), sendTenant(), key, Notification{Title: "Hi", Body: "x"})
	require.NoError(t, err)

	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestSend_CapabilityDenied(t *testing.T) {
	s, db := newTestStore(t)
	svc := newService(s, &fakeTransport{name: delivery.TransportCloudPush}, &fakeTransport{name: delivery.TransportWebPush})
	key := registerSub(t, s)

	tenant := sendTenant()
	tenant.Capabilities = model.CapabilitySet{auth.CapabilityManage}

	_, err := svc.Send(context.Background(), tenant, key, Notification{Title: "Hi"})
	assert.ErrorIs(t, err, ErrCapabilityDenied)
	assert.EqualValues(t, 0, dispatchRecordCount(t, db))
}

func TestSend_UnknownKeyWritesNoRecord(t *testing.T) {
	s, db := newTestStore(t)
	svc := newService(s, &fakeTransport{name: delivery.TransportCloudPush}, &fakeTransport{name: delivery.TransportWebPush})

	_, err := svc.Send(context.Background(), sendTenant(), "missing", Notification{Title: "Hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualValues(t, 0, dispatchRecordCount(t, db))
}

func TestSend_ConsentDeniedRecordsFailure(t *testing.T) {
	s, db := newTestStore(t)
	svc := newService(s, &fakeTransport{name: delivery.TransportCloudPush}, &fakeTransport{name: delivery.TransportWebPush})
	key := registerSub(t, s)

	tenant := sendTenant()
	tenant.Origin = "b.example" // never granted

	_, err := svc.Send(context.Background(), tenant, key, Notification{Title: "Hi"})
	var denial *consent.Denial
	require.ErrorAs(t, err, &denial)
	assert.Equal(t, consent.ReasonNoPermission, denial.Reason)

	var rec model.DispatchRecord
	require.NoError(t, db.First(&rec, "identity_key = ?", key).Error)
	assert.Equal(t, model.DispatchStatusFailed, rec.Status)
	assert.Equal(t, consent.ReasonNoPermission, rec.Reason)
	assert.Equal(t, "b.example", rec.Origin)
}

func TestSend_DeliveryFailureRecordsReason(t *testing.T) {
	s, db := newTestStore(t)
	cloud := &fakeTransport{
		name: delivery.TransportCloudPush,
		err:  &delivery.Error{Kind: delivery.KindInvalidToken},
	}
	svc := newService(s, cloud, &fakeTransport{name: delivery.TransportWebPush})
	key := registerSub(t, s)

	_, err := svc.Send(context.Background(), sendTenant(), key, Notification{Title: "Hi"})
	var derr *delivery.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, delivery.KindInvalidToken, derr.Kind)

	var rec model.DispatchRecord
	require.NoError(t, db.First(&rec, "identity_key = ?", key).Error)
	assert.Equal(t, model.DispatchStatusFailed, rec.Status)
	assert.Equal(t, delivery.KindInvalidToken, rec.Reason)
}

func TestSend_AuditFailureDoesNotMaskOutcome(t *testing.T) {
	s, _ := newTestStore(t)
	svc := newService(&failingAuditStore{Store: s},
		&fakeTransport{name: delivery.TransportCloudPush},
		&fakeTransport{name: delivery.TransportWebPush})
	key := registerSub(t, s)

	receipt, err := svc.Send(context.Background(), sendTenant(), key, Notification{Title: "Hi"})
	require.NoError(t, err, "a failed audit write must not fail a successful dispatch")
	assert.NotEmpty(t, receipt.MessageID)
}
