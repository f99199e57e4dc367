package billing

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

func signedPayload(t *testing.T, svc *PostgresService, event *ProviderEvent) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, SignatureHeader(payload, svc.now(), "test-secret")
}

func TestWebhookSubscriptionUpdated(t *testing.T) {
	svc, mock, plans := newTestService(t)

	periodEnd := time.Date(2026, time.September, 23, 0, 0, 0, 0, time.UTC)
	payload, header := signedPayload(t, svc, &ProviderEvent{
		ID:   "evt_1",
		Type: EventSubscriptionUpdated,
		Data: ProviderEventData{
			WorkspaceID:    1,
			CustomerID:     "cus_123",
			SubscriptionID: "sub_456",
			Plan:           workspaces.PlanEnterprise,
			Status:         SubscriptionStatusActive,
			PeriodEnd:      &periodEnd,
		},
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WithArgs(int64(1), "enterprise", "active", "cus_123", "sub_456", sqlmock.AnyArg(), periodEnd).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, svc.HandleProviderWebhook(context.Background(), payload, header))
	require.Len(t, plans.calls, 1)
	assert.Equal(t, planCall{1, workspaces.PlanEnterprise}, plans.calls[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	svc, mock, plans := newTestService(t)

	payload, header := signedPayload(t, svc, &ProviderEvent{
		Type: EventSubscriptionDeleted,
		Data: ProviderEventData{WorkspaceID: 1},
	})

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE subscriptions")).
		WillReturnRows(subscriptionRows(workspaces.PlanFree, SubscriptionStatusCanceled))

	require.NoError(t, svc.HandleProviderWebhook(context.Background(), payload, header))
	assert.Equal(t, []planCall{{1, workspaces.PlanFree}}, plans.calls)
}

func TestWebhookSubscriptionDeletedWithoutRowIsAcknowledged(t *testing.T) {
	svc, mock, _ := newTestService(t)

	payload, header := signedPayload(t, svc, &ProviderEvent{
		Type: EventSubscriptionDeleted,
		Data: ProviderEventData{WorkspaceID: 7},
	})

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE subscriptions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	assert.NoError(t, svc.HandleProviderWebhook(context.Background(), payload, header))
}

func TestWebhookPaymentFailedMarksPastDue(t *testing.T) {
	svc, mock, plans := newTestService(t)

	payload, header := signedPayload(t, svc, &ProviderEvent{
		Type: EventPaymentFailed,
		Data: ProviderEventData{WorkspaceID: 1},
	})

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subscriptions SET status")).
		WithArgs("past_due", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.HandleProviderWebhook(context.Background(), payload, header))
	assert.Empty(t, plans.calls, "past due keeps the plan")
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	svc, _, plans := newTestService(t)

	payload, header := signedPayload(t, svc, &ProviderEvent{
		Type: "charge.refunded",
		Data: ProviderEventData{WorkspaceID: 1},
	})

	assert.NoError(t, svc.HandleProviderWebhook(context.Background(), payload, header))
	assert.Empty(t, plans.calls)
}

func TestWebhookRejectsUnknownPlan(t *testing.T) {
	svc, _, _ := newTestService(t)

	payload, header := signedPayload(t, svc, &ProviderEvent{
		Type: EventSubscriptionUpdated,
		Data: ProviderEventData{WorkspaceID: 1, Plan: "platinum"},
	})

	err := svc.HandleProviderWebhook(context.Background(), payload, header)
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))
}

func TestWebhookSignatureVerification(t *testing.T) {
	svc, _, _ := newTestService(t)
	payload := []byte(`{"type":"customer.subscription.updated"}`)

	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"missing v1", "t=1787832000"},
		{"missing timestamp", "v1=deadbeef"},
		{"garbage timestamp", "t=soon,v1=deadbeef"},
		{"wrong signature", SignatureHeader(payload, svc.now(), "other-secret")},
		{"stale timestamp", SignatureHeader(payload, svc.now().Add(-time.Hour), "test-secret")},
		{"future timestamp", SignatureHeader(payload, svc.now().Add(time.Hour), "test-secret")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.HandleProviderWebhook(context.Background(), payload, tt.header)
			assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
		})
	}

	// A valid header for a different payload must not verify.
	err := svc.HandleProviderWebhook(context.Background(), []byte(`{}`),
		SignatureHeader(payload, svc.now(), "test-secret"))
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestWebhookRequiresConfiguredSecret(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewPostgresService(db, &planRecorder{}, "")

	err = svc.HandleProviderWebhook(context.Background(), []byte(`{}`), "t=1,v1=aa")
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestWebhookRejectsEventWithoutWorkspace(t *testing.T) {
	svc, _, _ := newTestService(t)

	payload, header := signedPayload(t, svc, &ProviderEvent{Type: EventSubscriptionUpdated})
	err := svc.HandleProviderWebhook(context.Background(), payload, header)
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))
}
