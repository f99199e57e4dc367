package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())

	assert.False(t, policy.ShouldRetry(1, nil))
	assert.True(t, policy.ShouldRetry(1, errors.New("boom")))
	assert.True(t, policy.ShouldRetry(4, errors.New("boom")))
	assert.False(t, policy.ShouldRetry(5, errors.New("boom")))
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())

	assert.Equal(t, 1*time.Second, policy.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextRetryDelay(3))
	assert.Equal(t, 8*time.Second, policy.NextRetryDelay(4))

	// capped at MaxDelay
	assert.Equal(t, 5*time.Minute, policy.NextRetryDelay(12))
}

func seedRetryingDelivery(t *testing.T, deliveries *DeliveryStore, dest *Destination) *Delivery {
	t.Helper()
	due := time.Now().UTC().Add(-time.Minute)
	delivery := &Delivery{
		ID:            "retry-1",
		DestinationID: dest.ID,
		WorkspaceID:   dest.WorkspaceID,
		EventID:       "ev-1",
		EventType:     EventMemberAdded,
		URL:           dest.URL,
		Payload:       []byte(`{"type":"member.added"}`),
		Status:        DeliveryStatusRetrying,
		Attempts:      1,
		NextRetryAt:   &due,
	}
	require.NoError(t, deliveries.Create(context.Background(), delivery))
	return delivery
}

func TestRetryWorkerResendsRetainedPayload(t *testing.T) {
	dispatcher, store, deliveries := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}}
	require.NoError(t, store.CreateDestination(ctx, d))
	seedRetryingDelivery(t, deliveries, d)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	worker := NewRetryWorker(dispatcher, time.Second, logger)
	require.NoError(t, worker.RunOnce(ctx))

	got := requests()
	require.Len(t, got, 1)

	// retries resend the exact bytes the first attempt signed
	assert.Equal(t, []byte(`{"type":"member.added"}`), got[0].body)
	assert.True(t, VerifySignature(got[0].body, got[0].headers.Get("X-Atrium-Signature"), d.Secret))

	list, err := deliveries.ListByDestination(ctx, 1, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DeliveryStatusSuccess, list[0].Status)
	assert.Equal(t, 2, list[0].Attempts)

	// nothing left to retry
	due, err := deliveries.GetPendingRetries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRetryWorkerExhaustsAttempts(t *testing.T) {
	dispatcher, store, deliveries := newTestDispatcher(t)
	ctx := context.Background()

	srv, _ := newCaptureServer(t, http.StatusInternalServerError)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}}
	require.NoError(t, store.CreateDestination(ctx, d))

	delivery := seedRetryingDelivery(t, deliveries, d)
	delivery.Attempts = 4 // next attempt is the last
	require.NoError(t, deliveries.Update(ctx, delivery))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	worker := NewRetryWorker(dispatcher, time.Second, logger)
	require.NoError(t, worker.RunOnce(ctx))

	list, err := deliveries.ListByDestination(ctx, 1, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DeliveryStatusFailed, list[0].Status)
	assert.Equal(t, 5, list[0].Attempts)
	assert.Nil(t, list[0].NextRetryAt)
	assert.NotNil(t, list[0].CompletedAt)
}

func TestRetryWorkerFailsOrphanedDeliveries(t *testing.T) {
	dispatcher, store, deliveries := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}}
	require.NoError(t, store.CreateDestination(ctx, d))
	seedRetryingDelivery(t, deliveries, d)

	// destination disabled since the first attempt
	off := false
	_, err := store.UpdateDestination(ctx, 1, d.ID, &UpdateDestinationRequest{Active: &off})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	worker := NewRetryWorker(dispatcher, time.Second, logger)
	require.NoError(t, worker.RunOnce(ctx))

	assert.Empty(t, requests())

	list, err := deliveries.ListByDestination(ctx, 1, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DeliveryStatusFailed, list[0].Status)
	assert.Equal(t, "destination no longer deliverable", list[0].ErrorMessage)
}
