package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	headers http.Header
	body    []byte
}

// newCaptureServer returns a server recording every request it receives
func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{headers: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *Store, *DeliveryStore) {
	t.Helper()
	db := newTestDB(t)
	store := NewStore(db)
	deliveries := NewDeliveryStore(db)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewDispatcher(store, deliveries, logger), store, deliveries
}

func TestDispatchDeliversSignedPayload(t *testing.T) {
	dispatcher, store, deliveries := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{EventMemberAdded}}
	require.NoError(t, store.CreateDestination(ctx, d))

	event := &Event{
		Type:        EventMemberAdded,
		WorkspaceID: 1,
		Data:        map[string]interface{}{"email": "dev@acme.test", "role": "member"},
	}
	require.NoError(t, dispatcher.Dispatch(ctx, event))

	got := requests()
	require.Len(t, got, 1)

	assert.Equal(t, "member.added", got[0].headers.Get("X-Atrium-Event"))
	assert.Equal(t, event.ID, got[0].headers.Get("X-Atrium-Event-ID"))
	assert.NotEmpty(t, got[0].headers.Get("X-Atrium-Delivery"))
	assert.Equal(t, "application/json", got[0].headers.Get("Content-Type"))

	signature := got[0].headers.Get("X-Atrium-Signature")
	assert.True(t, VerifySignature(got[0].body, signature, d.Secret))
	assert.False(t, VerifySignature(got[0].body, signature, "whsec_wrong"))

	var received Event
	require.NoError(t, json.Unmarshal(got[0].body, &received))
	assert.Equal(t, EventMemberAdded, received.Type)
	assert.Equal(t, "dev@acme.test", received.Data["email"])

	list, err := deliveries.ListByDestination(ctx, 1, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DeliveryStatusSuccess, list[0].Status)
	assert.Equal(t, http.StatusOK, list[0].StatusCode)
	assert.Equal(t, 1, list[0].Attempts)
	assert.NotNil(t, list[0].CompletedAt)
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	dispatcher, store, _ := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{EventWorkspaceDeleted}}
	require.NoError(t, store.CreateDestination(ctx, d))

	require.NoError(t, dispatcher.Dispatch(ctx, &Event{Type: EventMemberAdded, WorkspaceID: 1}))
	assert.Empty(t, requests())
}

func TestDispatchFanOut(t *testing.T) {
	dispatcher, store, _ := newTestDispatcher(t)
	ctx := context.Background()

	srvA, requestsA := newCaptureServer(t, http.StatusOK)
	srvB, requestsB := newCaptureServer(t, http.StatusOK)
	require.NoError(t, store.CreateDestination(ctx, &Destination{WorkspaceID: 1, URL: srvA.URL, Events: []EventType{"member.*"}}))
	require.NoError(t, store.CreateDestination(ctx, &Destination{WorkspaceID: 1, URL: srvB.URL, Events: []EventType{"*"}}))

	require.NoError(t, dispatcher.Dispatch(ctx, &Event{Type: EventMemberRemoved, WorkspaceID: 1}))
	assert.Len(t, requestsA(), 1)
	assert.Len(t, requestsB(), 1)
}

func TestDispatchFailureSchedulesRetry(t *testing.T) {
	dispatcher, store, deliveries := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusBadGateway)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}}
	require.NoError(t, store.CreateDestination(ctx, d))

	require.NoError(t, dispatcher.Dispatch(ctx, &Event{Type: EventWebhookTest, WorkspaceID: 1}))
	require.Len(t, requests(), 1)

	list, err := deliveries.ListByDestination(ctx, 1, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, DeliveryStatusRetrying, list[0].Status)
	assert.Equal(t, http.StatusBadGateway, list[0].StatusCode)
	assert.Contains(t, list[0].ErrorMessage, "502")
	assert.Equal(t, 1, list[0].Attempts)
	require.NotNil(t, list[0].NextRetryAt)
	assert.True(t, list[0].NextRetryAt.After(time.Now().UTC().Add(-time.Second)))
	assert.Nil(t, list[0].CompletedAt)
}

func TestDispatchSlackFormat(t *testing.T) {
	dispatcher, store, _ := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}, Format: FormatSlack}
	require.NoError(t, store.CreateDestination(ctx, d))

	require.NoError(t, dispatcher.Dispatch(ctx, &Event{
		Type:        EventMemberAdded,
		WorkspaceID: 1,
		Data:        map[string]interface{}{"email": "dev@acme.test"},
	}))

	got := requests()
	require.Len(t, got, 1)

	var msg SlackMessage
	require.NoError(t, json.Unmarshal(got[0].body, &msg))
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "Member Added", msg.Attachments[0].Title)
	assert.Equal(t, "good", msg.Attachments[0].Color)

	// the signature covers the formatted payload, not the raw event
	assert.True(t, VerifySignature(got[0].body, got[0].headers.Get("X-Atrium-Signature"), d.Secret))
}

func TestDispatchTeamsFormat(t *testing.T) {
	dispatcher, store, _ := newTestDispatcher(t)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}, Format: FormatTeams}
	require.NoError(t, store.CreateDestination(ctx, d))

	require.NoError(t, dispatcher.Dispatch(ctx, &Event{Type: EventWorkspaceDeleted, WorkspaceID: 1}))

	got := requests()
	require.Len(t, got, 1)

	var msg TeamsMessage
	require.NoError(t, json.Unmarshal(got[0].body, &msg))
	assert.Equal(t, "MessageCard", msg.Type)
	assert.Equal(t, "Workspace Deleted", msg.Title)
	assert.Equal(t, "dc3545", msg.ThemeColor)
}

func TestDispatchRateLimited(t *testing.T) {
	dispatcher, store, deliveries := newTestDispatcher(t)
	dispatcher.limiter = NewDestinationLimiter(1, time.Hour)
	ctx := context.Background()

	srv, requests := newCaptureServer(t, http.StatusOK)
	d := &Destination{WorkspaceID: 1, URL: srv.URL, Events: []EventType{"*"}}
	require.NoError(t, store.CreateDestination(ctx, d))

	require.NoError(t, dispatcher.Dispatch(ctx, &Event{Type: EventWebhookTest, WorkspaceID: 1}))
	require.NoError(t, dispatcher.Dispatch(ctx, &Event{Type: EventWebhookTest, WorkspaceID: 1}))

	// second dispatch never reached the destination
	assert.Len(t, requests(), 1)

	list, err := deliveries.ListByDestination(ctx, 1, d.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var retrying int
	for _, dl := range list {
		if dl.Status == DeliveryStatusRetrying {
			retrying++
			assert.Contains(t, dl.ErrorMessage, "rate limit")
		}
	}
	assert.Equal(t, 1, retrying)
}
