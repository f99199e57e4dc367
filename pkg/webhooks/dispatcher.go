package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/atrium/pkg/async"
	"github.com/platinummonkey/atrium/pkg/observability"
)

// DispatchParallel bounds the fan-out when an event matches many
// destinations
const DispatchParallel = 8

// deliveryTimeout is the per-attempt HTTP timeout
const deliveryTimeout = 10 * time.Second

// Dispatcher fans events out to matching destinations, signing payloads
// and recording every attempt in the delivery store.
type Dispatcher struct {
	store      *Store
	deliveries *DeliveryStore
	client     *http.Client
	limiter    *DestinationLimiter
	policy     *RetryPolicy
	logger     *logrus.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewDispatcher creates a dispatcher with the default retry policy and a
// 100 req/min per-destination rate limit
func NewDispatcher(store *Store, deliveries *DeliveryStore, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		store:      store,
		deliveries: deliveries,
		client:     &http.Client{Timeout: deliveryTimeout},
		limiter:    NewDestinationLimiter(100, time.Minute),
		policy:     NewRetryPolicy(DefaultRetryConfig()),
		logger:     logger,
		now:        time.Now,
	}
}

// SetMetrics attaches prometheus counters. Nil-safe at call sites.
func (d *Dispatcher) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// Dispatch sends an event to every active destination in its workspace
// that subscribes to the event type. Attempts run in parallel with
// bounded fan-out; failures are scheduled for retry, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	destinations, err := d.store.ListMatching(ctx, event.WorkspaceID, event.Type)
	if err != nil {
		return fmt.Errorf("failed to resolve destinations: %w", err)
	}
	if len(destinations) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DispatchParallel)
	for _, dest := range destinations {
		dest := dest
		g.Go(func() error {
			d.deliverNew(ctx, dest, event)
			return nil
		})
	}
	return g.Wait()
}

// DispatchAsync dispatches without blocking the caller. Handler paths use
// this so webhook latency never shows up in API latency.
func (d *Dispatcher) DispatchAsync(event *Event) {
	async.SafeGo(context.Background(), 30*time.Second, "webhook dispatch", func(ctx context.Context) error {
		return d.Dispatch(ctx, event)
	})
}

// deliverNew builds the payload, records a delivery row and runs the
// first attempt
func (d *Dispatcher) deliverNew(ctx context.Context, dest *Destination, event *Event) {
	payload, err := buildPayload(dest.Format, event)
	if err != nil {
		d.logger.WithError(err).WithField("destination_id", dest.ID).Error("failed to build webhook payload")
		return
	}

	delivery := &Delivery{
		ID:            uuid.NewString(),
		DestinationID: dest.ID,
		WorkspaceID:   dest.WorkspaceID,
		EventID:       event.ID,
		EventType:     event.Type,
		URL:           dest.URL,
		Payload:       payload,
		Status:        DeliveryStatusPending,
		CreatedAt:     d.now().UTC(),
	}
	if err := d.deliveries.Create(ctx, delivery); err != nil {
		d.logger.WithError(err).WithField("destination_id", dest.ID).Error("failed to record webhook delivery")
		return
	}

	d.attempt(ctx, dest, delivery)
}

// attempt runs one send and persists the outcome, scheduling a retry on
// failure
func (d *Dispatcher) attempt(ctx context.Context, dest *Destination, delivery *Delivery) {
	delivery.Attempts++
	start := d.now()

	err := d.send(ctx, dest, delivery)
	delivery.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		delivery.ErrorMessage = err.Error()
		if d.policy.ShouldRetry(delivery.Attempts, err) {
			next := d.policy.NextRetryTime(delivery.Attempts)
			delivery.Status = DeliveryStatusRetrying
			delivery.NextRetryAt = &next
			if d.metrics != nil {
				d.metrics.WebhookRetriesTotal.Inc()
			}
		} else {
			now := d.now().UTC()
			delivery.Status = DeliveryStatusFailed
			delivery.CompletedAt = &now
			delivery.NextRetryAt = nil
		}
		d.logger.WithError(err).WithFields(logrus.Fields{
			"destination_id": dest.ID,
			"delivery_id":    delivery.ID,
			"attempt":        delivery.Attempts,
			"status":         delivery.Status,
		}).Warn("webhook delivery failed")
	} else {
		now := d.now().UTC()
		delivery.Status = DeliveryStatusSuccess
		delivery.ErrorMessage = ""
		delivery.CompletedAt = &now
		delivery.NextRetryAt = nil
	}

	d.observe(delivery)
	if err := d.deliveries.Update(ctx, delivery); err != nil {
		d.logger.WithError(err).WithField("delivery_id", delivery.ID).Error("failed to update webhook delivery")
	}
}

// send performs a single signed HTTP POST
func (d *Dispatcher) send(ctx context.Context, dest *Destination, delivery *Delivery) error {
	if !d.limiter.Allow(dest.ID) {
		if d.metrics != nil {
			d.metrics.WebhookRateLimitedTotal.Inc()
		}
		return fmt.Errorf("rate limit exceeded for destination %d", dest.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Atrium-Event", string(delivery.EventType))
	req.Header.Set("X-Atrium-Event-ID", delivery.EventID)
	req.Header.Set("X-Atrium-Delivery", delivery.ID)
	if dest.Secret != "" {
		req.Header.Set("X-Atrium-Signature", generateSignature(delivery.Payload, dest.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("destination returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) observe(delivery *Delivery) {
	if d.metrics == nil {
		return
	}
	if delivery.Status == DeliveryStatusSuccess || delivery.Status == DeliveryStatusFailed {
		d.metrics.WebhookDeliveriesTotal.WithLabelValues(string(delivery.EventType), string(delivery.Status)).Inc()
	}
	d.metrics.WebhookDeliveryDuration.WithLabelValues(string(delivery.EventType)).
		Observe(float64(delivery.DurationMS) / 1000)
}

// buildPayload renders the event for the destination's format
func buildPayload(format Format, event *Event) ([]byte, error) {
	switch format {
	case FormatSlack:
		return json.Marshal(FormatSlackMessage(event))
	case FormatTeams:
		return json.Marshal(FormatTeamsMessage(event))
	default:
		return json.Marshal(event)
	}
}

// VerifySignature checks a received X-Atrium-Signature header against the
// payload and shared secret. Receivers call this.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature computes the sha256= HMAC header value
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
