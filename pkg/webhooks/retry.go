package webhooks

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/async"
)

// RetryConfig tunes the exponential backoff schedule
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry schedule: 5 attempts
// backing off from 1s to a 5m cap
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy decides whether and when a failed delivery retries
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy from the config
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another attempt should be scheduled
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay returns the backoff before the next attempt
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime returns the wall-clock time of the next attempt
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return time.Now().UTC().Add(p.NextRetryDelay(attempts))
}

// RetryWorker periodically rescans the delivery store for due retries and
// resends them. One worker runs per process; the next_retry_at guard keeps
// duplicate sends rare rather than impossible, which receivers must
// tolerate anyway.
type RetryWorker struct {
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
	parallel   int
	logger     *logrus.Logger
	stop       chan struct{}
	done       chan struct{}
}

// NewRetryWorker creates a retry worker scanning at the given interval
func NewRetryWorker(dispatcher *Dispatcher, interval time.Duration, logger *logrus.Logger) *RetryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RetryWorker{
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  100,
		parallel:   4,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the scan loop until Stop is called or the context ends
func (w *RetryWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				if err := w.RunOnce(ctx); err != nil {
					w.logger.WithError(err).Error("webhook retry scan failed")
				}
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it
func (w *RetryWorker) Stop() {
	close(w.stop)
	<-w.done
}

// RunOnce processes one batch of due retries. The janitor's -run-once
// mode calls this directly. Retries fan out over a small worker pool so
// one slow endpoint doesn't hold up the whole batch.
func (w *RetryWorker) RunOnce(ctx context.Context) error {
	due, err := w.dispatcher.deliveries.GetPendingRetries(ctx, w.batchSize)
	if err != nil {
		return err
	}
	async.Batch(ctx, due, w.parallel, "webhook retry", time.Minute,
		func(ctx context.Context, delivery *Delivery) error {
			w.retry(ctx, delivery)
			return nil
		})
	return nil
}

// retry resends a delivery's retained payload to its destination
func (w *RetryWorker) retry(ctx context.Context, delivery *Delivery) {
	dest, err := w.dispatcher.store.getDestinationByID(ctx, delivery.DestinationID)
	if err != nil || !dest.Active {
		// Destination deleted or disabled since the first attempt
		now := w.dispatcher.now().UTC()
		delivery.Status = DeliveryStatusFailed
		delivery.ErrorMessage = "destination no longer deliverable"
		delivery.CompletedAt = &now
		delivery.NextRetryAt = nil
		if err := w.dispatcher.deliveries.Update(ctx, delivery); err != nil {
			w.logger.WithError(err).WithField("delivery_id", delivery.ID).Error("failed to fail orphaned delivery")
		}
		return
	}

	w.logger.WithFields(logrus.Fields{
		"delivery_id":    delivery.ID,
		"destination_id": dest.ID,
		"attempt":        delivery.Attempts + 1,
	}).Info("retrying webhook delivery")
	w.dispatcher.attempt(ctx, dest, delivery)
}
