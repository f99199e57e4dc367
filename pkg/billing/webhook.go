package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// signatureTolerance bounds how stale a signed webhook may be before it
// is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

// HandleProviderWebhook verifies and applies a payment-provider event.
// Signature failures are unauthorized; unknown event types are accepted
// and ignored so the provider does not retry them forever.
func (s *PostgresService) HandleProviderWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := s.verifyProviderSignature(payload, signatureHeader); err != nil {
		return err
	}

	var event ProviderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apierr.Invalid("malformed webhook payload")
	}
	if event.Data.WorkspaceID == 0 {
		return apierr.Invalid("webhook event %q carries no workspace", event.Type)
	}

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.applySubscriptionEvent(ctx, &event)
	case EventSubscriptionDeleted:
		_, err := s.CancelSubscription(ctx, event.Data.WorkspaceID, true)
		if apierr.CodeOf(err) == apierr.CodeNotFound {
			return nil
		}
		return err
	case EventPaymentFailed:
		return s.setStatus(ctx, event.Data.WorkspaceID, SubscriptionStatusPastDue)
	case EventPaymentSucceeded:
		return s.setStatus(ctx, event.Data.WorkspaceID, SubscriptionStatusActive)
	default:
		return nil
	}
}

// applySubscriptionEvent upserts the provider's view of the subscription
// and pushes the plan to the workspace record.
func (s *PostgresService) applySubscriptionEvent(ctx context.Context, event *ProviderEvent) error {
	data := event.Data
	if !data.Plan.Valid() {
		return apierr.Invalid("webhook event carries unknown plan %q", data.Plan)
	}
	status := data.Status
	if status == "" {
		status = SubscriptionStatusActive
	}
	if !status.Valid() {
		return apierr.Invalid("webhook event carries unknown status %q", data.Status)
	}

	now := s.now().UTC()
	periodStart, periodEnd := now, now.AddDate(0, 1, 0)
	if data.PeriodStart != nil {
		periodStart = data.PeriodStart.UTC()
	}
	if data.PeriodEnd != nil {
		periodEnd = data.PeriodEnd.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (workspace_id, plan, status, provider_customer_id, provider_subscription_id,
			current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workspace_id) DO UPDATE SET
			plan = $2,
			status = $3,
			provider_customer_id = $4,
			provider_subscription_id = $5,
			current_period_start = $6,
			current_period_end = $7,
			cancel_at_period_end = false,
			canceled_at = NULL,
			updated_at = $6
	`, data.WorkspaceID, data.Plan, status, data.CustomerID, data.SubscriptionID, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("failed to apply subscription event: %w", err)
	}

	return s.plans.SetPlan(ctx, data.WorkspaceID, data.Plan)
}

// setStatus updates only the subscription status. Past-due workspaces
// keep their plan; suspension is a separate, human decision.
func (s *PostgresService) setStatus(ctx context.Context, workspaceID int64, status SubscriptionStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = $2 WHERE workspace_id = $3
	`, status, s.now().UTC(), workspaceID)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// verifyProviderSignature checks a "t=<unix>,v1=<hex>" header where v1
// is HMAC-SHA256 over "<t>.<payload>".
func (s *PostgresService) verifyProviderSignature(payload []byte, header string) error {
	if s.webhookSecret == "" {
		return apierr.Unauthorized("billing webhooks are not configured")
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signature = kv[1]
		}
	}
	if timestamp == "" || signature == "" {
		return apierr.Unauthorized("malformed webhook signature header")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return apierr.Unauthorized("malformed webhook signature timestamp")
	}
	age := s.now().UTC().Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return apierr.Unauthorized("webhook signature timestamp outside tolerance")
	}

	if !hmac.Equal([]byte(signature), []byte(SignPayload(payload, timestamp, s.webhookSecret))) {
		return apierr.Unauthorized("webhook signature mismatch")
	}
	return nil
}

// SignPayload computes the hex HMAC-SHA256 over "<timestamp>.<payload>".
// Exported for tests and for the examples that simulate the provider.
func SignPayload(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds the header value the provider would send
func SignatureHeader(payload []byte, at time.Time, secret string) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return "t=" + timestamp + ",v1=" + SignPayload(payload, timestamp, secret)
}

// compile-time check that the service satisfies the interface
var _ Service = (*PostgresService)(nil)
