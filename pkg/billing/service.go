package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// PlanSetter applies a plan change to the workspace record. Implemented
// by workspaces.PostgresService; billing owns the subscription row, the
// workspace row owns the enforced plan.
type PlanSetter interface {
	SetPlan(ctx context.Context, workspaceID int64, plan workspaces.Plan) error
}

// Service defines subscription operations
type Service interface {
	GetSubscription(ctx context.Context, workspaceID int64) (*Subscription, error)
	ChangePlan(ctx context.Context, workspaceID int64, plan workspaces.Plan) (*Subscription, error)
	CancelSubscription(ctx context.Context, workspaceID int64, immediately bool) (*Subscription, error)
	HandleProviderWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

// PostgresService implements Service over PostgreSQL
type PostgresService struct {
	db            *sql.DB
	plans         PlanSetter
	webhookSecret string
	now           func() time.Time
}

// NewPostgresService creates the billing service. webhookSecret signs
// provider webhook payloads (config: ATRIUM_BILLING_WEBHOOK_SECRET).
func NewPostgresService(db *sql.DB, plans PlanSetter, webhookSecret string) *PostgresService {
	return &PostgresService{db: db, plans: plans, webhookSecret: webhookSecret, now: time.Now}
}

const subscriptionColumns = `id, workspace_id, plan, status, provider_customer_id, provider_subscription_id,
	current_period_start, current_period_end, cancel_at_period_end, canceled_at, created_at, updated_at`

// GetSubscription returns the workspace's subscription. Workspaces that
// never changed plan have no row and get a synthesized free subscription
// covering the current month.
func (s *PostgresService) GetSubscription(ctx context.Context, workspaceID int64) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE workspace_id = $1
	`, workspaceID)

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return s.freeSubscription(workspaceID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ChangePlan moves the workspace to a new plan, upserting the
// subscription row and applying the plan to the workspace record.
func (s *PostgresService) ChangePlan(ctx context.Context, workspaceID int64, plan workspaces.Plan) (*Subscription, error) {
	if !plan.Valid() {
		return nil, apierr.Invalid("unknown plan %q", plan)
	}

	now := s.now().UTC()
	periodEnd := now.AddDate(0, 1, 0)

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (workspace_id, plan, status, current_period_start, current_period_end)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workspace_id) DO UPDATE SET
			plan = $2,
			status = $3,
			cancel_at_period_end = false,
			canceled_at = NULL,
			updated_at = $4
		RETURNING `+subscriptionColumns+`
	`, workspaceID, plan, SubscriptionStatusActive, now, periodEnd)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("failed to change plan: %w", err)
	}

	if err := s.plans.SetPlan(ctx, workspaceID, plan); err != nil {
		return nil, fmt.Errorf("failed to apply plan to workspace: %w", err)
	}
	return sub, nil
}

// CancelSubscription ends the subscription. Immediate cancellation drops
// the workspace to the free plan now; otherwise the paid plan runs until
// the period end and the janitor applies the downgrade.
func (s *PostgresService) CancelSubscription(ctx context.Context, workspaceID int64, immediately bool) (*Subscription, error) {
	now := s.now().UTC()

	var row *sql.Row
	if immediately {
		row = s.db.QueryRowContext(ctx, `
			UPDATE subscriptions
			SET status = $1, plan = $2, canceled_at = $3, cancel_at_period_end = false, updated_at = $3
			WHERE workspace_id = $4
			RETURNING `+subscriptionColumns+`
		`, SubscriptionStatusCanceled, workspaces.PlanFree, now, workspaceID)
	} else {
		row = s.db.QueryRowContext(ctx, `
			UPDATE subscriptions
			SET cancel_at_period_end = true, updated_at = $1
			WHERE workspace_id = $2
			RETURNING `+subscriptionColumns+`
		`, now, workspaceID)
	}

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("no subscription for workspace %d", workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if immediately {
		if err := s.plans.SetPlan(ctx, workspaceID, workspaces.PlanFree); err != nil {
			return nil, fmt.Errorf("failed to downgrade workspace: %w", err)
		}
	}
	return sub, nil
}

// DowngradeExpired applies scheduled cancellations whose period has
// ended. The janitor calls this.
func (s *PostgresService) DowngradeExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		UPDATE subscriptions
		SET status = $1, plan = $2, canceled_at = $3, cancel_at_period_end = false, updated_at = $3
		WHERE cancel_at_period_end = true AND current_period_end <= $3
		RETURNING workspace_id
	`, SubscriptionStatusCanceled, workspaces.PlanFree, now)
	if err != nil {
		return 0, fmt.Errorf("failed to downgrade expired subscriptions: %w", err)
	}
	defer rows.Close()

	var downgraded int64
	for rows.Next() {
		var workspaceID int64
		if err := rows.Scan(&workspaceID); err != nil {
			return downgraded, fmt.Errorf("failed to scan workspace: %w", err)
		}
		if err := s.plans.SetPlan(ctx, workspaceID, workspaces.PlanFree); err != nil {
			return downgraded, fmt.Errorf("failed to downgrade workspace %d: %w", workspaceID, err)
		}
		downgraded++
	}
	return downgraded, rows.Err()
}

// freeSubscription is the implicit record for workspaces with no billing
// history
func (s *PostgresService) freeSubscription(workspaceID int64) *Subscription {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return &Subscription{
		WorkspaceID:        workspaceID,
		Plan:               workspaces.PlanFree,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	sub := &Subscription{}
	var customerID, subscriptionID sql.NullString
	err := row.Scan(
		&sub.ID, &sub.WorkspaceID, &sub.Plan, &sub.Status, &customerID, &subscriptionID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.ProviderCustomerID = customerID.String
	sub.ProviderSubscriptionID = subscriptionID.String
	return sub, nil
}
