package workspaces

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// PlanQuotas are the per-plan resource limits
type PlanQuotas struct {
	MaxMembers             int   `json:"max_members"`
	MaxWebhooks            int   `json:"max_webhooks"`
	MaxAPIKeys             int   `json:"max_api_keys"`
	MaxPendingInvitations  int   `json:"max_pending_invitations"`
	MaxAPIRequestsPerMonth int64 `json:"max_api_requests_per_month"`
}

// QuotasForPlan returns the limits for a plan. Unknown plans get the free
// limits.
func QuotasForPlan(plan Plan) PlanQuotas {
	switch plan {
	case PlanPro:
		return PlanQuotas{
			MaxMembers:             25,
			MaxWebhooks:            20,
			MaxAPIKeys:             25,
			MaxPendingInvitations:  50,
			MaxAPIRequestsPerMonth: 1_000_000,
		}
	case PlanEnterprise:
		return PlanQuotas{
			MaxMembers:             500,
			MaxWebhooks:            100,
			MaxAPIKeys:             200,
			MaxPendingInvitations:  500,
			MaxAPIRequestsPerMonth: 50_000_000,
		}
	default:
		return PlanQuotas{
			MaxMembers:             5,
			MaxWebhooks:            3,
			MaxAPIKeys:             5,
			MaxPendingInvitations:  10,
			MaxAPIRequestsPerMonth: 50_000,
		}
	}
}

// CheckMemberQuota checks whether the workspace can take another member
func (s *PostgresService) CheckMemberQuota(ctx context.Context, workspaceID int64) error {
	return s.checkCountQuota(ctx, workspaceID, "members",
		`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1`,
		func(q PlanQuotas) int64 { return int64(q.MaxMembers) })
}

// CheckInvitationQuota checks whether another invitation may stay pending
func (s *PostgresService) CheckInvitationQuota(ctx context.Context, workspaceID int64) error {
	return s.checkCountQuota(ctx, workspaceID, "pending_invitations",
		`SELECT COUNT(*) FROM invitations WHERE workspace_id = $1 AND status = 'pending'`,
		func(q PlanQuotas) int64 { return int64(q.MaxPendingInvitations) })
}

// CheckWebhookQuota checks whether the workspace can register another
// webhook destination
func (s *PostgresService) CheckWebhookQuota(ctx context.Context, workspaceID int64) error {
	return s.checkCountQuota(ctx, workspaceID, "webhooks",
		`SELECT COUNT(*) FROM webhook_destinations WHERE workspace_id = $1`,
		func(q PlanQuotas) int64 { return int64(q.MaxWebhooks) })
}

// CheckAPIKeyQuota checks whether the workspace can issue another API key
func (s *PostgresService) CheckAPIKeyQuota(ctx context.Context, workspaceID int64) error {
	return s.checkCountQuota(ctx, workspaceID, "api_keys",
		`SELECT COUNT(*) FROM api_keys WHERE workspace_id = $1`,
		func(q PlanQuotas) int64 { return int64(q.MaxAPIKeys) })
}

// CheckAPIRequestQuota checks this month's API request count against the
// plan limit. Counters are maintained by pkg/usage.
func (s *PostgresService) CheckAPIRequestQuota(ctx context.Context, workspaceID int64) error {
	quotas, err := s.planQuotas(ctx, workspaceID)
	if err != nil {
		return err
	}

	var count int64
	err = s.db.QueryRowContext(ctx, `
		SELECT api_requests_count FROM usage_counters
		WHERE workspace_id = $1 AND period_end > $2
		ORDER BY period_start DESC
		LIMIT 1
	`, workspaceID, s.now().UTC()).Scan(&count)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get usage: %w", err)
	}

	if count >= quotas.MaxAPIRequestsPerMonth {
		return quotaErr("api_requests", count, quotas.MaxAPIRequestsPerMonth)
	}
	return nil
}

// checkCountQuota compares a COUNT query against a plan limit
func (s *PostgresService) checkCountQuota(ctx context.Context, workspaceID int64, resource, query string, limit func(PlanQuotas) int64) error {
	quotas, err := s.planQuotas(ctx, workspaceID)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, workspaceID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count %s: %w", resource, err)
	}

	if max := limit(quotas); count >= max {
		return quotaErr(resource, count, max)
	}
	return nil
}

func (s *PostgresService) planQuotas(ctx context.Context, workspaceID int64) (PlanQuotas, error) {
	var plan Plan
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM workspaces WHERE id = $1`, workspaceID).Scan(&plan)
	if err == sql.ErrNoRows {
		return PlanQuotas{}, apierr.NotFound("workspace not found")
	}
	if err != nil {
		return PlanQuotas{}, fmt.Errorf("failed to get plan: %w", err)
	}
	return QuotasForPlan(plan), nil
}

func quotaErr(resource string, current, limit int64) error {
	return apierr.Wrap(
		apierr.QuotaExceeded("quota exceeded for %s (%d/%d)", resource, current, limit),
		&QuotaExceededError{Resource: resource, Current: current, Limit: limit},
	)
}
