package billing

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/apierr"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// planRecorder records SetPlan calls in place of the workspace service
type planRecorder struct {
	calls []planCall
	err   error
}

type planCall struct {
	workspaceID int64
	plan        workspaces.Plan
}

func (p *planRecorder) SetPlan(_ context.Context, workspaceID int64, plan workspaces.Plan) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, planCall{workspaceID, plan})
	return nil
}

func newTestService(t *testing.T) (*PostgresService, sqlmock.Sqlmock, *planRecorder) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	plans := &planRecorder{}
	svc := NewPostgresService(db, plans, "test-secret")
	svc.now = func() time.Time { return time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC) }
	return svc, mock, plans
}

func subscriptionRows(plan workspaces.Plan, status SubscriptionStatus) *sqlmock.Rows {
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "workspace_id", "plan", "status", "provider_customer_id", "provider_subscription_id",
		"current_period_start", "current_period_end", "cancel_at_period_end", "canceled_at",
		"created_at", "updated_at",
	}).AddRow(1, 1, string(plan), string(status), "cus_123", "sub_456",
		now, now.AddDate(0, 1, 0), false, nil, now, now)
}

func TestGetSubscription(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subscriptions")).
		WithArgs(int64(1)).
		WillReturnRows(subscriptionRows(workspaces.PlanPro, SubscriptionStatusActive))

	sub, err := svc.GetSubscription(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, workspaces.PlanPro, sub.Plan)
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "cus_123", sub.ProviderCustomerID)
	assert.Equal(t, "sub_456", sub.ProviderSubscriptionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubscriptionDefaultsToFree(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM subscriptions")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sub, err := svc.GetSubscription(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, workspaces.PlanFree, sub.Plan)
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
	assert.Equal(t, int64(42), sub.WorkspaceID)
	assert.Zero(t, sub.ID, "implicit subscription has no row")
	assert.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodStart)
}

func TestChangePlan(t *testing.T) {
	svc, mock, plans := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WithArgs(int64(1), "pro", "active", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(subscriptionRows(workspaces.PlanPro, SubscriptionStatusActive))

	sub, err := svc.ChangePlan(context.Background(), 1, workspaces.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, workspaces.PlanPro, sub.Plan)
	require.Len(t, plans.calls, 1)
	assert.Equal(t, planCall{1, workspaces.PlanPro}, plans.calls[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangePlanRejectsUnknownPlan(t *testing.T) {
	svc, _, plans := newTestService(t)

	_, err := svc.ChangePlan(context.Background(), 1, workspaces.Plan("platinum"))
	assert.Equal(t, apierr.CodeInvalid, apierr.CodeOf(err))
	assert.Empty(t, plans.calls)
}

func TestChangePlanSurfacesPlanSetterFailure(t *testing.T) {
	svc, mock, plans := newTestService(t)
	plans.err = errors.New("workspace gone")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO subscriptions")).
		WillReturnRows(subscriptionRows(workspaces.PlanPro, SubscriptionStatusActive))

	_, err := svc.ChangePlan(context.Background(), 1, workspaces.PlanPro)
	assert.ErrorContains(t, err, "workspace gone")
}

func TestCancelSubscriptionImmediately(t *testing.T) {
	svc, mock, plans := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE subscriptions")).
		WithArgs("canceled", "free", sqlmock.AnyArg(), int64(1)).
		WillReturnRows(subscriptionRows(workspaces.PlanFree, SubscriptionStatusCanceled))

	sub, err := svc.CancelSubscription(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionStatusCanceled, sub.Status)
	require.Len(t, plans.calls, 1)
	assert.Equal(t, planCall{1, workspaces.PlanFree}, plans.calls[0])
}

func TestCancelSubscriptionAtPeriodEnd(t *testing.T) {
	svc, mock, plans := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("SET cancel_at_period_end = true")).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnRows(subscriptionRows(workspaces.PlanPro, SubscriptionStatusActive))

	sub, err := svc.CancelSubscription(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, workspaces.PlanPro, sub.Plan, "paid plan runs until the period ends")
	assert.Empty(t, plans.calls, "no downgrade until the period ends")
}

func TestCancelSubscriptionNotFound(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE subscriptions")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.CancelSubscription(context.Background(), 9, true)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestDowngradeExpired(t *testing.T) {
	svc, mock, plans := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE cancel_at_period_end = true")).
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id"}).AddRow(3).AddRow(8))

	downgraded, err := svc.DowngradeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), downgraded)
	assert.Equal(t, []planCall{{3, workspaces.PlanFree}, {8, workspaces.PlanFree}}, plans.calls)
}

func TestCatalogMatchesQuotaCatalog(t *testing.T) {
	catalog := Catalog()
	require.Len(t, catalog, 3)
	assert.Equal(t, workspaces.PlanFree, catalog[0].Plan)
	assert.Zero(t, catalog[0].BasePriceCents)
	assert.Equal(t, workspaces.QuotasForPlan(workspaces.PlanPro), catalog[1].Quotas)
	assert.Less(t, catalog[1].BasePriceCents, catalog[2].BasePriceCents)
}
