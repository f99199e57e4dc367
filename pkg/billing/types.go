package billing

import (
	"time"

	"github.com/platinummonkey/atrium/pkg/workspaces"
)

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Valid reports whether the status is a known subscription status
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing,
		SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// Subscription is a workspace's billing record. Workspaces with no row
// are on the free plan; a row appears on the first paid plan change or
// provider event.
type Subscription struct {
	ID                     int64              `json:"id"`
	WorkspaceID            int64              `json:"workspace_id"`
	Plan                   workspaces.Plan    `json:"plan"`
	Status                 SubscriptionStatus `json:"status"`
	ProviderCustomerID     string             `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string             `json:"provider_subscription_id,omitempty"`
	CurrentPeriodStart     time.Time          `json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// PlanPricing describes one purchasable plan. Quotas come from the
// workspace plan catalog so pricing and enforcement cannot disagree.
type PlanPricing struct {
	Plan           workspaces.Plan       `json:"plan"`
	BasePriceCents int64                 `json:"base_price_cents"`
	Currency       string                `json:"currency"`
	Quotas         workspaces.PlanQuotas `json:"quotas"`
}

// Catalog returns the purchasable plans in upgrade order
func Catalog() []PlanPricing {
	return []PlanPricing{
		{Plan: workspaces.PlanFree, BasePriceCents: 0, Currency: "usd", Quotas: workspaces.QuotasForPlan(workspaces.PlanFree)},
		{Plan: workspaces.PlanPro, BasePriceCents: 4900, Currency: "usd", Quotas: workspaces.QuotasForPlan(workspaces.PlanPro)},
		{Plan: workspaces.PlanEnterprise, BasePriceCents: 49900, Currency: "usd", Quotas: workspaces.QuotasForPlan(workspaces.PlanEnterprise)},
	}
}

// ChangePlanRequest is the body of a plan change call
type ChangePlanRequest struct {
	Plan workspaces.Plan `json:"plan"`
}

// ProviderEvent is the parsed form of a payment-provider webhook
type ProviderEvent struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Created int64             `json:"created"`
	Data    ProviderEventData `json:"data"`
}

// ProviderEventData carries the subscription fields Atrium consumes.
// The provider's workspace mapping travels in subscription metadata.
type ProviderEventData struct {
	WorkspaceID    int64              `json:"workspace_id"`
	CustomerID     string             `json:"customer_id"`
	SubscriptionID string             `json:"subscription_id"`
	Plan           workspaces.Plan    `json:"plan"`
	Status         SubscriptionStatus `json:"status"`
	PeriodStart    *time.Time         `json:"period_start,omitempty"`
	PeriodEnd      *time.Time         `json:"period_end,omitempty"`
}

// Provider event types Atrium reacts to. Anything else is acknowledged
// and ignored.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
	EventPaymentSucceeded    = "invoice.paid"
)
