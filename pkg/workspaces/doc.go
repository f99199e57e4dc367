// Package workspaces provides multi-tenant workspace management for Atrium.
//
// # Overview
//
// This package manages workspaces (tenants), membership, invitations and
// per-plan resource quotas. Every API resource is owned by a workspace;
// the services here enforce the tenant boundary and the plan limits.
//
// # Plans
//
// Free:
//   - 5 members
//   - 3 webhook destinations
//   - 5 API keys
//   - 10 pending invitations
//   - 50k API requests/month
//
// Pro:
//   - 25 members
//   - 20 webhook destinations
//   - 25 API keys
//   - 50 pending invitations
//   - 1M API requests/month
//
// Enterprise:
//   - 500 members
//   - 100 webhook destinations
//   - 200 API keys
//   - 500 pending invitations
//   - 50M API requests/month
//
// # Usage Example
//
// Create a workspace with an owner:
//
//	ws, err := service.Create(ctx, &workspaces.CreateWorkspaceRequest{
//		Name: "Acme Corp",
//		Plan: workspaces.PlanPro,
//	}, ownerID)
//
// Invite a member:
//
//	if err := service.CheckInvitationQuota(ctx, ws.ID); err != nil {
//		return err // quota_exceeded, translated to 429 by the gate
//	}
//	inv := &workspaces.Invitation{WorkspaceID: ws.ID, Email: "dev@acme.com", Role: auth.RoleMember}
//	err := service.CreateInvitation(ctx, inv)
//
// Invitation state machine: pending → accepted | revoked through the API,
// pending → expired through the janitor. No other transition is written.
//
// # Related Packages
//
//   - pkg/auth: roles (owner, admin, member) and the session view
//   - pkg/usage: monthly counters behind the API request quota
//   - pkg/billing: subscriptions driving the workspace plan
package workspaces
