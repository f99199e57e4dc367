// Package api assembles the HTTP surface of the service: the router, the
// middleware chain and the resource handlers.
//
// # Overview
//
// Every route except the SSO flows and the billing provider callback sits
// behind the session gate. Handlers receive the resolved session, scope
// every query to the session workspace and return coded errors; the gate
// translates those into HTTP statuses and JSON error bodies.
//
// Mutation handlers record audit events and dispatch webhook events after
// the write succeeds. Both are fire-and-forget: a logging or delivery
// failure never fails the request.
//
// # Usage Example
//
//	srv := api.NewServer(api.Deps{
//		Config:     cfg,
//		Gate:       gate,
//		Workspaces: workspaceSvc,
//		Webhooks:   webhookStore,
//		Deliveries: deliveryStore,
//		Dispatcher: dispatcher,
//		APIKeys:    keyStore,
//		Billing:    billingSvc,
//		AuditStore: auditStore,
//		SSO:        ssoHandlers,
//	})
//	http.ListenAndServe(addr, srv.Handler())
//
// # Related Packages
//
//   - pkg/middleware: the gate that wraps every session-scoped handler
//   - pkg/httputil: the outer middleware chain and response helpers
//   - pkg/apierr: the error codes handlers return
package api
