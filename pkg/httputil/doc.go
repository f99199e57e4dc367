// Package httputil provides HTTP utilities for standardized request/response
// handling across the Atrium API surface.
//
// # Response Helpers
//
// Every error body has the shape {"error": string}; the status code carries
// the classification:
//
//	httputil.WriteSuccess(w, workspace)
//	httputil.WriteCreated(w, key)
//	httputil.WriteUnauthorized(w, "authentication required")
//	httputil.WriteForbidden(w, "missing capability: manage:webhooks")
//
// # Request Parsing
//
//	var req InvitationStatusRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		return apierr.Invalid("invalid JSON body")
//	}
//
//	id, err := httputil.ParsePathInt64(r, "id")
//	limit, _ := httputil.ParseQueryInt(r, "limit", 50)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: the session/permission gate wrapped around routes
package httputil
