// Package audit records who did what, when, from where.
//
// # Overview
//
// Every security-relevant action — signins, denials, workspace and member
// mutations, invitation and webhook changes, API key issuance, plan
// changes — is recorded as an Event. Events carry the actor (resolved
// from the gate session on the request context), the resource acted on,
// request metadata and optional before/after change details.
//
// Sinks implement the two-method Logger interface. DBLogger persists to
// postgres and backs the query API; FileLogger appends JSON lines with
// rotation; MultiLogger fans out to both without blocking the request.
//
// # Retention
//
// The Archiver exports rows past the retention window to object storage
// as NDJSON batches and deletes them afterwards. The janitor runs it
// daily.
//
// # Usage Example
//
//	dbLogger, _ := audit.NewDBLogger(db)
//	ctx = audit.WithLogger(ctx, dbLogger)
//
//	audit.LogMutation(ctx, audit.EventTypeMemberAdd,
//		audit.ResourceTypeMember, "42", nil, "added dev@acme.test as member")
//
// # Related Packages
//
//   - pkg/middleware: the gate puts the session on the context this
//     package reads the actor from
//   - pkg/api: mounts the read handlers behind view:audit
package audit
