// Package webhooks delivers workspace events to registered HTTP endpoints.
//
// # Overview
//
// Workspaces register destinations subscribing to event types, either
// exactly ("member.added"), by family ("member.*") or everything ("*").
// When something happens, the dispatcher fans the event out to every
// matching active destination, signs the payload with the destination's
// secret, and records the attempt. Failed deliveries back off
// exponentially and a retry worker resends the retained payload, so a
// retried request is byte-identical to the original and verifies against
// the same signature.
//
// # Signatures
//
// Every request carries an X-Atrium-Signature header of the form
// "sha256=<hex>", an HMAC-SHA256 of the raw body keyed by the
// destination secret. Receivers verify with VerifySignature. Secrets are
// returned exactly once, on creation or rotation.
//
// # Usage Example
//
//	store := webhooks.NewStore(db)
//	deliveries := webhooks.NewDeliveryStore(db)
//	dispatcher := webhooks.NewDispatcher(store, deliveries, logger)
//
//	dispatcher.DispatchAsync(&webhooks.Event{
//		Type:        webhooks.EventMemberAdded,
//		WorkspaceID: ws.ID,
//		Data:        map[string]interface{}{"email": "dev@acme.test"},
//	})
//
// # Related Packages
//
//   - pkg/api: CRUD handlers for destinations and delivery history
//   - pkg/workspaces: enforces per-plan webhook quotas
//   - cmd/atrium-janitor: prunes old deliveries on a schedule
package webhooks
