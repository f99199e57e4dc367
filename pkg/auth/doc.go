// Package auth defines the authenticated identity model: users, the
// session view of a workspace, roles, capabilities and API keys.
//
// # Sessions
//
// A Session is the per-request authenticated context produced by the
// resolver in pkg/middleware. It carries the principal, the active
// workspace and the expanded capability grants:
//
//	if sess.Can(auth.CapManageWebhooks) {
//		// allowed
//	}
//
// Sessions are never persisted by this package; cookie-backed session rows
// live in pkg/sso, API keys in this package's APIKeyStore.
//
// # API keys
//
// Keys are issued with TokenGenerator: atrium_<base64url(32 bytes)>.
// Only the SHA-256 hash and an 8-character display prefix are stored; the
// plaintext is returned once at creation time.
//
//	store := auth.NewAPIKeyStore(db)
//	key, token, err := store.Create(ctx, workspaceID, userID, "ci", scopes, nil)
//	// token starts with "atrium_" and is shown to the caller exactly once
//
// # Related Packages
//
//   - pkg/rbac: role -> capability expansion
//   - pkg/middleware: the request gate that resolves sessions
package auth
