// Package sso provides identity-provider sign-in for the Atrium dashboard.
//
// # Overview
//
// Authentication is delegated entirely to external identity providers over
// SAML 2.0 or OpenID Connect; Atrium stores no passwords. A successful
// callback provisions the user just-in-time and establishes a server-side
// session whose opaque UUID travels in the atrium_session cookie.
//
// # Sign-in Flow
//
//  1. GET /auth/sso/{provider}/signin sets an anti-forgery state cookie
//     and redirects to the IdP
//  2. The IdP posts back to /auth/sso/{provider}/callback
//  3. The state is verified, the assertion/token validated, and the
//     identity provisioned (first login creates the user, a personal
//     workspace and an owner membership in one transaction)
//  4. A session row is written and the cookie set; the gate resolves it
//     on every subsequent request
//
// Providers with group mappings sign matching users into the provider's
// shared workspace under the mapped role instead of the personal one.
//
// # Gate Resolvers
//
// SessionManager.ResolveSession and KeySessionResolver.ResolveKey satisfy
// the middleware.SessionResolver and middleware.KeyResolver interfaces;
// they are the only two ways a request becomes authenticated.
//
// # Related Packages
//
//   - pkg/middleware: the gate that consumes the resolvers
//   - pkg/auth: session, user and API key types
//   - pkg/workspaces: membership management after provisioning
package sso
