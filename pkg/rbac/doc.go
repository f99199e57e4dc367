// Package rbac expands workspace membership roles into capability sets and
// evaluates permission requirements.
//
// The evaluator is a pure function over two explicit sets:
//
//	if rbac.HasAll(sess.Capabilities, []auth.Capability{auth.CapManageWebhooks}) {
//		// allowed
//	}
//
// Role expansion is in-memory: the member's role is stored on the
// workspace_members row and expanded by the Registry when the session is
// resolved. The built-in expansion can be overridden by a roles.yaml file,
// hot-reloaded via fsnotify:
//
//	registry := rbac.NewRegistry(logger)
//	if err := registry.Watch("/etc/atrium/roles.yaml"); err != nil { ... }
//	caps := registry.Expand(auth.RoleAdmin)
package rbac
