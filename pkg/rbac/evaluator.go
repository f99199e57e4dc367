package rbac

import "github.com/platinummonkey/atrium/pkg/auth"

// HasAll reports whether granted is a superset of required. It is a pure
// function over two explicit sets: no I/O, no side effects. The wildcard
// capability in granted satisfies any requirement. An empty required list
// always passes: any authenticated session is sufficient.
func HasAll(granted, required []auth.Capability) bool {
	if len(required) == 0 {
		return true
	}

	set := make(map[auth.Capability]bool, len(granted))
	for _, c := range granted {
		if c == auth.CapWildcard {
			return true
		}
		set[c] = true
	}

	for _, c := range required {
		if !set[c] {
			return false
		}
	}
	return true
}
