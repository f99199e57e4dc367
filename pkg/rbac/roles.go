package rbac

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/observability"
)

// Registry maps membership roles to capability sets. It starts from the
// built-in roles and can be overridden by a roles file that is hot-reloaded
// on change. Reads take a snapshot under a read lock, so a reload never
// tears a grant list mid-request.
type Registry struct {
	mu    sync.RWMutex
	roles map[auth.Role][]auth.Capability

	watcher *fsnotify.Watcher
	logger  *observability.Logger
}

// BuiltinRoles returns the default role -> capability expansion.
// Owners hold every capability, admins everything except billing,
// members hold none (authenticated access only).
func BuiltinRoles() map[auth.Role][]auth.Capability {
	return map[auth.Role][]auth.Capability{
		auth.RoleOwner: {
			auth.CapManageWorkspace,
			auth.CapManageMembers,
			auth.CapManageWebhooks,
			auth.CapManageBilling,
			auth.CapManageAPIKeys,
			auth.CapViewAudit,
		},
		auth.RoleAdmin: {
			auth.CapManageMembers,
			auth.CapManageWebhooks,
			auth.CapManageAPIKeys,
			auth.CapViewAudit,
		},
		auth.RoleMember: {},
	}
}

// NewRegistry creates a registry seeded with the built-in roles
func NewRegistry(logger *observability.Logger) *Registry {
	return &Registry{
		roles:  BuiltinRoles(),
		logger: logger,
	}
}

// Expand returns the capability set for a role. Unknown roles expand to
// nothing, which denies every capability-guarded route.
func (r *Registry) Expand(role auth.Role) []auth.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps, ok := r.roles[role]
	if !ok {
		return nil
	}
	// Copy so callers can't mutate the registry through the slice
	out := make([]auth.Capability, len(caps))
	copy(out, caps)
	return out
}

// rolesFile is the on-disk override format:
//
//	roles:
//	  admin:
//	    - manage:webhooks
//	    - view:audit
type rolesFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadFile replaces the expansion for roles named in the file. Roles absent
// from the file keep their built-in expansion; unknown capability strings
// fail the whole load so a typo can't silently widen or narrow grants.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read roles file: %w", err)
	}

	var parsed rolesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse roles file: %w", err)
	}

	next := BuiltinRoles()
	for name, capStrings := range parsed.Roles {
		role := auth.Role(name)
		if !role.Valid() {
			return fmt.Errorf("roles file names unknown role %q", name)
		}
		caps := make([]auth.Capability, 0, len(capStrings))
		for _, cs := range capStrings {
			c := auth.Capability(cs)
			if c == auth.CapWildcard {
				return fmt.Errorf("roles file may not grant the wildcard capability")
			}
			if !auth.KnownCapability(c) {
				return fmt.Errorf("roles file grants unknown capability %q to role %q", cs, name)
			}
			caps = append(caps, c)
		}
		next[role] = caps
	}

	r.mu.Lock()
	r.roles = next
	r.mu.Unlock()
	return nil
}

// Watch reloads the roles file whenever it changes on disk. Load errors are
// logged and the previous snapshot stays in effect.
func (r *Registry) Watch(path string) error {
	if err := r.LoadFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch roles file: %w", err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					if r.logger != nil {
						r.logger.WithError(err).WithField("path", path).Error("roles file reload failed, keeping previous roles")
					}
					continue
				}
				if r.logger != nil {
					r.logger.WithField("path", path).Info("roles file reloaded")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if r.logger != nil {
					r.logger.WithError(err).Warn("roles file watcher error")
				}
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
