package rbac

import (
	"testing"

	"github.com/platinummonkey/atrium/pkg/auth"
)

func TestHasAll(t *testing.T) {
	tests := []struct {
		name     string
		granted  []auth.Capability
		required []auth.Capability
		want     bool
	}{
		{
			name:     "empty requirement passes",
			granted:  nil,
			required: nil,
			want:     true,
		},
		{
			name:     "empty requirement passes with grants",
			granted:  []auth.Capability{auth.CapViewAudit},
			required: nil,
			want:     true,
		},
		{
			name:     "exact superset",
			granted:  []auth.Capability{auth.CapManageWebhooks, auth.CapViewAudit},
			required: []auth.Capability{auth.CapManageWebhooks},
			want:     true,
		},
		{
			name:     "full set required",
			granted:  []auth.Capability{auth.CapManageWebhooks, auth.CapViewAudit},
			required: []auth.Capability{auth.CapManageWebhooks, auth.CapViewAudit},
			want:     true,
		},
		{
			name:     "one missing denies",
			granted:  []auth.Capability{auth.CapManageWebhooks},
			required: []auth.Capability{auth.CapManageWebhooks, auth.CapManageBilling},
			want:     false,
		},
		{
			name:     "no grants denies",
			granted:  nil,
			required: []auth.Capability{auth.CapManageWebhooks},
			want:     false,
		},
		{
			name:     "wildcard grants everything",
			granted:  []auth.Capability{auth.CapWildcard},
			required: []auth.Capability{auth.CapManageWebhooks, auth.CapManageBilling, auth.CapViewAudit},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAll(tt.granted, tt.required); got != tt.want {
				t.Errorf("HasAll(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestHasAllDoesNotMutate(t *testing.T) {
	granted := []auth.Capability{auth.CapViewAudit}
	required := []auth.Capability{auth.CapViewAudit}
	HasAll(granted, required)
	if granted[0] != auth.CapViewAudit || required[0] != auth.CapViewAudit {
		t.Error("HasAll must not mutate its inputs")
	}
}
