package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	require.NotNil(t, root)
	assert.Equal(t, "atrium-admin", root.Name)

	for _, name := range []string{"whoami", "workspaces", "members", "invite", "apikeys", "webhooks"} {
		cmd, ok := root.Subcommands[name]
		require.True(t, ok, "missing subcommand %s", name)
		assert.NotNil(t, cmd.Run)
		assert.NotEmpty(t, cmd.Description)
	}
}

func TestPopAction(t *testing.T) {
	action, rest := popAction([]string{"create", "-email", "a@b.c"}, "list")
	assert.Equal(t, "create", action)
	assert.Equal(t, []string{"-email", "a@b.c"}, rest)

	action, rest = popAction([]string{"-server", "http://x"}, "list")
	assert.Equal(t, "list", action)
	assert.Equal(t, []string{"-server", "http://x"}, rest)

	action, rest = popAction(nil, "list")
	assert.Equal(t, "list", action)
	assert.Empty(t, rest)
}
