package cli

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/platinummonkey/atrium/pkg/workspaces"
)

func newWorkspacesCommand() *Command {
	cmd := &Command{
		Name:        "workspaces",
		Description: "List workspaces or show the key's workspace (actions: list, show)",
		Flags:       flag.NewFlagSet("workspaces", flag.ExitOnError),
		Run:         runWorkspaces,
	}

	cmd.Flags.String("server", "http://localhost:8080", "Atrium server URL")
	cmd.Flags.String("token", "", "API key (defaults to ATRIUM_API_KEY)")

	return cmd
}

func runWorkspaces(args []string) error {
	action, rest := popAction(args, "list")

	cmd := newWorkspacesCommand()
	if err := cmd.Flags.Parse(rest); err != nil {
		return err
	}
	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("token").Value.String())
	if err != nil {
		return err
	}

	switch action {
	case "list":
		var list []*workspaces.Workspace
		if err := c.list("/api/internal/v1/workspaces", &list); err != nil {
			return err
		}
		for _, ws := range list {
			fmt.Printf("%-6d %-24s %-24s %-10s %s\n", ws.ID, ws.Name, ws.Slug, ws.Plan, ws.Status)
		}
		return nil
	case "show":
		var ws workspaces.Workspace
		if err := c.do(http.MethodGet, "/api/internal/v1/workspace", nil, &ws); err != nil {
			return err
		}
		fmt.Printf("ID:      %d\n", ws.ID)
		fmt.Printf("Name:    %s\n", ws.Name)
		fmt.Printf("Slug:    %s\n", ws.Slug)
		fmt.Printf("Plan:    %s\n", ws.Plan)
		fmt.Printf("Status:  %s\n", ws.Status)
		fmt.Printf("Created: %s\n", ws.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	default:
		return fmt.Errorf("unknown action: %s (expected list or show)", action)
	}
}

// popAction splits an optional leading action word from flag arguments.
func popAction(args []string, def string) (string, []string) {
	if len(args) == 0 || len(args[0]) == 0 || args[0][0] == '-' {
		return def, args
	}
	return args[0], args[1:]
}
