package cli

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/platinummonkey/atrium/pkg/api"
)

func newWhoamiCommand() *Command {
	cmd := &Command{
		Name:        "whoami",
		Description: "Show the identity and capabilities behind the API key",
		Flags:       flag.NewFlagSet("whoami", flag.ExitOnError),
		Run:         runWhoami,
	}

	cmd.Flags.String("server", "http://localhost:8080", "Atrium server URL")
	cmd.Flags.String("token", "", "API key (defaults to ATRIUM_API_KEY)")

	return cmd
}

func runWhoami(args []string) error {
	cmd := newWhoamiCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("token").Value.String())
	if err != nil {
		return err
	}

	var me api.MeResponse
	if err := c.do(http.MethodGet, "/api/internal/v1/me", nil, &me); err != nil {
		return err
	}

	fmt.Printf("User:      %s (id %d)\n", me.User.Email, me.User.ID)
	fmt.Printf("Workspace: %s (%s)\n", me.Workspace.Name, me.Workspace.Slug)
	if me.Role != "" {
		fmt.Printf("Role:      %s\n", me.Role)
	}
	fmt.Printf("Capabilities:\n")
	for _, cap := range me.Capabilities {
		fmt.Printf("  %s\n", cap)
	}
	return nil
}
