package cli

import (
	"flag"
	"fmt"
	"net/http"
	"strconv"

	"github.com/platinummonkey/atrium/pkg/api"
	"github.com/platinummonkey/atrium/pkg/auth"
	"github.com/platinummonkey/atrium/pkg/workspaces"
)

func newInviteCommand() *Command {
	cmd := &Command{
		Name:        "invite",
		Description: "Manage workspace invitations (actions: list, create, revoke)",
		Flags:       flag.NewFlagSet("invite", flag.ExitOnError),
		Run:         runInvite,
	}

	cmd.Flags.String("server", "http://localhost:8080", "Atrium server URL")
	cmd.Flags.String("token", "", "API key (defaults to ATRIUM_API_KEY)")
	cmd.Flags.String("email", "", "Invitee email (create)")
	cmd.Flags.String("role", "member", "Role granted on acceptance (create)")
	cmd.Flags.Int64("id", 0, "Invitation id (revoke)")

	return cmd
}

func runInvite(args []string) error {
	action, rest := popAction(args, "list")

	cmd := newInviteCommand()
	if err := cmd.Flags.Parse(rest); err != nil {
		return err
	}
	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("token").Value.String())
	if err != nil {
		return err
	}

	switch action {
	case "list":
		var list []*workspaces.Invitation
		if err := c.list("/api/internal/v1/invitations", &list); err != nil {
			return err
		}
		for _, inv := range list {
			fmt.Printf("%-6d %-32s %-8s %-10s expires %s\n",
				inv.ID, inv.Email, inv.Role, inv.Status, inv.ExpiresAt.Format("2006-01-02"))
		}
		return nil
	case "create":
		email := cmd.Flags.Lookup("email").Value.String()
		if email == "" {
			return fmt.Errorf("create requires -email")
		}
		req := workspaces.InviteMemberRequest{
			Email: email,
			Role:  auth.Role(cmd.Flags.Lookup("role").Value.String()),
		}
		var inv workspaces.Invitation
		if err := c.do(http.MethodPost, "/api/internal/v1/invitations", req, &inv); err != nil {
			return err
		}
		// The token is only ever shown here.
		fmt.Printf("Invited %s (invitation %d)\n", inv.Email, inv.ID)
		fmt.Printf("Token: %s\n", inv.Token)
		return nil
	case "revoke":
		id, _ := strconv.ParseInt(cmd.Flags.Lookup("id").Value.String(), 10, 64)
		if id == 0 {
			return fmt.Errorf("revoke requires -id")
		}
		path := fmt.Sprintf("/api/internal/v1/invitations/%d/status", id)
		req := api.InvitationStatusRequest{Status: string(workspaces.InvitationRevoked)}
		if err := c.do(http.MethodPut, path, req, nil); err != nil {
			return err
		}
		fmt.Printf("Revoked invitation %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown action: %s (expected list, create or revoke)", action)
	}
}
