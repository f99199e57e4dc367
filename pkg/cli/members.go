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

func newMembersCommand() *Command {
	cmd := &Command{
		Name:        "members",
		Description: "Manage workspace members (actions: list, set-role, remove)",
		Flags:       flag.NewFlagSet("members", flag.ExitOnError),
		Run:         runMembers,
	}

	cmd.Flags.String("server", "http://localhost:8080", "Atrium server URL")
	cmd.Flags.String("token", "", "API key (defaults to ATRIUM_API_KEY)")
	cmd.Flags.Int64("id", 0, "Member user id (set-role, remove)")
	cmd.Flags.String("role", "", "New role: admin, member or viewer (set-role)")

	return cmd
}

func runMembers(args []string) error {
	action, rest := popAction(args, "list")

	cmd := newMembersCommand()
	if err := cmd.Flags.Parse(rest); err != nil {
		return err
	}
	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("token").Value.String())
	if err != nil {
		return err
	}

	id, _ := strconv.ParseInt(cmd.Flags.Lookup("id").Value.String(), 10, 64)
	role := cmd.Flags.Lookup("role").Value.String()

	switch action {
	case "list":
		var list []*workspaces.Member
		if err := c.list("/api/internal/v1/members", &list); err != nil {
			return err
		}
		for _, m := range list {
			fmt.Printf("%-6d %-32s %-8s joined %s\n", m.UserID, m.Email, m.Role, m.JoinedAt.Format("2006-01-02"))
		}
		return nil
	case "set-role":
		if id == 0 || role == "" {
			return fmt.Errorf("set-role requires -id and -role")
		}
		path := fmt.Sprintf("/api/internal/v1/members/%d/role", id)
		req := api.UpdateMemberRoleRequest{Role: auth.Role(role)}
		if err := c.do(http.MethodPut, path, req, nil); err != nil {
			return err
		}
		fmt.Printf("Updated member %d to role %s\n", id, role)
		return nil
	case "remove":
		if id == 0 {
			return fmt.Errorf("remove requires -id")
		}
		path := fmt.Sprintf("/api/internal/v1/members/%d", id)
		if err := c.do(http.MethodDelete, path, nil, nil); err != nil {
			return err
		}
		fmt.Printf("Removed member %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown action: %s (expected list, set-role or remove)", action)
	}
}
