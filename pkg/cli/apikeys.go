package cli

import (
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/atrium/pkg/api"
	"github.com/platinummonkey/atrium/pkg/auth"
)

func newAPIKeysCommand() *Command {
	cmd := &Command{
		Name:        "apikeys",
		Description: "Manage API keys (actions: list, create, delete)",
		Flags:       flag.NewFlagSet("apikeys", flag.ExitOnError),
		Run:         runAPIKeys,
	}

	cmd.Flags.String("server", "http://localhost:8080", "Atrium server URL")
	cmd.Flags.String("token", "", "API key (defaults to ATRIUM_API_KEY)")
	cmd.Flags.String("name", "", "Key name (create)")
	cmd.Flags.String("scopes", "", "Comma-separated capability scopes, empty for all (create)")
	cmd.Flags.Int64("id", 0, "Key id (delete)")

	return cmd
}

func runAPIKeys(args []string) error {
	action, rest := popAction(args, "list")

	cmd := newAPIKeysCommand()
	if err := cmd.Flags.Parse(rest); err != nil {
		return err
	}
	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("token").Value.String())
	if err != nil {
		return err
	}

	switch action {
	case "list":
		var list []*auth.APIKey
		if err := c.list("/api/v1/api-keys", &list); err != nil {
			return err
		}
		for _, key := range list {
			lastUsed := "never"
			if key.LastUsedAt != nil {
				lastUsed = key.LastUsedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-6d %-24s %-12s last used %s\n", key.ID, key.Name, key.TokenPrefix, lastUsed)
		}
		return nil
	case "create":
		name := cmd.Flags.Lookup("name").Value.String()
		if name == "" {
			return fmt.Errorf("create requires -name")
		}
		req := api.CreateAPIKeyRequest{Name: name}
		if scopes := cmd.Flags.Lookup("scopes").Value.String(); scopes != "" {
			for _, s := range strings.Split(scopes, ",") {
				req.Scopes = append(req.Scopes, auth.Capability(strings.TrimSpace(s)))
			}
		}
		var created api.CreateAPIKeyResponse
		if err := c.do(http.MethodPost, "/api/v1/api-keys", req, &created); err != nil {
			return err
		}
		// The plaintext token is only ever shown here.
		fmt.Printf("Created key %d (%s)\n", created.Key.ID, created.Key.Name)
		fmt.Printf("Token: %s\n", created.Token)
		return nil
	case "delete":
		id, _ := strconv.ParseInt(cmd.Flags.Lookup("id").Value.String(), 10, 64)
		if id == 0 {
			return fmt.Errorf("delete requires -id")
		}
		path := fmt.Sprintf("/api/v1/api-keys/%d", id)
		if err := c.do(http.MethodDelete, path, nil, nil); err != nil {
			return err
		}
		fmt.Printf("Deleted key %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown action: %s (expected list, create or delete)", action)
	}
}
