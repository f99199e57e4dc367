package cli

import (
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/atrium/pkg/webhooks"
)

func newWebhooksCommand() *Command {
	cmd := &Command{
		Name:        "webhooks",
		Description: "Manage webhook destinations (actions: list, test, deliveries)",
		Flags:       flag.NewFlagSet("webhooks", flag.ExitOnError),
		Run:         runWebhooks,
	}

	cmd.Flags.String("server", "http://localhost:8080", "Atrium server URL")
	cmd.Flags.String("token", "", "API key (defaults to ATRIUM_API_KEY)")
	cmd.Flags.Int64("id", 0, "Destination id (test, deliveries)")
	cmd.Flags.Int("limit", 20, "Delivery rows to show (deliveries)")

	return cmd
}

func runWebhooks(args []string) error {
	action, rest := popAction(args, "list")

	cmd := newWebhooksCommand()
	if err := cmd.Flags.Parse(rest); err != nil {
		return err
	}
	c, err := newClient(cmd.Flags.Lookup("server").Value.String(), cmd.Flags.Lookup("token").Value.String())
	if err != nil {
		return err
	}
	id, _ := strconv.ParseInt(cmd.Flags.Lookup("id").Value.String(), 10, 64)

	switch action {
	case "list":
		var list []*webhooks.Destination
		if err := c.list("/api/internal/v1/webhooks", &list); err != nil {
			return err
		}
		for _, d := range list {
			state := "active"
			if !d.Active {
				state = "disabled"
			}
			events := make([]string, len(d.Events))
			for i, e := range d.Events {
				events[i] = string(e)
			}
			fmt.Printf("%-6d %-48s %-8s %s\n", d.ID, d.URL, state, strings.Join(events, ","))
		}
		return nil
	case "test":
		if id == 0 {
			return fmt.Errorf("test requires -id")
		}
		path := fmt.Sprintf("/api/internal/v1/webhooks/%d/test", id)
		if err := c.do(http.MethodPost, path, nil, nil); err != nil {
			return err
		}
		fmt.Printf("Test event queued for destination %d\n", id)
		return nil
	case "deliveries":
		if id == 0 {
			return fmt.Errorf("deliveries requires -id")
		}
		limit := cmd.Flags.Lookup("limit").Value.String()
		path := fmt.Sprintf("/api/internal/v1/webhooks/%d/deliveries?limit=%s", id, limit)
		var list []*webhooks.Delivery
		if err := c.list(path, &list); err != nil {
			return err
		}
		for _, d := range list {
			fmt.Printf("%-36s %-24s %-10s attempts=%d code=%d\n",
				d.ID, d.EventType, d.Status, d.Attempts, d.StatusCode)
		}
		return nil
	default:
		return fmt.Errorf("unknown action: %s (expected list, test or deliveries)", action)
	}
}
