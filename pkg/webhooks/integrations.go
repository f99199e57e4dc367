package webhooks

import (
	"fmt"
)

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack attachment
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// TeamsMessage represents a Microsoft Teams webhook message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary,omitempty"`
	Title      string         `json:"title,omitempty"`
	Text       string         `json:"text,omitempty"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

// TeamsSection represents a section in a Teams message
type TeamsSection struct {
	Facts []TeamsFact `json:"facts,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// TeamsFact represents a fact in a Teams section
type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FormatSlackMessage formats an event as a Slack message
func FormatSlackMessage(event *Event) SlackMessage {
	fields := []SlackField{
		{Title: "Event Type", Value: string(event.Type), Short: true},
		{Title: "Workspace", Value: fmt.Sprintf("%d", event.WorkspaceID), Short: true},
		{Title: "Timestamp", Value: event.Timestamp.Format("2006-01-02 15:04:05"), Short: true},
	}

	// Add event-specific fields
	if workspace, ok := event.Data["workspace_name"].(string); ok {
		fields = append(fields, SlackField{Title: "Workspace Name", Value: workspace, Short: true})
	}
	if email, ok := event.Data["email"].(string); ok {
		fields = append(fields, SlackField{Title: "Email", Value: email, Short: true})
	}
	if role, ok := event.Data["role"].(string); ok {
		fields = append(fields, SlackField{Title: "Role", Value: role, Short: true})
	}
	if message, ok := event.Data["message"].(string); ok {
		fields = append(fields, SlackField{Title: "Message", Value: message, Short: false})
	}

	return SlackMessage{
		Attachments: []SlackAttachment{
			{
				Color:  getEventColor(event.Type),
				Title:  getEventTitle(event.Type),
				Fields: fields,
			},
		},
	}
}

// FormatTeamsMessage formats an event as a Microsoft Teams message
func FormatTeamsMessage(event *Event) TeamsMessage {
	title := getEventTitle(event.Type)

	facts := []TeamsFact{
		{Name: "Event Type", Value: string(event.Type)},
		{Name: "Workspace", Value: fmt.Sprintf("%d", event.WorkspaceID)},
		{Name: "Timestamp", Value: event.Timestamp.Format("2006-01-02 15:04:05")},
	}

	// Add event-specific facts
	if workspace, ok := event.Data["workspace_name"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Workspace Name", Value: workspace})
	}
	if email, ok := event.Data["email"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Email", Value: email})
	}
	if role, ok := event.Data["role"].(string); ok {
		facts = append(facts, TeamsFact{Name: "Role", Value: role})
	}

	var text string
	if message, ok := event.Data["message"].(string); ok {
		text = message
	}

	return TeamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    title,
		Title:      title,
		ThemeColor: getEventThemeColor(event.Type),
		Sections: []TeamsSection{
			{
				Facts: facts,
				Text:  text,
			},
		},
	}
}

// getEventColor returns the Slack color for an event type
func getEventColor(eventType EventType) string {
	switch eventType {
	case EventWorkspaceCreated, EventMemberAdded, EventInvitationAccepted, EventAPIKeyCreated, EventWebhookCreated:
		return "good" // Green
	case EventWorkspaceDeleted, EventMemberRemoved, EventInvitationRevoked, EventAPIKeyDeleted, EventWebhookDeleted:
		return "danger" // Red
	case EventMemberRoleChanged:
		return "warning" // Yellow
	default:
		return "#439FE0" // Blue
	}
}

// getEventThemeColor returns the Teams theme color for an event type
func getEventThemeColor(eventType EventType) string {
	switch eventType {
	case EventWorkspaceCreated, EventMemberAdded, EventInvitationAccepted, EventAPIKeyCreated, EventWebhookCreated:
		return "28a745" // Green
	case EventWorkspaceDeleted, EventMemberRemoved, EventInvitationRevoked, EventAPIKeyDeleted, EventWebhookDeleted:
		return "dc3545" // Red
	case EventMemberRoleChanged:
		return "ffc107" // Yellow
	default:
		return "007bff" // Blue
	}
}

// getEventTitle returns a human-readable title for an event type
func getEventTitle(eventType EventType) string {
	switch eventType {
	case EventWorkspaceCreated:
		return "Workspace Created"
	case EventWorkspaceUpdated:
		return "Workspace Updated"
	case EventWorkspaceDeleted:
		return "Workspace Deleted"
	case EventMemberAdded:
		return "Member Added"
	case EventMemberRoleChanged:
		return "Member Role Changed"
	case EventMemberRemoved:
		return "Member Removed"
	case EventInvitationCreated:
		return "Invitation Sent"
	case EventInvitationAccepted:
		return "Invitation Accepted"
	case EventInvitationRevoked:
		return "Invitation Revoked"
	case EventAPIKeyCreated:
		return "API Key Created"
	case EventAPIKeyDeleted:
		return "API Key Deleted"
	case EventWebhookCreated:
		return "Webhook Created"
	case EventWebhookUpdated:
		return "Webhook Updated"
	case EventWebhookDeleted:
		return "Webhook Deleted"
	case EventWebhookTest:
		return "Webhook Test"
	default:
		return string(eventType)
	}
}
