package webhooks

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SlackMessage represents a Slack incoming-webhook message
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

// TeamsMessage represents a Microsoft Teams connector card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	Summary    string         `json:"summary,omitempty"`
	Title      string         `json:"title,omitempty"`
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

// summaryKeys are the event data fields shown in chat messages, in order
var summaryKeys = []string{"id", "contract_id", "title", "status", "revision", "email", "role", "user_id", "invoice_id", "total_cents"}

// FormatSlackMessage formats an event as a Slack message
func FormatSlackMessage(event *Event) SlackMessage {
	fields := []SlackField{
		{Title: "Event", Value: string(event.Type), Short: true},
		{Title: "Time", Value: event.Timestamp.Format("2006-01-02 15:04:05 MST"), Short: true},
	}
	for _, f := range eventFacts(event) {
		fields = append(fields, SlackField{Title: f.Name, Value: f.Value, Short: true})
	}
	return SlackMessage{
		Text: eventTitle(event.Type),
		Attachments: []SlackAttachment{{
			Color:  eventColor(event.Type),
			Title:  eventTitle(event.Type),
			Fields: fields,
		}},
	}
}

// FormatTeamsMessage formats an event as a Microsoft Teams message
func FormatTeamsMessage(event *Event) TeamsMessage {
	facts := []TeamsFact{
		{Name: "Event", Value: string(event.Type)},
		{Name: "Time", Value: event.Timestamp.Format("2006-01-02 15:04:05 MST")},
	}
	facts = append(facts, eventFacts(event)...)
	return TeamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		Summary:    eventTitle(event.Type),
		Title:      eventTitle(event.Type),
		ThemeColor: strings.TrimPrefix(eventColor(event.Type), "#"),
		Sections:   []TeamsSection{{Facts: facts}},
	}
}

// formatFor renders the chat payload for a non-JSON endpoint format
func formatFor(format Format, event *Event) ([]byte, error) {
	var msg interface{}
	switch format {
	case FormatSlack:
		msg = FormatSlackMessage(event)
	case FormatTeams:
		msg = FormatTeamsMessage(event)
	default:
		return nil, fmt.Errorf("unsupported webhook format %q", format)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", format, err)
	}
	return body, nil
}

// eventFacts picks the scalar summary fields present in the event data
func eventFacts(event *Event) []TeamsFact {
	var data map[string]interface{}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil
	}
	var facts []TeamsFact
	for _, key := range summaryKeys {
		v, ok := data[key]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string, bool:
			facts = append(facts, TeamsFact{Name: factName(key), Value: fmt.Sprint(x)})
		case float64:
			facts = append(facts, TeamsFact{Name: factName(key), Value: fmt.Sprintf("%.0f", x)})
		case []interface{}:
			items := make([]string, 0, len(x))
			for _, item := range x {
				items = append(items, fmt.Sprint(item))
			}
			sort.Strings(items)
			facts = append(facts, TeamsFact{Name: factName(key), Value: strings.Join(items, ", ")})
		}
	}
	return facts
}

func factName(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "id" {
			words[i] = "ID"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// eventColor returns the attachment color for an event type
func eventColor(eventType EventType) string {
	switch eventType {
	case EventContractSigned, EventMemberJoined:
		return "#28a745"
	case EventContractDeclined, EventContractVoided, EventMemberRemoved:
		return "#dc3545"
	case EventContractSent, EventMemberInvited, EventInvoiceCreated:
		return "#ffc107"
	default:
		return "#439FE0"
	}
}

// eventTitle returns a human-readable title for an event type
func eventTitle(eventType EventType) string {
	switch eventType {
	case EventContractCreated:
		return "Contract Created"
	case EventContractGenerated:
		return "Contract Document Generated"
	case EventContractSent:
		return "Contract Sent for Signature"
	case EventContractSigned:
		return "Contract Signed"
	case EventContractDeclined:
		return "Contract Declined"
	case EventContractVoided:
		return "Contract Voided"
	case EventMemberInvited:
		return "Team Member Invited"
	case EventMemberJoined:
		return "Team Member Joined"
	case EventMemberRemoved:
		return "Team Member Removed"
	case EventInvoiceCreated:
		return "Invoice Created"
	default:
		return string(eventType)
	}
}
