package email

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
)

var invitationText = template.Must(template.New("invitation").Parse(`Hello,

You have been invited to join {{.Team}} on Closingroom.

Accept the invitation here:
{{.Link}}

This invitation expires on {{.Expires}}.
`))

var contractSentText = template.Must(template.New("contract_sent").Parse(`Hello {{.Party}},

{{if .Team}}{{.Team}} has sent you{{else}}You have been sent{{end}} "{{.Title}}" for review and signature.
{{if .Link}}
Review it here:
{{.Link}}
{{end}}`))

// Notifier builds and sends the product's notification emails
type Notifier struct {
	sender  Sender
	baseURL string
}

// NewNotifier creates a notifier whose links point at baseURL
func NewNotifier(sender Sender, baseURL string) *Notifier {
	return &Notifier{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

// NotifyInvitation emails an invitation link for a team
func (n *Notifier) NotifyInvitation(ctx context.Context, teamName, to, token string, expiresAt time.Time) error {
	body, err := execute(invitationText, map[string]string{
		"Team":    teamName,
		"Link":    n.baseURL + "/invitations/" + url.PathEscape(token),
		"Expires": expiresAt.UTC().Format("January 2, 2006 15:04 MST"),
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("You're invited to join %s", teamName),
		Text:    body,
	})
}

// NotifyContractSent tells a party that a contract is ready for signature
func (n *Notifier) NotifyContractSent(ctx context.Context, to, partyName, contractTitle, teamName string) error {
	name := partyName
	if name == "" {
		name = "there"
	}
	body, err := execute(contractSentText, map[string]string{
		"Party": name,
		"Title": contractTitle,
		"Team":  teamName,
		"Link":  n.baseURL,
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Ready for signature: %s", contractTitle),
		Text:    body,
	})
}

func execute(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
