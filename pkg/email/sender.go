package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

// Message is a single outbound email
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP relay settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Enabled reports whether a relay is configured
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// ErrInvalidRecipient is returned for an empty or malformed recipient address
var ErrInvalidRecipient = errors.New("invalid recipient address")

// SMTPSender sends mail through an SMTP relay
type SMTPSender struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTPSender creates a sender for the given relay
func NewSMTPSender(cfg Config) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send delivers msg. The context bounds how long the caller waits; an abandoned
// delivery still finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !validAddress(msg.To) {
		return ErrInvalidRecipient
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	body := s.build(msg)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, []string{msg.To}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	}
}

// build renders the RFC 5322 message
func (s *SMTPSender) build(msg Message) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}
	header("From", s.cfg.From)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", s.now().UTC().Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+s.cfg.Host+">")
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Text, "\r\n", "\n"), "\n", "\r\n"))
	return buf.Bytes()
}

func validAddress(addr string) bool {
	if addr == "" || strings.ContainsAny(addr, "\r\n") {
		return false
	}
	at := strings.LastIndex(addr, "@")
	return at > 0 && at < len(addr)-1
}

// Noop logs messages instead of sending them
type Noop struct {
	logger *observability.Logger
}

// NewNoop creates a logging sender
func NewNoop(logger *observability.Logger) *Noop {
	return &Noop{logger: logger}
}

// Send logs the recipient and subject
func (n *Noop) Send(ctx context.Context, msg Message) error {
	if !validAddress(msg.To) {
		return ErrInvalidRecipient
	}
	if n.logger != nil {
		n.logger.WithField("to", msg.To).WithField("subject", msg.Subject).Info("Email not sent: SMTP is not configured")
	}
	return nil
}

// NewSender returns an SMTP sender when cfg is enabled and a Noop otherwise
func NewSender(cfg Config, logger *observability.Logger) Sender {
	if cfg.Enabled() {
		return NewSMTPSender(cfg)
	}
	return NewNoop(logger)
}
