package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/closingroom/pkg/async"
	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/observability"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventContractCreated   EventType = "contract.created"
	EventContractGenerated EventType = "contract.generated"
	EventContractSent      EventType = "contract.sent"
	EventContractSigned    EventType = "contract.signed"
	EventContractDeclined  EventType = "contract.declined"
	EventContractVoided    EventType = "contract.voided"
	EventMemberInvited     EventType = "team.member_invited"
	EventMemberJoined      EventType = "team.member_joined"
	EventMemberRemoved     EventType = "team.member_removed"
	EventInvoiceCreated    EventType = "billing.invoice_created"
)

// AllEvents lists every event a webhook can subscribe to
var AllEvents = []EventType{
	EventContractCreated, EventContractGenerated, EventContractSent, EventContractSigned,
	EventContractDeclined, EventContractVoided, EventMemberInvited, EventMemberJoined,
	EventMemberRemoved, EventInvoiceCreated,
}

// Valid reports whether e is a known event type
func (e EventType) Valid() bool {
	for _, known := range AllEvents {
		if e == known {
			return true
		}
	}
	return false
}

// Format is the payload shape posted to an endpoint
type Format string

const (
	FormatJSON  Format = "json"
	FormatSlack Format = "slack"
	FormatTeams Format = "teams"
)

// Event represents a webhook event
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	TeamID    int64           `json:"team_id"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Webhook is an endpoint registered by a team
type Webhook struct {
	ID          int64       `json:"id"`
	TeamID      int64       `json:"team_id"`
	URL         string      `json:"url"`
	Events      []EventType `json:"events"`
	Format      Format      `json:"format"`
	Secret      string      `json:"secret,omitempty"`
	Active      bool        `json:"active"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Subscribed reports whether the webhook wants events of type t
func (w *Webhook) Subscribed(t EventType) bool {
	for _, e := range w.Events {
		if e == t {
			return true
		}
	}
	return false
}

// CreateWebhookRequest registers an endpoint
type CreateWebhookRequest struct {
	URL         string      `json:"url" validate:"required,url,max=2048"`
	Events      []EventType `json:"events" validate:"required,min=1"`
	Format      Format      `json:"format,omitempty" validate:"omitempty,oneof=json slack teams"`
	Description string      `json:"description,omitempty" validate:"max=500"`
}

// UpdateWebhookRequest updates an endpoint. Nil fields are left unchanged.
type UpdateWebhookRequest struct {
	URL         *string     `json:"url,omitempty" validate:"omitempty,url,max=2048"`
	Events      []EventType `json:"events,omitempty" validate:"omitempty,min=1"`
	Format      *Format     `json:"format,omitempty" validate:"omitempty,oneof=json slack teams"`
	Active      *bool       `json:"active,omitempty"`
	Description *string     `json:"description,omitempty" validate:"omitempty,max=500"`
}

// Webhook errors
var (
	ErrNotFound     = errors.New("webhook not found")
	ErrUnknownEvent = errors.New("unknown webhook event")
	ErrRateLimited  = errors.New("webhook rate limit exceeded")
)

// Options configures a Manager
type Options struct {
	Client      *http.Client
	RateLimit   int
	RatePeriod  time.Duration
	RetryConfig RetryConfig
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Now         func() time.Time
	// Async delivers in the background when true; tests deliver inline
	Async bool
}

// Manager registers team webhooks and delivers events to them
type Manager struct {
	store       Store
	client      *http.Client
	rateLimiter *RateLimiter
	retryPolicy *RetryPolicy
	logger      *observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	async       bool
}

// NewManager creates a webhook manager on top of store
func NewManager(store Store, opts Options) *Manager {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 100
	}
	if opts.RatePeriod <= 0 {
		opts.RatePeriod = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:       store,
		client:      opts.Client,
		rateLimiter: NewRateLimiter(opts.RateLimit, opts.RatePeriod),
		retryPolicy: NewRetryPolicy(opts.RetryConfig),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
		async:       opts.Async,
	}
}

// Register stores a new endpoint with a generated signing secret. The secret is only
// returned here.
func (m *Manager) Register(ctx context.Context, teamID int64, req *CreateWebhookRequest) (*Webhook, error) {
	if err := validateEvents(req.Events); err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	hook := &Webhook{
		TeamID:      teamID,
		URL:         req.URL,
		Events:      req.Events,
		Format:      req.Format,
		Secret:      secret,
		Active:      true,
		Description: req.Description,
	}
	if hook.Format == "" {
		hook.Format = FormatJSON
	}
	if err := m.store.Create(ctx, hook); err != nil {
		return nil, err
	}
	return hook, nil
}

// Get returns a team's webhook without its secret
func (m *Manager) Get(ctx context.Context, teamID, id int64) (*Webhook, error) {
	hook, err := m.store.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	hook.Secret = ""
	return hook, nil
}

// List returns a team's webhooks without their secrets
func (m *Manager) List(ctx context.Context, teamID int64) ([]*Webhook, error) {
	hooks, err := m.store.List(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		h.Secret = ""
	}
	return hooks, nil
}

// Update changes a team's webhook
func (m *Manager) Update(ctx context.Context, teamID, id int64, req *UpdateWebhookRequest) (*Webhook, error) {
	hook, err := m.store.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}
	if req.URL != nil {
		hook.URL = *req.URL
	}
	if len(req.Events) > 0 {
		if err := validateEvents(req.Events); err != nil {
			return nil, err
		}
		hook.Events = req.Events
	}
	if req.Format != nil {
		hook.Format = *req.Format
	}
	if req.Active != nil {
		hook.Active = *req.Active
	}
	if req.Description != nil {
		hook.Description = *req.Description
	}
	if err := m.store.Update(ctx, hook); err != nil {
		return nil, err
	}
	m.rateLimiter.Reset(hook.ID)
	hook.Secret = ""
	return hook, nil
}

// Delete removes a team's webhook and its delivery log
func (m *Manager) Delete(ctx context.Context, teamID, id int64) error {
	if err := m.store.Delete(ctx, teamID, id); err != nil {
		return err
	}
	m.rateLimiter.Reset(id)
	return nil
}

// Deliveries returns the most recent deliveries of a team's webhook
func (m *Manager) Deliveries(ctx context.Context, teamID, id int64, limit int) ([]*Delivery, error) {
	if _, err := m.store.Get(ctx, teamID, id); err != nil {
		return nil, err
	}
	return m.store.ListDeliveries(ctx, id, limit)
}

// Stats summarizes a team's webhook deliveries
func (m *Manager) Stats(ctx context.Context, teamID, id int64) (DeliveryStats, error) {
	if _, err := m.store.Get(ctx, teamID, id); err != nil {
		return DeliveryStats{}, err
	}
	return m.store.Stats(ctx, id)
}

// Publish fans an event out to every active webhook of the team subscribed to it.
// Failures are logged; publishing never fails the caller's operation.
func (m *Manager) Publish(ctx context.Context, teamID int64, event string, data interface{}) {
	if err := m.dispatch(ctx, teamID, EventType(event), data); err != nil {
		m.logger.WithError(err).WithField("team_id", teamID).WithField("event", event).
			Error("Failed to dispatch webhook event")
	}
}

func (m *Manager) dispatch(ctx context.Context, teamID int64, eventType EventType, data interface{}) error {
	if !eventType.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}
	hooks, err := m.store.ListForEvent(ctx, teamID, eventType)
	if err != nil {
		return err
	}
	if len(hooks) == 0 {
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TeamID:    teamID,
		RequestID: contextkeys.GetRequestID(ctx),
		Timestamp: m.now().UTC(),
		Data:      raw,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, hook := range hooks {
		d := &Delivery{
			WebhookID: hook.ID,
			EventID:   event.ID,
			EventType: event.Type,
			Payload:   payload,
			Status:    DeliveryStatusPending,
		}
		if err := m.store.CreateDelivery(ctx, d); err != nil {
			return err
		}

		hook := hook
		if m.async {
			async.SafeGoNoError(context.WithoutCancel(ctx), 30*time.Second, "webhook delivery", func(ctx context.Context) {
				m.attempt(ctx, hook, d)
			})
		} else {
			m.attempt(ctx, hook, d)
		}
	}
	return nil
}

// attempt sends one delivery and records the outcome, scheduling a retry when the
// policy allows another attempt
func (m *Manager) attempt(ctx context.Context, hook *Webhook, d *Delivery) {
	d.Attempts++
	start := m.now()
	err := m.send(ctx, hook, d)
	d.Duration = m.now().Sub(start)

	now := m.now()
	switch {
	case err == nil:
		d.Status = DeliveryStatusSuccess
		d.ErrorMessage = ""
		d.NextRetryAt = nil
		d.CompletedAt = &now
	case m.retryPolicy.ShouldRetry(d.Attempts, err):
		next := m.retryPolicy.NextRetryTime(now, d.Attempts)
		d.Status = DeliveryStatusRetrying
		d.ErrorMessage = err.Error()
		d.NextRetryAt = &next
	default:
		d.Status = DeliveryStatusFailed
		d.ErrorMessage = err.Error()
		d.NextRetryAt = nil
		d.CompletedAt = &now
	}

	m.metrics.RecordWebhookDelivery(string(d.EventType), string(d.Status))
	if err := m.store.UpdateDelivery(ctx, d); err != nil {
		m.logger.WithError(err).WithField("delivery_id", d.ID).Error("Failed to record webhook delivery")
	}
}

// send posts a delivery's payload to the endpoint
func (m *Manager) send(ctx context.Context, hook *Webhook, d *Delivery) error {
	if !m.rateLimiter.Allow(hook.ID) {
		return ErrRateLimited
	}

	body := []byte(d.Payload)
	if hook.Format == FormatSlack || hook.Format == FormatTeams {
		var event Event
		if err := json.Unmarshal(d.Payload, &event); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		var err error
		if body, err = formatFor(hook.Format, &event); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Closingroom-Webhooks/1.0")
	req.Header.Set("X-Closingroom-Event", string(d.EventType))
	req.Header.Set("X-Closingroom-Event-ID", d.EventID)
	req.Header.Set("X-Closingroom-Delivery", fmt.Sprintf("%d", d.ID))
	if hook.Secret != "" {
		req.Header.Set("X-Closingroom-Signature", Sign(body, hook.Secret))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	d.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the X-Closingroom-Signature value for payload: sha256=<hex HMAC>
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}

func validateEvents(events []EventType) error {
	for _, e := range events {
		if !e.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownEvent, e)
		}
	}
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
