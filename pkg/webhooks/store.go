package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store persists webhooks and their delivery log
type Store interface {
	Create(ctx context.Context, hook *Webhook) error
	Get(ctx context.Context, teamID, id int64) (*Webhook, error)
	GetByID(ctx context.Context, id int64) (*Webhook, error)
	List(ctx context.Context, teamID int64) ([]*Webhook, error)
	ListForEvent(ctx context.Context, teamID int64, event EventType) ([]*Webhook, error)
	Update(ctx context.Context, hook *Webhook) error
	Delete(ctx context.Context, teamID, id int64) error

	CreateDelivery(ctx context.Context, d *Delivery) error
	UpdateDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]*Delivery, error)
	ClaimRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Delivery, error)
	Stats(ctx context.Context, webhookID int64) (DeliveryStats, error)
}

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL webhook store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const webhookColumns = `id, team_id, url, events, format, secret, active, description, created_at, updated_at`

const deliveryColumns = `id, webhook_id, event_id, event_type, payload, status, status_code, error_message,
	attempts, next_retry_at, duration_ms, created_at, completed_at`

// Create inserts a webhook
func (s *PostgresStore) Create(ctx context.Context, hook *Webhook) error {
	query := `
		INSERT INTO webhooks (team_id, url, events, format, secret, active, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, hook.TeamID, hook.URL, pq.Array(eventStrings(hook.Events)),
		hook.Format, hook.Secret, hook.Active, hook.Description).
		Scan(&hook.ID, &hook.CreatedAt, &hook.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// Get retrieves a webhook within a team
func (s *PostgresStore) Get(ctx context.Context, teamID, id int64) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE team_id = $1 AND id = $2`
	return scanWebhook(s.db.QueryRowContext(ctx, query, teamID, id))
}

// GetByID retrieves a webhook regardless of team, for the retry worker
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`
	return scanWebhook(s.db.QueryRowContext(ctx, query, id))
}

// List returns a team's webhooks
func (s *PostgresStore) List(ctx context.Context, teamID int64) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE team_id = $1 ORDER BY id`
	return s.queryWebhooks(ctx, query, teamID)
}

// ListForEvent returns a team's active webhooks subscribed to event
func (s *PostgresStore) ListForEvent(ctx context.Context, teamID int64, event EventType) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE team_id = $1 AND active AND $2 = ANY(events) ORDER BY id`
	return s.queryWebhooks(ctx, query, teamID, string(event))
}

func (s *PostgresStore) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	hooks := []*Webhook{}
	for rows.Next() {
		hook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, hook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return hooks, nil
}

// Update writes every mutable column of a webhook
func (s *PostgresStore) Update(ctx context.Context, hook *Webhook) error {
	query := `
		UPDATE webhooks SET url = $1, events = $2, format = $3, active = $4, description = $5, updated_at = NOW()
		WHERE team_id = $6 AND id = $7
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query, hook.URL, pq.Array(eventStrings(hook.Events)), hook.Format,
		hook.Active, hook.Description, hook.TeamID, hook.ID).Scan(&hook.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

// Delete removes a webhook; its deliveries cascade
func (s *PostgresStore) Delete(ctx context.Context, teamID, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE team_id = $1 AND id = $2`, teamID, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDelivery records a pending delivery
func (s *PostgresStore) CreateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (webhook_id, event_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, d.WebhookID, d.EventID, d.EventType, []byte(d.Payload), d.Status).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

// UpdateDelivery records the outcome of an attempt
func (s *PostgresStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $1, status_code = $2, error_message = $3, attempts = $4, next_retry_at = $5,
			duration_ms = $6, completed_at = $7
		WHERE id = $8
	`
	_, err := s.db.ExecContext(ctx, query, d.Status, d.StatusCode, d.ErrorMessage, d.Attempts,
		nullTime(d.NextRetryAt), d.Duration.Milliseconds(), nullTime(d.CompletedAt), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns a webhook's deliveries, newest first
func (s *PostgresStore) ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]*Delivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE webhook_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return s.queryDeliveries(ctx, query, webhookID, limit)
}

// ClaimRetries returns deliveries due for a retry and pushes their next_retry_at out
// by lease, so that concurrent workers do not pick up the same rows
func (s *PostgresStore) ClaimRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Delivery, error) {
	query := `
		UPDATE webhook_deliveries SET next_retry_at = $2
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status = 'retrying' AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliveryColumns
	return s.queryDeliveries(ctx, query, now, now.Add(lease), limit)
}

func (s *PostgresStore) queryDeliveries(ctx context.Context, query string, args ...interface{}) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []*Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	return deliveries, nil
}

// Stats aggregates a webhook's delivery log
func (s *PostgresStore) Stats(ctx context.Context, webhookID int64) (DeliveryStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'retrying'),
			COALESCE(AVG(duration_ms) FILTER (WHERE status = 'success'), 0)
		FROM webhook_deliveries WHERE webhook_id = $1
	`
	stats := DeliveryStats{WebhookID: webhookID}
	var avgMS float64
	err := s.db.QueryRowContext(ctx, query, webhookID).
		Scan(&stats.Total, &stats.Successful, &stats.Failed, &stats.Retrying, &avgMS)
	if err != nil {
		return stats, fmt.Errorf("failed to get webhook stats: %w", err)
	}
	stats.AverageDuration = time.Duration(avgMS * float64(time.Millisecond))
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner) (*Webhook, error) {
	hook := &Webhook{}
	var events pq.StringArray
	err := row.Scan(&hook.ID, &hook.TeamID, &hook.URL, &events, &hook.Format, &hook.Secret,
		&hook.Active, &hook.Description, &hook.CreatedAt, &hook.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook: %w", err)
	}
	hook.Events = make([]EventType, len(events))
	for i, e := range events {
		hook.Events[i] = EventType(e)
	}
	return hook, nil
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	d := &Delivery{}
	var (
		payload                  []byte
		durationMS               int64
		nextRetryAt, completedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.WebhookID, &d.EventID, &d.EventType, &payload, &d.Status, &d.StatusCode,
		&d.ErrorMessage, &d.Attempts, &nextRetryAt, &durationMS, &d.CreatedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
	}
	d.Payload = payload
	d.Duration = time.Duration(durationMS) * time.Millisecond
	if nextRetryAt.Valid {
		d.NextRetryAt = &nextRetryAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return d, nil
}

func eventStrings(events []EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
