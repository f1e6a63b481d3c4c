package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/closingroom/pkg/plans"
)

// UsageCounter reports a team's usage within a billing cycle
type UsageCounter interface {
	CountUsage(ctx context.Context, teamID int64, c Cycle) (plans.Usage, error)
}

// Service manages subscriptions, plan changes and invoices
type Service interface {
	CreateSubscription(ctx context.Context, teamID int64, req *CreateSubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, teamID int64) (*Subscription, error)
	ChangePlan(ctx context.Context, teamID int64, req *ChangePlanRequest) (*Subscription, *Quote, error)
	CancelSubscription(ctx context.Context, teamID int64, immediately bool) (*Subscription, error)
	ReactivateSubscription(ctx context.Context, teamID int64) (*Subscription, error)
	Quote(ctx context.Context, teamID int64) (*Quote, error)
	CloseCycle(ctx context.Context, teamID int64, at time.Time) (*Invoice, error)
	ListInvoices(ctx context.Context, teamID int64, limit, offset int) ([]*Invoice, error)
	GetInvoice(ctx context.Context, teamID, invoiceID int64) (*Invoice, error)
	DueForRenewal(ctx context.Context, at time.Time) ([]int64, error)
}

// Options configures a PostgresService
type Options struct {
	Currency       string
	InvoiceDueDays int
	Now            func() time.Time
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db      *sql.DB
	usage   UsageCounter
	dueDays int
	curr    string
	now     func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, usage UsageCounter, opts Options) *PostgresService {
	s := &PostgresService{
		db:      db,
		usage:   usage,
		dueDays: opts.InvoiceDueDays,
		curr:    opts.Currency,
		now:     opts.Now,
	}
	if s.curr == "" {
		s.curr = DefaultCurrency
	}
	if s.dueDays <= 0 {
		s.dueDays = 14
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

const subscriptionColumns = `id, team_id, tier, interval, status, anchor, current_period_start,
	current_period_end, cycle_tier, pending_interval, cancel_at_period_end, canceled_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	sub := &Subscription{}
	var pending sql.NullString
	var canceledAt sql.NullTime
	err := row.Scan(
		&sub.ID, &sub.TeamID, &sub.Tier, &sub.Interval, &sub.Status, &sub.Anchor,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CycleTier, &pending,
		&sub.CancelAtPeriodEnd, &canceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if pending.Valid {
		sub.PendingInterval = plans.Interval(pending.String)
	}
	if canceledAt.Valid {
		t := canceledAt.Time.UTC()
		sub.CanceledAt = &t
	}
	sub.Anchor = sub.Anchor.UTC()
	sub.CurrentPeriodStart = sub.CurrentPeriodStart.UTC()
	sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC()
	return sub, nil
}

// CreateSubscription starts a subscription anchored at the current time. A trial delays
// the anchor to the end of the trial; no base fee is billed for the trial period.
func (s *PostgresService) CreateSubscription(ctx context.Context, teamID int64, req *CreateSubscriptionRequest) (*Subscription, error) {
	if _, err := plans.Lookup(req.Tier); err != nil {
		return nil, err
	}
	interval := req.Interval
	if interval == "" {
		interval = plans.IntervalMonthly
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("invalid billing interval %q", interval)
	}

	now := s.now().UTC().Truncate(time.Second)
	sub := &Subscription{
		TeamID:    teamID,
		Tier:      req.Tier,
		CycleTier: req.Tier,
		Interval:  interval,
		Status:    SubscriptionStatusActive,
		Anchor:    now,
	}

	if req.TrialDays > 0 {
		sub.Status = SubscriptionStatusTrialing
		sub.Anchor = now.AddDate(0, 0, req.TrialDays)
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = sub.Anchor
	} else {
		c := CycleFor(sub.Anchor, interval, now)
		sub.CurrentPeriodStart = c.Start
		sub.CurrentPeriodEnd = c.End
	}

	query := `
		INSERT INTO subscriptions (team_id, tier, interval, status, anchor, current_period_start,
			current_period_end, cycle_tier, cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		ON CONFLICT (team_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, sub.TeamID, sub.Tier, sub.Interval, sub.Status,
		sub.Anchor, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CycleTier).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// GetSubscription retrieves the subscription of a team
func (s *PostgresService) GetSubscription(ctx context.Context, teamID int64) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE team_id = $1`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, teamID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ChangePlan moves a subscription to another tier. The change applies immediately and
// the proration lines are recorded for the next invoice. An interval change is
// scheduled for the next cycle.
func (s *PostgresService) ChangePlan(ctx context.Context, teamID int64, req *ChangePlanRequest) (*Subscription, *Quote, error) {
	to, err := plans.Lookup(req.Tier)
	if err != nil {
		return nil, nil, err
	}
	if req.Interval != "" && !req.Interval.Valid() {
		return nil, nil, fmt.Errorf("invalid billing interval %q", req.Interval)
	}

	sub, err := s.GetSubscription(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	if sub.Status == SubscriptionStatusCanceled {
		return nil, nil, ErrCanceled
	}
	from, err := sub.Plan()
	if err != nil {
		return nil, nil, err
	}

	usage, err := s.usage.CountUsage(ctx, teamID, sub.Cycle())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count usage: %w", err)
	}
	if err := plans.CanDowngrade(from, to, usage); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	quote := &Quote{Tier: to.Tier, Interval: sub.Interval, Currency: s.curr}
	if from.Tier != to.Tier && sub.Status != SubscriptionStatusTrialing {
		*quote = PlanChangeQuote(from, to, sub.Interval, sub.Cycle(), now)
		quote.Currency = s.curr
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, line := range quote.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO billing_adjustments (team_id, kind, description, amount_cents)
			VALUES ($1, $2, $3, $4)
		`, teamID, line.Kind, line.Description, line.AmountCents)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to record proration: %w", err)
		}
	}

	pending := sub.PendingInterval
	if req.Interval != "" {
		pending = req.Interval
		if pending == sub.Interval {
			pending = ""
		}
	}
	cycleTier := sub.CycleTier
	if sub.Status == SubscriptionStatusTrialing {
		cycleTier = to.Tier
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET tier = $1, cycle_tier = $2, pending_interval = NULLIF($3, ''), updated_at = NOW()
		WHERE team_id = $4
	`, to.Tier, cycleTier, string(pending), teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit plan change: %w", err)
	}

	sub.Tier = to.Tier
	sub.CycleTier = cycleTier
	sub.PendingInterval = pending
	return sub, quote, nil
}

// CancelSubscription cancels a subscription, either at the end of the current cycle or
// immediately. An immediate cancel ends the subscription without a final invoice.
func (s *PostgresService) CancelSubscription(ctx context.Context, teamID int64, immediately bool) (*Subscription, error) {
	sub, err := s.GetSubscription(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if sub.Status == SubscriptionStatusCanceled {
		return nil, ErrCanceled
	}

	if immediately {
		now := s.now().UTC()
		query := `
			UPDATE subscriptions
			SET status = $1, canceled_at = $2, cancel_at_period_end = false, updated_at = NOW()
			WHERE team_id = $3
		`
		if _, err := s.db.ExecContext(ctx, query, SubscriptionStatusCanceled, now, teamID); err != nil {
			return nil, fmt.Errorf("failed to cancel subscription: %w", err)
		}
		sub.Status = SubscriptionStatusCanceled
		sub.CanceledAt = &now
		sub.CancelAtPeriodEnd = false
		return sub, nil
	}

	query := `UPDATE subscriptions SET cancel_at_period_end = true, updated_at = NOW() WHERE team_id = $1`
	if _, err := s.db.ExecContext(ctx, query, teamID); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	sub.CancelAtPeriodEnd = true
	return sub, nil
}

// ReactivateSubscription undoes a scheduled cancellation. A subscription that is
// already canceled restarts with a new anchor at the current time.
func (s *PostgresService) ReactivateSubscription(ctx context.Context, teamID int64) (*Subscription, error) {
	sub, err := s.GetSubscription(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if sub.Status != SubscriptionStatusCanceled {
		query := `UPDATE subscriptions SET cancel_at_period_end = false, updated_at = NOW() WHERE team_id = $1`
		if _, err := s.db.ExecContext(ctx, query, teamID); err != nil {
			return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
		}
		sub.CancelAtPeriodEnd = false
		return sub, nil
	}

	now := s.now().UTC().Truncate(time.Second)
	c := CycleFor(now, sub.Interval, now)
	query := `
		UPDATE subscriptions
		SET status = $1, anchor = $2, current_period_start = $3, current_period_end = $4,
			cycle_tier = tier, cancel_at_period_end = false, canceled_at = NULL, updated_at = NOW()
		WHERE team_id = $5
	`
	if _, err := s.db.ExecContext(ctx, query, SubscriptionStatusActive, now, c.Start, c.End, teamID); err != nil {
		return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
	}

	sub.Status = SubscriptionStatusActive
	sub.Anchor = now
	sub.CurrentPeriodStart = c.Start
	sub.CurrentPeriodEnd = c.End
	sub.CycleTier = sub.Tier
	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = nil
	return sub, nil
}

// Quote previews the invoice of the current cycle from the usage so far
func (s *PostgresService) Quote(ctx context.Context, teamID int64) (*Quote, error) {
	sub, err := s.GetSubscription(ctx, teamID)
	if err != nil {
		return nil, err
	}
	c := sub.Cycle()

	usage, err := s.usage.CountUsage(ctx, teamID, c)
	if err != nil {
		return nil, fmt.Errorf("failed to count usage: %w", err)
	}
	lines, err := s.cycleLines(ctx, s.db, sub, usage)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Tier:        sub.Tier,
		Interval:    sub.Interval,
		PeriodStart: timePtr(c.Start),
		PeriodEnd:   timePtr(c.End),
		Lines:       lines,
		TotalCents:  Total(lines),
		Currency:    s.curr,
	}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// cycleLines builds the invoice lines of the subscription's current cycle: the base fee
// of the tier the cycle started on, seat and contract overage of the current tier, and
// any uninvoiced adjustments.
func (s *PostgresService) cycleLines(ctx context.Context, q querier, sub *Subscription, usage plans.Usage) ([]LineItem, error) {
	current, err := sub.Plan()
	if err != nil {
		return nil, err
	}
	cyclePlan, err := plans.Lookup(sub.CycleTier)
	if err != nil {
		cyclePlan = current
	}

	var lines []LineItem
	if sub.Status != SubscriptionStatusTrialing {
		calc := Calculate(current, sub.Interval, usage.Seats, usage.ContractsThisCycle)
		lines = append(lines, BaseLine(cyclePlan, sub.Interval))
		lines = append(lines, calc.Lines[1:]...)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT kind, description, amount_cents
		FROM billing_adjustments
		WHERE team_id = $1 AND invoice_id IS NULL
		ORDER BY id
	`, sub.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.Kind, &l.Description, &l.AmountCents); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		l.Quantity = 1
		l.UnitCents = l.AmountCents
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	return lines, nil
}

// CloseCycle invoices a team's finished cycle and rolls the subscription forward. A
// scheduled cancellation takes effect here, as does a pending interval change.
func (s *PostgresService) CloseCycle(ctx context.Context, teamID int64, at time.Time) (*Invoice, error) {
	sub, err := s.GetSubscription(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if sub.Status == SubscriptionStatusCanceled {
		return nil, ErrCanceled
	}
	c := sub.Cycle()
	if at.Before(c.End) {
		return nil, ErrCycleNotFinished
	}

	usage, err := s.usage.CountUsage(ctx, teamID, c)
	if err != nil {
		return nil, fmt.Errorf("failed to count usage: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the row so two runners cannot close the same cycle
	locked, err := scanSubscription(tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE team_id = $1 FOR UPDATE`, teamID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	if !locked.CurrentPeriodEnd.Equal(c.End) {
		return nil, ErrCycleNotFinished
	}

	lines, err := s.cycleLines(ctx, tx, locked, usage)
	if err != nil {
		return nil, err
	}

	number := InvoiceNumber(teamID, c.Start)
	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE team_id = $1 AND (number = $2 OR number LIKE $2 || '-%')`,
		teamID, number).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to number invoice: %w", err)
	}

	inv := &Invoice{
		TeamID:      teamID,
		Number:      sequencedNumber(number, existing),
		PeriodStart: c.Start,
		PeriodEnd:   c.End,
		Status:      InvoiceStatusOpen,
		Lines:       lines,
		TotalCents:  Total(lines),
		Currency:    s.curr,
		DueAt:       c.End.AddDate(0, 0, s.dueDays),
	}
	if inv.TotalCents == 0 {
		inv.Status = InvoiceStatusPaid
	}

	linesJSON, err := json.Marshal(inv.Lines)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice lines: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoices (team_id, number, period_start, period_end, status, lines, total_cents, currency, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, inv.TeamID, inv.Number, inv.PeriodStart, inv.PeriodEnd, inv.Status, linesJSON,
		inv.TotalCents, inv.Currency, inv.DueAt).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE billing_adjustments SET invoice_id = $1 WHERE team_id = $2 AND invoice_id IS NULL`,
		inv.ID, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to settle adjustments: %w", err)
	}

	if locked.CancelAtPeriodEnd {
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $1, canceled_at = $2, cancel_at_period_end = false, updated_at = NOW()
			WHERE team_id = $3
		`, SubscriptionStatusCanceled, c.End, teamID)
	} else {
		interval, anchor := locked.Interval, locked.Anchor
		if locked.PendingInterval != "" && locked.PendingInterval != interval {
			interval, anchor = locked.PendingInterval, c.End
		}
		next := CycleFor(anchor, interval, c.End)
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $1, interval = $2, anchor = $3, current_period_start = $4,
				current_period_end = $5, cycle_tier = tier, pending_interval = NULL, updated_at = NOW()
			WHERE team_id = $6
		`, SubscriptionStatusActive, interval, anchor, next.Start, next.End, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to roll subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cycle close: %w", err)
	}
	return inv, nil
}

const invoiceColumns = `id, team_id, number, period_start, period_end, status, lines, total_cents, currency, due_at, created_at`

func scanInvoice(row rowScanner) (*Invoice, error) {
	inv := &Invoice{}
	var linesJSON []byte
	err := row.Scan(&inv.ID, &inv.TeamID, &inv.Number, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.Status, &linesJSON, &inv.TotalCents, &inv.Currency, &inv.DueAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(linesJSON) > 0 {
		if err := json.Unmarshal(linesJSON, &inv.Lines); err != nil {
			return nil, fmt.Errorf("failed to unmarshal invoice lines: %w", err)
		}
	}
	return inv, nil
}

// ListInvoices lists a team's invoices, newest first
func (s *PostgresService) ListInvoices(ctx context.Context, teamID int64, limit, offset int) ([]*Invoice, error) {
	if limit <= 0 {
		limit = 12
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE team_id = $1
		ORDER BY period_start DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, teamID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// GetInvoice retrieves one of a team's invoices
func (s *PostgresService) GetInvoice(ctx context.Context, teamID, invoiceID int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE team_id = $1 AND id = $2`
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, teamID, invoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// DueForRenewal lists teams whose current cycle ended at or before at
func (s *PostgresService) DueForRenewal(ctx context.Context, at time.Time) ([]int64, error) {
	query := `
		SELECT team_id FROM subscriptions
		WHERE status <> $1 AND current_period_end <= $2
		ORDER BY current_period_end
	`
	rows, err := s.db.QueryContext(ctx, query, SubscriptionStatusCanceled, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	var teams []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		teams = append(teams, id)
	}
	return teams, rows.Err()
}
