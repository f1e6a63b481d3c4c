package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/closingroom/pkg/observability"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema migrations in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create teams, members and invitations",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					owner_id VARCHAR(255) NOT NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS team_members (
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id VARCHAR(255) NOT NULL,
					email VARCHAR(320) NOT NULL,
					role VARCHAR(32) NOT NULL,
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (team_id, user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_team_members_user ON team_members(user_id);

				CREATE TABLE IF NOT EXISTS team_invitations (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					email VARCHAR(320) NOT NULL,
					role VARCHAR(32) NOT NULL,
					token VARCHAR(64) NOT NULL UNIQUE,
					invited_by VARCHAR(255) NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL,
					accepted_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_team_invitations_pending
					ON team_invitations(team_id) WHERE accepted_at IS NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create subscriptions, invoices and billing adjustments",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL UNIQUE REFERENCES teams(id) ON DELETE CASCADE,
					tier VARCHAR(32) NOT NULL,
					interval VARCHAR(16) NOT NULL,
					status VARCHAR(32) NOT NULL,
					anchor TIMESTAMPTZ NOT NULL,
					current_period_start TIMESTAMPTZ NOT NULL,
					current_period_end TIMESTAMPTZ NOT NULL,
					cycle_tier VARCHAR(32) NOT NULL,
					pending_interval VARCHAR(16),
					cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
					canceled_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_subscriptions_period_end
					ON subscriptions(current_period_end) WHERE status <> 'canceled';

				CREATE TABLE IF NOT EXISTS invoices (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					number VARCHAR(64) NOT NULL UNIQUE,
					period_start TIMESTAMPTZ NOT NULL,
					period_end TIMESTAMPTZ NOT NULL,
					status VARCHAR(32) NOT NULL,
					lines JSONB NOT NULL,
					total_cents BIGINT NOT NULL CHECK (total_cents >= 0),
					currency VARCHAR(3) NOT NULL,
					due_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_invoices_team ON invoices(team_id, period_start DESC);

				CREATE TABLE IF NOT EXISTS billing_adjustments (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					kind VARCHAR(32) NOT NULL,
					description TEXT NOT NULL,
					amount_cents BIGINT NOT NULL,
					invoice_id BIGINT REFERENCES invoices(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_billing_adjustments_open
					ON billing_adjustments(team_id) WHERE invoice_id IS NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create properties, templates and contracts",
			SQL: `
				CREATE TABLE IF NOT EXISTS properties (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					line1 VARCHAR(255) NOT NULL,
					line2 VARCHAR(255) NOT NULL DEFAULT '',
					city VARCHAR(128) NOT NULL,
					state VARCHAR(64) NOT NULL,
					postal_code VARCHAR(16) NOT NULL,
					mls_number VARCHAR(64) NOT NULL DEFAULT '',
					list_price_cents BIGINT NOT NULL DEFAULT 0,
					bedrooms INT NOT NULL DEFAULT 0,
					bathrooms REAL NOT NULL DEFAULT 0,
					square_feet INT NOT NULL DEFAULT 0,
					notes TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_properties_team ON properties(team_id, id DESC);

				CREATE TABLE IF NOT EXISTS templates (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					name VARCHAR(128) NOT NULL,
					title VARCHAR(255) NOT NULL,
					kind VARCHAR(64) NOT NULL,
					body TEXT NOT NULL,
					signers JSONB NOT NULL DEFAULT '[]',
					created_by VARCHAR(255) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (team_id, name)
				);

				CREATE TABLE IF NOT EXISTS contracts (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					property_id BIGINT NOT NULL REFERENCES properties(id),
					template_id BIGINT REFERENCES templates(id) ON DELETE SET NULL,
					template_name VARCHAR(128) NOT NULL DEFAULT '',
					title VARCHAR(255) NOT NULL,
					status VARCHAR(32) NOT NULL,
					parties JSONB NOT NULL DEFAULT '[]',
					fields JSONB NOT NULL DEFAULT '{}',
					document_key VARCHAR(512) NOT NULL DEFAULT '',
					revision INT NOT NULL DEFAULT 0,
					missing JSONB NOT NULL DEFAULT '[]',
					billable_overage BOOLEAN NOT NULL DEFAULT FALSE,
					created_by VARCHAR(255) NOT NULL,
					sent_at TIMESTAMPTZ,
					completed_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_contracts_team_created ON contracts(team_id, created_at);
			`,
		},
		{
			Version:     4,
			Description: "Create AI draft log",
			SQL: `
				CREATE TABLE IF NOT EXISTS ai_drafts (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id VARCHAR(255) NOT NULL,
					kind VARCHAR(64) NOT NULL,
					model VARCHAR(128) NOT NULL,
					prompt_tokens INT NOT NULL DEFAULT 0,
					completion_tokens INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_ai_drafts_team_created ON ai_drafts(team_id, created_at);
			`,
		},
		{
			Version:     5,
			Description: "Create webhooks and delivery log",
			SQL: `
				CREATE TABLE IF NOT EXISTS webhooks (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					url TEXT NOT NULL,
					events TEXT[] NOT NULL,
					secret VARCHAR(128) NOT NULL,
					format VARCHAR(16) NOT NULL DEFAULT 'json',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_webhooks_team ON webhooks(team_id);

				CREATE TABLE IF NOT EXISTS webhook_deliveries (
					id BIGSERIAL PRIMARY KEY,
					webhook_id BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
					event_id VARCHAR(64) NOT NULL,
					event_type VARCHAR(64) NOT NULL,
					payload JSONB NOT NULL,
					status VARCHAR(32) NOT NULL,
					status_code INT NOT NULL DEFAULT 0,
					error_message TEXT NOT NULL DEFAULT '',
					attempts INT NOT NULL DEFAULT 0,
					next_retry_at TIMESTAMPTZ,
					duration_ms BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					completed_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_webhook
					ON webhook_deliveries(webhook_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_retry
					ON webhook_deliveries(next_retry_at) WHERE status = 'retrying';
			`,
		},
	}
}

// RunMigrations applies every migration that has not been recorded yet
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}

		log := logger.WithField("version", m.Version)
		log.Infof("running migration: %s", m.Description)

		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
