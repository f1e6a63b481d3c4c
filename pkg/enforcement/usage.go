package enforcement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/plans"
)

// UsageSource counts a team's usage within a billing cycle from the system of record
type UsageSource interface {
	CountUsage(ctx context.Context, teamID int64, c billing.Cycle) (plans.Usage, error)
}

// SQLUsage counts usage with queries against the primary database. It also serves as
// the billing service's usage counter, which must never read cached values.
type SQLUsage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLUsage creates a SQL usage source
func NewSQLUsage(db *sql.DB) *SQLUsage {
	return &SQLUsage{db: db, now: time.Now}
}

// CountUsage implements UsageSource and billing.UsageCounter
func (u *SQLUsage) CountUsage(ctx context.Context, teamID int64, c billing.Cycle) (plans.Usage, error) {
	var usage plans.Usage
	err := u.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM team_members WHERE team_id = $1),
			(SELECT COUNT(*) FROM team_invitations
				WHERE team_id = $1 AND accepted_at IS NULL AND expires_at > $2),
			(SELECT COUNT(*) FROM contracts
				WHERE team_id = $1 AND created_at >= $3 AND created_at < $4),
			(SELECT COUNT(*) FROM templates WHERE team_id = $1),
			(SELECT COUNT(*) FROM ai_drafts
				WHERE team_id = $1 AND created_at >= $3 AND created_at < $4)
	`, teamID, u.now().UTC(), c.Start, c.End).Scan(
		&usage.Seats,
		&usage.PendingInvites,
		&usage.ContractsThisCycle,
		&usage.Templates,
		&usage.AIDraftsThisCycle,
	)
	if err != nil {
		return plans.Usage{}, fmt.Errorf("failed to count usage: %w", err)
	}
	return usage, nil
}

var _ billing.UsageCounter = (*SQLUsage)(nil)
