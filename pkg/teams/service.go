package teams

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/plans"
)

// SeatChecker enforces the plan's seat limit
type SeatChecker interface {
	CheckSeat(ctx context.Context, teamID int64) (plans.Decision, error)
	CheckSeatAccept(ctx context.Context, teamID int64) (plans.Decision, error)
	Invalidate(ctx context.Context, teamID int64)
}

// Notifier delivers invitation emails
type Notifier interface {
	NotifyInvitation(ctx context.Context, teamName, email, token string, expiresAt time.Time) error
}

// Publisher emits team events to registered webhooks
type Publisher interface {
	Publish(ctx context.Context, teamID int64, event string, data interface{})
}

// Team events
const (
	EventMemberInvited = "team.member_invited"
	EventMemberJoined  = "team.member_joined"
	EventMemberRemoved = "team.member_removed"
)

// Service manages teams, members and invitations
type Service interface {
	CreateTeam(ctx context.Context, ownerID, ownerEmail string, req *CreateTeamRequest) (*Team, error)
	GetTeam(ctx context.Context, id int64) (*Team, error)
	ListTeams(ctx context.Context, userID string) ([]*Team, error)
	UpdateTeam(ctx context.Context, id int64, req *UpdateTeamRequest) (*Team, error)
	DeleteTeam(ctx context.Context, id int64) error

	ListMembers(ctx context.Context, teamID int64) ([]*Member, error)
	GetMember(ctx context.Context, teamID int64, userID string) (*Member, error)
	AddMember(ctx context.Context, teamID int64, req *AddMemberRequest) (*Member, error)
	UpdateMemberRole(ctx context.Context, teamID int64, userID string, role Role) (*Member, error)
	RemoveMember(ctx context.Context, teamID int64, userID string) error

	Invite(ctx context.Context, teamID int64, invitedBy string, req *InviteRequest) (*Invitation, error)
	ListInvitations(ctx context.Context, teamID int64) ([]*Invitation, error)
	AcceptInvitation(ctx context.Context, token, userID, email string) (*Member, error)
	RevokeInvitation(ctx context.Context, teamID, id int64) error
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}

// Options wires optional collaborators into a PostgresService
type Options struct {
	Seats    SeatChecker
	Notifier Notifier
	Events   Publisher
	Logger   *observability.Logger
	Now      func() time.Time
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db       *sql.DB
	seats    SeatChecker
	notifier Notifier
	events   Publisher
	logger   *observability.Logger
	now      func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, opts Options) *PostgresService {
	s := &PostgresService{
		db:       db,
		seats:    opts.Seats,
		notifier: opts.Notifier,
		events:   opts.Events,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateTeam creates a team and adds the caller as its owner
func (s *PostgresService) CreateTeam(ctx context.Context, ownerID, ownerEmail string, req *CreateTeamRequest) (*Team, error) {
	team := &Team{
		Name:    strings.TrimSpace(req.Name),
		Slug:    req.Slug,
		OwnerID: ownerID,
		Status:  StatusActive,
	}
	generated := team.Slug == ""
	if generated {
		team.Slug = generateSlug(team.Name)
	}
	if team.Slug == "" {
		return nil, fmt.Errorf("team name %q does not produce a usable slug", req.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taken bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE slug = $1)`, team.Slug).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if taken {
		if !generated {
			return nil, ErrSlugTaken
		}
		suffix, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate slug suffix: %w", err)
		}
		team.Slug = team.Slug + "-" + suffix[:6]
	}

	query := `
		INSERT INTO teams (name, slug, owner_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, team.Name, team.Slug, team.OwnerID, team.Status).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, email, role) VALUES ($1, $2, $3, $4)`,
		team.ID, ownerID, ownerEmail, RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit team: %w", err)
	}
	return team, nil
}

// GetTeam retrieves a team by ID
func (s *PostgresService) GetTeam(ctx context.Context, id int64) (*Team, error) {
	query := `
		SELECT id, name, slug, owner_id, status, created_at, updated_at
		FROM teams
		WHERE id = $1
	`
	team := &Team{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&team.ID, &team.Name, &team.Slug, &team.OwnerID, &team.Status,
		&team.CreatedAt, &team.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// ListTeams lists the teams a user belongs to
func (s *PostgresService) ListTeams(ctx context.Context, userID string) ([]*Team, error) {
	query := `
		SELECT t.id, t.name, t.slug, t.owner_id, t.status, t.created_at, t.updated_at
		FROM teams t
		JOIN team_members m ON t.id = m.team_id
		WHERE m.user_id = $1
		ORDER BY t.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := []*Team{}
	for rows.Next() {
		team := &Team{}
		if err := rows.Scan(
			&team.ID, &team.Name, &team.Slug, &team.OwnerID, &team.Status,
			&team.CreatedAt, &team.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// UpdateTeam renames a team. The slug does not change.
func (s *PostgresService) UpdateTeam(ctx context.Context, id int64, req *UpdateTeamRequest) (*Team, error) {
	if req.Name == nil {
		return s.GetTeam(ctx, id)
	}

	query := `
		UPDATE teams SET name = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, name, slug, owner_id, status, created_at, updated_at
	`
	team := &Team{}
	err := s.db.QueryRowContext(ctx, query, strings.TrimSpace(*req.Name), id).Scan(
		&team.ID, &team.Name, &team.Slug, &team.OwnerID, &team.Status,
		&team.CreatedAt, &team.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}
	return team, nil
}

// DeleteTeam deletes a team and everything it owns
func (s *PostgresService) DeleteTeam(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	if s.seats != nil {
		s.seats.Invalidate(ctx, id)
	}
	return nil
}

func (s *PostgresService) publish(ctx context.Context, teamID int64, event string, data interface{}) {
	if s.events != nil {
		s.events.Publish(ctx, teamID, event, data)
	}
}

func (s *PostgresService) invalidate(ctx context.Context, teamID int64) {
	if s.seats != nil {
		s.seats.Invalidate(ctx, teamID)
	}
}

// generateSlug lowercases name, turns spaces into dashes and drops everything else
// outside [a-z0-9-]
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// generateToken returns 32 random bytes hex encoded
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
