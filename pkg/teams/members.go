package teams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ListMembers retrieves all members of a team
func (s *PostgresService) ListMembers(ctx context.Context, teamID int64) ([]*Member, error) {
	query := `
		SELECT team_id, user_id, email, role, joined_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(&member.TeamID, &member.UserID, &member.Email, &member.Role, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// GetMember retrieves a specific member
func (s *PostgresService) GetMember(ctx context.Context, teamID int64, userID string) (*Member, error) {
	query := `
		SELECT team_id, user_id, email, role, joined_at
		FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`
	member := &Member{}
	err := s.db.QueryRowContext(ctx, query, teamID, userID).Scan(
		&member.TeamID, &member.UserID, &member.Email, &member.Role, &member.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// AddMember adds an existing user to a team after checking the seat limit
func (s *PostgresService) AddMember(ctx context.Context, teamID int64, req *AddMemberRequest) (*Member, error) {
	if !req.Role.Valid() || req.Role == RoleOwner {
		return nil, ErrInvalidRole
	}
	if err := s.checkSeat(ctx, teamID, false); err != nil {
		return nil, err
	}

	member := &Member{TeamID: teamID, UserID: req.UserID, Email: req.Email, Role: req.Role}
	query := `
		INSERT INTO team_members (team_id, user_id, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
		RETURNING joined_at
	`
	err := s.db.QueryRowContext(ctx, query, teamID, req.UserID, req.Email, req.Role).Scan(&member.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.invalidate(ctx, teamID)
	s.publish(ctx, teamID, EventMemberJoined, member)
	return member, nil
}

// UpdateMemberRole changes a member's role. The owner's role is fixed.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, teamID int64, userID string, role Role) (*Member, error) {
	if !role.Valid() || role == RoleOwner {
		return nil, ErrInvalidRole
	}

	member, err := s.GetMember(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if member.Role == RoleOwner {
		return nil, ErrOwnerRequired
	}

	query := `UPDATE team_members SET role = $1 WHERE team_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, role, teamID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update member role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrMemberNotFound
	}

	member.Role = role
	return member, nil
}

// RemoveMember removes a user from a team. The owner cannot be removed.
func (s *PostgresService) RemoveMember(ctx context.Context, teamID int64, userID string) error {
	query := `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2 AND role <> $3`
	result, err := s.db.ExecContext(ctx, query, teamID, userID, RoleOwner)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		member, err := s.GetMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if member.Role == RoleOwner {
			return ErrOwnerRequired
		}
		return ErrMemberNotFound
	}

	s.invalidate(ctx, teamID)
	s.publish(ctx, teamID, EventMemberRemoved, map[string]interface{}{"team_id": teamID, "user_id": userID})
	return nil
}

// Invite creates an invitation, which holds a seat until it is accepted, revoked or
// expires, and emails the invitee. A failed email is logged; the invitation stands.
func (s *PostgresService) Invite(ctx context.Context, teamID int64, invitedBy string, req *InviteRequest) (*Invitation, error) {
	if !req.Role.Valid() || req.Role == RoleOwner {
		return nil, ErrInvalidRole
	}
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSeat(ctx, teamID, false); err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	now := s.now().UTC()
	inv := &Invitation{
		TeamID:    teamID,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Role:      req.Role,
		Token:     token,
		InvitedBy: invitedBy,
		ExpiresAt: now.Add(InvitationTTL),
		CreatedAt: now,
	}

	query := `
		INSERT INTO team_invitations (team_id, email, role, token, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, inv.TeamID, inv.Email, inv.Role, inv.Token,
		inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt).Scan(&inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	s.invalidate(ctx, teamID)

	if s.notifier != nil {
		if err := s.notifier.NotifyInvitation(ctx, team.Name, inv.Email, inv.Token, inv.ExpiresAt); err != nil {
			s.logger.WithError(err).WithField("team_id", teamID).WithField("invitation_id", inv.ID).
				Warn("Failed to send invitation email")
		}
	}

	s.publish(ctx, teamID, EventMemberInvited, map[string]interface{}{
		"team_id":    teamID,
		"email":      inv.Email,
		"role":       inv.Role,
		"expires_at": inv.ExpiresAt,
	})
	return inv, nil
}

// ListInvitations lists a team's pending invitations. Tokens are not returned.
func (s *PostgresService) ListInvitations(ctx context.Context, teamID int64) ([]*Invitation, error) {
	query := `
		SELECT id, team_id, email, role, invited_by, expires_at, created_at
		FROM team_invitations
		WHERE team_id = $1 AND accepted_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*Invitation{}
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(&inv.ID, &inv.TeamID, &inv.Email, &inv.Role, &inv.InvitedBy,
			&inv.ExpiresAt, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// AcceptInvitation adds the user to the invitation's team. The seat limit is checked
// again with the invitation's own hold taken out of the count. When email is set it
// must match the invited address.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token, userID, email string) (*Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, team_id, email, role, expires_at, accepted_at
		FROM team_invitations
		WHERE token = $1
		FOR UPDATE
	`
	var (
		id, teamID   int64
		invitedEmail string
		role         Role
		expiresAt    time.Time
		acceptedAt   sql.NullTime
	)
	err = tx.QueryRowContext(ctx, query, token).Scan(&id, &teamID, &invitedEmail, &role, &expiresAt, &acceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return nil, ErrInvitationAccepted
	}
	if !s.now().Before(expiresAt) {
		return nil, ErrInvitationExpired
	}
	if email != "" && !strings.EqualFold(strings.TrimSpace(email), invitedEmail) {
		return nil, ErrInvitationEmailMismatch
	}
	if err := s.checkSeat(ctx, teamID, true); err != nil {
		return nil, err
	}

	member := &Member{TeamID: teamID, UserID: userID, Email: invitedEmail, Role: role}
	query = `
		INSERT INTO team_members (team_id, user_id, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
		RETURNING joined_at
	`
	err = tx.QueryRowContext(ctx, query, teamID, userID, invitedEmail, role).Scan(&member.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE team_invitations SET accepted_at = $1 WHERE id = $2`, s.now().UTC(), id); err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}

	s.invalidate(ctx, teamID)
	s.publish(ctx, teamID, EventMemberJoined, member)
	return member, nil
}

// RevokeInvitation deletes a pending invitation
func (s *PostgresService) RevokeInvitation(ctx context.Context, teamID, id int64) error {
	query := `DELETE FROM team_invitations WHERE team_id = $1 AND id = $2 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, teamID, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvitationNotFound
	}
	s.invalidate(ctx, teamID)
	return nil
}

// CleanupExpiredInvitations removes expired pending invitations and returns how many
// were removed. Cached usage of every affected team is dropped, since pending invitations
// count toward seats.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	query := `DELETE FROM team_invitations WHERE expires_at <= $1 AND accepted_at IS NULL RETURNING team_id`
	rows, err := s.db.QueryContext(ctx, query, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	defer rows.Close()

	var n int64
	affected := make(map[int64]struct{})
	for rows.Next() {
		var teamID int64
		if err := rows.Scan(&teamID); err != nil {
			return n, fmt.Errorf("failed to scan expired invitation: %w", err)
		}
		n++
		affected[teamID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}

	for teamID := range affected {
		s.invalidate(ctx, teamID)
	}
	return n, nil
}

func (s *PostgresService) checkSeat(ctx context.Context, teamID int64, accepting bool) error {
	if s.seats == nil {
		return nil
	}
	check := s.seats.CheckSeat
	if accepting {
		check = s.seats.CheckSeatAccept
	}
	d, err := check(ctx, teamID)
	if err != nil {
		return err
	}
	return d.Err()
}
