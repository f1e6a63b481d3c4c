package teams

import (
	"errors"
	"time"
)

// Role is a member's role within a team
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleAgent  Role = "agent"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleAgent:  2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// Status represents team status
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Team is a tenant: a brokerage or agent group sharing a subscription
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a user's membership in a team
type Member struct {
	TeamID   int64     `json:"team_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Invitation invites an email address to join a team
type Invitation struct {
	ID         int64      `json:"id"`
	TeamID     int64      `json:"team_id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	Token      string     `json:"token,omitempty"`
	InvitedBy  string     `json:"invited_by"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the invitation can no longer be accepted at t
func (i *Invitation) Expired(t time.Time) bool {
	return !t.Before(i.ExpiresAt)
}

// CreateTeamRequest creates a team
type CreateTeamRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Slug string `json:"slug,omitempty" validate:"omitempty,max=255"`
}

// UpdateTeamRequest updates a team. Nil fields are left unchanged.
type UpdateTeamRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
}

// AddMemberRequest adds an existing user directly
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
	Role   Role   `json:"role" validate:"required,oneof=admin agent viewer"`
}

// InviteRequest invites an email address
type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"role" validate:"required,oneof=admin agent viewer"`
}

// UpdateMemberRequest changes a member's role
type UpdateMemberRequest struct {
	Role Role `json:"role" validate:"required,oneof=admin agent viewer"`
}

// InvitationTTL is how long an invitation stays valid
const InvitationTTL = 7 * 24 * time.Hour

// Team errors
var (
	ErrNotFound                = errors.New("team not found")
	ErrSlugTaken               = errors.New("team slug already in use")
	ErrMemberNotFound          = errors.New("member not found")
	ErrAlreadyMember           = errors.New("user is already a member")
	ErrOwnerRequired           = errors.New("the team owner cannot be removed or demoted")
	ErrInvalidRole             = errors.New("invalid role")
	ErrInvitationNotFound      = errors.New("invitation not found")
	ErrInvitationExpired       = errors.New("invitation expired")
	ErrInvitationAccepted      = errors.New("invitation already accepted")
	ErrInvitationEmailMismatch = errors.New("invitation was sent to a different email")
)
