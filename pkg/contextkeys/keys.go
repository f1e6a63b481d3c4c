// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that packages
// which cannot import each other still agree on them.
//
//	ctx = contextkeys.WithAuth(ctx, principal)
//	principal, _ := ctx.Value(contextkeys.AuthKey).(*auth.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Principal
	// Set by: middleware.AuthMiddleware
	// Required by: all /api/v1 endpoints
	AuthKey Key = "auth_principal"

	// TeamKey contains *teams.Team
	// Set by: middleware.TeamMiddleware
	// Required by: team-scoped endpoints
	TeamKey Key = "team"

	// MemberKey contains *teams.Member, the caller's membership in TeamKey's team
	// Set by: middleware.TeamMiddleware
	// Required by: role checks
	MemberKey Key = "team_member"

	// TeamIDKey contains the active team ID (int64)
	// Set by: middleware.TeamMiddleware
	// Used by: logger
	TeamIDKey Key = "team_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, webhook payloads
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated subject
	// Set by: middleware.AuthMiddleware
	// Used by: logger, created_by columns
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.RequestIDMiddleware
	LoggerKey Key = "logger"
)

// WithAuth adds the authenticated principal to the context
func WithAuth(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, principal)
}

// WithTeam adds the active team and the caller's membership to the context
func WithTeam(ctx context.Context, teamID int64, team, member interface{}) context.Context {
	ctx = context.WithValue(ctx, TeamIDKey, teamID)
	ctx = context.WithValue(ctx, TeamKey, team)
	return context.WithValue(ctx, MemberKey, member)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetTeamID retrieves the active team ID from context
func GetTeamID(ctx context.Context) int64 {
	if teamID, ok := ctx.Value(TeamIDKey).(int64); ok {
		return teamID
	}
	return 0
}
