package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/teams"
)

// TeamLookup loads a team and the caller's membership
type TeamLookup interface {
	GetTeam(ctx context.Context, id int64) (*teams.Team, error)
	GetMember(ctx context.Context, teamID int64, userID string) (*teams.Member, error)
}

// TeamMiddleware resolves {team_id} from the route and requires the authenticated
// caller to be a member. Non-members get the same 404 as a missing team.
//
// REQUIRES: AuthMiddleware must run before this middleware
func TeamMiddleware(lookup TeamLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r)
			if principal == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			teamID, err := strconv.ParseInt(mux.Vars(r)["team_id"], 10, 64)
			if err != nil || teamID <= 0 {
				httputil.WriteBadRequest(w, "invalid team ID")
				return
			}

			team, err := lookup.GetTeam(r.Context(), teamID)
			if err != nil {
				writeLookupError(w, err)
				return
			}
			member, err := lookup.GetMember(r.Context(), teamID, principal.Subject)
			if err != nil {
				writeLookupError(w, err)
				return
			}
			if team.Status == teams.StatusSuspended && r.Method != http.MethodGet {
				httputil.WriteForbidden(w, "team is suspended")
				return
			}

			ctx := contextkeys.WithTeam(r.Context(), teamID, team, member)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, teams.ErrNotFound) || errors.Is(err, teams.ErrMemberNotFound) {
		httputil.WriteNotFoundError(w, teams.ErrNotFound.Error())
		return
	}
	httputil.WriteInternalError(w, err)
}

// RequireRole rejects callers whose team role ranks below min
//
// REQUIRES: TeamMiddleware must run before this middleware
func RequireRole(min teams.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			member := GetMember(r)
			if member == nil {
				httputil.WriteForbidden(w, "team membership required")
				return
			}
			if !member.Role.AtLeast(min) {
				httputil.WriteForbidden(w, "requires "+string(min)+" role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleFunc is RequireRole for a single handler function
func RequireRoleFunc(min teams.Role, fn http.HandlerFunc) http.Handler {
	return RequireRole(min)(fn)
}

// GetTeam returns the team resolved by TeamMiddleware
func GetTeam(r *http.Request) *teams.Team {
	team, _ := r.Context().Value(contextkeys.TeamKey).(*teams.Team)
	return team
}

// GetMember returns the caller's membership resolved by TeamMiddleware
func GetMember(r *http.Request) *teams.Member {
	member, _ := r.Context().Value(contextkeys.MemberKey).(*teams.Member)
	return member
}
