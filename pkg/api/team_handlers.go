package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/plans"
	"github.com/platinummonkey/closingroom/pkg/teams"
)

// SubscriptionCreator starts a new team's subscription
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, teamID int64, req *billing.CreateSubscriptionRequest) (*billing.Subscription, error)
}

// TeamHandlers handles teams, members and invitations
type TeamHandlers struct {
	teams         teams.Service
	subscriptions SubscriptionCreator
}

// NewTeamHandlers creates a new TeamHandlers. New teams are put on the free plan
// through subscriptions when it is set.
func NewTeamHandlers(service teams.Service, subscriptions SubscriptionCreator) *TeamHandlers {
	return &TeamHandlers{teams: service, subscriptions: subscriptions}
}

// RegisterRoutes registers the routes that are not scoped to one team
func (h *TeamHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/teams", h.CreateTeam).Methods("POST")
	router.HandleFunc("/teams", h.ListTeams).Methods("GET")
	router.HandleFunc("/invitations/{token}/accept", h.AcceptInvitation).Methods("POST")
}

// RegisterTeamRoutes registers routes on a team-scoped router
func (h *TeamHandlers) RegisterTeamRoutes(router *mux.Router) {
	router.HandleFunc("", h.GetTeam).Methods("GET")
	router.Handle("", middleware.RequireRoleFunc(teams.RoleAdmin, h.UpdateTeam)).Methods("PUT")
	router.Handle("", middleware.RequireRoleFunc(teams.RoleOwner, h.DeleteTeam)).Methods("DELETE")

	// Members
	router.HandleFunc("/members", h.ListMembers).Methods("GET")
	router.Handle("/members", middleware.RequireRoleFunc(teams.RoleAdmin, h.AddMember)).Methods("POST")
	router.Handle("/members/{user_id}", middleware.RequireRoleFunc(teams.RoleAdmin, h.UpdateMember)).Methods("PUT")
	router.HandleFunc("/members/{user_id}", h.RemoveMember).Methods("DELETE")

	// Invitations
	router.Handle("/invitations", middleware.RequireRoleFunc(teams.RoleAdmin, h.ListInvitations)).Methods("GET")
	router.Handle("/invitations", middleware.RequireRoleFunc(teams.RoleAdmin, h.Invite)).Methods("POST")
	router.Handle("/invitations/{invitation_id:[0-9]+}", middleware.RequireRoleFunc(teams.RoleAdmin, h.RevokeInvitation)).Methods("DELETE")
}

// CreateTeam handles POST /teams. The caller becomes the owner.
func (h *TeamHandlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	var req teams.CreateTeamRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}

	team, err := h.teams.CreateTeam(r.Context(), principal.Subject, principal.Email, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Limits fall back to the free plan without a subscription, so a failure here
	// does not fail the request.
	if h.subscriptions != nil {
		_, err := h.subscriptions.CreateSubscription(r.Context(), team.ID, &billing.CreateSubscriptionRequest{
			Tier:     plans.TierFree,
			Interval: plans.IntervalMonthly,
		})
		if err != nil && !errors.Is(err, billing.ErrAlreadyExists) {
			observability.FromContext(r.Context()).WithError(err).WithField("team_id", team.ID).
				Warn("Failed to start free subscription")
		}
	}
	httputil.WriteCreated(w, team)
}

// ListTeams handles GET /teams
func (h *TeamHandlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	list, err := h.teams.ListTeams(r.Context(), middleware.GetPrincipal(r).Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetTeam handles GET /teams/{team_id}
func (h *TeamHandlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, middleware.GetTeam(r))
}

// UpdateTeam handles PUT /teams/{team_id}
func (h *TeamHandlers) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req teams.UpdateTeamRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	team, err := h.teams.UpdateTeam(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, team)
}

// DeleteTeam handles DELETE /teams/{team_id}
func (h *TeamHandlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.teams.DeleteTeam(r.Context(), contextkeys.GetTeamID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListMembers handles GET /teams/{team_id}/members
func (h *TeamHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.teams.ListMembers(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// AddMember handles POST /teams/{team_id}/members
func (h *TeamHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req teams.AddMemberRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	member, err := h.teams.AddMember(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// UpdateMember handles PUT /teams/{team_id}/members/{user_id}
func (h *TeamHandlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}
	var req teams.UpdateMemberRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	member, err := h.teams.UpdateMemberRole(r.Context(), contextkeys.GetTeamID(r.Context()), userID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

// RemoveMember handles DELETE /teams/{team_id}/members/{user_id}. Members may remove
// themselves; removing anyone else takes the admin role.
func (h *TeamHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}
	caller := middleware.GetMember(r)
	if caller == nil || (caller.UserID != userID && !caller.Role.AtLeast(teams.RoleAdmin)) {
		httputil.WriteForbidden(w, "requires "+string(teams.RoleAdmin)+" role")
		return
	}
	if err := h.teams.RemoveMember(r.Context(), contextkeys.GetTeamID(r.Context()), userID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListInvitations handles GET /teams/{team_id}/invitations
func (h *TeamHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.teams.ListInvitations(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// Invite handles POST /teams/{team_id}/invitations
func (h *TeamHandlers) Invite(w http.ResponseWriter, r *http.Request) {
	var req teams.InviteRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	invitation, err := h.teams.Invite(r.Context(), contextkeys.GetTeamID(r.Context()), middleware.GetPrincipal(r).Subject, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, invitation)
}

// RevokeInvitation handles DELETE /teams/{team_id}/invitations/{invitation_id}
func (h *TeamHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}
	if err := h.teams.RevokeInvitation(r.Context(), contextkeys.GetTeamID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AcceptInvitation handles POST /invitations/{token}/accept for the signed-in user
func (h *TeamHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}
	principal := middleware.GetPrincipal(r)
	member, err := h.teams.AcceptInvitation(r.Context(), token, principal.Subject, principal.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}
