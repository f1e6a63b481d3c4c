package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/drafting"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/teams"
)

// DraftHandlers handles AI drafting requests
type DraftHandlers struct {
	drafter Drafter
}

// NewDraftHandlers creates a new DraftHandlers
func NewDraftHandlers(drafter Drafter) *DraftHandlers {
	return &DraftHandlers{drafter: drafter}
}

// RegisterRoutes registers drafting routes on a team-scoped router
func (h *DraftHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/drafts", middleware.RequireRoleFunc(teams.RoleAgent, h.CreateDraft)).Methods("POST")
}

// CreateDraft handles POST /drafts
func (h *DraftHandlers) CreateDraft(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		httputil.WriteServiceUnavailable(w, drafting.ErrDisabled.Error())
		return
	}
	var req drafting.DraftRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	draft, err := h.drafter.DraftClause(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, draft)
}
