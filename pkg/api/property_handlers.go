package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/teams"
)

// PropertyHandlers handles a team's properties
type PropertyHandlers struct {
	properties properties.Service
}

// NewPropertyHandlers creates a new PropertyHandlers
func NewPropertyHandlers(service properties.Service) *PropertyHandlers {
	return &PropertyHandlers{properties: service}
}

// RegisterRoutes registers property routes on a team-scoped router
func (h *PropertyHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/properties", h.ListProperties).Methods("GET")
	router.Handle("/properties", middleware.RequireRoleFunc(teams.RoleAgent, h.CreateProperty)).Methods("POST")
	router.HandleFunc("/properties/{property_id:[0-9]+}", h.GetProperty).Methods("GET")
	router.Handle("/properties/{property_id:[0-9]+}", middleware.RequireRoleFunc(teams.RoleAgent, h.UpdateProperty)).Methods("PUT")
	router.Handle("/properties/{property_id:[0-9]+}", middleware.RequireRoleFunc(teams.RoleAgent, h.DeleteProperty)).Methods("DELETE")
}

// CreateProperty handles POST /properties
func (h *PropertyHandlers) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req properties.CreatePropertyRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	property, err := h.properties.Create(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, property)
}

// ListProperties handles GET /properties?limit=&offset=
func (h *PropertyHandlers) ListProperties(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	opts := properties.ListOptions{Limit: limit, Offset: offset}.Normalize()
	list, total, err := h.properties.List(r.Context(), contextkeys.GetTeamID(r.Context()), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ListResponse{Items: list, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}

// GetProperty handles GET /properties/{property_id}
func (h *PropertyHandlers) GetProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "property_id")
	if !ok {
		return
	}
	property, err := h.properties.Get(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, property)
}

// UpdateProperty handles PUT /properties/{property_id}
func (h *PropertyHandlers) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "property_id")
	if !ok {
		return
	}
	var req properties.UpdatePropertyRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	property, err := h.properties.Update(r.Context(), contextkeys.GetTeamID(r.Context()), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, property)
}

// DeleteProperty handles DELETE /properties/{property_id}. Properties with contracts
// cannot be deleted.
func (h *PropertyHandlers) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "property_id")
	if !ok {
		return
	}
	if err := h.properties.Delete(r.Context(), contextkeys.GetTeamID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
