package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
)

// TemplateHandlers handles a team's own templates
type TemplateHandlers struct {
	store    templates.Store
	renderer DocumentRenderer
}

// NewTemplateHandlers creates a new TemplateHandlers
func NewTemplateHandlers(store templates.Store, renderer DocumentRenderer) *TemplateHandlers {
	return &TemplateHandlers{store: store, renderer: renderer}
}

// RegisterRoutes registers template routes on a team-scoped router
func (h *TemplateHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/templates", h.ListTemplates).Methods("GET")
	router.Handle("/templates", middleware.RequireRoleFunc(teams.RoleAdmin, h.CreateTemplate)).Methods("POST")
	router.HandleFunc("/templates/{template_id:[0-9]+}", h.GetTemplate).Methods("GET")
	router.Handle("/templates/{template_id:[0-9]+}", middleware.RequireRoleFunc(teams.RoleAdmin, h.UpdateTemplate)).Methods("PUT")
	router.Handle("/templates/{template_id:[0-9]+}", middleware.RequireRoleFunc(teams.RoleAdmin, h.DeleteTemplate)).Methods("DELETE")
	router.HandleFunc("/templates/{template_id:[0-9]+}/preview", h.PreviewTemplate).Methods("POST")
}

// CreateTemplate handles POST /templates
func (h *TemplateHandlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templates.CreateTemplateRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	tmpl, err := h.store.Create(r.Context(), contextkeys.GetTeamID(r.Context()), middleware.GetPrincipal(r).Subject, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, tmpl)
}

// ListTemplates handles GET /templates
func (h *TemplateHandlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetTemplate handles GET /templates/{template_id}
func (h *TemplateHandlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, tmpl)
}

// UpdateTemplate handles PUT /templates/{template_id}
func (h *TemplateHandlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "template_id")
	if !ok {
		return
	}
	var req templates.UpdateTemplateRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	tmpl, err := h.store.Update(r.Context(), contextkeys.GetTeamID(r.Context()), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tmpl)
}

// DeleteTemplate handles DELETE /templates/{template_id}
func (h *TemplateHandlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "template_id")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), contextkeys.GetTeamID(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// PreviewTemplate handles POST /templates/{template_id}/preview
func (h *TemplateHandlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.load(w, r)
	if !ok {
		return
	}
	preview(w, r, h.renderer, tmpl)
}

func (h *TemplateHandlers) load(w http.ResponseWriter, r *http.Request) (*templates.Template, bool) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "template_id")
	if !ok {
		return nil, false
	}
	tmpl, err := h.store.Get(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return tmpl, true
}

// LibraryHandlers serves the built-in template library to any signed-in user
type LibraryHandlers struct {
	library  TemplateLibrary
	renderer DocumentRenderer
}

// NewLibraryHandlers creates a new LibraryHandlers
func NewLibraryHandlers(library TemplateLibrary, renderer DocumentRenderer) *LibraryHandlers {
	return &LibraryHandlers{library: library, renderer: renderer}
}

// RegisterRoutes registers library routes
func (h *LibraryHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/templates/library", h.ListLibrary).Methods("GET")
	router.HandleFunc("/templates/library/{name}", h.GetLibraryTemplate).Methods("GET")
	router.HandleFunc("/templates/library/{name}/preview", h.PreviewLibraryTemplate).Methods("POST")
}

// ListLibrary handles GET /templates/library
func (h *LibraryHandlers) ListLibrary(w http.ResponseWriter, r *http.Request) {
	if h.library == nil {
		httputil.WriteSuccess(w, []*templates.Template{})
		return
	}
	httputil.WriteSuccess(w, h.library.List())
}

// GetLibraryTemplate handles GET /templates/library/{name}
func (h *LibraryHandlers) GetLibraryTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, tmpl)
}

// PreviewLibraryTemplate handles POST /templates/library/{name}/preview
func (h *LibraryHandlers) PreviewLibraryTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.load(w, r)
	if !ok {
		return
	}
	preview(w, r, h.renderer, tmpl)
}

func (h *LibraryHandlers) load(w http.ResponseWriter, r *http.Request) (*templates.Template, bool) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return nil, false
	}
	if h.library == nil {
		httputil.WriteNotFoundError(w, templates.ErrNotFound.Error())
		return nil, false
	}
	tmpl, err := h.library.Get(name)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return tmpl, true
}

// preview renders tmpl with the sample data in the request body. Missing placeholders
// are marked in the output and listed in the response.
func preview(w http.ResponseWriter, r *http.Request, renderer DocumentRenderer, tmpl *templates.Template) {
	var req templates.PreviewRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	doc, err := renderer.Render(r.Context(), tmpl, req.Data, req.Signers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}
