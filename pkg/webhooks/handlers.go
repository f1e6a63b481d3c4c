package webhooks

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/observability"
)

// Handlers provides HTTP handlers for a team's webhooks
type Handlers struct {
	manager *Manager
}

// NewHandlers creates new webhook handlers
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers webhook routes on a team-scoped router. The caller applies
// authentication, team membership and role checks.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", h.createWebhook).Methods("POST")
	router.HandleFunc("/webhooks", h.listWebhooks).Methods("GET")
	router.HandleFunc("/webhooks/events", h.listEvents).Methods("GET")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}", h.getWebhook).Methods("GET")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}", h.updateWebhook).Methods("PUT")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}", h.deleteWebhook).Methods("DELETE")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}/activate", h.setActive(true)).Methods("POST")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}/deactivate", h.setActive(false)).Methods("POST")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}/deliveries", h.listDeliveries).Methods("GET")
	router.HandleFunc("/webhooks/{webhook_id:[0-9]+}/stats", h.getStats).Methods("GET")
}

// createWebhook handles POST /webhooks. The response carries the signing secret.
func (h *Handlers) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req CreateWebhookRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}

	hook, err := h.manager.Register(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, hook)
}

// listWebhooks handles GET /webhooks
func (h *Handlers) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.manager.List(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, hooks)
}

// listEvents handles GET /webhooks/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, AllEvents)
}

// getWebhook handles GET /webhooks/{webhook_id}
func (h *Handlers) getWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "webhook_id")
	if !ok {
		return
	}
	hook, err := h.manager.Get(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, hook)
}

// updateWebhook handles PUT /webhooks/{webhook_id}
func (h *Handlers) updateWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "webhook_id")
	if !ok {
		return
	}
	var req UpdateWebhookRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	hook, err := h.manager.Update(r.Context(), contextkeys.GetTeamID(r.Context()), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, hook)
}

// deleteWebhook handles DELETE /webhooks/{webhook_id}
func (h *Handlers) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "webhook_id")
	if !ok {
		return
	}
	if err := h.manager.Delete(r.Context(), contextkeys.GetTeamID(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// setActive handles POST /webhooks/{webhook_id}/activate and /deactivate
func (h *Handlers) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathInt64OrError(w, r, "webhook_id")
		if !ok {
			return
		}
		hook, err := h.manager.Update(r.Context(), contextkeys.GetTeamID(r.Context()), id, &UpdateWebhookRequest{Active: &active})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, hook)
	}
}

// listDeliveries handles GET /webhooks/{webhook_id}/deliveries?limit=
func (h *Handlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "webhook_id")
	if !ok {
		return
	}
	limit, _, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	deliveries, err := h.manager.Deliveries(r.Context(), contextkeys.GetTeamID(r.Context()), id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, deliveries)
}

// getStats handles GET /webhooks/{webhook_id}/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "webhook_id")
	if !ok {
		return
	}
	stats, err := h.manager.Stats(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrUnknownEvent):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Webhook request failed")
		httputil.WriteInternalError(w, err)
	}
}
