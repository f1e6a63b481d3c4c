package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/plans"
	"github.com/platinummonkey/closingroom/pkg/teams"
)

// PlanHandlers serves the public plan catalog
type PlanHandlers struct{}

// NewPlanHandlers creates a new PlanHandlers
func NewPlanHandlers() *PlanHandlers {
	return &PlanHandlers{}
}

// RegisterRoutes registers plan routes
func (h *PlanHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/plans", h.ListPlans).Methods("GET")
}

// ListPlans handles GET /api/v1/plans
func (h *PlanHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, plans.All())
}

// BillingHandlers handles billing-related HTTP requests
type BillingHandlers struct {
	billing billing.Service
	usage   UsageSnapshotter
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(service billing.Service, usage UsageSnapshotter) *BillingHandlers {
	return &BillingHandlers{billing: service, usage: usage}
}

// ChangePlanResponse is the subscription after a plan change and the prorated charge
type ChangePlanResponse struct {
	Subscription *billing.Subscription `json:"subscription"`
	Quote        *billing.Quote        `json:"quote"`
}

// RegisterRoutes registers billing routes on a team-scoped router
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	owner := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireRoleFunc(teams.RoleOwner, fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireRoleFunc(teams.RoleAdmin, fn)
	}

	// Subscription
	router.HandleFunc("/subscription", h.GetSubscription).Methods("GET")
	router.Handle("/subscription", owner(h.CreateSubscription)).Methods("POST")
	router.Handle("/subscription", owner(h.ChangePlan)).Methods("PUT")
	router.Handle("/subscription/cancel", owner(h.CancelSubscription)).Methods("POST")
	router.Handle("/subscription/reactivate", owner(h.ReactivateSubscription)).Methods("POST")
	router.Handle("/subscription/quote", admin(h.GetQuote)).Methods("GET")

	// Usage
	router.HandleFunc("/usage", h.GetUsage).Methods("GET")

	// Invoices
	router.Handle("/invoices", admin(h.ListInvoices)).Methods("GET")
	router.Handle("/invoices/{invoice_id:[0-9]+}", admin(h.GetInvoice)).Methods("GET")
}

// CreateSubscription handles POST /subscription
func (h *BillingHandlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req billing.CreateSubscriptionRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	sub, err := h.billing.CreateSubscription(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, sub)
}

// GetSubscription handles GET /subscription
func (h *BillingHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.GetSubscription(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// ChangePlan handles PUT /subscription. Downgrades the team's usage does not fit are
// rejected with 402.
func (h *BillingHandlers) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req billing.ChangePlanRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	sub, quote, err := h.billing.ChangePlan(r.Context(), contextkeys.GetTeamID(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ChangePlanResponse{Subscription: sub, Quote: quote})
}

// CancelSubscription handles POST /subscription/cancel. An empty body cancels at
// the end of the period.
func (h *BillingHandlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req billing.CancelRequest
	if err := httputil.ParseJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	sub, err := h.billing.CancelSubscription(r.Context(), contextkeys.GetTeamID(r.Context()), req.Immediately)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// ReactivateSubscription handles POST /subscription/reactivate
func (h *BillingHandlers) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.ReactivateSubscription(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// GetQuote handles GET /subscription/quote, the projected charge for the current cycle
func (h *BillingHandlers) GetQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.billing.Quote(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, quote)
}

// GetUsage handles GET /usage
func (h *BillingHandlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.usage.Snapshot(r.Context(), contextkeys.GetTeamID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, snapshot)
}

// ListInvoices handles GET /invoices?limit=&offset=
func (h *BillingHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	invoices, err := h.billing.ListInvoices(r.Context(), contextkeys.GetTeamID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invoices)
}

// GetInvoice handles GET /invoices/{invoice_id}
func (h *BillingHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "invoice_id")
	if !ok {
		return
	}
	invoice, err := h.billing.GetInvoice(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invoice)
}
