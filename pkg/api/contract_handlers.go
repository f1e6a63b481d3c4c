package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/contracts"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/teams"
)

// ContractHandlers handles a team's contracts
type ContractHandlers struct {
	contracts ContractService
}

// NewContractHandlers creates a new ContractHandlers
func NewContractHandlers(service ContractService) *ContractHandlers {
	return &ContractHandlers{contracts: service}
}

// RegisterRoutes registers contract routes on a team-scoped router
func (h *ContractHandlers) RegisterRoutes(router *mux.Router) {
	agent := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireRoleFunc(teams.RoleAgent, fn)
	}

	router.HandleFunc("/contracts", h.ListContracts).Methods("GET")
	router.Handle("/contracts", agent(h.CreateContract)).Methods("POST")
	router.HandleFunc("/contracts/{contract_id:[0-9]+}", h.GetContract).Methods("GET")
	router.Handle("/contracts/{contract_id:[0-9]+}", agent(h.UpdateContract)).Methods("PUT")
	router.Handle("/contracts/{contract_id:[0-9]+}", agent(h.DeleteContract)).Methods("DELETE")
	router.Handle("/contracts/{contract_id:[0-9]+}/generate", agent(h.GenerateContract)).Methods("POST")
	router.Handle("/contracts/{contract_id:[0-9]+}/send", agent(h.SendContract)).Methods("POST")
	router.Handle("/contracts/{contract_id:[0-9]+}/status", agent(h.SetStatus)).Methods("POST")
	router.HandleFunc("/contracts/{contract_id:[0-9]+}/document", h.GetDocument).Methods("GET")
}

// CreateContract handles POST /contracts
func (h *ContractHandlers) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateContractRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	contract, err := h.contracts.Create(r.Context(), contextkeys.GetTeamID(r.Context()), middleware.GetPrincipal(r).Subject, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, contract)
}

// ListContracts handles GET /contracts?status=&property_id=&limit=&offset=
func (h *ContractHandlers) ListContracts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := httputil.ParsePaginationOrError(w, r)
	if !ok {
		return
	}
	opts := contracts.ListOptions{Limit: limit, Offset: offset}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = contracts.Status(status)
		if !opts.Status.Valid() {
			httputil.WriteBadRequest(w, "invalid status: "+status)
			return
		}
	}
	if r.URL.Query().Get("property_id") != "" {
		propertyID, err := httputil.ParseQueryInt(r, "property_id", 0)
		if err != nil || propertyID <= 0 {
			httputil.WriteBadRequest(w, "invalid property_id")
			return
		}
		opts.PropertyID = int64(propertyID)
	}
	opts = opts.Normalize()

	list, total, err := h.contracts.List(r.Context(), contextkeys.GetTeamID(r.Context()), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ListResponse{Items: list, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}

// GetContract handles GET /contracts/{contract_id}
func (h *ContractHandlers) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	contract, err := h.contracts.Get(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// UpdateContract handles PUT /contracts/{contract_id}. Only drafts can change.
func (h *ContractHandlers) UpdateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	var req contracts.UpdateContractRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	contract, err := h.contracts.Update(r.Context(), contextkeys.GetTeamID(r.Context()), id, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// DeleteContract handles DELETE /contracts/{contract_id}. The contract is voided and
// kept for the record.
func (h *ContractHandlers) DeleteContract(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	contract, err := h.contracts.Delete(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// GenerateContract handles POST /contracts/{contract_id}/generate
func (h *ContractHandlers) GenerateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	result, err := h.contracts.Generate(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// SendContract handles POST /contracts/{contract_id}/send
func (h *ContractHandlers) SendContract(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	contract, err := h.contracts.Send(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// SetStatus handles POST /contracts/{contract_id}/status
func (h *ContractHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	var req contracts.StatusRequest
	if !httputil.ParseAndValidate(w, r, &req) {
		return
	}
	contract, err := h.contracts.SetStatus(r.Context(), contextkeys.GetTeamID(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// GetDocument handles GET /contracts/{contract_id}/document and serves the latest
// generated revision as HTML
func (h *ContractHandlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
	if !ok {
		return
	}
	page, err := h.contracts.Document(r.Context(), contextkeys.GetTeamID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}
