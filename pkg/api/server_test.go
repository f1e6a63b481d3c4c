package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/closingroom/pkg/auth"
	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/contracts"
	"github.com/platinummonkey/closingroom/pkg/drafting"
	"github.com/platinummonkey/closingroom/pkg/enforcement"
	"github.com/platinummonkey/closingroom/pkg/plans"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
)

// fakeVerifier accepts any token of the form "user-<name>"
type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, rawToken string) (*auth.Principal, error) {
	if !strings.HasPrefix(rawToken, "user-") {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Principal{Subject: rawToken, Email: rawToken + "@example.com", EmailVerified: true}, nil
}

// fakeTeams embeds teams.Service so tests only implement what they call
type fakeTeams struct {
	teams.Service
	team    *teams.Team
	members map[string]teams.Role

	created  *teams.CreateTeamRequest
	removed  string
	accepted []string
	acceptFn func(token string) (*teams.Member, error)
}

func (f *fakeTeams) GetTeam(ctx context.Context, id int64) (*teams.Team, error) {
	if f.team == nil || f.team.ID != id {
		return nil, teams.ErrNotFound
	}
	return f.team, nil
}

func (f *fakeTeams) GetMember(ctx context.Context, teamID int64, userID string) (*teams.Member, error) {
	role, ok := f.members[userID]
	if !ok {
		return nil, teams.ErrMemberNotFound
	}
	return &teams.Member{TeamID: teamID, UserID: userID, Role: role}, nil
}

func (f *fakeTeams) CreateTeam(ctx context.Context, ownerID, ownerEmail string, req *teams.CreateTeamRequest) (*teams.Team, error) {
	f.created = req
	return &teams.Team{ID: 9, Name: req.Name, OwnerID: ownerID, Status: teams.StatusActive}, nil
}

func (f *fakeTeams) ListTeams(ctx context.Context, userID string) ([]*teams.Team, error) {
	if _, ok := f.members[userID]; !ok {
		return []*teams.Team{}, nil
	}
	return []*teams.Team{f.team}, nil
}

func (f *fakeTeams) UpdateTeam(ctx context.Context, id int64, req *teams.UpdateTeamRequest) (*teams.Team, error) {
	team := *f.team
	team.Name = *req.Name
	return &team, nil
}

func (f *fakeTeams) DeleteTeam(ctx context.Context, id int64) error {
	return nil
}

func (f *fakeTeams) RemoveMember(ctx context.Context, teamID int64, userID string) error {
	f.removed = userID
	return nil
}

func (f *fakeTeams) AcceptInvitation(ctx context.Context, token, userID, email string) (*teams.Member, error) {
	f.accepted = []string{token, userID, email}
	if f.acceptFn != nil {
		return f.acceptFn(token)
	}
	return &teams.Member{TeamID: f.team.ID, UserID: userID, Email: email, Role: teams.RoleAgent}, nil
}

type fakeProperties struct {
	properties.Service
	opts properties.ListOptions
}

func (f *fakeProperties) Create(ctx context.Context, teamID int64, req *properties.CreatePropertyRequest) (*properties.Property, error) {
	return &properties.Property{ID: 3, TeamID: teamID, Address: req.Address}, nil
}

func (f *fakeProperties) List(ctx context.Context, teamID int64, opts properties.ListOptions) ([]*properties.Property, int, error) {
	f.opts = opts
	return []*properties.Property{{ID: 3, TeamID: teamID}}, 1, nil
}

func (f *fakeProperties) Delete(ctx context.Context, teamID, id int64) error {
	return properties.ErrInUse
}

type fakeContracts struct {
	ContractService
	opts   contracts.ListOptions
	status contracts.Status
	doc    []byte
	genErr error
}

func (f *fakeContracts) List(ctx context.Context, teamID int64, opts contracts.ListOptions) ([]*contracts.Contract, int, error) {
	f.opts = opts
	return []*contracts.Contract{}, 0, nil
}

func (f *fakeContracts) SetStatus(ctx context.Context, teamID, id int64, to contracts.Status) (*contracts.Contract, error) {
	f.status = to
	return &contracts.Contract{ID: id, TeamID: teamID, Status: to}, nil
}

func (f *fakeContracts) Generate(ctx context.Context, teamID, id int64) (*contracts.GenerateResult, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &contracts.GenerateResult{Contract: &contracts.Contract{ID: id, Revision: 1}, Pages: 1}, nil
}

func (f *fakeContracts) Document(ctx context.Context, teamID, id int64) ([]byte, error) {
	if f.doc == nil {
		return nil, contracts.ErrNotGenerated
	}
	return f.doc, nil
}

type fakeTemplates struct {
	templates.Store
}

func (fakeTemplates) List(ctx context.Context, teamID int64) ([]*templates.Template, error) {
	return []*templates.Template{}, nil
}

func (fakeTemplates) Create(ctx context.Context, teamID int64, createdBy string, req *templates.CreateTemplateRequest) (*templates.Template, error) {
	return &templates.Template{ID: 1, TeamID: teamID, Name: req.Name, CreatedBy: createdBy}, nil
}

type fakeLibrary map[string]*templates.Template

func (f fakeLibrary) Get(name string) (*templates.Template, error) {
	tmpl, ok := f[name]
	if !ok {
		return nil, templates.ErrNotFound
	}
	return tmpl, nil
}

func (f fakeLibrary) List() []*templates.Template {
	list := make([]*templates.Template, 0, len(f))
	for _, tmpl := range f {
		list = append(list, tmpl)
	}
	return list
}

type fakeBilling struct {
	billing.Service
	started     []plans.Tier
	canceled    *bool
	changePlan  func(req *billing.ChangePlanRequest) (*billing.Subscription, *billing.Quote, error)
	invoiceArgs []int
}

func (f *fakeBilling) CreateSubscription(ctx context.Context, teamID int64, req *billing.CreateSubscriptionRequest) (*billing.Subscription, error) {
	f.started = append(f.started, req.Tier)
	return nil, errors.New("database unavailable")
}

func (f *fakeBilling) GetSubscription(ctx context.Context, teamID int64) (*billing.Subscription, error) {
	return &billing.Subscription{TeamID: teamID, Tier: plans.TierTeam, Status: billing.SubscriptionStatusActive}, nil
}

func (f *fakeBilling) ChangePlan(ctx context.Context, teamID int64, req *billing.ChangePlanRequest) (*billing.Subscription, *billing.Quote, error) {
	return f.changePlan(req)
}

func (f *fakeBilling) CancelSubscription(ctx context.Context, teamID int64, immediately bool) (*billing.Subscription, error) {
	f.canceled = &immediately
	return &billing.Subscription{TeamID: teamID, CancelAtPeriodEnd: !immediately}, nil
}

func (f *fakeBilling) ListInvoices(ctx context.Context, teamID int64, limit, offset int) ([]*billing.Invoice, error) {
	f.invoiceArgs = []int{limit, offset}
	return []*billing.Invoice{}, nil
}

type fakeUsage struct{}

func (fakeUsage) Snapshot(ctx context.Context, teamID int64) (*enforcement.Snapshot, error) {
	plan, _ := plans.Lookup(plans.TierSolo)
	return &enforcement.Snapshot{Plan: plan, Usage: plans.Usage{ContractsThisCycle: 4}}, nil
}

type fakeDrafter struct {
	err error
}

func (f fakeDrafter) DraftClause(ctx context.Context, teamID int64, req *drafting.DraftRequest) (*drafting.Draft, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &drafting.Draft{Kind: req.Kind, Text: "Buyer may terminate."}, nil
}

// fakeWebhooks registers a single route to exercise Deps.Extra
type fakeWebhooks struct{}

func (fakeWebhooks) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
}

type harness struct {
	server     *Server
	teams      *fakeTeams
	properties *fakeProperties
	contracts  *fakeContracts
	billing    *fakeBilling
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		teams: &fakeTeams{
			team: &teams.Team{ID: 1, Name: "Elm Realty", Status: teams.StatusActive},
			members: map[string]teams.Role{
				"user-owner":  teams.RoleOwner,
				"user-admin":  teams.RoleAdmin,
				"user-agent":  teams.RoleAgent,
				"user-viewer": teams.RoleViewer,
			},
		},
		properties: &fakeProperties{},
		contracts:  &fakeContracts{},
		billing:    &fakeBilling{},
	}
	h.server = NewServer(Deps{
		Verifier:   fakeVerifier{},
		Teams:      h.teams,
		Properties: h.properties,
		Contracts:  h.contracts,
		Templates:  fakeTemplates{},
		Library: fakeLibrary{"purchase": {
			Name:    "purchase",
			Title:   "Purchase Agreement",
			Kind:    templates.KindPurchaseAgreement,
			Body:    "Buyer {{parties.buyer.name}} buys {{property.address}}.",
			Signers: []templates.Signer{{Role: "buyer", Order: 1}, {Role: "seller", Order: 2}},
			Builtin: true,
		}},
		Billing: h.billing,
		Usage:   fakeUsage{},
		Drafter: fakeDrafter{},
		Extra:   []RouteRegistrar{fakeWebhooks{}},
	})
	return h
}

func (h *harness) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dest))
}

var newProperty = properties.CreatePropertyRequest{
	Address: properties.Address{Line1: "12 Elm St", City: "Springfield", State: "IL", PostalCode: "62701"},
}

func TestServer_RequiresAuthentication(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/teams", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, "GET", "/api/v1/teams", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_PlansArePublic(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []plans.Plan
	decode(t, rec, &got)
	assert.Len(t, got, len(plans.All()))
}

func TestServer_NonMembersSeeNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/teams/1/properties", "user-outsider", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, "GET", "/api/v1/teams/2/properties", "user-owner", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RoleGates(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   interface{}
		want   int
	}{
		{"viewer reads properties", "GET", "/api/v1/teams/1/properties", "user-viewer", nil, http.StatusOK},
		{"viewer cannot create property", "POST", "/api/v1/teams/1/properties", "user-viewer", newProperty, http.StatusForbidden},
		{"agent creates property", "POST", "/api/v1/teams/1/properties", "user-agent", newProperty, http.StatusCreated},
		{"agent cannot create template", "POST", "/api/v1/teams/1/templates", "user-agent", templates.CreateTemplateRequest{}, http.StatusForbidden},
		{"admin cannot delete team", "DELETE", "/api/v1/teams/1", "user-admin", nil, http.StatusForbidden},
		{"owner deletes team", "DELETE", "/api/v1/teams/1", "user-owner", nil, http.StatusNoContent},
		{"admin cannot cancel subscription", "POST", "/api/v1/teams/1/subscription/cancel", "user-admin", nil, http.StatusForbidden},
		{"viewer reads subscription", "GET", "/api/v1/teams/1/subscription", "user-viewer", nil, http.StatusOK},
		{"viewer cannot list invoices", "GET", "/api/v1/teams/1/invoices", "user-viewer", nil, http.StatusForbidden},
		{"agent cannot manage webhooks", "GET", "/api/v1/teams/1/webhooks", "user-agent", nil, http.StatusForbidden},
		{"admin manages webhooks", "GET", "/api/v1/teams/1/webhooks", "user-admin", nil, http.StatusOK},
		{"viewer cannot draft", "POST", "/api/v1/teams/1/drafts", "user-viewer", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestTeamHandlers_CreateTeam(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/teams", "user-new", teams.CreateTeamRequest{Name: "Oak Homes"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var team teams.Team
	decode(t, rec, &team)
	assert.Equal(t, "Oak Homes", team.Name)
	assert.Equal(t, "user-new", team.OwnerID)
	assert.Equal(t, []plans.Tier{plans.TierFree}, h.billing.started, "subscription failures do not fail team creation")

	rec = h.do(t, "POST", "/api/v1/teams", "user-new", teams.CreateTeamRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamHandlers_RemoveMember(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "DELETE", "/api/v1/teams/1/members/user-agent", "user-viewer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, "DELETE", "/api/v1/teams/1/members/user-viewer", "user-viewer", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-viewer", h.teams.removed)
}

func TestTeamHandlers_AcceptInvitation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/invitations/tok123/accept", "user-new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tok123", "user-new", "user-new@example.com"}, h.teams.accepted)

	h.teams.acceptFn = func(string) (*teams.Member, error) { return nil, teams.ErrInvitationExpired }
	rec = h.do(t, "POST", "/api/v1/invitations/tok123/accept", "user-new", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestPropertyHandlers_DeleteInUse(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "DELETE", "/api/v1/teams/1/properties/3", "user-agent", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPropertyHandlers_ListPage(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/teams/1/properties?limit=10&offset=20", "user-viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, properties.ListOptions{Limit: 10, Offset: 20}, h.properties.opts)

	var page ListResponse
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Limit)
}

func TestContractHandlers_ListFilters(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/teams/1/contracts?status=sent&property_id=7&limit=500", "user-viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.StatusSent, h.contracts.opts.Status)
	assert.Equal(t, int64(7), h.contracts.opts.PropertyID)
	assert.Equal(t, contracts.MaxLimit, h.contracts.opts.Limit)

	rec = h.do(t, "GET", "/api/v1/teams/1/contracts?status=bogus", "user-viewer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, "GET", "/api/v1/teams/1/contracts?property_id=x", "user-viewer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContractHandlers_SetStatus(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/teams/1/contracts/5/status", "user-agent", contracts.StatusRequest{Status: contracts.StatusSigned})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.StatusSigned, h.contracts.status)

	rec = h.do(t, "POST", "/api/v1/teams/1/contracts/5/status", "user-agent", contracts.StatusRequest{Status: contracts.StatusSent})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContractHandlers_GenerateErrors(t *testing.T) {
	h := newHarness(t)

	h.contracts.genErr = contracts.ErrNotDraft
	rec := h.do(t, "POST", "/api/v1/teams/1/contracts/5/generate", "user-agent", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.contracts.genErr = &templates.SyntaxError{Offset: 3, Msg: "unclosed placeholder"}
	rec = h.do(t, "POST", "/api/v1/teams/1/contracts/5/generate", "user-agent", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestContractHandlers_Document(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/teams/1/contracts/5/document", "user-viewer", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.contracts.doc = []byte("<html><body>Agreement</body></html>")
	rec = h.do(t, "GET", "/api/v1/teams/1/contracts/5/document", "user-viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Agreement")
}

func TestLibraryHandlers(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/templates/library", "user-new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []templates.Template
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].Builtin)

	rec = h.do(t, "GET", "/api/v1/templates/library/missing", "user-new", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLibraryHandlers_Preview(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/templates/library/purchase/preview", "user-new", templates.PreviewRequest{
		Data: map[string]any{"parties": map[string]any{"buyer": map[string]any{"name": "Ada"}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc templates.Document
	decode(t, rec, &doc)
	assert.Contains(t, doc.HTML, "Buyer Ada buys")
	assert.Equal(t, []string{"property.address"}, doc.Missing)
	assert.Len(t, doc.Zones, 2)
}

func TestBillingHandlers_CancelDefaultsToPeriodEnd(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/teams/1/subscription/cancel", "user-owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, h.billing.canceled)
	assert.False(t, *h.billing.canceled)

	rec = h.do(t, "POST", "/api/v1/teams/1/subscription/cancel", "user-owner", billing.CancelRequest{Immediately: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *h.billing.canceled)
}

func TestBillingHandlers_ChangePlanBlocked(t *testing.T) {
	h := newHarness(t)
	h.billing.changePlan = func(req *billing.ChangePlanRequest) (*billing.Subscription, *billing.Quote, error) {
		return nil, nil, &plans.LimitError{Resource: "seats", Current: 4, Limit: 1, Reason: "too many seats for solo"}
	}

	rec := h.do(t, "PUT", "/api/v1/teams/1/subscription", "user-owner", billing.ChangePlanRequest{Tier: plans.TierSolo})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "plan_limit", body["error"])
	assert.Equal(t, "seats", body["resource"])
}

func TestBillingHandlers_ChangePlan(t *testing.T) {
	h := newHarness(t)
	h.billing.changePlan = func(req *billing.ChangePlanRequest) (*billing.Subscription, *billing.Quote, error) {
		return &billing.Subscription{Tier: req.Tier}, &billing.Quote{TotalCents: 1500}, nil
	}

	rec := h.do(t, "PUT", "/api/v1/teams/1/subscription", "user-owner", billing.ChangePlanRequest{Tier: plans.TierBrokerage})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChangePlanResponse
	decode(t, rec, &resp)
	assert.Equal(t, plans.TierBrokerage, resp.Subscription.Tier)
	assert.Equal(t, int64(1500), resp.Quote.TotalCents)
}

func TestBillingHandlers_UsageAndInvoices(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/teams/1/usage", "user-viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap enforcement.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, plans.TierSolo, snap.Plan.Tier)
	assert.Equal(t, 4, snap.Usage.ContractsThisCycle)

	rec = h.do(t, "GET", "/api/v1/teams/1/invoices?limit=5&offset=10", "user-admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{5, 10}, h.billing.invoiceArgs)
}

func TestDraftHandlers(t *testing.T) {
	h := newHarness(t)
	req := drafting.DraftRequest{Kind: "contingency", Instructions: "Inspection contingency, 10 days"}

	rec := h.do(t, "POST", "/api/v1/teams/1/drafts", "user-agent", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var draft drafting.Draft
	decode(t, rec, &draft)
	assert.Equal(t, "contingency", draft.Kind)

	h.server.deps.Drafter = fakeDrafter{err: drafting.ErrDisabled}
	h.server.router = mux.NewRouter()
	h.server.setupRoutes()
	rec = h.do(t, "POST", "/api/v1/teams/1/drafts", "user-agent", req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{teams.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("failed to get invoice: %w", billing.ErrNotFound), http.StatusNotFound},
		{teams.ErrSlugTaken, http.StatusConflict},
		{billing.ErrCycleNotFinished, http.StatusConflict},
		{teams.ErrInvalidRole, http.StatusBadRequest},
		{plans.ErrUnknownTier, http.StatusBadRequest},
		{contracts.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{templates.ErrZonesDoNotFit, http.StatusUnprocessableEntity},
		{teams.ErrInvitationEmailMismatch, http.StatusForbidden},
		{plans.Decision{Resource: "contracts", Current: 5, Limit: 5}.Err(), http.StatusPaymentRequired},
		{drafting.ErrEmptyCompletion, http.StatusBadGateway},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest("GET", "/", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
