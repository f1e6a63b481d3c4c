package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/closingroom/pkg/auth"
	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/contracts"
	"github.com/platinummonkey/closingroom/pkg/drafting"
	"github.com/platinummonkey/closingroom/pkg/enforcement"
	"github.com/platinummonkey/closingroom/pkg/middleware"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
)

// ContractService is the contract lifecycle the API serves
type ContractService interface {
	Create(ctx context.Context, teamID int64, createdBy string, req *contracts.CreateContractRequest) (*contracts.Contract, error)
	Get(ctx context.Context, teamID, id int64) (*contracts.Contract, error)
	List(ctx context.Context, teamID int64, opts contracts.ListOptions) ([]*contracts.Contract, int, error)
	Update(ctx context.Context, teamID, id int64, req *contracts.UpdateContractRequest) (*contracts.Contract, error)
	Delete(ctx context.Context, teamID, id int64) (*contracts.Contract, error)
	SetStatus(ctx context.Context, teamID, id int64, to contracts.Status) (*contracts.Contract, error)
	Generate(ctx context.Context, teamID, id int64) (*contracts.GenerateResult, error)
	Send(ctx context.Context, teamID, id int64) (*contracts.Contract, error)
	Document(ctx context.Context, teamID, id int64) ([]byte, error)
}

// TemplateLibrary serves the built-in templates
type TemplateLibrary interface {
	Get(name string) (*templates.Template, error)
	List() []*templates.Template
}

// DocumentRenderer renders template previews
type DocumentRenderer interface {
	Render(ctx context.Context, tmpl *templates.Template, data map[string]any, signers []templates.Signer) (*templates.Document, error)
}

// UsageSnapshotter reports a team's effective plan and usage
type UsageSnapshotter interface {
	Snapshot(ctx context.Context, teamID int64) (*enforcement.Snapshot, error)
}

// Drafter drafts contract language
type Drafter interface {
	DraftClause(ctx context.Context, teamID int64, req *drafting.DraftRequest) (*drafting.Draft, error)
}

// Deps holds the services behind the API
type Deps struct {
	Verifier   auth.Verifier
	Teams      teams.Service
	Properties properties.Service
	Contracts  ContractService
	Templates  templates.Store
	Library    TemplateLibrary
	Renderer   DocumentRenderer
	Billing    billing.Service
	Usage      UsageSnapshotter
	Drafter    Drafter

	// Extra registers additional team-scoped routes, for example webhooks. They
	// run behind authentication and team membership and require the admin role.
	Extra []RouteRegistrar
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server represents our API server
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Renderer == nil {
		deps.Renderer = templates.NewRenderer()
	}
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	NewPlanHandlers().RegisterRoutes(s.router)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.NewAuthMiddleware(s.deps.Verifier, false).Handler)

	teamHandlers := NewTeamHandlers(s.deps.Teams, s.deps.Billing)
	teamHandlers.RegisterRoutes(api)
	NewLibraryHandlers(s.deps.Library, s.deps.Renderer).RegisterRoutes(api)

	team := api.PathPrefix("/teams/{team_id:[0-9]+}").Subrouter()
	team.Use(middleware.TeamMiddleware(s.deps.Teams))

	teamHandlers.RegisterTeamRoutes(team)
	NewPropertyHandlers(s.deps.Properties).RegisterRoutes(team)
	NewContractHandlers(s.deps.Contracts).RegisterRoutes(team)
	NewTemplateHandlers(s.deps.Templates, s.deps.Renderer).RegisterRoutes(team)
	NewBillingHandlers(s.deps.Billing, s.deps.Usage).RegisterRoutes(team)
	NewDraftHandlers(s.deps.Drafter).RegisterRoutes(team)

	if len(s.deps.Extra) > 0 {
		admin := team.NewRoute().Subrouter()
		admin.Use(middleware.RequireRole(teams.RoleAdmin))
		for _, registrar := range s.deps.Extra {
			registrar.RegisterRoutes(admin)
		}
	}
}

// Router returns the underlying router so callers can attach middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
