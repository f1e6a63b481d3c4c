// Package api provides the HTTP REST API server for closingroom.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups, each with a
// RegisterRoutes method:
//
//   - TeamHandlers: teams, members and invitations
//   - PropertyHandlers: listed properties
//   - ContractHandlers: contract drafts, generation, sending and status
//   - TemplateHandlers and LibraryHandlers: team templates and the built-in library
//   - BillingHandlers and PlanHandlers: plans, subscriptions, quotes, usage and invoices
//   - DraftHandlers: AI-drafted contract language
//
// # Authentication and Roles
//
// Everything under /api/v1 except GET /api/v1/plans requires a bearer ID token.
// Routes under /api/v1/teams/{team_id} also require membership; callers outside the
// team get 404. Within a team:
//
//	viewer  read everything except invoices and quotes
//	agent   write properties and contracts, request drafts
//	admin   manage the team, members, invitations, templates and webhooks
//	owner   manage the subscription and delete the team
//
// # Errors
//
// Errors are JSON objects of the form {"error": "..."}. Plan limits answer 402 with the
// resource, current usage and limit:
//
//	{"error": "plan_limit", "resource": "contracts", "current": 5, "limit": 5}
//
// # Usage
//
//	server := api.NewServer(api.Deps{
//		Verifier:   verifier,
//		Teams:      teamService,
//		Properties: propertyService,
//		Contracts:  contractService,
//		Templates:  templateStore,
//		Library:    library,
//		Billing:    billingService,
//		Usage:      enforcer,
//		Drafter:    drafter,
//		Extra:      []api.RouteRegistrar{webhooks.NewHandlers(manager)},
//	})
//	http.ListenAndServe(":8080", server)
package api
