// Package middleware provides HTTP middleware for authentication, team membership and
// rate limiting.
//
// # Ordering
//
// Team-scoped routes need the principal before the membership lookup:
//
//	api := router.PathPrefix("/api/v1").Subrouter()
//	api.Use(authMiddleware.Handler)                 // 1. verifies the bearer ID token
//	api.Use(rateLimiter.Handler)                    // 2. keys by subject once known
//	team := api.PathPrefix("/teams/{team_id:[0-9]+}").Subrouter()
//	team.Use(middleware.TeamMiddleware(teamService)) // 3. loads team and membership
//	team.Handle("/templates", middleware.RequireRole(teams.RoleAdmin)(h))
//
// TeamMiddleware answers 404 both for missing teams and for teams the caller does not
// belong to. Suspended teams are read-only.
//
// # Rate Limiting
//
// RateLimitMiddleware keeps token buckets in process. DistributedRateLimitMiddleware
// counts fixed windows in Redis so replicas share limits; it fails open when Redis is
// unreachable unless SetFallbackEnabled(false) is called.
//
//	Anonymous: 100 req/min, 10 burst (per client IP)
//	Signed in: 1000 req/min, 50 burst (per subject)
package middleware
