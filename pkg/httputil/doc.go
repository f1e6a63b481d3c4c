// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, contract)
//	httputil.WriteCreated(w, property)
//	httputil.WriteBadRequest(w, "invalid team_id")
//	httputil.WriteForbidden(w, "admin role required")
//
// Plan limit errors map to 402 Payment Required:
//
//	if httputil.WriteLimitError(w, err) {
//		return
//	}
//
// # Request Parsing
//
// Bodies are decoded and checked against their validate struct tags:
//
//	var req contracts.CreateRequest
//	if !httputil.ParseAndValidate(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "contract_id")
//	limit, offset, ok := httputil.ParsePaginationOrError(w, r)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/middleware: Authentication, team membership and rate limiting
package httputil
