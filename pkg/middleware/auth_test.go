package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/platinummonkey/closingroom/pkg/auth"
	"github.com/platinummonkey/closingroom/pkg/contextkeys"
)

type fakeVerifier struct {
	principals map[string]*auth.Principal
	err        error
}

func (f *fakeVerifier) Verify(ctx context.Context, rawToken string) (*auth.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.principals[rawToken]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: unknown token", auth.ErrInvalidToken)
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{principals: map[string]*auth.Principal{
		"good-token": {Subject: "user-123", Email: "ada@harbor.test", EmailVerified: true},
	}}
}

func TestAuthMiddleware_Handler(t *testing.T) {
	tests := []struct {
		name       string
		optional   bool
		header     string
		verifyErr  error
		wantStatus int
		wantBody   string
		wantCalled bool
	}{
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantBody: "missing authorization header"},
		{name: "missing header optional", optional: true, header: "", wantStatus: http.StatusOK, wantCalled: true},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantBody: "invalid authorization header format"},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantBody: "invalid authorization header format"},
		{name: "unknown token", header: "Bearer bad-token", wantStatus: http.StatusUnauthorized, wantBody: "invalid or expired token"},
		{name: "unverified email", header: "Bearer good-token", verifyErr: auth.ErrEmailNotVerified, wantStatus: http.StatusForbidden, wantBody: "email address is not verified"},
		{name: "valid token", header: "Bearer good-token", wantStatus: http.StatusOK, wantCalled: true},
		{name: "lowercase scheme", header: "bearer good-token", wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := newFakeVerifier()
			verifier.err = tt.verifyErr
			called := false
			handler := NewAuthMiddleware(verifier, tt.optional).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/teams", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_SetsPrincipal(t *testing.T) {
	var principal *auth.Principal
	var userID string
	handler := NewAuthMiddleware(newFakeVerifier(), false).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipal(r)
		userID = contextkeys.GetUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if principal == nil || principal.Subject != "user-123" {
		t.Fatalf("expected principal user-123, got %+v", principal)
	}
	if userID != "user-123" {
		t.Errorf("expected user ID in context, got %q", userID)
	}
}

func TestGetPrincipal_Missing(t *testing.T) {
	if p := GetPrincipal(httptest.NewRequest(http.MethodGet, "/", nil)); p != nil {
		t.Errorf("expected nil principal, got %+v", p)
	}
}
