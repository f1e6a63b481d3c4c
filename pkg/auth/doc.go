// Package auth verifies bearer ID tokens issued by the configured OpenID Connect
// provider and turns them into a Principal.
//
// Sign-in itself happens at the identity provider; the API only sees the resulting
// ID token:
//
//	verifier, err := auth.NewOIDCVerifier(ctx, auth.Config{
//		IssuerURL: "https://accounts.example.com",
//		Audience:  "closingroom",
//	})
//	principal, err := verifier.Verify(ctx, rawIDToken)
//
// The principal's Subject is the user ID stored in team memberships and created_by
// columns. Its Email is matched against invitations.
//
// middleware.AuthMiddleware stores the principal in the request context, where
// PrincipalFromContext finds it.
package auth
