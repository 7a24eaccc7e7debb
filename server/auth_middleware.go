package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-authz-engine/principal"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyPrincipal stores the authenticated claims principal
const ContextKeyPrincipal ContextKey = "principal"

// PrincipalFromContext returns the principal placed in the request context by
// RequireAuth.
func PrincipalFromContext(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(principal.Principal)
	return p, ok
}

// RequireAuth is middleware that validates a Bearer access token and injects
// the resulting principal into the request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthenticationRequired(w)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeAuthenticationRequired(w)
				return
			}

			p, err := s.tokens.ValidateAccess(parts[1])
			if err != nil {
				writeAuthenticationRequired(w)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, p)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequirePolicy is middleware that consults the authorization evaluator with
// the authenticated principal; any deny produces an access-denied response.
func (s *Server) RequirePolicy(policyName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeAuthenticationRequired(w)
				return
			}

			decision := s.evaluator.Evaluate(r.Context(), p, policyName)
			if !decision.Allowed {
				log.Info().
					Str("policy", policyName).
					Str("subject_id", p.SubjectID()).
					Str("reason", decision.Reason).
					Err(decision.Err).
					Msg("access denied")
				writeAccessDenied(w)
				return
			}

			next(w, r)
		}
	}
}
