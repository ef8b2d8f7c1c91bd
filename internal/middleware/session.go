package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/session"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier is satisfied by *session.Verifier.
type TokenVerifier interface {
	Verify(token string) (session.Identity, error)
}

// Session returns middleware that verifies the auth-token cookie and, when
// valid, stores the identity in the request context. It never rejects a
// request: handlers decide what an anonymous caller gets.
func Session(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := session.TokenFromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				var invalid *session.InvalidError
				if errors.As(err, &invalid) {
					logger.DebugContext(r.Context(), "session rejected", "reason", invalid.Reason)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id session.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey).(session.Identity)
	return id, ok
}

func writeEnvelope(w http.ResponseWriter, status int, env model.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
