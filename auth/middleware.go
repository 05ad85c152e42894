package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"nexchat/contract"
	"nexchat/domain"
	"nexchat/errors"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Middleware rejects requests without a valid credential and injects the
// verified identity into the request context for the handlers.
func Middleware(verifier contract.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := Authenticate(r, verifier)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": errors.PublicMessage(err)})
		})
	}
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFrom returns the identity injected by Middleware.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(domain.Identity)
	return identity, ok
}
