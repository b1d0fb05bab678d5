package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"krampus/internal/domain"
)

var errMissingToken = errors.New("missing or malformed Authorization header")

// Principal is the authenticated caller passed explicitly into every
// governance operation; handlers never consult ambient session state.
type Principal struct {
	ID       uint
	Username string
	Role     string
}

func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

type contextKey struct{}

var principalKey contextKey

// RequireAuth validates the bearer token and injects the principal into the
// request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := principalFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// IsAdmin additionally requires the admin role.
func IsAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := principalFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !principal.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func principalFromRequest(r *http.Request) (Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Principal{}, errMissingToken
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := ValidateJWT(token)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

func withPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal returns the authenticated principal stored by RequireAuth or
// IsAdmin.
func GetPrincipal(r *http.Request) (Principal, bool) {
	principal, ok := r.Context().Value(principalKey).(Principal)
	return principal, ok
}
