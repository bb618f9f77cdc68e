// Package authn implements the shared-password auth guard for
// management and mutating routes (component H), adapted from
// auth.Middleware's cookie/Bearer-token extraction shape but simplified
// to spec.md §4.9's single shared password: "Routes under /manage/*
// and mutating collection routes require a shared password if one is
// set. Password is compared against a stored hash. Missing/invalid ->
// 401." The teacher's JWT claims/session system has no counterpart
// here — there is exactly one password, not per-user identity.
package authn

import (
	"net/http"
	"strings"
)

// PasswordChecker is the subset of *state.Store this package depends
// on, kept as a small local interface (like download.HistorySink) so
// authn never imports internal/state directly.
type PasswordChecker interface {
	HasPassword() bool
	CheckPassword(pw string) bool
}

// RequireAuth returns middleware that enforces store's shared
// password. When no password is set, every request passes through
// unauthenticated. When set, the request must carry
// "Authorization: Bearer <password>" matching the stored hash.
func RequireAuth(store PasswordChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.HasPassword() {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" || !store.CheckPassword(token) {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","needs_password":true}`))
}
