// Package middleware provides HTTP middlewares for session gating and logging.
package middleware

import (
	"net/http"
)

// UnlockChecker reports whether the app lock has been passed.
type UnlockChecker interface {
	Unlocked() bool
}

// RequireUnlocked rejects requests with 423 Locked until the PIN has been
// entered.
func RequireUnlocked(lock UnlockChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lock.Unlocked() {
				http.Error(w, "app is locked", http.StatusLocked)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
