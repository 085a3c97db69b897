package idempotency

import (
	"context"
	"log/slog"
	"net/http"
)

const HeaderKey = "Idempotency-Key"

// Seener is satisfied by *Store; the middleware depends on it so tests can
// stub redis out.
type Seener interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Middleware rejects a request whose Idempotency-Key was already accepted.
// Requests without the header pass through untouched.
func Middleware(log *slog.Logger, store Seener) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			seen, err := store.Seen(r.Context(), key)
			if err != nil {
				// Redis being down must not block checkouts.
				log.Warn("idempotency check failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				http.Error(w, `{"error":"duplicate request"}`, http.StatusConflict)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
