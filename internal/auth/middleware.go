package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type Principal struct {
	UserID int64
	Role   string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Require rejects requests without a valid bearer token with 401 before
// next runs, and otherwise stores the verified Principal in the context.
func (a *Authenticator) Require(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeUnauthorized(w, logger, "missing bearer token")
			return
		}

		claims, err := a.Parse(tokenStr)
		if err != nil {
			logger.Info("rejected token", "error", err, "path", r.URL.Path)
			writeUnauthorized(w, logger, "invalid token")
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UserID, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, logger *slog.Logger, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
