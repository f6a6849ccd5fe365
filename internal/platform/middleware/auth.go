package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "tessera/pkg/domain"
	"tessera/pkg/requestcontext"
)

// TokenValidator defines the interface for validating reviewer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*ReviewerClaims, error)
}

// ReviewerClaims represents the claims we expect from the token validator.
type ReviewerClaims struct {
	ReviewerID id.ReviewerID
}

// RequireReviewer guards quarantine review endpoints. Requests must carry a
// valid bearer token; the reviewer identity is placed on the context for
// handlers to record on review decisions.
func RequireReviewer(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithReviewerID(ctx, claims.ReviewerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
