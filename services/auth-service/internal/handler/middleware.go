package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/echo-auth-api/services/auth-service/internal/token"
	"github.com/vasapolrittideah/echo-auth-api/shared/auth"
)

type contextKey struct{}

var subjectIDKey = contextKey{}

// SessionVerifier checks bearer session tokens.
type SessionVerifier interface {
	VerifySessionToken(raw string) token.Result
}

// RequireSession rejects requests without a valid bearer session token and
// stores the token subject in the request context.
func RequireSession(sessions SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, payload.MessageResponse{Message: msgUnauthorized})
				return
			}

			result := sessions.VerifySessionToken(raw)
			if result.Outcome != auth.OutcomeValid {
				hlog.FromRequest(r).Debug().
					Stringer("outcome", result.Outcome).
					AnErr("reason", result.Err).
					Msg("rejected session token")

				message := msgUnauthorized
				if result.Outcome == auth.OutcomeExpired {
					message = "Session has expired. Please log in again."
				}
				writeJSON(w, http.StatusUnauthorized, payload.MessageResponse{Message: message})
				return
			}

			ctx := context.WithValue(r.Context(), subjectIDKey, result.SubjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectIDFromContext returns the subject stored by RequireSession.
func SubjectIDFromContext(ctx context.Context) (string, bool) {
	subjectID, ok := ctx.Value(subjectIDKey).(string)
	return subjectID, ok && subjectID != ""
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}

	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}
