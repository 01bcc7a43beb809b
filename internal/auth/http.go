// ABOUTME: HTTP middleware for bearer token authentication on protected endpoints
// ABOUTME: Extracts JWT from Authorization header and adds the principal to context

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// OutcomeRecorder counts authentication outcomes for metrics.
// Implementations must be safe for concurrent use; a nil recorder is allowed.
type OutcomeRecorder interface {
	RecordAuthOutcome(outcome string)
}

// Authentication outcomes reported to the OutcomeRecorder.
const (
	OutcomeOK                = "ok"
	OutcomePublic            = "public"
	OutcomeMissingCredential = "missing_credential"
	OutcomeUnauthenticated   = "unauthenticated"
	OutcomeForbidden         = "forbidden"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// isPublicPath reports whether the request path matches a configured public
// route prefix.
func isPublicPath(path string, publicPrefixes []string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// WriteJSONError writes a structured {error, message} body and status code.
// The error field carries the generic status title only; internal failure
// detail never reaches the caller.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   statusTitle(status),
		"message": message,
	})
}

// statusTitle maps a status code to its generic error title
func statusTitle(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusBadGateway:
		return "Bad Gateway"
	default:
		return "Error"
	}
}

// HTTPAuthMiddleware creates an HTTP middleware that authenticates every
// request except those targeting a public route prefix.
//
// A missing or ill-formed Authorization header is a 400; any verification
// failure is collapsed to a generic 401 with the specific reason logged but
// not leaked. On success the Principal is attached to the request context
// and the chain continues.
func HTTPAuthMiddleware(verifier TokenVerifier, publicPrefixes []string, logger *slog.Logger, recorder OutcomeRecorder) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path, publicPrefixes) {
				record(recorder, OutcomePublic)
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Warn("rejecting request without bearer credential", "path", r.URL.Path, "reason", errMsg)
				record(recorder, OutcomeMissingCredential)
				WriteJSONError(w, http.StatusBadRequest, "Authorization header missing or invalid.")
				return
			}

			subject, permissions, err := verifier.Verify(token)
			if err != nil {
				// Log the specific codec failure; the caller only sees a
				// generic unauthenticated outcome
				logger.Warn("token verification failed", "path", r.URL.Path, "error", err)
				record(recorder, OutcomeUnauthenticated)
				WriteJSONError(w, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}

			record(recorder, OutcomeOK)
			principal := &Principal{Subject: subject, Permissions: permissions}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func record(recorder OutcomeRecorder, outcome string) {
	if recorder != nil {
		recorder.RecordAuthOutcome(outcome)
	}
}
