package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	tokengate "github.com/macropulse/tokengate"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the verdict Guard attached to an
// authenticated request.
func AuthResultFromContext(ctx context.Context) (*tokengate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*tokengate.AuthResult)
	return res, ok
}

// Options scopes the gate.
type Options struct {
	// APIPrefix limits gating to paths under it; requests outside the
	// prefix pass through untouched. Empty gates everything.
	APIPrefix string
	// ExemptPaths are exact-match paths (login, register, refresh, health)
	// that bypass validation entirely.
	ExemptPaths []string
}

// Guard returns the synchronous request-path gate. Each request is a pure
// function of its own header: exempt paths are allowed through, a missing
// bearer credential rejects as "authentication required", and anything else
// stands or falls on one [tokengate.Engine.Validate] call. No state carries
// across requests.
func Guard(engine *tokengate.Engine, opts Options) func(http.Handler) http.Handler {
	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.APIPrefix != "" && !strings.HasPrefix(r.URL.Path, opts.APIPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				// Absent credential is distinguishable from an invalid one
				// in the payload, never in the status code.
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			res, err := engine.Validate(r.Context(), raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
