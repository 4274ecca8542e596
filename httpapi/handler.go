package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	tokengate "github.com/macropulse/tokengate"
	"github.com/macropulse/tokengate/middleware"
	"github.com/sirupsen/logrus"
)

// Route paths. Trailing slashes match the exempt-path allowlist the gate is
// configured with.
const (
	PathRegister = "/api/auth/register/"
	PathLogin    = "/api/auth/token/"
	PathRefresh  = "/api/auth/token/refresh/"
	PathLogout   = "/api/auth/logout/"
	PathProfile  = "/api/auth/profile/"
	PathHealth   = "/api/health/"
)

// ExemptPaths returns the exact-match allowlist for [middleware.Options]:
// the endpoints a caller must be able to reach without a valid token.
// Logout is exempt from the gate but extracts and revokes the bearer token
// itself, so an unauthenticated logout is a harmless no-op.
func ExemptPaths() []string {
	return []string{PathRegister, PathLogin, PathRefresh, PathLogout, PathHealth}
}

// Handler serves the issuance and revocation endpoints over the engine.
type Handler struct {
	engine *tokengate.Engine
	log    *logrus.Logger
}

// NewHandler wires the handler. A nil logger falls back to the logrus
// standard logger.
func NewHandler(engine *tokengate.Engine, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{engine: engine, log: log}
}

// Register installs all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+PathRegister, h.RegisterPrincipal)
	mux.HandleFunc("POST "+PathLogin, h.Login)
	mux.HandleFunc("POST "+PathRefresh, h.Refresh)
	mux.HandleFunc("POST "+PathLogout, h.Logout)
	mux.HandleFunc("GET "+PathProfile, h.Profile)
	mux.HandleFunc("GET "+PathHealth, h.Health)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

type registerResponse struct {
	User   profileResponse      `json:"user"`
	Tokens *tokengate.TokenPair `json:"tokens"`
}

type profileResponse struct {
	ID string `json:"id"`
}

// RegisterPrincipal handles POST /api/auth/register/: create the principal
// and return its first token pair, 201.
func (h *Handler) RegisterPrincipal(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	p, pair, err := h.engine.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, tokengate.ErrPrincipalExists):
			writeError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, tokengate.ErrBackendUnavailable):
			h.log.WithError(err).Error("register backend fault")
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			writeError(w, http.StatusBadRequest, "invalid registration request")
		}
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		User:   profileResponse{ID: p.ID},
		Tokens: pair,
	})
}

// Login handles POST /api/auth/token/: credential check and issuance. The
// response carries both tokens; only the initial login returns a refresh
// token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, tokengate.ErrBackendUnavailable):
			h.log.WithError(err).Error("login backend fault")
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /api/auth/token/refresh/: exchange a live refresh
// token for a new access token. The refresh token itself is not rotated.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	access, err := h.engine.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, tokengate.ErrBackendUnavailable) {
			h.log.WithError(err).Error("refresh backend fault")
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// Logout handles POST /api/auth/logout/: revoke the access token carried in
// the Authorization header and, when present, the refresh token from the
// body. Both revocations are best-effort; the response is 204 regardless.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	rawAccess := bearerToken(r.Header.Get("Authorization"))

	var req logoutRequest
	_ = decodeJSON(r, &req)

	h.engine.Logout(r.Context(), rawAccess, req.Refresh)
	w.WriteHeader(http.StatusNoContent)
}

// Profile handles GET /api/auth/profile/. The route sits behind the gate;
// the verdict arrives through the request context.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{ID: res.SubjectID})
}

// Health handles GET /api/health/.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	if !status.StoreAvailable {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func bearerToken(value string) string {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return ""
	}
	return strings.TrimSpace(value[len(bearer):])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
