// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/actions"
	"github.com/storeit/storeit/internal/auth"
	"github.com/storeit/storeit/internal/backend"
	"github.com/storeit/storeit/internal/config"
	"github.com/storeit/storeit/internal/logging"
	"github.com/storeit/storeit/internal/metrics"
	"github.com/storeit/storeit/internal/models"
	"github.com/storeit/storeit/webapp"
)

// Session cookie name. Kept for compatibility with existing clients.
const sessionCookieName = "appwrite-session"

const sessionCookieMaxAge = 30 * 24 * time.Hour

// Server is the HTTP server.
type Server struct {
	actions *actions.Service
	oidc    *auth.OIDC
	config  *config.Config
}

// NewServer creates a new server. oidc may be nil when OAuth sign-in
// is disabled.
func NewServer(actionsSvc *actions.Service, oidc *auth.OIDC, cfg *config.Config) *Server {
	return &Server{
		actions: actionsSvc,
		oidc:    oidc,
		config:  cfg,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no session required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/sign-up", s.handleSignUp)
	mux.HandleFunc("POST /api/v1/auth/sign-in", s.handleSignIn)
	mux.HandleFunc("POST /api/v1/auth/otp", s.handleSendOTP)
	mux.HandleFunc("POST /api/v1/auth/verify", s.handleVerify)
	mux.HandleFunc("GET /api/v1/auth/me", s.handleMe)
	mux.HandleFunc("POST /api/v1/auth/sign-out", s.handleSignOut)
	mux.HandleFunc("POST /api/v1/auth/password", s.handleSetupPassword)

	// OAuth bridge
	mux.HandleFunc("POST /api/oauth-sync", s.handleOAuthSync)
	mux.HandleFunc("GET /oauth", s.handleOAuthReturn)
	if s.oidc != nil {
		mux.HandleFunc("GET /api/auth/oidc/login", s.handleOIDCLogin)
		mux.HandleFunc("GET /oauth/callback", s.handleOIDCCallback)
	}

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/files", s.handleListFiles)
	protected.HandleFunc("POST /api/v1/files", s.handleUpload)
	protected.HandleFunc("PATCH /api/v1/files/{id}/name", s.handleRename)
	protected.HandleFunc("PUT /api/v1/files/{id}/users", s.handleShare)
	protected.HandleFunc("DELETE /api/v1/files/{id}", s.handleDeleteFile)
	protected.HandleFunc("GET /api/v1/files/{id}/download", s.handleDownload)
	protected.HandleFunc("GET /api/v1/usage", s.handleUsage)
	mux.Handle("/api/v1/files", s.requireUser(protected))
	mux.Handle("/api/v1/files/", s.requireUser(protected))
	mux.Handle("/api/v1/usage", s.requireUser(protected))

	// Web app. WEBAPP_DIR overrides embedded assets during development.
	var appFS fs.FS
	if dir := os.Getenv("WEBAPP_DIR"); dir != "" {
		logging.Info("serving webapp from disk", zap.String("dir", dir))
		appFS = os.DirFS(dir)
	} else {
		appFS, _ = fs.Sub(webapp.Assets, ".")
	}
	fileServer := http.FileServer(http.FS(appFS))
	mux.Handle("GET /assets/", fileServer)
	mux.HandleFunc("GET /{$}", s.servePage(appFS, "index.html"))
	mux.HandleFunc("GET /sign-in", s.servePage(appFS, "sign-in.html"))
	mux.HandleFunc("GET /sign-up", s.servePage(appFS, "sign-up.html"))

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) servePage(fsys fs.FS, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(content)
	}
}

// requireUser resolves the session cookie to a user and rejects the
// request when none resolves.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.actions.GetCurrentUser(r.Context(), s.sessionSecret(r))
		if err != nil {
			logging.Error("resolve user failed", zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if user == nil {
			s.sendError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionSecret reads the session cookie. Empty means no session.
func (s *Server) sessionSecret(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    secret,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.config.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Production(),
		SameSite: http.SameSiteLaxMode,
	})
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "1.0"})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{
		Error: message,
		Code:  code,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// sendActionError maps action failures onto status codes.
func (s *Server) sendActionError(w http.ResponseWriter, err error) {
	var quotaErr *backend.QuotaError
	switch {
	case backend.IsScopeError(err):
		s.sendError(w, http.StatusUnauthorized, "not authorized")
	case errors.As(err, &quotaErr):
		s.sendError(w, http.StatusRequestEntityTooLarge, quotaErr.Error())
	case errors.Is(err, actions.ErrFileTooLarge):
		s.sendError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, models.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "not found")
	default:
		logging.Error("request failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}
