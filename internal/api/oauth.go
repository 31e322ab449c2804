package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/account"
	"github.com/storeit/storeit/internal/logging"
	"github.com/storeit/storeit/internal/retry"
)

// Confirmation reads after setting the session cookie poll with
// backoff instead of sleeping a fixed interval.
var syncConfirmRetry = retry.Config{
	MaxAttempts: 4,
	InitialWait: 50 * time.Millisecond,
	MaxWait:     500 * time.Millisecond,
	Multiplier:  2.0,
}

const oidcStateCookie = "oauth-state"

// ─── OAuth bridge ───────────────────────────────────────────────────────────

// handleOAuthSync accepts the session handed back by an external OAuth
// redirect, sets the cookie and upserts the user record. Success is
// declared only after a confirmation read of the session.
func (s *Server) handleOAuthSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionSecret string `json:"sessionSecret"`
		UserID        string `json:"userId"`
		UserEmail     string `json:"userEmail"`
		UserName      string `json:"userName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.SessionSecret == "" || req.UserID == "" || req.UserEmail == "" {
		s.sendError(w, http.StatusBadRequest, "sessionSecret, userId and userEmail are required")
		return
	}

	s.setSessionCookie(w, req.SessionSecret)
	// Redundant raw header kept for clients that read Set-Cookie
	// verbatim rather than through the cookie jar.
	w.Header().Add("Set-Cookie", fmt.Sprintf("%s=%s; Path=/; HttpOnly", sessionCookieName, req.SessionSecret))

	acct, err := retry.DoWithResult(r.Context(), syncConfirmRetry, func() (*account.Account, error) {
		a, err := s.actions.ResolveSession(r.Context(), req.SessionSecret)
		if err != nil {
			return nil, retry.Retryable(err)
		}
		return a, nil
	})
	if err != nil {
		logging.Error("oauth sync confirmation failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "session verification failed")
		return
	}

	if _, err := s.actions.EnsureOAuthUser(r.Context(), acct.ID, req.UserEmail, req.UserName); err != nil {
		logging.Error("oauth user upsert failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "user sync failed")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"sessionInfo": map[string]any{
			"userId":    req.UserID,
			"userEmail": req.UserEmail,
			"cookieSet": true,
		},
	})
}

// handleOAuthReturn is the redirect-only landing route for completed
// external sign-ins: GET /oauth?userId=...&secret=...
func (s *Server) handleOAuthReturn(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	secret := r.URL.Query().Get("secret")
	if userID == "" || secret == "" {
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("missing oauth parameters"), http.StatusSeeOther)
		return
	}

	acct, err := s.actions.ResolveSession(r.Context(), secret)
	if err != nil {
		logging.Warn("oauth return with dead session", zap.Error(err))
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("sign-in failed"), http.StatusSeeOther)
		return
	}

	if _, err := s.actions.EnsureOAuthUser(r.Context(), acct.ID, acct.Email, ""); err != nil {
		logging.Error("oauth user upsert failed", zap.Error(err))
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("sign-in failed"), http.StatusSeeOther)
		return
	}

	s.setSessionCookie(w, secret)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ─── OIDC code flow ─────────────────────────────────────────────────────────

func (s *Server) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   s.config.Production(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.oidc.AuthCodeURL(state), http.StatusFound)
}

// handleOIDCCallback exchanges the code, provisions the account and
// lands on the shared /oauth return route.
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oidcStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("oauth state mismatch"), http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("missing authorization code"), http.StatusSeeOther)
		return
	}

	identity, err := s.oidc.Exchange(r.Context(), code)
	if err != nil {
		logging.Error("oidc exchange failed", zap.Error(err))
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("sign-in failed"), http.StatusSeeOther)
		return
	}

	session, user, err := s.actions.OAuthSignIn(r.Context(), identity.Email, identity.Name)
	if err != nil {
		logging.Error("oauth sign-in failed", zap.Error(err))
		http.Redirect(w, r, "/sign-in?error="+url.QueryEscape("sign-in failed"), http.StatusSeeOther)
		return
	}

	target := fmt.Sprintf("/oauth?userId=%s&secret=%s",
		url.QueryEscape(user.ID), url.QueryEscape(session.Secret))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
