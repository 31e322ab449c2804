package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/account"
	"github.com/storeit/storeit/internal/actions"
	"github.com/storeit/storeit/internal/logging"
)

// ─── Account handlers ───────────────────────────────────────────────────────

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.FullName == "" {
		s.sendError(w, http.StatusBadRequest, "fullName and email are required")
		return
	}

	accountID, err := s.actions.CreateAccount(r.Context(), req.FullName, req.Email)
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"accountId": accountID})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}

	accountID, err := s.actions.SignInUser(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, actions.ErrUserNotFound) {
			s.sendError(w, http.StatusNotFound, "user not found")
			return
		}
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"accountId": accountID})
}

// handleSendOTP re-sends a code, used by the "resend" control.
func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}

	accountID, err := s.actions.SendEmailOTP(r.Context(), req.Email)
	if err != nil {
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"accountId": accountID})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"accountId"`
		Code      string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" || req.Code == "" {
		s.sendError(w, http.StatusBadRequest, "accountId and code are required")
		return
	}

	session, state, err := s.actions.VerifySecret(r.Context(), req.AccountID, req.Code)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCode) {
			s.sendError(w, http.StatusUnauthorized, "invalid or expired code")
			return
		}
		s.sendActionError(w, err)
		return
	}

	s.setSessionCookie(w, session.Secret)
	s.sendJSON(w, http.StatusOK, map[string]any{
		"sessionId":       session.ID,
		"credentialState": string(state),
	})
}

// handleMe reports the current user. Absence is a 200 with a null
// user, never an error.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.actions.GetCurrentUser(r.Context(), s.sessionSecret(r))
	if err != nil {
		logging.Error("resolve user failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"user": user})
}

// handleSignOut revokes the session, clears the cookie and redirects
// to the sign-in page. The cookie and redirect happen regardless of
// whether the revocation succeeded.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.actions.SignOutUser(r.Context(), s.sessionSecret(r))
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/sign-in", http.StatusSeeOther)
}

func (s *Server) handleSetupPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		CurrentPassword string `json:"currentPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		s.sendError(w, http.StatusBadRequest, "password is required")
		return
	}

	state, err := s.actions.SetupUserPassword(r.Context(), s.sessionSecret(r), req.Password, req.CurrentPassword)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			s.sendError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		s.sendActionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"credentialState": string(state)})
}
