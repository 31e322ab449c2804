package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/account"
	"github.com/storeit/storeit/internal/backend"
	"github.com/storeit/storeit/internal/logging"
	"github.com/storeit/storeit/internal/models"
)

// Placeholder avatar assigned to every new user record.
const placeholderAvatarURL = "https://img.freepik.com/free-psd/3d-illustration-person-with-sunglasses_23-2149436188.jpg"

// ErrUserNotFound is returned by SignInUser for an unknown email.
var ErrUserNotFound = errors.New("user not found")

// SendEmailOTP issues a one-time code to the address and returns the
// account id the code is bound to.
func (s *Service) SendEmailOTP(ctx context.Context, email string) (string, error) {
	client := s.backend.Admin()
	accountID, err := client.Accounts.CreateEmailToken(ctx, email)
	if err != nil {
		return "", fmt.Errorf("send email otp: %w", err)
	}
	return accountID, nil
}

// CreateAccount starts a sign-up: it sends an OTP and creates the user
// record when the email is new. Calling it twice for the same email
// reuses the existing record.
func (s *Service) CreateAccount(ctx context.Context, fullName, email string) (string, error) {
	client := s.backend.Admin()

	existing, err := client.Users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	accountID, err := s.SendEmailOTP(ctx, email)
	if err != nil {
		return "", err
	}

	if existing == nil {
		user := &models.User{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Email:     email,
			FullName:  fullName,
			Avatar:    placeholderAvatarURL,
		}
		if err := client.Users.CreateUser(ctx, user); err != nil {
			return "", fmt.Errorf("create user: %w", err)
		}
		logging.Info("user created", zap.String("account_id", accountID))
	}

	return accountID, nil
}

// SignInUser starts a sign-in for an existing email. Unknown emails
// get ErrUserNotFound instead of an OTP.
func (s *Service) SignInUser(ctx context.Context, email string) (string, error) {
	client := s.backend.Admin()

	if _, err := client.Users.GetUserByEmail(ctx, email); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	return s.SendEmailOTP(ctx, email)
}

// VerifySecret exchanges an account id and OTP for a session and
// reports how the account can authenticate afterwards.
func (s *Service) VerifySecret(ctx context.Context, accountID, code string) (*account.Session, account.CredentialState, error) {
	client := s.backend.Admin()

	session, err := client.Accounts.CreateSession(ctx, accountID, code)
	if err != nil {
		return nil, account.CredentialNone, err
	}

	acct, err := client.Accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		// The session is live; credential state is advisory.
		logging.Warn("credential state lookup failed", zap.Error(err))
		return session, account.CredentialNone, nil
	}

	return session, acct.CredentialState, nil
}

// GetCurrentUser resolves a session secret to its user record. Auth
// failures are absence, not errors: a missing or dead session yields
// (nil, nil). A scope failure on the session-scoped path triggers one
// secondary resolution through the admin client before giving up.
func (s *Service) GetCurrentUser(ctx context.Context, secret string) (*models.User, error) {
	if secret == "" {
		return nil, nil
	}

	var acct *account.Account
	client, err := s.backend.Session(ctx, secret)
	if err == nil && client != nil {
		acct, err = client.CurrentAccount(ctx)
	}
	if acct == nil {
		if err != nil && !backend.IsScopeError(err) {
			return nil, err
		}
		// Secondary resolution with the admin client, tried only after
		// a scope failure on the session-scoped path.
		acct, err = s.backend.Admin().Accounts.GetAccount(ctx, secret)
		if err != nil {
			logging.Debug("session did not resolve", zap.Error(err))
			return nil, nil
		}
	}

	user, err := s.backend.Admin().Users.GetUserByAccountID(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// SignOutUser revokes the session behind the secret. Deletion is best
// effort: failures are logged and swallowed so cookie clearing and the
// redirect are never blocked.
func (s *Service) SignOutUser(ctx context.Context, secret string) {
	if secret == "" {
		return
	}
	client, err := s.backend.Session(ctx, secret)
	if err != nil || client == nil {
		logging.Warn("sign-out session resolution failed", zap.Error(err))
		return
	}
	if err := client.DeleteCurrentSession(ctx); err != nil {
		logging.Warn("sign-out session deletion failed", zap.Error(err))
	}
}

// EnsureOAuthUser upserts the user record for an externally
// authenticated account, keyed by account id.
func (s *Service) EnsureOAuthUser(ctx context.Context, accountID, email, fullName string) (*models.User, error) {
	client := s.backend.Admin()

	user, err := client.Users.GetUserByAccountID(ctx, accountID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if fullName == "" {
		fullName = email
	}
	user = &models.User{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Email:     email,
		FullName:  fullName,
		Avatar:    placeholderAvatarURL,
	}
	if err := client.Users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	logging.Info("user created via oauth", zap.String("account_id", accountID))
	return user, nil
}

// OAuthSignIn provisions the account and user record for a verified
// external identity and opens a session.
func (s *Service) OAuthSignIn(ctx context.Context, email, name string) (*account.Session, *models.User, error) {
	client := s.backend.Admin()

	session, err := client.Accounts.CreateOAuthSession(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("oauth session: %w", err)
	}

	user, err := s.EnsureOAuthUser(ctx, session.AccountID, email, name)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// ResolveSession resolves a secret to its account without the
// absence-as-nil treatment of GetCurrentUser.
func (s *Service) ResolveSession(ctx context.Context, secret string) (*account.Account, error) {
	return s.backend.Admin().Accounts.GetAccount(ctx, secret)
}

// SetupUserPassword installs a password for the calling account. A
// password-capable account must prove the current password first; it
// is verified with a throwaway session. Returns the resulting
// credential state.
func (s *Service) SetupUserPassword(ctx context.Context, secret, password, currentPassword string) (account.CredentialState, error) {
	client, err := s.backend.Session(ctx, secret)
	if err != nil {
		return account.CredentialNone, err
	}
	if client == nil {
		return account.CredentialNone, &backend.ScopeError{Op: "setup password"}
	}

	acct, err := client.CurrentAccount(ctx)
	if err != nil {
		return account.CredentialNone, err
	}

	if acct.CredentialState == account.CredentialPassword {
		if currentPassword == "" {
			return acct.CredentialState, account.ErrInvalidCredentials
		}
		if err := client.Accounts.VerifyPassword(ctx, acct.Email, currentPassword); err != nil {
			return acct.CredentialState, err
		}
	}

	if err := client.Accounts.UpdatePassword(ctx, acct.ID, password); err != nil {
		return acct.CredentialState, fmt.Errorf("setup password: %w", err)
	}
	return account.CredentialPassword, nil
}
