// Package account provides the backend account service: accounts,
// email OTP codes, sessions and password credentials.
package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/storeit/storeit/internal/logging"
	"github.com/storeit/storeit/internal/metrics"
)

// CredentialState describes how an account can authenticate.
type CredentialState string

const (
	// CredentialNone: account exists but has never completed a sign-in.
	CredentialNone CredentialState = "none"
	// CredentialEmailOTP: account has signed in via emailed codes only.
	CredentialEmailOTP CredentialState = "email_otp"
	// CredentialPassword: account can sign in with a password.
	CredentialPassword CredentialState = "password"
)

const (
	sessionTTL = 30 * 24 * time.Hour
	otpTTL     = 15 * time.Minute
	otpDigits  = 6
)

var (
	// ErrInvalidSession is returned when a session secret does not
	// resolve to a live session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrInvalidCode is returned when an OTP is wrong, expired or spent.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrInvalidCredentials is returned on a failed password sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account is a backend account, distinct from the user record that the
// presentation layer reads.
type Account struct {
	ID              string
	Email           string
	CredentialState CredentialState
	CreatedAt       time.Time
}

// Session is a live session. Secret is issued once, on creation.
type Session struct {
	ID        string
	AccountID string
	Secret    string
	ExpiresAt time.Time
}

// Service implements the account API over PostgreSQL.
type Service struct {
	db         *sql.DB
	signingKey []byte
	mailer     Mailer
}

// New creates an account service. The signing key protects session
// secrets and must stay stable across restarts.
func New(db *sql.DB, signingKey string, mailer Mailer) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{db: db, signingKey: []byte(signingKey), mailer: mailer}
}

// EnsureAccount returns the id of the account for email, creating it
// with the given credential state when absent.
func (s *Service) EnsureAccount(ctx context.Context, email string, state CredentialState) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE email = $1`, email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup account: %w", err)
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, credential_state) VALUES ($1, $2, $3)`,
		id, email, string(state))
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}

	logging.Info("account created", zap.String("account_id", id))
	return id, nil
}

// CreateEmailToken issues a one-time code to the address and returns
// the account id the code is bound to. A bare account is created on
// first contact.
func (s *Service) CreateEmailToken(ctx context.Context, email string) (string, error) {
	accountID, err := s.EnsureAccount(ctx, email, CredentialNone)
	if err != nil {
		return "", err
	}

	code, err := randomCode(otpDigits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	// A new code invalidates any outstanding one for the account.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM email_tokens WHERE account_id = $1`, accountID); err != nil {
		return "", fmt.Errorf("clear stale tokens: %w", err)
	}

	expires := time.Now().Add(otpTTL)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO email_tokens (id, account_id, code_hash, expires_at) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), accountID, hashCode(code), expires)
	if err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, email, code); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}

	metrics.RecordOTPIssued()
	logging.Info("email OTP issued", zap.String("account_id", accountID))
	return accountID, nil
}

// CreateSession exchanges an OTP for a session. The code is single-use.
func (s *Service) CreateSession(ctx context.Context, accountID, code string) (*Session, error) {
	var tokenID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM email_tokens
		 WHERE account_id = $1 AND code_hash = $2 AND expires_at > NOW()`,
		accountID, hashCode(code)).Scan(&tokenID)
	if err == sql.ErrNoRows {
		metrics.RecordAuthAttempt(false)
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM email_tokens WHERE id = $1`, tokenID); err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	// First completed OTP sign-in upgrades a bare account.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET credential_state = $1 WHERE id = $2 AND credential_state = $3`,
		string(CredentialEmailOTP), accountID, string(CredentialNone)); err != nil {
		return nil, fmt.Errorf("update credential state: %w", err)
	}

	return s.insertSession(ctx, accountID)
}

// CreatePasswordSession signs in with email and password.
func (s *Service) CreatePasswordSession(ctx context.Context, email, password string) (*Session, error) {
	var accountID string
	var passwordHash sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM accounts WHERE email = $1`, email).
		Scan(&accountID, &passwordHash)
	if err == sql.ErrNoRows {
		metrics.RecordAuthAttempt(false)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !passwordHash.Valid {
		metrics.RecordAuthAttempt(false)
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash.String), []byte(password)); err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Warn("password sign-in failed", zap.String("account_id", accountID))
		return nil, ErrInvalidCredentials
	}

	return s.insertSession(ctx, accountID)
}

// CreateOAuthSession establishes a session for an externally
// authenticated identity, creating the account on first sign-in.
// OAuth accounts count as password-capable: the identity provider owns
// their credential.
func (s *Service) CreateOAuthSession(ctx context.Context, email string) (*Session, error) {
	accountID, err := s.EnsureAccount(ctx, email, CredentialPassword)
	if err != nil {
		return nil, err
	}
	return s.insertSession(ctx, accountID)
}

// GetAccount resolves a session secret to its account.
func (s *Service) GetAccount(ctx context.Context, secret string) (*Account, error) {
	claims, err := parseSessionSecret(s.signingKey, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	acct := &Account{}
	var state sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT a.id, a.email, a.credential_state, a.created_at
		 FROM sessions s JOIN accounts a ON a.id = s.account_id
		 WHERE s.id = $1 AND s.revoked = FALSE AND s.expires_at > NOW()`,
		claims.SessionID).Scan(&acct.ID, &acct.Email, &state, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	acct.CredentialState = parseCredentialState(state)
	return acct, nil
}

// GetAccountByID returns the account with the given id.
func (s *Service) GetAccountByID(ctx context.Context, accountID string) (*Account, error) {
	acct := &Account{}
	var state sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, credential_state, created_at FROM accounts WHERE id = $1`,
		accountID).Scan(&acct.ID, &acct.Email, &state, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	acct.CredentialState = parseCredentialState(state)
	return acct, nil
}

// DeleteSession revokes the session behind a secret. Revoking an
// already-dead session is not an error.
func (s *Service) DeleteSession(ctx context.Context, secret string) error {
	claims, err := parseSessionSecret(s.signingKey, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE id = $1`, claims.SessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.updateActiveSessionCount(ctx)
	return nil
}

// UpdatePassword installs a password and marks the account
// password-capable.
func (s *Service) UpdatePassword(ctx context.Context, accountID, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $1, credential_state = $2 WHERE id = $3`,
		string(hashed), string(CredentialPassword), accountID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("account not found")
	}

	logging.Info("password updated", zap.String("account_id", accountID))
	return nil
}

// VerifyPassword checks a password by creating a throwaway session and
// revoking it immediately.
func (s *Service) VerifyPassword(ctx context.Context, email, password string) error {
	session, err := s.CreatePasswordSession(ctx, email, password)
	if err != nil {
		return err
	}
	if err := s.DeleteSession(ctx, session.Secret); err != nil {
		logging.Warn("failed to revoke throwaway session", zap.Error(err))
	}
	return nil
}

func (s *Service) insertSession(ctx context.Context, accountID string) (*Session, error) {
	sessionID := uuid.NewString()
	expires := time.Now().Add(sessionTTL)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, expires_at) VALUES ($1, $2, $3)`,
		sessionID, accountID, expires)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	secret, err := signSessionSecret(s.signingKey, sessionID, accountID, expires)
	if err != nil {
		return nil, err
	}

	metrics.RecordAuthAttempt(true)
	s.updateActiveSessionCount(ctx)
	logging.Info("session created", zap.String("account_id", accountID))

	return &Session{
		ID:        sessionID,
		AccountID: accountID,
		Secret:    secret,
		ExpiresAt: expires,
	}, nil
}

func (s *Service) updateActiveSessionCount(ctx context.Context) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE revoked = FALSE AND expires_at > NOW()`).Scan(&count)
	if err == nil {
		metrics.SetActiveSessions(count)
	}
}

func parseCredentialState(v sql.NullString) CredentialState {
	if !v.Valid {
		return CredentialNone
	}
	switch CredentialState(v.String) {
	case CredentialEmailOTP, CredentialPassword:
		return CredentialState(v.String)
	default:
		return CredentialNone
	}
}

func randomCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func hashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}
