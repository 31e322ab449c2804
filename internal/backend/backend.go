// Package backend assembles per-request clients over the account
// service, metadata store and blob store. Handlers never touch a
// shared client: each request builds either an admin client or a
// session client scoped to the caller's secret.
package backend

import (
	"context"
	"errors"
	"io"

	"github.com/storeit/storeit/internal/account"
	"github.com/storeit/storeit/internal/models"
)

// Accounts is the slice of the account service that clients use.
type Accounts interface {
	CreateEmailToken(ctx context.Context, email string) (string, error)
	CreateSession(ctx context.Context, accountID, code string) (*account.Session, error)
	CreatePasswordSession(ctx context.Context, email, password string) (*account.Session, error)
	CreateOAuthSession(ctx context.Context, email string) (*account.Session, error)
	GetAccount(ctx context.Context, secret string) (*account.Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*account.Account, error)
	DeleteSession(ctx context.Context, secret string) error
	UpdatePassword(ctx context.Context, accountID, password string) error
	VerifyPassword(ctx context.Context, email, password string) error
}

// Users is the user-record side of the metadata store.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByAccountID(ctx context.Context, accountID string) (*models.User, error)
}

// Files is the file-record side of the metadata store.
type Files interface {
	CreateFile(ctx context.Context, f *models.File) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	ListFiles(ctx context.Context, opts models.ListOptions) ([]*models.File, error)
	RenameFile(ctx context.Context, id, name string) error
	UpdateFileUsers(ctx context.Context, id string, emails []string) error
	DeleteFile(ctx context.Context, id string) error
	StorageUsed(ctx context.Context, ownerID string) (int64, error)
	UsageByType(ctx context.Context, ownerID string) (map[string]models.TypeUsage, error)
}

// Blobs is the content side of the store.
type Blobs interface {
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error
	DeleteObject(ctx context.Context, key string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// Client bundles the backend services for one request. Scope is "admin"
// or "session"; session clients can resolve the calling account,
// admin clients cannot.
type Client struct {
	Scope    string
	Accounts Accounts
	Users    Users
	Files    Files
	Blobs    Blobs

	sessionSecret string
}

// CurrentAccount resolves the session behind this client. Admin
// clients have no session and get a ScopeError.
func (c *Client) CurrentAccount(ctx context.Context) (*account.Account, error) {
	if c.Scope != ScopeSession {
		return nil, &ScopeError{Op: "current account", Err: errors.New("admin client has no session")}
	}
	acct, err := c.Accounts.GetAccount(ctx, c.sessionSecret)
	if err != nil {
		if errors.Is(err, account.ErrInvalidSession) {
			return nil, &ScopeError{Op: "current account", Err: err}
		}
		return nil, err
	}
	return acct, nil
}

// DeleteCurrentSession revokes the session behind this client.
func (c *Client) DeleteCurrentSession(ctx context.Context) error {
	if c.Scope != ScopeSession {
		return &ScopeError{Op: "delete session", Err: errors.New("admin client has no session")}
	}
	return c.Accounts.DeleteSession(ctx, c.sessionSecret)
}

// Client scopes.
const (
	ScopeAdmin   = "admin"
	ScopeSession = "session"
)

// Factory builds per-request clients.
type Factory struct {
	accounts Accounts
	users    Users
	files    Files
	blobs    Blobs
}

// NewFactory wires a client factory over the backend services.
func NewFactory(accounts Accounts, users Users, files Files, blobs Blobs) *Factory {
	return &Factory{accounts: accounts, users: users, files: files, blobs: blobs}
}

// Admin returns a client with full access to every record. Callers
// are responsible for authorization: admin clients answer for any
// owner, so handlers must check ownership themselves before acting.
func (f *Factory) Admin() *Client {
	return &Client{
		Scope:    ScopeAdmin,
		Accounts: f.accounts,
		Users:    f.users,
		Files:    f.files,
		Blobs:    f.blobs,
	}
}

// Session returns a client acting as the session owner. An empty
// secret yields (nil, nil): no session is an absence, not a failure.
// A secret that does not resolve to a live session is a ScopeError.
func (f *Factory) Session(ctx context.Context, secret string) (*Client, error) {
	if secret == "" {
		return nil, nil
	}
	if _, err := f.accounts.GetAccount(ctx, secret); err != nil {
		if errors.Is(err, account.ErrInvalidSession) {
			return nil, &ScopeError{Op: "session client", Err: err}
		}
		return nil, err
	}
	return &Client{
		Scope:         ScopeSession,
		Accounts:      f.accounts,
		Users:         f.users,
		Files:         f.files,
		Blobs:         f.blobs,
		sessionSecret: secret,
	}, nil
}
