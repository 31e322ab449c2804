package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storeit/storeit/internal/metrics"
	"github.com/storeit/storeit/internal/models"
)

const userColumns = `id, account_id, email, full_name, avatar, created_at`

// CreateUser inserts a user record. A missing ID is generated.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_user", time.Since(start)) }()

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, account_id, email, full_name, avatar)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		u.ID, u.AccountID, u.Email, u.FullName, u.Avatar).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user record for an email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetUserByAccountID returns the user record keyed to a backend account.
func (s *Store) GetUserByAccountID(ctx context.Context, accountID string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE account_id = $1`, accountID)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_user", time.Since(start)) }()

	u := &models.User{}
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.AccountID, &u.Email, &u.FullName, &u.Avatar, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
