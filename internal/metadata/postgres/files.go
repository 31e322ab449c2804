package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/storeit/storeit/internal/metrics"
	"github.com/storeit/storeit/internal/models"
)

const fileColumns = `id, name, extension, type, size, url, bucket_file_id, owner_id, users, created_at, updated_at`

// likeEscaper neutralizes LIKE wildcards in user search text so they
// match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CreateFile inserts a file record. A missing ID is generated.
func (s *Store) CreateFile(ctx context.Context, f *models.File) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Users == nil {
		f.Users = []string{}
	}
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_file", time.Since(start)) }()

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO files (id, name, extension, type, size, url, bucket_file_id, owner_id, users)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		f.ID, f.Name, f.Extension, f.Type, f.Size, f.URL, f.BucketFileID, f.OwnerID,
		pq.Array(f.Users)).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile returns a file record by id.
func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_file", time.Since(start)) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query file: %w", err)
	}
	return f, nil
}

// ListFiles returns the file records visible to the scope in opts:
// owned by OwnerID or shared with Email, optionally narrowed by type
// set, name substring and limit, ordered by the sort token.
func (s *Store) ListFiles(ctx context.Context, opts models.ListOptions) ([]*models.File, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_files", time.Since(start)) }()

	query := `SELECT ` + fileColumns + ` FROM files WHERE (owner_id = $1 OR $2 = ANY(users))`
	args := []any{opts.OwnerID, opts.Email}

	if len(opts.Types) > 0 {
		args = append(args, pq.Array(opts.Types))
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	if opts.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(opts.Search)+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	field, direction := ParseSortToken(opts.Sort)
	query += " ORDER BY " + field + " " + direction

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// RenameFile updates a record's stored name.
func (s *Store) RenameFile(ctx context.Context, id, name string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("rename_file", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateFileUsers replaces the shared-with email list wholesale.
func (s *Store) UpdateFileUsers(ctx context.Context, id string, emails []string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update_file_users", time.Since(start)) }()

	if emails == nil {
		emails = []string{}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET users = $1, updated_at = NOW() WHERE id = $2`,
		pq.Array(emails), id)
	if err != nil {
		return fmt.Errorf("update file users: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteFile removes a file record.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_file", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// StorageUsed returns the total bytes of files owned by a user.
func (s *Store) StorageUsed(ctx context.Context, ownerID string) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("storage_used", time.Since(start)) }()

	var used sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM files WHERE owner_id = $1`, ownerID).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("storage used: %w", err)
	}
	return used.Int64, nil
}

// UsageByType returns per-type byte totals and most recent update
// times for the files owned by a user. Absent types are omitted.
func (s *Store) UsageByType(ctx context.Context, ownerID string) (map[string]models.TypeUsage, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("usage_by_type", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COALESCE(SUM(size), 0), MAX(updated_at)
		 FROM files WHERE owner_id = $1 GROUP BY type`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("usage by type: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]models.TypeUsage)
	for rows.Next() {
		var t string
		var u models.TypeUsage
		if err := rows.Scan(&t, &u.Size, &u.LatestDate); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usage[t] = u
	}
	return usage, rows.Err()
}

// sortFields whitelists sortable columns; the UI's "$createdAt" and
// "$updatedAt" tokens map onto the timestamp columns.
var sortFields = map[string]string{
	"name":       "name",
	"size":       "size",
	"extension":  "extension",
	"$createdAt": "created_at",
	"createdAt":  "created_at",
	"$updatedAt": "updated_at",
	"updatedAt":  "updated_at",
}

// ParseSortToken splits a "field-direction" token on its last dash and
// maps it onto a column and direction. Unknown fields and directions
// fall back to newest-first.
func ParseSortToken(token string) (field, direction string) {
	field, direction = "created_at", "DESC"
	if token == "" {
		return field, direction
	}

	i := strings.LastIndex(token, "-")
	if i < 0 {
		return field, direction
	}

	col, ok := sortFields[token[:i]]
	if !ok {
		return field, direction
	}
	field = col

	switch token[i+1:] {
	case "asc":
		direction = "ASC"
	case "desc":
		direction = "DESC"
	default:
		field, direction = "created_at", "DESC"
	}
	return field, direction
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.File, error) {
	f := &models.File{}
	if err := row.Scan(&f.ID, &f.Name, &f.Extension, &f.Type, &f.Size, &f.URL,
		&f.BucketFileID, &f.OwnerID, pq.Array(&f.Users), &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if f.Users == nil {
		f.Users = []string{}
	}
	return f, nil
}
