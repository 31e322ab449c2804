package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/backend"
	"github.com/storeit/storeit/internal/logging"
	"github.com/storeit/storeit/internal/metrics"
	"github.com/storeit/storeit/internal/models"
)

// ErrFileTooLarge is returned when an upload exceeds the single-file cap.
var ErrFileTooLarge = errors.New("file too large")

// UploadFile stores a blob and its record for the calling user. The
// blob goes first; if the record write fails the blob is deleted again
// so neither side outlives the other.
func (s *Service) UploadFile(ctx context.Context, secret, name string, content io.Reader, size int64, path string) (*models.File, error) {
	if size > s.cfg.MaxFileSize {
		metrics.RecordFileUpload(0, false)
		return nil, fmt.Errorf("%w: %s exceeds the %d MB limit", ErrFileTooLarge, name, s.cfg.MaxFileSize/(1024*1024))
	}

	user, err := s.GetCurrentUser(ctx, secret)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &backend.ScopeError{Op: "upload file"}
	}

	client := s.backend.Admin()

	// Pre-check against the live total. Concurrent uploads can each
	// pass against a stale sum; the ceiling is advisory, not a hard
	// transactional bound.
	used, err := client.Files.StorageUsed(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("compute storage used: %w", err)
	}
	if used+size > s.cfg.MaxTotalStorage {
		metrics.RecordQuotaExceeded()
		metrics.RecordFileUpload(0, false)
		return nil, &backend.QuotaError{Requested: size, Used: used, Ceiling: s.cfg.MaxTotalStorage}
	}

	blobKey := uuid.NewString()
	if err := client.Blobs.PutObject(ctx, blobKey, content, size); err != nil {
		metrics.RecordFileUpload(0, false)
		return nil, fmt.Errorf("store blob: %w", err)
	}

	fileType, extension := fileTypeFromName(name)
	file := &models.File{
		ID:           uuid.NewString(),
		Name:         name,
		Extension:    extension,
		Type:         fileType,
		Size:         size,
		BucketFileID: blobKey,
		OwnerID:      user.ID,
		Users:        []string{},
	}
	file.URL = fmt.Sprintf("%s/api/v1/files/%s/download", s.cfg.PublicURL, file.ID)

	if err := client.Files.CreateFile(ctx, file); err != nil {
		// Compensate: the record failed, so the blob must go too.
		if delErr := client.Blobs.DeleteObject(ctx, blobKey); delErr != nil {
			metrics.RecordOrphanBlob()
			logging.Error("upload rollback failed, orphan blob",
				zap.String("blob_key", blobKey), zap.Error(delErr))
		}
		metrics.RecordUploadRollback()
		metrics.RecordFileUpload(0, false)
		return nil, fmt.Errorf("create file record: %w", err)
	}

	metrics.RecordFileUpload(size, true)
	logging.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("owner", user.ID),
		zap.Int64("size", size))

	s.revalidate(path)
	return file, nil
}

// GetFiles lists files the calling user owns or has been granted
// access to, narrowed by the options. No resolved user is a scope
// failure, not an empty listing.
func (s *Service) GetFiles(ctx context.Context, secret string, types []string, search, sort string, limit int) ([]*models.File, error) {
	user, err := s.GetCurrentUser(ctx, secret)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &backend.ScopeError{Op: "list files"}
	}

	files, err := s.backend.Admin().Files.ListFiles(ctx, models.ListOptions{
		OwnerID: user.ID,
		Email:   user.Email,
		Types:   types,
		Search:  search,
		Sort:    sort,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// RenameFile renames an owned file. The extension is appended only
// when the new name does not already carry it.
func (s *Service) RenameFile(ctx context.Context, secret, fileID, name, extension, path string) (*models.File, error) {
	client := s.backend.Admin()

	file, err := s.ownedFile(ctx, client, secret, fileID, "rename file")
	if err != nil {
		return nil, err
	}

	newName := name
	if extension != "" && !strings.HasSuffix(name, "."+extension) {
		newName = name + "." + extension
	}

	if err := client.Files.RenameFile(ctx, fileID, newName); err != nil {
		return nil, fmt.Errorf("rename file: %w", err)
	}

	file.Name = newName
	s.revalidate(path)
	return file, nil
}

// UpdateFileUsers replaces the shared-with list of an owned file
// wholesale. Callers pass the full desired list, removals included.
func (s *Service) UpdateFileUsers(ctx context.Context, secret, fileID string, emails []string, path string) (*models.File, error) {
	client := s.backend.Admin()

	file, err := s.ownedFile(ctx, client, secret, fileID, "share file")
	if err != nil {
		return nil, err
	}

	if emails == nil {
		emails = []string{}
	}
	if err := client.Files.UpdateFileUsers(ctx, fileID, emails); err != nil {
		return nil, fmt.Errorf("update file users: %w", err)
	}

	file.Users = emails
	s.revalidate(path)
	return file, nil
}

// DeleteFile removes an owned file, record first. A blob that survives
// a record deletion is logged as an orphan, not retried.
func (s *Service) DeleteFile(ctx context.Context, secret, fileID, path string) error {
	client := s.backend.Admin()

	file, err := s.ownedFile(ctx, client, secret, fileID, "delete file")
	if err != nil {
		return err
	}

	if err := client.Files.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}

	if err := client.Blobs.DeleteObject(ctx, file.BucketFileID); err != nil {
		metrics.RecordOrphanBlob()
		logging.Error("blob deletion failed, orphan blob",
			zap.String("blob_key", file.BucketFileID), zap.Error(err))
	}

	s.revalidate(path)
	return nil
}

// GetFileContent streams the content of a file the caller owns or has
// access to, with range support.
func (s *Service) GetFileContent(ctx context.Context, secret, fileID string, offset, length int64) (*models.File, io.ReadCloser, int64, error) {
	user, err := s.GetCurrentUser(ctx, secret)
	if err != nil {
		return nil, nil, 0, err
	}
	if user == nil {
		return nil, nil, 0, &backend.ScopeError{Op: "download file"}
	}

	client := s.backend.Admin()
	file, err := client.Files.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, 0, err
	}
	if file.OwnerID != user.ID && !slices.Contains(file.Users, user.Email) {
		return nil, nil, 0, &backend.ScopeError{Op: "download file"}
	}

	reader, size, err := client.Blobs.GetObject(ctx, file.BucketFileID, offset, length)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read blob: %w", err)
	}
	metrics.RecordFileDownload(size, true)
	return file, reader, size, nil
}

// GetTotalSpaceUsed summarizes the calling user's storage by type.
// When no user resolves the summary is zero-valued, never an error, so
// dashboards render for signed-out states.
func (s *Service) GetTotalSpaceUsed(ctx context.Context, secret string) (*models.Usage, error) {
	user, err := s.GetCurrentUser(ctx, secret)
	if err != nil || user == nil {
		if err != nil {
			logging.Warn("usage summary without user", zap.Error(err))
		}
		return models.EmptyUsage(s.cfg.MaxTotalStorage), nil
	}

	client := s.backend.Admin()
	byType, err := client.Files.UsageByType(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("usage by type: %w", err)
	}

	usage := models.EmptyUsage(s.cfg.MaxTotalStorage)
	for t, u := range byType {
		usage.ByType[t] = u
		usage.Used += u.Size
	}
	return usage, nil
}

// ownedFile loads a file and checks the caller owns it.
func (s *Service) ownedFile(ctx context.Context, client *backend.Client, secret, fileID, op string) (*models.File, error) {
	user, err := s.GetCurrentUser(ctx, secret)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &backend.ScopeError{Op: op}
	}

	file, err := client.Files.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != user.ID {
		return nil, &backend.ScopeError{Op: op}
	}
	return file, nil
}
