package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"securesend/internal/server/database"
	"securesend/internal/server/storage"
)

// Lifecycle owns creation and deletion of upload requests, their files, and
// their download requests. Every creation mints a fresh opaque ID and a
// fresh guest token; tokens are never reused and never derived from the ID.
type Lifecycle struct {
	repo  Repository
	store storage.Store
	now   func() time.Time
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(repo Repository, store storage.Store) *Lifecycle {
	return &Lifecycle{repo: repo, store: store, now: time.Now}
}

// CreateUploadRequest mints a new drop box.
func (l *Lifecycle) CreateUploadRequest(ctx context.Context, title string, expiresAt *time.Time, maxFiles int, maxTotalSize int64, createdBy string) (*database.UploadRequest, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if maxFiles < 1 {
		return nil, fmt.Errorf("%w: max_files must be at least 1", ErrValidation)
	}
	if maxTotalSize < 1 {
		return nil, fmt.Errorf("%w: max_total_size must be at least 1 MiB", ErrValidation)
	}

	req := &database.UploadRequest{
		ID:           uuid.NewString(),
		UploadToken:  uuid.NewString(),
		Title:        title,
		ExpiresAt:    expiresAt,
		MaxFiles:     maxFiles,
		MaxTotalSize: maxTotalSize,
		CreatedBy:    createdBy,
		CreatedAt:    l.now().UTC(),
	}
	if err := l.repo.CreateUploadRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetUploadRequest retrieves a drop box by ID.
func (l *Lifecycle) GetUploadRequest(ctx context.Context, id string) (*database.UploadRequest, error) {
	req, err := l.repo.GetUploadRequest(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUploadRequestNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListUploadRequests lists a user's drop boxes with derived counts.
func (l *Lifecycle) ListUploadRequests(ctx context.Context, createdBy string, limit, offset int) ([]*database.UploadRequestSummary, int, error) {
	return l.repo.ListUploadRequests(ctx, createdBy, limit, offset)
}

// DeleteUploadRequest cascades: every file's stored bytes go first, then all
// child rows fall with the request row in one transactional delete, and the
// storage directory is removed last. The directory removal is non-recursive
// on purpose — leftover bytes mean a bug and must surface as an error.
func (l *Lifecycle) DeleteUploadRequest(ctx context.Context, id string) error {
	if _, err := l.GetUploadRequest(ctx, id); err != nil {
		return err
	}

	files, err := l.repo.ListFiles(ctx, id)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := l.store.Delete(id, f.FileID); err != nil {
			return err
		}
	}

	if err := l.repo.DeleteUploadRequest(ctx, id); err != nil {
		if errors.Is(err, database.ErrUploadRequestNotFound) {
			return ErrNotFound
		}
		return err
	}

	return l.store.RemoveRequestDir(id)
}

// ListFiles lists the files of a drop box.
func (l *Lifecycle) ListFiles(ctx context.Context, uploadRequestID string) ([]*database.File, error) {
	return l.repo.ListFiles(ctx, uploadRequestID)
}

// GetFile retrieves a file record.
func (l *Lifecycle) GetFile(ctx context.Context, fileID string) (*database.File, error) {
	f, err := l.repo.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// DeleteFile removes one file's stored bytes and its record.
func (l *Lifecycle) DeleteFile(ctx context.Context, fileID string) (*database.File, error) {
	f, err := l.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := l.store.Delete(f.UploadRequestID, f.FileID); err != nil {
		return nil, err
	}
	if err := l.repo.DeleteFile(ctx, f.FileID); err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// DownloadRequestParams are the caller-supplied fields of a new download
// request. Password is the plaintext to hash when AuthType is pass;
// AuthEmail is the raw address list when AuthType is mail.
type DownloadRequestParams struct {
	UploadRequestID string
	ExpireDays      *int
	MaxDownloads    int
	AuthType        string
	Password        string
	AuthEmail       string
}

// CreateDownloadRequest mints a new retrieval link for a drop box. The
// guest password, when configured, is stored as a bcrypt hash.
func (l *Lifecycle) CreateDownloadRequest(ctx context.Context, p DownloadRequestParams) (*database.DownloadRequest, error) {
	if _, err := l.GetUploadRequest(ctx, p.UploadRequestID); err != nil {
		return nil, err
	}
	if p.MaxDownloads < 1 {
		return nil, fmt.Errorf("%w: max_downloads must be at least 1", ErrValidation)
	}
	if p.ExpireDays != nil && *p.ExpireDays < 1 {
		return nil, fmt.Errorf("%w: expire_days must be at least 1", ErrValidation)
	}

	dr := &database.DownloadRequest{
		UploadRequestID: p.UploadRequestID,
		DownloadToken:   uuid.NewString(),
		ExpireDays:      p.ExpireDays,
		MaxDownloads:    p.MaxDownloads,
		AuthType:        p.AuthType,
		CreatedAt:       l.now().UTC(),
	}

	switch p.AuthType {
	case database.AuthNone:
	case database.AuthPass:
		if p.Password == "" {
			return nil, fmt.Errorf("%w: a password is required for password authentication", ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		dr.AuthPassword = &h
	case database.AuthMail:
		if len(ParseEmails(p.AuthEmail)) == 0 {
			return nil, fmt.Errorf("%w: at least one valid mail address is required", ErrValidation)
		}
		dr.AuthEmail = &p.AuthEmail
	default:
		return nil, fmt.Errorf("%w: unknown auth type %q", ErrValidation, p.AuthType)
	}

	if err := l.repo.CreateDownloadRequest(ctx, dr); err != nil {
		return nil, err
	}
	return dr, nil
}

// GetDownloadRequest retrieves a retrieval link by ID.
func (l *Lifecycle) GetDownloadRequest(ctx context.Context, id int64) (*database.DownloadRequest, error) {
	dr, err := l.repo.GetDownloadRequest(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrDownloadRequestNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return dr, nil
}

// ListDownloadRequests lists the retrieval links of a drop box.
func (l *Lifecycle) ListDownloadRequests(ctx context.Context, uploadRequestID string) ([]*database.DownloadRequest, error) {
	return l.repo.ListDownloadRequests(ctx, uploadRequestID)
}

// DeleteDownloadRequest removes a retrieval link and its counters. The files
// it pointed at remain, owned by the upload request.
func (l *Lifecycle) DeleteDownloadRequest(ctx context.Context, id int64) (*database.DownloadRequest, error) {
	dr, err := l.GetDownloadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.repo.DeleteDownloadRequest(ctx, id); err != nil {
		if errors.Is(err, database.ErrDownloadRequestNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return dr, nil
}

// ListAccessLogs returns the audit trail of a drop box.
func (l *Lifecycle) ListAccessLogs(ctx context.Context, uploadRequestID string, limit, offset int) ([]*database.AccessLogDetail, error) {
	return l.repo.ListAccessLogs(ctx, uploadRequestID, limit, offset)
}
