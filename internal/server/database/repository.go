package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrUploadRequestNotFound   = errors.New("upload request not found")
	ErrFileNotFound            = errors.New("file not found")
	ErrDownloadRequestNotFound = errors.New("download request not found")
	ErrUserNotFound            = errors.New("user not found")
)

// Repository provides CRUD operations for all securesend records.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateUploadRequest inserts a new upload request record.
func (r *Repository) CreateUploadRequest(ctx context.Context, req *UploadRequest) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO upload_requests (
			id, upload_token, title, expires_at, max_files,
			max_total_size, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		req.ID,
		req.UploadToken,
		req.Title,
		req.ExpiresAt,
		req.MaxFiles,
		req.MaxTotalSize,
		req.CreatedBy,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	return nil
}

// GetUploadRequest retrieves an upload request by its ID.
func (r *Repository) GetUploadRequest(ctx context.Context, id string) (*UploadRequest, error) {
	return r.getUploadRequest(ctx, "id", id)
}

// GetUploadRequestByToken retrieves an upload request by its guest token.
func (r *Repository) GetUploadRequestByToken(ctx context.Context, token string) (*UploadRequest, error) {
	return r.getUploadRequest(ctx, "upload_token", token)
}

func (r *Repository) getUploadRequest(ctx context.Context, column, value string) (*UploadRequest, error) {
	req := &UploadRequest{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, upload_token, title, expires_at, max_files,
		       max_total_size, created_by, created_at
		FROM upload_requests WHERE `+column+` = $1
	`, value).Scan(
		&req.ID,
		&req.UploadToken,
		&req.Title,
		&req.ExpiresAt,
		&req.MaxFiles,
		&req.MaxTotalSize,
		&req.CreatedBy,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUploadRequestNotFound
		}
		return nil, fmt.Errorf("failed to get upload request: %w", err)
	}
	return req, nil
}

// ListUploadRequests returns the upload requests created by one user, newest
// first, with derived file and download-link counts, plus the total row count
// for pagination.
func (r *Repository) ListUploadRequests(ctx context.Context, createdBy string, limit, offset int) ([]*UploadRequestSummary, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM upload_requests WHERE created_by = $1", createdBy,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count upload requests: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT ur.id, ur.upload_token, ur.title, ur.expires_at, ur.max_files,
		       ur.max_total_size, ur.created_by, ur.created_at,
		       (SELECT COUNT(*) FROM files f WHERE f.upload_request_id = ur.id),
		       (SELECT COUNT(*) FROM download_requests dr WHERE dr.upload_request_id = ur.id)
		FROM upload_requests ur
		WHERE ur.created_by = $1
		ORDER BY ur.created_at DESC
		LIMIT $2 OFFSET $3
	`, createdBy, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list upload requests: %w", err)
	}
	defer rows.Close()

	var out []*UploadRequestSummary
	for rows.Next() {
		s := &UploadRequestSummary{}
		if err := rows.Scan(
			&s.ID,
			&s.UploadToken,
			&s.Title,
			&s.ExpiresAt,
			&s.MaxFiles,
			&s.MaxTotalSize,
			&s.CreatedBy,
			&s.CreatedAt,
			&s.FileCount,
			&s.DownloadURLCount,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan upload request: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// DeleteUploadRequest removes an upload request row. Child files, download
// requests, and download counts are removed atomically by the foreign-key
// cascades declared in the schema.
func (r *Repository) DeleteUploadRequest(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM upload_requests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete upload request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadRequestNotFound
	}
	return nil
}

// CreateFile inserts a new file record.
func (r *Repository) CreateFile(ctx context.Context, f *File) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO files (
			file_id, upload_request_id, original_name, file_size, uploaded_at
		) VALUES ($1, $2, $3, $4, $5)
	`,
		f.FileID,
		f.UploadRequestID,
		f.OriginalName,
		f.FileSize,
		f.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetFile retrieves a file by its storage ID.
func (r *Repository) GetFile(ctx context.Context, fileID string) (*File, error) {
	f := &File{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT file_id, upload_request_id, original_name, file_size, uploaded_at
		FROM files WHERE file_id = $1
	`, fileID).Scan(
		&f.FileID,
		&f.UploadRequestID,
		&f.OriginalName,
		&f.FileSize,
		&f.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListFiles returns all files of an upload request in upload order.
func (r *Repository) ListFiles(ctx context.Context, uploadRequestID string) ([]*File, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT file_id, upload_request_id, original_name, file_size, uploaded_at
		FROM files WHERE upload_request_id = $1
		ORDER BY uploaded_at
	`, uploadRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(
			&f.FileID,
			&f.UploadRequestID,
			&f.OriginalName,
			&f.FileSize,
			&f.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes a file record by its storage ID.
func (r *Repository) DeleteFile(ctx context.Context, fileID string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM files WHERE file_id = $1", fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}
