package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CreateDownloadRequest inserts a new download request and fills in its
// generated ID.
func (r *Repository) CreateDownloadRequest(ctx context.Context, dr *DownloadRequest) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO download_requests (
			upload_request_id, download_token, expire_days, max_downloads,
			auth_type, auth_password, auth_email, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		dr.UploadRequestID,
		dr.DownloadToken,
		dr.ExpireDays,
		dr.MaxDownloads,
		dr.AuthType,
		dr.AuthPassword,
		dr.AuthEmail,
		dr.CreatedAt,
	).Scan(&dr.ID)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	return nil
}

// GetDownloadRequest retrieves a download request by its ID.
func (r *Repository) GetDownloadRequest(ctx context.Context, id int64) (*DownloadRequest, error) {
	return r.getDownloadRequest(ctx, "id = $1", id)
}

// GetDownloadRequestByToken retrieves a download request by its guest token.
func (r *Repository) GetDownloadRequestByToken(ctx context.Context, token string) (*DownloadRequest, error) {
	return r.getDownloadRequest(ctx, "download_token = $1", token)
}

func (r *Repository) getDownloadRequest(ctx context.Context, where string, arg any) (*DownloadRequest, error) {
	dr := &DownloadRequest{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, upload_request_id, download_token, expire_days, expires_at,
		       max_downloads, auth_type, auth_password, auth_email, created_at
		FROM download_requests WHERE `+where,
		arg,
	).Scan(
		&dr.ID,
		&dr.UploadRequestID,
		&dr.DownloadToken,
		&dr.ExpireDays,
		&dr.ExpiresAt,
		&dr.MaxDownloads,
		&dr.AuthType,
		&dr.AuthPassword,
		&dr.AuthEmail,
		&dr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDownloadRequestNotFound
		}
		return nil, fmt.Errorf("failed to get download request: %w", err)
	}
	return dr, nil
}

// ListDownloadRequests returns the download requests of an upload request,
// newest first.
func (r *Repository) ListDownloadRequests(ctx context.Context, uploadRequestID string) ([]*DownloadRequest, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, upload_request_id, download_token, expire_days, expires_at,
		       max_downloads, auth_type, auth_password, auth_email, created_at
		FROM download_requests
		WHERE upload_request_id = $1
		ORDER BY created_at DESC
	`, uploadRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list download requests: %w", err)
	}
	defer rows.Close()

	var out []*DownloadRequest
	for rows.Next() {
		dr := &DownloadRequest{}
		if err := rows.Scan(
			&dr.ID,
			&dr.UploadRequestID,
			&dr.DownloadToken,
			&dr.ExpireDays,
			&dr.ExpiresAt,
			&dr.MaxDownloads,
			&dr.AuthType,
			&dr.AuthPassword,
			&dr.AuthEmail,
			&dr.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan download request: %w", err)
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

// DeleteDownloadRequest removes a download request row. Its download counts
// are removed by the foreign-key cascade; the files it points at remain,
// owned by the upload request.
func (r *Repository) DeleteDownloadRequest(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM download_requests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete download request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDownloadRequestNotFound
	}
	return nil
}

// StartDownloadExpiry sets expires_at on a download request whose clock has
// not started yet. The IS NULL guard makes the transition happen at most
// once regardless of concurrent first accesses; requests with no expire_days
// never expire and are left untouched.
func (r *Repository) StartDownloadExpiry(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE download_requests
		SET expires_at = $2
		WHERE download_token = $1
		  AND expires_at IS NULL
		  AND expire_days IS NOT NULL
	`, token, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to start download expiry: %w", err)
	}
	return nil
}

// GetDownloadCount returns the retrieval counter for one file under one
// download request. A missing row counts as zero.
func (r *Repository) GetDownloadCount(ctx context.Context, downloadRequestID int64, fileID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT download_count FROM download_counts
		WHERE download_request_id = $1 AND file_id = $2
	`, downloadRequestID, fileID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get download count: %w", err)
	}
	return count, nil
}

// IncrementDownloadCount upserts the retrieval counter for one file under
// one download request.
func (r *Repository) IncrementDownloadCount(ctx context.Context, downloadRequestID int64, fileID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO download_counts (download_request_id, file_id, download_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (download_request_id, file_id)
		DO UPDATE SET download_count = download_counts.download_count + 1
	`, downloadRequestID, fileID)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	return nil
}
