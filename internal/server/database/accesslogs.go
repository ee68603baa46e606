package database

import (
	"context"
	"fmt"
)

// InsertAccessLog appends one audit-trail entry.
func (r *Repository) InsertAccessLog(ctx context.Context, e *AccessLog) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO access_logs (
			accessed_at, actor, action, upload_request_id, download_request_id,
			file_id, result, http_status, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		e.AccessedAt,
		e.Actor,
		e.Action,
		e.UploadRequestID,
		e.DownloadRequestID,
		e.FileID,
		e.Result,
		e.HTTPStatus,
		e.IPAddress,
		e.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access log: %w", err)
	}
	return nil
}

// ListAccessLogs returns entries for one upload request, newest first, joined
// with the display names of the records they refer to. The joins are
// subselects because the referenced rows may no longer exist.
func (r *Repository) ListAccessLogs(ctx context.Context, uploadRequestID string, limit, offset int) ([]*AccessLogDetail, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT al.id, al.accessed_at, al.actor, al.action,
		       al.upload_request_id, al.download_request_id, al.file_id,
		       al.result, al.http_status, al.ip_address, al.user_agent,
		       (SELECT ur.title FROM upload_requests ur WHERE ur.id = al.upload_request_id),
		       (SELECT dr.auth_type FROM download_requests dr WHERE dr.id = al.download_request_id),
		       (SELECT f.original_name FROM files f WHERE f.file_id = al.file_id)
		FROM access_logs al
		WHERE al.upload_request_id = $1
		ORDER BY al.accessed_at DESC
		LIMIT $2 OFFSET $3
	`, uploadRequestID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var out []*AccessLogDetail
	for rows.Next() {
		d := &AccessLogDetail{}
		if err := rows.Scan(
			&d.ID,
			&d.AccessedAt,
			&d.Actor,
			&d.Action,
			&d.UploadRequestID,
			&d.DownloadRequestID,
			&d.FileID,
			&d.Result,
			&d.HTTPStatus,
			&d.IPAddress,
			&d.UserAgent,
			&d.UploadRequestTitle,
			&d.DownloadRequestAuth,
			&d.FileName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
