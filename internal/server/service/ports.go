package service

import (
	"context"
	"time"

	"securesend/internal/server/database"
)

// Repository is the persistence surface the engine needs. It is satisfied by
// *database.Repository; tests substitute an in-memory implementation.
type Repository interface {
	CreateUploadRequest(ctx context.Context, req *database.UploadRequest) error
	GetUploadRequest(ctx context.Context, id string) (*database.UploadRequest, error)
	GetUploadRequestByToken(ctx context.Context, token string) (*database.UploadRequest, error)
	ListUploadRequests(ctx context.Context, createdBy string, limit, offset int) ([]*database.UploadRequestSummary, int, error)
	DeleteUploadRequest(ctx context.Context, id string) error

	CreateFile(ctx context.Context, f *database.File) error
	GetFile(ctx context.Context, fileID string) (*database.File, error)
	ListFiles(ctx context.Context, uploadRequestID string) ([]*database.File, error)
	DeleteFile(ctx context.Context, fileID string) error

	CreateDownloadRequest(ctx context.Context, dr *database.DownloadRequest) error
	GetDownloadRequest(ctx context.Context, id int64) (*database.DownloadRequest, error)
	GetDownloadRequestByToken(ctx context.Context, token string) (*database.DownloadRequest, error)
	ListDownloadRequests(ctx context.Context, uploadRequestID string) ([]*database.DownloadRequest, error)
	DeleteDownloadRequest(ctx context.Context, id int64) error
	StartDownloadExpiry(ctx context.Context, token string, expiresAt time.Time) error
	GetDownloadCount(ctx context.Context, downloadRequestID int64, fileID string) (int, error)
	IncrementDownloadCount(ctx context.Context, downloadRequestID int64, fileID string) error

	CreateOTPChallenge(ctx context.Context, c *database.OTPChallenge) error
	LatestUnverifiedChallenge(ctx context.Context, token, email string) (*database.OTPChallenge, error)
	MarkChallengeVerified(ctx context.Context, id int64) error
	PurgeChallenges(ctx context.Context, before time.Time) (int64, error)

	GetUserByLogin(ctx context.Context, loginID string) (*database.User, error)
	ListUsers(ctx context.Context) ([]*database.User, error)
	SaveUser(ctx context.Context, u *database.User) error
	DeleteUser(ctx context.Context, id int64) error

	ListAccessLogs(ctx context.Context, uploadRequestID string, limit, offset int) ([]*database.AccessLogDetail, error)
}
