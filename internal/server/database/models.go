package database

import "time"

// User is an internal (staff) account. Externally provisioned accounts carry
// the name of the identity provider in External and have no local password.
type User struct {
	ID           int64
	LoginID      string
	PasswordHash *string // nil for externally provisioned users
	Name         string
	Mail         string
	External     string
	Admin        bool
	Disabled     bool
	CreatedAt    time.Time
}

// UploadRequest is a drop box that guests deposit files into via its
// upload token. ExpiresAt is a calendar date; nil means no expiration.
type UploadRequest struct {
	ID           string
	UploadToken  string
	Title        string
	ExpiresAt    *time.Time
	MaxFiles     int
	MaxTotalSize int64 // MiB
	CreatedBy    string
	CreatedAt    time.Time
}

// File is one deposited file. FileID doubles as the on-disk storage name,
// distinct from the user-visible OriginalName.
type File struct {
	FileID          string
	UploadRequestID string
	OriginalName    string
	FileSize        int64 // plaintext bytes, recorded before encryption
	UploadedAt      time.Time
}

// Guest authentication methods for a download request.
const (
	AuthNone = "none"
	AuthPass = "pass"
	AuthMail = "mail"
)

// DownloadRequest is a retrieval link for the files of one upload request.
// ExpireDays is a duration; ExpiresAt stays nil until the first successful
// guest access starts the clock.
type DownloadRequest struct {
	ID              int64
	UploadRequestID string
	DownloadToken   string
	ExpireDays      *int
	ExpiresAt       *time.Time
	MaxDownloads    int
	AuthType        string
	AuthPassword    *string // bcrypt hash, set iff AuthType == pass
	AuthEmail       *string // one or more addresses, set iff AuthType == mail
	CreatedAt       time.Time
}

// OTPChallenge is a single-use emailed passcode bound to a guest token.
// CodeHash is a bcrypt hash; the raw code is never stored.
type OTPChallenge struct {
	ID        int64
	Token     string
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Verified  bool
	CreatedAt time.Time
}

// AccessLog is one audit-trail entry.
type AccessLog struct {
	ID                int64
	AccessedAt        time.Time
	Actor             *string
	Action            *string
	UploadRequestID   *string
	DownloadRequestID *int64
	FileID            *string
	Result            string
	HTTPStatus        int
	IPAddress         string
	UserAgent         string
}

// AccessLogDetail is an AccessLog joined with display names of the records
// it refers to.
type AccessLogDetail struct {
	AccessLog
	UploadRequestTitle  *string
	DownloadRequestAuth *string
	FileName            *string
}

// UploadRequestSummary is an UploadRequest with derived listing columns.
type UploadRequestSummary struct {
	UploadRequest
	FileCount        int
	DownloadURLCount int
}
