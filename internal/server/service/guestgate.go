package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"securesend/internal/server/database"
	"securesend/internal/server/mail"
)

// TokenKind distinguishes the two guest token namespaces.
type TokenKind string

const (
	TokenUpload   TokenKind = "upload"
	TokenDownload TokenKind = "download"
)

// GuestAuth is the result of resolving a guest token: which kind of request
// it names, who owns it, and how the guest must authenticate.
type GuestAuth struct {
	Kind              TokenKind
	Token             string
	UploadRequestID   string
	DownloadRequestID int64 // zero for upload tokens
	AuthType          string
	PasswordHash      *string
	Emails            []string
	ExpireDays        *int
	ExpiresAt         *time.Time
}

// GuestGate resolves guest tokens, enforces their expiration windows, and
// runs the configured authentication method.
type GuestGate struct {
	repo   Repository
	otp    *OTPEngine
	mailer mail.Mailer
	now    func() time.Time
}

// NewGuestGate creates a gate over the given repository, OTP engine, and
// mail capability.
func NewGuestGate(repo Repository, otp *OTPEngine, mailer mail.Mailer) *GuestGate {
	return &GuestGate{repo: repo, otp: otp, mailer: mailer, now: time.Now}
}

// Resolve looks a token up in both namespaces. Tokens are drawn from one
// collision-resistant random space, so a hit in either namespace is
// unambiguous. Unknown tokens yield ErrNotFound; known but expired tokens
// yield ErrExpired.
//
// The two kinds expire differently: an upload token's expiry is a calendar
// date compared against today, a download token's is an instant (or nil,
// meaning its clock has not started).
func (g *GuestGate) Resolve(ctx context.Context, token string) (*GuestAuth, error) {
	ur, err := g.repo.GetUploadRequestByToken(ctx, token)
	if err == nil {
		if UploadRequestExpired(ur, g.now()) {
			return nil, ErrExpired
		}
		return &GuestAuth{
			Kind:            TokenUpload,
			Token:           token,
			UploadRequestID: ur.ID,
			AuthType:        database.AuthNone,
			ExpiresAt:       ur.ExpiresAt,
		}, nil
	}
	if !errors.Is(err, database.ErrUploadRequestNotFound) {
		return nil, err
	}

	dr, err := g.repo.GetDownloadRequestByToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrDownloadRequestNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if dr.ExpiresAt != nil && g.now().After(*dr.ExpiresAt) {
		return nil, ErrExpired
	}

	return &GuestAuth{
		Kind:              TokenDownload,
		Token:             token,
		UploadRequestID:   dr.UploadRequestID,
		DownloadRequestID: dr.ID,
		AuthType:          dr.AuthType,
		PasswordHash:      dr.AuthPassword,
		Emails:            ParseEmails(deref(dr.AuthEmail)),
		ExpireDays:        dr.ExpireDays,
		ExpiresAt:         dr.ExpiresAt,
	}, nil
}

// NeedsAuth reports whether the guest still has to pass the auth gate for
// this token, given the set of tokens the session already authenticated.
func (g *GuestGate) NeedsAuth(a *GuestAuth, authenticated func(token string) bool) bool {
	if a.AuthType != database.AuthPass && a.AuthType != database.AuthMail {
		return false
	}
	return !authenticated(a.Token)
}

// VerifyPassword checks a static guest password against the stored hash.
func (g *GuestGate) VerifyPassword(a *GuestAuth, password string) error {
	if a.PasswordHash == nil {
		return ErrAuthFailed
	}
	if bcrypt.CompareHashAndPassword([]byte(*a.PasswordHash), []byte(password)) != nil {
		return ErrAuthFailed
	}
	return nil
}

// RequestOTP issues a one-time passcode for an allowed mail address and
// dispatches it. The address must be one of those registered on the download
// request. No lock is held across the (possibly slow) mail submission.
func (g *GuestGate) RequestOTP(ctx context.Context, a *GuestAuth, email string) error {
	if !containsEmail(a.Emails, email) {
		return ErrUnknownEmail
	}

	code, err := g.otp.GenerateCode()
	if err != nil {
		return err
	}
	if _, err := g.otp.Issue(ctx, a.Token, email, code); err != nil {
		return err
	}

	ttlMinutes := int(g.otp.TTL().Minutes())
	return g.mailer.Send(ctx, email, mail.OTPSubject, mail.OTPBody(code, ttlMinutes))
}

// ConfirmOTP verifies a submitted passcode.
func (g *GuestGate) ConfirmOTP(ctx context.Context, a *GuestAuth, email, code string) error {
	ok, err := g.otp.Confirm(ctx, a.Token, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthFailed
	}
	return nil
}

// StartClock performs the lazy expiry computation of a download request:
// on the first successful gate-pass, expires_at transitions from nil to
// now + expire_days. The repository's still-null guard makes the transition
// happen exactly once; upload tokens and never-expiring download requests
// are untouched.
func (g *GuestGate) StartClock(ctx context.Context, a *GuestAuth) error {
	if a.Kind != TokenDownload || a.ExpireDays == nil || a.ExpiresAt != nil {
		return nil
	}
	expiresAt := g.now().UTC().Add(time.Duration(*a.ExpireDays) * 24 * time.Hour)
	return g.repo.StartDownloadExpiry(ctx, a.Token, expiresAt)
}

// UploadRequestExpired applies the upload-token expiration rule: the expiry
// is a date, and the token is expired only once that date is in the past —
// time of day is irrelevant. No date means no expiration.
func UploadRequestExpired(ur *database.UploadRequest, now time.Time) bool {
	if ur.ExpiresAt == nil {
		return false
	}
	ey, em, ed := ur.ExpiresAt.Date()
	ny, nm, nd := now.Date()
	expiry := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return expiry.Before(today)
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// ParseEmails extracts every mail address from a free-form string (the
// auth_email field holds one or more addresses in no particular format).
func ParseEmails(text string) []string {
	return emailPattern.FindAllString(text, -1)
}

// MaskEmail hides the middle of an address's local part for display,
// e.g. "firstname.lastname@example.com" -> "fir*************me@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || email == "" {
		return email
	}
	const head, tail = 3, 2
	if len(local) <= head+tail {
		return strings.Repeat("*", len(local)) + "@" + domain
	}
	return local[:head] + strings.Repeat("*", len(local)-head-tail) + local[len(local)-tail:] + "@" + domain
}

func containsEmail(allowed []string, email string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
