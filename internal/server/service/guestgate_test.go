package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"securesend/internal/server/database"
)

type fakeMailer struct {
	to      []string
	subject string
	body    string
	err     error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.subject = subject
	f.body = body
	return nil
}

func newTestGate(t *testing.T, env *testEnv) (*GuestGate, *fakeMailer) {
	t.Helper()
	mailer := &fakeMailer{}
	gate := NewGuestGate(env.repo, NewOTPEngine(env.repo, 10*time.Minute), mailer)
	return gate, mailer
}

func TestResolveUploadToken(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)
	req := env.createUploadRequest(t, 5, 10)

	a, err := gate.Resolve(context.Background(), req.UploadToken)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if a.Kind != TokenUpload {
		t.Errorf("kind = %q, want upload", a.Kind)
	}
	if a.UploadRequestID != req.ID {
		t.Errorf("owner = %q, want %q", a.UploadRequestID, req.ID)
	}
	if a.AuthType != database.AuthNone {
		t.Errorf("auth type = %q, want none", a.AuthType)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)

	if _, err := gate.Resolve(context.Background(), "no-such-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveUploadTokenDateExpiry(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)
	ctx := context.Background()

	now := time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }

	tests := []struct {
		name      string
		expiresAt *time.Time
		wantErr   error
	}{
		{"no expiry never expires", nil, nil},
		{"expires today is still valid", timePtr(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)), nil},
		{"expired yesterday", timePtr(time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC)), ErrExpired},
		{"expires tomorrow", timePtr(time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := env.life.CreateUploadRequest(ctx, "box", tt.expiresAt, 5, 10, "alice")
			if err != nil {
				t.Fatalf("CreateUploadRequest failed: %v", err)
			}
			_, err = gate.Resolve(ctx, req.UploadToken)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveDownloadTokenInstantExpiry(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)
	ctx := context.Background()
	req := env.createUploadRequest(t, 5, 10)

	now := time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }

	t.Run("nil expires_at never expires", func(t *testing.T) {
		days := 7
		dr, _ := env.life.CreateDownloadRequest(ctx, DownloadRequestParams{
			UploadRequestID: req.ID, ExpireDays: &days, MaxDownloads: 3, AuthType: database.AuthNone,
		})
		if _, err := gate.Resolve(ctx, dr.DownloadToken); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("started clock in the past expires", func(t *testing.T) {
		days := 7
		dr, _ := env.life.CreateDownloadRequest(ctx, DownloadRequestParams{
			UploadRequestID: req.ID, ExpireDays: &days, MaxDownloads: 3, AuthType: database.AuthNone,
		})
		past := now.Add(-time.Minute)
		env.repo.StartDownloadExpiry(ctx, dr.DownloadToken, past)

		if _, err := gate.Resolve(ctx, dr.DownloadToken); !errors.Is(err, ErrExpired) {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
	})
}

func TestStartClockRunsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)
	ctx := context.Background()
	req := env.createUploadRequest(t, 5, 10)

	days := 7
	dr, _ := env.life.CreateDownloadRequest(ctx, DownloadRequestParams{
		UploadRequestID: req.ID, ExpireDays: &days, MaxDownloads: 3, AuthType: database.AuthNone,
	})

	// expires_at is nil right after creation.
	row, _ := env.repo.GetDownloadRequest(ctx, dr.ID)
	if row.ExpiresAt != nil {
		t.Fatal("expires_at set at creation")
	}

	first := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return first }

	a, err := gate.Resolve(ctx, dr.DownloadToken)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := gate.StartClock(ctx, a); err != nil {
		t.Fatalf("StartClock failed: %v", err)
	}

	row, _ = env.repo.GetDownloadRequest(ctx, dr.ID)
	if row.ExpiresAt == nil {
		t.Fatal("expires_at still nil after first access")
	}
	want := first.Add(7 * 24 * time.Hour)
	if !row.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", row.ExpiresAt, want)
	}

	// A later access must not move the instant.
	gate.now = func() time.Time { return first.Add(48 * time.Hour) }
	a, _ = gate.Resolve(ctx, dr.DownloadToken)
	if err := gate.StartClock(ctx, a); err != nil {
		t.Fatalf("second StartClock failed: %v", err)
	}
	row, _ = env.repo.GetDownloadRequest(ctx, dr.ID)
	if !row.ExpiresAt.Equal(want) {
		t.Errorf("expires_at moved to %v on second access", row.ExpiresAt)
	}
}

func TestStartClockSkipsNoExpiry(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)
	ctx := context.Background()
	req := env.createUploadRequest(t, 5, 10)

	dr := env.createDownloadRequest(t, req.ID, 3) // no expire_days

	a, _ := gate.Resolve(ctx, dr.DownloadToken)
	if err := gate.StartClock(ctx, a); err != nil {
		t.Fatalf("StartClock failed: %v", err)
	}
	row, _ := env.repo.GetDownloadRequest(ctx, dr.ID)
	if row.ExpiresAt != nil {
		t.Error("expires_at set for a request without expire_days")
	}
}

func TestNeedsAuth(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)

	authenticated := func(tokens ...string) func(string) bool {
		set := map[string]bool{}
		for _, t := range tokens {
			set[t] = true
		}
		return func(tok string) bool { return set[tok] }
	}

	tests := []struct {
		name string
		auth *GuestAuth
		have func(string) bool
		want bool
	}{
		{"none never needs auth", &GuestAuth{Token: "t", AuthType: database.AuthNone}, authenticated(), false},
		{"pass needs auth", &GuestAuth{Token: "t", AuthType: database.AuthPass}, authenticated(), true},
		{"mail needs auth", &GuestAuth{Token: "t", AuthType: database.AuthMail}, authenticated(), true},
		{"session pass-through", &GuestAuth{Token: "t", AuthType: database.AuthPass}, authenticated("t"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.NeedsAuth(tt.auth, tt.have); got != tt.want {
				t.Errorf("NeedsAuth = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := newTestGate(t, env)

	hash, _ := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.DefaultCost)
	h := string(hash)
	a := &GuestAuth{AuthType: database.AuthPass, PasswordHash: &h}

	if err := gate.VerifyPassword(a, "open sesame"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := gate.VerifyPassword(a, "wrong"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("wrong password: got %v, want ErrAuthFailed", err)
	}
	if err := gate.VerifyPassword(&GuestAuth{}, "anything"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("missing hash: got %v, want ErrAuthFailed", err)
	}
}

func TestOTPFlow(t *testing.T) {
	env := newTestEnv(t)
	gate, mailer := newTestGate(t, env)
	ctx := context.Background()
	req := env.createUploadRequest(t, 5, 10)

	dr, err := env.life.CreateDownloadRequest(ctx, DownloadRequestParams{
		UploadRequestID: req.ID,
		MaxDownloads:    3,
		AuthType:        database.AuthMail,
		AuthEmail:       "carol@example.com, dave@example.com",
	})
	if err != nil {
		t.Fatalf("CreateDownloadRequest failed: %v", err)
	}

	a, err := gate.Resolve(ctx, dr.DownloadToken)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(a.Emails) != 2 {
		t.Fatalf("parsed %d addresses, want 2", len(a.Emails))
	}

	t.Run("unknown address rejected", func(t *testing.T) {
		if err := gate.RequestOTP(ctx, a, "mallory@example.com"); !errors.Is(err, ErrUnknownEmail) {
			t.Errorf("got %v, want ErrUnknownEmail", err)
		}
		if len(mailer.to) != 0 {
			t.Error("mail sent to unregistered address")
		}
	})

	t.Run("registered address gets a code that confirms once", func(t *testing.T) {
		if err := gate.RequestOTP(ctx, a, "carol@example.com"); err != nil {
			t.Fatalf("RequestOTP failed: %v", err)
		}
		if len(mailer.to) != 1 || mailer.to[0] != "carol@example.com" {
			t.Fatalf("mail went to %v", mailer.to)
		}

		code := extractCode(t, mailer.body)
		if err := gate.ConfirmOTP(ctx, a, "carol@example.com", code); err != nil {
			t.Fatalf("ConfirmOTP failed: %v", err)
		}

		// Burned: the same code can never confirm again.
		if err := gate.ConfirmOTP(ctx, a, "carol@example.com", code); !errors.Is(err, ErrAuthFailed) {
			t.Errorf("second confirm: got %v, want ErrAuthFailed", err)
		}
	})

	t.Run("wrong code fails", func(t *testing.T) {
		if err := gate.RequestOTP(ctx, a, "dave@example.com"); err != nil {
			t.Fatalf("RequestOTP failed: %v", err)
		}
		if err := gate.ConfirmOTP(ctx, a, "dave@example.com", "000000x"); !errors.Is(err, ErrAuthFailed) {
			t.Errorf("got %v, want ErrAuthFailed", err)
		}
	})
}

var codePattern = regexp.MustCompile(`Passcode: (\d{6})`)

func extractCode(t *testing.T, body string) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no passcode in mail body:\n%s", body)
	}
	return m[1]
}

func TestParseEmails(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"carol@example.com", 1},
		{"carol@example.com, dave@example.co.jp", 2},
		{"carol@example.com\ndave@example.com; erin@example.com", 3},
		{"no addresses here", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseEmails(tt.input); len(got) != tt.want {
			t.Errorf("ParseEmails(%q) = %v, want %d addresses", tt.input, got, tt.want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"carol.smith@example.com", "car******th@example.com"},
		{"bob@example.com", "***@example.com"},
		{"not-an-email", "not-an-email"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskEmail(tt.input); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }
