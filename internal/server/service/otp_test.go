package service

import (
	"context"
	"regexp"
	"testing"
	"time"
)

func newTestOTP(t *testing.T) (*OTPEngine, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewOTPEngine(repo, 10*time.Minute), repo
}

func TestGenerateCodeFormat(t *testing.T) {
	engine, _ := newTestOTP(t)
	pattern := regexp.MustCompile(`^\d{6}$`)

	for i := 0; i < 50; i++ {
		code, err := engine.GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("code %q is not 6 zero-padded digits", code)
		}
	}
}

func TestConfirmBurnsOnSuccess(t *testing.T) {
	engine, _ := newTestOTP(t)
	ctx := context.Background()

	if _, err := engine.Issue(ctx, "tok", "carol@example.com", "123456"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	ok, err := engine.Confirm(ctx, "tok", "carol@example.com", "123456")
	if err != nil || !ok {
		t.Fatalf("first confirm = (%v, %v), want success", ok, err)
	}

	ok, err = engine.Confirm(ctx, "tok", "carol@example.com", "123456")
	if err != nil {
		t.Fatalf("second confirm errored: %v", err)
	}
	if ok {
		t.Fatal("a burned challenge confirmed again")
	}
}

func TestConfirmWrongCodeLeavesChallengeOpen(t *testing.T) {
	engine, _ := newTestOTP(t)
	ctx := context.Background()

	engine.Issue(ctx, "tok", "carol@example.com", "123456")

	ok, err := engine.Confirm(ctx, "tok", "carol@example.com", "654321")
	if err != nil || ok {
		t.Fatalf("wrong code confirm = (%v, %v), want clean failure", ok, err)
	}

	// The challenge survives a wrong guess; the right code still works.
	ok, err = engine.Confirm(ctx, "tok", "carol@example.com", "123456")
	if err != nil || !ok {
		t.Fatalf("retry with correct code = (%v, %v), want success", ok, err)
	}
}

func TestConfirmExpiredChallengeIsBurned(t *testing.T) {
	engine, _ := newTestOTP(t)
	ctx := context.Background()

	issued := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return issued }
	engine.Issue(ctx, "tok", "carol@example.com", "123456")

	// First attempt after the TTL fails and burns the challenge.
	engine.now = func() time.Time { return issued.Add(11 * time.Minute) }
	ok, err := engine.Confirm(ctx, "tok", "carol@example.com", "123456")
	if err != nil || ok {
		t.Fatalf("expired confirm = (%v, %v), want clean failure", ok, err)
	}

	// Even winding the clock back cannot revive it.
	engine.now = func() time.Time { return issued.Add(time.Minute) }
	ok, err = engine.Confirm(ctx, "tok", "carol@example.com", "123456")
	if err != nil || ok {
		t.Fatal("a burned expired challenge confirmed")
	}
}

func TestConfirmUsesNewestChallenge(t *testing.T) {
	engine, _ := newTestOTP(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }
	engine.Issue(ctx, "tok", "carol@example.com", "111111")
	engine.now = func() time.Time { return base.Add(time.Minute) }
	engine.Issue(ctx, "tok", "carol@example.com", "222222")

	// A re-request supersedes the earlier code.
	ok, err := engine.Confirm(ctx, "tok", "carol@example.com", "111111")
	if err != nil || ok {
		t.Fatalf("old code confirm = (%v, %v), want clean failure", ok, err)
	}
	ok, err = engine.Confirm(ctx, "tok", "carol@example.com", "222222")
	if err != nil || !ok {
		t.Fatalf("newest code confirm = (%v, %v), want success", ok, err)
	}
}

func TestConfirmNoChallenge(t *testing.T) {
	engine, _ := newTestOTP(t)

	ok, err := engine.Confirm(context.Background(), "tok", "nobody@example.com", "123456")
	if err != nil {
		t.Fatalf("Confirm errored: %v", err)
	}
	if ok {
		t.Fatal("confirmed without any issued challenge")
	}
}

func TestConfirmScopedToTokenAndEmail(t *testing.T) {
	engine, _ := newTestOTP(t)
	ctx := context.Background()

	engine.Issue(ctx, "tok-a", "carol@example.com", "123456")

	if ok, _ := engine.Confirm(ctx, "tok-b", "carol@example.com", "123456"); ok {
		t.Error("code issued for one token confirmed another")
	}
	if ok, _ := engine.Confirm(ctx, "tok-a", "dave@example.com", "123456"); ok {
		t.Error("code issued for one address confirmed another")
	}
}
