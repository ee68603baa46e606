package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"securesend/internal/server/database"
)

// OTPCodeLength is the number of digits in a generated passcode.
const OTPCodeLength = 6

// OTPEngine issues and confirms single-use emailed passcodes. Codes are
// stored bcrypt-hashed; a challenge is burned on its first confirmation
// attempt after expiry as well as on success.
type OTPEngine struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewOTPEngine creates an engine with the given challenge lifetime.
func NewOTPEngine(repo Repository, ttl time.Duration) *OTPEngine {
	return &OTPEngine{repo: repo, ttl: ttl, now: time.Now}
}

// TTL returns the challenge lifetime.
func (e *OTPEngine) TTL() time.Duration {
	return e.ttl
}

// GenerateCode produces a fixed-length zero-padded numeric passcode from a
// uniform random source.
func (e *OTPEngine) GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPCodeLength, n), nil
}

// Issue stores a hashed challenge bound to a guest token and mail address,
// and returns its ID.
func (e *OTPEngine) Issue(ctx context.Context, token, email, rawCode string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(rawCode), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash otp code: %w", err)
	}

	now := e.now().UTC()
	challenge := &database.OTPChallenge{
		Token:     token,
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(e.ttl),
		CreatedAt: now,
	}
	if err := e.repo.CreateOTPChallenge(ctx, challenge); err != nil {
		return 0, err
	}
	return challenge.ID, nil
}

// Confirm checks a submitted code against the most recent open challenge for
// the token and address. An expired challenge is burned so it can never
// authenticate, even with the correct code; a successful match is burned too.
// A wrong code leaves the challenge open for another attempt within the TTL.
func (e *OTPEngine) Confirm(ctx context.Context, token, email, rawCode string) (bool, error) {
	challenge, err := e.repo.LatestUnverifiedChallenge(ctx, token, email)
	if err != nil {
		return false, err
	}
	if challenge == nil {
		return false, nil
	}

	if e.now().After(challenge.ExpiresAt) {
		if err := e.repo.MarkChallengeVerified(ctx, challenge.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(rawCode)) != nil {
		return false, nil
	}

	if err := e.repo.MarkChallengeVerified(ctx, challenge.ID); err != nil {
		return false, err
	}
	return true, nil
}
