package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CreateOTPChallenge inserts a new challenge and fills in its generated ID.
func (r *Repository) CreateOTPChallenge(ctx context.Context, c *OTPChallenge) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO otp_challenges (token, email, code_hash, expires_at, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		c.Token,
		c.Email,
		c.CodeHash,
		c.ExpiresAt,
		c.Verified,
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}
	return nil
}

// LatestUnverifiedChallenge returns the most recent unverified challenge for
// a token and email, or nil when none exists.
func (r *Repository) LatestUnverifiedChallenge(ctx context.Context, token, email string) (*OTPChallenge, error) {
	c := &OTPChallenge{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, token, email, code_hash, expires_at, verified, created_at
		FROM otp_challenges
		WHERE token = $1 AND email = $2 AND verified = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, token, email).Scan(
		&c.ID,
		&c.Token,
		&c.Email,
		&c.CodeHash,
		&c.ExpiresAt,
		&c.Verified,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no open challenge (not an error)
		}
		return nil, fmt.Errorf("failed to get otp challenge: %w", err)
	}
	return c, nil
}

// PurgeChallenges removes challenges whose expiry instant is before the given
// cutoff, whether or not they were ever verified. Returns the number of rows
// removed.
func (r *Repository) PurgeChallenges(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		"DELETE FROM otp_challenges WHERE expires_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge otp challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkChallengeVerified burns a challenge so it can never authenticate again.
func (r *Repository) MarkChallengeVerified(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx,
		"UPDATE otp_challenges SET verified = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to mark otp challenge verified: %w", err)
	}
	return nil
}
