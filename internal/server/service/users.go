package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"securesend/internal/server/database"
)

// Identity is the result of a corporate directory lookup.
type Identity struct {
	LoginID string
	Name    string
	Mail    string
}

// IdentityProvider is the external SSO capability: it validates credentials
// against the corporate directory and returns the matched identity, or nil
// when the credentials match nobody.
type IdentityProvider interface {
	Name() string
	Lookup(ctx context.Context, username, password string) (*Identity, error)
}

// UserService authenticates internal users and manages their accounts.
// A login first tries the local user store; when that fails and an identity
// provider is configured, a directory match provisions (or refreshes) a
// local row marked with the provider's name.
type UserService struct {
	repo Repository
	idp  IdentityProvider
	now  func() time.Time
}

// NewUserService creates a user service. idp may be nil when no external
// directory is configured.
func NewUserService(repo Repository, idp IdentityProvider) *UserService {
	return &UserService{repo: repo, idp: idp, now: time.Now}
}

// Login validates credentials and returns the account. Disabled accounts
// never log in, local or external.
func (s *UserService) Login(ctx context.Context, loginID, password string) (*database.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, loginID)
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		return nil, err
	}

	if u != nil {
		if u.Disabled {
			return nil, ErrAuthFailed
		}
		if u.External == "" && u.PasswordHash != nil &&
			bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)) == nil {
			return u, nil
		}
	}

	if s.idp == nil {
		return nil, ErrAuthFailed
	}

	identity, err := s.idp.Lookup(ctx, loginID, password)
	if err != nil {
		// Directory trouble reads as a failed login, not an outage page.
		slog.Error("identity provider lookup failed", "login_id", loginID, "error", err)
		return nil, ErrAuthFailed
	}
	if identity == nil {
		return nil, ErrAuthFailed
	}

	provisioned := &database.User{
		LoginID:   identity.LoginID,
		Name:      identity.Name,
		Mail:      identity.Mail,
		External:  s.idp.Name(),
		CreatedAt: s.now().UTC(),
	}
	if u != nil {
		provisioned.Admin = u.Admin
		provisioned.Disabled = u.Disabled
	}
	if err := s.repo.SaveUser(ctx, provisioned); err != nil {
		return nil, err
	}
	return s.repo.GetUserByLogin(ctx, identity.LoginID)
}

// SaveUser creates or updates a local account. A non-empty password is
// hashed; an empty one leaves any existing hash in place.
func (s *UserService) SaveUser(ctx context.Context, loginID, name, mail, password string, admin, disabled bool) error {
	if loginID == "" {
		return fmt.Errorf("%w: login_id is required", ErrValidation)
	}

	u := &database.User{
		LoginID:   loginID,
		Name:      name,
		Mail:      mail,
		Admin:     admin,
		Disabled:  disabled,
		CreatedAt: s.now().UTC(),
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		u.PasswordHash = &h
	}
	return s.repo.SaveUser(ctx, u)
}

// ListUsers returns all accounts.
func (s *UserService) ListUsers(ctx context.Context) ([]*database.User, error) {
	return s.repo.ListUsers(ctx)
}

// DeleteUser removes an account.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
