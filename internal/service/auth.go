package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/ribbit/internal/auth"
	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/models"
	"example.com/ribbit/internal/store"
)

const (
	msgBadCredentials = "Please enter a correct username and password. Note that both fields may be case-sensitive."
	msgUsernameTaken  = "A user with that username already exists."
)

// Signup creates the user and its profile and opens a session for it.
// Invalid input is reported as a *forms.ValidationError.
func (s *Service) Signup(ctx context.Context, f forms.SignupForm) (*models.User, *auth.Session, error) {
	if verr := forms.Validate(f); verr != nil {
		return nil, nil, verr
	}

	hash, err := auth.HashPassword(f.Password1)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     f.Username,
		Email:        f.Email,
		PasswordHash: hash,
	}
	if _, err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, nil, forms.NewFieldError("username", msgUsernameTaken)
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.jwt.Generate(user.ID)
	if err != nil {
		return nil, nil, err
	}

	logg.Info("service/auth", "User signed up (username anonymized)")
	return user, sess, nil
}

// Login checks the credentials and opens a session.
func (s *Service) Login(ctx context.Context, f forms.LoginForm) (*models.User, *auth.Session, error) {
	if verr := forms.Validate(f); verr != nil {
		return nil, nil, verr
	}

	user, err := s.store.GetUserByUsername(ctx, f.Username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, forms.NewNonFieldError(msgBadCredentials)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, f.Password) {
		return nil, nil, forms.NewNonFieldError(msgBadCredentials)
	}

	// Accounts created before profiles existed get theirs here.
	if _, err := s.store.GetOrCreateProfile(ctx, user.ID); err != nil {
		return nil, nil, fmt.Errorf("ensure profile: %w", err)
	}

	sess, err := s.jwt.Generate(user.ID)
	if err != nil {
		return nil, nil, err
	}

	logg.Info("service/auth", "User logged in (user_id="+user.ID.String()+")")
	return user, sess, nil
}

// Logout revokes the session token until it would have expired. Missing,
// malformed or expired tokens need no revocation.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.cache.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	logg.Info("service/auth", "Session revoked")
	return nil
}

// Authenticate resolves the user behind a session token. It returns
// ErrUnauthenticated for anything other than a live session of an existing user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	revoked, err := s.cache.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if revoked {
		return nil, ErrUnauthenticated
	}

	userID, err := auth.UserID(claims)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return user, nil
}
