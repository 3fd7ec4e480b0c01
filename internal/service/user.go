package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"snapfeed/internal/domain"
)

// allowedProfileFields is the patch allow-list for profile updates. A patch
// containing any other key fails as a whole; there is no partial apply.
var allowedProfileFields = map[string]bool{
	"name":     true,
	"age":      true,
	"email":    true,
	"password": true,
}

// UserService handles profile reads and mutations.
type UserService struct {
	users      domain.UserRepository
	bcryptCost int
}

// NewUserService creates a new UserService.
func NewUserService(users domain.UserRepository, bcryptCost int) *UserService {
	return &UserService{users: users, bcryptCost: bcryptCost}
}

// UpdateProfile applies a decoded JSON patch to the user. Keys outside the
// allow-list fail the whole operation with ErrInvalidField before any value
// is validated or written. An empty patch is a no-op and returns the user
// unchanged.
func (s *UserService) UpdateProfile(ctx context.Context, user *domain.User, patch map[string]any) (*domain.User, error) {
	if len(patch) == 0 {
		return user, nil
	}

	for key := range patch {
		if !allowedProfileFields[key] {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidField, key)
		}
	}

	// Work on a copy so a validation failure leaves the caller's user intact.
	updated := *user

	if v, ok := patch["name"]; ok {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: name must be a string", domain.ErrInvalidInput)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
		}
		updated.Name = name
	}

	if v, ok := patch["email"]; ok {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: email must be a string", domain.ErrInvalidInput)
		}
		email, err := normalizeEmail(raw)
		if err != nil {
			return nil, err
		}
		updated.Email = email
	}

	if v, ok := patch["age"]; ok {
		// JSON numbers decode as float64.
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: age must be an integer", domain.ErrInvalidInput)
		}
		if f < 0 {
			return nil, fmt.Errorf("%w: age must not be negative", domain.ErrInvalidInput)
		}
		updated.Age = int(f)
	}

	if v, ok := patch["password"]; ok {
		password, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: password must be a string", domain.ErrInvalidInput)
		}
		if err := validatePassword(password); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = string(hash)
	}

	if err := s.users.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	*user = updated
	return user, nil
}

// SetAvatar stores processed avatar bytes on the user.
func (s *UserService) SetAvatar(ctx context.Context, user *domain.User, data []byte) error {
	if err := s.users.SetAvatar(ctx, user.ID, data); err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	user.Avatar = data
	return nil
}

// ClearAvatar removes the user's avatar.
func (s *UserService) ClearAvatar(ctx context.Context, user *domain.User) error {
	if err := s.users.ClearAvatar(ctx, user.ID); err != nil {
		return fmt.Errorf("clear avatar: %w", err)
	}
	user.Avatar = nil
	return nil
}

// GetAvatar returns the avatar bytes for any user by id. ErrNotFound covers
// both a missing user and a user without an avatar.
func (s *UserService) GetAvatar(ctx context.Context, userID int64) ([]byte, error) {
	return s.users.GetAvatar(ctx, userID)
}

// LookupByEmail finds a user by their normalized email address.
func (s *UserService) LookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return s.users.GetByEmail(ctx, email)
}

// Delete removes the account. Session tokens and every post the user
// created are deleted with it.
func (s *UserService) Delete(ctx context.Context, user *domain.User) error {
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
