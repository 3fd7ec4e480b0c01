package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"snapfeed/internal/domain"
)

// AuthService handles registration, login, and bearer token operations.
// Tokens are signed JWTs; a token is only honored while it is present in
// the owning user's active-session list, so logout actually revokes it.
type AuthService struct {
	users      domain.UserRepository
	tokens     domain.TokenRepository
	jwtSecret  []byte
	bcryptCost int
	tokenTTL   time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(users domain.UserRepository, tokens domain.TokenRepository, jwtSecret string, bcryptCost int, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcryptCost,
		tokenTTL:   tokenTTL,
	}
}

// Register creates a new user account after validating inputs and returns
// the user together with a freshly issued session token.
func (s *AuthService) Register(ctx context.Context, name, email, password string, age int) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}

	if err := validatePassword(password); err != nil {
		return nil, "", err
	}

	if age < 0 {
		return nil, "", fmt.Errorf("%w: age must not be negative", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Age:          age,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Login verifies credentials and issues a new session token. It fails with
// ErrUnauthorized without revealing whether the email or the password was
// wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", domain.ErrUnauthorized
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", domain.ErrUnauthorized
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// IssueToken signs a JWT for the user and records it in the user's
// active-session list before returning it.
func (s *AuthService) IssueToken(ctx context.Context, userID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.tokens.Add(ctx, userID, token); err != nil {
		return "", fmt.Errorf("record token: %w", err)
	}

	return token, nil
}

// Authenticate resolves a bearer token to its user. It fails with
// ErrUnauthorized on a bad signature, an expired token, or a token that
// has been revoked from the user's session list.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	userID, err := s.validateToken(tokenString)
	if err != nil {
		return nil, err
	}

	active, err := s.tokens.Exists(ctx, userID, tokenString)
	if err != nil {
		return nil, fmt.Errorf("check token: %w", err)
	}
	if !active {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// Logout removes exactly the presented token from the user's session list.
func (s *AuthService) Logout(ctx context.Context, user *domain.User, token string) error {
	if err := s.tokens.Remove(ctx, user.ID, token); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// LogoutAll clears the user's entire session list.
func (s *AuthService) LogoutAll(ctx context.Context, user *domain.User) error {
	if err := s.tokens.RemoveAll(ctx, user.ID); err != nil {
		return fmt.Errorf("remove tokens: %w", err)
	}
	return nil
}

func (s *AuthService) validateToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, domain.ErrUnauthorized
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	return userID, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is invalid", domain.ErrInvalidInput)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < 7 {
		return fmt.Errorf("%w: password must be at least 7 characters", domain.ErrInvalidInput)
	}
	if strings.Contains(strings.ToLower(password), "password") {
		return fmt.Errorf("%w: password must not contain \"password\"", domain.ErrInvalidInput)
	}
	return nil
}
