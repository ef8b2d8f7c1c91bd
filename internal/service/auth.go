package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/authgate/authgate-go/internal/crypto"
	"github.com/authgate/authgate-go/internal/model"
	"github.com/authgate/authgate-go/internal/repository"
	"github.com/authgate/authgate-go/internal/session"
)

var (
	ErrValidation         = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountUnavailable hides whether a signup collided on email or on
	// anything else, so callers cannot probe for registered accounts.
	ErrAccountUnavailable = errors.New("unable to create an account with these details")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// ValidationError carries the user-facing message of a failed field rule.
type ValidationError struct {
	Message string
	Fields  validation.Errors
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AuthResult is returned by the operations that start a session.
type AuthResult struct {
	User  *model.UserResponse
	Token session.Token
}

// AuthService handles authentication business logic.
type AuthService struct {
	repo   repository.UserRepository
	hasher *crypto.Hasher
	issuer *session.Issuer

	dummyHash string
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithHashParams overrides the Argon2id parameters for new password hashes.
func WithHashParams(p crypto.HashParams) Option {
	return func(s *AuthService) {
		s.hasher = crypto.NewHasher(p)
	}
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo repository.UserRepository, issuer *session.Issuer, opts ...Option) (*AuthService, error) {
	s := &AuthService{
		repo:   repo,
		hasher: crypto.NewHasher(crypto.DefaultHashParams()),
		issuer: issuer,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Compared against when the email is unknown so that a miss costs as
	// much as a wrong password.
	dummy, err := s.hasher.Hash("authgate-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Signup creates a new user account and issues a session for it.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return AuthResult{}, newValidationError(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return AuthResult{}, ErrAccountUnavailable
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return s.startSession(user)
}

// Login verifies credentials and issues a session.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (AuthResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return AuthResult{}, newValidationError(err)
	}

	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = s.hasher.Verify(req.Password, s.dummyHash)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}

	match, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.startSession(user)
}

// CurrentUser resolves a verified session identity to its user. A user that
// no longer exists is reported as ErrUnauthenticated.
func (s *AuthService) CurrentUser(ctx context.Context, id session.Identity) (*model.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	return model.NewUserResponse(user), nil
}

func (s *AuthService) startSession(user *model.User) (AuthResult, error) {
	tok, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue session: %w", err)
	}

	return AuthResult{User: model.NewUserResponse(user), Token: tok}, nil
}

func newValidationError(err error) error {
	var fields validation.Errors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	first := keys[0]
	msg := fields[first].Error()
	if !strings.HasPrefix(msg, first) {
		msg = first + ": " + msg
	}

	return &ValidationError{Message: msg, Fields: fields}
}
