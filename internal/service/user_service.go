package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"stock-tracker/internal/domain"
	"stock-tracker/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameTaken is returned when registering with an existing username.
	ErrUsernameTaken = fmt.Errorf("username %w", repository.ErrConflict)
	// ErrEmailTaken is returned when registering with an already registered email.
	ErrEmailTaken = fmt.Errorf("email %w", repository.ErrConflict)
	// ErrInvalidRegistration is returned when a registration field is missing.
	ErrInvalidRegistration = errors.New("invalid registration")
)

// UserService describes user lifecycle operations.
type UserService interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

type userService struct {
	users    repository.UserRepository
	hashCost int
}

// NewUserService returns a UserService hashing passwords with bcrypt at the given cost.
// A cost outside bcrypt's accepted range falls back to bcrypt.DefaultCost.
func NewUserService(users repository.UserRepository, hashCost int) UserService {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = bcrypt.DefaultCost
	}
	return &userService{
		users:    users,
		hashCost: hashCost,
	}
}

func (s *userService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidRegistration)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRegistration)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidRegistration)
	}

	if taken, err := s.exists(ctx, s.users.GetByUsername, username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if taken, err := s.exists(ctx, s.users.GetByEmail, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.conflictCause(ctx, username)
		}
		return nil, err
	}

	return sanitizeUser(user), nil
}

// conflictCause resolves a uniqueness violation raised after the pre-checks
// passed, i.e. a concurrent registration won the race. Only username and
// email are unique, so if the username is not taken now the email is.
func (s *userService) conflictCause(ctx context.Context, username string) error {
	taken, err := s.exists(ctx, s.users.GetByUsername, username)
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) exists(ctx context.Context, lookup func(context.Context, string) (*domain.User, error), key string) (bool, error) {
	_, err := lookup(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
