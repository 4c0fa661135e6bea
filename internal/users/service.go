package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"backlog/internal/auth"
)

var (
	// ErrInvalidEmail indicates the supplied email is unusable.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates sign-in failed. Unknown email and
	// wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
}

// IDProvider issues account identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service manages credential accounts.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider}, nil
}

// SignUp registers a new account for the email and password.
func (s *Service) SignUp(ctx context.Context, email, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || !strings.Contains(normalized, "@") {
		return Account{}, ErrInvalidEmail
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	var existing Account
	err = s.db.WithContext(ctx).Where("email = ?", normalized).Take(&existing).Error
	if err == nil {
		return Account{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Account{}, err
	}

	account := Account{
		ID:           id,
		Email:        normalized,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return Account{}, err
	}
	return account, nil
}

// SignIn verifies the credentials and returns the account.
func (s *Service) SignIn(ctx context.Context, email, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}

	if !auth.ComparePassword(account.PasswordHash, password) {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}
