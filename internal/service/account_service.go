package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"skillbadge/internal/domain"
	"skillbadge/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRegistrationPassword indicates the registration secret is incorrect.
	ErrInvalidRegistrationPassword = errors.New("invalid registration password")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// AccountService registers and authenticates ledger logins. Every account is bound
// to a freshly derived principal; the first account becomes the ledger admin.
type AccountService interface {
	Register(ctx context.Context, username, password, providedSecret string) (*domain.Account, error)
	Authenticate(ctx context.Context, username, password string) (*domain.Account, error)
}

type accountService struct {
	accounts       repository.AccountRepository
	registerSecret string
}

func NewAccountService(accounts repository.AccountRepository, registerSecret string) AccountService {
	return &accountService{
		accounts:       accounts,
		registerSecret: strings.TrimSpace(registerSecret),
	}
}

func (s *accountService) Register(ctx context.Context, username, password, providedSecret string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	providedSecret = strings.TrimSpace(providedSecret)
	password = strings.TrimSpace(password)

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if s.registerSecret != "" && subtle.ConstantTimeCompare([]byte(providedSecret), []byte(s.registerSecret)) != 1 {
		return nil, ErrInvalidRegistrationPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	seed := uuid.New()
	account := &domain.Account{
		Username:     username,
		Principal:    domain.NewSelfAuthenticatingPrincipal(seed[:]),
		PasswordHash: string(hash),
	}
	_, err = s.accounts.CreateWithRole(ctx, account, func(existing int) domain.UserRole {
		if existing == 0 {
			return domain.RoleAdmin
		}
		return domain.RoleUser
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	return sanitizeAccount(account), nil
}

func (s *accountService) Authenticate(ctx context.Context, username, password string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeAccount(account), nil
}

func sanitizeAccount(account *domain.Account) *domain.Account {
	if account == nil {
		return nil
	}
	return &domain.Account{
		ID:        account.ID,
		Username:  account.Username,
		Principal: account.Principal,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
}
