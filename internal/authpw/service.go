// Package authpw checks username/password sign-ins against the accounts in
// the secrets file and, when a database is configured, self-registered
// accounts.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"grammardesk/internal/config"
	"grammardesk/internal/rbac"
	"grammardesk/internal/store"
)

var (
	ErrCredentialsRequired  = errors.New("username and password are required")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrRegistrationDisabled = errors.New("registration is not available")
	ErrNotPreauthorized     = errors.New("email is not preauthorized")
	ErrAlreadyRegistered    = errors.New("username or email already registered")
	ErrInvalidRegistration  = errors.New("invalid registration")
)

// RegisteredRole is granted to self-registered accounts.
const RegisteredRole = rbac.RoleReviewer

const minPasswordLength = 8

// Status is the outcome of a sign-in attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPending Status = "pending"
)

type Identity struct {
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Role     rbac.Role `json:"role"`
}

type Result struct {
	Status   Status
	Identity Identity
}

// AccountStore holds self-registered accounts.
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (store.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (store.Account, error)
	CreateAccount(ctx context.Context, account store.Account) error
}

type Service struct {
	users         map[string]config.User
	preauthorized map[string]bool
	accounts      AccountStore
}

// NewService builds the service. accounts may be nil, which disables
// registration.
func NewService(users map[string]config.User, preauthorized []string, accounts AccountStore) *Service {
	allowed := make(map[string]bool, len(preauthorized))
	for _, email := range preauthorized {
		allowed[strings.ToLower(strings.TrimSpace(email))] = true
	}
	if users == nil {
		users = map[string]config.User{}
	}
	return &Service{users: users, preauthorized: allowed, accounts: accounts}
}

// Login checks one sign-in attempt. Empty input yields StatusPending with
// ErrCredentialsRequired; a wrong username or password yields StatusFailure
// with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (Result, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Result{Status: StatusPending}, ErrCredentialsRequired
	}

	identity, hash, err := s.lookup(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Status: StatusFailure}, ErrInvalidCredentials
	}
	if err != nil {
		return Result{Status: StatusFailure}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Result{Status: StatusFailure}, ErrInvalidCredentials
	}
	return Result{Status: StatusSuccess, Identity: identity}, nil
}

func (s *Service) lookup(ctx context.Context, username string) (Identity, string, error) {
	if user, ok := s.users[username]; ok {
		return Identity{
			Username: username,
			Name:     displayName(user.Name, username),
			Email:    user.Email,
			Role:     rbac.Normalize(user.Role),
		}, user.Password, nil
	}
	if s.accounts == nil {
		return Identity{}, "", store.ErrNotFound
	}
	account, err := s.accounts.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, "", err
		}
		return Identity{}, "", fmt.Errorf("lookup account: %w", err)
	}
	return Identity{
		Username: account.Username,
		Name:     displayName(account.DisplayName, account.Username),
		Email:    account.Email,
		Role:     rbac.Normalize(account.Role),
	}, account.PasswordHash, nil
}

type RegisterRequest struct {
	Username string
	Name     string
	Email    string
	Password string
}

// Register creates an account for a preauthorized email address.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Identity, error) {
	if s.accounts == nil {
		return Identity{}, ErrRegistrationDisabled
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Username == "" || req.Email == "" || req.Password == "" {
		return Identity{}, fmt.Errorf("%w: username, email and password are required", ErrInvalidRegistration)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return Identity{}, fmt.Errorf("%w: malformed email", ErrInvalidRegistration)
	}
	if len(req.Password) < minPasswordLength {
		return Identity{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, minPasswordLength)
	}
	if !s.preauthorized[req.Email] {
		return Identity{}, ErrNotPreauthorized
	}
	if _, ok := s.users[req.Username]; ok {
		return Identity{}, ErrAlreadyRegistered
	}
	for _, user := range s.users {
		if strings.EqualFold(user.Email, req.Email) {
			return Identity{}, ErrAlreadyRegistered
		}
	}
	if _, err := s.accounts.GetAccountByEmail(ctx, req.Email); err == nil {
		return Identity{}, ErrAlreadyRegistered
	} else if !errors.Is(err, store.ErrNotFound) {
		return Identity{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return Identity{}, err
	}
	account := store.Account{
		Username:     req.Username,
		DisplayName:  displayName(req.Name, req.Username),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         string(RegisteredRole),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Identity{}, ErrAlreadyRegistered
		}
		return Identity{}, fmt.Errorf("create account: %w", err)
	}
	return Identity{Username: account.Username, Name: account.DisplayName, Email: account.Email, Role: RegisteredRole}, nil
}

// HashPassword returns the bcrypt hash stored in the secrets file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", ErrInvalidRegistration)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func displayName(name, username string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return username
}
