package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"grammardesk/internal/config"
	"grammardesk/internal/rbac"
	"grammardesk/internal/store"
)

type mockAccountStore struct {
	accounts map[string]store.Account
	err      error
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: map[string]store.Account{}}
}

func (m *mockAccountStore) GetAccount(ctx context.Context, username string) (store.Account, error) {
	if m.err != nil {
		return store.Account{}, m.err
	}
	account, ok := m.accounts[username]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (m *mockAccountStore) GetAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	if m.err != nil {
		return store.Account{}, m.err
	}
	for _, account := range m.accounts {
		if strings.EqualFold(account.Email, email) {
			return account, nil
		}
	}
	return store.Account{}, store.ErrNotFound
}

func (m *mockAccountStore) CreateAccount(ctx context.Context, account store.Account) error {
	if _, ok := m.accounts[account.Username]; ok {
		return store.ErrConflict
	}
	m.accounts[account.Username] = account
	return nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func newTestService(t *testing.T, accounts AccountStore) *Service {
	t.Helper()
	users := map[string]config.User{
		"kim": {Name: "김검토", Email: "kim@example.com", Password: mustHash(t, "review-pass"), Role: "proofreader"},
		"lee": {Name: "이편집", Email: "lee@example.com", Password: mustHash(t, "edit-pass"), Role: "editor"},
		"oh":  {Name: "오관리", Email: "oh@example.com", Password: mustHash(t, "admin-pass"), Role: "admin"},
	}
	return NewService(users, []string{"New@Example.com", "lee@example.com"}, accounts)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	t.Run("success maps legacy role", func(t *testing.T) {
		result, err := svc.Login(ctx, "kim", "review-pass")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.Status != StatusSuccess {
			t.Fatalf("Status = %s", result.Status)
		}
		if result.Identity.Role != rbac.RoleReviewer || result.Identity.Name != "김검토" {
			t.Fatalf("unexpected identity: %+v", result.Identity)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		result, err := svc.Login(ctx, "lee", "nope")
		if !errors.Is(err, ErrInvalidCredentials) || result.Status != StatusFailure {
			t.Fatalf("Login() = %+v, %v", result, err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		result, err := svc.Login(ctx, "ghost", "x")
		if !errors.Is(err, ErrInvalidCredentials) || result.Status != StatusFailure {
			t.Fatalf("Login() = %+v, %v", result, err)
		}
	})

	t.Run("missing credentials are pending", func(t *testing.T) {
		result, err := svc.Login(ctx, "  ", "")
		if !errors.Is(err, ErrCredentialsRequired) || result.Status != StatusPending {
			t.Fatalf("Login() = %+v, %v", result, err)
		}
	})

	t.Run("unknown role signs in without permissions", func(t *testing.T) {
		result, err := svc.Login(ctx, "oh", "admin-pass")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.Identity.Role != rbac.RoleNone {
			t.Fatalf("Role = %q, want none", result.Identity.Role)
		}
	})
}

func TestLoginFallsBackToAccounts(t *testing.T) {
	ctx := context.Background()
	accounts := newMockAccountStore()
	accounts.accounts["park"] = store.Account{Username: "park", DisplayName: "박", PasswordHash: mustHash(t, "park-pass"), Role: "reviewer"}
	svc := newTestService(t, accounts)

	result, err := svc.Login(ctx, "park", "park-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Identity.Username != "park" || result.Identity.Role != rbac.RoleReviewer {
		t.Fatalf("unexpected identity: %+v", result.Identity)
	}

	accounts.err = errors.New("connection refused")
	if _, err := svc.Login(ctx, "park", "park-pass"); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() with store failure error = %v", err)
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without account store", func(t *testing.T) {
		svc := newTestService(t, nil)
		_, err := svc.Register(ctx, RegisterRequest{Username: "new", Email: "new@example.com", Password: "password123"})
		if !errors.Is(err, ErrRegistrationDisabled) {
			t.Fatalf("Register() error = %v", err)
		}
	})

	t.Run("preauthorized email", func(t *testing.T) {
		accounts := newMockAccountStore()
		svc := newTestService(t, accounts)
		identity, err := svc.Register(ctx, RegisterRequest{Username: "new", Name: "신규", Email: "NEW@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if identity.Role != RegisteredRole || identity.Email != "new@example.com" {
			t.Fatalf("unexpected identity: %+v", identity)
		}
		result, err := svc.Login(ctx, "new", "password123")
		if err != nil || result.Status != StatusSuccess {
			t.Fatalf("Login() after register = %+v, %v", result, err)
		}

		_, err = svc.Register(ctx, RegisterRequest{Username: "new2", Email: "new@example.com", Password: "password123"})
		if !errors.Is(err, ErrAlreadyRegistered) {
			t.Fatalf("second Register() error = %v", err)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		svc := newTestService(t, newMockAccountStore())
		cases := []struct {
			name string
			req  RegisterRequest
			want error
		}{
			{"not preauthorized", RegisterRequest{Username: "x", Email: "x@example.com", Password: "password123"}, ErrNotPreauthorized},
			{"short password", RegisterRequest{Username: "x", Email: "new@example.com", Password: "short"}, ErrInvalidRegistration},
			{"bad email", RegisterRequest{Username: "x", Email: "not-an-email", Password: "password123"}, ErrInvalidRegistration},
			{"missing username", RegisterRequest{Email: "new@example.com", Password: "password123"}, ErrInvalidRegistration},
			{"configured username", RegisterRequest{Username: "kim", Email: "new@example.com", Password: "password123"}, ErrAlreadyRegistered},
			{"configured email", RegisterRequest{Username: "lee2", Email: "lee@example.com", Password: "password123"}, ErrAlreadyRegistered},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := svc.Register(ctx, tc.req); !errors.Is(err, tc.want) {
					t.Fatalf("Register() error = %v, want %v", err, tc.want)
				}
			})
		}
	})
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret-pass")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
