package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"grammardesk/internal/auth"
	"grammardesk/internal/authpw"
	"grammardesk/internal/markup"
	"grammardesk/internal/rbac"
	"grammardesk/internal/reconcile"
	"grammardesk/internal/rowstore"
	"grammardesk/internal/session"
	"grammardesk/internal/snapshot"
	"grammardesk/internal/store"
)

type Session struct {
	Token     string
	Username  string
	Name      string
	Role      rbac.Role
	JTI       string
	ExpiresAt time.Time
}

type journal interface {
	AppendJournal(ctx context.Context, entry store.JournalEntry) error
	ListJournal(ctx context.Context, area, questionID string, limit int) ([]store.JournalEntry, error)
	Ping(ctx context.Context) error
}

// Deps wires a Service. Journal and Archiver are optional.
type Deps struct {
	Source     rowstore.Source
	Reconciler *reconcile.Reconciler
	Auth       *authpw.Service
	Sessions   session.Store
	Journal    journal
	Archiver   snapshot.Archiver
	Formatter  markup.Formatter
	Logger     *zap.Logger
	Secret     []byte
	SessionTTL time.Duration
	Location   *time.Location
	Now        func() time.Time
}

type Service struct {
	source     rowstore.Source
	reconciler *reconcile.Reconciler
	auth       *authpw.Service
	sessions   session.Store
	journal    journal
	archiver   snapshot.Archiver
	formatter  markup.Formatter
	logger     *zap.Logger
	secret     []byte
	sessionTTL time.Duration
	location   *time.Location
	now        func() time.Time
}

func New(deps Deps) *Service {
	svc := &Service{
		source:     deps.Source,
		reconciler: deps.Reconciler,
		auth:       deps.Auth,
		sessions:   deps.Sessions,
		journal:    deps.Journal,
		archiver:   deps.Archiver,
		formatter:  deps.Formatter,
		logger:     deps.Logger,
		secret:     deps.Secret,
		sessionTTL: deps.SessionTTL,
		location:   deps.Location,
		now:        deps.Now,
	}
	if svc.sessions == nil {
		svc.sessions = session.NewMemoryStore()
	}
	if svc.archiver == nil {
		svc.archiver = snapshot.Nop{}
	}
	if svc.formatter == nil {
		svc.formatter = markup.NewBBCode()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.sessionTTL <= 0 {
		svc.sessionTTL = 30 * 24 * time.Hour
	}
	if svc.location == nil {
		svc.location = time.Local
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Login checks credentials and registers a new session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	result, err := s.auth.Login(ctx, username, password)
	switch {
	case errors.Is(err, authpw.ErrCredentialsRequired):
		return Session{}, domainError(http.StatusBadRequest, "CREDENTIALS_REQUIRED", "아이디와 비밀번호를 입력하세요.", map[string]any{"status": result.Status})
	case errors.Is(err, authpw.ErrInvalidCredentials):
		s.logger.Info("login rejected", zap.String("username", username))
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "아이디 또는 비밀번호가 올바르지 않습니다.", map[string]any{"status": result.Status})
	case err != nil:
		return Session{}, fmt.Errorf("login: %w", err)
	}

	identity := result.Identity
	if identity.Role == rbac.RoleNone {
		s.logger.Warn("user signed in without a recognised role", zap.String("username", identity.Username))
	}
	claims := auth.NewClaims(identity.Username, identity.Name, string(identity.Role), s.now(), s.sessionTTL)
	token, err := auth.IssueToken(s.secret, claims)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveSession(ctx, store.Session{
		TokenHash:   auth.HashToken(claims.JTI),
		Username:    identity.Username,
		DisplayName: identity.Name,
		Role:        string(identity.Role),
		ExpiresAt:   claims.ExpiresAt(),
	}); err != nil {
		return Session{}, fmt.Errorf("register session: %w", err)
	}

	s.logger.Info("login", zap.String("username", identity.Username), zap.String("role", string(identity.Role)))
	return Session{
		Token:     token,
		Username:  identity.Username,
		Name:      identity.Name,
		Role:      identity.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

// SessionFromToken verifies token and checks it is still registered.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret, token, s.now())
	if err != nil {
		return Session{}, err
	}
	active, err := s.sessions.LookupSession(ctx, auth.HashToken(claims.JTI))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return Session{
		Token:     token,
		Username:  active.Username,
		Name:      active.DisplayName,
		Role:      rbac.Normalize(active.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, current Session) error {
	if current.JTI == "" {
		return nil
	}
	if err := s.sessions.RevokeSession(ctx, auth.HashToken(current.JTI)); err != nil {
		return err
	}
	s.logger.Info("logout", zap.String("username", current.Username))
	return nil
}

type RegisterInput struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (authpw.Identity, error) {
	identity, err := s.auth.Register(ctx, authpw.RegisterRequest(input))
	switch {
	case errors.Is(err, authpw.ErrRegistrationDisabled):
		return authpw.Identity{}, domainError(http.StatusServiceUnavailable, "REGISTRATION_UNAVAILABLE", "Registration is not available", nil)
	case errors.Is(err, authpw.ErrNotPreauthorized):
		return authpw.Identity{}, domainError(http.StatusForbidden, "NOT_PREAUTHORIZED", "Email is not preauthorized", nil)
	case errors.Is(err, authpw.ErrAlreadyRegistered):
		return authpw.Identity{}, domainError(http.StatusConflict, "ALREADY_REGISTERED", "Username or email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidRegistration):
		return authpw.Identity{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case err != nil:
		return authpw.Identity{}, err
	}
	s.logger.Info("account registered", zap.String("username", identity.Username))
	return identity, nil
}

// Ready pings every dependency and reports each one.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := map[string]any{}
	record := func(name string, err error) {
		if err != nil {
			ok = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	record("sessions", s.sessions.Ping(ctx))
	if s.journal != nil {
		record("journal", s.journal.Ping(ctx))
	}
	for _, area := range s.source.Areas() {
		st, err := s.source.Open(ctx, area)
		if err == nil {
			err = st.Ping(ctx)
		}
		record("area:"+area, err)
	}
	return ok, checks
}

func (s *Service) Areas(current Session) ([]string, error) {
	if !rbac.Can(current.Role, rbac.ActionRead) {
		return nil, reconcile.ErrUnknownRole
	}
	return s.source.Areas(), nil
}

func (s *Service) knownArea(area string) error {
	for _, candidate := range s.source.Areas() {
		if candidate == area {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", rowstore.ErrUnknownArea, area)
}
