package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grammardesk/internal/auth"
)

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	cookieName   string
	secureCookie bool
	logger       *zap.Logger
}

type ServerOptions struct {
	CORSOrigin   string
	CookieName   string
	SecureCookie bool
	Logger       *zap.Logger
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CookieName == "" {
		opts.CookieName = "grammardesk_session"
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &HTTPServer{
		service:      service,
		corsOrigin:   opts.CORSOrigin,
		cookieName:   opts.CookieName,
		secureCookie: opts.SecureCookie,
		logger:       opts.Logger,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, checks := s.service.Ready(ctx)
		status := "ready"
		statusCode := http.StatusOK
		if !ok {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ok,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		current, err := s.currentSession(r)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"username":      current.Username,
			"name":          current.Name,
			"role":          current.Role,
			"roleKnown":     current.Role != "",
			"greeting":      fmt.Sprintf("%s 님, 환영합니다. (%s)", current.Name, current.Role),
			"expiresAt":     current.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		if current, err := s.currentSession(r); err == nil {
			if err := s.service.Logout(r.Context(), current); err != nil {
				s.logger.Warn("logout failed", zap.Error(err))
			}
		}
		s.clearCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		var body RegisterInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		identity, err := s.service.Register(r.Context(), body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"username": identity.Username,
			"name":     identity.Name,
			"role":     identity.Role,
		})
		return
	}

	parts := splitPath(r.URL.EscapedPath())
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "areas" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	current, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.handleAreas(w, r, current, parts[2:])
}

// handleAreas serves everything under /api/areas; rest excludes that prefix.
func (s *HTTPServer) handleAreas(w http.ResponseWriter, r *http.Request, current Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		areas, err := s.service.Areas(current)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"areas": areas})

	case len(rest) == 2 && rest[1] == "prefixes" && r.Method == http.MethodGet:
		entries, err := s.service.Catalog(r.Context(), current, rest[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		items := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			items = append(items, map[string]any{
				"prefix":   entry.Prefix,
				"category": entry.Category,
				"label":    entry.Display(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"area": rest[0], "items": items})

	case len(rest) == 4 && rest[1] == "prefixes" && rest[3] == "suffixes" && r.Method == http.MethodGet:
		suffixes, err := s.service.Suffixes(r.Context(), current, rest[0], rest[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, suffixes)

	case len(rest) == 4 && rest[1] == "questions" && r.Method == http.MethodGet:
		view, err := s.service.View(r.Context(), current, rest[0], rest[2], rest[3])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(rest) == 4 && rest[1] == "questions" && r.Method == http.MethodPut:
		var body struct {
			Fields map[string]fieldValue `json:"fields"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		edits := make(map[string]string, len(body.Fields))
		for name, value := range body.Fields {
			edits[name] = string(value)
		}
		result, err := s.service.Save(r.Context(), current, rest[0], rest[2], rest[3], edits)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(rest) == 5 && rest[1] == "questions" && rest[4] == "history" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		history, err := s.service.History(r.Context(), current, rest[0], rest[2], rest[3], limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, history)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	current, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    current.Token,
		Path:     "/",
		Expires:  current.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"token":     current.Token,
		"username":  current.Username,
		"name":      current.Name,
		"role":      current.Role,
		"expiresAt": current.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) currentSession(r *http.Request) (Session, error) {
	token, err := auth.FromRequest(r, s.cookieName)
	if err != nil {
		return Session{}, err
	}
	return s.service.SessionFromToken(r.Context(), token)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	current, err := s.currentSession(r)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrNoToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.logger.Error("session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return current, true
}

// fail maps err to a response. Server-side failures are logged.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	if corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// fieldValue is a submitted field. Number inputs may arrive as JSON numbers;
// they are kept as their literal text.
type fieldValue string

func (v *fieldValue) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*v = fieldValue(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("field value must be a string or number")
	}
	*v = fieldValue(number.String())
	return nil
}

// splitPath splits an escaped path and unescapes each segment, so %2F stays
// inside its segment.
func splitPath(escaped string) []string {
	trimmed := strings.Trim(escaped, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for idx, part := range parts {
		if unescaped, err := url.PathUnescape(part); err == nil {
			parts[idx] = unescaped
		}
	}
	return parts
}
