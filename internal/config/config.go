package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"grammardesk/internal/rbac"
)

const (
	BackendSheets   = "sheets"
	BackendWorkbook = "workbook"
)

type Config struct {
	Addr        string
	SecretsPath string
	Backend     string
	Worksheet   string
	StageMax    int
	StampTZ     string
	CORSOrigin  string
	SessionTTL  time.Duration
	// Redis Configuration
	RedisURL string
	// Postgres journal; empty disables the journal and registration
	DatabaseURL string
	// MinIO row snapshots; empty endpoint disables archiving
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	Secrets Secrets
}

// Secrets mirrors the deployment's TOML secrets file.
type Secrets struct {
	Credentials          Credentials    `toml:"credentials"`
	Cookie               Cookie         `toml:"cookie"`
	Preauthorized        Preauthorized  `toml:"preauthorized"`
	GoogleServiceAccount ServiceAccount `toml:"google_service_account"`
	SpreadsheetIDs       SpreadsheetIDs `toml:"spreadsheet_ids"`
}

type Credentials struct {
	Usernames map[string]User `toml:"usernames"`
}

// User is one configured account. Password holds a bcrypt hash.
type User struct {
	Name     string `toml:"name"`
	Email    string `toml:"email"`
	Password string `toml:"password"`
	Role     string `toml:"role"`
}

type Cookie struct {
	Name       string `toml:"name"`
	Key        string `toml:"key"`
	ExpiryDays int    `toml:"expiry_days"`
}

type Preauthorized struct {
	Emails []string `toml:"emails"`
}

type ServiceAccount struct {
	CredsJSON string `toml:"creds_json"`
}

// SpreadsheetIDs holds a JSON object of area name to spreadsheet id (or to a
// workbook path for the workbook backend).
type SpreadsheetIDs struct {
	SheetIDsJSON string `toml:"sheet_ids_json"`
}

func Load() (Config, error) {
	cfg := Config{
		Addr:           getenv("API_ADDR", ":8501"),
		SecretsPath:    getenv("GRAMMARDESK_SECRETS", "./secrets.toml"),
		Backend:        getenv("GRAMMARDESK_BACKEND", BackendSheets),
		Worksheet:      getenv("GRAMMARDESK_WORKSHEET", "문제"),
		StageMax:       getenvInt("GRAMMARDESK_STAGE_MAX", 4),
		StampTZ:        getenv("GRAMMARDESK_STAMP_TZ", "Asia/Seoul"),
		CORSOrigin:     getenv("GRAMMARDESK_CORS_ORIGIN", "*"),
		RedisURL:       getenv("REDIS_URL", ""),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "grammardesk-snapshots"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}

	secrets, err := LoadSecrets(cfg.SecretsPath)
	if err != nil {
		return Config{}, err
	}
	cfg.Secrets = secrets

	ttlDays := secrets.Cookie.ExpiryDays
	if ttlDays <= 0 {
		ttlDays = 30
	}
	cfg.SessionTTL = time.Duration(getenvInt("GRAMMARDESK_SESSION_TTL_SECONDS", ttlDays*24*60*60)) * time.Second
	return cfg, nil
}

// LoadSecrets reads the TOML secrets file. A missing file yields empty secrets.
func LoadSecrets(path string) (Secrets, error) {
	var secrets Secrets
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return secrets, nil
		}
		return secrets, fmt.Errorf("read secrets: %w", err)
	}
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return secrets, fmt.Errorf("parse secrets %s: %w", path, err)
	}
	return secrets, nil
}

// Areas decodes the area → spreadsheet mapping.
func (c Config) Areas() (map[string]string, error) {
	raw := strings.TrimSpace(c.Secrets.SpreadsheetIDs.SheetIDsJSON)
	if raw == "" {
		return map[string]string{}, nil
	}
	var areas map[string]string
	if err := json.Unmarshal([]byte(raw), &areas); err != nil {
		return nil, fmt.Errorf("parse sheet_ids_json: %w", err)
	}
	return areas, nil
}

// Location resolves StampTZ.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StampTZ)
	if err != nil {
		return nil, fmt.Errorf("load stamp timezone %q: %w", c.StampTZ, err)
	}
	return loc, nil
}

// CookieName is the session cookie name, defaulting when unset.
func (c Config) CookieName() string {
	if name := strings.TrimSpace(c.Secrets.Cookie.Name); name != "" {
		return name
	}
	return "grammardesk_session"
}

// Validate returns hard errors that prevent serving and warnings worth logging.
func (c Config) Validate() (warnings []string, err error) {
	var problems []string
	if strings.TrimSpace(c.Secrets.Cookie.Key) == "" {
		problems = append(problems, "cookie.key is required to sign sessions")
	}
	areas, areaErr := c.Areas()
	if areaErr != nil {
		problems = append(problems, areaErr.Error())
	} else if len(areas) == 0 {
		problems = append(problems, "spreadsheet_ids.sheet_ids_json has no areas")
	}
	switch c.Backend {
	case BackendSheets:
		if strings.TrimSpace(c.Secrets.GoogleServiceAccount.CredsJSON) == "" {
			problems = append(problems, "google_service_account.creds_json is required for the sheets backend")
		}
	case BackendWorkbook:
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.StageMax < 1 {
		problems = append(problems, fmt.Sprintf("stage max %d must be at least 1", c.StageMax))
	}
	if _, locErr := c.Location(); locErr != nil {
		problems = append(problems, locErr.Error())
	}

	usernames := make([]string, 0, len(c.Secrets.Credentials.Usernames))
	for username := range c.Secrets.Credentials.Usernames {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)
	for _, username := range usernames {
		user := c.Secrets.Credentials.Usernames[username]
		if !rbac.Known(user.Role) {
			warnings = append(warnings, fmt.Sprintf("user %q has unknown role %q and will not be able to view or edit questions", username, user.Role))
		}
		if strings.TrimSpace(user.Password) == "" {
			warnings = append(warnings, fmt.Sprintf("user %q has no password hash and cannot sign in", username))
		}
	}

	if len(problems) > 0 {
		return warnings, errors.New(strings.Join(problems, "; "))
	}
	return warnings, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
