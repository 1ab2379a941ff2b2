package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetAccount(ctx context.Context, username string) (Account, error) {
	const query = `
		SELECT username, display_name, email, password_hash, role, created_at
		FROM accounts WHERE username = $1
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, username))
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	const query = `
		SELECT username, display_name, email, password_hash, role, created_at
		FROM accounts WHERE LOWER(email) = LOWER($1)
	`
	return s.scanAccount(s.db.QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) scanAccount(row *sql.Row) (Account, error) {
	var account Account
	err := row.Scan(&account.Username, &account.DisplayName, &account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("read account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, account.Username, account.DisplayName, strings.ToLower(account.Email), account.PasswordHash, account.Role)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, username, display_name, role, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE SET
			username=EXCLUDED.username,
			display_name=EXCLUDED.display_name,
			role=EXCLUDED.role,
			expires_at=EXCLUDED.expires_at,
			revoked_at=NULL
	`, session.TokenHash, session.Username, session.DisplayName, session.Role, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (Session, error) {
	const query = `
		SELECT token_hash, username, display_name, role, expires_at
		FROM sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`
	var session Session
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&session.TokenHash, &session.Username, &session.DisplayName, &session.Role, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// AppendJournal inserts entry, assigning an id and timestamp when unset.
func (s *PostgresStore) AppendJournal(ctx context.Context, entry JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("marshal journal changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_journal (id, area, question_id, sheet_row, role, actor, stamp, changes, cells_written, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
	`, entry.ID, entry.Area, entry.QuestionID, entry.SheetRow, entry.Role, entry.Actor, entry.Stamp, string(changes), entry.CellsWritten, entry.SavedAt)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// ListJournal returns the newest entries for one question first.
func (s *PostgresStore) ListJournal(ctx context.Context, area, questionID string, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, area, question_id, sheet_row, role, actor, stamp, changes, cells_written, saved_at
		FROM save_journal
		WHERE area = $1 AND question_id = $2
		ORDER BY saved_at DESC
		LIMIT $3
	`, area, questionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var entry JournalEntry
		var changes []byte
		if err := rows.Scan(&entry.ID, &entry.Area, &entry.QuestionID, &entry.SheetRow, &entry.Role, &entry.Actor, &entry.Stamp, &changes, &entry.CellsWritten, &entry.SavedAt); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &entry.Changes); err != nil {
				return nil, fmt.Errorf("decode journal changes: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
