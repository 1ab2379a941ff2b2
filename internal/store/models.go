package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Account is a self-registered user. Accounts from the secrets file are not
// stored here.
type Account struct {
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Session is one active sign-in, keyed by the hashed token id.
type Session struct {
	TokenHash   string    `json:"-"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// JournalEntry records one successful save.
type JournalEntry struct {
	ID           string            `json:"id"`
	Area         string            `json:"area"`
	QuestionID   string            `json:"questionId"`
	SheetRow     int               `json:"sheetRow"`
	Role         string            `json:"role"`
	Actor        string            `json:"actor"`
	Stamp        string            `json:"stamp"`
	Changes      map[string]string `json:"changes"`
	CellsWritten int               `json:"cellsWritten"`
	SavedAt      time.Time         `json:"savedAt"`
}
