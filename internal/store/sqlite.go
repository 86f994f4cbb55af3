package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/meddesk/internal/domain"
	"github.com/ashureev/meddesk/internal/shared"
	_ "modernc.org/sqlite"
)

const dobLayout = "2006-01-02"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	chatStateMu sync.Mutex // serializes chat state writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		gender TEXT NOT NULL,
		phone TEXT NOT NULL,
		dob TEXT NOT NULL,
		insurance TEXT,
		medical_history TEXT,
		license TEXT,
		specialty TEXT,
		hospital TEXT,
		admin_code TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at);

	CREATE TABLE IF NOT EXISTS chat_states (
		session_id TEXT PRIMARY KEY,
		greeted INTEGER NOT NULL DEFAULT 0,
		remaining_tips_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_states_updated ON chat_states(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const userColumns = `user_id, role, name, email, password_hash, gender, phone, dob,
	insurance, medical_history, license, specialty, hospital, admin_code,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var dob string
	var insurance, medicalHistory, license, specialty, hospital, adminCode sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.ID, &user.Role, &user.Name, &user.Email, &user.PasswordHash,
		&user.Gender, &user.Phone, &dob,
		&insurance, &medicalHistory, &license, &specialty, &hospital, &adminCode,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parsed, err := time.Parse(dobLayout, dob); err == nil {
		user.DateOfBirth = parsed
	}
	user.Insurance = insurance.String
	user.MedicalHistory = medicalHistory.String
	user.License = license.String
	user.Specialty = specialty.String
	user.Hospital = hospital.String
	user.AdminCode = adminCode.String
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// GetUser retrieves an account by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves an account by email (case-insensitive).
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Role, user.Name, user.Email, user.PasswordHash,
		user.Gender, user.Phone, user.DateOfBirth.Format(dobLayout),
		nullable(user.Insurance), nullable(user.MedicalHistory), nullable(user.License),
		nullable(user.Specialty), nullable(user.Hospital), nullable(user.AdminCode),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if shared.IsSQLiteUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// GetSession looks up a login session.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_id, email, role, created_at, last_seen_at
		FROM sessions WHERE session_id = ?`

	var session domain.Session
	var createdAt, lastSeen int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID, &session.UserID, &session.Email, &session.Role,
		&createdAt, &lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastSeenAt = time.Unix(lastSeen, 0)
	return &session, nil
}

// UpsertSession establishes or replaces a login session.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, user_id, email, role, created_at, last_seen_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		user_id = excluded.user_id,
		email = excluded.email,
		role = excluded.role,
		last_seen_at = excluded.last_seen_at`

	_, err := s.db.ExecContext(ctx, query,
		session.SessionID, session.UserID, session.Email, session.Role,
		session.CreatedAt.Unix(), session.LastSeenAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// TouchSession updates last_seen_at for a login session.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = ? WHERE session_id = ?`, lastSeen.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchSession affected 0 rows", "session_id", sessionID)
		return ErrNotFound
	}
	return nil
}

// DeleteSession terminates a login session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes login sessions idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_seen_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// GetChatState retrieves chat state for a session.
func (s *SQLiteStore) GetChatState(ctx context.Context, sessionID string) (*domain.ChatState, error) {
	query := `
		SELECT session_id, greeted, remaining_tips_json, created_at, updated_at
		FROM chat_states WHERE session_id = ?`

	var state domain.ChatState
	var remainingJSON string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&state.SessionID, &state.Greeted, &remainingJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat state: %w", err)
	}

	if err := json.Unmarshal([]byte(remainingJSON), &state.RemainingTips); err != nil {
		return nil, fmt.Errorf("decode remaining tips: %w", err)
	}
	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)
	return &state, nil
}

// UpsertChatState creates or updates chat state.
func (s *SQLiteStore) UpsertChatState(ctx context.Context, state *domain.ChatState) error {
	s.chatStateMu.Lock()
	defer s.chatStateMu.Unlock()

	remaining := state.RemainingTips
	if remaining == nil {
		remaining = []string{}
	}
	remainingJSON, err := json.Marshal(remaining)
	if err != nil {
		return fmt.Errorf("encode remaining tips: %w", err)
	}

	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO chat_states (session_id, greeted, remaining_tips_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			greeted = excluded.greeted,
			remaining_tips_json = excluded.remaining_tips_json,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		state.SessionID, state.Greeted, string(remainingJSON),
		createdAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert chat state: %w", err)
	}
	return nil
}

// DeleteChatState removes chat state for a session.
func (s *SQLiteStore) DeleteChatState(ctx context.Context, sessionID string) error {
	s.chatStateMu.Lock()
	defer s.chatStateMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_states WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete chat state: %w", err)
	}
	return nil
}

// CleanupExpiredChatStates removes chat states not updated within ttl.
func (s *SQLiteStore) CleanupExpiredChatStates(ctx context.Context, ttl time.Duration) (int64, error) {
	s.chatStateMu.Lock()
	defer s.chatStateMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_states WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired chat states: %w", err)
	}
	return result.RowsAffected()
}
