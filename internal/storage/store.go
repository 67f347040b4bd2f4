// Package storage persists flags, cached listings, publications and analytics
// events in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/kalamitra/internal/listing"
	_ "modernc.org/sqlite"
)

// Publication records one attempt to publish a listing to an external channel.
type Publication struct {
	ID        string
	Owner     string
	Channel   string
	Title     string
	Success   bool
	Message   string
	CreatedAt time.Time
}

// Event is a persisted analytics event.
type Event struct {
	ID        string
	Name      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// AllowedUser represents a user in the whitelist.
type AllowedUser struct {
	TelegramID int64
	AddedAt    time.Time
	AddedBy    int64
}

// Store defines the persistence used by the studio and the front-ends.
type Store interface {
	Close() error

	// Per-owner flags, e.g. onboarding completion
	GetFlag(owner, name string) (string, bool, error)
	SetFlag(owner, name, value string) error

	// Listing cache methods
	GetCachedListing(hash string) (*listing.ProductListing, error)
	SetCachedListing(hash string, l *listing.ProductListing) error

	// Publication history
	SavePublication(p *Publication) error
	GetPublications(owner string) ([]Publication, error)

	// Analytics events
	SaveEvent(e *Event) error
	GetEvents(name string, limit int) ([]Event, error)

	// Allowed users methods
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]AllowedUser, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store. Use ":memory:" for a
// throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS user_flags (
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, name)
	);

	CREATE TABLE IF NOT EXISTS listing_cache (
		input_hash TEXT PRIMARY KEY,
		listing_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS publications (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		channel TEXT NOT NULL,
		title TEXT NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_publications_owner ON publications(owner, created_at);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analytics_events_name ON analytics_events(name, id);

	CREATE TABLE IF NOT EXISTS allowed_users (
		telegram_id INTEGER PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		added_by INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetFlag returns the value of a flag and whether it is set.
func (s *SQLiteStore) GetFlag(owner, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(
		"SELECT value FROM user_flags WHERE owner = ? AND name = ?",
		owner, name,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get flag: %w", err)
	}
	return value, true, nil
}

// SetFlag sets a flag, replacing any previous value.
func (s *SQLiteStore) SetFlag(owner, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO user_flags (owner, name, value)
		VALUES (?, ?, ?)
		ON CONFLICT(owner, name) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, owner, name, value)

	if err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

// GetCachedListing retrieves a cached listing by input hash.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetCachedListing(hash string) (*listing.ProductListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow("SELECT listing_json FROM listing_cache WHERE input_hash = ?", hash).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listing cache: %w", err)
	}

	var l listing.ProductListing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("failed to decode cached listing: %w", err)
	}
	return &l, nil
}

// SetCachedListing stores a generated listing. Image references are not cached.
func (s *SQLiteStore) SetCachedListing(hash string, l *listing.ProductListing) error {
	raw, err := json.Marshal(l.WithoutImages())
	if err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO listing_cache (input_hash, listing_json)
		VALUES (?, ?)
		ON CONFLICT(input_hash) DO UPDATE SET
			listing_json = excluded.listing_json,
			created_at = CURRENT_TIMESTAMP
	`, hash, string(raw))

	if err != nil {
		return fmt.Errorf("failed to cache listing: %w", err)
	}
	return nil
}

// SavePublication stores a publication record, assigning an ID and timestamp
// when missing.
func (s *SQLiteStore) SavePublication(p *Publication) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO publications (id, owner, channel, title, success, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Owner, p.Channel, p.Title, p.Success, p.Message, p.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save publication: %w", err)
	}
	return nil
}

// GetPublications returns an owner's publications, oldest first.
func (s *SQLiteStore) GetPublications(owner string) ([]Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, owner, channel, title, success, message, created_at
		FROM publications
		WHERE owner = ?
		ORDER BY created_at, rowid
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query publications: %w", err)
	}
	defer rows.Close()

	var pubs []Publication
	for rows.Next() {
		var p Publication
		if err := rows.Scan(&p.ID, &p.Owner, &p.Channel, &p.Title, &p.Success, &p.Message, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		pubs = append(pubs, p)
	}

	return pubs, rows.Err()
}

// SaveEvent stores an analytics event. The caller assigns the ID.
func (s *SQLiteStore) SaveEvent(e *Event) error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO analytics_events (id, name, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.Name, string(payload), e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetEvents returns the most recent events with the given name, newest first.
// An empty name matches every event.
func (s *SQLiteStore) GetEvents(name string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, name, payload, created_at
		FROM analytics_events
		WHERE ? = '' OR name = ?
		ORDER BY id DESC
		LIMIT ?
	`, name, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.Name, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}

	return events, rows.Err()
}

// IsUserAllowed checks if a user is in the whitelist.
func (s *SQLiteStore) IsUserAllowed(telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM allowed_users WHERE telegram_id = ?",
		telegramID,
	).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check allowed user: %w", err)
	}

	return count > 0, nil
}

// AddAllowedUser adds a user to the whitelist.
func (s *SQLiteStore) AddAllowedUser(telegramID, addedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO allowed_users (telegram_id, added_by)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			added_by = excluded.added_by,
			added_at = CURRENT_TIMESTAMP
	`, telegramID, addedBy)

	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}
	return nil
}

// RemoveAllowedUser removes a user from the whitelist.
func (s *SQLiteStore) RemoveAllowedUser(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM allowed_users WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}
	return nil
}

// GetAllowedUsers returns all users in the whitelist.
func (s *SQLiteStore) GetAllowedUsers() ([]AllowedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, added_at, added_by FROM allowed_users ORDER BY added_at, telegram_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed users: %w", err)
	}
	defer rows.Close()

	var users []AllowedUser
	for rows.Next() {
		var user AllowedUser
		if err := rows.Scan(&user.TelegramID, &user.AddedAt, &user.AddedBy); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
