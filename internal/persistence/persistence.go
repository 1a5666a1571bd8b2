// Package persistence durably stores a bot's grid and ledger snapshot so it
// can survive a restart, the way the simple engine's Store saved pb.State to
// SQLite with a checksum and WAL journaling — adapted here to one canonical
// schema for core.PersistedSnapshot, resolving Ambiguity (b) in favor of a
// single on-disk shape rather than carrying forward a second JSON layout.
package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gridmm/internal/core"
	apperrors "gridmm/pkg/errors"
)

// SnapshotStore persists and restores one bot's snapshot. Implementations
// must be safe for concurrent use.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *core.PersistedSnapshot) error
	LoadSnapshot(ctx context.Context, botKey string) (*core.PersistedSnapshot, error)
	Close() error
}

// MemoryStore implements SnapshotStore in memory, for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	byBot map[string]*core.PersistedSnapshot
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byBot: make(map[string]*core.PersistedSnapshot)}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *core.PersistedSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.byBot[snap.BotKey] = &cp
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, botKey string) (*core.PersistedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byBot[botKey]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }

// SQLiteStore is the durable Store: one row per bot key in a WAL-mode
// SQLite database, each row holding the JSON-marshaled snapshot plus a
// sha256 checksum verified on every load.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath, enables WAL mode, and creates the state
// table if it does not already exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("persistence: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persistence: ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("persistence: enable WAL mode: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS account_orders (
	bot_key    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("persistence: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveSnapshot marshals and writes snap under a serializable transaction,
// round-tripping the JSON first so a marshal bug never lands a silently
// unreadable row.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *core.PersistedSnapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("persistence: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}

	var roundTrip core.PersistedSnapshot
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		return fmt.Errorf("persistence: snapshot failed round-trip validation: %w", err)
	}

	checksum := sha256.Sum256(data)
	const query = `INSERT INTO account_orders (bot_key, data, checksum, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(bot_key) DO UPDATE SET data = excluded.data, checksum = excluded.checksum, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, query, snap.BotKey, string(data), hex.EncodeToString(checksum[:]), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("persistence: write snapshot: %w", err)
	}

	return tx.Commit()
}

// LoadSnapshot reads and checksum-verifies the row for botKey, returning
// (nil, nil) if no snapshot has ever been saved for it.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, botKey string) (*core.PersistedSnapshot, error) {
	const query = `SELECT data, checksum FROM account_orders WHERE bot_key = ?`
	var data, storedChecksum string
	err := s.db.QueryRowContext(ctx, query, botKey).Scan(&data, &storedChecksum)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: read snapshot: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if hex.EncodeToString(computed[:]) != storedChecksum {
		return nil, fmt.Errorf("persistence: data corruption detected: checksum verification failed for bot %q: %w", botKey, apperrors.ErrPersistenceFailed)
	}

	var snap core.PersistedSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
