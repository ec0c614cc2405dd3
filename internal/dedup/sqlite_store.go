package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// SQLiteStore is the embedded (single-instance) Deduplication Store
// variant: a local file-backed relational store with a processed_messages
// table keyed by idempotency_key.
type SQLiteStore struct {
	mu              sync.Mutex
	db              *sql.DB
	dbPath          string
	retention       time.Duration
	log             logger.Logger
	cleanupTicker   *time.Ticker
	stopCleanup     chan struct{}
	initialized     bool
}

// NewSQLiteStore constructs an embedded dedup store backed by dbPath, with
// the given retention window (default 168h per §4.1).
func NewSQLiteStore(dbPath string, retention time.Duration, log logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.NoOp{}
	}
	return &SQLiteStore{
		dbPath:    dbPath,
		retention: retention,
		log:       log.WithComponent("dedup.sqlite"),
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_messages (
	idempotency_key         TEXT PRIMARY KEY,
	message_id              TEXT NOT NULL,
	correlation_id          TEXT NOT NULL,
	user_id                 TEXT NOT NULL,
	record_type             TEXT NOT NULL,
	object_key               TEXT NOT NULL,
	status                   TEXT NOT NULL,
	started_at               DATETIME NOT NULL,
	completed_at             DATETIME,
	processing_time_seconds  REAL,
	records_processed        INTEGER,
	quality_score            REAL,
	narrative_preview        TEXT,
	error_message            TEXT,
	error_kind               TEXT,
	expires_at               DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_messages_status ON processed_messages(status);
CREATE INDEX IF NOT EXISTS idx_processed_messages_expires_at ON processed_messages(expires_at);
CREATE INDEX IF NOT EXISTS idx_processed_messages_user_id ON processed_messages(user_id);
`

// Initialize opens (creating if absent) the SQLite database and ensures the
// schema exists.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dbPath != ":memory:" {
		if dir := filepath.Dir(s.dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("dedup: create db directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("dedup: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("dedup: create schema: %w", err)
	}

	s.db = db
	s.initialized = true
	s.stopCleanup = make(chan struct{})
	s.cleanupTicker = time.NewTicker(time.Hour)
	go s.cleanupLoop()

	s.log.Info("embedded dedup store initialized", "db_path", s.dbPath, "retention_hours", s.retention.Hours())
	return nil
}

func (s *SQLiteStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			if n, err := s.CleanupExpired(context.Background()); err != nil {
				s.log.Warn("cleanup_expired failed", "error", err.Error())
			} else if n > 0 {
				s.log.Info("cleanup_expired removed rows", "count", n)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// IsAlreadyProcessed returns true if any row exists for key, regardless of
// its status.
func (s *SQLiteStore) IsAlreadyProcessed(ctx context.Context, key string) (bool, error) {
	if !s.ready() {
		return false, ErrStoreUninitialized
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM processed_messages WHERE idempotency_key = ?", key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("dedup: is_already_processed: %w", err)
	}
	return count > 0, nil
}

// MarkStarted inserts the initial "started" row for key.
func (s *SQLiteStore) MarkStarted(ctx context.Context, key string, env *envelope.ProcessingEnvelope) error {
	if !s.ready() {
		return ErrStoreUninitialized
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.retention)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages
			(idempotency_key, message_id, correlation_id, user_id, record_type, object_key, status, started_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, 'started', ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`, key, env.MessageID, env.CorrelationID, env.UserID, string(env.RecordType), env.ObjectKey, now, expiresAt)
	if err != nil {
		return fmt.Errorf("dedup: mark_started: %w", err)
	}
	return nil
}

// MarkCompleted transitions a row to terminal status "completed".
func (s *SQLiteStore) MarkCompleted(ctx context.Context, key string, duration time.Duration, recordsProcessed int, narrative string, qualityScore float64) error {
	if !s.ready() {
		return ErrStoreUninitialized
	}

	now := time.Now().UTC()
	preview := envelope.TruncatedPreview(narrative)

	_, err := s.db.ExecContext(ctx, `
		UPDATE processed_messages SET
			status = 'completed',
			completed_at = ?,
			processing_time_seconds = ?,
			records_processed = ?,
			quality_score = ?,
			narrative_preview = ?
		WHERE idempotency_key = ?
	`, now, duration.Seconds(), recordsProcessed, qualityScore, preview, key)
	if err != nil {
		return fmt.Errorf("dedup: mark_completed: %w", err)
	}
	return nil
}

// MarkFailed transitions a row to terminal status "failed". Expiry is
// never recomputed here: retention is always measured from MarkStarted's
// creation time, per the spec's resolution of the source ambiguity.
func (s *SQLiteStore) MarkFailed(ctx context.Context, key string, errorMessage string, errorKind string) error {
	if !s.ready() {
		return ErrStoreUninitialized
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE processed_messages SET
			status = 'failed',
			completed_at = ?,
			error_message = ?,
			error_kind = ?
		WHERE idempotency_key = ?
	`, now, errorMessage, errorKind, key)
	if err != nil {
		return fmt.Errorf("dedup: mark_failed: %w", err)
	}
	return nil
}

// CleanupExpired removes rows whose expires_at has passed.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	if !s.ready() {
		return 0, ErrStoreUninitialized
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM processed_messages WHERE expires_at < ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("dedup: cleanup_expired: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dedup: cleanup_expired rows affected: %w", err)
	}
	return int(n), nil
}

// Close stops the cleanup goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	if s.stopCleanup != nil {
		close(s.stopCleanup)
	}
	s.initialized = false
	return s.db.Close()
}

func (s *SQLiteStore) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}
