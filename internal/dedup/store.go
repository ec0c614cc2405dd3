// Package dedup implements the Deduplication Store (C1): a polymorphic
// capability with an embedded (SQLite) and a distributed (Redis) variant.
// Callers never branch on which variant they hold.
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

// ErrStoreUninitialized is returned by every operation if called before
// Initialize.
var ErrStoreUninitialized = errors.New("dedup: store not initialized")

// Store is the capability every component holding a dedup store talks to.
type Store interface {
	Initialize(ctx context.Context) error

	// IsAlreadyProcessed treats any non-absent row — started, completed, or
	// failed — as processed.
	IsAlreadyProcessed(ctx context.Context, key string) (bool, error)

	MarkStarted(ctx context.Context, key string, env *envelope.ProcessingEnvelope) error

	MarkCompleted(ctx context.Context, key string, duration time.Duration, recordsProcessed int, narrative string, qualityScore float64) error

	MarkFailed(ctx context.Context, key string, errorMessage string, errorKind string) error

	// CleanupExpired removes rows past their retention window and returns
	// how many were removed. A no-op (returns 0, nil) for TTL-backed stores.
	CleanupExpired(ctx context.Context) (int, error)

	Close() error
}
