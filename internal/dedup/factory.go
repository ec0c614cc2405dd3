package dedup

import (
	"fmt"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// New constructs the Store variant selected by cfg.Kind. Callers receive a
// Store interface and never branch on which concrete type they hold.
func New(cfg *config.DedupConfig, log logger.Logger) (Store, error) {
	retention := time.Duration(cfg.RetentionHours) * time.Hour

	switch cfg.Kind {
	case config.DedupEmbedded:
		return NewSQLiteStore(cfg.DBPath, retention, log), nil
	case config.DedupDistributed:
		return NewRedisStore(cfg.RedisURL, retention, log)
	default:
		return nil, fmt.Errorf("dedup: unknown dedup_store_kind %q", cfg.Kind)
	}
}

// TrainingKey namespaces a training-line content hash under the distinct
// prefix C7 uses to reuse this store for training-level dedup.
func TrainingKey(contentHash string) string {
	return "training:" + contentHash
}
