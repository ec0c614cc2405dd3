package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

const (
	recordKeyPrefix = "etl:processed:"
	statusKeyPrefix = "etl:status:"
)

// RedisStore is the distributed (multi-instance) Deduplication Store
// variant: a networked key-value store with TTL. CleanupExpired is a
// no-op because Redis's own TTL handles expiry.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	log       logger.Logger
	ready     bool
}

// NewRedisStore constructs a distributed dedup store connecting to
// redisURL (e.g. "redis://localhost:6379/0").
func NewRedisStore(redisURL string, retention time.Duration, log logger.Logger) (*RedisStore, error) {
	if log == nil {
		log = logger.NoOp{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("dedup: parse redis url: %w", err)
	}

	// Production-grade pool tuning, matching the teacher's registry client.
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	return &RedisStore{
		client:    redis.NewClient(opts),
		retention: retention,
		log:       log.WithComponent("dedup.redis"),
	}, nil
}

// Initialize verifies connectivity with a retrying PING, the same
// connection-verification posture the teacher's Redis registry takes.
func (s *RedisStore) Initialize(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.ready = true
			s.log.Info("distributed dedup store initialized")
			return nil
		} else {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
		}
	}
	return fmt.Errorf("dedup: redis ping failed after retries: %w", lastErr)
}

// IsAlreadyProcessed checks for the shadow status key's existence.
func (s *RedisStore) IsAlreadyProcessed(ctx context.Context, key string) (bool, error) {
	if !s.ready {
		return false, ErrStoreUninitialized
	}

	n, err := s.client.Exists(ctx, statusKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: is_already_processed: %w", err)
	}
	return n > 0, nil
}

// MarkStarted writes the full record and the shadow status, both with
// TTL = retention, set once and never recomputed.
func (s *RedisStore) MarkStarted(ctx context.Context, key string, env *envelope.ProcessingEnvelope) error {
	if !s.ready {
		return ErrStoreUninitialized
	}

	now := time.Now().UTC()
	record := envelope.ProcessingRecord{
		IdempotencyKey: key,
		MessageID:      env.MessageID,
		CorrelationID:  env.CorrelationID,
		UserID:         env.UserID,
		RecordType:     env.RecordType,
		ObjectKey:      env.ObjectKey,
		Status:         envelope.StatusStarted,
		StartedAt:      now,
		ExpiresAt:      now.Add(s.retention),
	}

	if err := s.writeRecord(ctx, key, &record); err != nil {
		return err
	}
	return s.client.Set(ctx, statusKeyPrefix+key, string(envelope.StatusStarted), s.retention).Err()
}

// MarkCompleted updates the record in place, preserving its original TTL
// semantics (retention computed from creation, not refreshed here).
func (s *RedisStore) MarkCompleted(ctx context.Context, key string, duration time.Duration, recordsProcessed int, narrative string, qualityScore float64) error {
	if !s.ready {
		return ErrStoreUninitialized
	}

	record, err := s.readRecord(ctx, key)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("dedup: mark_completed: no started row for key %q", key)
	}

	now := time.Now().UTC()
	seconds := duration.Seconds()
	record.Status = envelope.StatusCompleted
	record.CompletedAt = &now
	record.ProcessingTimeSeconds = &seconds
	record.RecordsProcessed = &recordsProcessed
	record.QualityScore = &qualityScore
	record.NarrativePreview = envelope.TruncatedPreview(narrative)

	ttl := s.remainingTTL(record)
	if err := s.writeRecordWithTTL(ctx, key, record, ttl); err != nil {
		return err
	}
	return s.client.Set(ctx, statusKeyPrefix+key, string(envelope.StatusCompleted), ttl).Err()
}

// MarkFailed updates the record in place with failure details.
func (s *RedisStore) MarkFailed(ctx context.Context, key string, errorMessage string, errorKind string) error {
	if !s.ready {
		return ErrStoreUninitialized
	}

	record, err := s.readRecord(ctx, key)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("dedup: mark_failed: no started row for key %q", key)
	}

	now := time.Now().UTC()
	record.Status = envelope.StatusFailed
	record.CompletedAt = &now
	record.ErrorMessage = errorMessage
	record.ErrorKind = errorKind

	ttl := s.remainingTTL(record)
	if err := s.writeRecordWithTTL(ctx, key, record, ttl); err != nil {
		return err
	}
	return s.client.Set(ctx, statusKeyPrefix+key, string(envelope.StatusFailed), ttl).Err()
}

// CleanupExpired is a no-op: Redis's TTL mechanism expires keys automatically.
func (s *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	if !s.ready {
		return 0, ErrStoreUninitialized
	}
	return 0, nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) writeRecord(ctx context.Context, key string, record *envelope.ProcessingRecord) error {
	return s.writeRecordWithTTL(ctx, key, record, s.retention)
}

func (s *RedisStore) writeRecordWithTTL(ctx context.Context, key string, record *envelope.ProcessingRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("dedup: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, recordKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("dedup: write record: %w", err)
	}
	return nil
}

func (s *RedisStore) readRecord(ctx context.Context, key string) (*envelope.ProcessingRecord, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dedup: read record: %w", err)
	}

	var record envelope.ProcessingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("dedup: unmarshal record: %w", err)
	}
	return &record, nil
}

// remainingTTL preserves retention-from-creation: the TTL applied to an
// update is whatever time remains until the original expires_at, never a
// fresh full retention window.
func (s *RedisStore) remainingTTL(record *envelope.ProcessingRecord) time.Duration {
	remaining := time.Until(record.ExpiresAt)
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}
