package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

// NewRedisStore dials lazily (redis.NewClient does not connect until the
// first command), so construction can be exercised without a live server.
func TestNewRedisStoreParsesURL(t *testing.T) {
	store, err := NewRedisStore("redis://localhost:6379/0", time.Hour, nil)
	require.NoError(t, err)
	assert.NotNil(t, store.client)
}

func TestNewRedisStoreRejectsInvalidURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url", time.Hour, nil)
	assert.Error(t, err)
}

func TestRemainingTTLFloorsAtOneSecond(t *testing.T) {
	store, err := NewRedisStore("redis://localhost:6379/0", time.Hour, nil)
	require.NoError(t, err)

	past := &envelope.ProcessingRecord{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.Equal(t, time.Second, store.remainingTTL(past))

	future := &envelope.ProcessingRecord{ExpiresAt: time.Now().Add(10 * time.Minute)}
	remaining := store.remainingTTL(future)
	assert.Greater(t, remaining, 9*time.Minute)
	assert.LessOrEqual(t, remaining, 10*time.Minute)
}

func TestTrainingKeyNamespacesContentHash(t *testing.T) {
	assert.Equal(t, "training:abc123", TrainingKey("abc123"))
}
