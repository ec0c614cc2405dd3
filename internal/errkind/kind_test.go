package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySentinelErrors(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("get object: %w", ErrNetwork), Network},
		{fmt.Errorf("put object: %w", ErrRateLimit), RateLimit},
		{fmt.Errorf("alloc buffer: %w", ErrResource), Resource},
		{fmt.Errorf("deadline: %w", ErrTimeout), Timeout},
		{fmt.Errorf("quality: %w", ErrDataQuality), DataQuality},
		{fmt.Errorf("semantics: %w", ErrValidation), Validation},
		{fmt.Errorf("avro: %w", ErrSchema), Schema},
		{fmt.Errorf("lookup: %w", ErrNotFound), NotFound},
		{fmt.Errorf("creds: %w", ErrAuth), Auth},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(nil, tc.err))
	}
}

func TestClassifyFallsBackToMessageHints(t *testing.T) {
	assert.Equal(t, Network, Classify(nil, errors.New("dial tcp: connection refused")))
	assert.Equal(t, Network, Classify(nil, errors.New("context deadline: timeout waiting for response")))
	assert.Equal(t, RateLimit, Classify(nil, errors.New("slow down: rate limit exceeded")))
}

func TestClassifyDefaultsToProcessing(t *testing.T) {
	assert.Equal(t, Processing, Classify(nil, errors.New("nil pointer dereference in processor")))
}

func TestClassifyPrefersExplicitClassification(t *testing.T) {
	err := New("objectstore.Get", NotFound, errors.New("key missing"))
	assert.Equal(t, NotFound, Classify(nil, err))

	var target *Classified
	require.True(t, errors.As(err, &target))
	assert.Equal(t, NotFound, target.Kind)
}

func TestShouldRetryRespectsRetriableSetAndLimit(t *testing.T) {
	assert.True(t, ShouldRetry(Network, 0, 3))
	assert.True(t, ShouldRetry(Network, 2, 3))
	assert.False(t, ShouldRetry(Network, 3, 3))
	assert.False(t, ShouldRetry(DataQuality, 0, 3))
}

func TestShouldQuarantineIsDisjointFromRetry(t *testing.T) {
	for _, k := range []Kind{Network, RateLimit, Resource, Timeout, DataQuality, Validation, Schema, NotFound, Auth, Processing} {
		if ShouldQuarantine(k) {
			assert.False(t, ShouldRetry(k, 0, 3), "kind %s is both quarantinable and retriable", k)
		}
	}
}

func TestRetryDelayClampsToLastEntry(t *testing.T) {
	delays := []int{30, 300, 900}
	assert.Equal(t, 30, RetryDelay(delays, 0))
	assert.Equal(t, 300, RetryDelay(delays, 1))
	assert.Equal(t, 900, RetryDelay(delays, 2))
	assert.Equal(t, 900, RetryDelay(delays, 10))
}

func TestDecideAction(t *testing.T) {
	assert.Equal(t, ActionQuarantine, DecideAction(DataQuality, 0, 3))
	assert.Equal(t, ActionRetry, DecideAction(Network, 0, 3))
	assert.Equal(t, ActionDeadLetter, DecideAction(Network, 3, 3))
	assert.Equal(t, ActionAlert, DecideAction(Auth, 0, 3))
	assert.Equal(t, ActionDeadLetter, DecideAction(Processing, 0, 3))
}
