package trainingemitter

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/objectstore"
)

type fakeStore struct {
	mu      sync.Mutex
	started map[string]bool
}

func newFakeStore() *fakeStore { return &fakeStore{started: map[string]bool{}} }

func (f *fakeStore) Initialize(ctx context.Context) error { return nil }

func (f *fakeStore) IsAlreadyProcessed(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[key], nil
}

func (f *fakeStore) MarkStarted(ctx context.Context, key string, env *envelope.ProcessingEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[key] = true
	return nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, key string, duration time.Duration, recordsProcessed int, narrative string, qualityScore float64) error {
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, key string, errorMessage string, errorKind string) error {
	return nil
}

func (f *fakeStore) CleanupExpired(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeStore) Close() error { return nil }

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objects: map[string][]byte{}} }

func (f *fakeObjects) Get(ctx context.Context, key string, maxSizeBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], nil
}

func (f *fakeObjects) Put(ctx context.Context, key string, content []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), content...)
	return nil
}

func (f *fakeObjects) Head(ctx context.Context, key string) (*objectstore.Info, error) {
	return nil, nil
}

func (f *fakeObjects) AppendViaReadModifyWrite(ctx context.Context, key string, appender func(existing []byte) ([]byte, error)) error {
	f.mu.Lock()
	existing := append([]byte(nil), f.objects[key]...)
	f.mu.Unlock()

	updated, err := appender(existing)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = updated
	return nil
}

func TestEmitRejectsEmptyNarrative(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	e := New(store, objects, nil, true)

	wrote, err := e.Emit(context.Background(), envelope.ClinicalResult{Narrative: ""}, SourceMeta{RecordType: envelope.StepsRecord})
	require.Error(t, err)
	assert.False(t, wrote)
}

func TestEmitWritesOneLineAndDedupesIdenticalNarrative(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	e := New(store, objects, nil, true)

	result := envelope.ClinicalResult{
		Narrative:        "Step count data shows 7 day(s) with average of 8000 steps per day.",
		RecordsProcessed: 7,
		QualityScore:     0.9,
		ClinicalInsights: map[string]interface{}{"total_records": 7},
	}
	src := SourceMeta{RecordType: envelope.StepsRecord, ObjectKey: "raw/StepsRecord/u1/f1.avro", UserID: "u1", CorrelationID: "c1"}

	wrote, err := e.Emit(context.Background(), result, src)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = e.Emit(context.Background(), result, src)
	require.NoError(t, err)
	assert.False(t, wrote, "identical narrative + object key must dedupe")

	var lineCount int
	for _, raw := range objects.objects {
		lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
		lineCount += len(lines)
		for _, line := range lines {
			var example envelope.TrainingExample
			require.NoError(t, json.Unmarshal([]byte(line), &example))
			assert.Equal(t, result.Narrative, example.Output)
			assert.Contains(t, example.Input, "7")
		}
	}
	assert.Equal(t, 1, lineCount)
}

func TestEmitRoutesByHealthDomain(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	e := New(store, objects, nil, false)

	_, err := e.Emit(context.Background(), envelope.ClinicalResult{Narrative: "n1", RecordsProcessed: 1}, SourceMeta{
		RecordType: envelope.BloodGlucoseRecord, ObjectKey: "raw/BloodGlucoseRecord/u1/f1.avro",
	})
	require.NoError(t, err)

	var sawMetabolicKey bool
	for key := range objects.objects {
		if strings.Contains(key, "training/metabolic_diabetes/") {
			sawMetabolicKey = true
		}
	}
	assert.True(t, sawMetabolicKey)
}
