package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
	"github.com/hitoshura25/etl-narrative-engine/internal/objectstore"
	"github.com/hitoshura25/etl-narrative-engine/internal/trainingemitter"
)

// --- fakes ---

type fakeStore struct {
	mu             sync.Mutex
	processed      map[string]bool
	markStartErr   error
	failedKind     string
	failedCalls    int
	completedCalls int
}

func newFakeStore() *fakeStore { return &fakeStore{processed: map[string]bool{}} }

func (f *fakeStore) Initialize(ctx context.Context) error { return nil }

func (f *fakeStore) IsAlreadyProcessed(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[key], nil
}

func (f *fakeStore) MarkStarted(ctx context.Context, key string, env *envelope.ProcessingEnvelope) error {
	if f.markStartErr != nil {
		return f.markStartErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[key] = true
	return nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, key string, duration time.Duration, recordsProcessed int, narrative string, qualityScore float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedCalls++
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, key string, errorMessage string, errorKind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	f.failedKind = errorKind
	return nil
}

func (f *fakeStore) CleanupExpired(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeStore) Close() error { return nil }

type fakeObjects struct {
	mu           sync.Mutex
	objects      map[string][]byte
	getErr       error
	putCalled    int
	putKeys      []string
	appendCalled int
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objects: map[string][]byte{}} }

func (f *fakeObjects) Get(ctx context.Context, key string, maxSizeBytes int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errkind.New("get", errkind.NotFound, fmt.Errorf("object %q: %w", key, errkind.ErrNotFound))
	}
	return data, nil
}

func (f *fakeObjects) Put(ctx context.Context, key string, content []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalled++
	f.putKeys = append(f.putKeys, key)
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
	f.appendCalled++
	f.objects[key] = updated
	return nil
}

// fakeAvro stands in for C4, returning canned records or a canned error per
// call rather than decoding real Avro container bytes.
type fakeAvro struct {
	records []map[string]interface{}
	err     error
}

func (f *fakeAvro) ParseRecords(avroData []byte, expectedType envelope.RecordType) ([]map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeAcker struct {
	mu              sync.Mutex
	acked           int
	nackedRequeue   int
	nackedNoRequeue int
}

func (a *fakeAcker) Ack() error { a.mu.Lock(); defer a.mu.Unlock(); a.acked++; return nil }
func (a *fakeAcker) NackRequeue() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nackedRequeue++
	return nil
}
func (a *fakeAcker) NackNoRequeue() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nackedNoRequeue++
	return nil
}

type fakeScheduler struct {
	mu          sync.Mutex
	calls       int
	scheduleErr error
}

func (s *fakeScheduler) ScheduleRetry(ctx context.Context, env *envelope.ProcessingEnvelope, delaySeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.scheduleErr
}

// --- test fixtures ---

func testEnvelopeFor(recordType envelope.RecordType, objectKey string) *envelope.ProcessingEnvelope {
	return &envelope.ProcessingEnvelope{
		MessageID:      "m1",
		CorrelationID:  "c1",
		UserID:         "u1",
		RecordType:     recordType,
		ObjectKey:      objectKey,
		Bucket:         "health-data",
		IdempotencyKey: "idem-1",
		RoutingKey:     "health.processing.steps",
		RetryCount:     0,
	}
}

func processingConfig() config.ProcessingConfig {
	return config.ProcessingConfig{
		MaxFileSizeMB:            100,
		ProcessingTimeoutSeconds: 5,
		DataQualityThreshold:     0.7,
		TrainingPrefix:           "training",
		QuarantinePrefix:         "quarantine",
		RawPrefix:                "raw",
	}
}

func stepsRecords() []map[string]interface{} {
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	return []map[string]interface{}{
		{"step_count": 8000.0, "timestamp": now.Format(time.RFC3339)},
		{"step_count": 8500.0, "timestamp": now.Add(24 * time.Hour).Format(time.RFC3339)},
	}
}

func newDeps(store *fakeStore, objects *fakeObjects, avro *fakeAvro, scheduler *fakeScheduler) *Deps {
	return &Deps{
		Store:       store,
		Objects:     objects,
		Avro:        avro,
		Processors:  clinical.NewRegistry(),
		Emitter:     trainingemitter.New(store, objects, nil, true),
		Scheduler:   scheduler,
		Processing:  processingConfig(),
		MaxRetries:  3,
		RetryDelays: []int{1, 2, 3},
	}
}

func encodeEnvelope(t *testing.T, env *envelope.ProcessingEnvelope) []byte {
	t.Helper()
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

// TestHandleDeliverySkipsDuplicate exercises the is_duplicate branch: the
// delivery is acked immediately without touching object storage.
func TestHandleDeliverySkipsDuplicate(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/f1.avro")
	store.processed[env.IdempotencyKey] = true

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, 0, objects.putCalled)
}

// TestHandleDeliveryUnparsableJSONDeadLetters exercises the decode-failure
// path: a payload that isn't even JSON carries no envelope to classify or
// quarantine against, so it is nacked without requeue directly.
func TestHandleDeliveryUnparsableJSONDeadLetters(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, []byte("not json"), "health.processing.steps", acker)

	assert.Equal(t, 1, acker.nackedNoRequeue)
	assert.Equal(t, 0, acker.acked)
}

// TestHandleDeliveryMissingRequiredFieldQuarantines covers the boundary
// behavior "Envelope missing required fields → validation error,
// quarantined": the envelope decodes but fails Validate(), so it is
// classified as validation-kind and quarantined (acked, not nacked).
func TestHandleDeliveryMissingRequiredFieldQuarantines(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/f1.avro")
	env.IdempotencyKey = ""
	objects.objects[env.ObjectKey] = []byte("irrelevant, ParseRecords is faked")

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, 0, acker.nackedNoRequeue)
	require.Equal(t, 2, objects.putCalled, "expects a quarantined blob plus its sibling metadata file")
	assert.Contains(t, objects.putKeys[0], "quarantine/validation/")
	assert.True(t, strings.HasSuffix(objects.putKeys[0], ".avro"))
	assert.True(t, strings.HasSuffix(objects.putKeys[1], ".metadata.json"))
}

// TestHandleDeliverySuccessEmitsTrainingAndAcks is the happy path (S1):
// valid records flow through validation, the processor, and the training
// emitter, then are acked with a completed mark.
func TestHandleDeliverySuccessEmitsTrainingAndAcks(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/f1.avro")
	objects.objects[env.ObjectKey] = []byte("irrelevant, ParseRecords is faked")

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, 0, acker.nackedNoRequeue)
	assert.Equal(t, 1, store.completedCalls)
	assert.Equal(t, 1, objects.appendCalled, "training emitter must append one training example via the read-modify-write path")
}

// TestHandleDeliveryLowQualityQuarantines exercises S6: a data-quality
// failure is quarantine-kind, so the blob is copied under the quarantine
// prefix and the delivery is still acked (terminal state reached).
func TestHandleDeliveryLowQualityQuarantines(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	// Missing anchor fields (no step_count/timestamp) drives completeness,
	// and therefore the overall quality score, below the configured threshold.
	avro := &fakeAvro{records: []map[string]interface{}{{"unexpected": "shape"}}}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/f1.avro")
	objects.objects[env.ObjectKey] = []byte("irrelevant, ParseRecords is faked")

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, 1, store.failedCalls)
	assert.Equal(t, string(errkind.DataQuality), store.failedKind)
	require.Equal(t, 2, objects.putCalled, "expects a quarantined blob plus its sibling metadata file")
	assert.Contains(t, objects.putKeys[0], "quarantine/data_quality/")
	assert.Regexp(t, `quarantine/data_quality/\d{8}_\d{6}_f1\.avro$`, objects.putKeys[0])
	assert.Equal(t, strings.TrimSuffix(objects.putKeys[0], ".avro")+".metadata.json", objects.putKeys[1])
}

// TestHandleDeliveryObjectNotFoundDeadLetters exercises the not_found
// classification (S4): missing blob is neither retriable nor
// quarantinable, so it dead-letters.
func TestHandleDeliveryObjectNotFoundDeadLetters(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/missing.avro")
	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.nackedNoRequeue)
	assert.Equal(t, 0, acker.acked)
	assert.Equal(t, 1, store.failedCalls)
	assert.Equal(t, string(errkind.NotFound), store.failedKind)
}

// TestHandleDeliveryNetworkErrorSchedulesRetry exercises S3: a network-kind
// failure is retried and scheduled via the RetryScheduler, then acked.
func TestHandleDeliveryNetworkErrorSchedulesRetry(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.getErr = errkind.New("get", errkind.Network, fmt.Errorf("dial tcp: connection refused: %w", errkind.ErrNetwork))
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/f1.avro")
	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, scheduler.calls)
	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, 0, acker.nackedNoRequeue)
}

// TestHandleDeliveryRetrySchedulingFailureStillAcks exercises the bounded
// blast-radius rule: when the scheduler itself fails, the message is acked
// (not nacked) after being recorded as an infrastructure_error failure.
func TestHandleDeliveryRetrySchedulingFailureStillAcks(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.getErr = errkind.New("get", errkind.Network, fmt.Errorf("timeout: %w", errkind.ErrNetwork))
	avro := &fakeAvro{records: stepsRecords()}
	scheduler := &fakeScheduler{scheduleErr: fmt.Errorf("broker unavailable")}
	deps := newDeps(store, objects, avro, scheduler)

	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/f1.avro")
	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, 0, acker.nackedRequeue)
	assert.Equal(t, 0, acker.nackedNoRequeue)
	assert.Equal(t, 1, store.failedCalls)
	assert.Equal(t, "infrastructure_error", store.failedKind)
}

// TestHandleDeliveryEmptyAvroBlobDeadLetters covers the zero-record
// processing failure: zero decoded records is a processing-kind error,
// which isn't retriable or quarantinable, so it dead-letters.
func TestHandleDeliveryEmptyAvroBlobDeadLetters(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	env := testEnvelopeFor(envelope.StepsRecord, "raw/StepsRecord/u1/empty.avro")
	objects.objects[env.ObjectKey] = []byte{}
	avro := &fakeAvro{records: nil}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.nackedNoRequeue)
	assert.Equal(t, 1, store.failedCalls)
	assert.Equal(t, string(errkind.Processing), store.failedKind)
}

// TestHandleDeliveryUnknownRecordTypeDeadLetters covers the registry's
// unknown-type error, also a processing-kind dead-letter.
func TestHandleDeliveryUnknownRecordTypeDeadLetters(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	env := testEnvelopeFor(envelope.RecordType("UnknownRecord"), "raw/UnknownRecord/u1/f1.avro")
	objects.objects[env.ObjectKey] = []byte("irrelevant")
	avro := &fakeAvro{records: []map[string]interface{}{{"x": 1.0}}}
	scheduler := &fakeScheduler{}
	deps := newDeps(store, objects, avro, scheduler)

	acker := &fakeAcker{}
	HandleDelivery(context.Background(), deps, encodeEnvelope(t, env), env.RoutingKey, acker)

	assert.Equal(t, 1, acker.nackedNoRequeue)
	assert.Equal(t, 1, store.failedCalls)
}
