package heartrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

func sampleRecord(ts string, bpms ...float64) map[string]interface{} {
	var samples []interface{}
	for i, bpm := range bpms {
		samples = append(samples, map[string]interface{}{
			"bpm":       bpm,
			"timestamp": ts,
			"_i":        i,
		})
	}
	return map[string]interface{}{"timestamp": ts, "samples": samples}
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	p := New()
	require.NoError(t, p.Initialize())
	result := p.Process(nil, &envelope.ProcessingEnvelope{}, clinical.ValidationResult{})
	assert.False(t, result.Success)
}

func TestZoneDistributionSumsTo100(t *testing.T) {
	samples := []sample{{bpm: 90}, {bpm: 110}, {bpm: 130}, {bpm: 150}, {bpm: 175}}
	dist := zoneDistribution(samples, defaultMaxHR)
	var total float64
	for _, v := range dist {
		total += v
	}
	assert.InDelta(t, 100, total, 0.5)
}

func TestClassifySeverityCountsBands(t *testing.T) {
	samples := []sample{
		{bpm: 35},  // critical
		{bpm: 55},  // warning
		{bpm: 80},  // normal
		{bpm: 160}, // critical + elevated
	}
	critical, warning, normal, elevated, _ := classifySeverityCounts(samples)
	assert.Equal(t, 2, critical)
	assert.Equal(t, 1, warning)
	assert.Equal(t, 1, normal)
	assert.Equal(t, 1, elevated)
}

func TestDetectExerciseSessionsRequiresMinimumDuration(t *testing.T) {
	records := []map[string]interface{}{
		sampleRecord("2026-07-01T08:00:00Z", 120),
	}
	p := New()
	require.NoError(t, p.Initialize())
	result := p.Process(records, &envelope.ProcessingEnvelope{}, clinical.ValidationResult{})
	require.True(t, result.Success)
	assert.EqualValues(t, 0, result.ClinicalInsights["exercise_sessions"])
}

func TestFitnessLevelBands(t *testing.T) {
	assert.Equal(t, "excellent", fitnessLevel(55))
	assert.Equal(t, "good", fitnessLevel(65))
	assert.Equal(t, "average", fitnessLevel(75))
	assert.Equal(t, "below_average", fitnessLevel(90))
}
