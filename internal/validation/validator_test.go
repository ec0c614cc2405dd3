package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

func TestValidateRejectsEmptyRecords(t *testing.T) {
	result := Validate(nil, envelope.BloodGlucoseRecord, 0.7)
	assert.False(t, result.IsValid)
	assert.Zero(t, result.QualityScore)
	assert.NotEmpty(t, result.Issues)
}

func TestValidateScoresCompleteRecordsHighly(t *testing.T) {
	records := []map[string]interface{}{
		{"value_mg_dL": 95.0, "timestamp": "2026-07-01T08:00:00Z"},
		{"value_mg_dL": 100.0, "timestamp": "2026-07-01T09:00:00Z"},
	}
	result := Validate(records, envelope.BloodGlucoseRecord, 0.7)
	assert.True(t, result.IsValid)
	assert.InDelta(t, 1.0, result.QualityScore, 0.01)
	assert.Empty(t, result.Issues)
}

func TestValidatePenalizesMissingAnchorFields(t *testing.T) {
	records := []map[string]interface{}{
		{"value_mg_dL": 95.0, "timestamp": "2026-07-01T08:00:00Z"},
		{"timestamp": "2026-07-01T09:00:00Z"},
	}
	result := Validate(records, envelope.BloodGlucoseRecord, 0.95)
	assert.False(t, result.IsValid)
	assert.Less(t, result.QualityScore, 1.0)
	assert.Contains(t, result.Issues, "data completeness below optimal")
}

func TestValidatePenalizesOutOfOrderTimestamps(t *testing.T) {
	records := []map[string]interface{}{
		{"value_mg_dL": 95.0, "timestamp": "2026-07-01T09:00:00Z"},
		{"value_mg_dL": 100.0, "timestamp": "2026-07-01T08:00:00Z"},
	}
	result := Validate(records, envelope.BloodGlucoseRecord, 0.7)
	assert.Less(t, result.QualityScore, 1.0)
	assert.Contains(t, result.Issues, "timestamps not in chronological order")
}
