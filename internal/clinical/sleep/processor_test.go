package sleep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

func stageSpanRec(stage, start, end string) map[string]interface{} {
	return map[string]interface{}{"stage": stage, "start": start, "end": end}
}

func sessionRec(start, end string, stages ...map[string]interface{}) map[string]interface{} {
	var raw []interface{}
	for _, s := range stages {
		raw = append(raw, s)
	}
	return map[string]interface{}{"start": start, "end": end, "stages": raw}
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	p := New()
	require.NoError(t, p.Initialize())
	result := p.Process(nil, &envelope.ProcessingEnvelope{}, clinical.ValidationResult{})
	assert.False(t, result.Success)
}

func TestDurationCategoryBands(t *testing.T) {
	cases := []struct {
		hours            float64
		wantCategory     string
		wantQuality      string
	}{
		{4, "insufficient", "poor"},
		{6.5, "short", "fair"},
		{8, "optimal", "good"},
		{9.5, "long", "good"},
		{12, "excessive", "fair"},
	}
	for _, tc := range cases {
		category, quality := durationCategoryAndQuality(tc.hours)
		assert.Equal(t, tc.wantCategory, category)
		assert.Equal(t, tc.wantQuality, quality)
	}
}

func TestBedtimeQualityBands(t *testing.T) {
	assert.Equal(t, "optimal", timeOfDayQuality(22, 21, 23, 20, 24))
	assert.Equal(t, "acceptable", timeOfDayQuality(20, 21, 23, 20, 24))
	assert.Equal(t, "suboptimal", timeOfDayQuality(14, 21, 23, 20, 24))
}

func TestProcessBuildsStageBreakdownAndEfficiency(t *testing.T) {
	p := New()
	require.NoError(t, p.Initialize())

	records := []map[string]interface{}{
		sessionRec("2026-07-01T22:00:00Z", "2026-07-02T06:00:00Z",
			stageSpanRec("LIGHT", "2026-07-01T22:00:00Z", "2026-07-02T01:00:00Z"),
			stageSpanRec("DEEP", "2026-07-02T01:00:00Z", "2026-07-02T02:30:00Z"),
			stageSpanRec("REM", "2026-07-02T02:30:00Z", "2026-07-02T04:00:00Z"),
			stageSpanRec("AWAKE", "2026-07-02T04:00:00Z", "2026-07-02T04:15:00Z"),
			stageSpanRec("LIGHT", "2026-07-02T04:15:00Z", "2026-07-02T06:00:00Z"),
		),
	}

	result := p.Process(records, &envelope.ProcessingEnvelope{}, clinical.ValidationResult{QualityScore: 0.9})
	require.True(t, result.Success)
	sessions := result.ClinicalInsights["sessions"].([]map[string]interface{})
	require.Len(t, sessions, 1)
	assert.Equal(t, "optimal", sessions[0]["duration_category"])
	assert.Equal(t, "optimal", sessions[0]["bedtime_quality"])
	assert.InDelta(t, 4.8, sessions[0]["stage_durations"].(map[string]float64)["LIGHT"], 0.01)
	assert.InDelta(t, 18.8, sessions[0]["stage_percentages"].(map[string]float64)["DEEP"], 0.01)
	assert.InDelta(t, 96.9, sessions[0]["sleep_efficiency"], 0.01)
}

func TestPatternsRequireSevenSessions(t *testing.T) {
	var records []map[string]interface{}
	days := []string{"06-25", "06-26", "06-27", "06-28", "06-29", "06-30", "07-01"}
	for _, d := range days {
		records = append(records, sessionRec("2026-"+d+"T22:00:00Z", "2026-"+nextDay(d)+"T06:00:00Z"))
	}

	p := New()
	require.NoError(t, p.Initialize())
	result := p.Process(records, &envelope.ProcessingEnvelope{}, clinical.ValidationResult{})
	require.True(t, result.Success)
	_, hasPatterns := result.ClinicalInsights["patterns"]
	assert.True(t, hasPatterns)
}

func nextDay(mmdd string) string {
	switch mmdd {
	case "06-25":
		return "06-26"
	case "06-26":
		return "06-27"
	case "06-27":
		return "06-28"
	case "06-28":
		return "06-29"
	case "06-29":
		return "06-30"
	case "06-30":
		return "07-01"
	case "07-01":
		return "07-02"
	}
	return mmdd
}
