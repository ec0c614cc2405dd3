// Package bloodglucose implements the clinical processor for
// BloodGlucoseRecord data: classification, pattern detection, glycemic
// variability metrics, and narrative generation.
package bloodglucose

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/stats"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

type reading struct {
	glucose      float64
	timestamp    time.Time
	mealRelation string
}

type classified struct {
	reading
	category string
	severity string
}

// Processor classifies blood-glucose readings against ADA-derived ranges.
type Processor struct{}

// New constructs a blood-glucose Processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Initialize() error { return nil }
func (p *Processor) Cleanup() error    { return nil }

func (p *Processor) Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation clinical.ValidationResult) envelope.ClinicalResult {
	start := time.Now()

	readings := extractReadings(records)
	if len(readings) == 0 {
		return envelope.ClinicalResult{
			Success:               false,
			ErrorMessage:          "no valid glucose readings found",
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}
	}

	classifications := classify(readings)
	patterns := identifyPatterns(readings, classifications)
	metrics := variabilityMetrics(readings)
	narrative := generateNarrative(readings, metrics, patterns)
	insights := clinicalInsights(classifications, patterns, metrics)

	return envelope.ClinicalResult{
		Success:               true,
		Narrative:             narrative,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		RecordsProcessed:      len(records),
		QualityScore:          validation.QualityScore,
		ClinicalInsights:      insights,
	}
}

func extractReadings(records []map[string]interface{}) []reading {
	var readings []reading
	for _, rec := range records {
		glucose, ok := clinical.FirstFloat64(rec, "value_mg_dL", "levelInMilligramsPerDeciliter")
		if !ok {
			continue
		}
		ts, ok := clinical.FirstTimestamp(rec, "timestamp", "timeEpochMillis")
		if !ok {
			continue
		}
		mealRelation, _ := clinical.String(rec, "meal_relation")
		if mealRelation == "" {
			mealRelation, _ = clinical.String(rec, "relationToMeal")
		}
		readings = append(readings, reading{glucose: glucose, timestamp: ts, mealRelation: mealRelation})
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].timestamp.Before(readings[j].timestamp) })
	return readings
}

func classify(readings []reading) []classified {
	out := make([]classified, 0, len(readings))
	for _, r := range readings {
		category, severity := classifyGlucose(r.glucose)
		out = append(out, classified{reading: r, category: category, severity: severity})
	}
	return out
}

func classifyGlucose(g float64) (category, severity string) {
	switch {
	case g < 54:
		return "severe_hypoglycemia", "critical"
	case g < 70:
		return "hypoglycemia", "warning"
	case g <= 100:
		return "normal_fasting", "normal"
	case g <= 140:
		return "normal_general", "normal"
	case g <= 180:
		return "hyperglycemia", "warning"
	default:
		return "severe_hyperglycemia", "critical"
	}
}

type patterns struct {
	hypoEvents      []classified
	hyperEvents     []classified
	fastingReadings []reading
	postMealReadings []reading
	overnightReadings []reading
	trend           *stats.Trend
}

func identifyPatterns(readings []reading, classifications []classified) patterns {
	var p patterns
	for _, c := range classifications {
		if c.category == "hypoglycemia" || c.category == "severe_hypoglycemia" {
			p.hypoEvents = append(p.hypoEvents, c)
		}
		if c.category == "hyperglycemia" || c.category == "severe_hyperglycemia" {
			p.hyperEvents = append(p.hyperEvents, c)
		}
	}
	for _, r := range readings {
		hour := r.timestamp.Hour()
		if hour >= 6 && hour <= 10 {
			p.fastingReadings = append(p.fastingReadings, r)
		}
		if r.mealRelation == "AFTER_MEAL" || r.mealRelation == "POSTPRANDIAL" {
			p.postMealReadings = append(p.postMealReadings, r)
		}
		if hour >= 22 || hour <= 6 {
			p.overnightReadings = append(p.overnightReadings, r)
		}
	}
	if len(readings) >= 5 {
		values := make([]float64, len(readings))
		for i, r := range readings {
			values[i] = r.glucose
		}
		trend := stats.AnalyzeTrend(values)
		p.trend = &trend
	}
	return p
}

type metrics struct {
	insufficientData bool
	mean, stdDev, cv, tir, tbr, tar, min, max float64
}

func variabilityMetrics(readings []reading) metrics {
	if len(readings) < 2 {
		return metrics{insufficientData: true}
	}
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.glucose
	}
	min, max := stats.MinMax(values)
	return metrics{
		mean:   stats.Round1(stats.Mean(values)),
		stdDev: stats.Round1(stats.StdDev(values)),
		cv:     stats.Round1(stats.CoefficientOfVariation(values)),
		tir:    stats.Round1(stats.PercentInRange(values, 70, 180)),
		tbr:    stats.Round1(stats.PercentBelow(values, 70)),
		tar:    stats.Round1(stats.PercentAbove(values, 180)),
		min:    min,
		max:    max,
	}
}

func generateNarrative(readings []reading, m metrics, p patterns) string {
	var parts []string

	parts = append(parts, summaryStatement(readings, m))

	if !m.insufficientData {
		switch {
		case m.cv < 36 && m.tir >= 70:
			parts = append(parts, fmt.Sprintf(
				"Glucose control is excellent with low variability (CV %.1f%%) and %.1f%% time in target range (70-180 mg/dL).",
				m.cv, m.tir))
		case m.cv >= 36:
			parts = append(parts, fmt.Sprintf(
				"Glucose variability is high (CV %.1f%%), indicating unstable control. Time in range is %.1f%%.",
				m.cv, m.tir))
		default:
			parts = append(parts, fmt.Sprintf(
				"Glucose variability is moderate (CV %.1f%%) with %.1f%% time in range.", m.cv, m.tir))
		}
	}

	if len(p.hypoEvents) > 0 {
		var severe, mild int
		for _, e := range p.hypoEvents {
			if e.category == "severe_hypoglycemia" {
				severe++
			} else {
				mild++
			}
		}
		if severe > 0 {
			parts = append(parts, fmt.Sprintf(
				"Alert: %d severe hypoglycemic event(s) detected (<54 mg/dL), requiring immediate intervention.", severe))
		}
		if mild > 0 {
			parts = append(parts, fmt.Sprintf(
				"%d hypoglycemic reading(s) detected (54-70 mg/dL). Consider adjusting medication or meal timing.", mild))
		}
	}

	if len(p.hyperEvents) > 0 {
		var severe, mild int
		for _, e := range p.hyperEvents {
			if e.category == "severe_hyperglycemia" {
				severe++
			} else {
				mild++
			}
		}
		switch {
		case severe > 0:
			parts = append(parts, fmt.Sprintf(
				"%d severe hyperglycemic reading(s) detected (>180 mg/dL). Medication adjustment may be needed.", severe))
		case mild > 0:
			parts = append(parts, fmt.Sprintf("%d elevated glucose reading(s) (140-180 mg/dL) observed.", mild))
		}
	}

	if len(p.fastingReadings) > 0 {
		values := make([]float64, len(p.fastingReadings))
		for i, r := range p.fastingReadings {
			values[i] = r.glucose
		}
		avgFasting := stats.Mean(values)
		switch {
		case avgFasting < 100:
			parts = append(parts, fmt.Sprintf("Fasting glucose is well-controlled (avg %.0f mg/dL).", avgFasting))
		case avgFasting <= 126:
			parts = append(parts, fmt.Sprintf(
				"Fasting glucose is elevated (avg %.0f mg/dL), in prediabetes range (100-126 mg/dL).", avgFasting))
		default:
			parts = append(parts, fmt.Sprintf(
				"Fasting glucose is significantly elevated (avg %.0f mg/dL), consistent with diabetes (>126 mg/dL).", avgFasting))
		}
	}

	if p.trend != nil {
		parts = append(parts, trendDescription(*p.trend))
	}

	if rec := recommendations(p, m); rec != "" {
		parts = append(parts, "Recommendations: "+rec)
	}

	return strings.Join(parts, " ")
}

func trendDescription(t stats.Trend) string {
	switch t.Direction {
	case "improving":
		return fmt.Sprintf(
			"Glucose levels show improving trend over the period with %.0f%% reduction in average glucose.",
			absF(t.ChangePercent))
	case "worsening":
		return fmt.Sprintf(
			"Glucose levels show worsening trend over the period with %.0f%% increase in average glucose.",
			t.ChangePercent)
	default:
		return "Glucose levels show stable trend over the period."
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func summaryStatement(readings []reading, m metrics) string {
	if m.insufficientData {
		return fmt.Sprintf("Blood glucose data shows %d readings.", len(readings))
	}
	days := 1
	if len(readings) >= 2 {
		span := readings[len(readings)-1].timestamp.Sub(readings[0].timestamp)
		if d := int(span.Hours() / 24); d > days {
			days = d
		}
	}
	return fmt.Sprintf("Blood glucose data shows %d readings over a %d-day period with mean glucose of %.1f mg/dL.",
		len(readings), days, m.mean)
}

func recommendations(p patterns, m metrics) string {
	var recs []string
	if len(p.hypoEvents) > 0 {
		recs = append(recs, "Review medication timing to reduce hypoglycemic risk")
	}
	if !m.insufficientData && m.tar > 25 {
		recs = append(recs, "Consider medication adjustment to reduce hyperglycemia")
	}
	if !m.insufficientData && m.cv >= 36 {
		recs = append(recs, "Focus on consistent meal timing and carbohydrate intake to reduce variability")
	}
	if len(p.fastingReadings) > 0 {
		values := make([]float64, len(p.fastingReadings))
		for i, r := range p.fastingReadings {
			values[i] = r.glucose
		}
		if stats.Mean(values) > 100 {
			recs = append(recs, "Monitor fasting glucose closely")
		}
	}
	if p.trend != nil && p.trend.Direction == "improving" {
		recs = append(recs, "Continue current management approach as trends are positive")
	}
	return strings.Join(recs, "; ")
}

func controlStatus(m metrics) string {
	switch {
	case m.insufficientData:
		return "insufficient_data"
	case m.cv < 36 && m.tir >= 70:
		return "excellent"
	case m.cv < 36 && m.tir >= 50:
		return "good"
	case m.tir >= 50:
		return "fair"
	default:
		return "poor"
	}
}

func clinicalInsights(classifications []classified, p patterns, m metrics) map[string]interface{} {
	var critical, warning, normal int
	for _, c := range classifications {
		switch c.severity {
		case "critical":
			critical++
		case "warning":
			warning++
		case "normal":
			normal++
		}
	}

	var trendMap map[string]interface{}
	if p.trend != nil {
		trendMap = map[string]interface{}{
			"trend":              p.trend.Direction,
			"change_percent":     p.trend.ChangePercent,
			"first_period_mean":  p.trend.FirstPeriodMean,
			"second_period_mean": p.trend.SecondPeriodMean,
		}
	}

	return map[string]interface{}{
		"record_type":                  string(envelope.BloodGlucoseRecord),
		"total_readings":               len(classifications),
		"critical_events":              critical,
		"warning_events":               warning,
		"normal_events":                normal,
		"hypoglycemic_events_count":    len(p.hypoEvents),
		"hyperglycemic_events_count":   len(p.hyperEvents),
		"fasting_readings_count":       len(p.fastingReadings),
		"post_meal_readings_count":     len(p.postMealReadings),
		"overnight_readings_count":     len(p.overnightReadings),
		"control_status":               controlStatus(m),
		"trends":                       trendMap,
		"variability_metrics": map[string]interface{}{
			"mean_glucose":              m.mean,
			"std_dev":                   m.stdDev,
			"coefficient_of_variation":  m.cv,
			"time_in_range_percent":     m.tir,
			"time_below_range_percent":  m.tbr,
			"time_above_range_percent":  m.tar,
			"min_glucose":               m.min,
			"max_glucose":               m.max,
		},
	}
}
