// Package heartrate implements the clinical processor for HeartRateRecord
// data: per-sample classification, resting-HR estimation, exercise-session
// detection, and zone-distribution reporting.
package heartrate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/stats"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

const defaultMaxHR = 180.0

type sample struct {
	bpm       float64
	timestamp time.Time
}

type session struct {
	start, end       time.Time
	durationMinutes  float64
	avgBPM, maxBPM   float64
	recoveryBPM1Min  float64
}

// Processor classifies heart-rate samples and detects exercise sessions.
type Processor struct{}

func New() *Processor           { return &Processor{} }
func (p *Processor) Initialize() error { return nil }
func (p *Processor) Cleanup() error    { return nil }

func (p *Processor) Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation clinical.ValidationResult) envelope.ClinicalResult {
	start := time.Now()

	samples := extractSamples(records)
	if len(samples) == 0 {
		return envelope.ClinicalResult{
			Success:               false,
			ErrorMessage:          "no valid heart rate samples found",
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}
	}

	restingHR := restingHeartRate(samples)
	sessions := detectExerciseSessions(samples)
	zoneDist := zoneDistribution(samples, defaultMaxHR)
	critical, warning, normal, elevated, brady := classifySeverityCounts(samples)

	narrative := generateNarrative(samples, restingHR, sessions, zoneDist, elevated, brady)

	return envelope.ClinicalResult{
		Success:               true,
		Narrative:             narrative,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		RecordsProcessed:      len(records),
		QualityScore:          validation.QualityScore,
		ClinicalInsights: map[string]interface{}{
			"record_type":          string(envelope.HeartRateRecord),
			"total_samples":        len(samples),
			"critical_events":      critical,
			"warning_events":       warning,
			"normal_events":        normal,
			"elevated_hr_events":   elevated,
			"bradycardia_events":   brady,
			"exercise_sessions":    len(sessions),
			"resting_heart_rate":   stats.Round1(restingHR),
			"fitness_level":        fitnessLevel(restingHR),
			"zone_distribution":    zoneDist,
		},
	}
}

func extractSamples(records []map[string]interface{}) []sample {
	var out []sample
	for _, rec := range records {
		raw, ok := rec["samples"].([]interface{})
		recordTS, hasRecordTS := clinical.FirstTimestamp(rec, "timestamp", "timeEpochMillis")
		if !ok {
			continue
		}
		for _, item := range raw {
			sub, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			bpm, ok := clinical.FirstFloat64(sub, "bpm", "beatsPerMinute")
			if !ok {
				continue
			}
			ts, ok := clinical.FirstTimestamp(sub, "timestamp", "timeEpochMillis")
			if !ok {
				if !hasRecordTS {
					continue
				}
				ts = recordTS
			}
			out = append(out, sample{bpm: bpm, timestamp: ts})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].timestamp.Before(out[j].timestamp) })
	return out
}

func restingHeartRate(samples []sample) float64 {
	var nighttime []float64
	for _, s := range samples {
		hour := s.timestamp.Hour()
		if hour >= 22 || hour <= 6 {
			nighttime = append(nighttime, s.bpm)
		}
	}
	if len(nighttime) == 0 {
		min := samples[0].bpm
		for _, s := range samples {
			if s.bpm < min {
				min = s.bpm
			}
		}
		return min
	}
	sort.Float64s(nighttime)
	bottom := nighttime[:maxInt(1, len(nighttime)/5)]
	return stats.Mean(bottom)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func detectExerciseSessions(samples []sample) []session {
	const threshold = 100.0
	const minDurationMinutes = 10.0

	var sessions []session
	var current []sample

	flush := func(endingSample *sample) {
		if len(current) == 0 {
			return
		}
		duration := current[len(current)-1].timestamp.Sub(current[0].timestamp).Minutes()
		if duration < minDurationMinutes {
			current = nil
			return
		}
		values := make([]float64, len(current))
		maxBPM := current[0].bpm
		for i, s := range current {
			values[i] = s.bpm
			if s.bpm > maxBPM {
				maxBPM = s.bpm
			}
		}
		recovery := 0.0
		if endingSample != nil {
			recovery = current[len(current)-1].bpm - endingSample.bpm
		}
		sessions = append(sessions, session{
			start:           current[0].timestamp,
			end:             current[len(current)-1].timestamp,
			durationMinutes: duration,
			avgBPM:          stats.Mean(values),
			maxBPM:          maxBPM,
			recoveryBPM1Min: recovery,
		})
		current = nil
	}

	for i := range samples {
		s := samples[i]
		if s.bpm >= threshold {
			current = append(current, s)
		} else {
			flush(&s)
		}
	}
	flush(nil)

	return sessions
}

func zoneDistribution(samples []sample, maxHR float64) map[string]float64 {
	counts := map[string]int{"very_light": 0, "light": 0, "moderate": 0, "hard": 0, "maximum": 0}
	for _, s := range samples {
		pct := s.bpm / maxHR
		switch {
		case pct < 0.60:
			counts["very_light"]++
		case pct < 0.70:
			counts["light"]++
		case pct < 0.80:
			counts["moderate"]++
		case pct < 0.90:
			counts["hard"]++
		default:
			counts["maximum"]++
		}
	}
	total := float64(len(samples))
	dist := make(map[string]float64, len(counts))
	for zone, count := range counts {
		dist[zone] = stats.Round1(float64(count) / total * 100)
	}
	return dist
}

func classifySeverityCounts(samples []sample) (critical, warning, normal, elevated, brady int) {
	for _, s := range samples {
		hour := s.timestamp.Hour()
		switch {
		case s.bpm < 40:
			critical++
		case s.bpm < 60:
			warning++
			if s.bpm < 50 && !(hour >= 22 || hour <= 6) {
				brady++
			}
		case s.bpm <= 100:
			normal++
		case s.bpm <= 120:
			// "elevated/info" per the classification bands; not counted as warning.
		case s.bpm <= 150:
			warning++
			elevated++
		default:
			critical++
			elevated++
		}
	}
	return critical, warning, normal, elevated, brady
}

func fitnessLevel(rhr float64) string {
	switch {
	case rhr < 60:
		return "excellent"
	case rhr <= 70:
		return "good"
	case rhr <= 80:
		return "average"
	default:
		return "below_average"
	}
}

func generateNarrative(samples []sample, restingHR float64, sessions []session, zoneDist map[string]float64, elevated, brady int) string {
	var parts []string

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.bpm
	}
	durationHours := samples[len(samples)-1].timestamp.Sub(samples[0].timestamp).Hours()
	parts = append(parts, fmt.Sprintf(
		"Heart rate data shows %d measurements over %.1f hours with mean heart rate of %.1f bpm.",
		len(samples), durationHours, stats.Round1(stats.Mean(values))))

	switch {
	case restingHR < 60:
		parts = append(parts, fmt.Sprintf(
			"Resting heart rate is excellent at %.0f bpm, indicating good cardiovascular fitness.", restingHR))
	case restingHR <= 70:
		parts = append(parts, fmt.Sprintf("Resting heart rate is good at %.0f bpm.", restingHR))
	case restingHR <= 80:
		parts = append(parts, fmt.Sprintf("Resting heart rate is average at %.0f bpm.", restingHR))
	default:
		parts = append(parts, fmt.Sprintf(
			"Resting heart rate is elevated at %.0f bpm. Consider cardiovascular conditioning to improve fitness.", restingHR))
	}

	if len(sessions) > 0 {
		var totalMinutes float64
		avgValues := make([]float64, len(sessions))
		for i, sess := range sessions {
			totalMinutes += sess.durationMinutes
			avgValues[i] = sess.avgBPM
		}
		parts = append(parts, fmt.Sprintf(
			"Detected %d exercise session(s) totaling %.0f minutes with average exercise heart rate of %.0f bpm.",
			len(sessions), totalMinutes, stats.Mean(avgValues)))

		var recoveries []float64
		for _, sess := range sessions {
			if sess.recoveryBPM1Min != 0 {
				recoveries = append(recoveries, sess.recoveryBPM1Min)
			}
		}
		if len(recoveries) > 0 {
			avgRecovery := stats.Mean(recoveries)
			switch {
			case avgRecovery > 25:
				parts = append(parts, fmt.Sprintf(
					"Heart rate recovery is excellent (avg %.0f bpm drop), indicating strong cardiovascular fitness.", avgRecovery))
			case avgRecovery > 15:
				parts = append(parts, fmt.Sprintf("Heart rate recovery is good (avg %.0f bpm drop).", avgRecovery))
			default:
				parts = append(parts, fmt.Sprintf(
					"Heart rate recovery is fair (avg %.0f bpm drop). Improved fitness may enhance recovery rate.", avgRecovery))
			}
		}
	}

	if elevated > 0 {
		var severe int
		for _, s := range samples {
			if s.bpm > 150 {
				severe++
			}
		}
		if severe > 0 {
			parts = append(parts, fmt.Sprintf(
				"Alert: %d severe tachycardia event(s) detected (>150 bpm). Medical review recommended if not exercise-related.", severe))
		} else {
			parts = append(parts, fmt.Sprintf("%d elevated heart rate reading(s) detected (120-150 bpm).", elevated))
		}
	}

	if brady > 0 {
		parts = append(parts, fmt.Sprintf(
			"%d bradycardia reading(s) detected during waking hours (<50 bpm). This may be normal for well-trained athletes.", brady))
	}

	moderatePlus := zoneDist["moderate"] + zoneDist["hard"] + zoneDist["maximum"]
	if moderatePlus > 20 {
		parts = append(parts, fmt.Sprintf(
			"%.0f%% of time spent in moderate to vigorous intensity zones, indicating active cardiovascular exercise.", moderatePlus))
	}

	return strings.Join(parts, " ")
}
