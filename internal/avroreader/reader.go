// Package avroreader decodes Avro object-container files into ordered
// record maps (C4), surfacing unreadable containers as schema errors and
// field-shape mismatches as validation errors.
package avroreader

import (
	"bytes"
	"fmt"

	"github.com/hamba/avro/v2/ocf"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// anchorFields names, per record type, the fields a well-formed record must
// carry. This is deliberately narrow — just enough to catch a file parsed
// against the wrong record_type — not a full schema validator.
var anchorFields = map[envelope.RecordType][]string{
	envelope.BloodGlucoseRecord:              {"value_mg_dL", "timestamp"},
	envelope.HeartRateRecord:                 {"samples"},
	envelope.SleepSessionRecord:              {"start", "end", "stages"},
	envelope.StepsRecord:                     {"step_count", "timestamp"},
	envelope.ActiveCaloriesBurnedRecord:      {"calories", "timestamp"},
	envelope.HeartRateVariabilityRmssdRecord: {"rmssd_ms", "timestamp"},
}

// Reader parses Avro OCF byte buffers into record maps.
type Reader struct {
	log logger.Logger
}

// New constructs a Reader.
func New(log logger.Logger) *Reader {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Reader{log: log.WithComponent("avroreader")}
}

// ParseRecords decodes avroData and, if expectedType is non-empty, validates
// that the first decoded record carries that type's anchor fields.
func (r *Reader) ParseRecords(avroData []byte, expectedType envelope.RecordType) ([]map[string]interface{}, error) {
	r.log.Info("parsing_avro_file", "data_size", len(avroData), "expected_type", string(expectedType))

	dec, err := ocf.NewDecoder(bytes.NewReader(avroData))
	if err != nil {
		r.log.Error("avro_container_unreadable", "error", err.Error())
		return nil, errkind.New("parse_records", errkind.Schema,
			fmt.Errorf("unreadable avro container: %v: %w", err, errkind.ErrSchema))
	}

	var records []map[string]interface{}
	for dec.HasNext() {
		var rec map[string]interface{}
		if err := dec.Decode(&rec); err != nil {
			r.log.Error("avro_decode_error", "error", err.Error())
			return nil, errkind.New("parse_records", errkind.Schema,
				fmt.Errorf("decode record: %v: %w", err, errkind.ErrSchema))
		}
		records = append(records, rec)
	}
	if err := dec.Error(); err != nil {
		r.log.Error("avro_stream_error", "error", err.Error())
		return nil, errkind.New("parse_records", errkind.Schema,
			fmt.Errorf("stream error: %v: %w", err, errkind.ErrSchema))
	}

	if len(records) == 0 {
		r.log.Warn("no_records_found_in_avro_file")
		return records, nil
	}

	if expectedType != "" {
		if err := validateRecordType(records, expectedType); err != nil {
			return nil, err
		}
	}

	r.log.Info("avro_records_parsed", "record_count", len(records))
	return records, nil
}

// validateRecordType checks the first record against expectedType's anchor
// fields, failing with a validation-kind error on mismatch.
func validateRecordType(records []map[string]interface{}, expectedType envelope.RecordType) error {
	required, known := anchorFields[expectedType]
	if !known {
		return errkind.New("parse_records", errkind.Processing,
			fmt.Errorf("no anchor fields registered for record_type %q", expectedType))
	}

	first := records[0]
	for _, field := range required {
		if _, ok := first[field]; !ok {
			return errkind.New("parse_records", errkind.Validation,
				fmt.Errorf("record missing expected field %q for record_type %q: %w", field, expectedType, errkind.ErrValidation))
		}
	}
	return nil
}
