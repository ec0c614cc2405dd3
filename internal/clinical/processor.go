// Package clinical defines the narrow Processor contract every health-domain
// processor implements, and the record-level validation summary it
// receives alongside raw Avro records.
package clinical

import (
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

// ValidationResult is the data-quality assessment handed to a processor
// alongside the parsed records, carrying the score C7/C1 record verbatim.
type ValidationResult struct {
	IsValid      bool
	QualityScore float64
	Issues       []string
}

// Processor is satisfied by each of the six clinical processors. Instances
// are stateless after Initialize and safe for concurrent use across
// messages of the same record_type.
type Processor interface {
	Initialize() error
	Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation ValidationResult) envelope.ClinicalResult
	Cleanup() error
}
