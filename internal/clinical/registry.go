package clinical

import (
	"fmt"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/activecalories"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/bloodglucose"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/heartrate"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/hrv"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/sleep"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/steps"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
)

// constructors is the static record_type → Processor factory table. Every
// entry here corresponds to one of the six closed record types; there is
// deliberately no fallback or mock processor for unknown types.
var constructors = map[envelope.RecordType]func() Processor{
	envelope.BloodGlucoseRecord:              func() Processor { return bloodglucose.New() },
	envelope.HeartRateRecord:                 func() Processor { return heartrate.New() },
	envelope.SleepSessionRecord:              func() Processor { return sleep.New() },
	envelope.StepsRecord:                     func() Processor { return steps.New() },
	envelope.ActiveCaloriesBurnedRecord:      func() Processor { return activecalories.New() },
	envelope.HeartRateVariabilityRmssdRecord: func() Processor { return hrv.New() },
}

// Registry resolves a record type to a freshly constructed, initialized
// Processor.
type Registry struct{}

// NewRegistry builds the static processor registry.
func NewRegistry() *Registry { return &Registry{} }

// ForRecordType returns a new, initialized Processor for rt, or a
// processing-kind error if rt is outside the closed taxonomy.
func (r *Registry) ForRecordType(rt envelope.RecordType) (Processor, error) {
	ctor, ok := constructors[rt]
	if !ok {
		return nil, errkind.New("registry.ForRecordType", errkind.Processing,
			fmt.Errorf("no clinical processor registered for record type %q", rt))
	}
	proc := ctor()
	if err := proc.Initialize(); err != nil {
		return nil, errkind.New("registry.ForRecordType", errkind.Processing,
			fmt.Errorf("initializing processor for %q: %w", rt, err))
	}
	return proc, nil
}
