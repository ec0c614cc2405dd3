package clinical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
)

func TestForRecordTypeResolvesAllSixTypes(t *testing.T) {
	r := NewRegistry()
	types := []envelope.RecordType{
		envelope.BloodGlucoseRecord,
		envelope.HeartRateRecord,
		envelope.SleepSessionRecord,
		envelope.StepsRecord,
		envelope.ActiveCaloriesBurnedRecord,
		envelope.HeartRateVariabilityRmssdRecord,
	}
	for _, rt := range types {
		proc, err := r.ForRecordType(rt)
		require.NoError(t, err, "record type %s", rt)
		assert.NotNil(t, proc)
	}
}

func TestForRecordTypeRejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.ForRecordType(envelope.RecordType("SomethingElseRecord"))
	require.Error(t, err)

	var classified *errkind.Classified
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, errkind.Processing, classified.Kind)
}
