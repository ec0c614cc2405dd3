package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"

	"github.com/minio/minio-go/v7"
)

func kindOf(t *testing.T, err error) errkind.Kind {
	t.Helper()
	var classified *errkind.Classified
	if ce, ok := err.(*errkind.Classified); ok {
		classified = ce
	} else {
		t.Fatalf("expected *errkind.Classified, got %T", err)
	}
	return classified.Kind
}

func TestClassifyMinioErrorMapsProviderCodes(t *testing.T) {
	cases := []struct {
		code string
		want errkind.Kind
	}{
		{"NoSuchKey", errkind.NotFound},
		{"NoSuchBucket", errkind.NotFound},
		{"AccessDenied", errkind.Auth},
		{"SlowDown", errkind.RateLimit},
		{"RequestLimitExceeded", errkind.RateLimit},
		{"RequestTimeout", errkind.Timeout},
		{"InternalError", errkind.Network},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := classifyMinioError("get", "some/key", minio.ErrorResponse{Code: tc.code})
			assert.Equal(t, tc.want, kindOf(t, err))
		})
	}
}
