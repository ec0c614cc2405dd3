package objectstore

import (
	"errors"
	"fmt"

	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"

	"github.com/minio/minio-go/v7"
)

// classifyMinioError translates the SDK's typed error-response codes
// directly into the closed error-kind taxonomy, the same one-to-one
// mapping the reference storage client applies to its provider's error
// codes rather than parsing messages.
func classifyMinioError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)

	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return errkind.New(op, errkind.NotFound, fmt.Errorf("object not found: %s: %w", key, errkind.ErrNotFound))
	case "AccessDenied":
		return errkind.New(op, errkind.Auth, fmt.Errorf("access denied: %s: %w", key, errkind.ErrAuth))
	case "SlowDown", "RequestLimitExceeded", "TooManyRequests":
		return errkind.New(op, errkind.RateLimit, fmt.Errorf("rate limited: %s: %w", key, errkind.ErrRateLimit))
	case "RequestTimeout":
		return errkind.New(op, errkind.Timeout, fmt.Errorf("timed out: %s: %w", key, errkind.ErrTimeout))
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errkind.New(op, errkind.Timeout, fmt.Errorf("%s: %w", key, errkind.ErrTimeout))
	}

	return errkind.New(op, errkind.Network, fmt.Errorf("%s: %s: %v: %w", op, key, err, errkind.ErrNetwork))
}
