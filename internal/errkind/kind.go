// Package errkind classifies engine errors into a closed taxonomy and
// derives the retry/quarantine/dead-letter/alert policy from it.
package errkind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// Kind is one of the closed set of error classifications the consumer acts
// on. Never extend this set without also updating ShouldRetry/ShouldQuarantine.
type Kind string

const (
	Network      Kind = "network"
	RateLimit    Kind = "rate_limit"
	Resource     Kind = "resource"
	Timeout      Kind = "timeout"
	DataQuality  Kind = "data_quality"
	Validation   Kind = "validation"
	Schema       Kind = "schema"
	NotFound     Kind = "not_found"
	Auth         Kind = "auth"
	Processing   Kind = "processing"
)

// Action is the recommended disposition for a classified error.
type Action string

const (
	ActionRetry      Action = "retry"
	ActionQuarantine Action = "quarantine"
	ActionDeadLetter Action = "dead_letter"
	ActionAlert      Action = "alert"
)

var retriable = map[Kind]bool{
	Network:   true,
	RateLimit: true,
	Resource:  true,
	Timeout:   true,
}

var quarantinable = map[Kind]bool{
	DataQuality: true,
	Validation:  true,
	Schema:      true,
}

// Sentinel errors that domain packages wrap with fmt.Errorf("%w") so
// Classify can recover the original kind via errors.Is regardless of how
// many layers of context were added on top.
var (
	ErrNetwork     = errors.New("network error")
	ErrRateLimit   = errors.New("rate limited")
	ErrResource    = errors.New("resource exhausted")
	ErrTimeout     = errors.New("operation timed out")
	ErrDataQuality = errors.New("data quality below threshold")
	ErrValidation  = errors.New("validation failed")
	ErrSchema      = errors.New("unreadable schema")
	ErrNotFound    = errors.New("object not found")
	ErrAuth        = errors.New("authentication/authorization failed")
)

// Classified wraps an underlying error with an explicit Kind, the way
// FrameworkError wraps a sentinel error with operation context.
type Classified struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Classified) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Classified) Unwrap() error { return e.Err }

// New builds a Classified error, the standard way domain code should raise
// an already-known-kind failure.
func New(op string, kind Kind, err error) *Classified {
	return &Classified{Op: op, Kind: kind, Err: err}
}

// Classify maps an arbitrary error onto the closed Kind taxonomy. A
// *Classified error reports its own Kind directly; otherwise the sentinel
// errors are checked via errors.Is, falling back to substring hints on the
// message, and finally defaulting to Processing with a warning log — the
// same precedence the reference classifier uses.
func Classify(log logger.Logger, err error) Kind {
	var classified *Classified
	if errors.As(err, &classified) {
		return classified.Kind
	}

	switch {
	case errors.Is(err, ErrNetwork):
		return Network
	case errors.Is(err, ErrRateLimit):
		return RateLimit
	case errors.Is(err, ErrResource):
		return Resource
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrDataQuality):
		return DataQuality
	case errors.Is(err, ErrValidation):
		return Validation
	case errors.Is(err, ErrSchema):
		return Schema
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrAuth):
		return Auth
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection"):
		return Network
	case strings.Contains(msg, "rate limit"):
		return RateLimit
	}

	if log != nil {
		log.Warn("unclassified_error_defaulting_to_processing",
			"error", err.Error())
	}
	return Processing
}

// ShouldRetry reports whether a classified error warrants another attempt
// given how many retries have already happened.
func ShouldRetry(kind Kind, retryCount, maxRetries int) bool {
	return retriable[kind] && retryCount < maxRetries
}

// ShouldQuarantine reports whether data associated with a classified error
// should be moved to the quarantine prefix rather than retried.
func ShouldQuarantine(kind Kind) bool {
	return quarantinable[kind]
}

// RetryDelay returns the delay in seconds for the given retry attempt,
// clamping to the last configured delay once the schedule is exhausted.
func RetryDelay(delays []int, retryCount int) int {
	if len(delays) == 0 {
		return 0
	}
	idx := retryCount
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return delays[idx]
}

// DecideAction derives the operational action for a classified error,
// mirroring the reference's precedence: quarantine first, then retry, then
// alert for auth failures, and dead-letter for everything else.
func DecideAction(kind Kind, retryCount, maxRetries int) Action {
	switch {
	case ShouldQuarantine(kind):
		return ActionQuarantine
	case ShouldRetry(kind, retryCount, maxRetries):
		return ActionRetry
	case kind == Auth:
		return ActionAlert
	default:
		return ActionDeadLetter
	}
}
