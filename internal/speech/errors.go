package speech

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/auraread/speech-service/internal/core"
)

const (
	allFailedPrefix  = "All TTS engines failed: "
	noEnginesMessage = "no speech engines are available"
	attemptSeparator = "; "
	rateLimitCode    = "429"
	rateLimitPhrase  = "too many requests"
)

var (
	// ErrEmptyText is returned when a request carries no text to speak.
	ErrEmptyText = errors.New("no text provided")
	// ErrRateLimited marks a failure caused by a remote service throttling requests.
	ErrRateLimited = errors.New("speech service rate limit reached")
	// ErrTimeout is recorded when a backend does not finish within its time budget.
	ErrTimeout = errors.New("speech engine timed out")
	// ErrCancelled is returned when the caller's context ends before any backend succeeded.
	ErrCancelled = errors.New("speech generation cancelled")
)

// ErrorKind is the caller-facing category of a synthesis failure.
type ErrorKind int

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown ErrorKind = iota
	// KindValidation means the request was rejected before any engine ran.
	KindValidation
	// KindRateLimited means a remote engine throttled the request.
	KindRateLimited
	// KindEngineFailure means every engine failed for other reasons.
	KindEngineFailure
	// KindCancelled means the caller gave up before an engine succeeded.
	KindCancelled
)

// EngineError is the failure of a single backend attempt.
type EngineError struct {
	Engine string
	Kind   core.Kind
	Err    error
}

func (e *EngineError) Error() string {
	return e.Engine + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// AllEnginesFailedError is returned when every backend in the attempt order failed.
type AllEnginesFailedError struct {
	Attempts []*EngineError
}

func (e *AllEnginesFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return allFailedPrefix + noEnginesMessage
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, attempt.Error())
	}

	return allFailedPrefix + strings.Join(parts, attemptSeparator)
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *AllEnginesFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		errs = append(errs, attempt)
	}

	return errs
}

// Engines lists the attempted engine names in attempt order.
func (e *AllEnginesFailedError) Engines() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		names = append(names, attempt.Engine)
	}

	return names
}

// Classify maps an error returned by the orchestrator to its caller-facing kind.
//
// Rate limiting is recognised through ErrRateLimited first. Remote engines that cannot
// report a status code are covered by a best-effort search for "429" or "Too Many Requests"
// in their messages. On-host engines and filesystem errors are left out of that search
// because their messages carry program output and temp file names.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrEmptyText):
		return KindValidation
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}

	var allFailed *AllEnginesFailedError
	if !errors.As(err, &allFailed) {
		return KindUnknown
	}

	for _, attempt := range allFailed.Attempts {
		if mentionsRateLimit(attempt) {
			return KindRateLimited
		}
	}

	return KindEngineFailure
}

func mentionsRateLimit(attempt *EngineError) bool {
	if attempt.Kind != core.KindRemote || attempt.Err == nil {
		return false
	}

	var pathErr *fs.PathError
	if errors.As(attempt.Err, &pathErr) {
		return false
	}

	message := strings.ToLower(attempt.Err.Error())

	return strings.Contains(message, rateLimitCode) || strings.Contains(message, rateLimitPhrase)
}
