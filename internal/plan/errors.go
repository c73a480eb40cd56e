package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIdea is returned when an idea is blank after trimming.
	ErrEmptyIdea = errors.New("idea is required")

	// ErrQuotaExceeded is returned when the account has no generations left
	// in the current period. It is a soft condition: callers surface an
	// upgrade prompt rather than a failure page.
	ErrQuotaExceeded = errors.New("plan generation quota exceeded")

	// ErrPlanNotFound is returned when a saved plan does not exist or does
	// not belong to the calling account. The two cases are indistinguishable
	// to the caller.
	ErrPlanNotFound = errors.New("plan not found")
)

// UpstreamError reports a transport-side failure calling the LLM provider.
type UpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: upstream error: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// MalformedResponseError reports an LLM response that arrived but could not
// be parsed into the expected section shape.
type MalformedResponseError struct {
	Op     string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// GenerationError is fatal to an assembly: the overview could not be
// produced, so there is no plan to show.
type GenerationError struct {
	Idea string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate startup plan for %q: %v", e.Idea, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError reports a hosted store read or write failure. It is
// never fatal to the caller's view; reads fall back to the device mirror.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
