package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrUpstream      = errors.New("upstream error")
	ErrTimeout       = errors.New("timeout")
	ErrPrecondition  = errors.New("precondition error")
	ErrIO            = errors.New("io error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether an error is worth another synthesis attempt.
// Timeouts count as retryable upstream failures; validation and precondition
// errors never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPrecondition), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUpstream):
		return true
	default:
		return true
	}
}

// PreconditionError reports segments that block an operation, by index.
type PreconditionError struct {
	Operation string
	Missing   []int
}

// NewPreconditionError builds a PreconditionError with a sorted, deduplicated
// index list.
func NewPreconditionError(operation string, indices []int) *PreconditionError {
	seen := make(map[int]struct{}, len(indices))
	cleaned := make([]int, 0, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		cleaned = append(cleaned, idx)
	}
	sort.Ints(cleaned)
	return &PreconditionError{Operation: operation, Missing: cleaned}
}

func (e *PreconditionError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, idx := range e.Missing {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	op := strings.TrimSpace(e.Operation)
	if op == "" {
		op = "operation"
	}
	return fmt.Sprintf("%s blocked by incomplete segments [%s]", op, strings.Join(parts, ", "))
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// Detail captures the user-facing portion of a stage error.
type Detail struct {
	Message string
}

// Details extracts a human-readable message from a wrapped stage error,
// stripping the sentinel prefix.
func Details(err error) Detail {
	if err == nil {
		return Detail{}
	}
	message := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrUpstream, ErrTimeout, ErrPrecondition, ErrIO, ErrConfiguration, ErrNotFound} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return Detail{Message: strings.TrimSpace(message)}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
