package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage error")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("version conflict")
	ErrMaxRetries = errors.New("max retries exceeded")
	ErrTimeout    = errors.New("timeout")
	ErrTransient  = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failed operation should be retried with a
// bounded budget. Validation and not-found failures are permanent for the
// affected item; storage, timeout, and transient failures are worth retrying.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrMaxRetries):
		return false
	case errors.Is(err, ErrStorage), errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient), errors.Is(err, ErrConflict):
		return true
	default:
		return true
	}
}

// IsNotFound reports whether err carries the not-found marker.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err carries the version-conflict marker.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
