package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransport     = errors.New("transport failure")
	ErrProtocol      = errors.New("protocol failure")
	ErrLocalStore    = errors.New("local store failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrCancelled     = errors.New("cancelled")
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrProtocol
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Category returns a short label for the marker carried by err.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrLocalStore):
		return "local_store"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
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
