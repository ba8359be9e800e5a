// Package apperr holds the error types shared by the analysis client and
// the realtime bridge. Callers match them with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// PermissionError indicates that a capture device could not be opened,
// usually because the user denied access or no device was offered.
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permission denied for %s", e.Device)
	}
	return fmt.Sprintf("permission denied for %s: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

var _ error = (*PermissionError)(nil)

// TransportError indicates a failed network operation against the model
// provider. StatusCode is zero when no HTTP response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var _ error = (*TransportError)(nil)

// FormatError indicates that a response did not match the expected
// structure. Raw keeps the offending payload for diagnostics.
type FormatError struct {
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid report format: %v", e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

var _ error = (*FormatError)(nil)

// Kind returns a short stable label for err, used in API responses and
// metric labels.
func Kind(err error) string {
	var (
		perm      *PermissionError
		transport *TransportError
		format    *FormatError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perm):
		return "permission"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &format):
		return "format"
	default:
		return "internal"
	}
}
