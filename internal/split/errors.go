package split

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse means the external payload does not have the
	// shape of a split.
	ErrMalformedResponse = errors.New("malformed split response")

	// ErrEmptyAllocation means the payload assigned the bill to nobody.
	ErrEmptyAllocation = errors.New("empty allocation")
)

const snippetLen = 200

// NormalizeError describes why an external payload was rejected. Use
// errors.Is with ErrMalformedResponse or ErrEmptyAllocation to classify it.
type NormalizeError struct {
	Err     error
	Reason  string
	Snippet string // leading part of the rejected payload
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *NormalizeError) Unwrap() error {
	return e.Err
}

func malformed(payload []byte, format string, args ...any) error {
	return &NormalizeError{
		Err:     ErrMalformedResponse,
		Reason:  fmt.Sprintf(format, args...),
		Snippet: snippet(payload),
	}
}

func snippet(payload []byte) string {
	if len(payload) <= snippetLen {
		return string(payload)
	}
	return string(payload[:snippetLen]) + "..."
}
