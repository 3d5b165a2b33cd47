package scanning

import (
	"context"
	"errors"
)

// ErrRateLimited is returned when the model provider refuses the request
// for quota reasons. The caller may retry later.
var ErrRateLimited = errors.New("model provider rate limit exceeded")

// Request is one bill split request for the model.
type Request struct {
	Image         []byte
	ContentType   string
	Instructions  string
	TipPercentage float64
}

// Splitter asks a vision model to assign receipt items to people.
type Splitter interface {
	// SplitBill returns the model's JSON payload with any surrounding
	// markdown or prose removed. The payload is not validated.
	SplitBill(ctx context.Context, req Request) ([]byte, error)
	// Close releases the provider client.
	Close() error
}
