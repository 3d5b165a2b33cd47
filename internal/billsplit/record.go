package billsplit

import (
	"time"

	"github.com/zombor/billsplit/internal/split"
)

// Status is the outcome of the latest split attempt for a record.
type Status string

const (
	// StatusOK means the allocation conserves the receipt total.
	StatusOK Status = "ok"
	// StatusMismatch means the allocation is shown but its owed amounts
	// do not add up to the total within tolerance.
	StatusMismatch Status = "mismatch"
	// StatusFailed means no attempt has produced a usable allocation yet.
	// The user may regenerate.
	StatusFailed Status = "failed"
)

// Record is one split request and its latest usable result. Error holds
// the failure of the latest attempt; a record that had an allocation keeps
// it and its status when a regeneration fails.
type Record struct {
	ID            string            `json:"id"`
	Instructions  string            `json:"instructions"`
	TipPercentage float64           `json:"tip_percentage"`
	Filename      string            `json:"filename"`
	ContentType   string            `json:"content_type"`
	Status        Status            `json:"status"`
	Split         *split.BillSplit  `json:"split,omitempty"`
	Validation    *split.Validation `json:"validation,omitempty"`
	Error         string            `json:"error,omitempty"`
	Attempts      int               `json:"attempts"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
