package billsplit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/billsplit/internal/money"
	"github.com/zombor/billsplit/internal/pricing"
	"github.com/zombor/billsplit/internal/scanning"
	"github.com/zombor/billsplit/internal/split"
)

// ErrInvalidRequest marks input the caller must fix before retrying.
var ErrInvalidRequest = errors.New("invalid request")

// FailedSplitError is returned when the model could not produce a usable
// allocation. The request was stored under RecordID and can be regenerated.
type FailedSplitError struct {
	RecordID string
	Err      error
}

func (e *FailedSplitError) Error() string {
	return fmt.Sprintf("split %s failed: %v", e.RecordID, e.Err)
}

func (e *FailedSplitError) Unwrap() error {
	return e.Err
}

// IDGenerator generates record IDs.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// Service runs split requests end to end.
type Service struct {
	db          DB
	splitter    scanning.Splitter
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	tolerance   float64
}

// NewService creates a Service with uuid IDs and the system clock.
func NewService(db DB, splitter scanning.Splitter, storage Storage, tolerance float64) *Service {
	return NewServiceWithDeps(db, splitter, storage, tolerance, uuidGenerator{}, systemTime{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, splitter scanning.Splitter, storage Storage, tolerance float64, idGen IDGenerator, timeSrc TimeSource) *Service {
	if tolerance < 0 {
		tolerance = split.DefaultTolerance
	}
	return &Service{
		db:          db,
		splitter:    splitter,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		tolerance:   tolerance,
	}
}

// Tolerance is the conservation tolerance applied to every split.
func (s *Service) Tolerance() float64 {
	return s.tolerance
}

// CreateSplit stores the receipt image, asks the model for an allocation
// and stores the checked result.
func (s *Service) CreateSplit(ctx context.Context, filename string, data []byte, contentType, instructions string, tipPercentage float64) (*Record, error) {
	instructions = strings.TrimSpace(instructions)
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: receipt image is empty", ErrInvalidRequest)
	case instructions == "":
		return nil, fmt.Errorf("%w: split instructions are required", ErrInvalidRequest)
	case tipPercentage < 0 || tipPercentage > 100:
		return nil, fmt.Errorf("%w: tip percentage must be between 0 and 100", ErrInvalidRequest)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	record := &Record{
		ID:            id,
		Instructions:  instructions,
		TipPercentage: tipPercentage,
		Filename:      savedPath,
		ContentType:   contentType,
		CreatedAt:     now,
	}

	splitErr := s.run(ctx, record, data)
	if err := s.db.SaveSplit(record); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("saving split to database: %w", err)
	}
	if splitErr != nil {
		return nil, &FailedSplitError{RecordID: id, Err: splitErr}
	}
	return record, nil
}

// RegenerateSplit asks the model again with the stored image, instructions
// and tip.
func (s *Service) RegenerateSplit(ctx context.Context, id string) (*Record, error) {
	record, err := s.db.GetSplit(id)
	if err != nil {
		return nil, fmt.Errorf("getting split: %w", err)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, fmt.Errorf("getting receipt file: %w", err)
	}

	splitErr := s.run(ctx, record, data)
	if err := s.db.SaveSplit(record); err != nil {
		return nil, fmt.Errorf("saving split to database: %w", err)
	}
	if splitErr != nil {
		return nil, &FailedSplitError{RecordID: id, Err: splitErr}
	}
	return record, nil
}

// run performs one model call and updates record with the outcome. A
// failed attempt keeps any allocation from an earlier attempt.
func (s *Service) run(ctx context.Context, record *Record, data []byte) error {
	record.Attempts++
	record.UpdatedAt = s.timeSource.Now()

	result, validation, err := s.attempt(ctx, record, data)
	if err != nil {
		record.Error = err.Error()
		if record.Split == nil {
			record.Status = StatusFailed
		}
		return err
	}

	record.Split = result
	record.Validation = &validation
	record.Error = ""
	record.Status = StatusOK
	outcome := outcomeOK
	if !validation.IsValid {
		record.Status = StatusMismatch
		outcome = outcomeMismatch
		slog.Warn("Split does not add up to the receipt total",
			"id", record.ID,
			"total", result.Total,
			"difference", validation.Difference,
			"tolerance", s.tolerance,
		)
	}
	splitOutcomes.WithLabelValues(outcome).Inc()
	splitDifference.Observe(validation.Difference)
	return nil
}

// attempt asks the model for a split of record and checks the answer.
func (s *Service) attempt(ctx context.Context, record *Record, data []byte) (*split.BillSplit, split.Validation, error) {
	payload, err := s.splitter.SplitBill(ctx, scanning.Request{
		Image:         data,
		ContentType:   record.ContentType,
		Instructions:  record.Instructions,
		TipPercentage: record.TipPercentage,
	})
	if err != nil {
		outcome := outcomeProviderFail
		if errors.Is(err, scanning.ErrRateLimited) {
			outcome = outcomeRateLimited
		}
		splitOutcomes.WithLabelValues(outcome).Inc()
		slog.Error("Failed to split bill",
			"id", record.ID,
			"content_type", record.ContentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, split.Validation{}, fmt.Errorf("splitting bill: %w", err)
	}

	result, validation, err := s.allocate(payload, record.TipPercentage)
	if err != nil {
		outcome := outcomeMalformed
		if errors.Is(err, split.ErrEmptyAllocation) {
			outcome = outcomeEmpty
		}
		splitOutcomes.WithLabelValues(outcome).Inc()
		slog.Error("Rejected split response", "id", record.ID, "error", err)
		return nil, split.Validation{}, err
	}
	return result, validation, nil
}

// allocate normalizes payload and computes the final allocation. Tax is
// what the model attributed in total; the tip is recomputed from the
// requested percentage.
func (s *Service) allocate(payload []byte, tipPercentage float64) (*split.BillSplit, split.Validation, error) {
	draft, err := split.Normalize(payload)
	if err != nil {
		return nil, split.Validation{}, err
	}

	pools := split.Pools{Tax: draft.DeclaredTax()}
	if tipPercentage > 0 {
		pools.Tip = money.TipFromPercentage(draft.GroupSubtotal(), tipPercentage)
	}

	result := split.Allocate(draft, pools)
	return result, split.Validate(result.Individuals, result.Total, s.tolerance), nil
}

// EvenSplit divides total equally. Without names, people are called
// "Person 1" to "Person N".
func (s *Service) EvenSplit(total float64, numberOfPeople int, names []string) (*split.BillSplit, split.Validation, error) {
	if total < 0 {
		return nil, split.Validation{}, fmt.Errorf("%w: total cannot be negative", ErrInvalidRequest)
	}
	if numberOfPeople <= 0 {
		numberOfPeople = len(names)
	}
	if numberOfPeople <= 0 {
		return nil, split.Validation{}, fmt.Errorf("%w: at least one person is required", ErrInvalidRequest)
	}
	if len(names) == 0 {
		names = make([]string, numberOfPeople)
		for i := range names {
			names[i] = fmt.Sprintf("Person %d", i+1)
		}
	}

	result := &split.BillSplit{
		Total:       money.Round(total),
		Individuals: split.Even(total, numberOfPeople, names),
	}
	validation := split.Validate(result.Individuals, result.Total, s.tolerance)
	splitOutcomes.WithLabelValues(outcomeEven).Inc()
	return result, validation, nil
}

// ValidateSplit checks a caller-supplied allocation. A nil tolerance uses
// the service tolerance; zero demands an exact match.
func (s *Service) ValidateSplit(individuals []split.Individual, expectedTotal float64, tolerance *float64) split.Validation {
	limit := s.tolerance
	if tolerance != nil {
		limit = *tolerance
	}
	return split.Validate(individuals, expectedTotal, limit)
}

// CheckPrices scores receipt prices against market averages.
func (s *Service) CheckPrices(comparisons []pricing.Comparison, thresholdPercent float64) pricing.Report {
	return pricing.Check(comparisons, thresholdPercent)
}

// GetSplit retrieves a record by ID.
func (s *Service) GetSplit(id string) (*Record, error) {
	record, err := s.db.GetSplit(id)
	if err != nil {
		return nil, fmt.Errorf("getting split: %w", err)
	}
	return record, nil
}

// ListSplits returns all records, newest first.
func (s *Service) ListSplits() ([]*Record, error) {
	records, err := s.db.ListSplits()
	if err != nil {
		return nil, fmt.Errorf("listing splits: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteSplit removes a record and its receipt image.
func (s *Service) DeleteSplit(id string) error {
	record, err := s.db.GetSplit(id)
	if err != nil {
		return fmt.Errorf("getting split for deletion: %w", err)
	}

	if err := s.storage.Delete(record.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
	}

	if err := s.db.DeleteSplit(id); err != nil {
		return fmt.Errorf("deleting split from database: %w", err)
	}
	return nil
}

// GetSplitImage returns the stored receipt image and its content type.
func (s *Service) GetSplitImage(id string) ([]byte, string, error) {
	record, err := s.db.GetSplit(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting split: %w", err)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, record.ContentType, nil
}
