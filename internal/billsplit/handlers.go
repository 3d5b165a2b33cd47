package billsplit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/billsplit/internal/money"
	"github.com/zombor/billsplit/internal/pricing"
	"github.com/zombor/billsplit/internal/scanning"
	"github.com/zombor/billsplit/internal/split"
)

// maxUploadSize fits full resolution phone photos.
const maxUploadSize = int64(50 << 20)

const couldNotSplit = "could not calculate split"

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	ID        string `json:"id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// splitResponse is a record plus display lines for each person.
type splitResponse struct {
	*Record
	Summary []string `json:"summary,omitempty"`
}

type evenSplitRequest struct {
	Total          float64  `json:"total"`
	NumberOfPeople int      `json:"number_of_people"`
	Names          []string `json:"names"`
}

type validateSplitRequest struct {
	Individuals   []split.Individual `json:"individuals"`
	ExpectedTotal float64            `json:"expected_total"`
	Tolerance     *float64           `json:"tolerance"`
}

type computedSplitResponse struct {
	Split      *split.BillSplit `json:"split"`
	Validation split.Validation `json:"validation"`
	Summary    []string         `json:"summary"`
}

type priceCheckRequest struct {
	Comparisons      []pricing.Comparison `json:"comparisons"`
	ThresholdPercent float64              `json:"threshold_percent"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

// summarize renders one display line per person.
func (s *Server) summarize(result *split.BillSplit) []string {
	if result == nil {
		return nil
	}
	lines := make([]string, len(result.Individuals))
	for i, ind := range result.Individuals {
		lines[i] = fmt.Sprintf("%s owes %s", ind.Name, money.Format(ind.Owed, s.currency))
	}
	return lines
}

// writeSplitError maps service errors to responses. Failed model answers
// carry the record id so the client can offer a retry.
func (s *Server) writeSplitError(w http.ResponseWriter, err error) {
	var failed *FailedSplitError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Split not found")
	case errors.As(err, &failed):
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, scanning.ErrRateLimited):
			code = http.StatusTooManyRequests
		case errors.Is(err, split.ErrMalformedResponse), errors.Is(err, split.ErrEmptyAllocation):
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, errorResponse{
			Error:     couldNotSplit,
			Detail:    failed.Err.Error(),
			ID:        failed.RecordID,
			Retryable: true,
		})
	default:
		slog.Error("Error handling split request", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateSplit accepts a multipart upload with the receipt in "file",
// the split instructions in "instructions" and an optional
// "tip_percentage".
func (s *Server) handleCreateSplit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
			return
		}
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No receipt image was provided.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	tip := 0.0
	if raw := strings.TrimSpace(r.FormValue("tip_percentage")); raw != "" {
		tip, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "tip_percentage must be a number")
			return
		}
	}

	record, err := s.service.CreateSplit(r.Context(), header.Filename, data,
		contentTypeOf(header.Header.Get("Content-Type"), header.Filename),
		r.FormValue("instructions"), tip)
	if err != nil {
		s.writeSplitError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, splitResponse{Record: record, Summary: s.summarize(record.Split)})
}

// contentTypeOf prefers the declared part type and falls back to the
// file extension.
func contentTypeOf(declared, filename string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleRegenerateSplit(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.RegenerateSplit(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeSplitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, splitResponse{Record: record, Summary: s.summarize(record.Split)})
}

func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListSplits()
	if err != nil {
		slog.Error("Error listing splits", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetSplit(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetSplit(r.PathValue("id"))
	if err != nil {
		s.writeSplitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, splitResponse{Record: record, Summary: s.summarize(record.Split)})
}

func (s *Server) handleGetSplitFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetSplitImage(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDeleteSplit(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSplit(r.PathValue("id")); err != nil {
		s.writeSplitError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvenSplit(w http.ResponseWriter, r *http.Request) {
	var req evenSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, validation, err := s.service.EvenSplit(req.Total, req.NumberOfPeople, req.Names)
	if err != nil {
		s.writeSplitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, computedSplitResponse{
		Split:      result,
		Validation: validation,
		Summary:    s.summarize(result),
	})
}

func (s *Server) handleValidateSplit(w http.ResponseWriter, r *http.Request) {
	var req validateSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.service.ValidateSplit(req.Individuals, req.ExpectedTotal, req.Tolerance))
}

func (s *Server) handlePriceCheck(w http.ResponseWriter, r *http.Request) {
	var req priceCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Comparisons) == 0 {
		writeError(w, http.StatusBadRequest, "At least one price comparison is required")
		return
	}
	writeJSON(w, http.StatusOK, s.service.CheckPrices(req.Comparisons, req.ThresholdPercent))
}
