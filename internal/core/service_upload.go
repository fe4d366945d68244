package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/ingest"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/logging"
	"github.com/JonMunkholm/catalogsync/internal/store"
)

// Upload sources recorded in the audit log.
const (
	SourceSpreadsheet = "spreadsheet"
	SourcePOS         = "pos"
)

// ImportReceipt acknowledges an accepted spreadsheet.
type ImportReceipt struct {
	JobID    string `json:"jobId"`
	UploadID string `json:"uploadId"`
	Rows     int    `json:"rows"`
}

// ImportSpreadsheet parses and validates an uploaded spreadsheet and queues
// its rows. Every upload is kept in the audit log; a rejected one is stored
// with its issues and the validation error is returned.
func (s *Service) ImportSpreadsheet(ctx context.Context, restaurantID, fileName string, data []byte) (ImportReceipt, error) {
	const op = "import spreadsheet"
	p, err := s.authorize(ctx, op, restaurantID, CapImport)
	if err != nil {
		return ImportReceipt{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return ImportReceipt{}, err
	}
	defer s.limiter.Release()

	logger := logging.WithFields(ctx,
		"restaurant_id", restaurantID,
		"user_id", p.UserID,
		"file_name", fileName,
		"ip", GetIPAddressFromContext(ctx),
		"user_agent", GetUserAgentFromContext(ctx),
	)

	rc, err := s.RestaurantContext(ctx, restaurantID)
	if err != nil {
		return ImportReceipt{}, err
	}

	audit := &store.Upload{
		RestaurantID: restaurantID,
		UserID:       p.UserID,
		Source:       SourceSpreadsheet,
		FileName:     fileName,
		Raw:          data,
	}

	rows, err := s.parse(ctx, rc, data)
	if err != nil {
		audit.Issues = issuesJSON(err)
		if _, rerr := s.records.RecordUpload(ctx, audit); rerr != nil {
			logger.Error("failed to record rejected upload", "error", rerr)
		}
		logger.Info("spreadsheet rejected", "error", err)
		return ImportReceipt{}, err
	}

	audit.RowCount = len(rows)
	uploadID, err := s.records.RecordUpload(ctx, audit)
	if err != nil {
		return ImportReceipt{}, catalog.E(catalog.ErrTransaction, op, err)
	}

	jobID, err := s.enqueue(ctx, op, jobs.Payload{
		JobType:          jobs.TypeSaveCsvData,
		RestaurantID:     restaurantID,
		InitiatingUserID: p.UserID,
		RowItems:         rows,
		UploadID:         uploadID,
	})
	if err != nil {
		return ImportReceipt{}, err
	}
	if err := s.records.AttachJob(ctx, uploadID, jobID); err != nil {
		logger.Warn("failed to link upload to job", "upload_id", uploadID, "job_id", jobID, "error", err)
	}

	logger.Info("spreadsheet queued", "upload_id", uploadID, "job_id", jobID, "rows", len(rows))
	return ImportReceipt{JobID: jobID, UploadID: uploadID, Rows: len(rows)}, nil
}

func (s *Service) parse(ctx context.Context, rc ingest.RestaurantContext, data []byte) ([]catalog.RowItem, error) {
	raw, err := ingest.ParseSpreadsheet(bytes.NewReader(data), rc)
	if err != nil {
		return nil, err
	}
	return s.validator.ValidateRows(ctx, rc, raw)
}

// ValidationIssues lists the row problems carried by a validation error,
// or nil for any other error.
func ValidationIssues(err error) []ingest.ValidationError {
	var (
		list   *ingest.IssueList
		single *ingest.ValidationError
	)
	switch {
	case errors.As(err, &list):
		return list.Issues
	case errors.As(err, &single):
		return []ingest.ValidationError{*single}
	}
	return nil
}

// issuesJSON renders a rejection for the audit log.
func issuesJSON(err error) string {
	issues := ValidationIssues(err)
	if issues == nil {
		issues = []ingest.ValidationError{{Message: err.Error()}}
	}

	b, merr := json.Marshal(issues)
	if merr != nil {
		return err.Error()
	}
	return string(b)
}
