package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/store"
)

// importRequest carries rows already in the internal row shape.
type importRequest struct {
	Rows []catalog.RowItem `json:"rows"`
}

// posSyncRequest queues a POS import. Without rows the worker fetches the
// merchant inventory with the stored credential.
type posSyncRequest struct {
	CredentialsID string            `json:"credentialsId"`
	Rows          []catalog.RowItem `json:"rows,omitempty"`
}

// UploadResponse is the public view of an audited upload.
type UploadResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId,omitempty"`
	JobID     string          `json:"jobId,omitempty"`
	Source    string          `json:"source"`
	FileName  string          `json:"fileName"`
	RowCount  int             `json:"rowCount"`
	Issues    json.RawMessage `json:"issues,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newUploadResponse(u store.Upload) UploadResponse {
	return UploadResponse{
		ID:        u.ID,
		UserID:    u.UserID,
		JobID:     u.JobID,
		Source:    u.Source,
		FileName:  u.FileName,
		RowCount:  u.RowCount,
		Issues:    rawJSON(u.Issues),
		CreatedAt: u.CreatedAt,
	}
}

// handleImport queues rows sent as JSON.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	jobID, err := s.service.EnqueueCatalogImport(r.Context(), chi.URLParam(r, "restaurantID"), req.Rows)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{JobID: jobID})
}

// handleUpload accepts a spreadsheet as multipart field "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20) // room for the multipart envelope

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize))
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		respondError(w, r, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx := r.Context()
	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	receipt, err := s.service.ImportSpreadsheet(ctx, chi.URLParam(r, "restaurantID"), header.Filename, data)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

// handleListUploads returns the most recent audited uploads.
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.service.Uploads(r.Context(), chi.URLParam(r, "restaurantID"), parseLimit(r, 50))
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]UploadResponse, len(uploads))
	for i, u := range uploads {
		resp[i] = newUploadResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTemplate downloads the restaurant's spreadsheet header row.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")

	var buf bytes.Buffer
	if err := s.service.WriteTemplate(r.Context(), restaurantID, &buf); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", restaurantID+"-catalog-template.csv"))
	_, _ = w.Write(buf.Bytes())
}

// handlePosSync queues a point-of-sale import.
func (s *Server) handlePosSync(w http.ResponseWriter, r *http.Request) {
	var req posSyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	jobID, err := s.service.EnqueuePosSync(r.Context(), chi.URLParam(r, "restaurantID"), req.Rows, req.CredentialsID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{JobID: jobID})
}
