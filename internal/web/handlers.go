package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/catalogsync/internal/core"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
)

// maxJSONBody caps JSON request bodies that are not file uploads.
const maxJSONBody = 8 << 20

// JobResponse is the public view of a job.
type JobResponse struct {
	ID           string          `json:"id"`
	Type         jobs.Type       `json:"type"`
	RestaurantID string          `json:"restaurantId"`
	Status       jobs.Status     `json:"status"`
	Attempts     int             `json:"attempts"`
	Error        string          `json:"error,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

func newJobResponse(j *jobs.Job) JobResponse {
	return JobResponse{
		ID:           j.ID,
		Type:         j.Payload.JobType,
		RestaurantID: j.Payload.RestaurantID,
		Status:       j.Status,
		Attempts:     j.Attempts,
		Error:        j.LastError,
		Summary:      rawJSON(j.Summary),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		FinishedAt:   j.FinishedAt,
	}
}

// acceptedResponse acknowledges queued work.
type acceptedResponse struct {
	JobID string `json:"jobId"`
}

// healthResponse reports queue depth and upload slots.
type healthResponse struct {
	Status  string                   `json:"status"`
	Jobs    map[jobs.Status]int64    `json:"jobs,omitempty"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
	Error   string                   `json:"error,omitempty"`
}

// handleHealth reports ok when the queue can be read.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Uploads: s.service.Limiter().Status()}

	counts, err := s.service.QueueCounts(r.Context())
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = core.MapError(err).Code
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Jobs = counts
	writeJSON(w, http.StatusOK, resp)
}

// handleJobStatus returns one job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseLimit parses the limit query parameter with a default value.
func parseLimit(r *http.Request, defaultVal int) int {
	val := r.URL.Query().Get("limit")
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// rawJSON passes s through when it is JSON and quotes it otherwise.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
