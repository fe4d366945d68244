package core

import (
	"context"
	"io"

	"github.com/JonMunkholm/catalogsync/internal/ingest"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/store"
)

// JobStatus returns a job the caller may see.
func (s *Service) JobStatus(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return nil, classify("job status", err)
	}
	if _, err := s.authorize(ctx, "job status", job.Payload.RestaurantID, CapView); err != nil {
		return nil, err
	}
	return job, nil
}

// Uploads lists the restaurant's most recent uploads.
func (s *Service) Uploads(ctx context.Context, restaurantID string, limit int) ([]store.Upload, error) {
	if _, err := s.authorize(ctx, "list uploads", restaurantID, CapView); err != nil {
		return nil, err
	}
	uploads, err := s.records.ListUploads(ctx, restaurantID, limit)
	if err != nil {
		return nil, classify("list uploads", err)
	}
	return uploads, nil
}

// WriteTemplate writes the spreadsheet header the restaurant's imports
// must use.
func (s *Service) WriteTemplate(ctx context.Context, restaurantID string, w io.Writer) error {
	if _, err := s.authorize(ctx, "template", restaurantID, CapView); err != nil {
		return err
	}
	rc, err := s.RestaurantContext(ctx, restaurantID)
	if err != nil {
		return err
	}
	return ingest.WriteTemplate(w, rc)
}

// QueueCounts reports how many jobs are in each status.
func (s *Service) QueueCounts(ctx context.Context) (map[jobs.Status]int64, error) {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return nil, classify("queue counts", err)
	}
	return counts, nil
}
