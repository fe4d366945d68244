package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Upload is one raw upload kept for audit, whether or not it was accepted.
type Upload struct {
	ID           string
	RestaurantID string
	UserID       string
	JobID        string
	Source       string
	FileName     string
	Raw          []byte
	RowCount     int
	Issues       string
	CreatedAt    time.Time
}

// RecordUpload stores an upload and returns its id.
func (s *Store) RecordUpload(ctx context.Context, u *Upload) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO upload_audit (id, restaurant_id, user_id, job_id, source, file_name, raw, row_count, issues, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.RestaurantID, u.UserID, u.JobID, u.Source, u.FileName, u.Raw, int64(u.RowCount), u.Issues, u.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("record upload: %w", err)
	}
	return u.ID, nil
}

// AttachJob links an accepted upload to the job that merges it.
func (s *Store) AttachJob(ctx context.Context, uploadID, jobID string) error {
	_, err := s.db.Exec(ctx, `UPDATE upload_audit SET job_id = $1 WHERE id = $2`, jobID, uploadID)
	if err != nil {
		return fmt.Errorf("attach job to upload: %w", err)
	}
	return nil
}

// ListUploads returns the restaurant's most recent uploads without their
// raw bodies.
func (s *Store) ListUploads(ctx context.Context, restaurantID string, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, restaurant_id, user_id, job_id, source, file_name, row_count, issues, created_at
		 FROM upload_audit WHERE restaurant_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		restaurantID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var (
			u        Upload
			rowCount int64
		)
		if err := rows.Scan(&u.ID, &u.RestaurantID, &u.UserID, &u.JobID, &u.Source, &u.FileName,
			&rowCount, &u.Issues, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		u.RowCount = int(rowCount)
		out = append(out, u)
	}
	return out, rows.Err()
}

// PurgeUploadsBefore deletes audit entries older than cutoff.
func (s *Store) PurgeUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.db.Exec(ctx, `DELETE FROM upload_audit WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge uploads: %w", err)
	}
	return n, nil
}
