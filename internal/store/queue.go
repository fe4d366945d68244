package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
)

var _ jobs.Queue = (*Queue)(nil)

// Queue is the sync_jobs table used as a durable job queue.
type Queue struct {
	store *Store

	// serialize keeps at most one in-flight job per restaurant.
	serialize bool
}

// Queue returns the job queue backed by this store.
func (s *Store) Queue(serializePerRestaurant bool) *Queue {
	return &Queue{store: s, serialize: serializePerRestaurant}
}

const jobColumns = `id, payload, status, attempts, worker_id, last_error, summary,
	created_at, updated_at, claimed_at, finished_at`

func (q *Queue) Enqueue(ctx context.Context, p jobs.Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}

	var id string
	err = q.store.withTx(ctx, func(tx DBTX) error {
		if key := p.DedupeKey(); key != "" {
			err := tx.QueryRow(ctx,
				`SELECT id FROM sync_jobs
				 WHERE dedupe_key = $1 AND status IN ('queued', 'validating', 'merging')
				 ORDER BY created_at LIMIT 1`, key,
			).Scan(&id)
			if err == nil {
				return nil
			}
			if !isNoRows(err) {
				return fmt.Errorf("check pending job: %w", err)
			}
		}

		id = uuid.NewString()
		now := q.store.now()
		_, err := tx.Exec(ctx,
			`INSERT INTO sync_jobs (id, job_type, restaurant_id, initiated_by, dedupe_key, payload, status,
			                        created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			id, string(p.JobType), p.RestaurantID, p.InitiatingUserID, p.DedupeKey(), string(body),
			string(jobs.StatusQueued), now)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (q *Queue) Claim(ctx context.Context, workerID string) (*jobs.Job, error) {
	inflight := ""
	if q.serialize {
		inflight = `AND NOT EXISTS (
			SELECT 1 FROM sync_jobs r
			WHERE r.restaurant_id = j.restaurant_id AND r.status IN ('validating', 'merging'))`
	}

	// Concurrent claimers on PostgreSQL skip rows another claimer holds.
	lock := ""
	if q.store.dialect == Postgres {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	var job *jobs.Job
	err := q.store.withTx(ctx, func(tx DBTX) error {
		var id, restaurantID string
		err := tx.QueryRow(ctx,
			`SELECT j.id, j.restaurant_id FROM sync_jobs j
			 WHERE j.status = 'queued' `+inflight+`
			 ORDER BY j.created_at, j.id
			 LIMIT 1 `+lock,
		).Scan(&id, &restaurantID)
		if isNoRows(err) {
			return jobs.ErrEmpty
		}
		if err != nil {
			return err
		}

		if q.serialize {
			if err := q.holdRestaurant(ctx, tx, restaurantID); err != nil {
				return err
			}
		}

		now := q.store.now()
		n, err := tx.Exec(ctx,
			`UPDATE sync_jobs SET status = 'validating', worker_id = $1, attempts = attempts + 1,
			     claimed_at = $2, updated_at = $2
			 WHERE id = $3 AND status = 'queued'`,
			workerID, now, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return jobs.ErrEmpty
		}

		job, err = scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, jobs.ErrEmpty) {
		return nil, jobs.ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// restaurantLockQuery returns the statement that takes a transaction-scoped
// lock on one restaurant's claims, or "" when the dialect serialises
// writers on its own.
func restaurantLockQuery(d Dialect) string {
	if d == Postgres {
		return `SELECT pg_try_advisory_xact_lock(hashtext('sync_jobs:' || $1::text))`
	}
	return ""
}

// holdRestaurant returns jobs.ErrEmpty unless this claim is the only one in
// progress for restaurantID and no job of it is in flight. The in-flight
// check is repeated under the lock because the claim query's snapshot can
// predate a concurrent claim's commit.
func (q *Queue) holdRestaurant(ctx context.Context, tx DBTX, restaurantID string) error {
	if query := restaurantLockQuery(q.store.dialect); query != "" {
		var locked bool
		if err := tx.QueryRow(ctx, query, restaurantID).Scan(&locked); err != nil {
			return fmt.Errorf("lock restaurant: %w", err)
		}
		if !locked {
			return jobs.ErrEmpty
		}
	}

	var busy bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sync_jobs
		                 WHERE restaurant_id = $1 AND status IN ('validating', 'merging'))`,
		restaurantID,
	).Scan(&busy)
	if err != nil {
		return fmt.Errorf("check restaurant in flight: %w", err)
	}
	if busy {
		return jobs.ErrEmpty
	}
	return nil
}

func (q *Queue) Transition(ctx context.Context, id string, from, to jobs.Status, detail string) error {
	if !jobs.ValidTransition(from, to) {
		return fmt.Errorf("job %s: invalid transition %s -> %s", id, from, to)
	}

	now := q.store.now()
	var lastError, summary string
	var finishedAt *time.Time
	switch to {
	case jobs.StatusFailed:
		lastError = detail
		finishedAt = &now
	case jobs.StatusCommitted:
		summary = detail
		finishedAt = &now
	}

	n, err := q.store.db.Exec(ctx,
		`UPDATE sync_jobs SET status = $1,
		     last_error = CASE WHEN $2 = '' THEN last_error ELSE $2 END,
		     summary = CASE WHEN $3 = '' THEN summary ELSE $3 END,
		     finished_at = $4, updated_at = $5
		 WHERE id = $6 AND status = $7`,
		string(to), lastError, summary, finishedAt, now, id, string(from))
	if err != nil {
		return fmt.Errorf("transition job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("transition job %s %s -> %s: %w", id, from, to, jobs.ErrLeaseLost)
	}
	return nil
}

func (q *Queue) Get(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(q.store.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, catalog.Errorf(catalog.ErrNotFound, "get job", "job %q does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RequeueStale returns jobs whose lease started before cutoff to the queue.
// This is what turns a crashed worker into a redelivery.
func (q *Queue) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := q.store.db.Exec(ctx,
		`UPDATE sync_jobs SET status = 'queued', worker_id = '', updated_at = $1
		 WHERE status IN ('validating', 'merging') AND claimed_at < $2`,
		q.store.now(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return n, nil
}

// Counts returns the number of jobs per status.
func (q *Queue) Counts(ctx context.Context) (map[jobs.Status]int64, error) {
	rows, err := q.store.db.Query(ctx, `SELECT status, COUNT(*) FROM sync_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[jobs.Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		out[jobs.Status(status)] = n
	}
	return out, rows.Err()
}

func scanJob(row Row) (*jobs.Job, error) {
	var (
		j        jobs.Job
		payload  string
		status   string
		attempts int64
	)
	if err := row.Scan(&j.ID, &payload, &status, &attempts, &j.WorkerID, &j.LastError, &j.Summary,
		&j.CreatedAt, &j.UpdatedAt, &j.ClaimedAt, &j.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &j.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", j.ID, err)
	}
	j.Status = jobs.Status(status)
	j.Attempts = int(attempts)
	return &j, nil
}
