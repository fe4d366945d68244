package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memQueue is an in-memory Queue with the same transition rules as the
// SQL queue.
type memQueue struct {
	mu    sync.Mutex
	order []string
	jobs  map[string]*Job
	seq   int
}

func newMemQueue() *memQueue {
	return &memQueue{jobs: make(map[string]*Job)}
}

func (q *memQueue) Enqueue(_ context.Context, p Payload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := fmt.Sprintf("job-%d", q.seq)
	q.jobs[id] = &Job{ID: id, Payload: p, Status: StatusQueued}
	q.order = append(q.order, id)
	return id, nil
}

func (q *memQueue) Claim(_ context.Context, workerID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		j := q.jobs[id]
		if j.Status == StatusQueued {
			j.Status = StatusValidating
			j.WorkerID = workerID
			j.Attempts++
			cp := *j
			return &cp, nil
		}
	}
	return nil, ErrEmpty
}

func (q *memQueue) Transition(_ context.Context, id string, from, to Status, detail string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.Status != from {
		return ErrLeaseLost
	}
	if !ValidTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	j.Status = to
	switch to {
	case StatusFailed:
		j.LastError = detail
	case StatusCommitted:
		j.Summary = detail
	}
	return nil
}

func (q *memQueue) Get(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *j
	return &cp, nil
}

func TestPoolCommitsThroughMerging(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	id, err := q.Enqueue(ctx, Payload{JobType: TypeTaxRateAdded, RestaurantID: "r1", TaxRateID: "t1"})
	require.NoError(t, err)

	var seen []Status
	pool := NewPool(q, HandlerFunc(func(ctx context.Context, job *Job, advance Advance) (string, error) {
		seen = append(seen, job.Status)
		if err := advance(ctx, StatusMerging); err != nil {
			return "", err
		}
		seen = append(seen, job.Status)
		return "3 menus updated", nil
	}), PoolConfig{})

	ran, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ran)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, job.Status)
	assert.Equal(t, "3 menus updated", job.Summary)
	assert.Equal(t, []Status{StatusValidating, StatusMerging}, seen)
}

func TestPoolAdvancesHandlersThatSkipMerging(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	id, _ := q.Enqueue(ctx, Payload{JobType: TypeTokenRefresh, RestaurantID: "r1", CredentialsID: "c1"})

	pool := NewPool(q, HandlerFunc(func(context.Context, *Job, Advance) (string, error) {
		return "", nil
	}), PoolConfig{})

	_, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)

	job, _ := q.Get(ctx, id)
	assert.Equal(t, StatusCommitted, job.Status)
}

func TestPoolMarksFailuresAndNotifies(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	id, _ := q.Enqueue(ctx, Payload{JobType: TypeTaxRateUpdated, RestaurantID: "r1", TaxRateID: "t1"})

	var notified error
	pool := NewPool(q, HandlerFunc(func(ctx context.Context, job *Job, advance Advance) (string, error) {
		if err := advance(ctx, StatusMerging); err != nil {
			return "", err
		}
		return "", errors.New("storage unavailable")
	}), PoolConfig{OnFailure: func(_ context.Context, _ *Job, err error) { notified = err }})

	_, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)

	job, _ := q.Get(ctx, id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "storage unavailable", job.LastError)
	require.Error(t, notified)
}

func TestPoolDescribesFailures(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	id, _ := q.Enqueue(ctx, Payload{JobType: TypeTaxRateUpdated, RestaurantID: "r1", TaxRateID: "t1"})

	pool := NewPool(q, HandlerFunc(func(context.Context, *Job, Advance) (string, error) {
		return "", errors.New("storage unavailable")
	}), PoolConfig{DescribeError: func(err error) string { return err.Error() + " (Code: TX001)" }})

	_, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)

	job, _ := q.Get(ctx, id)
	assert.Equal(t, "storage unavailable (Code: TX001)", job.LastError)
}

func TestPoolRecoversFromPanics(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	id, _ := q.Enqueue(ctx, Payload{JobType: TypeTaxRateAdded, RestaurantID: "r1", TaxRateID: "t1"})

	pool := NewPool(q, HandlerFunc(func(context.Context, *Job, Advance) (string, error) {
		panic("nil map")
	}), PoolConfig{})

	ran, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ran)

	job, _ := q.Get(ctx, id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "nil map")
}

func TestPoolRunOnceEmptyQueue(t *testing.T) {
	pool := NewPool(newMemQueue(), HandlerFunc(func(context.Context, *Job, Advance) (string, error) {
		t.Fatal("handler must not run")
		return "", nil
	}), PoolConfig{})

	ran, err := pool.RunOnce(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestPoolRejectsBackwardAdvance(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	id, _ := q.Enqueue(ctx, Payload{JobType: TypeTaxRateAdded, RestaurantID: "r1", TaxRateID: "t1"})

	pool := NewPool(q, HandlerFunc(func(ctx context.Context, job *Job, advance Advance) (string, error) {
		return "", advance(ctx, StatusCommitted)
	}), PoolConfig{})

	_, err := pool.RunOnce(ctx, "w1")
	require.NoError(t, err)

	job, _ := q.Get(ctx, id)
	assert.Equal(t, StatusFailed, job.Status)
}

func TestPoolRunDrainsQueueAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := newMemQueue()
	for i := 0; i < 5; i++ {
		_, _ = q.Enqueue(ctx, Payload{JobType: TypeTaxRateAdded, RestaurantID: "r1", TaxRateID: fmt.Sprint(i)})
	}

	var (
		mu   sync.Mutex
		done int
	)
	pool := NewPool(q, HandlerFunc(func(context.Context, *Job, Advance) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if done == 5 {
			cancel()
		}
		return "", nil
	}), PoolConfig{Concurrency: 2})

	pool.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, done)
}
