package core

// scheduler.go runs the recurring maintenance the workers depend on:
//  1. Queue a TokenRefresh job for every POS credential close to expiry
//  2. Put jobs whose worker lease expired back in the queue
//  3. Purge upload audit entries past their retention
//
// Each task runs immediately on start, then on its own interval. A failing
// run is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/jobs"
)

// SchedulerConfig holds the maintenance intervals. Zero values fall back to
// the defaults below.
type SchedulerConfig struct {
	TokenRefreshInterval time.Duration // How often to look for expiring credentials
	TokenRefreshWindow   time.Duration // Refresh credentials expiring within this window
	LeaseTimeout         time.Duration // In-flight jobs older than this are requeued
	LeaseCheckInterval   time.Duration
	AuditRetention       time.Duration
	AuditPurgeInterval   time.Duration
}

const (
	DefaultTokenRefreshInterval = 15 * time.Minute
	DefaultTokenRefreshWindow   = time.Hour
	DefaultLeaseTimeout         = 20 * time.Minute
	DefaultLeaseCheckInterval   = time.Minute
	DefaultAuditRetention       = 90 * 24 * time.Hour
	DefaultAuditPurgeInterval   = 24 * time.Hour
)

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.TokenRefreshInterval <= 0 {
		c.TokenRefreshInterval = DefaultTokenRefreshInterval
	}
	if c.TokenRefreshWindow <= 0 {
		c.TokenRefreshWindow = DefaultTokenRefreshWindow
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = DefaultLeaseTimeout
	}
	if c.LeaseCheckInterval <= 0 {
		c.LeaseCheckInterval = DefaultLeaseCheckInterval
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = DefaultAuditRetention
	}
	if c.AuditPurgeInterval <= 0 {
		c.AuditPurgeInterval = DefaultAuditPurgeInterval
	}
	return c
}

// StartScheduler runs the maintenance tasks until ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context, cfg SchedulerConfig) {
	cfg = cfg.withDefaults()
	slog.Info("scheduler started",
		"token_refresh_interval", cfg.TokenRefreshInterval,
		"token_refresh_window", cfg.TokenRefreshWindow,
		"lease_timeout", cfg.LeaseTimeout,
		"audit_retention", cfg.AuditRetention,
	)

	var wg sync.WaitGroup
	run := func(name string, every time.Duration, task func(context.Context) (int64, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, name, every, task)
		}()
	}

	run("token refresh", cfg.TokenRefreshInterval, func(ctx context.Context) (int64, error) {
		return s.QueueTokenRefreshes(ctx, cfg.TokenRefreshWindow)
	})
	run("lease expiry", cfg.LeaseCheckInterval, func(ctx context.Context) (int64, error) {
		return s.RequeueExpiredLeases(ctx, cfg.LeaseTimeout)
	})
	run("audit purge", cfg.AuditPurgeInterval, func(ctx context.Context) (int64, error) {
		return s.PurgeAudit(ctx, cfg.AuditRetention)
	})

	wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Service) every(ctx context.Context, name string, interval time.Duration, task func(context.Context) (int64, error)) {
	s.runTask(ctx, name, task)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTask(ctx, name, task)
		}
	}
}

func (s *Service) runTask(ctx context.Context, name string, task func(context.Context) (int64, error)) {
	start := time.Now()
	n, err := task(ctx)
	if err != nil {
		slog.Error("scheduled task failed", "task", name, "error", err)
		return
	}
	slog.Debug("scheduled task completed",
		"task", name,
		"affected", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// QueueTokenRefreshes queues a refresh for every credential expiring within
// window. A credential with a refresh already pending is not queued twice.
func (s *Service) QueueTokenRefreshes(ctx context.Context, window time.Duration) (int64, error) {
	creds, err := s.records.CredentialsExpiringBefore(ctx, s.now().Add(window))
	if err != nil {
		return 0, err
	}

	var queued int64
	for _, c := range creds {
		id, err := s.enqueue(ctx, "queue token refresh", jobs.Payload{
			JobType:       jobs.TypeTokenRefresh,
			RestaurantID:  c.RestaurantID,
			CredentialsID: c.ID,
		})
		if err != nil {
			slog.Error("failed to queue token refresh", "credentials_id", c.ID, "error", err)
			continue
		}
		slog.Info("token refresh queued",
			"credentials_id", c.ID,
			"restaurant_id", c.RestaurantID,
			"expires_at", c.ExpiresAt,
			"job_id", id,
		)
		queued++
	}
	return queued, nil
}

// RequeueExpiredLeases puts jobs held longer than timeout back in the queue
// so another worker redelivers them.
func (s *Service) RequeueExpiredLeases(ctx context.Context, timeout time.Duration) (int64, error) {
	n, err := s.queue.RequeueStale(ctx, s.now().Add(-timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("requeued jobs with expired leases", "jobs", n)
	}
	return n, nil
}

// PurgeAudit deletes upload audit entries older than retention.
func (s *Service) PurgeAudit(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.records.PurgeUploadsBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("purged upload audit entries", "entries_purged", n)
	}
	return n, nil
}
