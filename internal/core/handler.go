package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/ingest"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/logging"
	"github.com/JonMunkholm/catalogsync/internal/notify"
	"github.com/JonMunkholm/catalogsync/internal/store"
)

// Handle runs one claimed job. It is the jobs.Handler the worker pool is
// built with.
func (s *Service) Handle(ctx context.Context, job *jobs.Job, advance jobs.Advance) (string, error) {
	p := job.Payload
	if err := p.Validate(); err != nil {
		return "", err
	}

	switch p.JobType {
	case jobs.TypeSaveCsvData, jobs.TypeSaveCloverData:
		return s.runImport(ctx, job, advance)
	case jobs.TypeTokenRefresh:
		return s.runTokenRefresh(ctx, job, advance)
	case jobs.TypeMenuTypeAdded:
		if err := advance(ctx, jobs.StatusMerging); err != nil {
			return "", err
		}
		res, err := s.menuTypes.Propagate(ctx, p.RestaurantID, p.MenuType)
		if err != nil {
			return "", err
		}
		return summarize(res), nil
	case jobs.TypeTaxRateAdded, jobs.TypeTaxRateUpdated:
		if err := advance(ctx, jobs.StatusMerging); err != nil {
			return "", err
		}
		n, err := s.taxRates.Propagate(ctx, p.RestaurantID, p.TaxRateID, p.JobType == jobs.TypeTaxRateAdded)
		if err != nil {
			return "", err
		}
		return summarize(map[string]int64{"menus": n}), nil
	}
	return "", catalog.Errorf(catalog.ErrValidation, "handle job", "unknown job type %q", p.JobType)
}

// runImport validates the job's rows against the restaurant's current
// options, merges them and reports the outcome. POS jobs without rows fetch
// the merchant's inventory first.
func (s *Service) runImport(ctx context.Context, job *jobs.Job, advance jobs.Advance) (string, error) {
	p := job.Payload
	logger := logging.FromContext(ctx)

	rc, err := s.RestaurantContext(ctx, p.RestaurantID)
	if err != nil {
		return "", err
	}

	rows := p.RowItems
	if len(rows) == 0 && p.JobType == jobs.TypeSaveCloverData {
		if rows, err = s.fetchInventory(ctx, rc, job); err != nil {
			return "", err
		}
	} else if rows, err = s.validator.ValidateItems(ctx, rc, rows); err != nil {
		return "", err
	}

	if err := advance(ctx, jobs.StatusMerging); err != nil {
		return "", err
	}

	summary, err := s.coordinator.Apply(ctx, p.RestaurantID, rows)
	if err != nil {
		return "", err
	}

	err = s.notifier.ImportCompleted(ctx, notify.ImportReport{
		JobID:        job.ID,
		JobType:      string(p.JobType),
		RestaurantID: p.RestaurantID,
		UserID:       p.InitiatingUserID,
		Summary:      summary,
	})
	if err != nil {
		logger.Warn("import notification failed", "error", err)
	}
	return summary.String(), nil
}

func (s *Service) fetchInventory(ctx context.Context, rc ingest.RestaurantContext, job *jobs.Job) ([]catalog.RowItem, error) {
	const op = "fetch pos inventory"
	p := job.Payload
	if s.credentials == nil || s.inventory == nil {
		return nil, errPOSDisabled(op)
	}

	cred, err := s.credentials.Usable(ctx, p.CredentialsID)
	if err != nil {
		return nil, err
	}
	if cred.RestaurantID != p.RestaurantID {
		return nil, catalog.Errorf(catalog.ErrNotFound, op,
			"credential %q does not belong to restaurant %q", p.CredentialsID, p.RestaurantID)
	}

	items, err := s.inventory.FetchInventory(ctx, cred)
	if err != nil {
		return nil, err
	}

	audit := &store.Upload{
		RestaurantID: p.RestaurantID,
		UserID:       p.InitiatingUserID,
		JobID:        job.ID,
		Source:       SourcePOS,
		FileName:     cred.Vendor + ":" + cred.MerchantID,
		RowCount:     len(items),
	}
	if audit.Raw, err = json.Marshal(items); err == nil {
		if _, err := s.records.RecordUpload(ctx, audit); err != nil {
			logging.FromContext(ctx).Warn("failed to record pos inventory", "error", err)
		}
	}

	return s.validator.ValidatePOS(ctx, rc, items)
}

// runTokenRefresh renews a POS credential. Failures are recorded on the
// credential and logged; nobody is notified.
func (s *Service) runTokenRefresh(ctx context.Context, job *jobs.Job, advance jobs.Advance) (string, error) {
	if s.credentials == nil {
		return "", errPOSDisabled("refresh token")
	}
	if err := advance(ctx, jobs.StatusMerging); err != nil {
		return "", err
	}
	cred, err := s.credentials.Refresh(ctx, job.Payload.CredentialsID)
	if err != nil {
		if catalog.KindOf(err) == nil {
			err = catalog.E(catalog.ErrExternalService, "refresh token", err)
		}
		return "", err
	}
	return summarize(map[string]string{"credentialsId": cred.ID, "expiresAt": cred.ExpiresAt.UTC().Format(time.RFC3339)}), nil
}

// OnJobFailed reports a failed job. It is the pool's OnFailure hook.
func (s *Service) OnJobFailed(ctx context.Context, job *jobs.Job, jobErr error) {
	if job.Payload.JobType == jobs.TypeTokenRefresh {
		return
	}
	err := s.notifier.JobFailed(ctx, notify.FailureReport{
		JobID:        job.ID,
		JobType:      string(job.Payload.JobType),
		RestaurantID: job.Payload.RestaurantID,
		UserID:       job.Payload.InitiatingUserID,
		Err:          fmt.Errorf("%w: %s", jobErr, FormatUserError(jobErr)),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("failure notification failed", "error", err)
	}
}

// DescribeError renders a job failure with its support code. It is the
// pool's DescribeError hook.
func DescribeError(err error) string {
	return fmt.Sprintf("%s (Code: %s)", err.Error(), MapError(err).Code)
}

func errPOSDisabled(op string) error {
	return catalog.Errorf(catalog.ErrExternalService, op, "point-of-sale integration is not configured")
}

func summarize(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
