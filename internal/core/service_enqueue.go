package core

import (
	"context"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/jobs"
	"github.com/JonMunkholm/catalogsync/internal/logging"
)

// EnqueueCatalogImport validates rows and queues them for merging. It
// returns the job id without waiting for the merge.
func (s *Service) EnqueueCatalogImport(ctx context.Context, restaurantID string, rows []catalog.RowItem) (string, error) {
	const op = "enqueue catalog import"
	p, err := s.authorize(ctx, op, restaurantID, CapImport)
	if err != nil {
		return "", err
	}

	rc, err := s.RestaurantContext(ctx, restaurantID)
	if err != nil {
		return "", err
	}
	rows, err = s.validator.ValidateItems(ctx, rc, rows)
	if err != nil {
		return "", err
	}

	id, err := s.enqueue(ctx, op, jobs.Payload{
		JobType:          jobs.TypeSaveCsvData,
		RestaurantID:     restaurantID,
		InitiatingUserID: p.UserID,
		RowItems:         rows,
	})
	if err != nil {
		return "", err
	}

	logging.FromContext(ctx).Info("catalog import queued",
		"job_id", id,
		"restaurant_id", restaurantID,
		"user_id", p.UserID,
		"rows", len(rows),
	)
	return id, nil
}

// EnqueuePosSync queues a point-of-sale import. With rows the given items
// are merged; without them the worker fetches the merchant's inventory
// using credentialsID.
func (s *Service) EnqueuePosSync(ctx context.Context, restaurantID string, rows []catalog.RowItem, credentialsID string) (string, error) {
	const op = "enqueue pos sync"
	p, err := s.authorize(ctx, op, restaurantID, CapSync)
	if err != nil {
		return "", err
	}

	if len(rows) > 0 {
		rc, err := s.RestaurantContext(ctx, restaurantID)
		if err != nil {
			return "", err
		}
		if rows, err = s.validator.ValidateItems(ctx, rc, rows); err != nil {
			return "", err
		}
	}

	id, err := s.enqueue(ctx, op, jobs.Payload{
		JobType:          jobs.TypeSaveCloverData,
		RestaurantID:     restaurantID,
		InitiatingUserID: p.UserID,
		RowItems:         rows,
		CredentialsID:    credentialsID,
	})
	if err != nil {
		return "", err
	}

	logging.FromContext(ctx).Info("pos sync queued",
		"job_id", id,
		"restaurant_id", restaurantID,
		"user_id", p.UserID,
		"rows", len(rows),
		"fetch_remote", len(rows) == 0,
	)
	return id, nil
}

// OnMenuCreated queues the order channel propagation for a new menu. The
// menu must exist, belong to the restaurant and have menuType.
func (s *Service) OnMenuCreated(ctx context.Context, restaurantID string, menuType catalog.MenuType, menuID string) (string, error) {
	const op = "menu created"
	p, err := s.authorize(ctx, op, restaurantID, CapConfigure)
	if err != nil {
		return "", err
	}
	if menuType == "" {
		return "", catalog.Errorf(catalog.ErrValidation, op, "menu type is required")
	}

	err = s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		m, err := tx.GetMenu(ctx, menuID)
		if err != nil {
			return err
		}
		if m.RestaurantID != restaurantID {
			return catalog.Errorf(catalog.ErrNotFound, op, "menu %q does not belong to restaurant %q", menuID, restaurantID)
		}
		if m.Type != menuType {
			return catalog.Errorf(catalog.ErrValidation, op, "menu %q has type %q, not %q", menuID, m.Type, menuType)
		}
		return nil
	})
	if err != nil {
		return "", classify(op, err)
	}

	return s.enqueue(ctx, op, jobs.Payload{
		JobType:          jobs.TypeMenuTypeAdded,
		RestaurantID:     restaurantID,
		InitiatingUserID: p.UserID,
		MenuType:         menuType,
		MenuID:           menuID,
	})
}

// OnTaxRateChanged queues the tax propagation for a created (isNew) or
// updated tax rate.
func (s *Service) OnTaxRateChanged(ctx context.Context, restaurantID, taxRateID string, isNew bool) (string, error) {
	const op = "tax rate changed"
	p, err := s.authorize(ctx, op, restaurantID, CapConfigure)
	if err != nil {
		return "", err
	}

	err = s.catalog.WithTx(ctx, func(tx catalog.Tx) error {
		rate, err := tx.GetTaxRate(ctx, taxRateID)
		if err != nil {
			return err
		}
		if rate.RestaurantID != restaurantID {
			return catalog.Errorf(catalog.ErrNotFound, op, "tax rate %q does not belong to restaurant %q", taxRateID, restaurantID)
		}
		return nil
	})
	if err != nil {
		return "", classify(op, err)
	}

	jobType := jobs.TypeTaxRateUpdated
	if isNew {
		jobType = jobs.TypeTaxRateAdded
	}
	return s.enqueue(ctx, op, jobs.Payload{
		JobType:          jobType,
		RestaurantID:     restaurantID,
		InitiatingUserID: p.UserID,
		TaxRateID:        taxRateID,
	})
}
