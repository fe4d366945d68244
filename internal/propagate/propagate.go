// Package propagate keeps fields derived from restaurant configuration in
// step across a restaurant's catalog. Each propagator runs in one
// transaction and only fills in or refreshes derived values, so running it
// again after it committed writes nothing new.
package propagate

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/logging"
)

// MenuTypeResult counts the entries a menu type propagation added.
type MenuTypeResult struct {
	CategoryVisibility int64 `json:"categoryVisibility"`
	ItemVisibility     int64 `json:"itemVisibility"`
	ItemPriceOptions   int64 `json:"itemPriceOptions"`
}

// MenuTypePropagator gives every category and item of a restaurant an
// entry for a newly introduced order channel.
type MenuTypePropagator struct {
	store catalog.Store
}

func NewMenuTypePropagator(store catalog.Store) *MenuTypePropagator {
	return &MenuTypePropagator{store: store}
}

// Propagate adds an inactive visibility entry for menuType to every
// category and item lacking one, and a price option at the item's base
// price to every item lacking one. Existing entries are left alone.
func (p *MenuTypePropagator) Propagate(ctx context.Context, restaurantID string, menuType catalog.MenuType) (MenuTypeResult, error) {
	if restaurantID == "" || menuType == "" {
		return MenuTypeResult{}, catalog.Errorf(catalog.ErrValidation, "propagate menu type", "restaurant id and menu type are required")
	}

	var res MenuTypeResult
	err := p.store.WithTx(ctx, func(tx catalog.Tx) error {
		var err error
		if res.CategoryVisibility, err = tx.AddMissingCategoryVisibility(ctx, restaurantID, menuType, catalog.StatusInactive); err != nil {
			return err
		}
		if res.ItemVisibility, err = tx.AddMissingItemVisibility(ctx, restaurantID, menuType, catalog.StatusInactive); err != nil {
			return err
		}
		res.ItemPriceOptions, err = tx.AddMissingItemPriceOptions(ctx, restaurantID, menuType)
		return err
	})
	if err != nil {
		return MenuTypeResult{}, classify("propagate menu type", err)
	}

	logging.FromContext(ctx).Info("menu type propagated",
		"restaurant_id", restaurantID,
		"menu_type", menuType,
		"category_visibility", res.CategoryVisibility,
		"item_visibility", res.ItemVisibility,
		"item_price_options", res.ItemPriceOptions,
	)
	return res, nil
}

// TaxRatePropagator copies a tax rate into the menus of its restaurant.
type TaxRatePropagator struct {
	store catalog.Store
}

func NewTaxRatePropagator(store catalog.Store) *TaxRatePropagator {
	return &TaxRatePropagator{store: store}
}

// Propagate sets the tax snapshot on every menu without one when isNew, and
// otherwise rewrites the snapshot on every menu that has one. It returns
// the number of menus written.
func (p *TaxRatePropagator) Propagate(ctx context.Context, restaurantID, taxRateID string, isNew bool) (int64, error) {
	var n int64
	err := p.store.WithTx(ctx, func(tx catalog.Tx) error {
		rate, err := tx.GetTaxRate(ctx, taxRateID)
		if err != nil {
			return err
		}
		if rate.RestaurantID != restaurantID {
			return catalog.Errorf(catalog.ErrNotFound, "propagate tax rate",
				"tax rate %q does not belong to restaurant %q", taxRateID, restaurantID)
		}

		if isNew {
			n, err = tx.SetMissingMenuTax(ctx, restaurantID, rate.Snapshot())
		} else {
			n, err = tx.OverwriteMenuTax(ctx, restaurantID, rate.Snapshot())
		}
		return err
	})
	if err != nil {
		return 0, classify("propagate tax rate", err)
	}

	logging.FromContext(ctx).Info("tax rate propagated",
		"restaurant_id", restaurantID,
		"tax_rate_id", taxRateID,
		"is_new", isNew,
		"menus", n,
	)
	return n, nil
}

func classify(op string, err error) error {
	if catalog.KindOf(err) != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return catalog.E(catalog.ErrTransaction, op, err)
}
