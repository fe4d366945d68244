package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// The statements below touch every row of a restaurant in one pass. They
// only ever add missing entries, so running them twice writes nothing the
// second time.

func (t *catalogTx) AddMissingCategoryVisibility(ctx context.Context, restaurantID string, menuType catalog.MenuType, status catalog.Status) (int64, error) {
	n, err := t.q.Exec(ctx,
		`INSERT INTO category_visibility (category_id, menu_type, status)
		 SELECT id, CAST($1 AS TEXT), CAST($2 AS TEXT) FROM categories WHERE restaurant_id = $3
		 ON CONFLICT (category_id, menu_type) DO NOTHING`,
		string(menuType), string(status), restaurantID)
	if err != nil {
		return 0, fmt.Errorf("add category visibility %s: %w", menuType, err)
	}
	return n, nil
}

func (t *catalogTx) AddMissingItemVisibility(ctx context.Context, restaurantID string, menuType catalog.MenuType, status catalog.Status) (int64, error) {
	n, err := t.q.Exec(ctx,
		`INSERT INTO item_visibility (item_id, menu_type, status)
		 SELECT id, CAST($1 AS TEXT), CAST($2 AS TEXT) FROM items WHERE restaurant_id = $3
		 ON CONFLICT (item_id, menu_type) DO NOTHING`,
		string(menuType), string(status), restaurantID)
	if err != nil {
		return 0, fmt.Errorf("add item visibility %s: %w", menuType, err)
	}
	return n, nil
}

func (t *catalogTx) AddMissingItemPriceOptions(ctx context.Context, restaurantID string, menuType catalog.MenuType) (int64, error) {
	n, err := t.q.Exec(ctx,
		`INSERT INTO item_price_options (item_id, menu_type, price_cents)
		 SELECT id, CAST($1 AS TEXT), price_cents FROM items WHERE restaurant_id = $2
		 ON CONFLICT (item_id, menu_type) DO NOTHING`,
		string(menuType), restaurantID)
	if err != nil {
		return 0, fmt.Errorf("add item price options %s: %w", menuType, err)
	}
	return n, nil
}

func (t *catalogTx) SetMissingMenuTax(ctx context.Context, restaurantID string, tax catalog.TaxSnapshot) (int64, error) {
	n, err := t.q.Exec(ctx,
		`UPDATE menus SET tax_id = $1, tax_name = $2, tax_sales_tax = $3, updated_at = $4
		 WHERE restaurant_id = $5 AND tax_id IS NULL`,
		tax.ID, tax.Name, tax.SalesTax.String(), t.now(), restaurantID)
	if err != nil {
		return 0, fmt.Errorf("set menu tax: %w", err)
	}
	return n, nil
}

func (t *catalogTx) OverwriteMenuTax(ctx context.Context, restaurantID string, tax catalog.TaxSnapshot) (int64, error) {
	n, err := t.q.Exec(ctx,
		`UPDATE menus SET tax_id = $1, tax_name = $2, tax_sales_tax = $3, updated_at = $4
		 WHERE restaurant_id = $5 AND tax_id IS NOT NULL`,
		tax.ID, tax.Name, tax.SalesTax.String(), t.now(), restaurantID)
	if err != nil {
		return 0, fmt.Errorf("overwrite menu tax: %w", err)
	}
	return n, nil
}
