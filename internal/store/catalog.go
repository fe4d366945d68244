package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// catalogTx implements catalog.Tx on top of one open transaction.
type catalogTx struct {
	q   DBTX
	now func() time.Time
}

var _ catalog.Tx = (*catalogTx)(nil)

var entityTables = map[catalog.Kind]string{
	catalog.KindCategory:      "categories",
	catalog.KindSubCategory:   "sub_categories",
	catalog.KindItem:          "items",
	catalog.KindModifierGroup: "modifier_groups",
	catalog.KindModifier:      "modifiers",
	catalog.KindMenu:          "menus",
	catalog.KindTaxRate:       "tax_rates",
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func notFound(kind catalog.Kind, key string) error {
	return catalog.Errorf(catalog.ErrNotFound, "get "+string(kind), "%s %q does not exist", kind, key)
}

func (t *catalogTx) FindID(ctx context.Context, kind catalog.Kind, restaurantID, name string) (string, error) {
	table, ok := entityTables[kind]
	if !ok {
		return "", fmt.Errorf("find: unknown entity kind %q", kind)
	}

	var id string
	err := t.q.QueryRow(ctx,
		`SELECT id FROM `+table+` WHERE restaurant_id = $1 AND name = $2`,
		restaurantID, name,
	).Scan(&id)
	if isNoRows(err) {
		return "", notFound(kind, name)
	}
	if err != nil {
		return "", fmt.Errorf("find %s %q: %w", kind, name, err)
	}
	return id, nil
}

// insertEntity runs an INSERT ... ON CONFLICT DO NOTHING and reports a
// skipped row as ErrDuplicateKey.
func (t *catalogTx) insertEntity(ctx context.Context, kind catalog.Kind, query string, args ...any) error {
	n, err := t.q.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert %s: %w", kind, catalog.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("insert %s: %w", kind, catalog.ErrDuplicateKey)
	}
	return nil
}

// updateEntity runs an UPDATE that must touch exactly one row.
func (t *catalogTx) updateEntity(ctx context.Context, kind catalog.Kind, id, query string, args ...any) error {
	n, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func (t *catalogTx) InsertCategory(ctx context.Context, c *catalog.Category) error {
	status := c.Status
	if status == "" {
		status = catalog.StatusActive
	}
	now := t.now()
	return t.insertEntity(ctx, catalog.KindCategory,
		`INSERT INTO categories (id, restaurant_id, name, description, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT DO NOTHING`,
		c.ID, c.RestaurantID, c.Name, c.Description, string(status), now)
}

func (t *catalogTx) UpdateCategoryDescription(ctx context.Context, id, description string) error {
	return t.updateEntity(ctx, catalog.KindCategory, id,
		`UPDATE categories SET description = $1, updated_at = $2 WHERE id = $3`,
		description, t.now(), id)
}

func (t *catalogTx) InsertSubCategory(ctx context.Context, s *catalog.SubCategory) error {
	now := t.now()
	return t.insertEntity(ctx, catalog.KindSubCategory,
		`INSERT INTO sub_categories (id, restaurant_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT DO NOTHING`,
		s.ID, s.RestaurantID, s.Name, s.Description, now)
}

func (t *catalogTx) UpdateSubCategoryDescription(ctx context.Context, id, description string) error {
	if err := t.updateEntity(ctx, catalog.KindSubCategory, id,
		`UPDATE sub_categories SET description = $1, updated_at = $2 WHERE id = $3`,
		description, t.now(), id); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx,
		`UPDATE items SET sub_category_description = $1 WHERE sub_category_id = $2`,
		description, id)
	if err != nil {
		return fmt.Errorf("refresh sub-category snapshots: %w", err)
	}
	return nil
}

func (t *catalogTx) InsertModifierGroup(ctx context.Context, g *catalog.ModifierGroup) error {
	now := t.now()
	return t.insertEntity(ctx, catalog.KindModifierGroup,
		`INSERT INTO modifier_groups (id, restaurant_id, name, pricing_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT DO NOTHING`,
		g.ID, g.RestaurantID, g.Name, g.PricingType, now)
}

func (t *catalogTx) UpdateModifierGroupPricing(ctx context.Context, id, pricingType string) error {
	return t.updateEntity(ctx, catalog.KindModifierGroup, id,
		`UPDATE modifier_groups SET pricing_type = $1, updated_at = $2 WHERE id = $3`,
		pricingType, t.now(), id)
}

func (t *catalogTx) InsertModifier(ctx context.Context, m *catalog.Modifier) error {
	now := t.now()
	return t.insertEntity(ctx, catalog.KindModifier,
		`INSERT INTO modifiers (id, restaurant_id, name, price_cents, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT DO NOTHING`,
		m.ID, m.RestaurantID, m.Name, toCents(m.Price), now)
}

func (t *catalogTx) UpdateModifierPrice(ctx context.Context, id string, price decimal.Decimal) error {
	return t.updateEntity(ctx, catalog.KindModifier, id,
		`UPDATE modifiers SET price_cents = $1, updated_at = $2 WHERE id = $3`,
		toCents(price), t.now(), id)
}

func subCategoryColumns(s *catalog.SubCategorySnapshot) (id, name, desc *string) {
	if s == nil {
		return nil, nil, nil
	}
	return &s.ID, &s.Name, &s.Description
}

func orderLimitArg(limit *int) *int64 {
	if limit == nil {
		return nil
	}
	v := int64(*limit)
	return &v
}

func (t *catalogTx) InsertItem(ctx context.Context, it *catalog.Item) error {
	subID, subName, subDesc := subCategoryColumns(it.SubCategory)
	now := t.now()
	return t.insertEntity(ctx, catalog.KindItem,
		`INSERT INTO items (id, restaurant_id, name, description, price_cents, status, order_limit,
		                    available, image, sub_category_id, sub_category_name, sub_category_description,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		 ON CONFLICT DO NOTHING`,
		it.ID, it.RestaurantID, it.Name, it.Description, toCents(it.Price), string(it.Status),
		orderLimitArg(it.OrderLimit), it.Available, it.Image, subID, subName, subDesc, now)
}

func (t *catalogTx) UpdateItem(ctx context.Context, it *catalog.Item) error {
	subID, subName, subDesc := subCategoryColumns(it.SubCategory)
	return t.updateEntity(ctx, catalog.KindItem, it.ID,
		`UPDATE items SET
		     description = COALESCE(NULLIF($1, ''), description),
		     price_cents = $2,
		     status = $3,
		     order_limit = $4,
		     available = $5,
		     image = COALESCE(NULLIF($6, ''), image),
		     sub_category_id = $7,
		     sub_category_name = $8,
		     sub_category_description = $9,
		     updated_at = $10
		 WHERE id = $11`,
		it.Description, toCents(it.Price), string(it.Status), orderLimitArg(it.OrderLimit),
		it.Available, it.Image, subID, subName, subDesc, t.now(), it.ID)
}

func sortedTypes[V any](m map[catalog.MenuType]V) []catalog.MenuType {
	keys := make([]catalog.MenuType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (t *catalogTx) SetItemVisibility(ctx context.Context, itemID string, vis map[catalog.MenuType]catalog.Status) error {
	for _, mt := range sortedTypes(vis) {
		if _, err := t.q.Exec(ctx,
			`INSERT INTO item_visibility (item_id, menu_type, status) VALUES ($1, $2, $3)
			 ON CONFLICT (item_id, menu_type) DO UPDATE SET status = excluded.status`,
			itemID, string(mt), string(vis[mt])); err != nil {
			return fmt.Errorf("set item visibility %s: %w", mt, err)
		}
	}
	return nil
}

func (t *catalogTx) SetItemPriceOptions(ctx context.Context, itemID string, prices map[catalog.MenuType]decimal.Decimal) error {
	for _, mt := range sortedTypes(prices) {
		if _, err := t.q.Exec(ctx,
			`INSERT INTO item_price_options (item_id, menu_type, price_cents) VALUES ($1, $2, $3)
			 ON CONFLICT (item_id, menu_type) DO UPDATE SET price_cents = excluded.price_cents`,
			itemID, string(mt), toCents(prices[mt])); err != nil {
			return fmt.Errorf("set item price option %s: %w", mt, err)
		}
	}
	return nil
}

func (t *catalogTx) SetItemOptions(ctx context.Context, itemID string, options []string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM item_options WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("clear item options: %w", err)
	}
	for _, opt := range options {
		if _, err := t.q.Exec(ctx,
			`INSERT INTO item_options (item_id, option_type) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			itemID, opt); err != nil {
			return fmt.Errorf("add item option %s: %w", opt, err)
		}
	}
	return nil
}

func (t *catalogTx) InsertMenu(ctx context.Context, m *catalog.Menu) error {
	now := t.now()
	return t.insertEntity(ctx, catalog.KindMenu,
		`INSERT INTO menus (id, restaurant_id, name, type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT DO NOTHING`,
		m.ID, m.RestaurantID, m.Name, string(m.Type), now)
}

func (t *catalogTx) InsertTaxRate(ctx context.Context, r *catalog.TaxRate) error {
	now := t.now()
	return t.insertEntity(ctx, catalog.KindTaxRate,
		`INSERT INTO tax_rates (id, restaurant_id, name, sales_tax, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT DO NOTHING`,
		r.ID, r.RestaurantID, r.Name, r.SalesTax.String(), now)
}

func (t *catalogTx) UpdateTaxRate(ctx context.Context, r *catalog.TaxRate) error {
	return t.updateEntity(ctx, catalog.KindTaxRate, r.ID,
		`UPDATE tax_rates SET name = $1, sales_tax = $2, updated_at = $3 WHERE id = $4`,
		r.Name, r.SalesTax.String(), t.now(), r.ID)
}
