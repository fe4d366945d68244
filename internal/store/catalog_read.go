package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// ids collects the single-column result of query.
func (t *catalogTx) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *catalogTx) GetItem(ctx context.Context, id string) (*catalog.Item, error) {
	var (
		it                       catalog.Item
		priceCents               int64
		status                   string
		orderLimit               *int64
		subID, subName, subDescr *string
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, restaurant_id, name, description, price_cents, status, order_limit, available, image,
		        sub_category_id, sub_category_name, sub_category_description
		 FROM items WHERE id = $1`, id,
	).Scan(&it.ID, &it.RestaurantID, &it.Name, &it.Description, &priceCents, &status, &orderLimit,
		&it.Available, &it.Image, &subID, &subName, &subDescr)
	if isNoRows(err) {
		return nil, notFound(catalog.KindItem, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	it.Price = fromCents(priceCents)
	it.Status = catalog.Status(status)
	if orderLimit != nil {
		v := int(*orderLimit)
		it.OrderLimit = &v
	}
	if subID != nil {
		it.SubCategory = &catalog.SubCategorySnapshot{ID: *subID, Name: deref(subName), Description: deref(subDescr)}
	}

	if it.Visibility, err = t.visibility(ctx, `SELECT menu_type, status FROM item_visibility WHERE item_id = $1`, id); err != nil {
		return nil, fmt.Errorf("get item visibility: %w", err)
	}
	if it.PriceOptions, err = t.priceOptions(ctx, id); err != nil {
		return nil, fmt.Errorf("get item price options: %w", err)
	}
	if it.Options, err = t.ids(ctx, `SELECT option_type FROM item_options WHERE item_id = $1 ORDER BY option_type`, id); err != nil {
		return nil, fmt.Errorf("get item options: %w", err)
	}
	if it.Categories, err = t.ids(ctx, `SELECT category_id FROM item_categories WHERE item_id = $1 ORDER BY category_id`, id); err != nil {
		return nil, fmt.Errorf("get item categories: %w", err)
	}

	rows, err := t.q.Query(ctx,
		`SELECT modifier_group_id, name, pricing_type FROM item_modifier_groups
		 WHERE item_id = $1 ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("get item modifier groups: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g catalog.ModifierGroupSnapshot
		if err := rows.Scan(&g.ID, &g.Name, &g.PricingType); err != nil {
			return nil, fmt.Errorf("scan item modifier group: %w", err)
		}
		it.ModifierGroups = append(it.ModifierGroups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get item modifier groups: %w", err)
	}

	return &it, nil
}

func (t *catalogTx) visibility(ctx context.Context, query, id string) (map[catalog.MenuType]catalog.Status, error) {
	rows, err := t.q.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[catalog.MenuType]catalog.Status)
	for rows.Next() {
		var mt, status string
		if err := rows.Scan(&mt, &status); err != nil {
			return nil, err
		}
		out[catalog.MenuType(mt)] = catalog.Status(status)
	}
	return out, rows.Err()
}

func (t *catalogTx) priceOptions(ctx context.Context, itemID string) (map[catalog.MenuType]decimal.Decimal, error) {
	rows, err := t.q.Query(ctx, `SELECT menu_type, price_cents FROM item_price_options WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[catalog.MenuType]decimal.Decimal)
	for rows.Next() {
		var (
			mt    string
			cents int64
		)
		if err := rows.Scan(&mt, &cents); err != nil {
			return nil, err
		}
		out[catalog.MenuType(mt)] = fromCents(cents)
	}
	return out, rows.Err()
}

func (t *catalogTx) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	var (
		c      catalog.Category
		status string
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, restaurant_id, name, description, status FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.RestaurantID, &c.Name, &c.Description, &status)
	if isNoRows(err) {
		return nil, notFound(catalog.KindCategory, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.Status = catalog.Status(status)

	rows, err := t.q.Query(ctx,
		`SELECT item_id, name, price_cents, status, image FROM category_items
		 WHERE category_id = $1 ORDER BY name, item_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get category items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s      catalog.ItemSnapshot
			cents  int64
			status string
		)
		if err := rows.Scan(&s.ID, &s.Name, &cents, &status, &s.Image); err != nil {
			return nil, fmt.Errorf("scan category item: %w", err)
		}
		s.Price = fromCents(cents)
		s.Status = catalog.Status(status)
		c.Items = append(c.Items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get category items: %w", err)
	}

	if c.Visibility, err = t.visibility(ctx, `SELECT menu_type, status FROM category_visibility WHERE category_id = $1`, id); err != nil {
		return nil, fmt.Errorf("get category visibility: %w", err)
	}
	if c.Menus, err = t.ids(ctx, `SELECT menu_id FROM category_menus WHERE category_id = $1 ORDER BY menu_id`, id); err != nil {
		return nil, fmt.Errorf("get category menus: %w", err)
	}
	return &c, nil
}

func (t *catalogTx) GetSubCategory(ctx context.Context, id string) (*catalog.SubCategory, error) {
	var s catalog.SubCategory
	err := t.q.QueryRow(ctx,
		`SELECT id, restaurant_id, name, description FROM sub_categories WHERE id = $1`, id,
	).Scan(&s.ID, &s.RestaurantID, &s.Name, &s.Description)
	if isNoRows(err) {
		return nil, notFound(catalog.KindSubCategory, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sub-category: %w", err)
	}
	return &s, nil
}

func (t *catalogTx) GetModifierGroup(ctx context.Context, id string) (*catalog.ModifierGroup, error) {
	var g catalog.ModifierGroup
	err := t.q.QueryRow(ctx,
		`SELECT id, restaurant_id, name, pricing_type FROM modifier_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.RestaurantID, &g.Name, &g.PricingType)
	if isNoRows(err) {
		return nil, notFound(catalog.KindModifierGroup, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get modifier group: %w", err)
	}

	rows, err := t.q.Query(ctx,
		`SELECT modifier_id, name, description, price_cents, pre_select, is_item
		 FROM modifier_group_modifiers WHERE modifier_group_id = $1 ORDER BY name, modifier_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get group modifiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m     catalog.ModifierSnapshot
			cents int64
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &cents, &m.PreSelect, &m.IsItem); err != nil {
			return nil, fmt.Errorf("scan group modifier: %w", err)
		}
		m.Price = fromCents(cents)
		g.Modifiers = append(g.Modifiers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get group modifiers: %w", err)
	}

	if g.Items, err = t.ids(ctx, `SELECT item_id FROM modifier_group_items WHERE modifier_group_id = $1 ORDER BY item_id`, id); err != nil {
		return nil, fmt.Errorf("get group items: %w", err)
	}
	return &g, nil
}

func (t *catalogTx) GetModifier(ctx context.Context, id string) (*catalog.Modifier, error) {
	var (
		m     catalog.Modifier
		cents int64
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, restaurant_id, name, price_cents FROM modifiers WHERE id = $1`, id,
	).Scan(&m.ID, &m.RestaurantID, &m.Name, &cents)
	if isNoRows(err) {
		return nil, notFound(catalog.KindModifier, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get modifier: %w", err)
	}
	m.Price = fromCents(cents)

	if m.ModifierGroups, err = t.ids(ctx, `SELECT modifier_group_id FROM modifier_modifier_groups WHERE modifier_id = $1 ORDER BY modifier_group_id`, id); err != nil {
		return nil, fmt.Errorf("get modifier groups: %w", err)
	}
	return &m, nil
}

const menuColumns = `id, restaurant_id, name, type, tax_id, tax_name, tax_sales_tax`

func scanMenu(row Row) (*catalog.Menu, error) {
	var (
		m                    catalog.Menu
		menuType             string
		taxID, taxName, rate *string
	)
	if err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &menuType, &taxID, &taxName, &rate); err != nil {
		return nil, err
	}
	m.Type = catalog.MenuType(menuType)
	if taxID != nil {
		salesTax, err := decimal.NewFromString(deref(rate))
		if err != nil {
			return nil, fmt.Errorf("menu %s has invalid tax rate %q: %w", m.ID, deref(rate), err)
		}
		m.Tax = &catalog.TaxSnapshot{ID: *taxID, Name: deref(taxName), SalesTax: salesTax}
	}
	return &m, nil
}

func (t *catalogTx) GetMenu(ctx context.Context, id string) (*catalog.Menu, error) {
	m, err := scanMenu(t.q.QueryRow(ctx, `SELECT `+menuColumns+` FROM menus WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, notFound(catalog.KindMenu, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get menu: %w", err)
	}

	rows, err := t.q.Query(ctx,
		`SELECT category_id, name, status FROM menu_categories WHERE menu_id = $1 ORDER BY name, category_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get menu categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c      catalog.CategorySnapshot
			status string
		)
		if err := rows.Scan(&c.ID, &c.Name, &status); err != nil {
			return nil, fmt.Errorf("scan menu category: %w", err)
		}
		c.Status = catalog.Status(status)
		m.Categories = append(m.Categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get menu categories: %w", err)
	}
	return m, nil
}

// ListMenus returns the restaurant's menus without their category snapshots.
func (t *catalogTx) ListMenus(ctx context.Context, restaurantID string) ([]catalog.Menu, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+menuColumns+` FROM menus WHERE restaurant_id = $1 ORDER BY name`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	defer rows.Close()

	var out []catalog.Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (t *catalogTx) GetTaxRate(ctx context.Context, id string) (*catalog.TaxRate, error) {
	var (
		r    catalog.TaxRate
		rate string
	)
	err := t.q.QueryRow(ctx,
		`SELECT id, restaurant_id, name, sales_tax FROM tax_rates WHERE id = $1`, id,
	).Scan(&r.ID, &r.RestaurantID, &r.Name, &rate)
	if isNoRows(err) {
		return nil, notFound(catalog.KindTaxRate, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tax rate: %w", err)
	}
	if r.SalesTax, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("tax rate %s has invalid sales tax %q: %w", id, rate, err)
	}
	return &r, nil
}

func (t *catalogTx) ListItems(ctx context.Context, restaurantID string) ([]catalog.Item, error) {
	ids, err := t.ids(ctx, `SELECT id FROM items WHERE restaurant_id = $1 ORDER BY name`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		it, err := t.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, nil
}

func (t *catalogTx) ListCategories(ctx context.Context, restaurantID string) ([]catalog.Category, error) {
	ids, err := t.ids(ctx, `SELECT id FROM categories WHERE restaurant_id = $1 ORDER BY name`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]catalog.Category, 0, len(ids))
	for _, id := range ids {
		c, err := t.GetCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
