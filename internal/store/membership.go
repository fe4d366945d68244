package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

func (t *catalogTx) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := t.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *catalogTx) LinkItemCategory(ctx context.Context, itemID, categoryID string) error {
	return t.exec(ctx, "link item category",
		`INSERT INTO item_categories (item_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		itemID, categoryID)
}

func (t *catalogTx) UnlinkItemCategory(ctx context.Context, itemID, categoryID string) error {
	return t.exec(ctx, "unlink item category",
		`DELETE FROM item_categories WHERE item_id = $1 AND category_id = $2`,
		itemID, categoryID)
}

// itemSnapshot reads the snapshot columns of an item from its own row.
func (t *catalogTx) itemSnapshot(ctx context.Context, itemID string) (name string, cents int64, status, image string, err error) {
	err = t.q.QueryRow(ctx,
		`SELECT name, price_cents, status, image FROM items WHERE id = $1`, itemID,
	).Scan(&name, &cents, &status, &image)
	if isNoRows(err) {
		err = notFound(catalog.KindItem, itemID)
	}
	return
}

func (t *catalogTx) PutCategoryItem(ctx context.Context, categoryID, itemID string) error {
	name, cents, status, image, err := t.itemSnapshot(ctx, itemID)
	if err != nil {
		return fmt.Errorf("put category item: %w", err)
	}
	return t.exec(ctx, "put category item",
		`INSERT INTO category_items (category_id, item_id, name, price_cents, status, image)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (category_id, item_id) DO UPDATE SET
		     name = excluded.name,
		     price_cents = excluded.price_cents,
		     status = excluded.status,
		     image = excluded.image`,
		categoryID, itemID, name, cents, status, image)
}

func (t *catalogTx) RemoveCategoryItem(ctx context.Context, categoryID, itemID string) error {
	return t.exec(ctx, "remove category item",
		`DELETE FROM category_items WHERE category_id = $1 AND item_id = $2`,
		categoryID, itemID)
}

func (t *catalogTx) CategoriesListingItem(ctx context.Context, itemID string) ([]string, error) {
	ids, err := t.ids(ctx, `SELECT category_id FROM category_items WHERE item_id = $1 ORDER BY category_id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("categories listing item: %w", err)
	}
	return ids, nil
}

func (t *catalogTx) EnsureCategoryVisibility(ctx context.Context, categoryID string, menuType catalog.MenuType, status catalog.Status) error {
	return t.exec(ctx, "ensure category visibility",
		`INSERT INTO category_visibility (category_id, menu_type, status) VALUES ($1, $2, $3)
		 ON CONFLICT (category_id, menu_type) DO UPDATE SET status = excluded.status
		 WHERE excluded.status = 'active'`,
		categoryID, string(menuType), string(status))
}

func (t *catalogTx) LinkCategoryMenu(ctx context.Context, categoryID, menuID string) error {
	return t.exec(ctx, "link category menu",
		`INSERT INTO category_menus (category_id, menu_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		categoryID, menuID)
}

func (t *catalogTx) PutMenuCategory(ctx context.Context, menuID, categoryID string) error {
	var name, status string
	err := t.q.QueryRow(ctx, `SELECT name, status FROM categories WHERE id = $1`, categoryID).Scan(&name, &status)
	if isNoRows(err) {
		return fmt.Errorf("put menu category: %w", notFound(catalog.KindCategory, categoryID))
	}
	if err != nil {
		return fmt.Errorf("put menu category: %w", err)
	}
	return t.exec(ctx, "put menu category",
		`INSERT INTO menu_categories (menu_id, category_id, name, status) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (menu_id, category_id) DO UPDATE SET name = excluded.name, status = excluded.status`,
		menuID, categoryID, name, status)
}

func (t *catalogTx) groupSnapshot(ctx context.Context, groupID string) (name, pricingType string, err error) {
	err = t.q.QueryRow(ctx, `SELECT name, pricing_type FROM modifier_groups WHERE id = $1`, groupID).Scan(&name, &pricingType)
	if isNoRows(err) {
		err = notFound(catalog.KindModifierGroup, groupID)
	}
	return
}

func (t *catalogTx) PutItemModifierGroup(ctx context.Context, itemID, groupID string) error {
	name, pricingType, err := t.groupSnapshot(ctx, groupID)
	if err != nil {
		return fmt.Errorf("put item modifier group: %w", err)
	}
	return t.exec(ctx, "put item modifier group",
		`INSERT INTO item_modifier_groups (item_id, modifier_group_id, name, pricing_type) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (item_id, modifier_group_id) DO UPDATE SET name = excluded.name, pricing_type = excluded.pricing_type`,
		itemID, groupID, name, pricingType)
}

func (t *catalogTx) RemoveItemModifierGroup(ctx context.Context, itemID, groupID string) error {
	return t.exec(ctx, "remove item modifier group",
		`DELETE FROM item_modifier_groups WHERE item_id = $1 AND modifier_group_id = $2`,
		itemID, groupID)
}

func (t *catalogTx) LinkModifierGroupItem(ctx context.Context, groupID, itemID string) error {
	return t.exec(ctx, "link modifier group item",
		`INSERT INTO modifier_group_items (modifier_group_id, item_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, itemID)
}

func (t *catalogTx) UnlinkModifierGroupItem(ctx context.Context, groupID, itemID string) error {
	return t.exec(ctx, "unlink modifier group item",
		`DELETE FROM modifier_group_items WHERE modifier_group_id = $1 AND item_id = $2`,
		groupID, itemID)
}

func (t *catalogTx) GroupsListingItem(ctx context.Context, itemID string) ([]string, error) {
	ids, err := t.ids(ctx, `SELECT modifier_group_id FROM modifier_group_items WHERE item_id = $1 ORDER BY modifier_group_id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("groups listing item: %w", err)
	}
	return ids, nil
}

func (t *catalogTx) modifierSnapshot(ctx context.Context, modifierID string) (name string, cents int64, err error) {
	err = t.q.QueryRow(ctx, `SELECT name, price_cents FROM modifiers WHERE id = $1`, modifierID).Scan(&name, &cents)
	if isNoRows(err) {
		err = notFound(catalog.KindModifier, modifierID)
	}
	return
}

func (t *catalogTx) PutGroupModifier(ctx context.Context, groupID string, snap catalog.ModifierSnapshot) error {
	name, cents, err := t.modifierSnapshot(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("put group modifier: %w", err)
	}
	return t.exec(ctx, "put group modifier",
		`INSERT INTO modifier_group_modifiers (modifier_group_id, modifier_id, name, description, price_cents, pre_select, is_item)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (modifier_group_id, modifier_id) DO UPDATE SET
		     name = excluded.name,
		     description = excluded.description,
		     price_cents = excluded.price_cents,
		     pre_select = excluded.pre_select,
		     is_item = excluded.is_item`,
		groupID, snap.ID, name, snap.Description, cents, snap.PreSelect, snap.IsItem)
}

func (t *catalogTx) LinkModifierGroup(ctx context.Context, modifierID, groupID string) error {
	return t.exec(ctx, "link modifier group",
		`INSERT INTO modifier_modifier_groups (modifier_id, modifier_group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		modifierID, groupID)
}

func (t *catalogTx) RefreshItemSnapshots(ctx context.Context, itemID string) error {
	name, cents, status, image, err := t.itemSnapshot(ctx, itemID)
	if err != nil {
		return fmt.Errorf("refresh item snapshots: %w", err)
	}
	return t.exec(ctx, "refresh item snapshots",
		`UPDATE category_items SET name = $1, price_cents = $2, status = $3, image = $4 WHERE item_id = $5`,
		name, cents, status, image, itemID)
}

func (t *catalogTx) RefreshModifierSnapshots(ctx context.Context, modifierID string) error {
	name, cents, err := t.modifierSnapshot(ctx, modifierID)
	if err != nil {
		return fmt.Errorf("refresh modifier snapshots: %w", err)
	}
	return t.exec(ctx, "refresh modifier snapshots",
		`UPDATE modifier_group_modifiers SET name = $1, price_cents = $2 WHERE modifier_id = $3`,
		name, cents, modifierID)
}

func (t *catalogTx) RefreshModifierGroupSnapshots(ctx context.Context, groupID string) error {
	name, pricingType, err := t.groupSnapshot(ctx, groupID)
	if err != nil {
		return fmt.Errorf("refresh modifier group snapshots: %w", err)
	}
	return t.exec(ctx, "refresh modifier group snapshots",
		`UPDATE item_modifier_groups SET name = $1, pricing_type = $2 WHERE modifier_group_id = $3`,
		name, pricingType, groupID)
}
