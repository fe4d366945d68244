package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Maintainer keeps both sides of every reference between an item and the
// entities around it in step. All writes are add-to-set by id, so applying
// the same row twice leaves one membership and one snapshot.
type Maintainer struct {
	restaurantID string

	// menus is loaded once per job.
	menus []catalog.Menu
}

func NewMaintainer(restaurantID string) *Maintainer {
	return &Maintainer{restaurantID: restaurantID}
}

// Maintain links the item of res to its resolved categories and modifier
// groups and removes it from the ones it left.
func (m *Maintainer) Maintain(ctx context.Context, tx catalog.Tx, row *catalog.RowItem, res *Resolved) error {
	if err := m.syncCategories(ctx, tx, res); err != nil {
		return err
	}
	if err := m.syncChannels(ctx, tx, row, res); err != nil {
		return err
	}
	if res.ModifierGroups != nil {
		if err := m.syncModifierGroups(ctx, tx, res); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maintainer) syncCategories(ctx context.Context, tx catalog.Tx, res *Resolved) error {
	item := res.Item

	for _, old := range res.Prior.Categories {
		if slices.Contains(res.Categories, old) {
			continue
		}
		if err := tx.UnlinkItemCategory(ctx, item, old); err != nil {
			return err
		}
		if err := tx.RemoveCategoryItem(ctx, old, item); err != nil {
			return err
		}
	}

	// Snapshots left behind by an earlier inconsistent write.
	listing, err := tx.CategoriesListingItem(ctx, item)
	if err != nil {
		return err
	}
	for _, c := range listing {
		if !slices.Contains(res.Categories, c) {
			if err := tx.RemoveCategoryItem(ctx, c, item); err != nil {
				return err
			}
		}
	}

	for _, c := range res.Categories {
		if err := tx.LinkItemCategory(ctx, item, c); err != nil {
			return err
		}
		if err := tx.PutCategoryItem(ctx, c, item); err != nil {
			return err
		}
	}
	return nil
}

// syncChannels carries the row's channel visibility onto its categories
// and links the categories to the menus of the channels the row is active
// on. Neither is ever taken away by a sync.
func (m *Maintainer) syncChannels(ctx context.Context, tx catalog.Tx, row *catalog.RowItem, res *Resolved) error {
	if m.menus == nil {
		menus, err := tx.ListMenus(ctx, m.restaurantID)
		if err != nil {
			return err
		}
		m.menus = append(make([]catalog.Menu, 0, len(menus)), menus...)
	}

	for _, c := range res.Categories {
		for mt, status := range row.Visibility {
			if err := tx.EnsureCategoryVisibility(ctx, c, mt, status); err != nil {
				return err
			}
		}
		for _, menu := range m.menus {
			if row.Visibility[menu.Type] != catalog.StatusActive {
				continue
			}
			if err := tx.LinkCategoryMenu(ctx, c, menu.ID); err != nil {
				return err
			}
			if err := tx.PutMenuCategory(ctx, menu.ID, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Maintainer) syncModifierGroups(ctx context.Context, tx catalog.Tx, res *Resolved) error {
	item := res.Item
	groups := make([]string, len(res.ModifierGroups))
	for i, g := range res.ModifierGroups {
		groups[i] = g.ID
	}

	for _, old := range res.Prior.ModifierGroups {
		if slices.Contains(groups, old) {
			continue
		}
		if err := tx.RemoveItemModifierGroup(ctx, item, old); err != nil {
			return err
		}
		if err := tx.UnlinkModifierGroupItem(ctx, old, item); err != nil {
			return err
		}
	}

	listing, err := tx.GroupsListingItem(ctx, item)
	if err != nil {
		return err
	}
	for _, g := range listing {
		if !slices.Contains(groups, g) {
			if err := tx.UnlinkModifierGroupItem(ctx, g, item); err != nil {
				return err
			}
		}
	}

	for _, g := range res.ModifierGroups {
		if err := tx.PutItemModifierGroup(ctx, item, g.ID); err != nil {
			return err
		}
		if err := tx.LinkModifierGroupItem(ctx, g.ID, item); err != nil {
			return err
		}
		for _, mod := range g.Modifiers {
			if err := tx.LinkModifierGroup(ctx, mod.ID, g.ID); err != nil {
				return err
			}
			if err := tx.PutGroupModifier(ctx, g.ID, mod); err != nil {
				return err
			}
		}
	}
	return nil
}

// Verify checks that every reference touching the item of res is matched
// by its counterpart and that every snapshot equals the entity it copies.
func (m *Maintainer) Verify(ctx context.Context, tx catalog.Tx, res *Resolved) error {
	item, err := tx.GetItem(ctx, res.Item)
	if err != nil {
		return err
	}

	listing, err := tx.CategoriesListingItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if !sameSet(item.Categories, listing) {
		return inconsistent("item %q is in categories %v but listed by %v", item.Name, item.Categories, listing)
	}
	for _, cid := range item.Categories {
		c, err := tx.GetCategory(ctx, cid)
		if err != nil {
			return err
		}
		if err := verifyItemSnapshot(item, c); err != nil {
			return err
		}
		if err := verifyMenus(ctx, tx, c); err != nil {
			return err
		}
	}

	groups := make([]string, len(item.ModifierGroups))
	for i, g := range item.ModifierGroups {
		groups[i] = g.ID
	}
	if listing, err = tx.GroupsListingItem(ctx, item.ID); err != nil {
		return err
	}
	if !sameSet(groups, listing) {
		return inconsistent("item %q has modifier groups %v but is listed by %v", item.Name, groups, listing)
	}
	for _, snap := range item.ModifierGroups {
		g, err := tx.GetModifierGroup(ctx, snap.ID)
		if err != nil {
			return err
		}
		if snap.Name != g.Name || snap.PricingType != g.PricingType {
			return inconsistent("item %q holds a stale snapshot of modifier group %q", item.Name, g.Name)
		}
		if err := verifyModifiers(ctx, tx, g); err != nil {
			return err
		}
	}
	return nil
}

func verifyItemSnapshot(item *catalog.Item, c *catalog.Category) error {
	var found []catalog.ItemSnapshot
	for _, s := range c.Items {
		if s.ID == item.ID {
			found = append(found, s)
		}
	}
	if len(found) != 1 {
		return inconsistent("category %q lists item %q %d times", c.Name, item.Name, len(found))
	}
	s := found[0]
	if s.Name != item.Name || !s.Price.Equal(item.Price) || s.Status != item.Status {
		return inconsistent("category %q holds a stale snapshot of item %q", c.Name, item.Name)
	}
	return nil
}

func verifyMenus(ctx context.Context, tx catalog.Tx, c *catalog.Category) error {
	for _, mid := range c.Menus {
		menu, err := tx.GetMenu(ctx, mid)
		if err != nil {
			return err
		}
		n := 0
		for _, s := range menu.Categories {
			if s.ID == c.ID {
				n++
				if s.Name != c.Name || s.Status != c.Status {
					return inconsistent("menu %q holds a stale snapshot of category %q", menu.Name, c.Name)
				}
			}
		}
		if n != 1 {
			return inconsistent("menu %q lists category %q %d times", menu.Name, c.Name, n)
		}
	}
	return nil
}

func verifyModifiers(ctx context.Context, tx catalog.Tx, g *catalog.ModifierGroup) error {
	for _, snap := range g.Modifiers {
		mod, err := tx.GetModifier(ctx, snap.ID)
		if err != nil {
			return err
		}
		if !slices.Contains(mod.ModifierGroups, g.ID) {
			return inconsistent("modifier %q is listed by group %q but does not reference it", mod.Name, g.Name)
		}
		if snap.Name != mod.Name || !snap.Price.Equal(mod.Price) {
			return inconsistent("group %q holds a stale snapshot of modifier %q", g.Name, mod.Name)
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !slices.Contains(b, v) {
			return false
		}
	}
	return true
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), catalog.ErrInconsistent)
}
