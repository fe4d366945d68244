package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Count is the number of entities of one kind an import created and
// updated. Each entity is counted once per batch however many rows name it.
type Count struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Tally holds a Count per entity kind.
type Tally map[catalog.Kind]Count

func (t Tally) record(kind catalog.Kind, created bool) {
	c := t[kind]
	if created {
		c.Created++
	} else {
		c.Updated++
	}
	t[kind] = c
}

// Attrs are the attributes written when an entity is created, and
// reconciled onto it when it already exists. Zero values are not written
// over stored ones.
type Attrs struct {
	Description string
	PricingType string
	Price       *decimal.Decimal
}

// Resolved holds the ids a row resolved to.
type Resolved struct {
	Item        string
	ItemCreated bool
	Categories  []string
	SubCategory *catalog.SubCategorySnapshot

	// ModifierGroups is nil when the row does not describe modifier groups.
	ModifierGroups []ResolvedGroup

	// Prior is the item's membership before this row was applied. It is
	// empty for a new item.
	Prior Membership
}

// ResolvedGroup is a modifier group and the modifiers the row lists in it.
type ResolvedGroup struct {
	ID        string
	Name      string
	Modifiers []catalog.ModifierSnapshot
}

// Membership is the set of categories and modifier groups an item belongs to.
type Membership struct {
	Categories     []string
	ModifierGroups []string
}

type cacheKey struct {
	kind catalog.Kind
	name string
}

// Resolver maps natural keys to ids, creating entities on first encounter.
// A Resolver belongs to one job run: its lookup cache is never shared.
type Resolver struct {
	restaurantID string
	newID        func() string
	cache        map[cacheKey]string
	tally        Tally
}

func NewResolver(restaurantID string) *Resolver {
	return &Resolver{
		restaurantID: restaurantID,
		newID:        uuid.NewString,
		cache:        make(map[cacheKey]string),
		tally:        make(Tally),
	}
}

// Tally returns the created and updated counts so far.
func (r *Resolver) Tally() Tally {
	out := make(Tally, len(r.tally))
	for k, v := range r.tally {
		out[k] = v
	}
	return out
}

// Resolve returns the id of the entity of kind named name, creating it with
// attrs when it does not exist. An insert that loses a race against another
// unit is retried as a lookup, so the same natural key always resolves to
// one id. Existing entities have attrs reconciled onto them.
func (r *Resolver) Resolve(ctx context.Context, tx catalog.Tx, kind catalog.Kind, name string, attrs Attrs) (string, bool, error) {
	key := cacheKey{kind: kind, name: name}
	if id, ok := r.cache[key]; ok {
		if err := r.reconcile(ctx, tx, kind, id, attrs); err != nil {
			return "", false, err
		}
		return id, false, nil
	}

	id, err := tx.FindID(ctx, kind, r.restaurantID, name)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrNotFound):
		id, err = r.create(ctx, tx, kind, name, attrs)
		if err == nil {
			r.cache[key] = id
			r.tally.record(kind, true)
			return id, true, nil
		}
		if !errors.Is(err, catalog.ErrDuplicateKey) {
			return "", false, err
		}
		if id, err = tx.FindID(ctx, kind, r.restaurantID, name); err != nil {
			return "", false, fmt.Errorf("resolve %s %q after conflict: %w", kind, name, err)
		}
	default:
		return "", false, err
	}

	r.cache[key] = id
	r.tally.record(kind, false)
	if err := r.reconcile(ctx, tx, kind, id, attrs); err != nil {
		return "", false, err
	}
	return id, false, nil
}

func (r *Resolver) create(ctx context.Context, tx catalog.Tx, kind catalog.Kind, name string, attrs Attrs) (string, error) {
	id := r.newID()
	var err error
	switch kind {
	case catalog.KindCategory:
		err = tx.InsertCategory(ctx, &catalog.Category{
			ID: id, RestaurantID: r.restaurantID, Name: name,
			Description: attrs.Description, Status: catalog.StatusActive,
		})
	case catalog.KindSubCategory:
		err = tx.InsertSubCategory(ctx, &catalog.SubCategory{
			ID: id, RestaurantID: r.restaurantID, Name: name, Description: attrs.Description,
		})
	case catalog.KindModifierGroup:
		err = tx.InsertModifierGroup(ctx, &catalog.ModifierGroup{
			ID: id, RestaurantID: r.restaurantID, Name: name, PricingType: attrs.PricingType,
		})
	case catalog.KindModifier:
		m := &catalog.Modifier{ID: id, RestaurantID: r.restaurantID, Name: name}
		if attrs.Price != nil {
			m.Price = *attrs.Price
		}
		err = tx.InsertModifier(ctx, m)
	default:
		return "", fmt.Errorf("resolve: %s entities are not created by sync", kind)
	}
	return id, err
}

// reconcile writes attrs onto an existing entity and refreshes the
// snapshots that embed the changed fields.
func (r *Resolver) reconcile(ctx context.Context, tx catalog.Tx, kind catalog.Kind, id string, attrs Attrs) error {
	switch kind {
	case catalog.KindCategory:
		if attrs.Description != "" {
			return tx.UpdateCategoryDescription(ctx, id, attrs.Description)
		}
	case catalog.KindSubCategory:
		if attrs.Description != "" {
			return tx.UpdateSubCategoryDescription(ctx, id, attrs.Description)
		}
	case catalog.KindModifierGroup:
		if attrs.PricingType != "" {
			if err := tx.UpdateModifierGroupPricing(ctx, id, attrs.PricingType); err != nil {
				return err
			}
			return tx.RefreshModifierGroupSnapshots(ctx, id)
		}
	case catalog.KindModifier:
		if attrs.Price != nil {
			if err := tx.UpdateModifierPrice(ctx, id, *attrs.Price); err != nil {
				return err
			}
			return tx.RefreshModifierSnapshots(ctx, id)
		}
	}
	return nil
}

// ResolveRow resolves every entity row references and writes the item
// itself. An existing item is updated in place and its prior membership is
// returned for the Maintainer to diff against.
func (r *Resolver) ResolveRow(ctx context.Context, tx catalog.Tx, row *catalog.RowItem) (*Resolved, error) {
	res := &Resolved{}

	for _, c := range row.Categories {
		id, _, err := r.Resolve(ctx, tx, catalog.KindCategory, c.Name, Attrs{Description: c.Description})
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Name, err)
		}
		if !slices.Contains(res.Categories, id) {
			res.Categories = append(res.Categories, id)
		}
	}

	if sc := row.SubCategory; sc != nil {
		id, _, err := r.Resolve(ctx, tx, catalog.KindSubCategory, sc.Name, Attrs{Description: sc.Description})
		if err != nil {
			return nil, fmt.Errorf("sub-category %q: %w", sc.Name, err)
		}
		stored, err := tx.GetSubCategory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("sub-category %q: %w", sc.Name, err)
		}
		res.SubCategory = &catalog.SubCategorySnapshot{ID: stored.ID, Name: stored.Name, Description: stored.Description}
	}

	if row.ModifierGroups != nil {
		res.ModifierGroups = make([]ResolvedGroup, 0, len(row.ModifierGroups))
		for _, g := range row.ModifierGroups {
			rg, err := r.resolveGroup(ctx, tx, g)
			if err != nil {
				return nil, err
			}
			res.ModifierGroups = append(res.ModifierGroups, rg)
		}
	}

	if err := r.resolveItem(ctx, tx, row, res); err != nil {
		return nil, fmt.Errorf("item %q: %w", row.Name, err)
	}
	return res, nil
}

func (r *Resolver) resolveGroup(ctx context.Context, tx catalog.Tx, g catalog.RowModifierGroup) (ResolvedGroup, error) {
	id, _, err := r.Resolve(ctx, tx, catalog.KindModifierGroup, g.Name, Attrs{PricingType: g.PricingType})
	if err != nil {
		return ResolvedGroup{}, fmt.Errorf("modifier group %q: %w", g.Name, err)
	}
	rg := ResolvedGroup{ID: id, Name: g.Name}
	for _, m := range g.Modifiers {
		price := m.Price
		mid, _, err := r.Resolve(ctx, tx, catalog.KindModifier, m.Name, Attrs{Price: &price})
		if err != nil {
			return ResolvedGroup{}, fmt.Errorf("modifier %q: %w", m.Name, err)
		}
		if slices.ContainsFunc(rg.Modifiers, func(s catalog.ModifierSnapshot) bool { return s.ID == mid }) {
			continue
		}
		rg.Modifiers = append(rg.Modifiers, catalog.ModifierSnapshot{
			ID:          mid,
			Name:        m.Name,
			Description: m.Description,
			Price:       m.Price,
			PreSelect:   m.PreSelect,
			IsItem:      m.IsItem,
		})
	}
	return rg, nil
}

func (r *Resolver) resolveItem(ctx context.Context, tx catalog.Tx, row *catalog.RowItem, res *Resolved) error {
	it := &catalog.Item{
		RestaurantID: r.restaurantID,
		Name:         row.Name,
		Description:  row.Description,
		Price:        row.Price,
		Status:       row.Status,
		OrderLimit:   row.OrderLimit,
		Available:    row.Available,
		Image:        row.Image,
		SubCategory:  res.SubCategory,
	}

	// Look up, insert, and on a lost insert race look up again.
	id, err := tx.FindID(ctx, catalog.KindItem, r.restaurantID, row.Name)
	if errors.Is(err, catalog.ErrNotFound) {
		it.ID = r.newID()
		err = tx.InsertItem(ctx, it)
		if err == nil {
			res.Item, res.ItemCreated = it.ID, true
			r.tally.record(catalog.KindItem, true)
			return r.writeItemMaps(ctx, tx, it.ID, row)
		}
		if errors.Is(err, catalog.ErrDuplicateKey) {
			id, err = tx.FindID(ctx, catalog.KindItem, r.restaurantID, row.Name)
		}
	}
	if err != nil {
		return err
	}

	existing, err := tx.GetItem(ctx, id)
	if err != nil {
		return err
	}
	res.Prior = Membership{Categories: existing.Categories}
	for _, g := range existing.ModifierGroups {
		res.Prior.ModifierGroups = append(res.Prior.ModifierGroups, g.ID)
	}

	it.ID = id
	if err := tx.UpdateItem(ctx, it); err != nil {
		return err
	}
	if err := tx.RefreshItemSnapshots(ctx, id); err != nil {
		return err
	}
	res.Item = id
	r.tally.record(catalog.KindItem, false)
	return r.writeItemMaps(ctx, tx, id, row)
}

func (r *Resolver) writeItemMaps(ctx context.Context, tx catalog.Tx, itemID string, row *catalog.RowItem) error {
	if err := tx.SetItemVisibility(ctx, itemID, row.Visibility); err != nil {
		return err
	}
	if err := tx.SetItemPriceOptions(ctx, itemID, row.PriceOptions); err != nil {
		return err
	}
	return tx.SetItemOptions(ctx, itemID, row.Options)
}
