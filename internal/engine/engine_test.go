package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/engine"
	"github.com/JonMunkholm/catalogsync/internal/store"
	"github.com/JonMunkholm/catalogsync/internal/store/storetest"
)

const restaurant = "r1"

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func row(name, category, p string, status catalog.Status) catalog.RowItem {
	return catalog.RowItem{
		Name:         name,
		Price:        price(p),
		Status:       status,
		Available:    true,
		Categories:   []catalog.RowCategory{{Name: category}},
		Visibility:   map[catalog.MenuType]catalog.Status{"DineIn": status},
		PriceOptions: map[catalog.MenuType]decimal.Decimal{"DineIn": price(p)},
	}
}

type catalogState struct {
	Items      []catalog.Item
	Categories []catalog.Category
}

func readState(t *testing.T, s catalog.Store) catalogState {
	t.Helper()
	var st catalogState
	err := s.WithTx(context.Background(), func(tx catalog.Tx) error {
		var err error
		if st.Items, err = tx.ListItems(context.Background(), restaurant); err != nil {
			return err
		}
		st.Categories, err = tx.ListCategories(context.Background(), restaurant)
		return err
	})
	require.NoError(t, err)
	return st
}

func findCategory(t *testing.T, st catalogState, name string) catalog.Category {
	t.Helper()
	for _, c := range st.Categories {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("category %q not found", name)
	return catalog.Category{}
}

func findItem(t *testing.T, st catalogState, name string) catalog.Item {
	t.Helper()
	for _, it := range st.Items {
		if it.Name == name {
			return it
		}
	}
	t.Fatalf("item %q not found", name)
	return catalog.Item{}
}

func apply(t *testing.T, s catalog.Store, rows ...catalog.RowItem) engine.Summary {
	t.Helper()
	summary, err := engine.NewCoordinator(s).Apply(context.Background(), restaurant, rows)
	require.NoError(t, err)
	return summary
}

func TestScenarioA(t *testing.T) {
	s, _ := storetest.New(t)
	batch := []catalog.RowItem{
		row("Burger", "Mains", "9.99", catalog.StatusActive),
		row("Fries", "Sides", "3.50", catalog.StatusInactive),
	}

	summary := apply(t, s, batch...)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, engine.Count{Created: 2}, summary.Tally[catalog.KindItem])
	assert.Equal(t, engine.Count{Created: 2}, summary.Tally[catalog.KindCategory])

	first := readState(t, s)
	require.Len(t, first.Items, 2)
	require.Len(t, first.Categories, 2)

	burger := findItem(t, first, "Burger")
	mains := findCategory(t, first, "Mains")
	sides := findCategory(t, first, "Sides")
	assert.Equal(t, []string{mains.ID}, burger.Categories)
	require.Len(t, mains.Items, 1)
	assert.Equal(t, burger.ID, mains.Items[0].ID)
	assert.Equal(t, "Burger", mains.Items[0].Name)
	assert.True(t, price("9.99").Equal(mains.Items[0].Price))
	assert.Equal(t, catalog.StatusActive, mains.Items[0].Status)
	require.Len(t, sides.Items, 1)
	assert.Equal(t, "Fries", sides.Items[0].Name)
	assert.Equal(t, catalog.StatusInactive, sides.Items[0].Status)
	assert.Nil(t, burger.SubCategory)

	// Redelivery of the same batch converges to the same state.
	summary = apply(t, s, batch...)
	assert.Equal(t, engine.Count{Updated: 2}, summary.Tally[catalog.KindItem])
	assert.Equal(t, engine.Count{Updated: 2}, summary.Tally[catalog.KindCategory])
	assert.Equal(t, first, readState(t, s))
}

func TestScenarioB(t *testing.T) {
	s, _ := storetest.New(t)

	apply(t, s, row("Burger", "Mains", "9.99", catalog.StatusActive))
	apply(t, s, row("Burger", "Specials", "9.99", catalog.StatusActive))

	st := readState(t, s)
	burger := findItem(t, st, "Burger")
	mains := findCategory(t, st, "Mains")
	specials := findCategory(t, st, "Specials")

	assert.Empty(t, mains.Items)
	require.Len(t, specials.Items, 1)
	assert.Equal(t, burger.ID, specials.Items[0].ID)
	assert.Equal(t, []string{specials.ID}, burger.Categories)
}

func TestItemUpdateRefreshesSnapshots(t *testing.T) {
	s, _ := storetest.New(t)

	apply(t, s, row("Burger", "Mains", "9.99", catalog.StatusActive))
	summary := apply(t, s, row("Burger", "Mains", "10.49", catalog.StatusInactive))
	assert.Equal(t, engine.Count{Updated: 1}, summary.Tally[catalog.KindItem])

	st := readState(t, s)
	burger := findItem(t, st, "Burger")
	mains := findCategory(t, st, "Mains")
	assert.True(t, price("10.49").Equal(burger.Price))
	require.Len(t, mains.Items, 1)
	assert.True(t, price("10.49").Equal(mains.Items[0].Price))
	assert.Equal(t, catalog.StatusInactive, mains.Items[0].Status)
	assert.True(t, price("10.49").Equal(burger.PriceOptions["DineIn"]))
}

func TestResolveRowRefreshesEmbeddedItemSnapshots(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	apply(t, s, row("Burger", "Mains", "9.99", catalog.StatusActive))

	// Resolution alone, without the maintainer's relinking, leaves every
	// category listing the item in step with the updated row.
	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		updated := row("Burger", "Specials", "11.25", catalog.StatusInactive)
		res, err := engine.NewResolver(restaurant).ResolveRow(ctx, tx, &updated)
		require.NoError(t, err)
		assert.False(t, res.ItemCreated)

		cats, err := tx.ListCategories(ctx, restaurant)
		require.NoError(t, err)
		mains := findCategory(t, catalogState{Categories: cats}, "Mains")
		require.Len(t, mains.Items, 1)
		assert.True(t, price("11.25").Equal(mains.Items[0].Price))
		assert.Equal(t, catalog.StatusInactive, mains.Items[0].Status)
		return nil
	}))
}

func TestSubCategorySnapshot(t *testing.T) {
	s, _ := storetest.New(t)

	r := row("Burger", "Mains", "9.99", catalog.StatusActive)
	r.SubCategory = &catalog.RowCategory{Name: "Grill", Description: "Cooked over an open flame"}
	apply(t, s, r)

	// A row without a description keeps the stored one.
	r.SubCategory = &catalog.RowCategory{Name: "Grill"}
	apply(t, s, r)

	burger := findItem(t, readState(t, s), "Burger")
	require.NotNil(t, burger.SubCategory)
	assert.Equal(t, "Grill", burger.SubCategory.Name)
	assert.Equal(t, "Cooked over an open flame", burger.SubCategory.Description)

	r.SubCategory = &catalog.RowCategory{Name: "Grill", Description: "Charred on the flat top grill"}
	apply(t, s, r)
	burger = findItem(t, readState(t, s), "Burger")
	assert.Equal(t, "Charred on the flat top grill", burger.SubCategory.Description)

	r.SubCategory = nil
	apply(t, s, r)
	burger = findItem(t, readState(t, s), "Burger")
	assert.Nil(t, burger.SubCategory)
}

// faultyStore wraps a store so tests can make single Tx calls fail.
type faultyStore struct {
	*store.Store
	failItem     string
	missOnceName string
	missed       bool
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(catalog.Tx) error) error {
	return f.Store.WithTx(ctx, func(tx catalog.Tx) error {
		return fn(&faultyTx{Tx: tx, store: f})
	})
}

type faultyTx struct {
	catalog.Tx
	store *faultyStore
}

var errDiskFull = errors.New("disk full")

func (t *faultyTx) InsertItem(ctx context.Context, it *catalog.Item) error {
	if it.Name == t.store.failItem {
		return errDiskFull
	}
	return t.Tx.InsertItem(ctx, it)
}

// FindID reports missOnceName as absent the first time it is looked up,
// as if another unit created it between lookup and insert.
func (t *faultyTx) FindID(ctx context.Context, kind catalog.Kind, restaurantID, name string) (string, error) {
	if name == t.store.missOnceName && !t.store.missed {
		t.store.missed = true
		return "", catalog.Errorf(catalog.ErrNotFound, "find", "%s %q does not exist", kind, name)
	}
	return t.Tx.FindID(ctx, kind, restaurantID, name)
}

func TestApplyIsAtomic(t *testing.T) {
	s, _ := storetest.New(t)
	fs := &faultyStore{Store: s, failItem: "Shake"}

	_, err := engine.NewCoordinator(fs).Apply(context.Background(), restaurant, []catalog.RowItem{
		row("Burger", "Mains", "9.99", catalog.StatusActive),
		row("Fries", "Sides", "3.50", catalog.StatusActive),
		row("Shake", "Drinks", "5.00", catalog.StatusActive),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrTransaction)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "Shake")

	st := readState(t, s)
	assert.Empty(t, st.Items)
	assert.Empty(t, st.Categories)
}

func TestConflictIsRetriedAsUpdate(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	existing := uuid.NewString()
	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		return tx.InsertCategory(ctx, &catalog.Category{ID: existing, RestaurantID: restaurant, Name: "Mains"})
	}))

	fs := &faultyStore{Store: s, missOnceName: "Mains"}
	summary, err := engine.NewCoordinator(fs).Apply(ctx, restaurant, []catalog.RowItem{
		row("Burger", "Mains", "9.99", catalog.StatusActive),
	})
	require.NoError(t, err)
	assert.True(t, fs.missed)
	assert.Equal(t, engine.Count{Updated: 1}, summary.Tally[catalog.KindCategory])

	st := readState(t, s)
	require.Len(t, st.Categories, 1)
	assert.Equal(t, existing, st.Categories[0].ID)
	assert.Equal(t, []string{existing}, findItem(t, st, "Burger").Categories)
}

func TestCategoriesFollowChannels(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	dineIn, delivery := uuid.NewString(), uuid.NewString()
	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		if err := tx.InsertMenu(ctx, &catalog.Menu{ID: dineIn, RestaurantID: restaurant, Name: "Dinner", Type: "DineIn"}); err != nil {
			return err
		}
		return tx.InsertMenu(ctx, &catalog.Menu{ID: delivery, RestaurantID: restaurant, Name: "Online", Type: "Delivery"})
	}))

	burger := row("Burger", "Mains", "9.99", catalog.StatusActive)
	burger.Visibility = map[catalog.MenuType]catalog.Status{"DineIn": catalog.StatusActive, "Delivery": catalog.StatusInactive}
	apply(t, s, burger)

	mains := findCategory(t, readState(t, s), "Mains")
	assert.Equal(t, []string{dineIn}, mains.Menus)
	assert.Equal(t, catalog.StatusActive, mains.Visibility["DineIn"])
	assert.Equal(t, catalog.StatusInactive, mains.Visibility["Delivery"])

	// Another item switches the category on for delivery.
	steak := row("Steak", "Mains", "24.00", catalog.StatusActive)
	steak.Visibility = map[catalog.MenuType]catalog.Status{"DineIn": catalog.StatusInactive, "Delivery": catalog.StatusActive}
	apply(t, s, steak)

	mains = findCategory(t, readState(t, s), "Mains")
	assert.ElementsMatch(t, []string{dineIn, delivery}, mains.Menus)
	assert.Equal(t, catalog.StatusActive, mains.Visibility["DineIn"], "visibility is never downgraded")
	assert.Equal(t, catalog.StatusActive, mains.Visibility["Delivery"])

	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		menu, err := tx.GetMenu(ctx, delivery)
		require.NoError(t, err)
		require.Len(t, menu.Categories, 1)
		assert.Equal(t, mains.ID, menu.Categories[0].ID)
		assert.Equal(t, "Mains", menu.Categories[0].Name)
		return nil
	}))
}

func modifierRow(groups ...catalog.RowModifierGroup) catalog.RowItem {
	r := row("Latte", "Drinks", "4.50", catalog.StatusActive)
	r.ModifierGroups = groups
	return r
}

func TestModifierGroups(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	milk := catalog.RowModifierGroup{Name: "Milk", PricingType: "extra", Modifiers: []catalog.RowModifier{
		{Name: "Oat", Price: price("0.75")},
		{Name: "Whole", Price: price("0"), PreSelect: true},
	}}
	syrup := catalog.RowModifierGroup{Name: "Syrup", PricingType: "extra", Modifiers: []catalog.RowModifier{
		{Name: "Vanilla", Price: price("0.50")},
	}}

	summary := apply(t, s, modifierRow(milk, syrup))
	assert.Equal(t, engine.Count{Created: 2}, summary.Tally[catalog.KindModifierGroup])
	assert.Equal(t, engine.Count{Created: 3}, summary.Tally[catalog.KindModifier])
	apply(t, s, modifierRow(milk, syrup))

	latte := findItem(t, readState(t, s), "Latte")
	require.Len(t, latte.ModifierGroups, 2)

	var milkID, syrupID string
	for _, g := range latte.ModifierGroups {
		switch g.Name {
		case "Milk":
			milkID = g.ID
		case "Syrup":
			syrupID = g.ID
		}
	}

	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		g, err := tx.GetModifierGroup(ctx, milkID)
		require.NoError(t, err)
		assert.Equal(t, []string{latte.ID}, g.Items)
		require.Len(t, g.Modifiers, 2)
		assert.Equal(t, "Oat", g.Modifiers[0].Name)
		assert.True(t, g.Modifiers[1].PreSelect)

		oat, err := tx.GetModifier(ctx, g.Modifiers[0].ID)
		require.NoError(t, err)
		assert.Equal(t, []string{milkID}, oat.ModifierGroups)
		return nil
	}))

	// A spreadsheet row does not describe modifier groups and leaves them.
	apply(t, s, row("Latte", "Drinks", "4.75", catalog.StatusActive))
	assert.Len(t, findItem(t, readState(t, s), "Latte").ModifierGroups, 2)

	// A POS row that drops a group removes the membership on both sides,
	// and a price change reaches the group's snapshot.
	milk.Modifiers[0].Price = price("0.90")
	apply(t, s, modifierRow(milk))

	latte = findItem(t, readState(t, s), "Latte")
	require.Len(t, latte.ModifierGroups, 1)
	assert.Equal(t, milkID, latte.ModifierGroups[0].ID)
	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		g, err := tx.GetModifierGroup(ctx, syrupID)
		require.NoError(t, err)
		assert.Empty(t, g.Items)

		g, err = tx.GetModifierGroup(ctx, milkID)
		require.NoError(t, err)
		assert.True(t, price("0.90").Equal(g.Modifiers[0].Price))
		return nil
	}))

	// An empty, non-nil list clears the item's groups.
	cleared := row("Latte", "Drinks", "4.75", catalog.StatusActive)
	cleared.ModifierGroups = []catalog.RowModifierGroup{}
	apply(t, s, cleared)
	assert.Empty(t, findItem(t, readState(t, s), "Latte").ModifierGroups)
}

func TestVerifyDetectsBrokenReference(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	apply(t, s, row("Burger", "Mains", "9.99", catalog.StatusActive))
	st := readState(t, s)
	burger := findItem(t, st, "Burger")
	mains := findCategory(t, st, "Mains")

	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		return tx.RemoveCategoryItem(ctx, mains.ID, burger.ID)
	}))
	err := s.WithTx(ctx, func(tx catalog.Tx) error {
		return engine.NewMaintainer(restaurant).Verify(ctx, tx, &engine.Resolved{Item: burger.ID})
	})
	assert.ErrorIs(t, err, catalog.ErrInconsistent)
	assert.ErrorIs(t, err, catalog.ErrConflict)

	// The repair sweep restores the missing snapshot on the next sync.
	apply(t, s, row("Burger", "Mains", "9.99", catalog.StatusActive))
	assert.Len(t, findCategory(t, readState(t, s), "Mains").Items, 1)
}

func TestResolverCachesPerJob(t *testing.T) {
	s, _ := storetest.New(t)
	ctx := context.Background()

	r := engine.NewResolver(restaurant)
	require.NoError(t, s.WithTx(ctx, func(tx catalog.Tx) error {
		first, created, err := r.Resolve(ctx, tx, catalog.KindCategory, "Mains", engine.Attrs{})
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := r.Resolve(ctx, tx, catalog.KindCategory, "Mains", engine.Attrs{Description: "Plates from the kitchen"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first, second)

		c, err := tx.GetCategory(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "Plates from the kitchen", c.Description)

		_, _, err = r.Resolve(ctx, tx, catalog.KindMenu, "Dinner", engine.Attrs{})
		assert.Error(t, err)
		return nil
	}))
	assert.Equal(t, engine.Count{Created: 1}, r.Tally()[catalog.KindCategory])
}
