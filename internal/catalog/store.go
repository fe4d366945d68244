package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store runs units of work. fn's writes commit together when it returns nil
// and are rolled back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the catalog as seen from inside one unit of work.
//
// Lookups return an error matching ErrNotFound when nothing matches. Inserts
// of an entity whose natural key is already taken return ErrDuplicateKey and
// leave the transaction usable. Membership writes are add-to-set: writing an
// existing pair replaces its snapshot columns instead of duplicating it.
type Tx interface {
	// FindID resolves a natural key to an entity id.
	FindID(ctx context.Context, kind Kind, restaurantID, name string) (string, error)

	InsertCategory(ctx context.Context, c *Category) error
	UpdateCategoryDescription(ctx context.Context, id, description string) error
	InsertSubCategory(ctx context.Context, s *SubCategory) error
	UpdateSubCategoryDescription(ctx context.Context, id, description string) error
	InsertModifierGroup(ctx context.Context, g *ModifierGroup) error
	UpdateModifierGroupPricing(ctx context.Context, id, pricingType string) error
	InsertModifier(ctx context.Context, m *Modifier) error
	UpdateModifierPrice(ctx context.Context, id string, price decimal.Decimal) error
	InsertItem(ctx context.Context, it *Item) error
	// UpdateItem rewrites the scalar columns and the sub-category snapshot.
	// An empty description or image keeps the stored value.
	UpdateItem(ctx context.Context, it *Item) error
	SetItemVisibility(ctx context.Context, itemID string, vis map[MenuType]Status) error
	SetItemPriceOptions(ctx context.Context, itemID string, prices map[MenuType]decimal.Decimal) error
	// SetItemOptions replaces the item's option set.
	SetItemOptions(ctx context.Context, itemID string, options []string) error

	GetItem(ctx context.Context, id string) (*Item, error)
	GetCategory(ctx context.Context, id string) (*Category, error)
	GetSubCategory(ctx context.Context, id string) (*SubCategory, error)
	GetModifierGroup(ctx context.Context, id string) (*ModifierGroup, error)
	GetModifier(ctx context.Context, id string) (*Modifier, error)
	GetMenu(ctx context.Context, id string) (*Menu, error)
	GetTaxRate(ctx context.Context, id string) (*TaxRate, error)
	ListMenus(ctx context.Context, restaurantID string) ([]Menu, error)
	ListItems(ctx context.Context, restaurantID string) ([]Item, error)
	ListCategories(ctx context.Context, restaurantID string) ([]Category, error)

	// Item <-> Category.
	LinkItemCategory(ctx context.Context, itemID, categoryID string) error
	UnlinkItemCategory(ctx context.Context, itemID, categoryID string) error
	// PutCategoryItem writes the item's current snapshot into the category.
	PutCategoryItem(ctx context.Context, categoryID, itemID string) error
	RemoveCategoryItem(ctx context.Context, categoryID, itemID string) error
	// CategoriesListingItem returns the categories whose item snapshots
	// contain itemID.
	CategoriesListingItem(ctx context.Context, itemID string) ([]string, error)

	// Category visibility and Category <-> Menu.
	// EnsureCategoryVisibility adds the entry when absent and upgrades an
	// inactive entry when status is active. It never downgrades.
	EnsureCategoryVisibility(ctx context.Context, categoryID string, menuType MenuType, status Status) error
	LinkCategoryMenu(ctx context.Context, categoryID, menuID string) error
	// PutMenuCategory writes the category's current snapshot into the menu.
	PutMenuCategory(ctx context.Context, menuID, categoryID string) error

	// Item <-> ModifierGroup.
	PutItemModifierGroup(ctx context.Context, itemID, groupID string) error
	RemoveItemModifierGroup(ctx context.Context, itemID, groupID string) error
	LinkModifierGroupItem(ctx context.Context, groupID, itemID string) error
	UnlinkModifierGroupItem(ctx context.Context, groupID, itemID string) error
	// GroupsListingItem returns the groups whose item set contains itemID.
	GroupsListingItem(ctx context.Context, itemID string) ([]string, error)

	// ModifierGroup <-> Modifier. PutGroupModifier takes name and price from
	// the modifier row and the membership flags from snap.
	PutGroupModifier(ctx context.Context, groupID string, snap ModifierSnapshot) error
	LinkModifierGroup(ctx context.Context, modifierID, groupID string) error

	// Snapshot refreshes after an authoritative row changed.
	RefreshItemSnapshots(ctx context.Context, itemID string) error
	RefreshModifierSnapshots(ctx context.Context, modifierID string) error
	RefreshModifierGroupSnapshots(ctx context.Context, groupID string) error

	// Restaurant-wide propagation. Each returns the number of rows written.
	AddMissingCategoryVisibility(ctx context.Context, restaurantID string, menuType MenuType, status Status) (int64, error)
	AddMissingItemVisibility(ctx context.Context, restaurantID string, menuType MenuType, status Status) (int64, error)
	AddMissingItemPriceOptions(ctx context.Context, restaurantID string, menuType MenuType) (int64, error)
	SetMissingMenuTax(ctx context.Context, restaurantID string, tax TaxSnapshot) (int64, error)
	OverwriteMenuTax(ctx context.Context, restaurantID string, tax TaxSnapshot) (int64, error)

	// Administrative inserts used by menu and tax-rate management.
	InsertMenu(ctx context.Context, m *Menu) error
	InsertTaxRate(ctx context.Context, t *TaxRate) error
	UpdateTaxRate(ctx context.Context, t *TaxRate) error
}
