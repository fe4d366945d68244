package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the active/inactive flag carried by items, categories and
// visibility entries.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus accepts the spellings used by spreadsheets and POS payloads.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "true", "t", "yes", "y", "1":
		return StatusActive, true
	case "inactive", "false", "f", "no", "n", "0":
		return StatusInactive, true
	}
	return "", false
}

// MenuType is an order channel (DineIn, Delivery, Catering, ...).
type MenuType string

// Kind names an entity type. It is part of every natural key.
type Kind string

const (
	KindCategory      Kind = "category"
	KindSubCategory   Kind = "sub_category"
	KindModifierGroup Kind = "modifier_group"
	KindModifier      Kind = "modifier"
	KindItem          Kind = "item"
	KindMenu          Kind = "menu"
	KindTaxRate       Kind = "tax_rate"
)

// Kinds tracked by the import tally, in report order.
var TalliedKinds = []Kind{KindItem, KindCategory, KindSubCategory, KindModifierGroup, KindModifier}

// ItemSnapshot is the copy of an item embedded in Category.Items.
type ItemSnapshot struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Status Status
	Image  string
}

// SubCategorySnapshot is the single nullable sub-category embedded in an item.
type SubCategorySnapshot struct {
	ID          string
	Name        string
	Description string
}

// ModifierGroupSnapshot is the copy of a group embedded in Item.ModifierGroups.
type ModifierGroupSnapshot struct {
	ID          string
	Name        string
	PricingType string
}

// ModifierSnapshot is the copy of a modifier embedded in ModifierGroup.Modifiers.
// PreSelect and IsItem belong to the membership, not to the modifier itself.
type ModifierSnapshot struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	PreSelect   bool
	IsItem      bool
}

// CategorySnapshot is the copy of a category embedded in Menu.Categories.
type CategorySnapshot struct {
	ID     string
	Name   string
	Status Status
}

// TaxSnapshot is the single nullable tax embedded in a menu.
type TaxSnapshot struct {
	ID       string
	Name     string
	SalesTax decimal.Decimal
}

type Item struct {
	ID           string
	RestaurantID string
	Name         string
	Description  string
	Price        decimal.Decimal
	Status       Status
	OrderLimit   *int
	Available    bool
	Image        string
	Visibility   map[MenuType]Status
	PriceOptions map[MenuType]decimal.Decimal
	Options      []string
	SubCategory  *SubCategorySnapshot

	// Categories holds the ids of the categories containing the item.
	Categories     []string
	ModifierGroups []ModifierGroupSnapshot
}

// Snapshot returns the fields of the item embedded in its categories.
func (i *Item) Snapshot() ItemSnapshot {
	return ItemSnapshot{ID: i.ID, Name: i.Name, Price: i.Price, Status: i.Status, Image: i.Image}
}

type Category struct {
	ID           string
	RestaurantID string
	Name         string
	Description  string
	Status       Status
	Items        []ItemSnapshot
	Visibility   map[MenuType]Status
	Menus        []string
}

type SubCategory struct {
	ID           string
	RestaurantID string
	Name         string
	Description  string
}

type ModifierGroup struct {
	ID           string
	RestaurantID string
	Name         string
	PricingType  string
	Modifiers    []ModifierSnapshot
	Items        []string
}

type Modifier struct {
	ID             string
	RestaurantID   string
	Name           string
	Price          decimal.Decimal
	ModifierGroups []string
}

type Menu struct {
	ID           string
	RestaurantID string
	Name         string
	Type         MenuType
	Categories   []CategorySnapshot
	Tax          *TaxSnapshot
}

type TaxRate struct {
	ID           string
	RestaurantID string
	Name         string
	SalesTax     decimal.Decimal
}

// Snapshot returns the fields of the tax rate embedded in menus.
func (t *TaxRate) Snapshot() TaxSnapshot {
	return TaxSnapshot{ID: t.ID, Name: t.Name, SalesTax: t.SalesTax}
}
