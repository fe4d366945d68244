package catalog

import "github.com/shopspring/decimal"

// RowItem is one validated, normalized import row. It is the only input the
// sync engine accepts and travels inside job payloads, so every field is
// JSON-tagged. Validation tags are evaluated by the ingest package.
type RowItem struct {
	Name        string          `json:"name" validate:"required,max=60,catalogtext"`
	Description string          `json:"description,omitempty" validate:"omitempty,min=20,max=160,catalogtext"`
	Price       decimal.Decimal `json:"price" validate:"gt=0"`
	Status      Status          `json:"status" validate:"oneof=active inactive"`
	OrderLimit  *int            `json:"orderLimit,omitempty" validate:"omitempty,gt=0"`
	Available   bool            `json:"available"`
	Image       string          `json:"image,omitempty" validate:"omitempty,url"`

	Categories  []RowCategory `json:"categories" validate:"required,min=1,dive"`
	SubCategory *RowCategory  `json:"subCategory,omitempty"`

	// ModifierGroups is nil when the source does not describe modifier
	// groups at all; an empty, non-nil slice clears the item's groups.
	ModifierGroups []RowModifierGroup `json:"modifierGroups" validate:"omitempty,dive"`

	Visibility   map[MenuType]Status          `json:"visibility"`
	PriceOptions map[MenuType]decimal.Decimal `json:"priceOptions"`
	Options      []string                     `json:"options,omitempty"`

	// SourceRow is the 1-based spreadsheet line or POS element index.
	SourceRow int `json:"sourceRow,omitempty"`
}

// RowCategory names a category or sub-category of a row.
type RowCategory struct {
	Name        string `json:"name" validate:"required,max=60,catalogtext"`
	Description string `json:"description,omitempty" validate:"omitempty,min=20,max=160,catalogtext"`
}

type RowModifierGroup struct {
	Name        string        `json:"name" validate:"required,max=60,catalogtext"`
	PricingType string        `json:"pricingType,omitempty" validate:"omitempty,max=30"`
	Modifiers   []RowModifier `json:"modifiers" validate:"dive"`
}

type RowModifier struct {
	Name        string          `json:"name" validate:"required,max=60,catalogtext"`
	Description string          `json:"description,omitempty" validate:"omitempty,max=160"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	PreSelect   bool            `json:"preSelect"`
	IsItem      bool            `json:"isItem"`
}
