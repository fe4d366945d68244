// Package pos adapts point-of-sale inventory exports into vendor-neutral
// items and manages the OAuth credentials used to fetch them.
//
// The wire shapes follow Clover's v3 inventory API: every collection is
// wrapped in an {"elements": [...]} object and prices are integer cents.
package pos

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Inventory is the body of GET /v3/merchants/{mId}/items?expand=categories,modifierGroups.
type Inventory struct {
	Elements []CloverItem `json:"elements"`
}

type CloverItem struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	AlternateName  string               `json:"alternateName,omitempty"`
	Price          int64                `json:"price"`
	Hidden         bool                 `json:"hidden"`
	Available      *bool                `json:"available,omitempty"`
	Categories     CloverCategories     `json:"categories"`
	ModifierGroups CloverModifierGroups `json:"modifierGroups"`
}

type CloverCategories struct {
	Elements []CloverCategory `json:"elements"`
}

type CloverCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CloverModifierGroups is also the body of
// GET /v3/merchants/{mId}/modifier_groups?expand=modifiers.
type CloverModifierGroups struct {
	Elements []CloverModifierGroup `json:"elements"`
}

type CloverModifierGroup struct {
	ID            string           `json:"id"`
	Name          string           `json:"name,omitempty"`
	MinRequired   *int             `json:"minRequired,omitempty"`
	MaxAllowed    *int             `json:"maxAllowed,omitempty"`
	ShowByDefault bool             `json:"showByDefault"`
	Modifiers     *CloverModifiers `json:"modifiers,omitempty"`
}

type CloverModifiers struct {
	Elements []CloverModifier `json:"elements"`
}

type CloverModifier struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Available *bool  `json:"available,omitempty"`
}

// Item is one POS item in vendor-neutral form.
type Item struct {
	// Index is the item's 1-based position in the export.
	Index          int
	ExternalID     string
	Name           string
	Description    string
	Price          decimal.Decimal
	Active         bool
	Available      bool
	Categories     []string
	ModifierGroups []ModifierGroup
}

type ModifierGroup struct {
	Name        string
	PricingType string
	Modifiers   []Modifier
}

type Modifier struct {
	Name      string
	Price     decimal.Decimal
	PreSelect bool
}

// Pricing types derived from a group's modifiers.
const (
	PricingIncluded = "included"
	PricingExtra    = "extra"
)

func cents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// MapInventory converts an inventory export into Items. Modifier groups
// referenced by an item without their modifiers expanded are looked up in
// groups; a reference to a group absent from both is a not-found error.
func MapInventory(inv Inventory, groups CloverModifierGroups) ([]Item, error) {
	byID := make(map[string]CloverModifierGroup, len(groups.Elements))
	for _, g := range groups.Elements {
		byID[g.ID] = g
	}

	items := make([]Item, 0, len(inv.Elements))
	for i, ci := range inv.Elements {
		item := Item{
			Index:       i + 1,
			ExternalID:  ci.ID,
			Name:        strings.TrimSpace(ci.Name),
			Description: strings.TrimSpace(ci.AlternateName),
			Price:       cents(ci.Price),
			Active:      !ci.Hidden,
			Available:   ci.Available == nil || *ci.Available,
		}
		for _, c := range ci.Categories.Elements {
			item.Categories = append(item.Categories, strings.TrimSpace(c.Name))
		}

		item.ModifierGroups = []ModifierGroup{}
		for _, ref := range ci.ModifierGroups.Elements {
			g := ref
			if g.Modifiers == nil || g.Name == "" {
				full, ok := byID[ref.ID]
				if !ok {
					return nil, catalog.Errorf(catalog.ErrNotFound, "map inventory",
						"item %q references modifier group %s which is not in the export", ci.Name, ref.ID)
				}
				g = full
			}
			item.ModifierGroups = append(item.ModifierGroups, mapGroup(g))
		}

		items = append(items, item)
	}
	return items, nil
}

func mapGroup(g CloverModifierGroup) ModifierGroup {
	out := ModifierGroup{Name: strings.TrimSpace(g.Name), PricingType: PricingIncluded}
	if g.Modifiers == nil {
		return out
	}
	for _, m := range g.Modifiers.Elements {
		if m.Available != nil && !*m.Available {
			continue
		}
		if m.Price > 0 {
			out.PricingType = PricingExtra
		}
		out.Modifiers = append(out.Modifiers, Modifier{
			Name:      strings.TrimSpace(m.Name),
			Price:     cents(m.Price),
			PreSelect: g.ShowByDefault && g.MinRequired != nil && *g.MinRequired > 0,
		})
	}
	return out
}
