package pos

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

const inventoryJSON = `{
  "elements": [
    {
      "id": "I1",
      "name": " Latte ",
      "alternateName": "Espresso with steamed milk foam",
      "price": 450,
      "hidden": false,
      "categories": {"elements": [{"id": "C1", "name": "Drinks"}]},
      "modifierGroups": {"elements": [{"id": "G1"}]}
    },
    {
      "id": "I2",
      "name": "Scone",
      "price": 300,
      "hidden": true,
      "available": false,
      "categories": {"elements": [{"id": "C2", "name": "Bakery"}]},
      "modifierGroups": {"elements": []}
    }
  ]
}`

const groupsJSON = `{
  "elements": [
    {
      "id": "G1",
      "name": "Milk",
      "minRequired": 1,
      "showByDefault": true,
      "modifiers": {"elements": [
        {"id": "M1", "name": "Whole", "price": 0},
        {"id": "M2", "name": "Oat", "price": 75},
        {"id": "M3", "name": "Soy", "price": 50, "available": false}
      ]}
    }
  ]
}`

func decode(t *testing.T) (Inventory, CloverModifierGroups) {
	t.Helper()
	var inv Inventory
	require.NoError(t, json.Unmarshal([]byte(inventoryJSON), &inv))
	var groups CloverModifierGroups
	require.NoError(t, json.Unmarshal([]byte(groupsJSON), &groups))
	return inv, groups
}

func TestMapInventory(t *testing.T) {
	inv, groups := decode(t)

	items, err := MapInventory(inv, groups)
	require.NoError(t, err)
	require.Len(t, items, 2)

	latte := items[0]
	assert.Equal(t, 1, latte.Index)
	assert.Equal(t, "Latte", latte.Name)
	assert.True(t, latte.Price.Equal(decimal.RequireFromString("4.50")))
	assert.True(t, latte.Active)
	assert.True(t, latte.Available)
	assert.Equal(t, []string{"Drinks"}, latte.Categories)

	require.Len(t, latte.ModifierGroups, 1)
	milk := latte.ModifierGroups[0]
	assert.Equal(t, "Milk", milk.Name)
	assert.Equal(t, PricingExtra, milk.PricingType)
	require.Len(t, milk.Modifiers, 2, "unavailable modifiers are skipped")
	assert.Equal(t, "Oat", milk.Modifiers[1].Name)
	assert.True(t, milk.Modifiers[1].Price.Equal(decimal.RequireFromString("0.75")))
	assert.True(t, milk.Modifiers[0].PreSelect)

	scone := items[1]
	assert.False(t, scone.Active)
	assert.False(t, scone.Available)
	assert.NotNil(t, scone.ModifierGroups)
	assert.Empty(t, scone.ModifierGroups)
}

func TestMapInventoryMissingGroup(t *testing.T) {
	inv, _ := decode(t)

	_, err := MapInventory(inv, CloverModifierGroups{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestMapGroupPricing(t *testing.T) {
	tests := []struct {
		name   string
		prices []int64
		want   string
	}{
		{"no modifiers", nil, PricingIncluded},
		{"all free", []int64{0, 0}, PricingIncluded},
		{"one paid", []int64{0, 25}, PricingExtra},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := CloverModifierGroup{ID: "G", Name: "Group"}
			if tt.prices != nil {
				g.Modifiers = &CloverModifiers{}
				for _, p := range tt.prices {
					g.Modifiers.Elements = append(g.Modifiers.Elements, CloverModifier{Name: "m", Price: p})
				}
			}
			if got := mapGroup(g).PricingType; got != tt.want {
				t.Errorf("pricing type = %q, want %q", got, tt.want)
			}
		})
	}
}
