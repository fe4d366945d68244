package ingest

import (
	"slices"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/registry"
)

// RestaurantContext is what an import of one restaurant is checked against.
type RestaurantContext struct {
	RestaurantID     string
	RowLimit         int
	OrderChannels    []catalog.MenuType
	ItemOptions      []string
	ExclusiveOptions [][]string
}

// NewRestaurantContext combines the registry options of a restaurant with
// the channel types of its existing menus. Menu types missing from the
// registry are appended in the order given, so a channel introduced by
// creating a menu gets its own spreadsheet column.
func NewRestaurantContext(restaurantID string, o registry.Options, menuTypes []catalog.MenuType) RestaurantContext {
	channels := slices.Clone(o.OrderChannels)
	for _, mt := range menuTypes {
		if mt != "" && !slices.Contains(channels, mt) {
			channels = append(channels, mt)
		}
	}
	return RestaurantContext{
		RestaurantID:     restaurantID,
		RowLimit:         o.RowLimit,
		OrderChannels:    channels,
		ItemOptions:      o.ItemOptions,
		ExclusiveOptions: o.ExclusiveOptions,
	}
}

func (rc RestaurantContext) hasChannel(mt catalog.MenuType) bool {
	return slices.Contains(rc.OrderChannels, mt)
}

func (rc RestaurantContext) hasOption(name string) bool {
	return slices.Contains(rc.ItemOptions, name)
}
