// Package engine merges validated rows into the catalog graph.
//
// A batch is applied by the Coordinator inside a single transaction. For
// every row the Resolver maps names to ids (creating what is missing) and
// writes the item, then the Maintainer repairs the references on both sides
// and verifies them. Any error rolls the whole batch back.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/logging"
)

// Summary describes a committed batch.
type Summary struct {
	RestaurantID string        `json:"restaurantId"`
	Rows         int           `json:"rows"`
	Tally        Tally         `json:"tally"`
	Duration     time.Duration `json:"durationNs"`
}

// String renders the summary as JSON for storage on the job.
func (s Summary) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%d rows", s.Rows)
	}
	return string(b)
}

// Coordinator applies batches atomically.
type Coordinator struct {
	store catalog.Store
}

func NewCoordinator(store catalog.Store) *Coordinator {
	return &Coordinator{store: store}
}

// Apply merges rows into the restaurant's catalog. Either every row
// commits or none does. Errors that carry no kind are reported as
// transaction errors.
func (c *Coordinator) Apply(ctx context.Context, restaurantID string, rows []catalog.RowItem) (Summary, error) {
	start := time.Now()
	logger := logging.FromContext(ctx)

	resolver := NewResolver(restaurantID)
	maintainer := NewMaintainer(restaurantID)

	err := c.store.WithTx(ctx, func(tx catalog.Tx) error {
		for i := range rows {
			row := &rows[i]
			res, err := resolver.ResolveRow(ctx, tx, row)
			if err != nil {
				return rowError(row, i, err)
			}
			if err := maintainer.Maintain(ctx, tx, row, res); err != nil {
				return rowError(row, i, err)
			}
			if err := maintainer.Verify(ctx, tx, res); err != nil {
				return rowError(row, i, err)
			}
		}
		return nil
	})
	if err != nil {
		if catalog.KindOf(err) == nil {
			err = catalog.E(catalog.ErrTransaction, "apply batch", err)
		}
		logger.Warn("batch rolled back",
			"restaurant_id", restaurantID,
			"rows", len(rows),
			"error", err,
		)
		return Summary{}, err
	}

	summary := Summary{
		RestaurantID: restaurantID,
		Rows:         len(rows),
		Tally:        resolver.Tally(),
		Duration:     time.Since(start),
	}
	logger.Info("batch committed",
		"restaurant_id", restaurantID,
		"rows", len(rows),
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func rowError(row *catalog.RowItem, i int, err error) error {
	n := row.SourceRow
	if n == 0 {
		n = i + 1
	}
	return fmt.Errorf("row %d (%s): %w", n, row.Name, err)
}
