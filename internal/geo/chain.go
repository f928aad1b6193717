package geo

import (
	"context"

	"github.com/example/rider-core/internal/models"
)

// Chain asks each pool in turn and returns the first non-empty answer. A
// pool error is returned only when no later pool has drivers either.
type Chain []Pool

func (c Chain) Nearby(ctx context.Context, at models.Coord, limit int) ([]models.Driver, error) {
	var firstErr error
	for _, p := range c {
		ds, err := p.Nearby(ctx, at, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(ds) > 0 {
			return ds, nil
		}
	}
	return nil, firstErr
}
