package services

import (
	"context"
	"fmt"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
)

type Catalog interface {
	Count(ctx context.Context, excluding []string) (int64, error)
	PickRandom(ctx context.Context, excluding []string) (*models.Item, error)
	Get(ctx context.Context, id string) (*models.Item, error)
}

// SelectItem picks uniformly among items the session has not used yet. Once
// every item has been used it picks uniformly from the whole catalog.
func SelectItem(ctx context.Context, catalog Catalog, used []string) (*models.Item, error) {
	if len(used) > 0 {
		unused, err := catalog.Count(ctx, used)
		if err != nil {
			return nil, fmt.Errorf("count unused items: %w", err)
		}
		if unused > 0 {
			return catalog.PickRandom(ctx, used)
		}
	}

	total, err := catalog.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	if total == 0 {
		return nil, ErrNoItemsAvailable
	}
	return catalog.PickRandom(ctx, nil)
}
