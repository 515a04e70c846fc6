package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"os"

	"github.com/ZAPHODh/ws-guess-server/internal/models"
	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog is the read side of the item table.
type Catalog struct {
	db *gorm.DB
}

var _ services.Catalog = (*Catalog)(nil)

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) scope(ctx context.Context, excluding []string) *gorm.DB {
	q := c.db.WithContext(ctx).Model(&models.Item{})
	if len(excluding) > 0 {
		q = q.Where("id NOT IN ?", excluding)
	}
	return q
}

func (c *Catalog) Count(ctx context.Context, excluding []string) (int64, error) {
	var n int64
	err := c.scope(ctx, excluding).Count(&n).Error
	return n, err
}

// PickRandom returns an item chosen uniformly among those not excluded.
func (c *Catalog) PickRandom(ctx context.Context, excluding []string) (*models.Item, error) {
	n, err := c.Count(ctx, excluding)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, services.ErrNoItemsAvailable
	}

	var item models.Item
	err = c.scope(ctx, excluding).
		Order("id").
		Offset(int(rand.Int64N(n))).
		Limit(1).
		Take(&item).Error
	if err != nil {
		return nil, fmt.Errorf("pick item: %w", err)
	}
	return &item, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, notFound(err, services.ErrNoItemsAvailable)
	}
	return &item, nil
}

// Add inserts items, skipping ids that already exist. Items without an id
// get one.
func (c *Catalog) Add(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(items, 100).Error
}

// LoadItems reads a JSON array of items.
func LoadItems(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []models.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return items, nil
}

// SeedFromFile fills an empty catalog from path. It returns how many items
// were loaded; a catalog that already has items is left alone.
func (c *Catalog) SeedFromFile(ctx context.Context, path string) (int, error) {
	n, err := c.Count(ctx, nil)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	items, err := LoadItems(path)
	if err != nil {
		return 0, err
	}
	if err := c.Add(ctx, items); err != nil {
		return 0, fmt.Errorf("seed items: %w", err)
	}
	log.Printf("catalog: seeded %d items from %s", len(items), path)
	return len(items), nil
}
