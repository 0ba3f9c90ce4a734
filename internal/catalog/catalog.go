// Package catalog maintains the product catalog consumed by the similarity
// matcher and the prompt builder. Admin mutations and concurrent reads are
// reconciled through snapshot reads rather than a global lock.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ezbo/shopbot/internal/database"
)

const storeKey = "catalog/products"

// Product is a single catalog entry. Price is in integer minor currency
// units.
type Product struct {
	ID       int64    `json:"id"`
	Category string   `json:"category"`
	Type     string   `json:"type"`
	Sizes    []string `json:"sizes"`
	Colors   []string `json:"colors"`
	ImageURL string   `json:"image_url"`
	Price    int64    `json:"price"`
}

// Catalog holds the products behind a read/write lock. Snapshot returns a
// copy, so matchers keep an internally consistent view while an admin
// mutation is in flight.
type Catalog struct {
	mu       sync.RWMutex
	products []Product
	nextID   int64

	store  database.Store
	logger *slog.Logger
}

// New creates an empty catalog mirrored to the given store.
func New(store database.Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Catalog{
		nextID: 1,
		store:  store,
		logger: logger.With("component", "catalog"),
	}
}

// Load replaces the catalog contents from the persistence mirror. Missing
// state is not an error; the catalog simply starts empty.
func (c *Catalog) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	value, _, err := c.store.Get(ctx, storeKey)
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	var products []Product
	if err := json.Unmarshal(value, &products); err != nil {
		return fmt.Errorf("failed to decode stored catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = products
	c.nextID = 1
	for _, p := range products {
		if p.ID >= c.nextID {
			c.nextID = p.ID + 1
		}
	}

	c.logger.InfoContext(ctx, "Catalog loaded from store", "count", len(products))
	return nil
}

// Seed inserts products that are not already present. Used to install the
// configured starter catalog on first boot.
func (c *Catalog) Seed(ctx context.Context, products []Product) {
	c.mu.Lock()
	if len(c.products) == 0 {
		for i := range products {
			products[i].ID = c.nextID
			c.nextID++
		}
		c.products = append(c.products, products...)
	}
	c.mu.Unlock()

	c.mirror(ctx)
}

// Snapshot returns a copy of the current product list.
func (c *Catalog) Snapshot() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Get returns the product with the given ID.
func (c *Catalog) Get(id int64) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Add inserts a new product and returns its assigned ID.
func (c *Catalog) Add(ctx context.Context, p Product) int64 {
	c.mu.Lock()
	p.ID = c.nextID
	c.nextID++
	c.products = append(c.products, p)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Product added", "product_id", p.ID, "type", p.Type)
	c.mirror(ctx)
	return p.ID
}

// Update replaces the product with the same ID. Returns false if no such
// product exists.
func (c *Catalog) Update(ctx context.Context, p Product) bool {
	c.mu.Lock()
	found := false
	for i := range c.products {
		if c.products[i].ID == p.ID {
			c.products[i] = p
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return false
	}

	c.logger.InfoContext(ctx, "Product updated", "product_id", p.ID)
	c.mirror(ctx)
	return true
}

// Remove deletes the product with the given ID. Returns false if absent.
func (c *Catalog) Remove(ctx context.Context, id int64) bool {
	c.mu.Lock()
	found := false
	for i := range c.products {
		if c.products[i].ID == id {
			c.products = append(c.products[:i], c.products[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return false
	}

	c.logger.InfoContext(ctx, "Product removed", "product_id", id)
	c.mirror(ctx)
	return true
}

// mirror writes the catalog to the persistence store. Failures are logged;
// the in-memory catalog stays authoritative for the process lifetime.
func (c *Catalog) mirror(ctx context.Context) {
	if c.store == nil {
		return
	}

	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to encode catalog for mirroring", "error", err)
		return
	}

	if err := database.PutLatest(ctx, c.store, storeKey, data); err != nil {
		c.logger.ErrorContext(ctx, "Failed to mirror catalog to store", "error", err)
	}
}
