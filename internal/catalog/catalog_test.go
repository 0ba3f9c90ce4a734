package catalog_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbo/shopbot/internal/catalog"
	"github.com/ezbo/shopbot/internal/database"
)

// fakeStore serves a single fixed blob; an empty value means no stored state.
type fakeStore struct {
	value []byte
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, int64, error) {
	if f.value == nil {
		return nil, 0, fmt.Errorf("failed to read %q: %w", key, database.ErrKeyNotFound)
	}
	return f.value, 1, nil
}

func (f *fakeStore) Put(_ context.Context, _ string, value []byte, _ int64) (int64, error) {
	f.value = value
	return 1, nil
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func TestCatalog_AddGetSnapshot(t *testing.T) {
	t.Parallel()

	c := catalog.New(nil, nil)
	ctx := context.Background()

	id := c.Add(ctx, catalog.Product{Category: "Men", Type: "Panjabi", Price: 800})
	assert.Equal(t, int64(1), id)

	got, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Panjabi", got.Type)

	_, ok = c.Get(99)
	assert.False(t, ok)

	snap := c.Snapshot()
	require.Len(t, snap, 1)

	// The snapshot is a copy; mutating it must not touch the catalog.
	snap[0].Price = 1
	fresh, _ := c.Get(id)
	assert.Equal(t, int64(800), fresh.Price)
}

func TestCatalog_UpdateAndRemove(t *testing.T) {
	t.Parallel()

	c := catalog.New(nil, nil)
	ctx := context.Background()

	id := c.Add(ctx, catalog.Product{Type: "Shirt", Price: 500})

	updated := catalog.Product{ID: id, Type: "Shirt", Price: 550}
	assert.True(t, c.Update(ctx, updated))
	got, _ := c.Get(id)
	assert.Equal(t, int64(550), got.Price)

	assert.False(t, c.Update(ctx, catalog.Product{ID: 99}))

	assert.True(t, c.Remove(ctx, id))
	assert.False(t, c.Remove(ctx, id))
	assert.Empty(t, c.Snapshot())
}

func TestCatalog_LoadMissingStateStartsEmpty(t *testing.T) {
	t.Parallel()

	// The store wraps its not-found sentinel; Load must still treat it as
	// "no stored catalog" rather than a failure.
	c := catalog.New(&fakeStore{}, nil)
	require.NoError(t, c.Load(context.Background()))
	assert.Empty(t, c.Snapshot())
}

func TestCatalog_LoadRestoresProductsAndIDs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{value: []byte(`[{"id":3,"type":"Panjabi","price":800},{"id":5,"type":"Shirt","price":500}]`)}
	c := catalog.New(store, nil)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.Len(t, c.Snapshot(), 2)
	got, ok := c.Get(5)
	require.True(t, ok)
	assert.Equal(t, "Shirt", got.Type)

	// New IDs continue past the restored range.
	id := c.Add(ctx, catalog.Product{Type: "Cap"})
	assert.Equal(t, int64(6), id)
}

func TestCatalog_SeedOnlyWhenEmpty(t *testing.T) {
	t.Parallel()

	c := catalog.New(nil, nil)
	ctx := context.Background()

	c.Seed(ctx, []catalog.Product{{Type: "Panjabi"}, {Type: "Shirt"}})
	require.Len(t, c.Snapshot(), 2)

	// A second seed against a non-empty catalog is a no-op.
	c.Seed(ctx, []catalog.Product{{Type: "Cap"}})
	assert.Len(t, c.Snapshot(), 2)

	// IDs continue past the seeded range.
	id := c.Add(ctx, catalog.Product{Type: "Cap"})
	assert.Equal(t, int64(3), id)
}
