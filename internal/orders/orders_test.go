package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbo/shopbot/internal/orders"
)

func newManager(t *testing.T) *orders.Manager {
	t.Helper()
	return orders.NewManager(nil, nil, nil)
}

func TestManager_CreateAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	id1, err := m.Create(ctx, orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 100})
	require.NoError(t, err)
	id2, err := m.Create(ctx, orders.Order{Name: "B", Mobile: "2", Product: "Y", Price: 200, Total: 260})
	require.NoError(t, err)

	assert.Equal(t, id1+1, id2)

	active := m.Active()
	require.Len(t, active, 2)
	assert.Equal(t, id1, active[0].ID)
	assert.Equal(t, id2, active[1].ID)
	assert.Equal(t, orders.StatusPreparing, active[0].Status)
}

func TestManager_ActiveOrderedByID(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	const n = 8
	for i := 0; i < n; i++ {
		_, err := m.Create(ctx, orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 100})
		require.NoError(t, err)
	}

	// The active set lives in a map; Active must still list ascending IDs.
	active := m.Active()
	require.Len(t, active, n)
	for i := 1; i < n; i++ {
		assert.Less(t, active[i-1].ID, active[i].ID)
	}
}

func TestManager_TerminalTransitionArchivesOnce(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 100})
	require.NoError(t, err)

	require.NoError(t, m.Transition(ctx, id, orders.StatusDelivered))

	// The order lives in exactly one of the active set or the archive.
	assert.Empty(t, m.Active())
	entries := m.SalesLog()
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].Order.ID)
	assert.Equal(t, orders.StatusDelivered, entries[0].Order.Status)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), entries[0].TerminalDate)

	// Repeating the same terminal transition is an idempotent no-op.
	require.NoError(t, m.Transition(ctx, id, orders.StatusDelivered))
	assert.Len(t, m.SalesLog(), 1)
}

func TestManager_TransitionErrors(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 100})
	require.NoError(t, err)

	err = m.Transition(ctx, id+99, orders.StatusShipping)
	assert.ErrorIs(t, err, orders.ErrUnknownOrder)

	require.NoError(t, m.Transition(ctx, id, orders.StatusCanceled))

	// Archived under a different terminal status: not a duplicate, an error.
	err = m.Transition(ctx, id, orders.StatusDelivered)
	assert.ErrorIs(t, err, orders.ErrUnknownOrder)
}

func TestManager_InvalidTransitionRejected(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 100})
	require.NoError(t, err)
	require.NoError(t, m.Transition(ctx, id, orders.StatusShipping))

	err = m.Transition(ctx, id, orders.StatusPreparing)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// The failed transition must not have corrupted the order state.
	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, orders.StatusShipping, active[0].Status)
}

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, orders.StatusDelivered.IsTerminal())
	assert.True(t, orders.StatusCanceled.IsTerminal())
	assert.False(t, orders.StatusPreparing.IsTerminal())
	assert.False(t, orders.StatusShipping.IsTerminal())
	assert.False(t, orders.StatusDelivering.IsTerminal())
}

func TestManager_PurgeSalesLog(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 100})
	require.NoError(t, err)
	require.NoError(t, m.Transition(ctx, id, orders.StatusDelivered))

	// A fresh entry survives a 60-day retention sweep.
	removed := m.PurgeSalesLog(ctx, 60*24*time.Hour)
	assert.Zero(t, removed)
	assert.Len(t, m.SalesLog(), 1)

	// Zero retention places the cutoff at now, purging today's entry.
	removed = m.PurgeSalesLog(ctx, 0)
	assert.Equal(t, 1, removed)
	assert.Empty(t, m.SalesLog())
}

type captureNotifier struct {
	got []orders.Order
}

func (n *captureNotifier) Notify(_ context.Context, o orders.Order) error {
	n.got = append(n.got, o)
	return nil
}

func TestManager_CreateNotifies(t *testing.T) {
	t.Parallel()

	notifier := &captureNotifier{}
	m := orders.NewManager(nil, notifier, nil)

	id, err := m.Create(context.Background(), orders.Order{Name: "A", Mobile: "1", Product: "X", Price: 100, Total: 160})
	require.NoError(t, err)

	require.Len(t, notifier.got, 1)
	assert.Equal(t, id, notifier.got[0].ID)
	assert.Equal(t, int64(160), notifier.got[0].Total)
}
