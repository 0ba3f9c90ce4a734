// Package orders implements the order lifecycle state machine: creation
// from parsed confirmations, validated status transitions, terminal
// archival into the sales log, and retention sweeps.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ezbo/shopbot/internal/database"
)

// Status is an order lifecycle state.
type Status string

const (
	StatusPreparing  Status = "Preparing"
	StatusShipping   Status = "Shipping"
	StatusDelivering Status = "Delivering"
	StatusDelivered  Status = "Delivered"
	StatusCanceled   Status = "Canceled"
)

// IsTerminal reports whether the status archives the order.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCanceled
}

// transitions is the allowed state machine. Terminal states have no exits.
var transitions = map[Status][]Status{
	StatusPreparing:  {StatusShipping, StatusDelivering, StatusDelivered, StatusCanceled},
	StatusShipping:   {StatusDelivered, StatusCanceled},
	StatusDelivering: {StatusDelivered, StatusCanceled},
}

// Order is a customer order. It is mutated only through status transitions
// and lives in exactly one of the active set or the sales log at any time.
type Order struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Mobile         string `json:"mobile"`
	Address        string `json:"address"`
	Product        string `json:"product"`
	Price          int64  `json:"price"`
	DeliveryCharge int64  `json:"delivery_charge"`
	Subtotal       int64  `json:"subtotal"`
	Total          int64  `json:"total"`
	PaymentMethod  string `json:"payment_method"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Status         Status `json:"status"`
	Date           string `json:"date"`
}

// SalesLogEntry is an archived order plus its terminal date.
type SalesLogEntry struct {
	Order        Order  `json:"order"`
	TerminalDate string `json:"terminal_date"`
}

// Notifier receives the full payload of newly created orders.
// Delivery is fire-and-forget from the state machine's perspective.
type Notifier interface {
	Notify(ctx context.Context, order Order) error
}

// ErrUnknownOrder is returned when a transition references a missing id.
var ErrUnknownOrder = errors.New("unknown order")

// ErrInvalidTransition is returned for a transition the state machine
// forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

const (
	activeStoreKey   = "orders/active"
	salesLogStoreKey = "orders/saleslog"
)

// Manager owns the active order set and the sales log archive. All
// mutations go through the manager lock, so concurrent transitions on the
// same order resolve as a compare-and-move.
type Manager struct {
	store    database.Store
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	active   map[int64]*Order
	salesLog []SalesLogEntry
	nextID   int64
}

// NewManager creates an order manager mirrored to the given store.
func NewManager(store database.Store, notifier Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "orders"),
		active:   make(map[int64]*Order),
		nextID:   1,
	}
}

// Load restores the active set and sales log from the persistence mirror.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if value, _, err := m.store.Get(ctx, activeStoreKey); err == nil {
		var active []Order
		if err := json.Unmarshal(value, &active); err != nil {
			return fmt.Errorf("failed to decode stored orders: %w", err)
		}
		for i := range active {
			o := active[i]
			m.active[o.ID] = &o
			if o.ID >= m.nextID {
				m.nextID = o.ID + 1
			}
		}
	} else if !errors.Is(err, database.ErrKeyNotFound) {
		return fmt.Errorf("failed to load active orders: %w", err)
	}

	if value, _, err := m.store.Get(ctx, salesLogStoreKey); err == nil {
		if err := json.Unmarshal(value, &m.salesLog); err != nil {
			return fmt.Errorf("failed to decode stored sales log: %w", err)
		}
	} else if !errors.Is(err, database.ErrKeyNotFound) {
		return fmt.Errorf("failed to load sales log: %w", err)
	}

	m.logger.InfoContext(ctx, "Orders loaded from store",
		"active", len(m.active), "sales_log", len(m.salesLog))
	return nil
}

// Create registers a new order in the active set, mirrors it, and emits the
// notification. A notification failure is logged and does not roll back the
// order.
func (m *Manager) Create(ctx context.Context, order Order) (int64, error) {
	if order.Status == "" {
		order.Status = StatusPreparing
	}
	if order.Date == "" {
		order.Date = time.Now().UTC().Format("2006-01-02")
	}

	m.mu.Lock()
	order.ID = m.nextID
	m.nextID++
	m.active[order.ID] = &order
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Order created",
		"order_id", order.ID, "product", order.Product, "total", order.Total)
	m.mirrorActive(ctx)

	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, order); err != nil {
			m.logger.ErrorContext(ctx, "Order notification failed", "order_id", order.ID, "error", err)
		}
	}

	return order.ID, nil
}

// Transition moves the order to newStatus. Terminal transitions move the
// order into the sales log exactly once; repeating the same terminal status
// on an already archived order is an idempotent no-op.
func (m *Manager) Transition(ctx context.Context, id int64, newStatus Status) error {
	m.mu.Lock()

	order, ok := m.active[id]
	if !ok {
		// Already archived with the same terminal status is a no-op, not an
		// error, and never produces a duplicate archive entry.
		if newStatus.IsTerminal() {
			for _, entry := range m.salesLog {
				if entry.Order.ID == id && entry.Order.Status == newStatus {
					m.mu.Unlock()
					m.logger.DebugContext(ctx, "Duplicate terminal transition ignored", "order_id", id, "status", newStatus)
					return nil
				}
			}
		}
		m.mu.Unlock()
		return fmt.Errorf("%w: id %d", ErrUnknownOrder, id)
	}

	if !allowed(order.Status, newStatus) {
		from := order.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, newStatus)
	}

	order.Status = newStatus
	if newStatus.IsTerminal() {
		terminalDate := time.Now().UTC().Format("2006-01-02")
		order.Date = terminalDate
		m.salesLog = append(m.salesLog, SalesLogEntry{Order: *order, TerminalDate: terminalDate})
		delete(m.active, id)
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Order status changed", "order_id", id, "status", newStatus)
	m.mirrorActive(ctx)
	if newStatus.IsTerminal() {
		m.mirrorSalesLog(ctx)
	}
	return nil
}

func allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active returns a copy of the active order list, ordered by id.
func (m *Manager) Active() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SalesLog returns a copy of the archive.
func (m *Manager) SalesLog() []SalesLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SalesLogEntry, len(m.salesLog))
	copy(out, m.salesLog)
	return out
}

// PurgeSalesLog removes archive entries whose terminal date is older than
// the cutoff and returns the number removed. Safe against concurrent
// archive appends.
func (m *Manager) PurgeSalesLog(ctx context.Context, retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	m.mu.Lock()
	kept := m.salesLog[:0]
	removed := 0
	for _, entry := range m.salesLog {
		date, err := time.Parse("2006-01-02", entry.TerminalDate)
		if err == nil && date.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	m.salesLog = kept
	m.mu.Unlock()

	if removed > 0 {
		m.logger.InfoContext(ctx, "Purged old sales log entries", "removed", removed)
		m.mirrorSalesLog(ctx)
	}
	return removed
}

func (m *Manager) mirrorActive(ctx context.Context) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(m.Active())
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to encode active orders", "error", err)
		return
	}
	if err := database.PutLatest(ctx, m.store, activeStoreKey, data); err != nil {
		m.logger.ErrorContext(ctx, "Failed to mirror active orders", "error", err)
	}
}

func (m *Manager) mirrorSalesLog(ctx context.Context) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(m.SalesLog())
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to encode sales log", "error", err)
		return
	}
	if err := database.PutLatest(ctx, m.store, salesLogStoreKey, data); err != nil {
		m.logger.ErrorContext(ctx, "Failed to mirror sales log", "error", err)
	}
}
