// Package memory implements the bounded per-user conversation buffers that
// feed conversational context to the language model.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ezbo/shopbot/internal/database"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation exchange entry. Immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// buffer is a fixed-capacity ring of turns for one (channel, user) key.
// dead marks a buffer the idle purge has removed from the map; a late
// appender holding the stale pointer must not write into it.
type buffer struct {
	mu    sync.Mutex
	turns []Turn
	start int
	count int
	dead  bool
}

func (b *buffer) append(t Turn) {
	if b.count < len(b.turns) {
		b.turns[(b.start+b.count)%len(b.turns)] = t
		b.count++
		return
	}
	// Full: overwrite the oldest slot and advance the ring start.
	b.turns[b.start] = t
	b.start = (b.start + 1) % len(b.turns)
}

// tryAppend appends under the buffer lock and returns the updated snapshot,
// or false when the buffer was purged between lookup and lock.
func (b *buffer) tryAppend(t Turn) ([]Turn, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead {
		return nil, false
	}
	b.append(t)
	return b.snapshot(), true
}

func (b *buffer) snapshot() []Turn {
	out := make([]Turn, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.turns[(b.start+i)%len(b.turns)]
	}
	return out
}

func (b *buffer) newest() (Turn, bool) {
	if b.count == 0 {
		return Turn{}, false
	}
	return b.turns[(b.start+b.count-1)%len(b.turns)], true
}

// Memory holds the conversation buffers. A buffer is created on the first
// turn for its key and only ever shrinks through capacity eviction or the
// idle purge. Appends to one key are serialized by the buffer's own lock;
// distinct keys proceed concurrently.
type Memory struct {
	capacity int
	store    database.Store
	logger   *slog.Logger

	mu      sync.RWMutex
	buffers map[string]*buffer
}

// New creates a Memory with the given per-key capacity, mirrored
// best-effort to the store.
func New(capacity int, store database.Store, logger *slog.Logger) *Memory {
	if capacity <= 0 {
		capacity = 30
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Memory{
		capacity: capacity,
		store:    store,
		logger:   logger.With("component", "memory"),
		buffers:  make(map[string]*buffer),
	}
}

func key(channel, user string) string {
	return channel + "/" + user
}

func (m *Memory) bufferFor(channel, user string) *buffer {
	k := key(channel, user)

	m.mu.RLock()
	b, ok := m.buffers[k]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.buffers[k]; ok {
		return b
	}
	b = &buffer{turns: make([]Turn, m.capacity)}
	m.buffers[k] = b
	return b
}

// Append adds a turn to the (channel, user) buffer, evicting the oldest
// turn once capacity is reached. The in-memory buffer is authoritative;
// mirroring to the store happens asynchronously and a mirror failure never
// fails the append.
func (m *Memory) Append(ctx context.Context, channel, user string, t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	var turns []Turn
	for {
		b := m.bufferFor(channel, user)
		if appended, ok := b.tryAppend(t); ok {
			turns = appended
			break
		}
		// The idle purge removed this buffer between lookup and lock;
		// the next lookup creates a fresh one.
	}

	if m.store != nil {
		go m.mirror(channel, user, turns)
	}
}

// History returns the buffered turns for the key in insertion order. The
// returned slice is a copy.
func (m *Memory) History(channel, user string) []Turn {
	m.mu.RLock()
	b, ok := m.buffers[key(channel, user)]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Transcript renders the history as a role-prefixed transcript for the
// language model, preserving insertion order.
func (m *Memory) Transcript(channel, user string) string {
	turns := m.History(channel, user)
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			sb.WriteString("AI: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(t.Text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// PurgeIdle drops buffers whose newest turn is older than the cutoff and
// returns the number removed.
func (m *Memory) PurgeIdle(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, b := range m.buffers {
		b.mu.Lock()
		newest, ok := b.newest()
		if !ok || newest.Timestamp.Before(cutoff) {
			b.dead = true
			delete(m.buffers, k)
			removed++
		}
		b.mu.Unlock()
	}

	if removed > 0 {
		m.logger.Info("Purged idle conversation buffers", "removed", removed)
	}
	return removed
}

// mirror persists a buffer snapshot. Runs outside the append path; errors
// are logged only.
func (m *Memory) mirror(channel, user string, turns []Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(turns)
	if err != nil {
		m.logger.Error("Failed to encode conversation buffer", "channel", channel, "user", user, "error", err)
		return
	}

	storeKey := fmt.Sprintf("memory/%s/%s", channel, user)
	if err := database.PutLatest(ctx, m.store, storeKey, data); err != nil {
		m.logger.Error("Failed to mirror conversation buffer", "channel", channel, "user", user, "error", err)
	}
}
