package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ezbo/shopbot/internal/memory"
)

func TestMemory_CapacityEviction(t *testing.T) {
	t.Parallel()

	const capacity = 5
	m := memory.New(capacity, nil, nil)
	ctx := context.Background()

	for i := 0; i < capacity+3; i++ {
		m.Append(ctx, "telegram", "42", memory.Turn{
			Role: memory.RoleUser,
			Text: fmt.Sprintf("msg-%d", i),
		})
	}

	history := m.History("telegram", "42")
	if len(history) != capacity {
		t.Fatalf("History() returned %d turns, want %d", len(history), capacity)
	}

	// The oldest turns were evicted; what remains is the newest N in order.
	for i, turn := range history {
		want := fmt.Sprintf("msg-%d", i+3)
		if turn.Text != want {
			t.Errorf("History()[%d].Text = %q, want %q", i, turn.Text, want)
		}
	}
}

func TestMemory_KeysAreIsolated(t *testing.T) {
	t.Parallel()

	m := memory.New(10, nil, nil)
	ctx := context.Background()

	m.Append(ctx, "telegram", "1", memory.Turn{Role: memory.RoleUser, Text: "hello from one"})
	m.Append(ctx, "telegram", "2", memory.Turn{Role: memory.RoleUser, Text: "hello from two"})
	m.Append(ctx, "whatsapp", "1", memory.Turn{Role: memory.RoleUser, Text: "different channel"})

	if got := len(m.History("telegram", "1")); got != 1 {
		t.Errorf("telegram/1 history length = %d, want 1", got)
	}
	if got := len(m.History("telegram", "2")); got != 1 {
		t.Errorf("telegram/2 history length = %d, want 1", got)
	}
	if got := len(m.History("whatsapp", "1")); got != 1 {
		t.Errorf("whatsapp/1 history length = %d, want 1", got)
	}
	if got := m.History("telegram", "3"); got != nil {
		t.Errorf("unknown key history = %v, want nil", got)
	}
}

func TestMemory_Transcript(t *testing.T) {
	t.Parallel()

	m := memory.New(10, nil, nil)
	ctx := context.Background()

	m.Append(ctx, "telegram", "42", memory.Turn{Role: memory.RoleUser, Text: "do you have panjabis?"})
	m.Append(ctx, "telegram", "42", memory.Turn{Role: memory.RoleAssistant, Text: "Yes, in blue and white."})

	want := "User: do you have panjabis?\nAI: Yes, in blue and white."
	if got := m.Transcript("telegram", "42"); got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}

	if got := m.Transcript("telegram", "none"); got != "" {
		t.Errorf("Transcript() for unknown key = %q, want empty", got)
	}
}

func TestMemory_PurgeIdle(t *testing.T) {
	t.Parallel()

	m := memory.New(10, nil, nil)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	m.Append(ctx, "telegram", "stale", memory.Turn{Role: memory.RoleUser, Text: "old", Timestamp: old})
	m.Append(ctx, "telegram", "fresh", memory.Turn{Role: memory.RoleUser, Text: "new"})

	removed := m.PurgeIdle(time.Hour)
	if removed != 1 {
		t.Fatalf("PurgeIdle() removed %d buffers, want 1", removed)
	}

	if got := m.History("telegram", "stale"); got != nil {
		t.Errorf("stale buffer survived purge: %v", got)
	}
	if got := len(m.History("telegram", "fresh")); got != 1 {
		t.Errorf("fresh buffer removed by purge, history length = %d, want 1", got)
	}
}

func TestMemory_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	const capacity = 20
	m := memory.New(capacity, nil, nil)
	ctx := context.Background()

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			user := fmt.Sprintf("user-%d", g)
			for i := 0; i < 50; i++ {
				m.Append(ctx, "telegram", user, memory.Turn{Role: memory.RoleUser, Text: fmt.Sprintf("%d", i)})
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	for g := 0; g < 4; g++ {
		user := fmt.Sprintf("user-%d", g)
		history := m.History("telegram", user)
		if len(history) != capacity {
			t.Errorf("%s history length = %d, want %d", user, len(history), capacity)
		}
		// Per-key appends are serialized, so order within a key holds.
		for i, turn := range history {
			want := fmt.Sprintf("%d", 50-capacity+i)
			if turn.Text != want {
				t.Errorf("%s history[%d] = %q, want %q", user, i, turn.Text, want)
				break
			}
		}
	}
}
