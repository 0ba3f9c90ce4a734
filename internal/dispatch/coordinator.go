// Package dispatch coordinates inbound chat events: it deduplicates
// redelivered webhook events, serializes processing per (channel, sender),
// and routes each event to the matcher, conversation memory, order state
// machine, and the language model.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/ezbo/shopbot/internal/catalog"
	"github.com/ezbo/shopbot/internal/channel"
	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/gemini"
	"github.com/ezbo/shopbot/internal/memory"
	"github.com/ezbo/shopbot/internal/orders"
	"github.com/ezbo/shopbot/internal/prompt"
	"github.com/ezbo/shopbot/internal/vision"
)

// Matcher scores a query image against catalog products.
type Matcher interface {
	Match(ctx context.Context, queryImage []byte, products []catalog.Product) (*vision.MatchResult, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Coordinator implements the dispatch and idempotency contract. Events for
// one (channel, sender) key are processed strictly in arrival order by a
// single drain goroutine per key; distinct keys run concurrently under a
// global semaphore.
type Coordinator struct {
	cfg           config.DispatchConfig
	currency      string
	geminiTimeout time.Duration

	matcher Matcher
	memory  *memory.Memory
	orders  *orders.Manager
	gemini  gemini.Client
	prompts *prompt.Builder
	catalog *catalog.Catalog
	logger  *slog.Logger

	seen *expirable.LRU[string, struct{}]
	sem  *semaphore.Weighted

	mu      sync.Mutex
	queues  map[string]*userQueue
	senders map[string]channel.Sender
	closed  bool

	// procCtx bounds queued processing. It is deliberately detached from
	// the caller's shutdown signal: events already accepted keep their
	// collaborator calls alive until Close's grace period elapses.
	procCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type userQueue struct {
	pending []channel.Event
	running bool
}

// New creates a coordinator. Accepted events are processed under the
// coordinator's own context, which stays live until Close finishes or gives
// up, so a shutdown signal never cuts off work already taken in.
func New(
	cfg config.DispatchConfig,
	currency string,
	geminiTimeout time.Duration,
	matcher Matcher,
	mem *memory.Memory,
	orderMgr *orders.Manager,
	geminiClient gemini.Client,
	prompts *prompt.Builder,
	cat *catalog.Catalog,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	procCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:           cfg,
		currency:      currency,
		geminiTimeout: geminiTimeout,
		matcher:       matcher,
		memory:        mem,
		orders:        orderMgr,
		gemini:        geminiClient,
		prompts:       prompts,
		catalog:       cat,
		logger:        logger.With("component", "dispatch"),
		seen:          expirable.NewLRU[string, struct{}](cfg.DedupCapacity, nil, cfg.DedupTTL),
		sem:           semaphore.NewWeighted(cfg.MaxConcurrent),
		queues:        make(map[string]*userQueue),
		senders:       make(map[string]channel.Sender),
		procCtx:       procCtx,
		cancel:        cancel,
	}
}

// RegisterSender makes a channel's outbound side available for replies.
func (c *Coordinator) RegisterSender(s channel.Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders[s.Name()] = s
}

// Handle accepts a normalized inbound event. Duplicates within the
// idempotency window are dropped silently; new events for a busy user are
// queued behind the one in flight.
func (c *Coordinator) Handle(ctx context.Context, ev channel.Event) {
	if ev.EventID == "" || ev.Sender == "" || ev.Channel == "" {
		c.logger.WarnContext(ctx, "Dropping malformed event", "event_id", ev.EventID, "channel", ev.Channel)
		return
	}

	key := ev.Channel + "/" + ev.Sender

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.WarnContext(ctx, "Refusing event during shutdown", "event_id", ev.EventID)
		return
	}

	// Check-and-set behind the closed gate: an event refused at shutdown
	// must not be remembered as processed.
	if _, dup := c.seen.Get(ev.EventID); dup {
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "Dropping duplicate event", "event_id", ev.EventID)
		return
	}
	c.seen.Add(ev.EventID, struct{}{})

	q, ok := c.queues[key]
	if !ok {
		q = &userQueue{}
		c.queues[key] = q
	}
	q.pending = append(q.pending, ev)

	if !q.running {
		q.running = true
		c.wg.Add(1)
		go c.drain(key, q)
	}
	c.mu.Unlock()
}

// drain processes a user's queue in FIFO order until it is empty. One
// drainer per key at a time guarantees per-user ordering.
func (c *Coordinator) drain(key string, q *userQueue) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(c.queues, key)
			c.mu.Unlock()
			return
		}
		ev := q.pending[0]
		q.pending = q.pending[1:]
		c.mu.Unlock()

		if err := c.sem.Acquire(c.procCtx, 1); err != nil {
			c.logger.Warn("Abandoning queued event, coordinator stopping", "event_id", ev.EventID)
			continue
		}
		c.process(ev)
		c.sem.Release(1)
	}
}

// Close refuses new events and waits up to the configured grace period for
// in-flight processing to finish. The processing context is cancelled only
// on the way out, so accepted events get the full grace period.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	defer c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	grace := c.cfg.ShutdownGrace
	select {
	case <-done:
		c.logger.Info("Dispatch queues drained")
		return nil
	case <-time.After(grace):
		return fmt.Errorf("dispatch shutdown grace period (%s) elapsed with work in flight", grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) process(ev channel.Event) {
	ctx := c.procCtx
	log := c.logger.With("channel", ev.Channel, "sender", ev.Sender, "event_id", ev.EventID)

	// No failure below this point may escape the worker; every collaborator
	// error resolves into a logged event and a safe reply.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered panic in event processing", "panic", r)
		}
	}()

	// A recognized acknowledgement sticker short-circuits everything.
	if ev.StickerID != "" && ev.StickerID == c.cfg.AckStickerID {
		c.send(ctx, ev, channel.TextReply{Text: c.cfg.AckMessage})
		return
	}
	if ev.StickerID != "" {
		log.DebugContext(ctx, "Ignoring unrecognized sticker", "sticker_id", ev.StickerID)
		return
	}

	var reply channel.Reply
	if ev.ImageURL != "" {
		reply = c.processImage(ctx, ev, log)
	} else {
		reply = c.processText(ctx, ev, log)
	}

	if reply != nil {
		c.send(ctx, ev, reply)
	}
}

// processImage routes a photo event through the catalog matcher and
// produces a tagged reply, recording both sides of the exchange in memory.
func (c *Coordinator) processImage(ctx context.Context, ev channel.Event, log *slog.Logger) channel.Reply {
	userText := ev.Text
	if userText == "" {
		userText = "[photo]"
	}
	c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleUser, Text: userText})

	queryImage, err := c.matcher.FetchImage(ctx, ev.ImageURL)
	if err != nil {
		log.ErrorContext(ctx, "Failed to fetch query image", "error", err)
		return c.fallback(ctx, ev)
	}

	result, err := c.matcher.Match(ctx, queryImage, c.catalog.Snapshot())
	if err != nil {
		log.ErrorContext(ctx, "Image matching failed", "error", err)
		return c.fallback(ctx, ev)
	}

	if result == nil {
		c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleAssistant, Text: c.cfg.NoMatchMessage})
		return channel.TextReply{Text: c.cfg.NoMatchMessage}
	}

	caption := formatMatch(result, c.currency)
	c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleAssistant, Text: caption})
	return channel.ImageReply{URI: result.Product.ImageURL, Caption: caption}
}

// processText routes a text event through the language model, checks the
// reply for an order confirmation, and records the exchange.
func (c *Coordinator) processText(ctx context.Context, ev channel.Event, log *slog.Logger) channel.Reply {
	transcript := c.memory.Transcript(ev.Channel, ev.Sender)
	instruction := c.prompts.Build(c.catalog.Snapshot(), c.orders.Active())

	genCtx, cancel := context.WithTimeout(ctx, c.geminiTimeout)
	replyText, err := c.gemini.GenerateReply(genCtx, instruction, transcript, ev.Text)
	cancel()

	c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleUser, Text: ev.Text})

	if err != nil {
		log.ErrorContext(ctx, "Reply generation failed", "error", err)
		c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleAssistant, Text: c.cfg.FallbackMessage})
		return channel.TextReply{Text: c.cfg.FallbackMessage}
	}

	if orders.ContainsConfirmation(replyText) {
		order, parseErr := orders.ParseConfirmation(replyText, c.currency)
		if parseErr != nil {
			// Malformed confirmations are discarded, never guessed at.
			log.WarnContext(ctx, "Discarding malformed order confirmation", "error", parseErr)
		} else if _, createErr := c.orders.Create(ctx, *order); createErr != nil {
			log.ErrorContext(ctx, "Order creation failed", "error", createErr)
		}
	}

	c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleAssistant, Text: replyText})
	return channel.TextReply{Text: replyText}
}

// fallback records and returns the safe default reply.
func (c *Coordinator) fallback(ctx context.Context, ev channel.Event) channel.Reply {
	c.memory.Append(ctx, ev.Channel, ev.Sender, memory.Turn{Role: memory.RoleAssistant, Text: c.cfg.FallbackMessage})
	return channel.TextReply{Text: c.cfg.FallbackMessage}
}

func (c *Coordinator) send(ctx context.Context, ev channel.Event, reply channel.Reply) {
	c.mu.Lock()
	sender, ok := c.senders[ev.Channel]
	c.mu.Unlock()
	if !ok {
		c.logger.ErrorContext(ctx, "No sender registered for channel", "channel", ev.Channel)
		return
	}

	var err error
	switch r := reply.(type) {
	case channel.TextReply:
		err = sender.SendText(ev.Sender, r.Text)
	case channel.ImageReply:
		err = sender.SendImage(ev.Sender, r.URI, r.Caption)
	default:
		err = errors.New("unknown reply type")
	}

	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to send reply", "channel", ev.Channel, "sender", ev.Sender, "error", err)
	}
}

// formatMatch renders the match summary shown to the customer and stored
// in conversation memory.
func formatMatch(result *vision.MatchResult, currency string) string {
	p := result.Product
	return fmt.Sprintf(
		"I found a similar product in our catalog (%.1f%% match):\n%s (%s)\nSizes: %s\nColors: %s\nPrice: %d%s",
		result.Score*100, p.Type, p.Category,
		strings.Join(p.Sizes, ", "), strings.Join(p.Colors, ", "), p.Price, currency)
}
