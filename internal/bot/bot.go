// Package bot implements lifecycle management and component orchestration
// for the shop assistant: the chat channel listeners, the dispatch
// coordinator, and the maintenance scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ezbo/shopbot/internal/channel/telegram"
	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/dispatch"
)

// Bot represents the main application and manages its components' lifecycle.
type Bot struct {
	logger      *slog.Logger
	cfg         *config.Config
	coordinator *dispatch.Coordinator
	tgChannel   *telegram.Channel
	scheduler   *Scheduler
}

// NewBot creates the orchestrator. tgChannel may be nil when the Telegram
// channel is disabled; the scheduler and coordinator still run.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	coordinator *dispatch.Coordinator,
	tgChannel *telegram.Channel,
	scheduler *Scheduler,
) *Bot {
	return &Bot{
		logger:      logger.With("component", "bot_orchestrator"),
		cfg:         cfg,
		coordinator: coordinator,
		tgChannel:   tgChannel,
		scheduler:   scheduler,
	}
}

// Run starts all components and blocks until the context is cancelled or a
// component fails. On shutdown the dispatch queues are drained within their
// grace period before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	if b.tgChannel != nil {
		g.Go(func() error {
			b.tgChannel.Run(gCtx)

			if gCtx.Err() == nil {
				b.logger.Warn("Telegram listener stopped unexpectedly without context cancellation.")
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			return nil
		})
	} else {
		b.logger.Warn("Telegram channel disabled, no token configured")
	}

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	b.logger.Info("Orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	// Listeners are down; give in-flight dispatch work its grace period.
	if drainErr := b.coordinator.Close(context.Background()); drainErr != nil {
		b.logger.Error("Dispatch shutdown incomplete", "error", drainErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Orchestrator stopped gracefully.")
	return nil
}
