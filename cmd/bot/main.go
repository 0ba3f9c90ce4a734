// Package main contains the entrypoint for the shop assistant application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ezbo/shopbot/internal/bot"
	"github.com/ezbo/shopbot/internal/bot/tasks"
	"github.com/ezbo/shopbot/internal/catalog"
	"github.com/ezbo/shopbot/internal/channel"
	"github.com/ezbo/shopbot/internal/channel/telegram"
	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/database"
	"github.com/ezbo/shopbot/internal/dispatch"
	"github.com/ezbo/shopbot/internal/gemini"
	"github.com/ezbo/shopbot/internal/logger"
	"github.com/ezbo/shopbot/internal/memory"
	"github.com/ezbo/shopbot/internal/notify"
	"github.com/ezbo/shopbot/internal/orders"
	"github.com/ezbo/shopbot/internal/prompt"
	"github.com/ezbo/shopbot/internal/vision"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	cat := catalog.New(store, log)
	if err := cat.Load(ctx); err != nil {
		log.Error("Failed to load product catalog", "error", err)
		return 1
	}
	if len(cfg.Catalog.Seed) > 0 {
		seed := make([]catalog.Product, 0, len(cfg.Catalog.Seed))
		for _, p := range cfg.Catalog.Seed {
			seed = append(seed, catalog.Product{
				Category: p.Category,
				Type:     p.Type,
				Sizes:    p.Sizes,
				Colors:   p.Colors,
				ImageURL: p.ImageURL,
				Price:    p.Price,
			})
		}
		cat.Seed(ctx, seed)
	}
	if len(cat.Snapshot()) == 0 {
		log.Warn("Product catalog is empty")
	}

	mem := memory.New(cfg.Memory.Capacity, store, log)

	notifier := notify.NewNotifier(cfg.Notify, log)
	orderMgr := orders.NewManager(store, notifier, log)
	if err := orderMgr.Load(ctx); err != nil {
		log.Error("Failed to load order state", "error", err)
		return 1
	}

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	matcher := vision.NewMatcher(cfg.Matcher, log)
	prompts := prompt.NewBuilder(cfg.Shop)

	coordinator := dispatch.New(
		cfg.Dispatch,
		cfg.Shop.Currency,
		cfg.Gemini.Timeout,
		matcher,
		mem,
		orderMgr,
		gemClient,
		prompts,
		cat,
		log,
	)

	var tgChannel *telegram.Channel
	if cfg.Telegram.Token != "" {
		tgChannel, err = telegram.New(cfg.Telegram.Token, log, func(ctx context.Context, ev channel.Event) {
			coordinator.Handle(ctx, ev)
		})
		if err != nil {
			log.Error("Failed to create Telegram channel", "error", err)
			return 1
		}
		coordinator.RegisterSender(tgChannel)
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Memory: mem,
		Orders: orderMgr,
		Config: cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, coordinator, tgChannel, sched)

	log.Info("Starting shop assistant...")
	runErr := app.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
