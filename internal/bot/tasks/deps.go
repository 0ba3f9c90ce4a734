// Package tasks implements the scheduled maintenance tasks: sales log
// retention, idle conversation purging, and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/ezbo/shopbot/internal/config"
	"github.com/ezbo/shopbot/internal/database"
	"github.com/ezbo/shopbot/internal/memory"
	"github.com/ezbo/shopbot/internal/orders"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Memory *memory.Memory
	Orders *orders.Manager
	Config *config.Config
}
