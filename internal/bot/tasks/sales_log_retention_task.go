package tasks

import (
	"context"
	"time"
)

// newSalesLogRetentionTask creates the scheduled task that drops archived
// sales log entries older than the configured retention window.
func newSalesLogRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sales_log_retention")
	retention := time.Duration(deps.Config.Orders.RetentionDays) * 24 * time.Hour

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting sales log retention sweep", "retention_days", deps.Config.Orders.RetentionDays)
		startTime := time.Now()

		removed := deps.Orders.PurgeSalesLog(ctx, retention)

		log.InfoContext(ctx, "Sales log retention sweep completed",
			"removed", removed, "duration", time.Since(startTime))
		return nil
	}
}
