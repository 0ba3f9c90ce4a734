package tasks

import (
	"context"
	"time"
)

// newMemoryPurgeTask creates the scheduled task that discards conversation
// buffers with no activity past the configured idle window.
func newMemoryPurgeTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "memory_purge")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting idle conversation purge", "max_idle", deps.Config.Memory.MaxIdle)
		startTime := time.Now()

		removed := deps.Memory.PurgeIdle(deps.Config.Memory.MaxIdle)

		log.InfoContext(ctx, "Idle conversation purge completed",
			"removed", removed, "duration", time.Since(startTime))
		return nil
	}
}
