package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/rtsmicro/game/cooldown"
	"github.com/kasuganosora/rtsmicro/game/values"
	"github.com/kasuganosora/rtsmicro/resource"
)

// Task names.
const (
	TaskReloadTables = "reload_tables"
	TaskPruneJournal = "prune_journal"
)

// ReloadTables re-reads the data directory and swaps the unit value table and
// ability cooldowns. A failed load keeps the current tables.
func ReloadTables(dir string, vt *values.Table, tracker *cooldown.Tracker, logger *zap.Logger) TaskFn {
	return func(context.Context) error {
		rl := resource.NewLoader(dir)
		if err := rl.Load(); err != nil {
			return fmt.Errorf("scheduler: reload tables: %w", err)
		}
		vt.Replace(rl)
		tracker.SetCooldowns(rl)
		logger.Debug("unit tables reloaded",
			zap.Int("unit_types", len(rl.UnitTypes)),
			zap.Int("abilities", len(rl.Abilities)))
		return nil
	}
}

// Pruner deletes journal rows older than a given age.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PruneJournal removes decision logs past the retention window.
func PruneJournal(p Pruner, retention time.Duration, logger *zap.Logger) TaskFn {
	return func(ctx context.Context) error {
		n, err := p.Prune(ctx, retention)
		if err != nil {
			return fmt.Errorf("scheduler: prune journal: %w", err)
		}
		if n > 0 {
			logger.Info("journal pruned", zap.Int64("rows", n), zap.Duration("retention", retention))
		}
		return nil
	}
}
