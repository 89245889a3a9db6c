package commands

import (
	"context"
	"fmt"

	"github.com/flashcore/ooce/pkg/engine"
	"github.com/flashcore/ooce/pkg/metrics"
	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Start an engine against the configured mount and drain its cache",
	Long: `flush is useful after a crash or an out-of-band write: it opens
the mount directory's engine, waits for any tasks already admitted
elsewhere to complete (there are none in this standalone invocation), and
writes back every dirty buffer before exiting.`,
	RunE: runFlush,
}

func runFlush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stopMetrics := maybeStartMetricsServer()
	defer stopMetrics(context.Background())

	stopProfiling := maybeStartProfiling(cfg)
	defer stopProfiling()

	eng, err := engine.Setup(engine.Config{
		MountDir:           cfg.MountDir,
		CacheMaxSize:       uint64(cfg.Cache.MaxSize),
		NIOThreads:         cfg.NIOThreads,
		NComputeThreads:    cfg.NComputeThreads,
		EnablePrioritizer:  cfg.Scheduler.EnablePrioritizer,
		EnableOverlapCheck: cfg.Scheduler.EnableOverlapCheck,
		SingleUseDiscard:   cfg.Cache.SingleUseDiscard,
		MaxInMem:           cfg.Scheduler.MaxInMem,
		Backend:            engine.BackendDirect,
		Metrics:            metrics.NewCacheMetrics(),
	})
	if err != nil {
		return fmt.Errorf("engine setup: %w", err)
	}
	defer eng.Destroy()

	eng.FlushCache(context.Background())
	fmt.Println("Cache flushed")
	return nil
}
