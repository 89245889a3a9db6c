package commands

import (
	"fmt"

	"github.com/flashcore/ooce/pkg/engine"
	"github.com/flashcore/ooce/pkg/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print buffer cache occupancy for the configured mount",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

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

	s := eng.Cache().Stats()
	fmt.Printf("active:     %d\n", s.Active)
	fmt.Printf("in_io:      %d\n", s.InIO)
	fmt.Printf("zero_ref:   %d\n", s.ZeroRef)
	fmt.Printf("backlog:    %d\n", s.Backlog)
	fmt.Printf("committed:  %d bytes\n", s.Committed)
	fmt.Printf("max_size:   %d bytes\n", s.MaxSize)
	return nil
}
