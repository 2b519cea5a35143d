package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/config"
	"github.com/sells-group/contractor-pipeline/internal/metrics"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

var (
	cfg *config.Config

	// registry backs /metrics and the pipeline counters for the process.
	registry        *prometheus.Registry
	pipelineMetrics *metrics.Metrics

	storePath  string
	storeActor string
)

var rootCmd = &cobra.Command{
	Use:   "leadgen",
	Short: "Contractor lead deduplication and audit pipeline",
	Long:  "Imports state license and OEM dealer files, deduplicates contractors into one canonical record each, keeps a full change trail, and exports multi-license leads.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if storePath != "" {
			c.Store.Path = storePath
		}
		if storeActor != "" {
			c.Store.Actor = storeActor
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pipelineMetrics = metrics.New(registry)

		zap.L().Debug("store configured",
			zap.String("command", cmd.Name()),
			zap.String("driver", cfg.Store.Driver),
			zap.String("path", cfg.Store.Path),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore opens the pipeline database named by the loaded config.
func openStore(ctx context.Context) (*pipelinedb.DB, error) {
	opts := []pipelinedb.Option{
		pipelinedb.WithLogger(zap.L()),
		pipelinedb.WithMetrics(pipelineMetrics),
	}
	if cfg.Store.Actor != "" {
		opts = append(opts, pipelinedb.WithActor(cfg.Store.Actor))
	}
	return pipelinedb.Open(ctx, cfg.PipelineDB(), opts...)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&storePath, "db", "", "pipeline database path or URL (overrides store.path)")
	flags.StringVar(&storeActor, "actor", "", "identity recorded on changes and deletes (overrides store.actor)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
