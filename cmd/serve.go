package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-pipeline/internal/api"
	"github.com/sells-group/contractor-pipeline/internal/monitoring"
	"github.com/sells-group/contractor-pipeline/internal/pipelinedb"
)

var (
	servePort    int
	serveMonitor bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only contractor API",
	Long:  "Starts the HTTP API over the contractor store, with Prometheus metrics and an optional import health checker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := api.New(st,
			api.WithLogger(zap.L()),
			api.WithGatherer(registry),
			api.WithCORSOrigins(cfg.Server.CORSOrigins),
			api.WithTimeout(time.Duration(cfg.Server.RequestTimeoutS)*time.Second),
		)

		if serveMonitor {
			go newChecker(st).Run(ctx)
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one import health check",
	Long:  "Evaluates recent runs, imports and the lock, prints the alerts, and posts them to the configured webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openReportStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := newChecker(st).Check(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "check")
		}
		if rep.Healthy() {
			_, _ = fmt.Fprintln(os.Stdout, "No alerts.")
			return nil
		}
		return writeJSON(os.Stdout, rep)
	},
}

func newChecker(st *pipelinedb.DB) *monitoring.Checker {
	log := zap.L()
	return monitoring.NewChecker(
		monitoring.NewCollector(st),
		monitoring.NewAlerter(cfg.Monitoring, log),
		cfg.Monitoring,
		log,
	)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMonitor, "monitor", true, "run the import health checker")
	rootCmd.AddCommand(serveCmd, checkCmd)
}
