package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/harvester/internal/engine"
	"github.com/ajitpratap0/harvester/internal/pipeline"
	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/logger"
	"github.com/ajitpratap0/harvester/pkg/metrics"
	"github.com/ajitpratap0/harvester/pkg/observability"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/harvester/pkg/connector/destinations"
	_ "github.com/ajitpratap0/harvester/pkg/connector/sources"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "harvester",
		Short: "Harvester - metadata harvesting engine",
		Long: `Harvester collects metadata records from open data portals and other sources
and publishes them to file systems, object stores, brokers and databases.
Tasks run once from the command line or on schedule under the serve command.`,
		SilenceUsage: true,
	}

	var configFile string
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the engine configuration file (optional)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Harvester v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors and their properties",
		Run: func(cmd *cobra.Command, args []string) {
			printConnectors(core.ConnectorTypeSource, "Source Connectors", registry.GetRegistry().ListInputs())
			fmt.Println()
			printConnectors(core.ConnectorTypeDestination, "Destination Connectors", registry.GetRegistry().ListOutputs())
		},
	})

	var taskFile string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a task once",
		Long: `Run the task of a task file once and wait for it to finish. Triggers in the
file are ignored.

Example:
  harvester run --task tasks/portal.yaml --config harvester.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(configFile, taskFile)
		},
	}
	runCmd.Flags().StringVarP(&taskFile, "task", "t", "", "Path to the task file (required)")
	_ = runCmd.MarkFlagRequired("task")
	root.AddCommand(runCmd)

	var taskDir string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Schedule the tasks of a directory",
		Long: `Load every task file of a directory, activate its triggers and run until
interrupted. Metrics are served on the configured address.

Example:
  harvester serve --tasks /etc/harvester/tasks --config harvester.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile, taskDir)
		},
	}
	serveCmd.Flags().StringVar(&taskDir, "tasks", "", "Directory of task files (required)")
	_ = serveCmd.MarkFlagRequired("tasks")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printConnectors(direction core.ConnectorType, title string, names []string) {
	fmt.Printf("Available %s:\n", title)
	sort.Strings(names)
	for _, name := range names {
		info, err := registry.GetConnectorInfo(direction, name)
		if err != nil {
			fmt.Printf("  - %s\n", name)
			continue
		}
		fmt.Printf("  - %s: %s\n", name, info.Description)
		for _, p := range info.Properties {
			line := fmt.Sprintf("      %s", p.Name)
			if p.Required {
				line += " (required)"
			}
			if p.Default != "" {
				line += fmt.Sprintf(" [default %s]", p.Default)
			}
			fmt.Printf("%s  %s\n", line, p.Description)
		}
	}
}

// setup loads the engine configuration and installs logging and tracing.
func setup(configFile string) (*config.EngineConfig, *zap.Logger, observability.ShutdownFunc, error) {
	cfg, err := config.LoadEngine(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	log := logger.Get().With(zap.String("component", "harvester-cli"))

	shutdown, err := observability.Init(observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SamplingRate:   cfg.Tracing.SampleRate,
		Writer:         os.Stderr,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, shutdown, nil
}

func runTask(configFile, taskFile string) error {
	cfg, log, shutdownTracing, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer flushTracing(shutdownTracing, log)

	file, err := config.LoadTaskFile(taskFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, engine.Options{Logger: logger.Get()})
	if err != nil {
		return err
	}

	log.Info("running task", zap.String("task", file.Task.String()), zap.String("path", taskFile))
	p, runErr := eng.Run(ctx, file.Task)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Warn("engine did not stop cleanly", zap.Error(err))
	}

	if runErr != nil {
		return runErr
	}
	stats := p.Statistics()
	log.Info("task finished",
		zap.String("state", string(p.State())),
		zap.Int64("harvested", stats.Harvested),
		zap.Int64("published", stats.Published),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
		zap.Duration("duration", stats.Duration()))

	if p.State() != pipeline.StateCompleted {
		return fmt.Errorf("task %s ended in state %s", file.Task.Name, p.State())
	}
	return nil
}

func serve(configFile, taskDir string) error {
	cfg, log, shutdownTracing, err := setup(configFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer flushTracing(shutdownTracing, log)

	files, err := config.LoadTaskDir(taskDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, engine.Options{Logger: logger.Get()})
	if err != nil {
		return err
	}
	if err := eng.Load(ctx, files); err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	log.Info("harvester started", zap.Int("tasks", len(files)), zap.String("dir", taskDir))

	<-ctx.Done()
	log.Info("shutting down", zap.Duration("timeout", cfg.Scheduler.ShutdownTimeout))

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := eng.Stop(stopCtx); err != nil {
		errs = append(errs, err)
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func flushTracing(shutdown observability.ShutdownFunc, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}
}
