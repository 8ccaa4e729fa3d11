package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/codestatus/internal/app"
	"github.com/Iron-Ham/codestatus/internal/config"
	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/event"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/metrics"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/runlock"
	"github.com/Iron-Ham/codestatus/internal/supervisor"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Supervise the presence worker and publish editor activity",
	Long: `Start the presence worker and feed it a status line for every editor
event until the event stream ends or the process is interrupted.

Events are JSON lines, one per change:

  {"type":"activeEditor","workspace":"/w/app","document":{"path":"/w/app/src/main.go"}}
  {"type":"noEditor","workspace":"/w/app"}
  {"type":"focus","focused":false}
  {"type":"manual","text":"in a meeting"}

Editing the config file restarts the worker with the new settings.
"codestatus set" changes the manual status of a running instance.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runEvents      string
	runWatch       bool
	runWatchRoot   string
	runMetricsAddr string
	runLogStderr   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runEvents, "events", "-", `editor event stream: "-" for stdin, a file path, or "" to disable`)
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "report the most recently saved file under the workspace as the active editor")
	runCmd.Flags().StringVar(&runWatchRoot, "root", "", "workspace watched by --watch (default: watch.root or the working directory)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics", "", "serve Prometheus metrics on this address (default: metrics.addr)")
	runCmd.Flags().BoolVar(&runLogStderr, "log-stderr", false, "log to stderr instead of the log file")
}

// LogDir is where `run` writes its rotating log and `logs` reads it.
func LogDir() string {
	return filepath.Join(config.StateDir(), "logs")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range cfg.Warnings() {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), styles.Warning.Render("warning: ")+w)
	}

	logDir := LogDir()
	if runLogStderr {
		logDir = ""
	}
	logger, err := logging.NewLoggerWithRotation(logDir, logging.ParseLevel(cfg.Logging.Level), cfg.RotationConfig())
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer func() { _ = logger.Close() }()

	lock, err := runlock.Acquire(config.StateDir(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus()
	reg := metrics.NewRegistry()
	metrics.NewSupervisorRecorder(reg).Attach(bus)

	settings := cfg.SupervisorSettings()
	sup := supervisor.New(settings,
		supervisor.WithBus(bus),
		supervisor.WithLogger(logger),
		supervisor.WithSpawner(supervisor.ExecSpawner{Logger: logger}),
	)
	if err := sup.Start(settings); err != nil {
		// The front end keeps running; a config fix restarts the worker.
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), styles.ErrorMsg.Render("worker not started: ")+err.Error())
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithOverrideStore(override.NewStore(override.DefaultPath()), 0),
		app.WithSettings(watchSettings(logger)),
	}

	events, closeEvents, err := openEvents(cmd, runEvents, logger)
	if err != nil {
		sup.Close()
		return err
	}
	defer closeEvents()
	if events != nil {
		opts = append(opts, app.WithSource(events))
	}

	if runWatch || cfg.Watch.Enabled {
		wopts, err := cfg.WatchOptions()
		if err != nil {
			sup.Close()
			return err
		}
		if runWatchRoot != "" {
			wopts.Root = runWatchRoot
		}
		fs, err := editor.NewFSSource(wopts, logger)
		if err != nil {
			sup.Close()
			return fmt.Errorf("failed to watch workspace: %w", err)
		}
		opts = append(opts, app.WithSource(fs))
	}

	addr := cfg.Metrics.Addr
	if runMetricsAddr != "" {
		addr = runMetricsAddr
	}

	loop := app.New(sup, opts...)
	return runLoop(ctx, loop, addr, reg, logger)
}

func runLoop(ctx context.Context, loop *app.Loop, metricsAddr string, reg *prometheus.Registry, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})
	if metricsAddr != "" {
		g.Go(func() error {
			if err := metrics.Serve(gctx, metricsAddr, reg, logger); err != nil {
				logger.Warn("metrics endpoint stopped", "addr", metricsAddr, "error", err.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

// openEvents resolves the --events flag. The returned closer is always
// safe to call.
func openEvents(cmd *cobra.Command, src string, logger *logging.Logger) (editor.Source, func(), error) {
	switch src {
	case "":
		return nil, func() {}, nil
	case "-":
		return editor.NewJSONSource(cmd.InOrStdin(), logger), func() {}, nil
	default:
		f, err := os.Open(src)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to open event stream: %w", err)
		}
		return editor.NewJSONSource(f, logger), func() { _ = f.Close() }, nil
	}
}

// watchSettings forwards every valid reload of the config file. Only the
// latest pending settings are kept; the supervisor compares them with what
// it runs and restarts only on a real change.
func watchSettings(logger *logging.Logger) <-chan supervisor.Settings {
	ch := make(chan supervisor.Settings, 1)
	if viper.ConfigFileUsed() == "" {
		logger.Info("no config file in use, live reload disabled")
		return ch
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		next, err := config.Load()
		if err != nil {
			logger.Warn("ignoring invalid configuration change", "file", e.Name, "error", err.Error())
			return
		}
		latest(ch, next.SupervisorSettings())
	})
	viper.WatchConfig()
	logger.Info("watching config file", "file", viper.ConfigFileUsed())
	return ch
}

func latest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
