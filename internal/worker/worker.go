package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/metrics"
	"github.com/Iron-Ham/codestatus/internal/presence"
	"github.com/Iron-Ham/codestatus/internal/protocol"
	"github.com/Iron-Ham/codestatus/internal/util"
)

// AppIDEnv is set to the app id before the provider is initialized, for
// providers that read their application id from the environment.
const AppIDEnv = "CODESTATUS_APP_ID"

// Exit codes returned by Run.
const (
	ExitOK        = 0
	ExitIOError   = 1
	ExitBadConfig = 2
)

// Streams are the worker's standard streams.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

type runner struct {
	provider     presence.Provider
	registry     *prometheus.Registry
	pumpInterval time.Duration
	logger       *logging.Logger
}

// Option configures Run.
type Option func(*runner)

// WithProvider replaces the provider selected by Config.Provider.
func WithProvider(p presence.Provider) Option {
	return func(r *runner) { r.provider = p }
}

// WithRegistry records worker metrics into reg instead of a private one.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *runner) { r.registry = reg }
}

// WithPumpInterval overrides presence.DefaultPumpInterval.
func WithPumpInterval(d time.Duration) Option {
	return func(r *runner) { r.pumpInterval = d }
}

// WithLogger replaces the JSON stderr logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// Main parses args and runs the worker until stdin reaches EOF or ctx is
// canceled. It returns the process exit code.
func Main(ctx context.Context, args []string, streams Streams, opts ...Option) int {
	cfg, notes := ParseArgs(args)
	opts = append([]Option{WithLogger(logging.NewStreamLogger(streams.Stderr, cfg.LogLevel))}, opts...)
	r := newRunner(opts)
	for _, n := range notes {
		r.logger.Warn(n)
	}
	return r.run(ctx, cfg, streams)
}

// Run runs the worker with an already parsed configuration.
func Run(ctx context.Context, cfg Config, streams Streams, opts ...Option) int {
	return newRunner(opts).run(ctx, cfg, streams)
}

func newRunner(opts []Option) *runner {
	r := &runner{pumpInterval: presence.DefaultPumpInterval}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NopLogger()
	}
	if r.registry == nil {
		r.registry = metrics.NewRegistry()
	}
	return r
}

func (r *runner) run(ctx context.Context, cfg Config, streams Streams) int {
	logger := r.logger.WithComponent("worker")
	out := streams.Stdout

	fmt.Fprintf(out, "[config] AppID: %s\n", cfg.AppID)
	fmt.Fprintf(out, "[config] Template: %s\n", cfg.Template)
	if cfg.GroupID != "" {
		fmt.Fprintf(out, "[config] Group: %s\n", cfg.GroupID)
	}
	if cfg.GroupSize != "" {
		fmt.Fprintf(out, "[config] GroupSize: %s\n", cfg.GroupSize)
	}

	if err := os.Setenv(AppIDEnv, cfg.AppID); err != nil {
		logger.Warn("failed to export app id", "error", err.Error())
	}

	provider := r.provider
	if provider == nil {
		p, err := newProvider(cfg, logger)
		if err != nil {
			logger.Error("invalid worker configuration", "error", err.Error())
			fmt.Fprintf(out, "[error] %v\n", err)
			return ExitBadConfig
		}
		provider = p
	}

	rec := metrics.NewWorkerRecorder(r.registry)
	pub := presence.NewPublisher(provider, cfg.Fields(),
		presence.WithLogger(logger),
		presence.WithObserver(rec),
	)

	// A provider that cannot start is reported and the worker exits
	// cleanly so the front end does not treat it as a crash.
	if err := pub.Connect(cfg.AppID); err != nil {
		logger.Error("presence provider init failed", "app_id", cfg.AppID, "error", err.Error())
		fmt.Fprintf(out, "[error] %v\n", err)
		return ExitOK
	}
	fmt.Fprintln(out, "[connected] waiting for status lines")
	logger.Info("worker started", "app_id", cfg.AppID, "provider", cfg.Provider, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, readErr := readLines(ctx, streams.Stdin)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := pub.Pump(gctx, r.pumpInterval); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return r.applyLoop(gctx, cfg, pub, rec, lines, readErr, out, logger)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := metrics.Serve(gctx, cfg.MetricsAddr, r.registry, logger); err != nil {
				logger.Warn("metrics endpoint stopped", "addr", cfg.MetricsAddr, "error", err.Error())
			}
			return nil
		})
	}

	code := ExitOK
	if err := g.Wait(); err != nil {
		logger.Error("worker loop failed", "error", err.Error())
		code = ExitIOError
	}

	if err := pub.Close(); err != nil {
		logger.Warn("presence provider shutdown failed", "error", err.Error())
	}
	logger.Info("worker stopped", "exit_code", code)
	return code
}

// readLines decodes stdin on its own goroutine. The goroutine is not
// joined: a blocked read on stdin cannot be interrupted portably, and the
// process exits right after Run returns.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		rd := protocol.NewReader(in)
		for {
			line, err := rd.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errc <- err
				}
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines, errc
}

func (r *runner) applyLoop(
	ctx context.Context,
	cfg Config,
	pub *presence.Publisher,
	rec *metrics.WorkerRecorder,
	lines <-chan string,
	readErr <-chan error,
	out io.Writer,
	logger *logging.Logger,
) error {
	var (
		last  string
		timer *time.Timer
		retry <-chan time.Time
	)
	stopRetry := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, retry = nil, nil
	}
	defer stopRetry()

	apply := func(line string) presence.CycleResult {
		res := pub.Apply(line)
		fmt.Fprintf(out, "[updated] %s\n", line)
		if !res.OK() {
			logger.Warn("cycle finished with failures", "failures", len(res.Failures), "error", res.Err().Error())
		}
		return res
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("reading status lines: %w", err)
				default:
				}
				logger.Info("stdin closed, shutting down")
				return nil
			}
			stopRetry()
			rec.LineReceived()
			last = line
			if res := apply(line); !res.OK() && cfg.Retry > 0 {
				timer = time.NewTimer(cfg.Retry)
				retry = timer.C
			}

		case <-retry:
			timer, retry = nil, nil
			logger.Info("retrying failed cycle", "line", last)
			apply(last)
		}
	}
}

func newProvider(cfg Config, logger *logging.Logger) (presence.Provider, error) {
	switch cfg.Provider {
	case ProviderMemory:
		return presence.NewMemoryProvider(), nil
	case ProviderLog:
		return presence.NewLogProvider(presence.NewMemoryProvider(), logger), nil
	case ProviderFile, "":
		path := cfg.StateFile
		if path == "" {
			path = util.DefaultPresenceFile()
		}
		return presence.NewFileProvider(path), nil
	default:
		return nil, errors.NewValidationError("unknown presence provider").
			WithField("provider").
			WithValue(cfg.Provider)
	}
}
