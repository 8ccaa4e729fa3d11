// Package metrics exposes Prometheus metrics for the presence worker and the
// supervisor.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/codestatus/internal/event"
	"github.com/Iron-Ham/codestatus/internal/logging"
)

const namespace = "codestatus"

// NewRegistry returns a registry preloaded with the Go and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// WorkerRecorder records publish cycles. It implements presence.Observer.
type WorkerRecorder struct {
	linesTotal     prometheus.Counter
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	stepFailures   *prometheus.CounterVec
	lastCycleFails prometheus.Gauge
}

// NewWorkerRecorder registers the worker metrics with reg.
func NewWorkerRecorder(reg prometheus.Registerer) *WorkerRecorder {
	f := promauto.With(reg)
	return &WorkerRecorder{
		linesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "lines_received_total",
			Help:      "Status lines read from stdin.",
		}),
		cyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycles_total",
			Help:      "Clear-then-set cycles by result (ok, partial).",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full publish cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "step_failures_total",
			Help:      "Failed provider primitives by operation and key.",
		}, []string{"op", "key"}),
		lastCycleFails: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "last_cycle_failures",
			Help:      "Number of failed steps in the most recent cycle.",
		}),
	}
}

// LineReceived counts one decoded line.
func (r *WorkerRecorder) LineReceived() {
	r.linesTotal.Inc()
}

// ObserveCycle records a finished cycle.
func (r *WorkerRecorder) ObserveCycle(d time.Duration, failures int) {
	result := "ok"
	if failures > 0 {
		result = "partial"
	}
	r.cyclesTotal.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(d.Seconds())
	r.lastCycleFails.Set(float64(failures))
}

// ObserveStepFailure counts a failed primitive.
func (r *WorkerRecorder) ObserveStepFailure(op, key string) {
	r.stepFailures.WithLabelValues(op, key).Inc()
}

// SupervisorRecorder turns supervisor events into metrics.
type SupervisorRecorder struct {
	starts      prometheus.Counter
	spawnFails  prometheus.Counter
	stops       *prometheus.CounterVec
	exits       *prometheus.CounterVec
	restarts    *prometheus.CounterVec
	sent        *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	running     prometheus.Gauge
	lastSent    prometheus.Gauge
	overrideSet prometheus.Gauge
}

// NewSupervisorRecorder registers the supervisor metrics with reg.
func NewSupervisorRecorder(reg prometheus.Registerer) *SupervisorRecorder {
	f := promauto.With(reg)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "supervisor", Name: name, Help: help}
	}
	return &SupervisorRecorder{
		starts:     f.NewCounter(opts("worker_starts_total", "Workers spawned.")),
		spawnFails: f.NewCounter(opts("worker_spawn_failures_total", "Failed worker spawns.")),
		stops:      f.NewCounterVec(opts("worker_stops_total", "Deliberate worker stops by kind (graceful, forced)."), []string{"kind"}),
		exits:      f.NewCounterVec(opts("worker_exits_total", "Worker exits by exit code."), []string{"code"}),
		restarts:   f.NewCounterVec(opts("restarts_total", "Scheduled restarts; superseded ones replaced a pending start."), []string{"superseded"}),
		sent:       f.NewCounterVec(opts("status_sent_total", "Status lines written to the worker by mode."), []string{"mode"}),
		dropped:    f.NewCounterVec(opts("status_dropped_total", "Rendered status lines not sent, by reason."), []string{"reason"}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "supervisor", Name: "worker_running",
			Help: "1 while a worker process is alive.",
		}),
		lastSent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "supervisor", Name: "last_status_sent_timestamp_seconds",
			Help: "Unix time of the last status line sent.",
		}),
		overrideSet: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "supervisor", Name: "manual_override_active",
			Help: "1 while a manual override replaces the rendered status.",
		}),
	}
}

// Handle records one event. Subscribe it with bus.SubscribeAll.
func (r *SupervisorRecorder) Handle(e event.Event) {
	switch ev := e.(type) {
	case event.WorkerStartedEvent:
		r.starts.Inc()
		r.running.Set(1)
	case event.WorkerSpawnFailedEvent:
		r.spawnFails.Inc()
	case event.WorkerStoppedEvent:
		kind := "graceful"
		if ev.Forced {
			kind = "forced"
		}
		r.stops.WithLabelValues(kind).Inc()
	case event.WorkerExitedEvent:
		r.exits.WithLabelValues(strconv.Itoa(ev.ExitCode)).Inc()
		r.running.Set(0)
	case event.WorkerRestartEvent:
		r.restarts.WithLabelValues(strconv.FormatBool(ev.Superseded)).Inc()
	case event.StatusSentEvent:
		r.sent.WithLabelValues(ev.Mode).Inc()
		r.lastSent.Set(float64(ev.Timestamp().Unix()))
	case event.StatusDroppedEvent:
		r.dropped.WithLabelValues(ev.Reason).Inc()
	case event.OverrideChangedEvent:
		if ev.Text != "" {
			r.overrideSet.Set(1)
		} else {
			r.overrideSet.Set(0)
		}
	}
}

// Attach subscribes r to every event on bus and returns the subscription ID.
func (r *SupervisorRecorder) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(r.Handle)
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Serve exposes reg on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
