package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/events"
	"github.com/hallvik/pagepress/internal/history"
	"github.com/hallvik/pagepress/internal/logfields"
	"github.com/hallvik/pagepress/internal/metrics"
	"github.com/hallvik/pagepress/internal/pipeline"
	"github.com/hallvik/pagepress/internal/version"
	"github.com/hallvik/pagepress/internal/workspace"
)

const shutdownGrace = 10 * time.Second

// Daemon runs the webhook-triggered publishing loop: it listens for push
// deliveries, coalesces them, and executes pipeline runs one at a time.
type Daemon struct {
	configPath string
	started    time.Time

	mu       sync.RWMutex
	cfg      *config.Config
	executor *Executor
	webhook  *WebhookHandler

	ws        *workspace.Manager
	hist      *history.Store
	recorder  metrics.Recorder
	registry  *prom.Registry
	notifier  pipeline.Notifier
	natsConn  *events.NATSNotifier
	debouncer *Debouncer
	scheduler gocron.Scheduler

	webhookServer *http.Server
	metricsServer *http.Server
}

// New assembles a daemon from a validated config. configPath is kept for
// hot reload.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon configuration is required")
	}

	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(registry)

	hist, err := history.Open(cfg.Daemon.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}

	d := &Daemon{
		configPath: configPath,
		cfg:        cfg,
		hist:       hist,
		recorder:   recorder,
		registry:   registry,
		notifier:   pipeline.NoopNotifier{},
	}

	if cfg.Events != nil && cfg.Events.Enabled {
		notifier, err := events.NewNATSNotifier(*cfg.Events)
		if err != nil {
			hist.Close()
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		d.natsConn = notifier
		d.notifier = notifier
	}

	// A persistent workspace lets checkout fetch deltas instead of recloning
	// the source repository on every push.
	d.ws = workspace.NewPersistentManager("", "pagepress-daemon")
	if err := d.ws.Create(); err != nil {
		d.closeResources()
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	d.executor = NewExecutor(d.buildPipeline(cfg), hist, recorder)
	d.debouncer = NewDebouncer(DebouncerConfig{
		QuietWindow:  cfg.Daemon.QuietWindow,
		MaxDelay:     cfg.Daemon.MaxDelay,
		CheckRunning: func() bool { return d.currentExecutor().Running() },
	}, d.executeTrigger)

	return d, nil
}

func (d *Daemon) buildPipeline(cfg *config.Config) *pipeline.Pipeline {
	return pipeline.New(cfg, d.ws,
		pipeline.WithRecorder(d.recorder),
		pipeline.WithNotifier(d.notifier),
		pipeline.WithIncrementalCheckout(),
	)
}

func (d *Daemon) currentExecutor() *Executor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.executor
}

func (d *Daemon) currentConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Daemon) executeTrigger(ctx context.Context, c Coalesced) {
	d.currentExecutor().Execute(ctx, c)
}

// applyConfig swaps in a reloaded config. Listener addresses are fixed for
// the process lifetime; the webhook filter and secret update immediately, the
// next run picks up everything else.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.executor = NewExecutor(d.buildPipeline(cfg), d.hist, d.recorder)
	webhook := d.webhook
	d.mu.Unlock()

	// A reload that dropped the daemon section keeps the previous webhook
	// settings rather than silently disabling signature checks.
	if webhook != nil && cfg.Daemon != nil {
		webhook.Update(cfg.Source.Branch, cfg.Daemon.Secret)
	}
}

// Run starts all daemon components and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.started = time.Now()
	cfg := d.currentConfig()

	slog.Info("Daemon starting",
		slog.String("version", version.Version),
		slog.String("listen_addr", cfg.Daemon.ListenAddr),
		slog.String("metrics_addr", cfg.Daemon.MetricsAddr),
		logfields.Branch(cfg.Source.Branch),
		logfields.Domain(cfg.Site.Domain))

	go func() {
		if err := d.debouncer.Run(ctx); err != nil {
			slog.Error("Debouncer stopped", logfields.Error(err))
		}
	}()

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d.applyConfig)
		if err != nil {
			slog.Warn("Config hot reload unavailable", logfields.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			slog.Warn("Config hot reload unavailable", logfields.Error(err))
		}
	}

	if err := d.startPruneJob(); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	d.startWebhookServer(cfg, errCh)
	d.startMetricsServer(cfg, errCh)

	select {
	case <-ctx.Done():
		slog.Info("Daemon shutting down")
		d.shutdown()
		return nil
	case err := <-errCh:
		d.shutdown()
		return err
	}
}

func (d *Daemon) startPruneJob() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	d.scheduler = scheduler

	cfg := d.currentConfig()
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Daemon.PruneInterval),
		gocron.NewTask(d.pruneHistory),
		gocron.WithName("history-prune"),
	)
	if err != nil {
		return fmt.Errorf("schedule history pruning: %w", err)
	}

	scheduler.Start()
	return nil
}

func (d *Daemon) pruneHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	retention := d.currentConfig().Daemon.HistoryRetention
	removed, err := d.hist.Prune(ctx, retention)
	if err != nil {
		slog.Warn("Run history pruning failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		slog.Info("Pruned run history", slog.Int64("removed", removed))
	}
}

func (d *Daemon) startWebhookServer(cfg *config.Config, errCh chan<- error) {
	mux := http.NewServeMux()
	d.mu.Lock()
	d.webhook = NewWebhookHandler(cfg.Source.Branch, cfg.Daemon.Secret, d.debouncer)
	d.mu.Unlock()
	mux.Handle(cfg.Daemon.WebhookPath, d.webhook)
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/status", d.handleStatus)

	d.webhookServer = &http.Server{
		Addr:              cfg.Daemon.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := d.webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("webhook server: %w", err)
		}
	}()
}

func (d *Daemon) startMetricsServer(cfg *config.Config, errCh chan<- error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.registry))

	d.metricsServer = &http.Server{
		Addr:              cfg.Daemon.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(d.started).String(),
	})
}

// handleStatus reports the most recent runs from history.
func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := d.hist.Recent(r.Context(), 20)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	type runStatus struct {
		RunID      string    `json:"run_id"`
		Branch     string    `json:"branch"`
		Commit     string    `json:"commit,omitempty"`
		Outcome    string    `json:"outcome"`
		Error      string    `json:"error,omitempty"`
		Documents  int       `json:"documents"`
		Pages      int       `json:"pages"`
		Published  bool      `json:"published"`
		FinishedAt time.Time `json:"finished_at"`
	}
	out := struct {
		Running bool        `json:"running"`
		Runs    []runStatus `json:"runs"`
	}{Running: d.currentExecutor().Running()}
	for _, run := range runs {
		out.Runs = append(out.Runs, runStatus{
			RunID:      run.RunID,
			Branch:     run.Branch,
			Commit:     run.Commit,
			Outcome:    run.Outcome,
			Error:      run.Error,
			Documents:  run.Documents,
			Pages:      run.Pages,
			Published:  run.Published,
			FinishedAt: run.FinishedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if d.webhookServer != nil {
		if err := d.webhookServer.Shutdown(ctx); err != nil {
			slog.Error("Webhook server shutdown", logfields.Error(err))
		}
	}
	if d.metricsServer != nil {
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server shutdown", logfields.Error(err))
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Shutdown(); err != nil {
			slog.Error("Scheduler shutdown", logfields.Error(err))
		}
	}
	d.closeResources()
}

func (d *Daemon) closeResources() {
	if d.natsConn != nil {
		_ = d.natsConn.Close()
	}
	if d.hist != nil {
		_ = d.hist.Close()
	}
}
