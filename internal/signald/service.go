// Package signald is the signal engine service: it streams klines for each
// configured symbol into a per-symbol monitor and hands surfaced signals to
// the configured sinks.
package signald

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"signal-engine/config"
	"signal-engine/internal/api"
	"signal-engine/internal/dedup"
	"signal-engine/internal/marketdata/binance"
	"signal-engine/internal/marketdata/bus"
	"signal-engine/internal/marketdata/replay"
	"signal-engine/internal/metrics"
	"signal-engine/internal/model"
	"signal-engine/internal/monitor"
	"signal-engine/internal/notification"
	redisstore "signal-engine/internal/store/redis"
	sqlitestore "signal-engine/internal/store/sqlite"
	"signal-engine/internal/strategy"
)

// Deps overrides the service's default collaborators. Zero fields fall back
// to the Binance feed, HISTORY_DIR files, slog.Default() and a fresh registry.
type Deps struct {
	Source   model.KlineSource
	History  model.HistoryLoader
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Service is the top-level orchestrator for the signal engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	source   model.KlineSource
	history  model.HistoryLoader
	monitors map[string]*monitor.Monitor
	symbols  []string

	// sourceReportsHealth is set when the source updates feed health itself.
	sourceReportsHealth bool

	reg    *prometheus.Registry
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	signalCh chan strategy.Signal
	bus      *bus.FanOut[strategy.Signal]

	publisher *redisstore.Publisher
	buffered  *redisstore.BufferedPublisher
	journal   *sqlitestore.Journal
	webhook   *notification.WebhookNotifier
	apiServer *api.Server

	sinkCtx    context.Context
	cancelSink context.CancelFunc
}

// New creates a Service from cfg. Redis and SQLite failures are logged and
// the service continues without that sink.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("signald: invalid config: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		log:      deps.Logger,
		source:   deps.Source,
		history:  deps.History,
		monitors: make(map[string]*monitor.Monitor, len(cfg.Symbols)),
		symbols:  append([]string(nil), cfg.Symbols...),
		reg:      deps.Registry,
		signalCh: make(chan strategy.Signal, cfg.SinkBuffer),
		bus:      bus.New[strategy.Signal](cfg.SinkBuffer),
	}
	sort.Strings(svc.symbols)
	if svc.log == nil {
		svc.log = slog.Default()
	}
	svc.log = svc.log.With("component", "signald")
	if svc.reg == nil {
		svc.reg = prometheus.NewRegistry()
	}
	svc.prom = metrics.NewMetrics(svc.reg)
	svc.health = metrics.NewHealthStatus(svc.symbols)
	svc.sinkCtx, svc.cancelSink = context.WithCancel(context.Background())

	for _, sym := range svc.symbols {
		m := monitor.New(monitor.Config{Symbol: sym, Params: cfg.Indicators})
		sym := sym
		m.SetStaleHook(func(k model.Kline) {
			svc.prom.StaleKlines.WithLabelValues(sym).Inc()
		})
		svc.monitors[sym] = m
	}

	if svc.source == nil {
		svc.source = svc.newBinanceFeed()
		svc.sourceReportsHealth = true
	}
	if svc.history == nil && cfg.HistoryDir != "" {
		svc.history = replay.NewDir(cfg.HistoryDir, 0)
	}

	svc.bus.OnDrop = func(name string, s strategy.Signal) {
		svc.prom.FanoutDropsTotal.WithLabelValues(name).Inc()
		svc.log.Warn("sink channel full, dropping signal", "sink", name, "id", s.ID)
	}

	svc.openSinks()

	if cfg.HTTPAddr != "" {
		router := api.NewRouter(api.Options{Monitors: svc, Health: svc.health, Gatherer: svc.reg})
		svc.apiServer = api.NewServer(cfg.HTTPAddr, router)
	}
	return svc, nil
}

func (svc *Service) newBinanceFeed() *binance.Feed {
	feed := binance.New(binance.Config{
		BaseURL:        svc.cfg.BinanceWSURL,
		Interval:       svc.cfg.KlineInterval,
		ForwardForming: svc.cfg.EvaluateForming,
	})
	feed.OnConnect = func(symbol string) {
		svc.health.SetFeedConnected(symbol, true)
	}
	feed.OnDisconnect = func(symbol string, err error) {
		svc.health.SetFeedConnected(symbol, false)
		svc.prom.FeedReconnects.WithLabelValues(symbol).Inc()
	}
	feed.OnDecodeError = func(symbol string, err error) {
		svc.prom.FeedDecodeErrors.WithLabelValues(symbol).Inc()
		svc.log.Debug("undecodable feed message", "symbol", symbol, "error", err)
	}
	return feed
}

// openSinks connects the optional Redis, SQLite and webhook sinks.
func (svc *Service) openSinks() {
	cfg := svc.cfg

	// ---- Connect to Redis ----
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Printf("[signald] WARNING: redis init failed: %v (continuing without display handoff)", err)
			svc.health.EnableRedis(false)
		} else {
			svc.publisher = pub
			svc.health.EnableRedis(true)

			cb := redisstore.NewBreaker(redisstore.BreakerConfig{MaxFailures: 5, FailureWindow: time.Minute, Cooldown: 10 * time.Second})
			cb.OnStateChange = func(from, to redisstore.State) {
				svc.prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					svc.prom.RedisCircuitBreakerTrips.Inc()
				}
				svc.log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
			}
			svc.buffered = redisstore.NewBufferedPublisher(svc.sinkCtx, pub, cb, 0)
			svc.buffered.OnBuffer = svc.prom.RedisBufferedWrites.Inc
		}
	}

	// ---- Open SQLite ----
	if cfg.SQLitePath != "" {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		j, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[signald] WARNING: sqlite init failed: %v (continuing without signal journal)", err)
			svc.health.EnableSQLite(false)
		} else {
			svc.journal = j
			svc.health.EnableSQLite(true)
			j.OnError = func(err error) {
				svc.prom.SinkErrors.WithLabelValues("sqlite").Inc()
			}
			j.OnCommit = func(_ int, d time.Duration) {
				svc.prom.SQLiteCommitDur.Observe(d.Seconds())
			}
		}
	}

	if cfg.WebhookURL != "" {
		svc.webhook = notification.NewWebhookNotifier(cfg.WebhookURL)
	}
}

// Symbols returns the monitored symbols, sorted.
func (svc *Service) Symbols() []string {
	return append([]string(nil), svc.symbols...)
}

// Monitor returns the monitor for symbol.
func (svc *Service) Monitor(symbol string) (*monitor.Monitor, bool) {
	m, ok := svc.monitors[symbol]
	return m, ok
}

// Health returns the service health tracker.
func (svc *Service) Health() *metrics.HealthStatus { return svc.health }

// Registry returns the service's Prometheus registry.
func (svc *Service) Registry() *prometheus.Registry { return svc.reg }

// Subscribe returns a channel receiving surfaced signals. It is closed
// once Run has drained the pipeline. Signals are dropped (and counted) while
// the channel is full. Subscribe before calling Run.
func (svc *Service) Subscribe(name string) <-chan strategy.Signal {
	return svc.bus.Subscribe(name)
}

// SubscribeAll is Subscribe without drops: a full channel holds back
// evaluation until the reader catches up. Offline consumers use it.
func (svc *Service) SubscribeAll(name string) <-chan strategy.Signal {
	return svc.bus.SubscribeBlocking(name)
}

// Run starts all subsystems and blocks until ctx is cancelled or every
// symbol's source is exhausted. Signals already surfaced are delivered to
// the sinks before Run returns.
func (svc *Service) Run(ctx context.Context) error {
	svc.log.Info("starting signal engine", "symbols", svc.symbols, "interval", svc.cfg.KlineInterval)

	svc.restore(ctx)
	svc.seed(ctx)

	// ---- Start sinks ----
	sinks := svc.startSinks()

	if svc.apiServer != nil {
		svc.apiServer.Start()
	}
	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.journalDB(), svc.cfg.LivenessInterval)
	go svc.statsLoop(ctx)

	// ---- Start pipeline ----
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range svc.symbols {
		updates := make(chan model.KlineUpdate, 64)
		sym := sym
		m := svc.monitors[sym]
		g.Go(func() error {
			defer close(updates)
			if !svc.sourceReportsHealth {
				svc.health.SetFeedConnected(sym, true)
				defer svc.health.SetFeedConnected(sym, false)
			}
			if err := svc.source.Stream(gctx, sym, updates); err != nil {
				return fmt.Errorf("signald: %s source: %w", sym, err)
			}
			return nil
		})
		g.Go(func() error {
			svc.process(gctx, m, updates)
			return nil
		})
	}

	svc.log.Info("all systems running", "sinks", svc.sinkNames())
	runErr := g.Wait()
	if runErr != nil && ctx.Err() == nil {
		svc.log.Error("pipeline stopped", "error", runErr)
	}

	// ---- Graceful shutdown ----
	close(svc.signalCh)
	sinks.Wait()
	return multierr.Append(ignoreCanceled(runErr), svc.shutdown())
}

// restore reloads journaled signals so a restart neither forgets history
// nor surfaces the same signals again.
func (svc *Service) restore(ctx context.Context) {
	if svc.journal == nil {
		return
	}
	for _, sym := range svc.symbols {
		signals, err := svc.journal.Recent(ctx, sym, dedup.DefaultCapacity)
		if err != nil {
			svc.log.Warn("journal restore failed", "symbol", sym, "error", err)
			continue
		}
		svc.monitors[sym].Restore(signals)
		if len(signals) > 0 {
			svc.log.Info("restored signal history", "symbol", sym, "signals", len(signals))
		}
	}
}

// seed warms each window from the history loader without surfacing signals.
func (svc *Service) seed(ctx context.Context) {
	if svc.history == nil {
		return
	}
	for _, sym := range svc.symbols {
		klines, err := svc.history.LoadHistory(ctx, sym)
		if err != nil {
			svc.log.Warn("history load failed", "symbol", sym, "error", err)
			continue
		}
		n := svc.monitors[sym].Seed(klines)
		svc.prom.WindowSize.WithLabelValues(sym).Set(float64(svc.monitors[sym].WindowLen()))
		svc.log.Info("seeded window", "symbol", sym, "klines", n)
	}
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.publisher == nil {
		return nil
	}
	return svc.publisher.Client()
}

func (svc *Service) journalDB() *sql.DB {
	if svc.journal == nil {
		return nil
	}
	return svc.journal.DB()
}

// statsLoop samples sink channel saturation.
func (svc *Service) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.sampleChannels()
		}
	}
}

func (svc *Service) sampleChannels() {
	for _, st := range svc.bus.ChannelStats() {
		if st.Cap > 0 {
			svc.prom.ChannelSaturationPct.WithLabelValues(st.Name).Set(float64(st.Len) / float64(st.Cap) * 100)
		}
	}
	svc.prom.ChannelSaturationPct.WithLabelValues("signals").Set(float64(len(svc.signalCh)) / float64(cap(svc.signalCh)) * 100)
}

// shutdown stops the API and closes the sinks.
func (svc *Service) shutdown() error {
	svc.log.Info("shutting down")
	defer svc.cancelSink()

	var errs error
	if svc.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		errs = multierr.Append(errs, svc.apiServer.Stop(ctx))
		cancel()
	}
	if svc.buffered != nil {
		if n := svc.buffered.PendingCount(); n > 0 {
			svc.log.Warn("redis buffer not flushed", "pending", n)
		}
	}
	if svc.publisher != nil {
		errs = multierr.Append(errs, svc.publisher.Close())
	}
	if svc.journal != nil {
		errs = multierr.Append(errs, svc.journal.Close())
	}
	svc.log.Info("shutdown complete")
	return errs
}
