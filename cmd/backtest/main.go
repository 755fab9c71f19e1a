// cmd/backtest replays stored daily bars through the swing engine and the
// paper broker, then prints and stores the run report.
//
// Infrastructure comes from the environment (see config.Config), strategy
// options from the YAML file named by STRATEGY_FILE.
//
// Usage:
//
//	go run ./cmd/backtest --speed=0 --linger=30s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swingtrader/config"
	"swingtrader/internal/execution"
	"swingtrader/internal/gateway"
	"swingtrader/internal/logger"
	"swingtrader/internal/marketdata/replay"
	"swingtrader/internal/markethours"
	"swingtrader/internal/metrics"
	"swingtrader/internal/notification"
	"swingtrader/internal/portfolio"
	redisstore "swingtrader/internal/store/redis"
	sqlitestore "swingtrader/internal/store/sqlite"
	"swingtrader/internal/strategy"
)

func main() {
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime)")
	runID := flag.String("run", "", "Run ID (default: random UUID)")
	allSnapshots := flag.Bool("all-snapshots", false, "Publish snapshots before every signal component is ready")
	linger := flag.Duration("linger", 0, "Keep the monitor and metrics servers up this long after the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init("backtest", cfg.LogLevel)

	sf, err := config.LoadStrategy(cfg.StrategyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load strategy")
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("interrupted, stopping replay")
		cancel()
	}()

	opts := runOptions{
		runID:        *runID,
		speed:        *speed,
		allSnapshots: *allSnapshots,
		linger:       *linger,
	}
	if err := run(ctx, cfg, sf, opts, log); err != nil {
		log.Fatal().Err(err).Str("run", *runID).Msg("backtest failed")
	}
}

type runOptions struct {
	runID        string
	speed        float64
	allSnapshots bool
	linger       time.Duration
}

func run(ctx context.Context, cfg *config.Config, sf config.StrategyFile, opts runOptions, log zerolog.Logger) error {
	log = log.With().Str("run", opts.runID).Logger()
	started := time.Now()

	// ---- Bars ----
	reader, err := sqlitestore.NewReader(cfg.SQLitePath, log)
	if err != nil {
		return err
	}
	defer reader.Close()

	from, to, err := cfg.Range()
	if err != nil {
		return err
	}
	index, err := reader.ReadBars(cfg.MarketSymbol, from, to)
	if err != nil {
		return fmt.Errorf("read market index: %w", err)
	}
	if len(index) == 0 {
		return fmt.Errorf("market index %s has no bars in %s", cfg.MarketSymbol, cfg.SQLitePath)
	}
	instruments, skipped, err := reader.LoadInstruments(sqlitestore.LoadOptions{
		Symbols: cfg.SymbolList(),
		Exclude: []string{cfg.MarketSymbol},
		MinBars: sf.Strategy.MinBars,
		From:    from,
		To:      to,
	})
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		return errors.New("no instruments to replay")
	}
	for i := range instruments {
		instruments[i].Bars = replay.AlignAux(instruments[i].Bars, index)
	}
	log.Info().Int("instruments", len(instruments)).Int("skipped", len(skipped)).
		Int("index_bars", len(index)).Msg("bars loaded")

	// ---- Engine ----
	cal, err := markethours.NewCalendar(cfg.Timezone, sf.Strategy.SessionOpen, sf.Strategy.SessionClose)
	if err != nil {
		return err
	}
	if err := cal.AddHolidays(cfg.HolidayList()...); err != nil {
		return err
	}
	engine, err := strategy.NewEngine(sf.Strategy, cal, log)
	if err != nil {
		return err
	}

	// ---- Paper account ----
	pf := portfolio.New(decimal.NewFromFloat(cfg.InitialCash), decimal.NewFromFloat(cfg.Commission))
	broker := execution.NewPaperBroker(pf, portfolio.NewRiskManager(sf.Risk, pf), sf.Broker, log)
	journal, err := execution.NewJournal(cfg.JournalPath, opts.runID, log)
	if err != nil {
		return err
	}
	defer journal.Close()
	broker.SetJournal(journal)

	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}, log)
	if err != nil {
		return err
	}
	defer writer.Close()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil, sf.Strategy.RSThreshold)
	prom.TrackPortfolio(pf)
	health := metrics.NewHealthStatus(opts.runID)
	prom.TrackHealth(health)
	engine.AddObserver(prom)
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, nil, health, log)
		metricsSrv.Start()
	}

	// ---- Event sinks ----
	var sinks []strategy.EventSink
	var pub *redisstore.Publisher
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		pub, err = redisstore.NewPublisher(ctx, redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			RunID:    opts.runID,
		}, log)
		if err != nil {
			// the run does not depend on Redis
			log.Warn().Err(err).Msg("redis unavailable, publishing disabled")
		} else {
			pub.OnBreakerChange(func(s redisstore.State) { prom.CircuitBreakerState.Set(float64(s)) })
			rdb = pub.Client()
			health.SetRedisEnabled(true)
			sinks = append(sinks, pub)
		}
	}
	var hub *gateway.Hub
	var wsSrv *http.Server
	if cfg.WSAddr != "" {
		hub = gateway.NewHub(log)
		mux := http.NewServeMux()
		gateway.RegisterRoutes(mux, hub)
		wsSrv = &http.Server{Addr: cfg.WSAddr, Handler: mux}
		go func() {
			log.Info().Str("addr", cfg.WSAddr).Msg("monitor listening")
			if err := wsSrv.ListenAndServe(); err != http.ErrServerClosed {
				log.Error().Err(err).Msg("monitor server")
			}
		}()
		prom.WatchClients(hub.ClientCount)
		sinks = append(sinks, hub)
	}
	notifiers := []notification.Notifier{notification.NewLogNotifier(log)}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	alerts := notification.NewDispatcher(notification.AlertLevel(cfg.AlertLevel), log, notifiers...)
	sinks = append(sinks, alerts)

	events := strategy.NewEventObserver(opts.runID, sf.Strategy.RSThreshold, log, sinks...)
	events.AllSnapshots = opts.allSnapshots
	engine.AddObserver(events)
	health.StartLivenessChecker(ctx, rdb, writer.DB(), 10*time.Second)

	// ---- Replay ----
	ticks := make(chan replay.Tick, 64)
	replayer := replay.New(instruments, opts.speed, log)
	go func() {
		if err := replayer.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("replay")
		}
	}()

	result, runErr := engine.Run(ctx, ticks, broker)
	if runErr != nil {
		log.Warn().Err(runErr).Msg("run stopped early, reporting partial result")
	}
	finished := time.Now()
	health.SetFinished()

	// ---- Report ----
	summary := pf.Summary()
	prom.HaltedInstruments.Set(float64(len(result.Halted)))
	events.PublishResult(result, finished, summary)
	if pub != nil {
		// waits for the queued batches, so the drop count is final
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
		prom.EventsDropped.Set(float64(pub.Dropped()))
	}

	optsJSON, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := writer.SaveRun(sqlitestore.RunRecord{
		ID:         opts.runID,
		StartedAt:  started,
		FinishedAt: finished,
		Options:    optsJSON,
		Summary:    summaryJSON,
		Signaled:   result.SignaledSymbols(),
		Halted:     result.HaltedSymbols(),
	}); err != nil {
		log.Error().Err(err).Msg("save run")
	}

	printReport(os.Stdout, opts.runID, summary, result, skipped, len(broker.Fills()))

	// ---- Shutdown ----
	if opts.linger > 0 && (hub != nil || metricsSrv != nil) && ctx.Err() == nil {
		log.Info().Dur("linger", opts.linger).Msg("run finished, servers stay up")
		select {
		case <-ctx.Done():
		case <-time.After(opts.linger):
		}
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	alerts.Close()
	if hub != nil {
		hub.Close()
		wsSrv.Shutdown(shutdownCtx)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutdownCtx)
	}
	return nil
}

func printReport(w io.Writer, runID string, s portfolio.Summary, r strategy.RunResult, skipped []string, fills int) {
	signaled := r.SignaledSymbols()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║             BACKTEST COMPLETE                ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Run:             %-26.26s ║\n", runID)
	fmt.Fprintf(w, "║  Start value:     %-26s ║\n", s.StartValue.StringFixed(2))
	fmt.Fprintf(w, "║  Final value:     %-26s ║\n", s.FinalValue.StringFixed(2))
	fmt.Fprintf(w, "║  Total return:    %-26s ║\n", s.TotalReturn.Shift(2).StringFixed(2)+"%")
	fmt.Fprintf(w, "║  Max drawdown:    %-26s ║\n", s.MaxDrawdown.Shift(2).StringFixed(2)+"%")
	fmt.Fprintf(w, "║  Realized P&L:    %-26s ║\n", s.RealizedPnL.StringFixed(2))
	fmt.Fprintf(w, "║  Commission:      %-26s ║\n", s.CommissionPaid.StringFixed(2))
	fmt.Fprintf(w, "║  Fills:           %-26d ║\n", fills)
	fmt.Fprintf(w, "║  Round trips:     %-26s ║\n", fmt.Sprintf("%d (won %d, lost %d)", s.RoundTrips, s.Won, s.Lost))
	fmt.Fprintf(w, "║  Open positions:  %-26d ║\n", s.OpenPositions)
	fmt.Fprintf(w, "║  Instruments:     %-26d ║\n", len(r.Signaled))
	fmt.Fprintf(w, "║  Skipped (short): %-26d ║\n", len(skipped))
	fmt.Fprintf(w, "║  Halted:          %-26d ║\n", len(r.Halted))
	fmt.Fprintf(w, "║  Signaled:        %-26d ║\n", len(signaled))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════╝")

	if len(signaled) > 0 {
		fmt.Fprintf(w, "\nSignaled instruments: %s\n", strings.Join(signaled, ", "))
	}
	for _, sym := range r.HaltedSymbols() {
		fmt.Fprintf(w, "Halted %s: %v\n", sym, r.Halted[sym])
	}
}
