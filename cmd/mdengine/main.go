// cmd/mdengine is the market data ingest service. It consumes the tick
// WebSocket feed, filters anomalous prints, aggregates ticks into
// watermark-finalized candles on every enabled timeframe and fans the
// candles out to the NDJSON archive, the SQLite archive and Redis.
//
// It also runs the safety monitor and serves /metrics, /livez, /readyz
// and /heartbeat.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tradecore/config"
	"tradecore/internal/logger"
	"tradecore/internal/marketdata/agg"
	"tradecore/internal/marketdata/bus"
	"tradecore/internal/marketdata/closedetector"
	"tradecore/internal/marketdata/stream"
	"tradecore/internal/marketdata/tickfilter"
	"tradecore/internal/markethours"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/safety"
	"tradecore/internal/store/ndjson"
	redisstore "tradecore/internal/store/redis"
	sqlitestore "tradecore/internal/store/sqlite"
	"tradecore/internal/timeframe"
)

const (
	tickChanSize   = 10000
	candleChanSize = 5000

	heartbeatInterval = 15 * time.Second
	saturationEvery   = 5 * time.Second
)

// session tracks the live feed session so the tick pump can ask for a
// disconnect once the closing price has stabilized after the bell.
type session struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	detector *closedetector.Detector
}

func (s *session) begin(cancel context.CancelFunc, det *closedetector.Detector) {
	s.mu.Lock()
	s.cancel = cancel
	s.detector = det
	s.mu.Unlock()
}

// observe feeds a tick to the close detector and ends the session when
// the detector says the closing price is captured.
func (s *session) observe(price float64, ts time.Time) {
	s.mu.Lock()
	det, cancel := s.detector, s.cancel
	s.mu.Unlock()
	if det == nil || cancel == nil {
		return
	}
	if det.Observe(price, ts) {
		log.Printf("[mdengine] closing price %.4f captured, ending session", det.ClosingPrice())
		cancel()
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[mdengine] starting...")

	cfg := config.Load()
	slogger := logger.Init("mdengine", logger.LevelFromEnv(cfg.LogLevel))
	slogger.Info("config loaded",
		"stream_url", cfg.StreamURL,
		"symbols", cfg.SubscribeSymbols,
		"timeframes", cfg.Timeframes,
	)

	tfs, err := timeframe.ParseList(cfg.Timeframes)
	if err != nil {
		log.Fatalf("[mdengine] bad ENABLED_TIMEFRAMES %q: %v", cfg.Timeframes, err)
	}
	log.Printf("[mdengine] enabled timeframes: %v", tfs)

	m := metrics.New()
	m.Preseed("mdengine", "ticks", "candles")

	// ---- Stores ----
	archive, err := ndjson.New(cfg.DataRoot)
	if err != nil {
		log.Fatalf("[mdengine] ndjson archive: %v", err)
	}
	defer archive.Close()

	db, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[mdengine] sqlite: %v", err)
	}
	defer db.Close()
	db.OnCommit = func(d time.Duration) { m.SQLiteCommitDur.Observe(d.Seconds()) }

	rw, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[mdengine] redis: %v", err)
	}
	defer rw.Close()
	rw.OnWrite = func(d time.Duration) { m.RedisWriteDur.Observe(d.Seconds()) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Safety monitor ----
	activity := &safety.Activity{}
	monitor := safety.NewMonitor(safety.LoadConfig, activity, 2*time.Second)
	monitor.OnHalt = func(st model.SafetyState) {
		m.SafetyHalted.Inc()
		log.Printf("[mdengine] HALTED: %v", st.ReasonCodes)
	}
	monitor.OnResume = func(st model.SafetyState) {
		log.Println("[mdengine] safety resumed")
	}
	go monitor.Run(ctx)

	// ---- Pipeline ----
	rawCh := make(chan model.Tick, tickChanSize)
	filteredCh := make(chan model.Tick, tickChanSize)
	candleCh := make(chan model.Candle, candleChanSize)

	sess := &session{}

	client, err := stream.New(stream.Config{URL: cfg.StreamURL})
	if err != nil {
		log.Fatalf("[mdengine] stream client: %v", err)
	}
	client.OnReconnect = func() {
		m.ReconnectAttempts.WithLabelValues("mdengine", "ticks").Inc()
	}
	client.OnActivity = func(ts time.Time) {
		activity.Mark(ts)
		m.TicksTotal.Inc()
		m.MessagesReceived.WithLabelValues("mdengine", "ticks").Inc()
	}
	client.OnParseErr = func() {
		m.ErrorsTotal.WithLabelValues("mdengine").Inc()
	}

	aggregator := agg.New(agg.Config{
		Timeframes:  tfs,
		Lateness:    time.Duration(cfg.LatenessSeconds) * time.Second,
		EmitUpdates: cfg.EmitUpdates,
	})
	aggregator.OnLateDrop = func() { m.LateTicksTotal.Inc() }
	aggregator.OnEmitDrop = func() { m.ErrorsTotal.WithLabelValues("mdengine").Inc() }

	fan := bus.New(candleChanSize)
	fan.OnDrop = func(name string) {
		m.FanoutDrops.WithLabelValues(name).Inc()
	}
	ndjsonCh := fan.SubscribeFinal("ndjson")
	sqliteCh := fan.SubscribeFinal("sqlite")
	redisCh := fan.SubscribeFinal("redis")

	var wg sync.WaitGroup

	// Tick pump: anomaly filter, raw tick archive, close detection.
	// Prints for the volatility index symbol also refresh the VIX
	// cache the risk engine reads.
	vixSymbol := os.Getenv("VIX_SYMBOL")
	if vixSymbol == "" {
		vixSymbol = "VIX"
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(filteredCh)
		filters := make(map[string]*tickfilter.Filter)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-rawCh:
				if !ok {
					return
				}
				f := filters[t.Symbol]
				if f == nil {
					f = tickfilter.New(tickfilter.Config{MaxDeviationPct: 0.05})
					filters[t.Symbol] = f
				}
				clean, ok := f.Apply(t)
				if !ok {
					continue
				}
				if err := archive.AppendTick(clean); err != nil {
					log.Printf("[mdengine] tick archive error: %v", err)
					m.ErrorsTotal.WithLabelValues("mdengine").Inc()
				}
				sess.observe(clean.Price, clean.TS)
				if clean.Symbol == vixSymbol {
					if err := rw.SetVIX(ctx, clean.Price); err != nil {
						log.Printf("[mdengine] vix cache write error: %v", err)
					}
				}
				select {
				case filteredCh <- clean:
				default:
					m.ErrorsTotal.WithLabelValues("mdengine").Inc()
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(candleCh)
		aggregator.Run(ctx, filteredCh, candleCh)
	}()

	// Counting tee between the aggregator and the fan-out.
	fanInCh := make(chan model.Candle, candleChanSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fanInCh)
		for c := range candleCh {
			if c.Final {
				m.CandlesTotal.Inc()
				m.MessagesPublished.WithLabelValues("mdengine", "candles").Inc()
			}
			select {
			case fanInCh <- c:
			default:
				m.FanoutDrops.WithLabelValues("input").Inc()
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		fan.Run(ctx, fanInCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		archive.RunCandleWriter(ctx, ndjsonCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		db.RunCandleArchive(ctx, sqliteCh)
	}()

	// Redis writes go through a circuit breaker with local buffering,
	// so a Redis outage does not lose candles.
	cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[mdengine] redis circuit %s -> %s", from, to)
		if to == redisstore.StateOpen {
			m.ErrorsTotal.WithLabelValues("mdengine").Inc()
		}
	}
	bw := redisstore.NewBufferedWriter(ctx, rw, cb, 10000)
	wg.Add(1)
	go func() {
		defer wg.Done()
		bw.Run(ctx, redisCh)
	}()

	// ---- Heartbeat + safety state publication ----
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				if err := rw.WriteHeartbeat(ctx, "mdengine", now, 3*heartbeatInterval); err != nil {
					log.Printf("[mdengine] heartbeat write error: %v", err)
				}
				st := monitor.State()
				if err := rw.WriteSafetyState(ctx, st); err != nil {
					log.Printf("[mdengine] safety state write error: %v", err)
				}
				if !st.MarketDataFresh {
					m.StaleTotal.Inc()
				}
			}
		}
	}()

	// ---- Channel saturation reporting ----
	go func() {
		ticker := time.NewTicker(saturationEvery)
		defer ticker.Stop()
		var lastRingDropped uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d := client.QueueDropped(); d > lastRingDropped {
					m.RingBufDropped.Add(float64(d - lastRingDropped))
					lastRingDropped = d
				}
				m.ChannelFillPct.WithLabelValues("raw_ticks").Set(fillPct(len(rawCh), cap(rawCh)))
				m.ChannelFillPct.WithLabelValues("candles").Set(fillPct(len(candleCh), cap(candleCh)))
				for _, st := range fan.ChannelStats() {
					m.ChannelFillPct.WithLabelValues("fanout_" + st.Name).Set(fillPct(st.Len, st.Cap))
					if st.Cap > 0 && st.Len*100/st.Cap >= 80 {
						log.Printf("[mdengine] WARNING: fanout channel %s at %d/%d", st.Name, st.Len, st.Cap)
					}
				}
			}
		}
	}()

	// ---- HTTP: metrics and health probes ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, metrics.Identity{
		Service: "mdengine",
		Version: cfg.AgentName,
		GitSHA:  cfg.GitSHA,
	}, metrics.Probes{
		Safety:         monitor.State,
		LastMarketData: activity.Last,
		StaleThreshold: func() time.Duration { return cfg.StaleThreshold },
	}, m)
	metricsSrv.Start()

	// ---- Feed supervisor: one WS session per trading day ----
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(rawCh)
		runFeed(ctx, client, sess, rawCh)
	}()

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[mdengine] received %v, shutting down...", sig)

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("[mdengine] shutdown timed out waiting for pipeline drain")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Printf("[mdengine] stopped (late=%d queue_dropped=%d)",
		aggregator.LateDropped(), client.QueueDropped())
}

// runFeed keeps one stream session alive per trading day, sleeping
// through closed hours and reconnecting at the next open.
func runFeed(ctx context.Context, client *stream.Client, sess *session, rawCh chan<- model.Tick) {
	for {
		now := time.Now()
		if !markethours.IsMarketOpen(now) {
			next := markethours.NextOpen(now)
			wait := time.Until(next)
			log.Printf("[mdengine] market closed (%s), next open %s (in %v)",
				markethours.StatusString(now), next.Format(time.RFC3339), wait.Round(time.Second))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		sessionCtx, sessionCancel := context.WithCancel(ctx)
		sess.begin(sessionCancel, closedetector.New(markethours.TodayClose(now)))

		log.Println("[mdengine] market open, starting feed session")
		err := client.Start(sessionCtx, rawCh)
		sessionCancel()

		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, stream.ErrRetryWindowExceeded) {
			log.Printf("[mdengine] FATAL: %v", err)
			return
		}
		if err != nil {
			log.Printf("[mdengine] feed session ended: %v", err)
		}
		// Loop back around; if we disconnected post-close the market
		// hours gate sleeps until the next open.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func fillPct(length, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(length) / float64(capacity) * 100
}
