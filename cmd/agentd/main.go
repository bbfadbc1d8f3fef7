// cmd/agentd is the strategy agent. It subscribes to finalized candles
// from Redis, runs registered strategies through the risk circuit
// breakers, converts surviving signals into agent intents and sized
// order proposals, and (in paper mode) simulates the fills.
//
// Proposals are advisory: they require human approval unless
// AGENT_MODE is "paper", in which case the built-in paper trader
// consumes them and journals simulated fills.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/config"
	"tradecore/internal/execution"
	"tradecore/internal/intent"
	"tradecore/internal/ledger"
	"tradecore/internal/logger"
	"tradecore/internal/marketdata/replay"
	"tradecore/internal/markethours"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/notification"
	"tradecore/internal/perf"
	"tradecore/internal/risk"
	"tradecore/internal/store/ndjson"
	redisstore "tradecore/internal/store/redis"
	sqlitestore "tradecore/internal/store/sqlite"
	"tradecore/internal/strategy"
)

const (
	candleChanSize    = 1024
	proposalChanSize  = 256
	heartbeatInterval = 15 * time.Second
	flattenCheckEvery = 30 * time.Second
)

// priceCache tracks the last close per symbol from the candle stream.
// It is the mark source for the allocator and the paper trader.
type priceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func newPriceCache() *priceCache {
	return &priceCache{prices: make(map[string]float64)}
}

func (p *priceCache) Update(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

func (p *priceCache) LastPrice(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.prices[symbol]
	return v, ok && v > 0
}

// positions tracks net signed quantity per symbol from paper fills,
// feeding the concentration breaker and the end-of-day flattener.
type positions struct {
	mu  sync.Mutex
	net map[string]int64
}

func newPositions() *positions {
	return &positions{net: make(map[string]int64)}
}

func (p *positions) Apply(f ledger.Fill) {
	qty := f.Qty.IntPart()
	if f.Side == ledger.Sell {
		qty = -qty
	}
	p.mu.Lock()
	p.net[f.Symbol] += qty
	p.mu.Unlock()
}

func (p *positions) Net(symbol string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.net[symbol]
}

func (p *positions) Open() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.net))
	for sym, qty := range p.net {
		if qty != 0 {
			out[sym] = qty
		}
	}
	return out
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[agentd] starting...")

	cfg := config.Load()
	slogger := logger.Init("agentd", logger.LevelFromEnv(cfg.LogLevel))
	slogger.Info("config loaded", "mode", cfg.AgentMode, "symbols", cfg.SubscribeSymbols)

	m := metrics.New()
	m.Preseed("agentd", "candles", "proposals")

	// ---- Stores ----
	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[agentd] redis reader: %v", err)
	}
	defer reader.Close()

	rw, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[agentd] redis writer: %v", err)
	}
	defer rw.Close()

	db, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[agentd] sqlite: %v", err)
	}
	defer db.Close()

	archive, err := ndjson.New(cfg.DataRoot)
	if err != nil {
		log.Fatalf("[agentd] ndjson archive: %v", err)
	}
	defer archive.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Risk engine ----
	var backend notification.Notifier = &notification.LogNotifier{}
	if cfg.WebhookURL != "" {
		backend = notification.NewMultiNotifier(
			&notification.LogNotifier{},
			notification.NewWebhookNotifier(cfg.WebhookURL),
		)
	}
	alerter := &notification.RiskAlerter{Backend: backend}

	riskEngine := risk.New(risk.Config{}, db, reader, rw, db, alerter)

	acct := risk.Account{
		TenantID:       getEnv("TENANT_ID", "default"),
		UserID:         getEnv("USER_ID", "agent"),
		StrategyID:     getEnv("STRATEGY_ID", "momentum"),
		StartingEquity: decimal.NewFromInt(int64(getEnvInt("STARTING_EQUITY", 100000))),
	}

	// ---- Strategy engine ----
	engine := strategy.NewEngine(256)
	engine.Register(strategy.NewMomentum(
		getEnvInt("MOMENTUM_FAST", 9),
		getEnvInt("MOMENTUM_SLOW", 21),
		getEnvInt("MOMENTUM_RSI", 14),
	))
	engine.SetEntryGate(markethours.InEntryWindow)

	// ---- Intent emission ----
	audit := intent.NewAuditWriter(cfg.AuditRoot)
	defer audit.Close()
	emitter := intent.NewEmitter(os.Stdout, audit)

	prices := newPriceCache()
	book := newPositions()

	// ---- Paper execution ----
	paperMode := cfg.AgentMode == "paper"
	proposalCh := make(chan model.OrderProposal, proposalChanSize)
	var wg sync.WaitGroup

	if paperMode {
		trader := execution.New(execution.Config{
			SlippageBps: int64(getEnvInt("SLIPPAGE_BPS", 5)),
			FeePerShare: decimal.RequireFromString(getEnv("FEE_PER_SHARE", "0.005")),
		}, execution.Account{
			TenantID:   acct.TenantID,
			UID:        acct.UserID,
			StrategyID: acct.StrategyID,
			RunID:      getEnv("RUN_ID", ""),
		}, prices, db)
		trader.OnFill = book.Apply

		wg.Add(1)
		go func() {
			defer wg.Done()
			trader.Run(ctx, proposalCh)
		}()
		go func() {
			for res := range trader.Results() {
				log.Printf("[agentd] paper result: %s %s %s", res.ProposalID, res.Status, res.Message)
			}
		}()
		log.Println("[agentd] paper trading enabled")
	} else {
		log.Printf("[agentd] mode %q: proposals emitted for human approval only", cfg.AgentMode)
	}

	// ---- Candle source: live Redis pubsub, or archive replay when a
	// REPLAY_FROM/REPLAY_TO window is configured ----
	candleCh := make(chan model.Candle, candleChanSize)
	strategyCh := make(chan model.Candle, candleChanSize)

	replayFrom := getEnv("REPLAY_FROM", "")
	if replayFrom != "" {
		from, err := time.Parse("2006-01-02", replayFrom)
		if err != nil {
			log.Fatalf("[agentd] bad REPLAY_FROM %q: %v", replayFrom, err)
		}
		to, err := time.Parse("2006-01-02", getEnv("REPLAY_TO", replayFrom))
		if err != nil {
			log.Fatalf("[agentd] bad REPLAY_TO: %v", err)
		}
		speed, _ := strconv.ParseFloat(getEnv("REPLAY_SPEED", "0"), 64)
		var tfs []string
		for _, tf := range strings.Split(cfg.Timeframes, ",") {
			if tf = strings.TrimSpace(tf); tf != "" {
				tfs = append(tfs, tf)
			}
		}
		log.Printf("[agentd] replay mode: %s..%s at %.1fx", replayFrom, getEnv("REPLAY_TO", replayFrom), speed)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(candleCh)
			r := replay.New(archive)
			if err := r.Run(ctx, cfg.ParseSymbols(), tfs, from, to, speed, candleCh); err != nil && ctx.Err() == nil {
				log.Printf("[agentd] replay error: %v", err)
				m.ErrorsTotal.WithLabelValues("agentd").Inc()
			}
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reader.SubscribeCandles(ctx, candleCh); err != nil {
				log.Printf("[agentd] candle subscription ended: %v", err)
				m.ErrorsTotal.WithLabelValues("agentd").Inc()
			}
			close(candleCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(strategyCh)
		for c := range candleCh {
			m.MessagesReceived.WithLabelValues("agentd", "candles").Inc()
			if c.Final {
				prices.Update(c.Symbol, c.Close)
			}
			select {
			case strategyCh <- c:
			default:
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx, strategyCh)
	}()

	app := &agent{
		cfg:       cfg,
		metrics:   m,
		reader:    reader,
		risk:      riskEngine,
		acct:      acct,
		emitter:   emitter,
		archive:   archive,
		db:        db,
		prices:    prices,
		book:      book,
		proposals: proposalCh,
		paperMode: paperMode,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSignalLoop(ctx, engine.Signals())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runFlattener(ctx)
	}()

	// ---- Heartbeat ----
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rw.WriteHeartbeat(ctx, "agentd", time.Now().UTC(), 3*heartbeatInterval); err != nil {
					log.Printf("[agentd] heartbeat write error: %v", err)
				}
			}
		}
	}()

	// ---- HTTP: metrics and health probes ----
	metricsSrv := metrics.NewServer(getEnv("AGENT_METRICS_ADDR", ":9091"), metrics.Identity{
		Service: "agentd",
		Version: cfg.AgentName,
		GitSHA:  cfg.GitSHA,
	}, metrics.Probes{
		Safety:         app.safetyState,
		LastMarketData: app.lastMarketData,
		StaleThreshold: func() time.Duration { return cfg.StaleThreshold },
	}, m)
	metricsSrv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[agentd] received %v, shutting down...", sig)

	cancel()
	close(proposalCh)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("[agentd] shutdown timed out")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[agentd] stopped")
}

// stateSource is the slice of the Redis reader the agent consults on
// every signal: safety state, upstream heartbeat, and the sticky
// shadow-mode flag the daily-loss breaker sets.
type stateSource interface {
	ReadSafetyState(ctx context.Context) (model.SafetyState, bool, error)
	ReadHeartbeat(ctx context.Context, serviceID string, staleAfter time.Duration) (model.HeartbeatInfo, error)
	ShadowMode(ctx context.Context, userID string) (bool, error)
}

// agent bundles the signal-to-proposal path.
type agent struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	reader    stateSource
	risk      *risk.Engine
	acct      risk.Account
	emitter   *intent.Emitter
	archive   *ndjson.Store
	db        *sqlitestore.Store
	prices    *priceCache
	book      *positions
	proposals chan<- model.OrderProposal
	paperMode bool

	lastSummaryDay string
}

// safetyState reads the published safety state; a missing key is
// unsafe (fail closed).
func (a *agent) safetyState() model.SafetyState {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, ok, err := a.reader.ReadSafetyState(ctx)
	if err != nil || !ok {
		return model.SafetyState{
			TradingEnabled: false,
			ReasonCodes:    []string{"safety_state_unavailable"},
			UpdatedAt:      time.Now().UTC(),
		}
	}
	return st
}

func (a *agent) lastMarketData() *time.Time {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hb, err := a.reader.ReadHeartbeat(ctx, "mdengine", a.cfg.StaleThreshold)
	if err != nil || hb.LastHeartbeat == nil {
		return nil
	}
	return hb.LastHeartbeat
}

func (a *agent) runSignalLoop(ctx context.Context, signals <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			a.handleSignal(ctx, sig)
		}
	}
}

func (a *agent) handleSignal(ctx context.Context, sig strategy.Signal) {
	started := time.Now()
	a.metrics.StrategyCycles.Inc()

	st := a.safetyState()
	if !st.SafeToRun() {
		a.metrics.StrategyCyclesSkipped.Inc()
		log.Printf("[agentd] halted (%v), skipping %s signal for %s", st.ReasonCodes, sig.Action, sig.Symbol)
		return
	}

	// Fill in the current exposure so the concentration breaker sees it.
	acct := a.acct
	if last, ok := a.prices.LastPrice(sig.Symbol); ok {
		acct.TickerValue = float64(a.book.Net(sig.Symbol)) * last
	}
	acct.PortfolioValue, _ = a.acct.StartingEquity.Float64()

	vetted := a.risk.Apply(ctx, sig, acct)
	if vetted.Action == strategy.ActionHold {
		a.metrics.StrategyCyclesSkipped.Inc()
		return
	}

	side := model.SideBuy
	if vetted.Action == strategy.ActionSell {
		side = model.SideSell
	}

	now := time.Now().UTC()
	in, err := intent.New(intent.Params{
		RepoID:          a.cfg.RepoID,
		AgentName:       a.cfg.AgentName,
		StrategyName:    vetted.StrategyName,
		StrategyVersion: vetted.StrategyVersion,
		Symbol:          vetted.Symbol,
		AssetType:       model.AssetEquity,
		Kind:            model.KindDirectional,
		Side:            side,
		Confidence:      &vetted.Confidence,
		Rationale: model.Rationale{
			ShortReason: vetted.Reason,
			Indicators:  vetted.Indicators,
		},
		Constraints: model.Constraints{
			ValidUntil:            now.Add(5 * time.Minute),
			RequiresHumanApproval: !a.paperMode,
		},
	}, now)
	if err != nil {
		log.Printf("[agentd] intent build error: %v", err)
		a.metrics.ErrorsTotal.WithLabelValues("agentd").Inc()
		return
	}

	traceID := logger.GenerateTraceID(vetted.Symbol, now)

	// The daily-loss breaker shadows the user with no TTL; the flag
	// sticks across midnight until an operator clears it. Shadowed (or
	// unreadable) means the signal is computed and logged but never
	// becomes a proposal.
	shadowed, err := a.reader.ShadowMode(ctx, a.acct.UserID)
	if err != nil {
		log.Printf("[agentd] shadow mode read error: %v, suppressing proposal", err)
		shadowed = true
	}
	if shadowed {
		a.emitIntent(in, traceID, intent.OutcomeSuccess, started)
		log.Printf("[agentd] shadow mode active for %s, proposal suppressed", a.acct.UserID)
		return
	}

	last, ok := a.prices.LastPrice(vetted.Symbol)
	if !ok {
		a.emitIntent(in, traceID, intent.OutcomeFailure, started)
		log.Printf("[agentd] no mark for %s, intent not sized", vetted.Symbol)
		return
	}

	qty := a.cfg.DefaultOrderQty
	if vetted.AllocationScale > 0 && vetted.AllocationScale < 1 {
		qty = int64(float64(qty) * vetted.AllocationScale)
		if qty < 1 {
			qty = 1
		}
	}
	alloc := intent.Allocator{DefaultQty: qty}

	allocation, err := alloc.Allocate(ctx, in, last)
	if err != nil {
		a.emitIntent(in, traceID, intent.OutcomeFailure, started)
		a.metrics.ErrorsTotal.WithLabelValues("agentd").Inc()
		return
	}
	if !allocation.Allowed || allocation.Proposal == nil {
		a.emitIntent(in, traceID, intent.OutcomeFailure, started)
		return
	}

	a.emitIntent(in, traceID, intent.OutcomeSuccess, started)
	a.publishProposal(*allocation.Proposal)
}

func (a *agent) emitIntent(in *model.AgentIntent, traceID string, outcome intent.Outcome, started time.Time) {
	if err := a.emitter.Emit(in, traceID, outcome, time.Since(started).Milliseconds()); err != nil {
		log.Printf("[agentd] intent emit error: %v", err)
		a.metrics.ErrorsTotal.WithLabelValues("agentd").Inc()
	}
}

func (a *agent) publishProposal(p model.OrderProposal) {
	a.metrics.OrderProposals.Inc()
	a.metrics.MessagesPublished.WithLabelValues("agentd", "proposals").Inc()
	if err := a.archive.AppendProposal(p); err != nil {
		log.Printf("[agentd] proposal archive error: %v", err)
		a.metrics.ErrorsTotal.WithLabelValues("agentd").Inc()
	}
	if a.paperMode {
		select {
		case a.proposals <- p:
		default:
			log.Printf("[agentd] proposal channel full, dropping %s", p.ProposalID)
		}
	}
}

// runFlattener closes open paper positions inside the end-of-day
// flatten window.
func (a *agent) runFlattener(ctx context.Context) {
	if !a.paperMode {
		return
	}
	ticker := time.NewTicker(flattenCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if markethours.InFlattenWindow(now) {
				for sym, qty := range a.book.Open() {
					a.flatten(ctx, sym, qty)
				}
				continue
			}
			// First check after the close: log the day's P&L.
			if now.After(markethours.TodayClose(now)) {
				day := now.In(markethours.Eastern).Format("2006-01-02")
				if day != a.lastSummaryDay {
					a.lastSummaryDay = day
					a.logDaySummary(ctx, now)
				}
			}
		}
	}
}

// logDaySummary attributes today's journaled fills and logs the
// per-group realized P&L plus the day classification.
func (a *agent) logDaySummary(ctx context.Context, now time.Time) {
	local := now.In(markethours.Eastern)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, markethours.Eastern)

	fills, err := a.db.FillsSince(ctx, midnight)
	if err != nil {
		log.Printf("[agentd] day summary: fills read error: %v", err)
		return
	}
	if len(fills) == 0 {
		return
	}

	marks := make(map[string]decimal.Decimal)
	for _, f := range fills {
		if last, ok := a.prices.LastPrice(f.Symbol); ok {
			marks[f.Symbol] = ledger.DecimalFromFloat(last)
		}
	}

	attrs, err := perf.Attribute(fills, perf.Period{Start: midnight, End: now}, marks)
	if err != nil {
		log.Printf("[agentd] day summary: attribution error: %v", err)
		return
	}

	totalNet := decimal.Zero
	totalFees := decimal.Zero
	for key, at := range attrs {
		totalNet = totalNet.Add(at.RealizedNet)
		totalFees = totalFees.Add(at.RealizedFees)
		log.Printf("[agentd] day summary %s: gross=%s fees=%s net=%s unrealized=%s",
			key, at.RealizedGross, at.RealizedFees, at.RealizedNet, at.Unrealized)
	}
	log.Printf("[agentd] day result: net=%s fees=%s class=%s (%d fills)",
		totalNet, totalFees, perf.ClassifyDay(totalNet, totalFees), len(fills))
}

func (a *agent) flatten(ctx context.Context, symbol string, netQty int64) {
	side := model.SideSell
	qty := netQty
	if netQty < 0 {
		side = model.SideBuy
		qty = -netQty
	}
	now := time.Now().UTC()
	log.Printf("[agentd] flattening %s: %s %d", symbol, side, qty)

	in, err := intent.New(intent.Params{
		RepoID:       a.cfg.RepoID,
		AgentName:    a.cfg.AgentName,
		StrategyName: "eod_flatten",
		Symbol:       symbol,
		AssetType:    model.AssetEquity,
		Kind:         model.KindExit,
		Side:         side,
		Rationale:    model.Rationale{ShortReason: "end of day flatten"},
		Constraints: model.Constraints{
			ValidUntil:            now.Add(2 * time.Minute),
			RequiresHumanApproval: false,
		},
	}, now)
	if err != nil {
		log.Printf("[agentd] flatten intent error: %v", err)
		return
	}

	last, ok := a.prices.LastPrice(symbol)
	if !ok {
		log.Printf("[agentd] no mark for %s, cannot flatten", symbol)
		return
	}

	alloc := intent.Allocator{DefaultQty: qty}
	allocation, err := alloc.Allocate(ctx, in, last)
	if err != nil || !allocation.Allowed || allocation.Proposal == nil {
		log.Printf("[agentd] flatten allocation failed for %s: %v", symbol, err)
		return
	}

	traceID := logger.GenerateTraceID(symbol, now)
	a.emitIntent(in, traceID, intent.OutcomeSuccess, now)
	a.publishProposal(*allocation.Proposal)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
