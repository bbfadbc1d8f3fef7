package strategy

import (
	"math"

	"tradecore/internal/indicator"
	"tradecore/internal/model"
)

// Momentum is an SMA crossover strategy.
//
// BUY when the fast SMA crosses above the slow SMA (golden cross),
// SELL when it crosses below (death cross). The optional RSI filter
// suppresses buying when overbought (>70) and selling when oversold
// (<30). Confidence scales with the width of the crossover.
type Momentum struct {
	name    string
	version string

	fast *indicator.SMA
	slow *indicator.SMA
	rsi  *indicator.RSI

	prevFast float64
	prevSlow float64
	ready    bool
}

// NewMomentum creates the crossover strategy. fastPeriod < slowPeriod
// (e.g. 9 and 21). rsiPeriod of 0 disables the RSI filter.
func NewMomentum(fastPeriod, slowPeriod, rsiPeriod int) *Momentum {
	m := &Momentum{
		name:    "momentum",
		version: "1.0.0",
		fast:    indicator.NewSMA(fastPeriod),
		slow:    indicator.NewSMA(slowPeriod),
	}
	if rsiPeriod > 0 {
		m.rsi = indicator.NewRSI(rsiPeriod)
	}
	return m
}

func (m *Momentum) Name() string    { return m.name }
func (m *Momentum) Version() string { return m.version }

func (m *Momentum) OnCandle(candle model.Candle) *Signal {
	m.fast.Update(candle)
	m.slow.Update(candle)
	if m.rsi != nil {
		m.rsi.Update(candle)
	}

	if !m.slow.Ready() {
		return nil
	}

	fastV, slowV := m.fast.Value(), m.slow.Value()
	defer func() {
		m.prevFast, m.prevSlow = fastV, slowV
		m.ready = true
	}()
	if !m.ready {
		return nil
	}

	var action Action
	var reason string
	switch {
	case m.prevFast <= m.prevSlow && fastV > slowV:
		if m.rsi != nil && m.rsi.Ready() && m.rsi.Value() > 70 {
			action, reason = ActionHold, "golden cross filtered by overbought RSI"
		} else {
			action, reason = ActionBuy, "SMA golden cross (fast > slow)"
		}
	case m.prevFast >= m.prevSlow && fastV < slowV:
		if m.rsi != nil && m.rsi.Ready() && m.rsi.Value() < 30 {
			action, reason = ActionHold, "death cross filtered by oversold RSI"
		} else {
			action, reason = ActionSell, "SMA death cross (fast < slow)"
		}
	default:
		return nil
	}

	indicators := map[string]interface{}{
		m.fast.Name(): fastV,
		m.slow.Name(): slowV,
	}
	if m.rsi != nil && m.rsi.Ready() {
		indicators[m.rsi.Name()] = m.rsi.Value()
	}

	return &Signal{
		StrategyName:    m.name,
		StrategyVersion: m.version,
		Symbol:          candle.Symbol,
		Timeframe:       candle.Timeframe,
		Action:          action,
		Confidence:      crossoverConfidence(fastV, slowV),
		Reason:          reason,
		Indicators:      indicators,
		TS:              candle.End,
		AllocationScale: 1.0,
	}
}

// crossoverConfidence maps the relative SMA spread into [0.5, 1.0]: a
// wider cross is a stronger signal.
func crossoverConfidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0.5
	}
	spread := math.Abs(fast-slow) / slow
	c := 0.5 + spread*50
	if c > 1.0 {
		c = 1.0
	}
	return c
}
