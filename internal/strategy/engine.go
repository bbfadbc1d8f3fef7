package strategy

import (
	"context"
	"log"
	"time"

	"tradecore/internal/model"
)

// EntryGate reports whether new entries are allowed at t. Exit signals
// bypass the gate so EOD flatten keeps working after the entry cutoff.
type EntryGate func(t time.Time) bool

// Engine routes final candles to registered strategies and collects
// their signals.
type Engine struct {
	strategies []Strategy
	signalCh   chan Signal
	gate       EntryGate

	// Metrics hooks
	OnCycle        func()
	OnCycleSkipped func()
	OnSignalDrop   func()
}

// NewEngine creates an engine with the given signal buffer size.
func NewEngine(signalBufferSize int) *Engine {
	return &Engine{
		signalCh: make(chan Signal, signalBufferSize),
	}
}

// Register adds a strategy.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// SetEntryGate installs the time gate applied to BUY/SELL signals.
func (e *Engine) SetEntryGate(g EntryGate) { e.gate = g }

// Signals returns the channel of emitted signals.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// Run consumes candles and routes them to all registered strategies.
// Non-final candles are ignored. Blocks until ctx is cancelled or
// candleCh is closed.
func (e *Engine) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			if !candle.Final {
				continue
			}
			e.cycle(candle)
		}
	}
}

func (e *Engine) cycle(candle model.Candle) {
	for _, s := range e.strategies {
		if e.OnCycle != nil {
			e.OnCycle()
		}
		sig := s.OnCandle(candle)
		if sig == nil {
			continue
		}

		if sig.Action != ActionHold && e.gate != nil && !e.gate(candle.End) {
			if e.OnCycleSkipped != nil {
				e.OnCycleSkipped()
			}
			continue
		}
		if sig.AllocationScale == 0 {
			sig.AllocationScale = 1.0
		}

		select {
		case e.signalCh <- *sig:
		default:
			if e.OnSignalDrop != nil {
				e.OnSignalDrop()
			} else {
				log.Printf("[strategy] signal channel full, dropping %s %s", sig.Action, sig.Symbol)
			}
		}
	}
}
