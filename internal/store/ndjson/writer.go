package ndjson

import (
	"context"
	"log"

	"tradecore/internal/model"
)

// AppendCandle writes a candle to its (timeframe, day, symbol)
// partition. The partition day is the candle's bucket start.
func (s *Store) AppendCandle(c model.Candle) error {
	return s.appendLine(s.candlePath(c.Timeframe, c.Symbol, c.Start), c.JSON())
}

// AppendTick writes a raw tick to its (day, symbol) partition.
func (s *Store) AppendTick(t model.Tick) error {
	line, err := marshalTick(t)
	if err != nil {
		return err
	}
	return s.appendLine(s.tickPath(t.Symbol, t.TS), line)
}

// AppendProposal writes an order proposal to the day's shared file.
func (s *Store) AppendProposal(p model.OrderProposal) error {
	return s.appendLine(s.proposalPath(p.CreatedAt), p.JSON())
}

// RunCandleWriter drains final candles from ch into the store until
// ctx is cancelled or ch closes. Write errors are logged and the
// candle is dropped; archival must not stall the pipeline.
func (s *Store) RunCandleWriter(ctx context.Context, ch <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			if !c.Final {
				continue
			}
			if err := s.AppendCandle(c); err != nil {
				log.Printf("[ndjson] candle append error for %s: %v", c.Key(), err)
			}
		}
	}
}
