package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tradecore/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// RunCandleArchive reads final candles from candleCh and inserts them
// in batched transactions. Flushes every defaultBatchSize candles OR
// every defaultFlushDelay, whichever comes first. Blocks until ctx is
// cancelled or candleCh is closed; the tail batch is flushed on exit.
func (s *Store) RunCandleArchive(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertCandleBatch(batch); err != nil {
			log.Printf("[sqlite] candle batch insert error: %v", err)
		} else {
			elapsed := time.Since(start)
			if s.OnCommit != nil {
				s.OnCommit(elapsed)
			}
			log.Printf("[sqlite] committed %d candles in %v", len(batch), elapsed)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			if !candle.Final {
				continue
			}
			batch = append(batch, candle)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (s *Store) insertCandleBatch(candles []model.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts_start, ts_end, open, high, low, close, volume, vwap, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.Timeframe, c.Start.Unix(), c.End.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.VWAP, c.TradeCount)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ReadCandles returns archived candles for (symbol, timeframe) with
// bucket start > afterStart, ordered by start ascending.
func (s *Store) ReadCandles(ctx context.Context, symbol, timeframe string, afterStart time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts_start, ts_end, open, high, low, close, volume, vwap, trade_count
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts_start > ?
		ORDER BY ts_start ASC
	`, symbol, timeframe, afterStart.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var start, end int64
		var volume, vwap sql.NullFloat64
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &start, &end,
			&c.Open, &c.High, &c.Low, &c.Close, &volume, &vwap, &c.TradeCount); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.Start = time.Unix(start, 0).UTC()
		c.End = time.Unix(end, 0).UTC()
		c.Volume = volume.Float64
		c.VWAP = vwap.Float64
		c.Final = true
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LastCandleStart returns the newest archived bucket start for
// (symbol, timeframe), or the zero time when none exist.
func (s *Store) LastCandleStart(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts_start) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
