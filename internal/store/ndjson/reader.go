package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tradecore/internal/model"
)

func marshalTick(t model.Tick) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("ndjson: marshal tick: %w", err)
	}
	return b, nil
}

// ReadCandles loads one partition file: all candles for (tf, symbol)
// on the UTC day of date. A missing partition is an empty result, not
// an error.
func (s *Store) ReadCandles(tf, symbol string, date time.Time) ([]model.Candle, error) {
	f, err := os.Open(s.candlePath(tf, symbol, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ndjson: open candles: %w", err)
	}
	defer f.Close()

	var out []model.Candle
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		c, err := model.ParseCandle(sc.Bytes())
		if err != nil {
			return nil, fmt.Errorf("ndjson: parse candle line: %w", err)
		}
		out = append(out, c)
	}
	return out, sc.Err()
}

// ReadCandleRange loads candles for (tf, symbol) across the UTC days
// [from, to] inclusive, in day order.
func (s *Store) ReadCandleRange(tf, symbol string, from, to time.Time) ([]model.Candle, error) {
	var out []model.Candle
	day := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour)
	for !day.After(end) {
		cs, err := s.ReadCandles(tf, symbol, day)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

// ReadTicks loads the tick partition for (symbol, day of date).
func (s *Store) ReadTicks(symbol string, date time.Time) ([]model.Tick, error) {
	f, err := os.Open(s.tickPath(symbol, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ndjson: open ticks: %w", err)
	}
	defer f.Close()

	var out []model.Tick
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var t model.Tick
		if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
			return nil, fmt.Errorf("ndjson: parse tick line: %w", err)
		}
		out = append(out, t)
	}
	return out, sc.Err()
}

// ReadProposals loads the day's proposal file.
func (s *Store) ReadProposals(date time.Time) ([]model.OrderProposal, error) {
	f, err := os.Open(s.proposalPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ndjson: open proposals: %w", err)
	}
	defer f.Close()

	var out []model.OrderProposal
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var p model.OrderProposal
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			return nil, fmt.Errorf("ndjson: parse proposal line: %w", err)
		}
		out = append(out, p)
	}
	return out, sc.Err()
}
