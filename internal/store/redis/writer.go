// Package redis is the hot-path cache and pub/sub fabric: latest
// candles, service heartbeats, the safety state record, the VIX cache
// and the per-user shadow mode flag all live here with TTLs.
package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradecore/internal/model"
)

const (
	defaultLatestTTL = 30 * time.Minute
	vixTTL           = 5 * time.Minute

	// Stream trimming: ~3h of 1m candles plus buffer.
	candleStreamMaxLen = 200

	keyVIX          = "marketdata:vix"
	keySafetyState  = "safety:state"
	heartbeatPrefix = "heartbeat:"
	shadowPrefix    = "shadow_mode:"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes candles, heartbeats, safety state and risk flags.
type Writer struct {
	client *goredis.Client

	// OnWrite is an optional hook reporting candle write latency.
	OnWrite func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run drains final candles from candleCh into Redis until ctx is
// cancelled or the channel closes.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
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
			if err := w.writeCandle(ctx, candle); err != nil {
				log.Printf("[redis] candle pipeline error for %s: %v", candle.Key(), err)
			}
		}
	}
}

// writeCandle performs the pipelined SET latest + XADD + PUBLISH for
// one final candle.
func (w *Writer) writeCandle(ctx context.Context, candle model.Candle) error {
	latestKey := "candle:" + candle.Timeframe + ":latest:" + candle.Symbol
	streamKey := "candle:" + candle.Timeframe + ":" + candle.Symbol
	pubsubCh := "pub:candle:" + candle.Timeframe + ":" + candle.Symbol
	jsonData := string(candle.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: candleStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	start := time.Now()
	_, err := pipe.Exec(ctx)
	if err == nil && w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return err
}

// WriteHeartbeat records a service heartbeat with a TTL; a service
// that stops beating disappears instead of reporting forever-fresh.
func (w *Writer) WriteHeartbeat(ctx context.Context, serviceID string, ts time.Time, ttl time.Duration) error {
	return w.client.Set(ctx, heartbeatPrefix+serviceID, ts.UTC().Format(time.RFC3339Nano), ttl).Err()
}

// WriteSafetyState publishes the current safety evaluation with its
// own TTL, so consumers treat a vanished record as unsafe.
func (w *Writer) WriteSafetyState(ctx context.Context, state model.SafetyState) error {
	ttl := time.Duration(state.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	data, err := marshalSafetyState(state)
	if err != nil {
		return err
	}
	return w.client.Set(ctx, keySafetyState, data, ttl).Err()
}

// SetVIX caches the volatility index level for the risk engine.
func (w *Writer) SetVIX(ctx context.Context, level float64) error {
	return w.client.Set(ctx, keyVIX, strconv.FormatFloat(level, 'f', -1, 64), vixTTL).Err()
}

// SetShadowMode flips a user's strategies into (or out of) shadow
// mode. No TTL: shadow mode sticks until an operator clears it.
func (w *Writer) SetShadowMode(ctx context.Context, userID string, on bool) error {
	val := "0"
	if on {
		val = "1"
	}
	return w.client.Set(ctx, shadowPrefix+userID, val, 0).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
