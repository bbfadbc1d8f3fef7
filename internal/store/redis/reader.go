package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradecore/internal/model"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads heartbeats, safety state, the VIX cache and candle
// pub/sub channels.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

func marshalSafetyState(state model.SafetyState) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("redis: marshal safety state: %w", err)
	}
	return string(b), nil
}

// ReadHeartbeat returns the last heartbeat of a service, with its
// derived status. A missing or expired key reports HeartbeatDown.
func (r *Reader) ReadHeartbeat(ctx context.Context, serviceID string, staleAfter time.Duration) (model.HeartbeatInfo, error) {
	info := model.HeartbeatInfo{ServiceID: serviceID, Status: model.HeartbeatDown, IsStale: true}

	val, err := r.client.Get(ctx, heartbeatPrefix+serviceID).Result()
	if err != nil {
		if err == goredis.Nil {
			return info, nil
		}
		info.Status = model.HeartbeatUnknown
		return info, fmt.Errorf("redis get heartbeat %s: %w", serviceID, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		info.Status = model.HeartbeatUnknown
		return info, fmt.Errorf("redis parse heartbeat %s: %w", serviceID, err)
	}

	info.LastHeartbeat = &ts
	info.SecondsSince = time.Since(ts).Seconds()
	info.IsStale = time.Since(ts) > staleAfter
	if info.IsStale {
		info.Status = model.HeartbeatDegraded
	} else {
		info.Status = model.HeartbeatHealthy
	}
	return info, nil
}

// ReadSafetyState loads the published safety record. ok is false when
// the key is missing or expired; callers must treat that as unsafe.
func (r *Reader) ReadSafetyState(ctx context.Context) (model.SafetyState, bool, error) {
	var state model.SafetyState

	val, err := r.client.Get(ctx, keySafetyState).Result()
	if err != nil {
		if err == goredis.Nil {
			return state, false, nil
		}
		return state, false, fmt.Errorf("redis get safety state: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return state, false, fmt.Errorf("redis decode safety state: %w", err)
	}
	return state, true, nil
}

// VIX returns the cached volatility index level. It satisfies the
// risk engine's VIX source; a missing cache entry is an error so the
// VIX guard skips rather than guessing.
func (r *Reader) VIX(ctx context.Context) (float64, error) {
	val, err := r.client.Get(ctx, keyVIX).Result()
	if err != nil {
		if err == goredis.Nil {
			return 0, fmt.Errorf("redis: vix cache empty")
		}
		return 0, fmt.Errorf("redis get vix: %w", err)
	}
	level, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis parse vix %q: %w", val, err)
	}
	return level, nil
}

// ShadowMode reports whether a user's strategies are shadowed.
func (r *Reader) ShadowMode(ctx context.Context, userID string) (bool, error) {
	val, err := r.client.Get(ctx, shadowPrefix+userID).Result()
	if err != nil {
		if err == goredis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis get shadow mode: %w", err)
	}
	return val == "1", nil
}

// ReadLatestCandle returns the most recent final candle for a
// (symbol, timeframe), or ok=false when none is cached.
func (r *Reader) ReadLatestCandle(ctx context.Context, symbol, timeframe string) (model.Candle, bool, error) {
	var c model.Candle
	val, err := r.client.Get(ctx, "candle:"+timeframe+":latest:"+symbol).Result()
	if err != nil {
		if err == goredis.Nil {
			return c, false, nil
		}
		return c, false, fmt.Errorf("redis get latest candle: %w", err)
	}
	c, err = model.ParseCandle([]byte(val))
	if err != nil {
		return c, false, fmt.Errorf("redis decode latest candle: %w", err)
	}
	return c, true, nil
}

// SubscribeCandles feeds final candles published on pub:candle:* into
// out. Blocks until ctx is cancelled. Slow consumers drop instead of
// stalling the subscription.
func (r *Reader) SubscribeCandles(ctx context.Context, out chan<- model.Candle) error {
	pubsub := r.client.PSubscribe(ctx, "pub:candle:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c, err := model.ParseCandle([]byte(msg.Payload))
			if err != nil {
				log.Printf("[redis-reader] bad candle payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- c:
			default:
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
