// Package stream provides the WebSocket tick feed client for the ingest
// pipeline. Messages on the wire are JSON in the model.Tick format:
//
//	{"symbol":"AAPL","ts_utc":"2026-03-09T14:30:00Z","price":185.42,"size":100}
//
// The read loop pushes into a lock-free ring so a slow downstream never
// stalls the socket; a separate drain goroutine feeds ticks to the
// consumer channel in order.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/model"
	"tradecore/internal/ringbuf"
)

// ErrRetryWindowExceeded is returned when reconnection attempts have
// failed continuously for longer than Config.MaxRetryWindow. The
// supervisor treats it as fatal.
var ErrRetryWindowExceeded = errors.New("stream: retry window exceeded")

// Config holds configuration for the stream client.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws".
	URL string

	// BaseDelay is the backoff base. Defaults to 1s.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep. Defaults to 60s.
	MaxDelay time.Duration

	// MaxRetryWindow bounds how long the client keeps retrying without
	// receiving a single event. Defaults to 15 minutes.
	MaxRetryWindow time.Duration

	// ReadDeadline is the per-message read timeout. Defaults to 60s.
	ReadDeadline time.Duration

	// QueueSize is the tick ring capacity. Defaults to 4096.
	QueueSize int
}

func (c *Config) defaults() {
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxRetryWindow == 0 {
		c.MaxRetryWindow = 15 * time.Minute
	}
	if c.ReadDeadline == 0 {
		c.ReadDeadline = 60 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 4096
	}
}

// Client connects to the tick feed and pushes model.Tick values into the
// consumer channel, reconnecting with full-jitter exponential backoff.
type Client struct {
	cfg  Config
	ring *ringbuf.Ring
	rnd  *rand.Rand

	mu      sync.Mutex
	attempt int

	// Optional hooks, set before Start.
	OnReconnect func()          // each reconnection attempt
	OnActivity  func(time.Time) // each accepted tick, with its event time
	OnParseErr  func()
}

// New creates a Client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("stream: parse url %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("stream: unsupported scheme %q", u.Scheme)
	}
	return &Client{
		cfg:  cfg,
		ring: ringbuf.New(cfg.QueueSize),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// QueueDropped returns the count of ticks dropped by the bounded queue.
func (c *Client) QueueDropped() uint64 { return c.ring.Dropped() }

// Start connects and streams ticks into tickCh until ctx is cancelled.
// Returns nil on clean shutdown, ErrRetryWindowExceeded when the feed
// stays down past the retry window.
func (c *Client) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		c.drain(ctx, tickCh)
	}()
	defer func() { <-drainDone }()

	var windowStart time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		gotEvent, err := c.runOnce(ctx)
		if err == nil {
			return nil
		}
		if gotEvent {
			// Healthy connection that later dropped: the outage clock
			// restarts from here.
			windowStart = time.Time{}
			c.mu.Lock()
			c.attempt = 0
			c.mu.Unlock()
		}
		if windowStart.IsZero() {
			windowStart = time.Now()
		}
		if time.Since(windowStart) > c.cfg.MaxRetryWindow {
			return fmt.Errorf("%w: no events for %s (last error: %v)",
				ErrRetryWindowExceeded, c.cfg.MaxRetryWindow, err)
		}

		delay := c.nextDelay()
		log.Printf("[stream] disconnected (%v), reconnecting in %s", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// nextDelay computes a full-jitter backoff: uniform in
// [0, min(cap, base*2^attempt)].
func (c *Client) nextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	ceil := float64(c.cfg.BaseDelay) * math.Pow(2, float64(c.attempt))
	if ceil > float64(c.cfg.MaxDelay) {
		ceil = float64(c.cfg.MaxDelay)
	}
	c.attempt++
	return time.Duration(c.rnd.Float64() * ceil)
}

// runOnce makes one connection attempt and reads until disconnect or ctx
// cancel. Reports whether at least one event arrived on this connection.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[stream] connected to %s", c.cfg.URL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	gotEvent := false
	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return gotEvent, nil
			default:
			}
			return gotEvent, err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[stream] parse error: %v (raw: %s)", err, raw)
			if c.OnParseErr != nil {
				c.OnParseErr()
			}
			continue
		}
		if err := tick.Validate(); err != nil {
			log.Printf("[stream] invalid tick: %v", err)
			if c.OnParseErr != nil {
				c.OnParseErr()
			}
			continue
		}

		if !gotEvent {
			// First event post-connect resets the backoff schedule.
			gotEvent = true
			c.mu.Lock()
			c.attempt = 0
			c.mu.Unlock()
		}

		if c.OnActivity != nil {
			c.OnActivity(tick.TS)
		}
		if !c.ring.Push(tick) {
			log.Printf("[stream] queue full, dropping tick %s", tick.Symbol)
		}
	}
}

// drain moves ticks from the ring to tickCh in order, blocking on the
// channel so aggregation stays synchronous with respect to the stream.
func (c *Client) drain(ctx context.Context, tickCh chan<- model.Tick) {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()

	for {
		tick, ok := c.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		select {
		case tickCh <- tick:
		case <-ctx.Done():
			return
		}
	}
}
