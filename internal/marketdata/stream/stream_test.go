package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/model"
)

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New(Config{URL: "http://example.com/ws"}); err == nil {
		t.Error("expected error for non-ws scheme")
	}
	if _, err := New(Config{URL: "://bogus"}); err == nil {
		t.Error("expected error for unparseable url")
	}
}

func TestNextDelay_FullJitterBounds(t *testing.T) {
	c, err := New(Config{URL: "ws://localhost:1/ws", BaseDelay: time.Second, MaxDelay: 8 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	// Attempt n draws uniformly from [0, min(cap, base*2^n)].
	ceilings := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 8 * time.Second, 8 * time.Second,
	}
	for i, ceil := range ceilings {
		d := c.nextDelay()
		if d < 0 || d > ceil {
			t.Errorf("attempt %d: delay %v outside [0, %v]", i, d, ceil)
		}
	}
}

func TestStart_StreamsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(model.Tick{Symbol: "AAPL", TS: time.Now().UTC(), Price: 185.42, Size: 100})
		conn.WriteJSON(model.Tick{Symbol: "MSFT", TS: time.Now().UTC(), Price: 402.1, Size: 5})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	var seen []time.Time
	c, err := New(Config{URL: wsURL})
	if err != nil {
		t.Fatal(err)
	}
	c.OnActivity = func(ts time.Time) { seen = append(seen, ts) }

	ctx, cancel := context.WithCancel(context.Background())
	tickCh := make(chan model.Tick, 8)
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, tickCh) }()

	var got []model.Tick
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case tk := <-tickCh:
			got = append(got, tk)
		case <-deadline:
			t.Fatalf("timed out, got %d ticks", len(got))
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}

	if got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" {
		t.Errorf("tick order = %s, %s", got[0].Symbol, got[1].Symbol)
	}
	if len(seen) != 2 {
		t.Errorf("activity marks = %d, want 2", len(seen))
	}
}

func TestStart_RetryWindowExceeded(t *testing.T) {
	// Nothing listens on this port; every dial fails.
	c, err := New(Config{
		URL:            "ws://127.0.0.1:1/ws",
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		MaxRetryWindow: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	reconnects := 0
	c.OnReconnect = func() { reconnects++ }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Start(ctx, make(chan model.Tick, 1))
	if err == nil {
		t.Fatal("expected retry window error")
	}
	if !errors.Is(err, ErrRetryWindowExceeded) {
		t.Errorf("error = %v, want ErrRetryWindowExceeded", err)
	}
	if reconnects == 0 {
		t.Error("expected at least one reconnect attempt")
	}
}
