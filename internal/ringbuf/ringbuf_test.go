package ringbuf

import (
	"sync"
	"testing"
	"time"

	"tradecore/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4)

	t1 := model.Tick{Symbol: "AAPL", Price: 100}
	t2 := model.Tick{Symbol: "MSFT", Price: 200}

	if !r.Push(t1) {
		t.Fatal("push t1 should succeed")
	}
	if !r.Push(t2) {
		t.Fatal("push t2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "AAPL" {
		t.Fatalf("expected AAPL, got %v ok=%v", got.Symbol, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Symbol != "MSFT" {
		t.Fatalf("expected MSFT, got %v ok=%v", got.Symbol, ok)
	}

	if _, ok = r.Pop(); ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_FullBufferDrops(t *testing.T) {
	r := New(2)

	r.Push(model.Tick{Symbol: "A"})
	r.Push(model.Tick{Symbol: "B"})

	if r.Push(model.Tick{Symbol: "C"}) {
		t.Fatal("push to full buffer should return false")
	}
	if r.Dropped() != 1 {
		t.Fatalf("expected dropped=1, got %d", r.Dropped())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.Tick{Price: float64(round*10 + i)}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			tk, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if tk.Price != float64(round*10+i) {
				t.Fatalf("round %d pop %d: expected price=%d, got %v", round, i, round*10+i, tk.Price)
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.Tick{Price: float64(i)}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	received := make([]float64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			if tk, ok := r.Pop(); ok {
				received = append(received, tk.Price)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		if v != float64(i) {
			t.Fatalf("at index %d: expected %d, got %v", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		if got := nextPow2(tc.in); got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
