package indicator

import (
	"fmt"

	"tradecore/internal/model"
)

// SMA is a simple moving average over a rolling window of closes.
// Uses a preallocated circular buffer for a zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates an SMA with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA_%d", s.period) }

func (s *SMA) Update(candle model.Candle) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = candle.Close
	s.sum += candle.Close
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }
