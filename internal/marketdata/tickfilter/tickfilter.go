// Package tickfilter rejects anomalous tick prices before candle building.
//
// A sliding window of recently accepted prices yields a rolling median.
// A tick whose price deviates from the median by more than a configured
// percentage is treated as an outlier and dropped. If outliers keep
// arriving past a confirm count, the market has genuinely moved: the
// filter reanchors on the new level and accepts from there.
package tickfilter

import (
	"math"
	"sort"

	"tradecore/internal/model"
)

// Config configures a per-stream Filter.
type Config struct {
	// Window is the number of accepted prices used for the rolling
	// median. Defaults to 20.
	Window int

	// MaxDeviationPct is the fractional deviation from the rolling
	// median above which a tick is an outlier, e.g. 0.05 for 5%.
	// Zero disables anomaly rejection.
	MaxDeviationPct float64

	// ConfirmCount is how many consecutive outliers force a reanchor.
	// Defaults to 3.
	ConfirmCount int

	// ClampPct, when nonzero, clamps accepted prices into the band
	// [last*(1-p), last*(1+p)] around the last accepted price.
	ClampPct float64
}

// Filter holds the sliding window state for one stream. Not safe for
// concurrent use; each stream owns its own Filter.
type Filter struct {
	cfg    Config
	window []float64
	scratch []float64

	lastAccepted float64
	outlierRun   int

	dropped    uint64
	reanchored uint64
}

// New creates a Filter with defaults applied.
func New(cfg Config) *Filter {
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.ConfirmCount <= 0 {
		cfg.ConfirmCount = 3
	}
	return &Filter{
		cfg:     cfg,
		window:  make([]float64, 0, cfg.Window),
		scratch: make([]float64, 0, cfg.Window),
	}
}

// Dropped returns the count of ticks rejected as outliers.
func (f *Filter) Dropped() uint64 { return f.dropped }

// Reanchored returns how many times the filter reset onto a new level.
func (f *Filter) Reanchored() uint64 { return f.reanchored }

// Apply runs the tick through anomaly rejection and clamping. It returns
// the tick to forward (price possibly clamped) and whether it was
// accepted. A rejected tick leaves the window unchanged.
func (f *Filter) Apply(t model.Tick) (model.Tick, bool) {
	price := t.Price

	if f.cfg.MaxDeviationPct > 0 && len(f.window) > 0 {
		med := f.median()
		if math.Abs(price-med)/med > f.cfg.MaxDeviationPct {
			f.outlierRun++
			if f.outlierRun < f.cfg.ConfirmCount {
				f.dropped++
				return model.Tick{}, false
			}
			// Confirmed move: reanchor the window on the new level.
			f.window = f.window[:0]
			f.outlierRun = 0
			f.reanchored++
		} else {
			f.outlierRun = 0
		}
	}

	if f.cfg.ClampPct > 0 && f.lastAccepted > 0 {
		lo := f.lastAccepted * (1 - f.cfg.ClampPct)
		hi := f.lastAccepted * (1 + f.cfg.ClampPct)
		if price < lo {
			price = lo
		} else if price > hi {
			price = hi
		}
	}

	f.push(price)
	f.lastAccepted = price
	t.Price = price
	return t, true
}

func (f *Filter) push(price float64) {
	if len(f.window) == f.cfg.Window {
		copy(f.window, f.window[1:])
		f.window = f.window[:len(f.window)-1]
	}
	f.window = append(f.window, price)
}

func (f *Filter) median() float64 {
	f.scratch = append(f.scratch[:0], f.window...)
	sort.Float64s(f.scratch)
	n := len(f.scratch)
	if n%2 == 1 {
		return f.scratch[n/2]
	}
	return (f.scratch[n/2-1] + f.scratch[n/2]) / 2
}
