// Package timeframe defines candle timeframes and their bucket alignment
// rules. Intraday timeframes (seconds, minutes, hours) floor in UTC;
// daily, weekly and monthly buckets align to the market timezone
// (America/New_York by default) and are converted back to UTC.
//
// A session-daily timeframe shifts the daily boundary to the 09:30 RTH
// open instead of local midnight.
package timeframe

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Unit is the base unit of a timeframe.
type Unit string

const (
	Second Unit = "s"
	Minute Unit = "m"
	Hour   Unit = "h"
	Day    Unit = "d"
	Week   Unit = "w"
	Month  Unit = "mo"
)

// allowedSteps enumerates the valid step counts per unit.
var allowedSteps = map[Unit][]int{
	Second: {1, 5, 10, 15, 30},
	Minute: {1, 2, 3, 5, 15, 30},
	Hour:   {1, 2, 4},
	Day:    {1},
	Week:   {1},
	Month:  {1},
}

// sessionOpen is the RTH open used by session-daily buckets.
const (
	sessionOpenHour   = 9
	sessionOpenMinute = 30
)

// market is the timezone used to align daily and coarser buckets.
var market *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata is linked in; this only happens on a broken build.
		panic(fmt.Sprintf("timeframe: load market timezone: %v", err))
	}
	market = loc
}

// MarketLocation returns the market timezone used for d/w/mo alignment.
func MarketLocation() *time.Location { return market }

// Timeframe is a (unit, step) pair, e.g. 5m or 1d. SessionDaily applies
// only to daily timeframes and moves the bucket boundary to 09:30 local.
type Timeframe struct {
	Unit         Unit
	Step         int
	SessionDaily bool
}

// Parse parses a canonical timeframe string: "30s", "5m", "1h", "1d",
// "1w", "1mo", or "1d_session" for session-aligned daily buckets.
func Parse(s string) (Timeframe, error) {
	raw := strings.TrimSpace(s)
	session := false
	if strings.HasSuffix(raw, "_session") {
		session = true
		raw = strings.TrimSuffix(raw, "_session")
	}

	i := 0
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i == 0 || i == len(raw) {
		return Timeframe{}, fmt.Errorf("timeframe: malformed %q", s)
	}
	step, err := strconv.Atoi(raw[:i])
	if err != nil {
		return Timeframe{}, fmt.Errorf("timeframe: bad step in %q: %w", s, err)
	}
	unit := Unit(raw[i:])

	steps, ok := allowedSteps[unit]
	if !ok {
		return Timeframe{}, fmt.Errorf("timeframe: unknown unit in %q", s)
	}
	valid := false
	for _, st := range steps {
		if st == step {
			valid = true
			break
		}
	}
	if !valid {
		return Timeframe{}, fmt.Errorf("timeframe: step %d not allowed for unit %q", step, unit)
	}
	if session && unit != Day {
		return Timeframe{}, fmt.Errorf("timeframe: _session only valid for daily, got %q", s)
	}
	return Timeframe{Unit: unit, Step: step, SessionDaily: session}, nil
}

// MustParse is Parse that panics; for static configuration and tests.
func MustParse(s string) Timeframe {
	tf, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return tf
}

// String returns the canonical representation.
func (tf Timeframe) String() string {
	s := strconv.Itoa(tf.Step) + string(tf.Unit)
	if tf.SessionDaily {
		s += "_session"
	}
	return s
}

// Intraday reports whether the timeframe floors in UTC (s/m/h).
func (tf Timeframe) Intraday() bool {
	return tf.Unit == Second || tf.Unit == Minute || tf.Unit == Hour
}

// Seconds returns the bucket width in seconds for intraday timeframes.
func (tf Timeframe) Seconds() int64 {
	switch tf.Unit {
	case Second:
		return int64(tf.Step)
	case Minute:
		return int64(tf.Step) * 60
	case Hour:
		return int64(tf.Step) * 3600
	}
	return 0
}

// BucketStart returns the UTC start of the bucket containing ts.
func (tf Timeframe) BucketStart(ts time.Time) time.Time {
	ts = ts.UTC()
	if tf.Intraday() {
		sec := tf.Seconds()
		epoch := ts.Unix()
		return time.Unix(epoch-epoch%sec, 0).UTC()
	}

	local := ts.In(market)
	switch tf.Unit {
	case Day:
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, market)
		if tf.SessionDaily {
			start = time.Date(local.Year(), local.Month(), local.Day(),
				sessionOpenHour, sessionOpenMinute, 0, 0, market)
			if local.Before(start) {
				start = start.AddDate(0, 0, -1)
			}
		}
		return start.UTC()
	case Week:
		// Weeks start Monday 00:00 market time.
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, market)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset).UTC()
	case Month:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, market).UTC()
	}
	return ts
}

// BucketEnd returns the UTC end of the bucket starting at start, so the
// bucket interval is [start, end).
func (tf Timeframe) BucketEnd(start time.Time) time.Time {
	if tf.Intraday() {
		return start.Add(time.Duration(tf.Seconds()) * time.Second)
	}
	local := start.In(market)
	switch tf.Unit {
	case Day:
		return local.AddDate(0, 0, tf.Step).UTC()
	case Week:
		return local.AddDate(0, 0, 7*tf.Step).UTC()
	case Month:
		return local.AddDate(0, tf.Step, 0).UTC()
	}
	return start
}

// ParseList parses a comma-separated list of timeframes, skipping blanks.
func ParseList(s string) ([]Timeframe, error) {
	var tfs []Timeframe
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tf, err := Parse(part)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	return tfs, nil
}
