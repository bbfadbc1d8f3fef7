package perf

import "github.com/shopspring/decimal"

// DayClass buckets a trading day for win-rate statistics.
type DayClass string

const (
	DayWin  DayClass = "WIN"
	DayLoss DayClass = "LOSS"
	DayFlat DayClass = "FLAT"
)

var (
	flatFloor    = decimal.RequireFromString("0.01")
	flatFeeScale = decimal.RequireFromString("0.1")
)

// ClassifyDay labels a day by its realized net. Days whose net is
// within the flat band are noise, not conviction: the band scales with
// the fees paid that day (10% of fees, floored at one cent) so heavy
// trading days need a proportionally larger move to count as a win or
// loss.
func ClassifyDay(net, fees decimal.Decimal) DayClass {
	band := fees.Mul(flatFeeScale)
	if band.LessThan(flatFloor) {
		band = flatFloor
	}
	switch {
	case net.GreaterThan(band):
		return DayWin
	case net.LessThan(band.Neg()):
		return DayLoss
	default:
		return DayFlat
	}
}
