package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// EquityPoint is one sample on the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
}

// EquityCurve accumulates equity samples and derives drawdown statistics.
// Not safe for concurrent use; callers in internal/execution serialize
// writes through the owning book.
type EquityCurve struct {
	points []EquityPoint
	peak   decimal.Decimal
}

// NewEquityCurve constructs an empty curve.
func NewEquityCurve() *EquityCurve {
	return &EquityCurve{}
}

// Record appends a new equity sample and tracks the running peak.
func (c *EquityCurve) Record(ts time.Time, equity decimal.Decimal) {
	c.points = append(c.points, EquityPoint{Timestamp: ts, Equity: equity})
	if equity.GreaterThan(c.peak) {
		c.peak = equity
	}
}

// Points returns the recorded samples in insertion order.
func (c *EquityCurve) Points() []EquityPoint {
	out := make([]EquityPoint, len(c.points))
	copy(out, c.points)
	return out
}

// CurrentDrawdown is (peak - last) / peak as a percentage; zero if no
// samples or the peak is zero.
func (c *EquityCurve) CurrentDrawdown() decimal.Decimal {
	if len(c.points) == 0 || !c.peak.IsPositive() {
		return decimal.Zero
	}
	last := c.points[len(c.points)-1].Equity
	if last.GreaterThanOrEqual(c.peak) {
		return decimal.Zero
	}
	return c.peak.Sub(last).Div(c.peak).Mul(decimal.NewFromInt(100))
}

// MaxDrawdown scans the full history for the largest peak-to-trough
// percentage decline.
func (c *EquityCurve) MaxDrawdown() decimal.Decimal {
	if len(c.points) == 0 {
		return decimal.Zero
	}
	equity := make([]decimal.Decimal, len(c.points))
	for i, p := range c.points {
		equity[i] = p.Equity
	}
	return utils.CalculateMaxDrawdown(equity).Mul(decimal.NewFromInt(100))
}
