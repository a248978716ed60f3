// Package portfolio tracks cost basis (FIFO lots), realized/unrealized PnL,
// and the equity curve used by the risk manager and the API layer.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// LotUsage records the slice of a lot consumed by a single sale.
type LotUsage struct {
	LotID         string
	QuantityUsed  decimal.Decimal
	PurchasePrice decimal.Decimal
	HoldingDays   int64
	PnL           decimal.Decimal
}

// SaleResult is the outcome of a FIFO sell.
type SaleResult struct {
	QuantitySold   decimal.Decimal
	SalePrice      decimal.Decimal
	Proceeds       decimal.Decimal
	CostBasis      decimal.Decimal
	RealizedPnL    decimal.Decimal
	RealizedPnLPct decimal.Decimal
	LotsUsed       []LotUsage
}

// Summary is a read-only snapshot of a tracker's current state.
type Summary struct {
	Symbol           types.Symbol
	TotalQuantity    decimal.Decimal
	AverageCost      decimal.Decimal
	AveragePrice     decimal.Decimal
	TotalCostBasis   decimal.Decimal
	MarketValue      *decimal.Decimal
	UnrealizedPnL    *decimal.Decimal
	UnrealizedPnLPct *decimal.Decimal
	TotalRealizedPnL decimal.Decimal
	TotalSales       int
	TotalFees        decimal.Decimal
	LotCount         int
}

// CostBasisTracker accounts for a single symbol's FIFO lot queue (spec.md
// §4.5). It is not safe for concurrent use by itself — portfolio.Book
// serializes access under its own mutex.
type CostBasisTracker struct {
	symbol types.Symbol
	lots   []*types.Lot

	totalRealizedPnL decimal.Decimal
	totalSales       int
	totalFees        decimal.Decimal
}

// NewCostBasisTracker constructs an empty tracker for a symbol.
func NewCostBasisTracker(symbol types.Symbol) *CostBasisTracker {
	return &CostBasisTracker{symbol: symbol}
}

// AddLot appends a new buy lot to the FIFO queue and folds its fee into the
// running total.
func (t *CostBasisTracker) AddLot(lot types.Lot) {
	if lot.OriginalQuantity.IsZero() {
		lot.OriginalQuantity = lot.Quantity
	}
	t.totalFees = t.totalFees.Add(lot.Fee)
	l := lot
	t.lots = append(t.lots, &l)
}

// Buy is a convenience wrapper that constructs and appends a Lot.
func (t *CostBasisTracker) Buy(id string, quantity, price, fee decimal.Decimal, acquiredAt time.Time, executionID string) {
	t.AddLot(types.Lot{
		ID:               id,
		Quantity:         quantity,
		OriginalQuantity: quantity,
		Price:            price,
		Fee:              fee,
		AcquiredAt:       acquiredAt,
		ExecutionID:      executionID,
	})
}

// Sell consumes lots FIFO for a sale of quantity at sale_price, returning an
// error if quantity exceeds total_quantity (spec.md §4.5).
func (t *CostBasisTracker) Sell(quantity, salePrice, saleFee decimal.Decimal, soldAt time.Time) (*SaleResult, error) {
	current := t.TotalQuantity()
	if quantity.GreaterThan(current) {
		return nil, fmt.Errorf("%w: requested %s, held %s", types.ErrValidation, quantity, current)
	}

	remaining := quantity
	costBasis := decimal.Zero
	var lotsUsed []LotUsage

	for remaining.IsPositive() {
		if len(t.lots) == 0 {
			return nil, fmt.Errorf("%w: no lots remaining", types.ErrCalculationError)
		}
		lot := t.lots[0]

		used := decimal.Min(remaining, lot.Quantity)
		lotCost := used.Mul(lot.Price)

		feePortion := decimal.Zero
		if lot.OriginalQuantity.IsPositive() {
			feePortion = lot.Fee.Mul(used.Div(lot.OriginalQuantity))
		}

		costBasis = costBasis.Add(lotCost).Add(feePortion)

		holdingDays := int64(soldAt.Sub(lot.AcquiredAt).Hours() / 24)
		pnl := used.Mul(salePrice.Sub(lot.Price)).Sub(feePortion)

		lotsUsed = append(lotsUsed, LotUsage{
			LotID:         lot.ID,
			QuantityUsed:  used,
			PurchasePrice: lot.Price,
			HoldingDays:   holdingDays,
			PnL:           pnl,
		})

		lot.Quantity = lot.Quantity.Sub(used)
		remaining = remaining.Sub(used)

		if !lot.Quantity.IsPositive() {
			t.lots = t.lots[1:]
		}
	}

	proceeds := quantity.Mul(salePrice).Sub(saleFee)
	realizedPnL := proceeds.Sub(costBasis)
	realizedPnLPct := decimal.Zero
	if costBasis.IsPositive() {
		realizedPnLPct = realizedPnL.Div(costBasis).Mul(decimal.NewFromInt(100))
	}

	t.totalRealizedPnL = t.totalRealizedPnL.Add(realizedPnL)
	t.totalSales++
	t.totalFees = t.totalFees.Add(saleFee)

	return &SaleResult{
		QuantitySold:   quantity,
		SalePrice:      salePrice,
		Proceeds:       proceeds,
		CostBasis:      costBasis,
		RealizedPnL:    realizedPnL,
		RealizedPnLPct: realizedPnLPct,
		LotsUsed:       lotsUsed,
	}, nil
}

// TotalQuantity sums the remaining quantity across all lots.
func (t *CostBasisTracker) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.lots {
		total = total.Add(l.Quantity)
	}
	return total
}

func (t *CostBasisTracker) totalCostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.lots {
		total = total.Add(l.Quantity.Mul(l.Price)).Add(l.Fee)
	}
	return total
}

// AverageCost is total_cost_basis / total_quantity (includes fees).
func (t *CostBasisTracker) AverageCost() decimal.Decimal {
	qty := t.TotalQuantity()
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return t.totalCostBasis().Div(qty)
}

// AveragePrice excludes fees.
func (t *CostBasisTracker) AveragePrice() decimal.Decimal {
	qty := t.TotalQuantity()
	if !qty.IsPositive() {
		return decimal.Zero
	}
	value := decimal.Zero
	for _, l := range t.lots {
		value = value.Add(l.Quantity.Mul(l.Price))
	}
	return value.Div(qty)
}

// UnrealizedPnL = market_value - total_cost_basis at the given price.
func (t *CostBasisTracker) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	marketValue := t.TotalQuantity().Mul(currentPrice)
	return marketValue.Sub(t.totalCostBasis())
}

// AverageHoldingDays is the quantity-weighted average age of open lots, in
// days, as of `asOf`.
func (t *CostBasisTracker) AverageHoldingDays(asOf time.Time) float64 {
	qty := t.TotalQuantity()
	if !qty.IsPositive() {
		return 0
	}
	weighted := decimal.Zero
	for _, l := range t.lots {
		days := decimal.NewFromInt(int64(asOf.Sub(l.AcquiredAt).Hours() / 24))
		weighted = weighted.Add(l.Quantity.Mul(days))
	}
	f, _ := weighted.Div(qty).Float64()
	return f
}

// LotCount is the number of open lots.
func (t *CostBasisTracker) LotCount() int { return len(t.lots) }

// Summary snapshots the tracker's current state; currentPrice is optional
// (nil skips market-value fields).
func (t *CostBasisTracker) Summary(currentPrice *decimal.Decimal) Summary {
	s := Summary{
		Symbol:           t.symbol,
		TotalQuantity:    t.TotalQuantity(),
		AverageCost:      t.AverageCost(),
		AveragePrice:     t.AveragePrice(),
		TotalCostBasis:   t.totalCostBasis(),
		TotalRealizedPnL: t.totalRealizedPnL,
		TotalSales:       t.totalSales,
		TotalFees:        t.totalFees,
		LotCount:         len(t.lots),
	}
	if currentPrice != nil {
		mv := t.TotalQuantity().Mul(*currentPrice)
		upnl := mv.Sub(t.totalCostBasis())
		s.MarketValue = &mv
		s.UnrealizedPnL = &upnl
		if t.totalCostBasis().IsPositive() {
			pct := upnl.Div(t.totalCostBasis()).Mul(decimal.NewFromInt(100))
			s.UnrealizedPnLPct = &pct
		}
	}
	return s
}

// Clear empties the lot queue (full exit).
func (t *CostBasisTracker) Clear() { t.lots = nil }

// TimedExecution pairs an ExecutionReport with the side it settles, the
// minimal shape BuildTrackerFromExecutions needs for reconstruction.
type TimedExecution struct {
	Report types.ExecutionReport
	Side   types.OrderSide
}

// BuildTrackerFromExecutions reconstructs a tracker from an execution list
// (sorted by timestamp before replay), silently skipping over-sells that
// would violate the sell precondition (spec.md §4.5 "partial-data scenario").
func BuildTrackerFromExecutions(logger *zap.Logger, symbol types.Symbol, executions []TimedExecution) *CostBasisTracker {
	sorted := make([]TimedExecution, len(executions))
	copy(sorted, executions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Report.Timestamp.Before(sorted[j].Report.Timestamp)
	})

	tracker := NewCostBasisTracker(symbol)
	for _, te := range sorted {
		exec := te.Report
		if te.Side == types.OrderSideBuy {
			tracker.Buy(exec.ExecutionID, exec.Quantity, exec.Price, exec.Fee, exec.Timestamp, exec.ExecutionID)
			continue
		}
		if _, err := tracker.Sell(exec.Quantity, exec.Price, exec.Fee, exec.Timestamp); err != nil {
			logger.Warn("skipping over-sell during reconstruction",
				zap.String("symbol", symbol.String()),
				zap.Error(err))
		}
	}

	return tracker
}
