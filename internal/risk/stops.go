package risk

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// StopLoss computes trigger = entry*(1-pct/100) for longs, mirrored for
// shorts. pct is a percentage (e.g. 5 means 5%).
func StopLoss(position types.Position, pct decimal.Decimal) types.StopOrder {
	one := decimal.NewFromInt(1)
	frac := pct.Div(hundred)

	var trigger decimal.Decimal
	side := types.OrderSideSell
	if position.Side == types.PositionSideShort {
		trigger = position.EntryPrice.Mul(one.Add(frac))
		side = types.OrderSideBuy
	} else {
		trigger = position.EntryPrice.Mul(one.Sub(frac))
	}

	return types.StopOrder{
		Kind:         types.StopKindStopLoss,
		TriggerPrice: trigger,
		Side:         side,
		Quantity:     position.Quantity,
	}
}

// TakeProfit computes trigger = entry*(1+pct/100) for longs, mirrored for
// shorts.
func TakeProfit(position types.Position, pct decimal.Decimal) types.StopOrder {
	one := decimal.NewFromInt(1)
	frac := pct.Div(hundred)

	var trigger decimal.Decimal
	side := types.OrderSideSell
	if position.Side == types.PositionSideShort {
		trigger = position.EntryPrice.Mul(one.Sub(frac))
		side = types.OrderSideBuy
	} else {
		trigger = position.EntryPrice.Mul(one.Add(frac))
	}

	return types.StopOrder{
		Kind:         types.StopKindTakeProfit,
		TriggerPrice: trigger,
		Side:         side,
		Quantity:     position.Quantity,
	}
}

// ATRStop computes trigger = entry - multiplier*atr for longs, mirrored for
// shorts.
func ATRStop(position types.Position, atr, multiplier decimal.Decimal) types.StopOrder {
	offset := multiplier.Mul(atr)

	var trigger decimal.Decimal
	side := types.OrderSideSell
	if position.Side == types.PositionSideShort {
		trigger = position.EntryPrice.Add(offset)
		side = types.OrderSideBuy
	} else {
		trigger = position.EntryPrice.Sub(offset)
	}

	return types.StopOrder{
		Kind:         types.StopKindStopLoss,
		TriggerPrice: trigger,
		Side:         side,
		Quantity:     position.Quantity,
	}
}

// Bracket returns a stop-loss and take-profit pair for the position.
func Bracket(position types.Position, slPct, tpPct decimal.Decimal) (stopLoss, takeProfit types.StopOrder) {
	return StopLoss(position, slPct), TakeProfit(position, tpPct)
}

// RiskRewardRatio = |tp - entry| / |entry - sl|. Returns zero if the stop
// distance is zero.
func RiskRewardRatio(entry, stopLoss, takeProfit decimal.Decimal) decimal.Decimal {
	slDistance := entry.Sub(stopLoss).Abs()
	if slDistance.IsZero() {
		return decimal.Zero
	}
	tpDistance := takeProfit.Sub(entry).Abs()
	return tpDistance.Div(slDistance)
}
