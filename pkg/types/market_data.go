package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline is an OHLCV bar for a Symbol at a Timeframe.
//
// Invariants: low <= min(open,close) <= max(open,close) <= high; volume >= 0;
// close_time >= open_time.
type Kline struct {
	Symbol    Symbol          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	OpenTime  time.Time       `json:"openTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime time.Time       `json:"closeTime"`
}

// Valid checks the Kline invariants from spec.md §3.
func (k Kline) Valid() bool {
	if k.Volume.IsNegative() {
		return false
	}
	if k.CloseTime.Before(k.OpenTime) {
		return false
	}
	lo := decimal.Min(k.Open, k.Close)
	hi := decimal.Max(k.Open, k.Close)
	return k.Low.LessThanOrEqual(lo) && hi.LessThanOrEqual(k.High)
}

// Ticker is a best-bid/ask + last-trade snapshot.
type Ticker struct {
	Symbol    Symbol          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume24h decimal.Decimal `json:"volume24h"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderBookLevel is a single price/quantity rung.
type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook is a depth snapshot.
type OrderBook struct {
	Symbol    Symbol           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Trade is a single executed trade print from the market (not our own fill).
type Trade struct {
	Symbol    Symbol          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      OrderSide       `json:"side"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarketDataKind tags which variant MarketData carries.
type MarketDataKind string

const (
	MarketDataKindKline     MarketDataKind = "kline"
	MarketDataKindTicker    MarketDataKind = "ticker"
	MarketDataKindTrade     MarketDataKind = "trade"
	MarketDataKindOrderBook MarketDataKind = "order_book"
)

// MarketData is a tagged variant over {Kline, Ticker, Trade, OrderBook} plus
// source metadata, matching spec.md §3. Exactly one of the payload fields is
// populated, selected by Kind.
type MarketData struct {
	Kind       MarketDataKind `json:"kind"`
	Exchange   string         `json:"exchange"`
	ReceivedAt time.Time      `json:"receivedAt"`

	KlineData     *Kline     `json:"klineData,omitempty"`
	TickerData    *Ticker    `json:"tickerData,omitempty"`
	TradeData     *Trade     `json:"tradeData,omitempty"`
	OrderBookData *OrderBook `json:"orderBookData,omitempty"`
}

// SymbolOf returns the symbol carried by whichever payload variant is set.
func (m MarketData) SymbolOf() Symbol {
	switch m.Kind {
	case MarketDataKindKline:
		if m.KlineData != nil {
			return m.KlineData.Symbol
		}
	case MarketDataKindTicker:
		if m.TickerData != nil {
			return m.TickerData.Symbol
		}
	case MarketDataKindTrade:
		if m.TradeData != nil {
			return m.TradeData.Symbol
		}
	case MarketDataKindOrderBook:
		if m.OrderBookData != nil {
			return m.OrderBookData.Symbol
		}
	}
	return Symbol{}
}

// NewKlineData wraps a Kline as a MarketData event.
func NewKlineData(k Kline, exchange string, receivedAt time.Time) MarketData {
	return MarketData{Kind: MarketDataKindKline, Exchange: exchange, ReceivedAt: receivedAt, KlineData: &k}
}

// NewTickerData wraps a Ticker as a MarketData event.
func NewTickerData(t Ticker, exchange string, receivedAt time.Time) MarketData {
	return MarketData{Kind: MarketDataKindTicker, Exchange: exchange, ReceivedAt: receivedAt, TickerData: &t}
}

// NewTradeData wraps a Trade as a MarketData event.
func NewTradeData(t Trade, exchange string, receivedAt time.Time) MarketData {
	return MarketData{Kind: MarketDataKindTrade, Exchange: exchange, ReceivedAt: receivedAt, TradeData: &t}
}

// NewOrderBookData wraps an OrderBook as a MarketData event.
func NewOrderBookData(ob OrderBook, exchange string, receivedAt time.Time) MarketData {
	return MarketData{Kind: MarketDataKindOrderBook, Exchange: exchange, ReceivedAt: receivedAt, OrderBookData: &ob}
}
