package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func monotoneUptrend(n int, start, pctPerBar float64) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	price := start
	for i := 0; i < n; i++ {
		out[i] = decimal.NewFromFloat(price)
		price *= 1 + pctPerBar
	}
	return out
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// TestGlobalScoreBoundary covers spec.md §8 scenario 6.
func TestGlobalScoreBoundary(t *testing.T) {
	closes := monotoneUptrend(50, 100, 0.004)
	price := closes[len(closes)-1]
	target := price.Mul(decimal.NewFromFloat(1.10))
	stop := price.Mul(decimal.NewFromFloat(0.98))
	entry := price
	volPct := 0.85

	scorer := NewGlobalScorer(zap.NewNop())
	result, err := scorer.Score(ScoreInput{
		Symbol:           mustSymbol(t),
		Closes:           closes,
		Price:            price,
		Target:           ptr(target),
		Stop:             ptr(stop),
		Entry:            ptr(entry),
		VolumePercentile: &volPct,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OverallScore < 70 {
		t.Fatalf("overall score = %v, want >= 70", result.OverallScore)
	}
	if result.Recommendation != types.RecommendationBuy {
		t.Fatalf("recommendation = %v, want BUY", result.Recommendation)
	}
	if result.Confidence < 0.9 {
		t.Fatalf("confidence = %v, want >= 0.9", result.Confidence)
	}
}

func TestGlobalScoreAllFactorsAbsentIsZero(t *testing.T) {
	closes := make([]decimal.Decimal, 50)
	for i := range closes {
		closes[i] = decimal.NewFromInt(100)
	}
	scorer := NewGlobalScorer(zap.NewNop())
	result, err := scorer.Score(ScoreInput{
		Symbol: mustSymbol(t),
		Closes: closes,
		Price:  decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// RR, T1, SL, LIQ all require missing inputs => 0; NEAR defaults to 100
	// (weight .12); MOM/TEC are computable from closes alone.
	if result.OverallScore > 30 {
		t.Fatalf("overall score = %v, want a low score with most factors absent", result.OverallScore)
	}
}

func TestGlobalScoreInsufficientData(t *testing.T) {
	scorer := NewGlobalScorer(zap.NewNop())
	_, err := scorer.Score(ScoreInput{Closes: make([]decimal.Decimal, 10), Price: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatal("expected InsufficientData error")
	}
}

func TestRegimeDetectorRequiresMinimumBars(t *testing.T) {
	det := NewRegimeDetector(zap.NewNop(), DefaultRegimeConfig())
	sym := mustSymbol(t)
	now := time.Unix(0, 0)
	for i := 0; i < minRegimeBars-1; i++ {
		det.AddClose(sym, decimal.NewFromInt(100), now)
	}
	if det.Current(sym).Regime != RegimeUnknown {
		t.Fatal("expected Unknown regime before minRegimeBars closes")
	}
	det.AddClose(sym, decimal.NewFromInt(101), now)
	if det.Current(sym).Regime == RegimeUnknown {
		t.Fatal("expected a classified regime at minRegimeBars closes")
	}
}

func mustSymbol(t *testing.T) types.Symbol {
	t.Helper()
	sym, err := types.NewSymbol("005930", "KRW", types.MarketKrStock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sym
}
