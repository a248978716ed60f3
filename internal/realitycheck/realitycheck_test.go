package realitycheck

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func snap(symbol string, close float64, source string, rank int, expectedReturn float64) Snapshot {
	return Snapshot{
		Symbol:            symbol,
		ClosePrice:        decimal.NewFromFloat(close),
		Volume:            1_000_000,
		RecommendSource:   source,
		RecommendRank:     rank,
		ExpectedReturnPct: decimal.NewFromFloat(expectedReturn),
	}
}

func TestCalculateRealityCheckComputesActualReturn(t *testing.T) {
	repo := NewMemoryRepository()
	day1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	if err := repo.SaveSnapshot(day1, snap("AAA", 100, "momentum", 1, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.SaveSnapshot(day2, snap("AAA", 110, "momentum", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := repo.CalculateRealityCheck(day1, day2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if !rec.ActualReturnPct.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("actual_return = %v, want 10", rec.ActualReturnPct)
	}
	if !rec.IsProfitable {
		t.Fatalf("is_profitable = false, want true for a 10%% gain")
	}
	// return_error = actual(10) - expected(5) = 5
	if !rec.ReturnError.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("return_error = %v, want 5", rec.ReturnError)
	}
}

func TestCalculateRealityCheckSkipsSymbolsMissingTheExitSnapshot(t *testing.T) {
	repo := NewMemoryRepository()
	day1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	if err := repo.SaveSnapshot(day1, snap("AAA", 100, "momentum", 1, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := repo.CalculateRealityCheck(day1, day2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0 when the symbol never re-appears on check_date", len(records))
	}
}

func TestDailyStatsAggregatesWinRateAndAverages(t *testing.T) {
	repo := NewMemoryRepository()
	day1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	for _, s := range []Snapshot{
		snap("AAA", 100, "momentum", 1, 0),
		snap("BBB", 100, "momentum", 2, 0),
	} {
		if err := repo.SaveSnapshot(day1, s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := repo.SaveSnapshot(day2, snap("AAA", 120, "momentum", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.SaveSnapshot(day2, snap("BBB", 90, "momentum", 2, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.CalculateRealityCheck(day1, day2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := repo.DailyStats(10)
	if len(stats) != 1 {
		t.Fatalf("got %d daily stat rows, want 1", len(stats))
	}
	day := stats[0]
	if day.TotalCount != 2 || day.WinCount != 1 {
		t.Fatalf("total=%d win=%d, want total=2 win=1 (one +20%%, one -10%%)", day.TotalCount, day.WinCount)
	}
	if !day.WinRatePct.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("win_rate = %v, want 50", day.WinRatePct)
	}
}

func TestSourceStatsSortsByAverageReturnDescending(t *testing.T) {
	repo := NewMemoryRepository()
	day1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	if err := repo.SaveSnapshot(day1, snap("AAA", 100, "momentum", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.SaveSnapshot(day1, snap("BBB", 100, "meanrev", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.SaveSnapshot(day2, snap("AAA", 105, "momentum", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.SaveSnapshot(day2, snap("BBB", 130, "meanrev", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.CalculateRealityCheck(day1, day2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sources := repo.SourceStats()
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].RecommendSource != "meanrev" {
		t.Fatalf("sources[0] = %+v, want meanrev first (higher average return)", sources[0])
	}
}

func TestRecentPerformanceFiltersBySourceAndWindow(t *testing.T) {
	repo := NewMemoryRepository()
	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	if err := repo.SaveSnapshot(day1, snap("AAA", 100, "momentum", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.SaveSnapshot(day2, snap("AAA", 110, "momentum", 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.CalculateRealityCheck(day1, day2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent := repo.RecentPerformance("momentum", 7, day2)
	if len(recent) != 1 {
		t.Fatalf("got %d records, want 1 within the 7-day window", len(recent))
	}
	if recent := repo.RecentPerformance("other-source", 7, day2); len(recent) != 0 {
		t.Fatalf("got %d records for an unrelated source, want 0", len(recent))
	}
}
