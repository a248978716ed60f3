// Package realitycheck verifies how a day's strategy recommendations
// actually performed the following trading day: a price snapshot is saved
// at the close of the recommendation day, then diffed against the next
// close to produce a realized-return record (spec.md's External Interfaces
// "Reality check"). Grounded on original_source's reality_check.rs, with
// its Postgres-backed repository replaced by the Repository interface
// below (persistence internals are out of scope per spec.md §1).
package realitycheck

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// Snapshot is one symbol's closing price on a recommendation day, plus the
// metadata needed to later judge the recommendation.
type Snapshot struct {
	Date                time.Time
	Symbol              string
	ClosePrice          decimal.Decimal
	Volume              int64
	RecommendSource     string
	RecommendRank       int
	RecommendScore      decimal.Decimal
	ExpectedReturnPct   decimal.Decimal
	ExpectedHoldingDays int
	Market              string
	Sector              string
}

// Record is one completed reality check: a snapshot's entry day compared
// against its exit-day close.
type Record struct {
	CheckDate       time.Time
	RecommendDate   time.Time
	Symbol          string
	RecommendSource string
	RecommendRank   int
	RecommendScore  decimal.Decimal
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	ActualReturnPct decimal.Decimal
	IsProfitable    bool
	EntryVolume     int64
	ExitVolume      int64
	VolumeChangePct decimal.Decimal
	ExpectedReturn  decimal.Decimal
	ReturnError     decimal.Decimal // actual - expected
	Market          string
	Sector          string
}

// DailyStats summarizes every reality check resolved on a single day.
type DailyStats struct {
	CheckDate     time.Time
	TotalCount    int
	WinCount      int
	WinRatePct    decimal.Decimal
	AvgReturnPct  decimal.Decimal
	AvgWinPct     decimal.Decimal
	AvgLossPct    decimal.Decimal
	MaxReturnPct  decimal.Decimal
	MinReturnPct  decimal.Decimal
	ProfitFactor  decimal.Decimal
}

// SourceStats summarizes every reality check attributed to a single
// recommendation source (a strategy id, a screener name, ...).
type SourceStats struct {
	RecommendSource string
	TotalCount      int
	WinCount        int
	WinRatePct      decimal.Decimal
	AvgReturnPct    decimal.Decimal
}

// RankStats summarizes every reality check grouped by recommendation rank
// (rank 1 = the highest-conviction pick of the day).
type RankStats struct {
	RecommendRank int
	TotalCount    int
	WinRatePct    decimal.Decimal
	AvgReturnPct  decimal.Decimal
}

func dayKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func snapKey(date time.Time, symbol string) string {
	return fmt.Sprintf("%s|%s", dayKey(date).Format("20060102"), symbol)
}

// Repository stores recommendation snapshots and resolved reality checks.
// The live deployment keeps both in memory; spec.md §1 excludes a
// persistence backend from this component's scope.
type Repository interface {
	SaveSnapshot(date time.Time, s Snapshot) error
	SaveSnapshotsBatch(date time.Time, snapshots []Snapshot) (int, error)
	Snapshots(date time.Time) []Snapshot

	// CalculateRealityCheck resolves every snapshot saved on recommendDate
	// against the close recorded on checkDate, producing one Record per
	// symbol that has a snapshot on both days.
	CalculateRealityCheck(recommendDate, checkDate time.Time) ([]Record, error)

	RealityChecks(start, end time.Time, source string) []Record
	RecentPerformance(source string, days int, asOf time.Time) []Record

	DailyStats(limit int) []DailyStats
	SourceStats() []SourceStats
	RankStats() []RankStats
	SummaryStats(days int, asOf time.Time) DailyStats
}

// MemoryRepository is the in-memory Repository implementation.
type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot // snapKey -> snapshot
	records   []Record
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		snapshots: make(map[string]Snapshot),
	}
}

// SaveSnapshot upserts a single recommendation snapshot, matching the
// teacher source's ON CONFLICT (snapshot_date, symbol) DO UPDATE semantics.
func (r *MemoryRepository) SaveSnapshot(date time.Time, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Date = dayKey(date)
	r.snapshots[snapKey(date, s.Symbol)] = s
	return nil
}

// SaveSnapshotsBatch upserts many snapshots for one day, skipping (not
// aborting on) any individual failure — mirroring the teacher's per-row
// error handling inside a single transaction.
func (r *MemoryRepository) SaveSnapshotsBatch(date time.Time, snapshots []Snapshot) (int, error) {
	saved := 0
	for _, s := range snapshots {
		if err := r.SaveSnapshot(date, s); err == nil {
			saved++
		}
	}
	return saved, nil
}

// Snapshots returns every snapshot saved for a given day, ordered by
// recommendation rank ascending (unranked last), then score descending.
func (r *MemoryRepository) Snapshots(date time.Time) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	day := dayKey(date)
	var out []Snapshot
	for _, s := range r.snapshots {
		if s.Date.Equal(day) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecommendRank != out[j].RecommendRank {
			if out[i].RecommendRank == 0 {
				return false
			}
			if out[j].RecommendRank == 0 {
				return true
			}
			return out[i].RecommendRank < out[j].RecommendRank
		}
		return out[i].RecommendScore.GreaterThan(out[j].RecommendScore)
	})
	return out
}

// CalculateRealityCheck diffs recommendDate's snapshots against checkDate's
// close for the same symbols, producing one Record per match. The
// teacher's DB function additionally reports max_profit/max_drawdown/
// volatility computed from intraday price paths between the two dates;
// this repository only ever observes one close per day, so those three
// fields are not reproduced here (an open question resolved in DESIGN.md).
func (r *MemoryRepository) CalculateRealityCheck(recommendDate, checkDate time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recDay := dayKey(recommendDate)
	checkDay := dayKey(checkDate)

	var results []Record
	for _, entry := range r.snapshots {
		if !entry.Date.Equal(recDay) {
			continue
		}
		exit, ok := r.snapshots[snapKey(checkDay, entry.Symbol)]
		if !ok {
			continue
		}
		results = append(results, buildRecord(checkDay, recDay, entry, exit))
	}

	r.records = append(r.records, results...)
	return results, nil
}

func buildRecord(checkDay, recDay time.Time, entry, exit Snapshot) Record {
	actualReturn := utils.CalculatePercentageChange(entry.ClosePrice, exit.ClosePrice)
	volumeChange := utils.CalculatePercentageChange(decimal.NewFromInt(entry.Volume), decimal.NewFromInt(exit.Volume))
	return Record{
		CheckDate:       checkDay,
		RecommendDate:   recDay,
		Symbol:          entry.Symbol,
		RecommendSource: entry.RecommendSource,
		RecommendRank:   entry.RecommendRank,
		RecommendScore:  entry.RecommendScore,
		EntryPrice:      entry.ClosePrice,
		ExitPrice:       exit.ClosePrice,
		ActualReturnPct: actualReturn,
		IsProfitable:    actualReturn.IsPositive(),
		EntryVolume:     entry.Volume,
		ExitVolume:      exit.Volume,
		VolumeChangePct: volumeChange,
		ExpectedReturn:  entry.ExpectedReturnPct,
		ReturnError:     actualReturn.Sub(entry.ExpectedReturnPct),
		Market:          entry.Market,
		Sector:          entry.Sector,
	}
}

// RealityChecks returns resolved records in [start, end], optionally
// filtered by recommendation source, newest and best-performing first.
func (r *MemoryRepository) RealityChecks(start, end time.Time, source string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	startDay, endDay := dayKey(start), dayKey(end)
	var out []Record
	for _, rec := range r.records {
		if rec.CheckDate.Before(startDay) || rec.CheckDate.After(endDay) {
			continue
		}
		if source != "" && rec.RecommendSource != source {
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

// RecentPerformance returns one source's resolved records over the
// trailing window ending at asOf.
func (r *MemoryRepository) RecentPerformance(source string, days int, asOf time.Time) []Record {
	start := dayKey(asOf).AddDate(0, 0, -days)
	return r.RealityChecks(start, asOf, source)
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CheckDate.Equal(recs[j].CheckDate) {
			return recs[i].CheckDate.After(recs[j].CheckDate)
		}
		return recs[i].ActualReturnPct.GreaterThan(recs[j].ActualReturnPct)
	})
}

// DailyStats aggregates resolved records by check date, most recent first,
// capped at limit days.
func (r *MemoryRepository) DailyStats(limit int) []DailyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDay := make(map[time.Time][]Record)
	for _, rec := range r.records {
		byDay[rec.CheckDate] = append(byDay[rec.CheckDate], rec)
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	if limit > 0 && len(days) > limit {
		days = days[:limit]
	}

	out := make([]DailyStats, 0, len(days))
	for _, d := range days {
		out = append(out, summarize(d, byDay[d]))
	}
	return out
}

func summarize(day time.Time, recs []Record) DailyStats {
	stats := DailyStats{CheckDate: day, TotalCount: len(recs)}
	if len(recs) == 0 {
		return stats
	}

	sumReturn, sumWin, sumLoss := decimal.Zero, decimal.Zero, decimal.Zero
	winCount, lossCount := 0, 0
	maxReturn, minReturn := recs[0].ActualReturnPct, recs[0].ActualReturnPct
	returns := make([]decimal.Decimal, len(recs))

	for i, rec := range recs {
		returns[i] = rec.ActualReturnPct
		sumReturn = sumReturn.Add(rec.ActualReturnPct)
		if rec.IsProfitable {
			winCount++
			sumWin = sumWin.Add(rec.ActualReturnPct)
		} else {
			lossCount++
			sumLoss = sumLoss.Add(rec.ActualReturnPct)
		}
		if rec.ActualReturnPct.GreaterThan(maxReturn) {
			maxReturn = rec.ActualReturnPct
		}
		if rec.ActualReturnPct.LessThan(minReturn) {
			minReturn = rec.ActualReturnPct
		}
	}

	total := decimal.NewFromInt(int64(len(recs)))
	stats.WinCount = winCount
	stats.WinRatePct = utils.CalculateWinRate(returns).Mul(decimal.NewFromInt(100))
	stats.ProfitFactor = utils.CalculateProfitFactor(returns)
	stats.AvgReturnPct = sumReturn.Div(total)
	stats.MaxReturnPct = maxReturn
	stats.MinReturnPct = minReturn
	if winCount > 0 {
		stats.AvgWinPct = sumWin.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		stats.AvgLossPct = sumLoss.Div(decimal.NewFromInt(int64(lossCount)))
	}
	return stats
}

// SourceStats aggregates every resolved record by recommendation source,
// best average return first.
func (r *MemoryRepository) SourceStats() []SourceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bySource := make(map[string][]Record)
	for _, rec := range r.records {
		bySource[rec.RecommendSource] = append(bySource[rec.RecommendSource], rec)
	}

	out := make([]SourceStats, 0, len(bySource))
	for source, recs := range bySource {
		daily := summarize(time.Time{}, recs)
		out = append(out, SourceStats{
			RecommendSource: source,
			TotalCount:      daily.TotalCount,
			WinCount:        daily.WinCount,
			WinRatePct:      daily.WinRatePct,
			AvgReturnPct:    daily.AvgReturnPct,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgReturnPct.GreaterThan(out[j].AvgReturnPct) })
	return out
}

// RankStats aggregates every resolved record by recommendation rank,
// ascending by rank.
func (r *MemoryRepository) RankStats() []RankStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byRank := make(map[int][]Record)
	for _, rec := range r.records {
		byRank[rec.RecommendRank] = append(byRank[rec.RecommendRank], rec)
	}

	out := make([]RankStats, 0, len(byRank))
	for rank, recs := range byRank {
		daily := summarize(time.Time{}, recs)
		out = append(out, RankStats{
			RecommendRank: rank,
			TotalCount:    daily.TotalCount,
			WinRatePct:    daily.WinRatePct,
			AvgReturnPct:  daily.AvgReturnPct,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecommendRank < out[j].RecommendRank })
	return out
}

// SummaryStats aggregates every resolved record over the trailing window
// ending at asOf, regardless of source or rank.
func (r *MemoryRepository) SummaryStats(days int, asOf time.Time) DailyStats {
	r.mu.RLock()
	start := dayKey(asOf).AddDate(0, 0, -days)
	var recs []Record
	for _, rec := range r.records {
		if !rec.CheckDate.Before(start) && !rec.CheckDate.After(dayKey(asOf)) {
			recs = append(recs, rec)
		}
	}
	r.mu.RUnlock()

	stats := summarize(dayKey(asOf), recs)
	return stats
}
