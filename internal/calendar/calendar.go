// Package calendar tracks trading sessions and holidays for the KR, US,
// and crypto markets, grounded on the reference connector's KIS holiday
// checker (fetch-on-miss, cache keyed by year-month).
package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// HolidaySource fetches the holiday dates for a market's given year-month
// (e.g. "202603"). Real KR/US holiday calendars are an external data feed
// (spec.md §1 keeps persistence/data-collection internals out of scope);
// implementations live behind this interface so the calendar logic itself
// doesn't depend on a specific provider.
type HolidaySource interface {
	Holidays(ctx context.Context, market types.MarketType, yearMonth string) ([]time.Time, error)
}

// StaticHolidaySource serves a fixed holiday set, useful for tests and for
// markets (crypto) that never close.
type StaticHolidaySource struct {
	Dates map[types.MarketType][]time.Time
}

func (s StaticHolidaySource) Holidays(_ context.Context, market types.MarketType, yearMonth string) ([]time.Time, error) {
	var out []time.Time
	for _, d := range s.Dates[market] {
		if d.Format("200601") == yearMonth {
			out = append(out, d)
		}
	}
	return out, nil
}

type holidayCacheEntry struct {
	yearMonth string
	dates     map[string]bool // "20060102" -> holiday
}

// Calendar resolves market sessions and holidays, caching one fetch per
// (market, year-month) the way the reference KIS holiday checker does.
type Calendar struct {
	logger *zap.Logger
	source HolidaySource

	mu    sync.Mutex
	cache map[types.MarketType]*holidayCacheEntry
}

func New(logger *zap.Logger, source HolidaySource) *Calendar {
	return &Calendar{
		logger: logger.Named("calendar"),
		source: source,
		cache:  make(map[types.MarketType]*holidayCacheEntry),
	}
}

func krLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Seoul"); err == nil {
		return loc
	}
	return time.FixedZone("KST", 9*60*60)
}

func usLocation() *time.Location {
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		return loc
	}
	return time.FixedZone("EST", -5*60*60)
}

func locationFor(market types.MarketType) *time.Location {
	switch market {
	case types.MarketKrStock:
		return krLocation()
	case types.MarketUsStock:
		return usLocation()
	default:
		return time.UTC
	}
}

// IsHoliday reports whether date (interpreted in the market's local
// timezone) is a non-trading day: weekends always are; crypto never is;
// everything else is resolved through the cached HolidaySource.
func (c *Calendar) IsHoliday(ctx context.Context, market types.MarketType, date time.Time) (bool, error) {
	if market == types.MarketCrypto {
		return false, nil
	}
	loc := locationFor(market)
	local := date.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return true, nil
	}

	yearMonth := local.Format("200601")
	dateKey := local.Format("20060102")

	c.mu.Lock()
	entry, ok := c.cache[market]
	if ok && entry.yearMonth == yearMonth {
		holiday := entry.dates[dateKey]
		c.mu.Unlock()
		return holiday, nil
	}
	c.mu.Unlock()

	dates, err := c.source.Holidays(ctx, market, yearMonth)
	if err != nil {
		return false, fmt.Errorf("%w: fetching %s holidays for %s: %v", types.ErrAPIError, market, yearMonth, err)
	}
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d.In(loc).Format("20060102")] = true
	}

	c.mu.Lock()
	c.cache[market] = &holidayCacheEntry{yearMonth: yearMonth, dates: set}
	c.mu.Unlock()

	return set[dateKey], nil
}

// NextTradingDay returns the first non-holiday day after from, searching at
// most 30 days ahead (bounding a holiday run, e.g. Lunar New Year).
func (c *Calendar) NextTradingDay(ctx context.Context, market types.MarketType, from time.Time) (time.Time, error) {
	date := from.AddDate(0, 0, 1)
	for i := 0; i < 30; i++ {
		holiday, err := c.IsHoliday(ctx, market, date)
		if err != nil {
			return time.Time{}, err
		}
		if !holiday {
			return date, nil
		}
		date = date.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("%w: no trading day found for %s within 30 days of %s", types.ErrCalculationError, market, from.Format("2006-01-02"))
}

// sessionConfig is the market's regular/extended trading-hour boundaries in
// its own local timezone, expressed as minutes since midnight.
type sessionConfig struct {
	preOpenMin, openMin, closeMin, afterCloseMin int
	hasExtended                                  bool
}

func sessionFor(market types.MarketType) sessionConfig {
	switch market {
	case types.MarketKrStock:
		return sessionConfig{openMin: 9 * 60, closeMin: 15*60 + 30}
	case types.MarketUsStock:
		return sessionConfig{preOpenMin: 4 * 60, openMin: 9*60 + 30, closeMin: 16 * 60, afterCloseMin: 20 * 60, hasExtended: true}
	default:
		return sessionConfig{}
	}
}

// MarketStatus reports the current session phase for market at time now.
// Crypto markets are always open. includeExtended controls whether US
// pre-market/after-hours count as their own phase or simply closed.
func (c *Calendar) MarketStatus(ctx context.Context, market types.MarketType, now time.Time, includeExtended bool) (types.MarketStatus, error) {
	if market == types.MarketCrypto {
		return types.MarketStatusOpen, nil
	}

	holiday, err := c.IsHoliday(ctx, market, now)
	if err != nil {
		return "", err
	}
	if holiday {
		return types.MarketStatusClosed, nil
	}

	loc := locationFor(market)
	local := now.In(loc)
	minuteOfDay := local.Hour()*60 + local.Minute()
	sess := sessionFor(market)

	switch {
	case minuteOfDay >= sess.openMin && minuteOfDay < sess.closeMin:
		return types.MarketStatusOpen, nil
	case includeExtended && sess.hasExtended && minuteOfDay >= sess.preOpenMin && minuteOfDay < sess.openMin:
		return types.MarketStatusPreMarket, nil
	case includeExtended && sess.hasExtended && minuteOfDay >= sess.closeMin && minuteOfDay < sess.afterCloseMin:
		return types.MarketStatusAfterHours, nil
	default:
		return types.MarketStatusClosed, nil
	}
}
