// Package currency converts monetary amounts to the base currency using
// day-granularity exchange rate snapshots.
//
// A lookup for (currency, date) resolves in this order:
//
//  1. the base currency converts at 1.0 without I/O;
//  2. the snapshot stored for date;
//  3. for today only, a fresh fetch from the rate source, persisted as today's snapshot;
//  4. the nearest snapshot within the search window, past before future at equal distance;
//  5. the neutral rate 1.0.
//
// Normalization never fails; rate source and store errors only degrade the source of the rate.
package currency

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/metrics"
	"github.com/fuelsync/fuelsync/internal/model"
)

// Defaults.
const (
	DefaultBase         = "USD"
	DefaultWindowDays   = 30
	FallbackRate        = 1.0
	amountDecimalPlaces = 2

	fetchTimeout = 10 * time.Second
)

var errNoSource = errors.New("no rate source configured")

// Source tells how a rate was resolved.
type Source string

const (
	SourceBase     Source = "base"
	SourceSnapshot Source = "snapshot"
	SourceFetched  Source = "fetched"
	SourceNearest  Source = "nearest"
	SourceFallback Source = "fallback"
)

// RateSource returns today's exchange rates relative to base.
type RateSource interface {
	FetchTodayRates(ctx context.Context, base string) (map[string]float64, error)
}

// SnapshotStore persists rate snapshots.
// GetSnapshot returns a nil snapshot and a nil error when none exists for the date.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, date string) (*model.RateSnapshot, error)
	PutSnapshot(ctx context.Context, snapshot *model.RateSnapshot) error
}

// Quote is a resolved exchange rate.
type Quote struct {
	Currency string  `json:"currency"`
	Date     string  `json:"date"`
	Rate     float64 `json:"rate"`
	Source   Source  `json:"source"`
	// RateDate is the snapshot date the rate was taken from.
	RateDate string `json:"rateDate,omitempty"`
}

// Conversion is an amount together with its base-currency equivalent.
type Conversion struct {
	Quote
	Amount     float64 `json:"amount"`
	BaseAmount float64 `json:"baseAmount"`
}

// Money returns the conversion in the form stored on records.
func (c Conversion) Money() model.Money {
	return model.Money{
		Currency:     c.Currency,
		ExchangeRate: c.Rate,
		BaseAmount:   c.BaseAmount,
		RateDate:     c.RateDate,
	}
}

// Options configures a Normalizer.
type Options struct {
	Base       string
	WindowDays int
	Now        func() time.Time
	Logger     *slog.Logger
	Metrics    metrics.Recorder
}

// Normalizer resolves exchange rates and converts amounts.
type Normalizer struct {
	snapshots SnapshotStore
	source    RateSource
	base      string
	window    int
	now       func() time.Time
	logger    *slog.Logger
	metrics   metrics.Recorder
	flight    singleflight.Group
}

// New creates a Normalizer. source may be nil, in which case today's rates are never fetched.
func New(snapshots SnapshotStore, source RateSource, opts Options) *Normalizer {
	if opts.Base == "" {
		opts.Base = DefaultBase
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Normalizer{
		snapshots: snapshots,
		source:    source,
		base:      NormalizeCode(opts.Base),
		window:    opts.WindowDays,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "currency"),
		metrics:   metrics.OrNoop(opts.Metrics),
	}
}

// Base returns the base currency code.
func (n *Normalizer) Base() string {
	return n.base
}

// Rate resolves a single rate in its own session.
func (n *Normalizer) Rate(ctx context.Context, currency string, date time.Time) Quote {
	return n.NewSession().Rate(ctx, currency, date)
}

// Normalize converts a single amount in its own session.
func (n *Normalizer) Normalize(ctx context.Context, amount float64, currency string, date time.Time) Conversion {
	return n.NewSession().Normalize(ctx, amount, currency, date)
}

// NewSession returns a lookup scope that memoizes snapshot reads.
// Use one session per request or batch.
func (n *Normalizer) NewSession() *Session {
	return &Session{n: n, memo: make(map[string]*model.RateSnapshot)}
}

// Session memoizes snapshot reads, including absences, for its lifetime.
type Session struct {
	n *Normalizer

	mu   sync.Mutex
	memo map[string]*model.RateSnapshot
}

// Normalize converts amount to the base currency as of date.
func (s *Session) Normalize(ctx context.Context, amount float64, currency string, date time.Time) Conversion {
	q := s.Rate(ctx, currency, date)
	return Conversion{
		Quote:      q,
		Amount:     amount,
		BaseAmount: ToBase(amount, q.Rate),
	}
}

// Rate resolves the rate of currency against the base currency as of date.
func (s *Session) Rate(ctx context.Context, currency string, date time.Time) Quote {
	q := s.resolve(ctx, NormalizeCode(currency), keys.FormatDate(date))
	s.n.metrics.IncRateLookup(string(q.Source))
	return q
}

func (s *Session) resolve(ctx context.Context, currency, day string) Quote {
	q := Quote{Currency: currency, Date: day}
	if currency == "" || currency == s.n.base {
		q.Currency = s.n.base
		q.Rate, q.Source = 1.0, SourceBase
		return q
	}

	if rate, ok := s.snapshot(ctx, day).Rate(currency); ok {
		q.Rate, q.Source, q.RateDate = rate, SourceSnapshot, day
		return q
	}

	if day == keys.FormatDate(s.n.now()) {
		if snap, err := s.fetchToday(ctx, day); err != nil {
			s.n.logger.Warn("rate_fetch_failed", "date", day, "error", err)
		} else if rate, ok := snap.Rate(currency); ok {
			q.Rate, q.Source, q.RateDate = rate, SourceFetched, day
			return q
		}
	}

	if rate, found, ok := s.nearest(ctx, currency, day); ok {
		q.Rate, q.Source, q.RateDate = rate, SourceNearest, found
		return q
	}

	s.n.logger.Info("rate_fallback", "currency", currency, "date", day, "window_days", s.n.window)
	q.Rate, q.Source = FallbackRate, SourceFallback
	return q
}

// nearest probes day-1, day+1, day-2, day+2, ... up to the window.
func (s *Session) nearest(ctx context.Context, currency, day string) (float64, string, bool) {
	origin, err := time.Parse(keys.DateLayout, day)
	if err != nil {
		return 0, "", false
	}
	for offset := 1; offset <= s.n.window; offset++ {
		for _, candidate := range []time.Time{origin.AddDate(0, 0, -offset), origin.AddDate(0, 0, offset)} {
			if ctx.Err() != nil {
				return 0, "", false
			}
			date := keys.FormatDate(candidate)
			if rate, ok := s.snapshot(ctx, date).Rate(currency); ok {
				return rate, date, true
			}
		}
	}
	return 0, "", false
}

// snapshot reads a snapshot through the session memo. Store errors count as a miss
// and are not memoized.
func (s *Session) snapshot(ctx context.Context, date string) *model.RateSnapshot {
	s.mu.Lock()
	snap, ok := s.memo[date]
	s.mu.Unlock()
	if ok {
		return snap
	}

	snap, err := s.n.snapshots.GetSnapshot(ctx, date)
	if err != nil {
		s.n.logger.Warn("rate_snapshot_read_failed", "date", date, "error", err)
		return nil
	}

	s.remember(date, snap)
	return snap
}

func (s *Session) remember(date string, snap *model.RateSnapshot) {
	s.mu.Lock()
	s.memo[date] = snap
	s.mu.Unlock()
}

// fetchToday fetches and persists today's snapshot. Concurrent callers for the
// same day share one fetch, which outlives the cancellation of whichever
// caller started it but is bounded by fetchTimeout.
func (s *Session) fetchToday(ctx context.Context, day string) (*model.RateSnapshot, error) {
	if s.n.source == nil {
		return nil, errNoSource
	}

	ch := s.n.flight.DoChan(day, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		start := time.Now()
		rates, err := s.n.source.FetchTodayRates(ctx, s.n.base)
		s.n.metrics.ObserveRateFetchDuration(time.Since(start))
		if err != nil {
			s.n.metrics.IncRateFetch("failure")
			return nil, err
		}
		s.n.metrics.IncRateFetch("success")

		snap := &model.RateSnapshot{
			Date:        day,
			Base:        s.n.base,
			Rates:       maps.Clone(rates),
			LastUpdated: s.n.now().UTC(),
		}
		if err := s.n.snapshots.PutSnapshot(ctx, snap); err != nil {
			s.n.logger.Warn("rate_snapshot_write_failed", "date", day, "error", err)
		}
		return snap, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
	if res.Err != nil {
		return nil, res.Err
	}

	snap := res.Val.(*model.RateSnapshot)
	s.remember(day, snap)
	return snap, nil
}

// ToBase converts amount at rate, rounded to two decimal places.
// Unusable rates convert at the fallback rate.
func ToBase(amount, rate float64) float64 {
	if !model.UsableRate(rate) {
		rate = FallbackRate
	}
	v, _ := decimal.NewFromFloat(amount).
		DivRound(decimal.NewFromFloat(rate), amountDecimalPlaces).
		Float64()
	return v
}

// RoundAmount rounds a monetary value to two decimal places.
func RoundAmount(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(amountDecimalPlaces).Float64()
	return r
}

// NormalizeCode canonicalizes a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code looks like an ISO 4217 alphabetic code.
func ValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
