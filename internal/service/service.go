// Package service provides business logic for the application.
package service

import (
	"log/slog"
	"time"

	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/currency"
	"github.com/fuelsync/fuelsync/internal/metrics"
	"github.com/fuelsync/fuelsync/internal/repository"
	"github.com/fuelsync/fuelsync/internal/sweep"
)

// Options configures a Service.
type Options struct {
	// Sweeps schedules purges after incomplete vehicle deletes. Nil drops them.
	Sweeps  sweep.Publisher
	Logger  *slog.Logger
	Metrics metrics.Recorder
	Now     func() time.Time
}

// Service implements the owner-scoped operations of the API.
type Service struct {
	repo    *repository.Repository
	rates   *currency.Normalizer
	cascade *cascade.Planner
	sweeps  sweep.Publisher
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// New creates a Service.
func New(repo *repository.Repository, rates *currency.Normalizer, planner *cascade.Planner, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sweeps == nil {
		opts.Sweeps = sweep.NoopPublisher{Logger: opts.Logger}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:    repo,
		rates:   rates,
		cascade: planner,
		sweeps:  opts.Sweeps,
		logger:  opts.Logger.With("component", "service"),
		metrics: metrics.OrNoop(opts.Metrics),
		now:     opts.Now,
	}
}

// BaseCurrency returns the currency all totals are reported in.
func (s *Service) BaseCurrency() string {
	return s.rates.Base()
}

// clock returns the current instant at the precision records are stored with.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// stamp renders t the way time.Time marshals to JSON.
func stamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
