package repository

import (
	"context"
	"errors"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/metrics"
	"github.com/fuelsync/fuelsync/internal/model"
)

// RateCache is the cross-request snapshot cache, implemented by the Redis cache.
type RateCache interface {
	GetRateSnapshot(ctx context.Context, date string) (*model.RateSnapshot, error)
	SetRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error
	IsRateSnapshotAbsent(ctx context.Context, date string) (bool, error)
	SetRateSnapshotAbsent(ctx context.Context, date string) error
}

// RateSnapshots stores exchange rate snapshots, read through an optional cache.
type RateSnapshots struct {
	store   kv.Store
	cache   RateCache
	metrics metrics.Recorder
}

// RateSnapshots returns the snapshot store. rc may be nil.
func (r *Repository) RateSnapshots(rc RateCache, m metrics.Recorder) *RateSnapshots {
	return &RateSnapshots{store: r.store, cache: rc, metrics: metrics.OrNoop(m)}
}

// GetSnapshot returns the snapshot for date, or nil if there is none.
func (s *RateSnapshots) GetSnapshot(ctx context.Context, date string) (*model.RateSnapshot, error) {
	if s.cache != nil {
		if absent, err := s.cache.IsRateSnapshotAbsent(ctx, date); err == nil && absent {
			s.metrics.IncRateCacheHit()
			return nil, nil
		}
		// Redis errors other than a miss are treated as a miss
		if snap, err := s.cache.GetRateSnapshot(ctx, date); err == nil {
			s.metrics.IncRateCacheHit()
			return snap, nil
		}
		s.metrics.IncRateCacheMiss()
	}

	snap, err := get[model.RateSnapshot](ctx, s.store, keys.Rate(date))
	if errors.Is(err, ErrNotFound) {
		if s.cache != nil {
			_ = s.cache.SetRateSnapshotAbsent(ctx, date)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetRateSnapshot(ctx, snap)
	}
	return snap, nil
}

// PutSnapshot replaces the snapshot for its date.
func (s *RateSnapshots) PutSnapshot(ctx context.Context, snap *model.RateSnapshot) error {
	if err := put(ctx, s.store, keys.Rate(snap.Date), snap, kv.Always); err != nil {
		return err
	}
	if s.cache != nil {
		// Best-effort; a stale entry expires with its TTL
		_ = s.cache.SetRateSnapshot(ctx, snap)
	}
	return nil
}
