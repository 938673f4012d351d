package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RateLookups              map[string]uint64
	RateFetches              map[string]uint64
	RateFetchDurationCount   uint64
	RateFetchDurationTotalNs int64
	RateCacheHits            uint64
	RateCacheMisses          uint64
	CascadeRuns              map[string]uint64
	CascadeBatches           uint64
	CascadeChildren          uint64
	EntitiesCreated          map[string]uint64
	EntitiesUpdated          map[string]uint64
	EntitiesDeleted          map[string]uint64
	SweepJobs                map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	rateFetchDurationCount   uint64
	rateFetchDurationTotalNs int64
	rateCacheHits            uint64
	rateCacheMisses          uint64
	cascadeBatches           uint64
	cascadeChildren          uint64

	mu       sync.Mutex
	labelled map[string]map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labelled: make(map[string]map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		RateLookups:              m.copyLocked("rate_lookups"),
		RateFetches:              m.copyLocked("rate_fetches"),
		RateFetchDurationCount:   atomic.LoadUint64(&m.rateFetchDurationCount),
		RateFetchDurationTotalNs: atomic.LoadInt64(&m.rateFetchDurationTotalNs),
		RateCacheHits:            atomic.LoadUint64(&m.rateCacheHits),
		RateCacheMisses:          atomic.LoadUint64(&m.rateCacheMisses),
		CascadeRuns:              m.copyLocked("cascade_runs"),
		CascadeBatches:           atomic.LoadUint64(&m.cascadeBatches),
		CascadeChildren:          atomic.LoadUint64(&m.cascadeChildren),
		EntitiesCreated:          m.copyLocked("entities_created"),
		EntitiesUpdated:          m.copyLocked("entities_updated"),
		EntitiesDeleted:          m.copyLocked("entities_deleted"),
		SweepJobs:                m.copyLocked("sweep_jobs"),
	}
}

// IncRateLookup counts a resolved rate by source.
func (m *InMemoryRecorder) IncRateLookup(source string) {
	m.inc("rate_lookups", source)
}

// IncRateFetch counts a rate source call by status.
func (m *InMemoryRecorder) IncRateFetch(status string) {
	m.inc("rate_fetches", status)
}

// ObserveRateFetchDuration records rate source latency.
func (m *InMemoryRecorder) ObserveRateFetchDuration(duration time.Duration) {
	atomic.AddUint64(&m.rateFetchDurationCount, 1)
	atomic.AddInt64(&m.rateFetchDurationTotalNs, duration.Nanoseconds())
}

// IncRateCacheHit increments the snapshot cache hit counter.
func (m *InMemoryRecorder) IncRateCacheHit() {
	atomic.AddUint64(&m.rateCacheHits, 1)
}

// IncRateCacheMiss increments the snapshot cache miss counter.
func (m *InMemoryRecorder) IncRateCacheMiss() {
	atomic.AddUint64(&m.rateCacheMisses, 1)
}

// IncCascadeRun counts a cascade delete by outcome.
func (m *InMemoryRecorder) IncCascadeRun(status string) {
	m.inc("cascade_runs", status)
}

// IncCascadeBatch counts one batched delete call.
func (m *InMemoryRecorder) IncCascadeBatch() {
	atomic.AddUint64(&m.cascadeBatches, 1)
}

// ObserveCascadeChildren adds to the number of children found by cascades.
func (m *InMemoryRecorder) ObserveCascadeChildren(count int) {
	atomic.AddUint64(&m.cascadeChildren, uint64(count))
}

// IncEntityCreated counts a created entity by kind.
func (m *InMemoryRecorder) IncEntityCreated(kind string) {
	m.inc("entities_created", kind)
}

// IncEntityUpdated counts an updated entity by kind.
func (m *InMemoryRecorder) IncEntityUpdated(kind string) {
	m.inc("entities_updated", kind)
}

// IncEntityDeleted counts a deleted entity by kind.
func (m *InMemoryRecorder) IncEntityDeleted(kind string) {
	m.inc("entities_deleted", kind)
}

// IncSweepJob counts a sweep job transition by status.
func (m *InMemoryRecorder) IncSweepJob(status string) {
	m.inc("sweep_jobs", status)
}

func (m *InMemoryRecorder) inc(name, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters, ok := m.labelled[name]
	if !ok {
		counters = make(map[string]uint64)
		m.labelled[name] = counters
	}
	counters[label]++
}

func (m *InMemoryRecorder) copyLocked(name string) map[string]uint64 {
	out := make(map[string]uint64, len(m.labelled[name]))
	maps.Copy(out, m.labelled[name])
	return out
}
