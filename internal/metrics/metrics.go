// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory for tests.
type Recorder interface {
	// Currency normalization metrics
	IncRateLookup(source string) // source: "base", "snapshot", "fetched", "nearest", "fallback"
	IncRateFetch(status string)  // status: "success" or "failure"
	ObserveRateFetchDuration(duration time.Duration)
	IncRateCacheHit()
	IncRateCacheMiss()

	// Cascade delete metrics
	IncCascadeRun(status string) // status: "complete", "not_found", "incomplete"
	IncCascadeBatch()
	ObserveCascadeChildren(count int)

	// Entity management metrics, kind: "vehicle", "refill", "expense"
	IncEntityCreated(kind string)
	IncEntityUpdated(kind string)
	IncEntityDeleted(kind string)

	// Orphan sweep metrics
	IncSweepJob(status string) // status: "published", "dropped", "processed", "requeued", "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
