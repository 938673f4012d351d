package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncRateLookup(source string)                     {}
func (n *NoopRecorder) IncRateFetch(status string)                      {}
func (n *NoopRecorder) ObserveRateFetchDuration(duration time.Duration) {}
func (n *NoopRecorder) IncRateCacheHit()                                {}
func (n *NoopRecorder) IncRateCacheMiss()                               {}
func (n *NoopRecorder) IncCascadeRun(status string)                     {}
func (n *NoopRecorder) IncCascadeBatch()                                {}
func (n *NoopRecorder) ObserveCascadeChildren(count int)                {}
func (n *NoopRecorder) IncEntityCreated(kind string)                    {}
func (n *NoopRecorder) IncEntityUpdated(kind string)                    {}
func (n *NoopRecorder) IncEntityDeleted(kind string)                    {}
func (n *NoopRecorder) IncSweepJob(status string)                       {}

// OrNoop returns r, or a no-op recorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NewNoop()
	}
	return r
}
