package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	m := NewInMemory()
	m.IncRateLookup("nearest")
	m.IncRateLookup("nearest")
	m.IncRateLookup("base")
	m.ObserveRateFetchDuration(250 * time.Millisecond)
	m.IncCascadeBatch()
	m.ObserveCascadeChildren(30)
	m.IncEntityCreated("refill")

	snap := m.Snapshot()
	if snap.RateLookups["nearest"] != 2 || snap.RateLookups["base"] != 1 {
		t.Errorf("unexpected rate lookups: %v", snap.RateLookups)
	}
	if snap.RateFetchDurationCount != 1 || snap.RateFetchDurationTotalNs != int64(250*time.Millisecond) {
		t.Errorf("unexpected fetch duration: %d/%d", snap.RateFetchDurationCount, snap.RateFetchDurationTotalNs)
	}
	if snap.CascadeBatches != 1 || snap.CascadeChildren != 30 {
		t.Errorf("unexpected cascade counters: %d/%d", snap.CascadeBatches, snap.CascadeChildren)
	}
	if snap.EntitiesCreated["refill"] != 1 {
		t.Errorf("expected 1 refill created, got %d", snap.EntitiesCreated["refill"])
	}

	// Snapshots are copies.
	snap.RateLookups["nearest"] = 99
	if m.Snapshot().RateLookups["nearest"] != 2 {
		t.Error("snapshot shares state with recorder")
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheus(reg)

	r.IncRateLookup("fallback")
	r.IncEntityDeleted("vehicle")
	r.IncEntityDeleted("vehicle")

	expected := `
# HELP fuelsync_rate_lookups_total Exchange rate lookups by resolution source.
# TYPE fuelsync_rate_lookups_total counter
fuelsync_rate_lookups_total{source="fallback"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "fuelsync_rate_lookups_total"); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(r.entities.WithLabelValues("vehicle", "delete")); got != 2 {
		t.Errorf("expected 2 vehicle deletes, got %v", got)
	}
}

func TestOrNoop(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Fatal("expected a recorder")
	}
	m := NewInMemory()
	if OrNoop(m) != m {
		t.Error("expected recorder to be returned unchanged")
	}
}
