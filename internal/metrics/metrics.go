package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the todo collection.
// Tracks user operations, failed writes and table write latency.
type Metrics struct {
	TodosAdded    prometheus.Counter
	TodosToggled  prometheus.Counter
	TodosDeleted  prometheus.Counter
	TodosCleared  prometheus.Counter
	SyncFailures  prometheus.Counter
	PendingWrites prometheus.Gauge
	RemoteChanges prometheus.Counter
	WriteDuration prometheus.Histogram
}

// New creates a Metrics instance registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TodosAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "tada_todos_added_total",
			Help: "Total number of todos added",
		}),
		TodosToggled: f.NewCounter(prometheus.CounterOpts{
			Name: "tada_todos_toggled_total",
			Help: "Total number of done flag toggles",
		}),
		TodosDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "tada_todos_deleted_total",
			Help: "Total number of todos deleted one by one",
		}),
		TodosCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "tada_todos_cleared_total",
			Help: "Total number of completed todos removed by clear-completed",
		}),
		SyncFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tada_sync_failures_total",
			Help: "Total number of table writes that failed and were queued for retry",
		}),
		PendingWrites: f.NewGauge(prometheus.GaugeOpts{
			Name: "tada_pending_writes",
			Help: "Writes applied locally but not yet acknowledged by the table",
		}),
		RemoteChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "tada_remote_changes_total",
			Help: "Total number of changes applied from the table's watcher",
		}),
		WriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tada_table_write_duration_seconds",
			Help:    "Duration of table Upsert/Delete calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveWrite records the duration of a table write.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveWrite(start time.Time) {
	if m == nil {
		return
	}
	m.WriteDuration.Observe(time.Since(start).Seconds())
}

// All recorders are no-ops on a nil *Metrics so callers can skip metrics.

// IncrementAdded records a new todo.
func (m *Metrics) IncrementAdded() {
	if m != nil {
		m.TodosAdded.Inc()
	}
}

// IncrementToggled records a done flag flip.
func (m *Metrics) IncrementToggled() {
	if m != nil {
		m.TodosToggled.Inc()
	}
}

// IncrementDeleted records a single delete.
func (m *Metrics) IncrementDeleted() {
	if m != nil {
		m.TodosDeleted.Inc()
	}
}

// AddCleared records n todos removed by clear-completed.
func (m *Metrics) AddCleared(n int) {
	if m != nil {
		m.TodosCleared.Add(float64(n))
	}
}

// IncrementSyncFailure records a failed table write.
func (m *Metrics) IncrementSyncFailure() {
	if m != nil {
		m.SyncFailures.Inc()
	}
}

// IncrementRemoteChange records a change applied from the watcher.
func (m *Metrics) IncrementRemoteChange() {
	if m != nil {
		m.RemoteChanges.Inc()
	}
}

// SetPending reports the number of unacknowledged writes.
func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingWrites.Set(float64(n))
	}
}
