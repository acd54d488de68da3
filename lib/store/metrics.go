package store

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metric names
// --------------------------------------------------------------------------

// Operation names used as the op label
const (
	opSave      = "save"
	opFindOne   = "find_one"
	opFindAll   = "find_all"
	opRemove    = "remove"
	opRemoveAll = "remove_all"
	opCount     = "count"
	opOpen      = "open"
)

// collectionMetrics holds the metrics of one collection.
// All metrics live in the metrics.Set of the owning server.
type collectionMetrics struct {
	set      *metrics.Set
	database string
	name     string
	skipped  *metrics.Counter
}

func newCollectionMetrics(set *metrics.Set, database, name string) *collectionMetrics {
	return &collectionMetrics{
		set:      set,
		database: database,
		name:     name,
		skipped: set.GetOrCreateCounter(fmt.Sprintf(
			`ddoc_recovery_skipped_total{db=%q,collection=%q}`, database, name)),
	}
}

// observe counts an operation and records its duration.
// Errors are counted per return code.
func (m *collectionMetrics) observe(op string, start time.Time, err error) {
	m.set.GetOrCreateCounter(fmt.Sprintf(
		`ddoc_ops_total{db=%q,collection=%q,op=%q}`, m.database, m.name, op)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(
		`ddoc_op_duration_seconds{db=%q,collection=%q,op=%q}`, m.database, m.name, op)).UpdateDuration(start)

	if err != nil {
		code := RetCInternalError
		if e, ok := err.(*Error); ok {
			code = e.Code
		}
		m.set.GetOrCreateCounter(fmt.Sprintf(
			`ddoc_errors_total{db=%q,collection=%q,op=%q,code=%q}`, m.database, m.name, op, code.String())).Inc()
	}
}

// --------------------------------------------------------------------------
// Exposition
// --------------------------------------------------------------------------

// WriteMetrics writes all metrics of the server in Prometheus text format to w
func (s *Server) WriteMetrics(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

// OpCount returns how often op was executed on the given collection.
// It is mainly useful in tests and for the stats command.
func (s *Server) OpCount(database, collection, op string) uint64 {
	return s.metrics.GetOrCreateCounter(fmt.Sprintf(
		`ddoc_ops_total{db=%q,collection=%q,op=%q}`, database, collection, op)).Get()
}

// SkippedCount returns the number of units skipped while reading the given collection
func (s *Server) SkippedCount(database, collection string) uint64 {
	return s.metrics.GetOrCreateCounter(fmt.Sprintf(
		`ddoc_recovery_skipped_total{db=%q,collection=%q}`, database, collection)).Get()
}
