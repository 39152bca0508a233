package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Watch loop
	Events        prometheus.Counter
	FilesRejected prometheus.Counter

	// Dispatch outcomes
	FilesProcessed   prometheus.Counter
	FilesFailed      *prometheus.CounterVec
	DocumentsWritten prometheus.Counter
	DocumentsFailed  prometheus.Counter
	OutputCollisions prometheus.Counter
	JournalFailures  prometheus.Counter
	DispatchSec      prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	events := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_events_total"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_files_rejected_total"})
	processed := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_files_processed_total"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ordersplit_files_failed_total"}, []string{"kind"})
	written := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_documents_written_total"})
	docFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_documents_failed_total"})
	collisions := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_output_collisions_total"})
	journal := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordersplit_journal_failures_total"})
	dispatch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ordersplit_dispatch_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(events, rejected, processed, failed, written, docFailed, collisions, journal, dispatch)
	return &Registry{
		reg:              r,
		Events:           events,
		FilesRejected:    rejected,
		FilesProcessed:   processed,
		FilesFailed:      failed,
		DocumentsWritten: written,
		DocumentsFailed:  docFailed,
		OutputCollisions: collisions,
		JournalFailures:  journal,
		DispatchSec:      dispatch,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
