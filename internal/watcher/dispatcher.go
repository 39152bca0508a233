package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"ordersplit/internal/codec"
	"ordersplit/internal/filename"
	"ordersplit/internal/journal"
	"ordersplit/internal/ledger"
	"ordersplit/internal/metrics"
	"ordersplit/internal/model"
	"ordersplit/internal/regroup"
	"ordersplit/internal/sink"
)

// ErrRejected is returned for a path whose name does not satisfy the rule.
var ErrRejected = errors.New("input name rejected")

// DefaultJournalTimeout bounds one journal append when Deps leaves it unset.
const DefaultJournalTimeout = 5 * time.Second

// Result summarizes one dispatched input file.
type Result struct {
	Input    string
	Sequence int
	// Outputs are the absolute paths of documents written.
	Outputs []string
	// Failed are the document names that could not be written.
	Failed []string
	// Skipped counts bundles without a supplier.
	Skipped int
}

// Handler processes one input file.
type Handler interface {
	Dispatch(ctx context.Context, path string) (Result, error)
}

// Deps are the collaborators of a Dispatcher. Ledger, Journal, Metrics and
// Log may be nil.
type Deps struct {
	Codec   *codec.Codec
	Sink    *sink.Sink
	Rule    filename.Rule
	Ledger  ledger.Store
	Journal journal.Writer
	Metrics *metrics.Registry
	Log     *zap.Logger
	// JournalTimeout bounds each journal append; zero means DefaultJournalTimeout.
	JournalTimeout time.Duration
}

// Dispatcher turns one input file into supplier documents.
type Dispatcher struct {
	codec   *codec.Codec
	sink    *sink.Sink
	rule    filename.Rule
	ledger  ledger.Store
	journal journal.Writer
	metrics *metrics.Registry
	log     *zap.Logger

	journalTimeout time.Duration

	// outputs serializes writers of the same output document.
	mu      sync.Mutex
	outputs map[string]*sync.Mutex
}

// NewDispatcher fills unset optional Deps with defaults.
func NewDispatcher(d Deps) *Dispatcher {
	if d.Codec == nil {
		d.Codec = codec.New()
	}
	if d.Ledger == nil {
		d.Ledger = ledger.NewInMemoryStore()
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.JournalTimeout <= 0 {
		d.JournalTimeout = DefaultJournalTimeout
	}
	return &Dispatcher{
		codec:   d.Codec,
		sink:    d.Sink,
		rule:    d.Rule,
		ledger:  d.Ledger,
		journal: d.Journal,
		metrics: d.Metrics,
		log:     d.Log.Named("dispatcher"),
		outputs: make(map[string]*sync.Mutex),

		journalTimeout: d.JournalTimeout,
	}
}

// Dispatch reads, decodes, regroups and emits one input file. Failures of a
// single supplier document are logged and reported in the result; read and
// decode failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, path string) (res Result, err error) {
	start := time.Now()
	name := filepath.Base(path)
	res.Input = name
	defer func() {
		d.metrics.DispatchSec.Observe(time.Since(start).Seconds())
		d.record(ctx, res, err)
	}()

	seq, ok := d.rule.SequenceNumber(name)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrRejected, name)
	}
	res.Sequence = seq

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}
	batch, err := d.codec.Decode(data)
	if err != nil {
		return res, fmt.Errorf("decode %s: %w", name, err)
	}
	log := d.log.With(zap.String("input", name), zap.Int("seq", seq))
	log.Debug("decoded", zap.Int("orders", len(batch.Orders)), zap.Int("products", batch.ProductCount()))

	for _, b := range regroup.Regroup(batch) {
		if b.Supplier == "" {
			log.Warn("products without supplier dropped", zap.Int("products", len(b.Products)))
			d.metrics.DocumentsFailed.Inc()
			res.Skipped++
			continue
		}
		out := filename.OutputName(b.Supplier, seq)
		written, err := d.emit(log, name, out, b)
		if err != nil {
			log.Error("supplier document failed", zap.String("output", out), zap.Error(err))
			d.metrics.DocumentsFailed.Inc()
			res.Failed = append(res.Failed, out)
			continue
		}
		d.metrics.DocumentsWritten.Inc()
		res.Outputs = append(res.Outputs, written)
	}
	log.Info("input dispatched", zap.Int("written", len(res.Outputs)), zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (d *Dispatcher) emit(log *zap.Logger, input, out string, b *model.SupplierBundle) (string, error) {
	text, err := d.codec.EncodeBundle(b)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	lock := d.outputLock(out)
	lock.Lock()
	defer lock.Unlock()

	prev, collided, err := d.ledger.Claim(out, input)
	if err != nil {
		// the document is still written; only overwrite detection is lost
		log.Warn("ledger claim failed", zap.String("output", out), zap.Error(err))
	}
	if collided {
		log.Warn("output overwritten by another input",
			zap.String("output", out), zap.String("previous", prev), zap.String("input", input))
		d.metrics.OutputCollisions.Inc()
	}
	return d.sink.Emit(out, text)
}

func (d *Dispatcher) outputLock(out string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.outputs[out]
	if !ok {
		l = &sync.Mutex{}
		d.outputs[out] = l
	}
	return l
}

func (d *Dispatcher) record(ctx context.Context, res Result, err error) {
	rec := journal.NewRecord(res.Input, res.Sequence)
	for _, p := range res.Outputs {
		rec.Outputs = append(rec.Outputs, filepath.Base(p))
	}
	switch {
	case err != nil:
		rec.Status = journal.StatusFailed
		rec.Error = err.Error()
		d.metrics.FilesFailed.WithLabelValues(failureKind(err)).Inc()
	case len(res.Failed) > 0 || res.Skipped > 0:
		rec.Status = journal.StatusPartial
		if len(res.Outputs) == 0 {
			rec.Status = journal.StatusFailed
		}
		d.metrics.FilesProcessed.Inc()
	default:
		rec.Status = journal.StatusOK
		d.metrics.FilesProcessed.Inc()
	}
	// The outcome is journaled even when ctx is already cancelled, but never
	// for longer than journalTimeout.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.journalTimeout)
	defer cancel()
	if jerr := d.journal.Append(jctx, rec); jerr != nil {
		d.log.Warn("journal append failed", zap.String("input", res.Input), zap.Error(jerr))
		d.metrics.JournalFailures.Inc()
	}
}

// failureKind labels a dispatch error for metrics.
func failureKind(err error) string {
	if k := codec.Kind(err); k != "" {
		return k
	}
	if errors.Is(err, ErrRejected) {
		return "rejected"
	}
	return "io"
}
