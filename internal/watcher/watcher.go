// Package watcher drives the scan loop: wait for files created in the input
// directory, filter them by name and hand each one to a Handler.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ordersplit/internal/codec"
	"ordersplit/internal/filename"
	"ordersplit/internal/metrics"
)

var (
	// ErrWatch wraps failures to establish or wait on the directory watch.
	// They end the run.
	ErrWatch = errors.New("watch failed")
	// ErrStopped is returned by Run on a watcher that already stopped.
	ErrStopped = errors.New("watcher stopped")
	// ErrRunning is returned by Run while another Run is active.
	ErrRunning = errors.New("watcher already running")
)

// State is the phase of a Watcher's loop.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateDispatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config is the read-only setup of a Watcher.
type Config struct {
	InputDirectory string
	// Workers bounds concurrent dispatches within one event batch.
	Workers int
}

// Watcher feeds files created in the input directory to a Handler.
type Watcher struct {
	cfg     Config
	handler Handler
	rule    filename.Rule
	log     *zap.Logger
	metrics *metrics.Registry

	state atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// New returns an idle Watcher; Run starts it.
func New(cfg Config, handler Handler, rule filename.Rule, log *zap.Logger, m *metrics.Registry) *Watcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Watcher{cfg: cfg, handler: handler, rule: rule, log: log.Named("watcher"), metrics: m}
}

// State reports the current phase.
func (w *Watcher) State() State { return State(w.state.Load()) }

func (w *Watcher) setState(s State) { w.state.Store(int32(s)) }

// Stop cancels a running loop. It is safe to call more than once and before
// Run; a stopped watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
		return
	}
	w.setState(StateStopped)
}

// Run watches the input directory until ctx is cancelled, Stop is called or
// the watch itself fails. Errors of individual files are logged and never end
// the loop. On cancellation Run returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	ctx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	defer w.finish()

	dir := w.cfg.InputDirectory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ErrWatch, dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWatch, err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("%w: add %s: %w", ErrWatch, dir, err)
	}

	w.setState(StateWatching)
	w.log.Info("watching", zap.String("dir", dir), zap.Int("workers", w.cfg.Workers))
	for {
		paths, err := w.next(ctx, fw)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error("watch aborted", zap.Error(err))
			}
			return err
		}
		if len(paths) > 0 {
			w.dispatchAll(ctx, paths)
		}
	}
}

func (w *Watcher) begin(ctx context.Context) (context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrStopped
	}
	if w.cancel != nil {
		return nil, ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	return ctx, nil
}

func (w *Watcher) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.cancel()
	w.setState(StateStopped)
}

// next blocks for one event, then drains whatever else is already queued,
// returning the qualifying paths of the batch in arrival order.
func (w *Watcher) next(ctx context.Context, fw *fsnotify.Watcher) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(ev fsnotify.Event) {
		if p, ok := w.accept(ev); ok && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-fw.Events:
		if !ok {
			return nil, fmt.Errorf("%w: event channel closed", ErrWatch)
		}
		add(ev)
	case err, ok := <-fw.Errors:
		if !ok {
			return nil, fmt.Errorf("%w: error channel closed", ErrWatch)
		}
		return nil, fmt.Errorf("%w: %w", ErrWatch, err)
	}

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return paths, nil
			}
			add(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return paths, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrWatch, err)
		default:
			return paths, nil
		}
	}
}

func (w *Watcher) accept(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) {
		return "", false
	}
	w.metrics.Events.Inc()
	name := filepath.Base(ev.Name)
	if !w.rule.Matches(name) {
		w.metrics.FilesRejected.Inc()
		w.log.Debug("ignored file", zap.String("name", name))
		return "", false
	}
	return ev.Name, true
}

// dispatchAll runs the handler for each path. A failing file never cancels
// its siblings.
func (w *Watcher) dispatchAll(ctx context.Context, paths []string) {
	w.setState(StateDispatching)
	defer w.setState(StateWatching)

	var g errgroup.Group
	g.SetLimit(w.cfg.Workers)
	for _, p := range paths {
		g.Go(func() error {
			w.dispatchOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Watcher) dispatchOne(ctx context.Context, path string) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("dispatch panicked", zap.String("input", filepath.Base(path)), zap.Any("panic", r))
		}
	}()
	res, err := w.handler.Dispatch(ctx, path)
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("input", filepath.Base(path)), zap.Error(err)}
	var de *codec.DecodeError
	if errors.As(err, &de) {
		fields = append(fields, zap.String("element", de.Element), zap.String("path", de.Path))
	}
	if res.Sequence != 0 {
		fields = append(fields, zap.Int("seq", res.Sequence))
	}
	w.log.Error("input failed", fields...)
}
