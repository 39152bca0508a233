package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ordersplit/internal/filename"
	"ordersplit/internal/sink"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

type recordingHandler struct {
	mu    sync.Mutex
	names []string
	panic string
}

func (h *recordingHandler) Dispatch(_ context.Context, path string) (Result, error) {
	name := filepath.Base(path)
	h.mu.Lock()
	h.names = append(h.names, name)
	h.mu.Unlock()
	if name == h.panic {
		panic("boom")
	}
	return Result{Input: name}, nil
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.names...)
}

type running struct {
	w    *Watcher
	done chan error
}

func start(t *testing.T, dir string, h Handler) *running {
	t.Helper()
	w := New(Config{InputDirectory: dir, Workers: 2}, h, filename.New("orders_", ".xml"), zaptest.NewLogger(t), nil)
	r := &running{w: w, done: make(chan error, 1)}
	go func() { r.done <- w.Run(context.Background()) }()
	require.Eventually(t, func() bool { return w.State() == StateWatching }, waitFor, tick)
	t.Cleanup(w.Stop)
	return r
}

func (r *running) stop(t *testing.T) error {
	t.Helper()
	r.w.Stop()
	select {
	case err := <-r.done:
		return err
	case <-time.After(waitFor):
		t.Fatal("watcher did not stop")
		return nil
	}
}

// drop moves a fully written file into dir so the watcher never sees a
// partially written input.
func drop(t *testing.T, dir, name, body string) {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func TestWatcher_EndToEnd(t *testing.T) {
	f := newFixture(t)
	r := start(t, f.in, f.disp)

	drop(t, f.in, "orders_7.xml", sampleOrders)
	for _, name := range []string{"Sony7.xml", "Apple7.xml", "Panasonic7.xml"} {
		path := filepath.Join(f.out, name)
		require.Eventually(t, func() bool {
			data, err := os.ReadFile(path)
			return err == nil && len(data) > 0 && data[len(data)-1] == '\n'
		}, waitFor, tick, "missing %s", name)
	}
	require.Eventually(t, func() bool { return len(f.journal.records()) == 1 }, waitFor, tick)

	// a processed input is neither moved, renamed nor rewritten
	input, err := os.ReadFile(filepath.Join(f.in, "orders_7.xml"))
	require.NoError(t, err)
	assert.Equal(t, sampleOrders, string(input))
	entries, err := os.ReadDir(f.in)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders_7.xml", entries[0].Name())

	assert.ErrorIs(t, r.stop(t), context.Canceled)
	assert.Equal(t, StateStopped, r.w.State())
}

func TestWatcher_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	r := start(t, f.in, f.disp)

	oneSupplier := func(s string) string {
		return `<orders><order ID="1"><product><gtin>1</gtin><supplier>` + s + `</supplier></product></order></orders>`
	}
	drop(t, f.in, "orders_1.xml", oneSupplier("A"))
	drop(t, f.in, "orders_2.xml", `<orders><order ID="2"><product>`)
	drop(t, f.in, "orders_3.xml", oneSupplier("B"))

	require.Eventually(t, func() bool { return len(f.journal.records()) == 3 }, waitFor, tick)
	assert.FileExists(t, filepath.Join(f.out, "A1.xml"))
	assert.FileExists(t, filepath.Join(f.out, "B3.xml"))
	matches, err := filepath.Glob(filepath.Join(f.out, "*2.xml"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotEqual(t, StateStopped, r.w.State(), "a bad file must not end the loop")

	// still processing after the failure
	drop(t, f.in, "orders_4.xml", oneSupplier("C"))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(f.out, "C4.xml"))
		return err == nil
	}, waitFor, tick)

	assert.ErrorIs(t, r.stop(t), context.Canceled)
}

func TestWatcher_IgnoresNonMatchingNames(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	r := start(t, dir, h)

	drop(t, dir, "invoice_1.xml", "x")
	drop(t, dir, "orders_x.xml", "x")
	drop(t, dir, "orders_1.txt", "x")
	drop(t, dir, "orders_9.xml", "x")

	require.Eventually(t, func() bool { return len(h.seen()) == 1 }, waitFor, tick)
	// give stray events a chance to show up
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"orders_9.xml"}, h.seen())
	assert.ErrorIs(t, r.stop(t), context.Canceled)
}

func TestWatcher_PanicIsContained(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{panic: "orders_1.xml"}
	r := start(t, dir, h)

	drop(t, dir, "orders_1.xml", "x")
	require.Eventually(t, func() bool { return len(h.seen()) == 1 }, waitFor, tick)
	drop(t, dir, "orders_2.xml", "x")
	require.Eventually(t, func() bool { return len(h.seen()) == 2 }, waitFor, tick)
	assert.ErrorIs(t, r.stop(t), context.Canceled)
}

func TestWatcher_CreatesInputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet")
	r := start(t, dir, &recordingHandler{})
	assert.DirExists(t, dir)
	assert.ErrorIs(t, r.stop(t), context.Canceled)
}

func TestWatcher_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(Config{InputDirectory: t.TempDir()}, &recordingHandler{}, filename.New("orders_", ".xml"), nil, nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.State() == StateWatching }, waitFor, tick)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("run did not return")
	}
	assert.ErrorIs(t, w.Run(context.Background()), ErrStopped, "no restart after stop")
}

func TestWatcher_RegistrationFailureIsFatal(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := New(Config{InputDirectory: filepath.Join(blocker, "in")}, &recordingHandler{}, filename.New("orders_", ".xml"), nil, nil)
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWatch)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateStopped, w.State())
}

func TestWatcher_StopBeforeRun(t *testing.T) {
	w := New(Config{InputDirectory: t.TempDir()}, &recordingHandler{}, filename.New("orders_", ".xml"), nil, nil)
	w.Stop()
	w.Stop()
	assert.Equal(t, StateStopped, w.State())
	assert.ErrorIs(t, w.Run(context.Background()), ErrStopped)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "dispatching", StateDispatching.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestWatcher_StopWithStalledJournal(t *testing.T) {
	f := newFixture(t)
	stalled := &stalledJournal{entered: make(chan struct{})}
	disp := NewDispatcher(Deps{
		Sink:           sink.New(f.out, nil),
		Rule:           filename.New("orders_", ".xml"),
		Journal:        stalled,
		JournalTimeout: 200 * time.Millisecond,
	})
	r := start(t, f.in, disp)

	drop(t, f.in, "orders_7.xml", sampleOrders)
	select {
	case <-stalled.entered:
	case <-time.After(waitFor):
		t.Fatal("input never dispatched")
	}
	assert.ErrorIs(t, r.stop(t), context.Canceled)
	assert.Equal(t, StateStopped, r.w.State())
}
