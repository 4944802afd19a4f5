package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joshharrison/taskloom/internal/ui"
)

// DefaultDebounce is the settle window used when none is configured.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer calls fn once no Trigger has happened for window.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	running sync.WaitGroup
}

// NewDebouncer creates a Debouncer. A non-positive window uses DefaultDebounce.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{window: window, fn: fn}
}

// Trigger restarts the settle window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fn()
}

// Stop cancels a pending call, ignores later triggers, and waits for a call
// already in progress to return. It must not be called from fn.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.running.Wait()
}

// Watcher reports settled changes to a single file. It watches the parent
// directory because atomic saves replace the file rather than write to it.
type Watcher struct {
	path     string
	name     string
	debounce *Debouncer
	log      io.Writer

	fsw       *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher creates a watcher that calls onChange once writes to path have
// been quiet for window.
func NewWatcher(path string, window time.Duration, onChange func(), log io.Writer) (*Watcher, error) {
	if log == nil {
		log = io.Discard
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return &Watcher{
		path:     abs,
		name:     filepath.Base(abs),
		debounce: NewDebouncer(window, onChange),
		log:      log,
	}, nil
}

// Start begins watching. The parent directory must exist. The watcher
// releases its resources when ctx is done; Close does the same on demand.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.closeFS()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.debounce.Trigger()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Transient errors (e.g. permission denied mid-rename) skip this cycle.
			fmt.Fprintf(w.log, "  %s watch %s: %v\n", ui.Yellow("⚠️  Warning:"), w.path, err)
		}
	}
}

func (w *Watcher) closeFS() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.closeFS()
	<-w.done
	w.cancel = nil
	return err
}
