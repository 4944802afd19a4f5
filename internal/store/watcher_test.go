package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshharrison/taskloom/internal/task"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestDebouncer_Coalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 3; i++ {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}

	if !waitFor(t, time.Second, func() bool { return calls.Load() == 1 }) {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 call, got %d", n)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(100 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("expected no calls after Stop, got %d", n)
	}
}

func TestWatcher_CoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	other := filepath.Join(dir, "notes.txt")

	var calls atomic.Int32
	w, err := NewWatcher(path, 150*time.Millisecond, func() { calls.Add(1) }, io.Discard)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("expected no callback for other files, got %d", n)
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 1 }) {
		t.Fatal("expected a callback after writes settled")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 callback, got %d", n)
	}
}

func TestWatcher_CloseStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	var calls atomic.Int32
	w, err := NewWatcher(path, 50*time.Millisecond, func() { calls.Add(1) }, io.Discard)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	os.WriteFile(path, []byte("x"), 0644)
	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("expected no callbacks after Close, got %d", n)
	}
}

func TestStoreWatch_ReloadsExternalEdits(t *testing.T) {
	path := DefaultPath(t.TempDir())
	a := openStore(t, path, newClock(base))
	mustCreate(t, a, "one")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Watch(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer a.Close()
	if err := a.Watch(ctx, 50*time.Millisecond); err == nil {
		t.Error("expected error when watching twice")
	}

	b := openStore(t, path, newClock(base.Add(time.Hour)))
	if _, err := b.Create(task.CreateInput{Title: "two"}); err != nil {
		t.Fatalf("b.Create: %v", err)
	}
	bumpMtime(t, path)

	if !waitFor(t, 2*time.Second, func() bool { return len(a.GetAll()) == 2 }) {
		t.Fatalf("expected watcher to reload external edit, have %d tasks", len(a.GetAll()))
	}
}

func TestDebouncer_StopWaitsForRunningCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	d := NewDebouncer(10*time.Millisecond, func() {
		close(started)
		<-release
		finished.Store(true)
	})

	d.Trigger()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never started")
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the callback was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the callback finished")
	}
	if !finished.Load() {
		t.Error("Stop returned before the callback finished")
	}
}

func TestWatcher_ContextCancelReleasesWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	var calls atomic.Int32
	w, err := NewWatcher(path, 30*time.Millisecond, func() { calls.Add(1) }, io.Discard)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit after cancel")
	}
	// The fsnotify watcher is closed along with the loop.
	if err := w.fsw.Add(filepath.Dir(path)); err == nil {
		t.Error("expected fsnotify watcher to be closed after cancel")
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close after cancel: %v", err)
	}

	os.WriteFile(path, []byte("x"), 0644)
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("expected no callbacks after cancel, got %d", n)
	}
}

func TestStoreWatch_CreatesMissingDir(t *testing.T) {
	path := DefaultPath(t.TempDir())
	a := openStore(t, path, newClock(base))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Watch(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("Watch on a fresh project: %v", err)
	}
	defer a.Close()

	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		t.Fatalf("expected task directory to exist: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Watch must not create the task file")
	}

	b := openStore(t, path, newClock(base.Add(time.Hour)))
	mustCreate(t, b, "first")
	bumpMtime(t, path)

	if !waitFor(t, 2*time.Second, func() bool { return len(a.GetAll()) == 1 }) {
		t.Fatalf("expected watcher to pick up the new file, have %d tasks", len(a.GetAll()))
	}
}
