package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
)

// GuardState tells the watcher callback what the store is doing to its file.
type GuardState int32

const (
	Idle GuardState = iota
	Reloading
	Saving
)

func (g GuardState) String() string {
	switch g {
	case Idle:
		return "idle"
	case Reloading:
		return "reloading"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("GuardState(%d)", int32(g))
	}
}

// Store owns the in-memory task collection and its backing file.
//
// Every mutation is applied to a copy of the collection and only becomes
// visible once Save has written it; a failed write leaves memory unchanged.
// Writes made to the file by another process are picked up by Reload (or the
// watcher) and reconciled by Merge when this instance next saves.
type Store struct {
	path  string
	log   io.Writer
	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	tasks    map[string]task.Task
	lastSeen time.Time // mtime of the file as last read or written by this instance
	guard    atomic.Int32

	watchMu sync.Mutex
	watcher *Watcher
}

// Option configures a Store.
type Option func(*Store)

// WithLog sets where reconciliation and watcher messages are written.
func WithLog(w io.Writer) Option {
	return func(s *Store) { s.log = w }
}

// WithClock overrides time.Now for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the uuid-based task id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Open loads the store file at path, or starts empty if it does not exist.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:  path,
		log:   os.Stderr,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		tasks: make(map[string]task.Task),
	}
	for _, opt := range opts {
		opt(s)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "stat", Path: path, Err: err}
	}

	tasks, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.tasks = tasks
	s.lastSeen = info.ModTime()
	return s, nil
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// State returns the current guard state.
func (s *Store) State() GuardState {
	return GuardState(s.guard.Load())
}

// Create adds a new PENDING task.
func (s *Store) Create(in task.CreateInput) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.tasks[id]; exists {
		return task.Task{}, fmt.Errorf("%w: id %s already in use", task.ErrInvalid, id)
	}
	t, err := task.New(id, in, s.now())
	if err != nil {
		return task.Task{}, err
	}

	next := s.snapshot()
	next[id] = t
	if err := s.commit(next); err != nil {
		return task.Task{}, err
	}
	return s.tasks[id].Clone(), nil
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, false
	}
	return t.Clone(), true
}

// GetAll returns every task, archived included, in creation order.
func (s *Store) GetAll() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Update applies a partial update.
func (s *Store) Update(id string, p task.Patch) (task.Task, error) {
	return s.mutate(id, func(t task.Task) (task.Task, error) {
		return p.ApplyTo(t)
	})
}

// Apply moves a task along the state machine edge named by e.
func (s *Store) Apply(id string, e task.Event) (task.Task, error) {
	return s.mutate(id, func(t task.Task) (task.Task, error) {
		next, err := t.Status.Apply(e)
		if err != nil {
			return t, err
		}
		t.Status = next
		return t, nil
	})
}

// Archive soft-deletes a task. Archiving an archived task is a no-op.
func (s *Store) Archive(id string) (task.Task, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if ok && t.Archived() {
		return t.Clone(), nil
	}

	return s.mutate(id, func(t task.Task) (task.Task, error) {
		at := s.now()
		t.Metadata.ArchivedAt = &at
		return t, nil
	})
}

// Unarchive clears the soft-delete marker.
func (s *Store) Unarchive(id string) (task.Task, error) {
	return s.mutate(id, func(t task.Task) (task.Task, error) {
		t.Metadata.ArchivedAt = nil
		return t, nil
	})
}

// Delete removes a task from the collection and from disk.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return &NotFoundError{ID: id}
	}
	next := s.snapshot()
	delete(next, id)
	return s.commit(next, id)
}

// Save writes the current collection, merging in external edits first.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(s.snapshot())
}

// Reload replaces the collection with the file contents if the file changed
// since this instance last read or wrote it. It reports whether it reloaded.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guard.Store(int32(Reloading))
	defer s.guard.Store(int32(Idle))

	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "stat", Path: s.path, Err: err}
	}
	if !info.ModTime().After(s.lastSeen) {
		return false, nil
	}

	tasks, err := s.readFile()
	if err != nil {
		return false, err
	}
	s.tasks = tasks
	s.lastSeen = info.ModTime()
	fmt.Fprintf(s.log, "  %s reloaded %d tasks from %s\n", ui.Cyan("↻"), len(tasks), ui.Dim(s.path))
	return true, nil
}

// Watch starts a watcher that reloads the store after external edits settle
// for window. The task directory is created if missing. It stops when ctx is
// done or Close is called.
func (s *Store) Watch(ctx context.Context, window time.Duration) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		return fmt.Errorf("store %s is already watched", s.path)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &StorageError{Op: "watch", Path: s.path, Err: err}
	}
	w, err := NewWatcher(s.path, window, s.handleExternalChange, s.log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Close stops the watcher, if any.
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// handleExternalChange is the watcher callback. It never blocks behind the
// store's own writes: a change seen while saving or reloading is skipped.
func (s *Store) handleExternalChange() {
	if st := s.State(); st != Idle {
		fmt.Fprintf(s.log, "  %s change to %s ignored while %s\n", ui.Dim("‣"), ui.Dim(s.path), st)
		return
	}
	if _, err := s.Reload(); err != nil {
		fmt.Fprintf(s.log, "  %s reload %s: %v\n", ui.Yellow("⚠️  Warning:"), s.path, err)
	}
}

func (s *Store) mutate(id string, fn func(task.Task) (task.Task, error)) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[id]
	if !ok {
		return task.Task{}, &NotFoundError{ID: id}
	}
	updated, err := fn(cur.Clone())
	if err != nil {
		return task.Task{}, err
	}
	updated.ID = cur.ID
	updated.Metadata.Version = cur.Metadata.Version
	updated.Metadata.CreatedAt = cur.Metadata.CreatedAt
	updated.Metadata.LastModified = cur.Metadata.LastModified
	updated.Touch(s.now())

	next := s.snapshot()
	next[id] = updated
	if err := s.commit(next); err != nil {
		return task.Task{}, err
	}
	return s.tasks[id].Clone(), nil
}

// commit reconciles next with any external edit, writes it, and installs it
// as the in-memory collection. Ids in deleted are never adopted from disk.
// Caller holds s.mu.
func (s *Store) commit(next map[string]task.Task, deleted ...string) error {
	s.guard.Store(int32(Saving))
	defer s.guard.Store(int32(Idle))

	info, err := os.Stat(s.path)
	switch {
	case err == nil && info.ModTime().After(s.lastSeen):
		external, err := s.readFile()
		if err != nil {
			return err
		}
		for _, id := range deleted {
			delete(external, id)
		}
		merged, report := Merge(next, external)
		if report.Changed() {
			fmt.Fprintf(s.log, "  %s %s changed on disk, merged: %s\n", ui.Yellow("⇄"), ui.Dim(s.path), report)
		}
		next = merged
	case err != nil && !os.IsNotExist(err):
		return &StorageError{Op: "stat", Path: s.path, Err: err}
	}

	mtime, err := s.writeFile(next)
	if err != nil {
		return err
	}
	s.tasks = next
	s.lastSeen = mtime
	return nil
}

func (s *Store) readFile() (map[string]task.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, &StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return doc.Map(), nil
}

// writeFile writes tasks atomically via a temp file and returns the new mtime.
func (s *Store) writeFile(tasks map[string]task.Task) (time.Time, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}

	list := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		list = append(list, t)
	}
	data, err := Encode(NewDocument(list, s.now()))
	if err != nil {
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return time.Time{}, &StorageError{Op: "write", Path: s.path, Err: err}
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, &StorageError{Op: "stat", Path: s.path, Err: err}
	}
	return info.ModTime(), nil
}

// snapshot copies the map; task values are copied on write by mutate.
func (s *Store) snapshot() map[string]task.Task {
	next := make(map[string]task.Task, len(s.tasks)+1)
	for id, t := range s.tasks {
		next[id] = t
	}
	return next
}

func (s *Store) listLocked() []task.Task {
	list := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t.Clone())
	}
	sortByCreation(list)
	return list
}
