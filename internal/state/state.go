package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	stateFile  = "state.json"
	historyDir = "history"
)

// SessionStatus is the status of one task within a batch.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusSucceeded SessionStatus = "succeeded"
	StatusFailed    SessionStatus = "failed"
	StatusSkipped   SessionStatus = "skipped"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunAborted   = "aborted"
)

// RunState is the journal of one batch run, kept in dir/state.json while the
// batch runs and moved to dir/history/<run id>/ when it ends.
type RunState struct {
	RunID      string                   `json:"run_id"`
	Strategy   string                   `json:"strategy"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
	Status     string                   `json:"status"`
	Error      string                   `json:"error,omitempty"`
	Snapshot   []string                 `json:"snapshot"`
	Processed  int                      `json:"processed"`
	Successful int                      `json:"successful"`
	Failed     int                      `json:"failed"`
	Skipped    int                      `json:"skipped"`
	Sessions   map[string]*SessionState `json:"sessions"`

	mu  sync.Mutex `json:"-"`
	dir string     `json:"-"`
}

// SessionState records how one task of the batch went.
type SessionState struct {
	Status     SessionStatus `json:"status"`
	Title      string        `json:"title"`
	Agent      string        `json:"agent,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// NewRunID returns a sortable run id: run-YYYYMMDD-HHMMSS-xxxxxx.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102-150405"), uuid.New().String()[:6])
}

// New creates a running journal in dir for the given snapshot and persists it.
func New(dir, runID, strategy string, snapshot []string, now time.Time) (*RunState, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	s := &RunState{
		RunID:     runID,
		Strategy:  strategy,
		StartedAt: now,
		Status:    RunRunning,
		Snapshot:  append([]string(nil), snapshot...),
		Sessions:  make(map[string]*SessionState, len(snapshot)),
		dir:       dir,
	}
	for _, id := range snapshot {
		s.Sessions[id] = &SessionState{Status: StatusPending}
	}

	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the current journal from dir.
func Load(dir string) (*RunState, error) {
	return loadFrom(filepath.Join(dir, stateFile), dir)
}

func loadFrom(path, dir string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]*SessionState)
	}
	s.dir = dir
	return &s, nil
}

// Exists reports whether dir holds a current journal.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, stateFile))
	return err == nil
}

// Save persists the journal.
func (s *RunState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *RunState) saveLocked() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, stateFile), data, 0644)
}

// UpdateSession replaces a task's session and saves.
func (s *RunState) UpdateSession(taskID string, ss *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sessions[taskID] = ss
	return s.saveLocked()
}

// GetSession returns the session for a task.
func (s *RunState) GetSession(taskID string) *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sessions[taskID]
}

// SetCounts records the batch counters and saves.
func (s *RunState) SetCounts(processed, successful, failed, skipped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed, s.Successful, s.Failed, s.Skipped = processed, successful, failed, skipped
	return s.saveLocked()
}

// Finish sets the final status, with an optional error, and saves.
func (s *RunState) Finish(status string, runErr error, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.FinishedAt = &now
	if runErr != nil {
		s.Error = runErr.Error()
	}
	return s.saveLocked()
}

// Archive moves the current journal to history/<run id>/.
func Archive(dir string) error {
	st, err := Load(dir)
	if err != nil {
		return err
	}
	if st.RunID == "" {
		return fmt.Errorf("state in %s has no run id", dir)
	}

	dest := filepath.Join(dir, historyDir, st.RunID)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := os.Rename(filepath.Join(dir, stateFile), filepath.Join(dest, stateFile)); err != nil {
		return fmt.Errorf("archive state: %w", err)
	}
	return nil
}

// LoadArchived reads the journal of a finished run.
func LoadArchived(dir, runID string) (*RunState, error) {
	hdir := filepath.Join(dir, historyDir, runID)
	return loadFrom(filepath.Join(hdir, stateFile), hdir)
}

// ListHistory returns archived run ids, newest first.
func ListHistory(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, historyDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// LoadPrevious returns the most recent archived run.
func LoadPrevious(dir string) (*RunState, error) {
	ids, err := ListHistory(dir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no previous runs in %s", dir)
	}
	return LoadArchived(dir, ids[0])
}

// HistoryExists reports whether any run has been archived.
func HistoryExists(dir string) bool {
	ids, err := ListHistory(dir)
	return err == nil && len(ids) > 0
}

// CleanCurrent removes the current journal but keeps history.
func CleanCurrent(dir string) error {
	err := os.Remove(filepath.Join(dir, stateFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clean removes the journal directory, history included.
func Clean(dir string) error {
	return os.RemoveAll(dir)
}
