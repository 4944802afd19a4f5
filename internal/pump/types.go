package pump

import (
	"context"
	"time"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/task"
)

// Outcome is what an executor reports for one task.
type Outcome struct {
	OK     bool
	Output string // success payload, stored as the task result
	Reason string // failure reason when !OK
}

// Executor runs a task with the given agent. Returning an error and returning
// an Outcome with OK=false are both failures.
type Executor interface {
	Execute(ctx context.Context, t task.Task, id agent.Identity) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t task.Task, id agent.Identity) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, t task.Task, id agent.Identity) (Outcome, error) {
	return f(ctx, t, id)
}

// Store is the part of the task store the pump needs.
type Store interface {
	GetAll() []task.Task
	Get(id string) (task.Task, bool)
	Update(id string, p task.Patch) (task.Task, error)
}

// Summary counts what a batch did.
type Summary struct {
	RunID      string `json:"runId,omitempty"`
	Processed  int    `json:"processed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

// Progress describes the running batch, or the last one once it has ended.
type Progress struct {
	Running   bool      `json:"running"`
	RunID     string    `json:"runId,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Total     int       `json:"total"`
	Current   string    `json:"current,omitempty"` // id of the task being executed
	Summary   Summary   `json:"summary"`
	Error     string    `json:"error,omitempty"`
}
