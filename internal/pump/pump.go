package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/state"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
)

// ErrBusy is returned when a batch or single run is already in progress.
var ErrBusy = errors.New("a run is already in progress")

type taskResult int

const (
	resultSkipped taskResult = iota
	resultSucceeded
	resultFailed
)

// Pump drains PENDING tasks through an Executor one at a time.
type Pump struct {
	store      Store
	exec       Executor
	log        io.Writer
	now        func() time.Time
	journalDir string

	running atomic.Bool

	mu       sync.Mutex
	progress Progress
	started  bool
}

// Option configures a Pump.
type Option func(*Pump)

// WithLog sets where progress lines are written. Defaults to stderr.
func WithLog(w io.Writer) Option {
	return func(p *Pump) { p.log = w }
}

// WithJournal records each batch under dir using the state package.
func WithJournal(dir string) Option {
	return func(p *Pump) { p.journalDir = dir }
}

// WithClock overrides time.Now for journal timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(p *Pump) { p.now = now }
}

// New creates a Pump over st that runs tasks with exec.
func New(st Store, exec Executor, opts ...Option) *Pump {
	p := &Pump{
		store: st,
		exec:  exec,
		log:   os.Stderr,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pending returns the tasks a batch started now would run, in document order.
func (p *Pump) Pending() []task.Task {
	var out []task.Task
	for _, t := range p.store.GetAll() {
		if t.Status == task.StatusPending && !t.Archived() {
			out = append(out, t)
		}
	}
	return out
}

// Running reports whether a run is in progress.
func (p *Pump) Running() bool {
	return p.running.Load()
}

// Current returns the progress of the running batch, or of the last batch
// if none is running. ok is false if no batch has started yet.
func (p *Pump) Current() (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress, p.started
}

// RunBatch executes every task that is PENDING when the batch starts, in
// order, waiting for each outcome to be stored before starting the next.
// Executor failures move the task to NEEDS_REVIEW and the batch continues.
// ctx is checked between tasks only; a store write failure ends the batch.
func (p *Pump) RunBatch(ctx context.Context, strategy agent.Strategy) (Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Summary{}, ErrBusy
	}
	defer p.running.Store(false)

	snapshot := p.Pending()
	ids := make([]string, len(snapshot))
	for i, t := range snapshot {
		ids[i] = t.ID
	}

	startedAt := p.now()
	sum := Summary{RunID: state.NewRunID(startedAt)}
	p.mu.Lock()
	p.progress = Progress{
		Running:   true,
		RunID:     sum.RunID,
		Strategy:  strategy.String(),
		StartedAt: startedAt,
		Total:     len(snapshot),
	}
	p.started = true
	p.mu.Unlock()

	journal := p.openJournal(sum.RunID, strategy, ids, startedAt)

	fmt.Fprintf(p.log, "\n🚀 %s (%d tasks, strategy %s)\n", ui.BoldCyan("Batch started"), len(snapshot), strategy)

	var runErr error
	for i, t := range snapshot {
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(p.log, "  %s batch cancelled, %d tasks left pending\n", ui.Yellow("⚠️  Warning:"), len(snapshot)-i)
			runErr = fmt.Errorf("cancelled: %w", err)
			break
		}

		res, _, err := p.runTask(ctx, t.ID, strategy, journal)
		if err != nil {
			fmt.Fprintf(p.log, "  %s %v\n", ui.Red("❌ Batch aborted:"), err)
			runErr = err
			break
		}
		switch res {
		case resultSkipped:
			sum.Skipped++
		case resultSucceeded:
			sum.Processed++
			sum.Successful++
		case resultFailed:
			sum.Processed++
			sum.Failed++
		}

		p.mu.Lock()
		p.progress.Summary = sum
		p.progress.Current = ""
		p.mu.Unlock()
		if journal != nil {
			p.warn(journal.SetCounts(sum.Processed, sum.Successful, sum.Failed, sum.Skipped), "journal counts")
		}
	}

	p.mu.Lock()
	p.progress.Running = false
	p.progress.Current = ""
	p.progress.Summary = sum
	if runErr != nil {
		p.progress.Error = runErr.Error()
	}
	p.mu.Unlock()

	p.closeJournal(ctx, journal, runErr)
	return sum, runErr
}

// RunOne executes a single PENDING task with the given agent, or with Select
// when id is empty, and returns the stored result.
func (p *Pump) RunOne(ctx context.Context, t task.Task, id agent.Identity) (task.Task, error) {
	if !p.running.CompareAndSwap(false, true) {
		return task.Task{}, ErrBusy
	}
	defer p.running.Store(false)

	strategy := agent.StrategyAuto
	if id != "" {
		strategy = agent.Pin(id)
	}

	res, updated, err := p.runTask(ctx, t.ID, strategy, nil)
	if err != nil {
		return updated, err
	}
	if res == resultSkipped {
		if updated.ID == "" {
			return updated, &store.NotFoundError{ID: t.ID}
		}
		return updated, fmt.Errorf("%w: task %s is %s, not PENDING", task.ErrInvalidTransition, t.ID, updated.Status)
	}
	return updated, nil
}

// runTask approves, executes and records one task. The returned error is set
// only when the store could not be written.
func (p *Pump) runTask(ctx context.Context, id string, strategy agent.Strategy, journal *state.RunState) (taskResult, task.Task, error) {
	cur, ok := p.store.Get(id)
	if !ok || cur.Status != task.StatusPending || cur.Archived() {
		reason := "deleted"
		if ok {
			reason = "no longer pending"
		}
		fmt.Fprintf(p.log, "  ⊘ %s %s\n", ui.TaskPrefix(id), ui.Yellow("Skipped ("+reason+")"))
		p.journalSession(journal, id, &state.SessionState{Status: state.StatusSkipped, Title: cur.Title, Error: reason})
		return resultSkipped, cur, nil
	}

	identity := strategy.Resolve(cur)
	fmt.Fprintf(p.log, "  ▶ %s %s %s\n", ui.TaskPrefix(id), cur.Title, ui.Dim("→ "+string(identity)))

	approved, err := p.store.Update(id, task.Patch{
		HumanApproved: task.Ptr(true),
		AssignedAgent: task.Ptr(string(identity)),
	})
	if err != nil {
		return resultSkipped, cur, fmt.Errorf("approve task %s: %w", id, err)
	}

	startedAt := p.now()
	p.journalSession(journal, id, &state.SessionState{
		Status:    state.StatusRunning,
		Title:     approved.Title,
		Agent:     string(identity),
		StartedAt: &startedAt,
	})
	p.mu.Lock()
	p.progress.Current = id
	p.mu.Unlock()

	// The executor is not cancelled with the batch: a dispatched task runs to
	// its outcome.
	outcome, execErr := p.execute(context.WithoutCancel(ctx), approved, identity)

	finishedAt := p.now()
	elapsed := ui.Dim(fmt.Sprintf("(%.1fs)", finishedAt.Sub(startedAt).Seconds()))

	res, event, result := resultSucceeded, task.EventSucceeded, outcome.Output
	var reason string
	if execErr != nil || !outcome.OK {
		reason = failureReason(outcome, execErr)
		res, event, result = resultFailed, task.EventFailed, "ERROR: "+reason
	}

	patch, err := task.StatusPatch(approved.Status, event)
	if err != nil {
		return res, approved, fmt.Errorf("record task %s: %w", id, err)
	}
	patch.Result = &result

	updated, err := p.store.Update(id, patch)
	switch {
	case errors.Is(err, task.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound):
		// Another process moved or removed the task while it ran.
		fmt.Fprintf(p.log, "  %s %s outcome not recorded: %v\n", ui.Yellow("⚠️  Warning:"), ui.TaskPrefix(id), err)
		updated = approved
	case err != nil:
		return res, approved, fmt.Errorf("record task %s: %w", id, err)
	}

	ss := &state.SessionState{
		Status:     state.StatusSucceeded,
		Title:      approved.Title,
		Agent:      string(identity),
		StartedAt:  &startedAt,
		FinishedAt: &finishedAt,
	}
	if res == resultSucceeded {
		fmt.Fprintf(p.log, "  ✅ %s %s %s\n", ui.TaskPrefix(id), ui.Green("Completed"), elapsed)
	} else {
		ss.Status = state.StatusFailed
		ss.Error = reason
		fmt.Fprintf(p.log, "  ❌ %s %s %s\n", ui.TaskPrefix(id), ui.Red("Needs review: "+reason), elapsed)
	}
	p.journalSession(journal, id, ss)

	return res, updated, nil
}

// execute calls the executor, turning a panic into an error.
func (p *Pump) execute(ctx context.Context, t task.Task, id agent.Identity) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = Outcome{}, fmt.Errorf("executor panic: %v", r)
		}
	}()
	return p.exec.Execute(ctx, t, id)
}

func failureReason(o Outcome, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case o.Reason != "":
		return o.Reason
	default:
		return "executor reported failure"
	}
}

func (p *Pump) openJournal(runID string, strategy agent.Strategy, ids []string, now time.Time) *state.RunState {
	if p.journalDir == "" {
		return nil
	}
	journal, err := state.New(p.journalDir, runID, strategy.String(), ids, now)
	if err != nil {
		p.warn(err, "open run journal")
		return nil
	}
	return journal
}

func (p *Pump) closeJournal(ctx context.Context, journal *state.RunState, runErr error) {
	if journal == nil {
		return
	}
	status := state.RunCompleted
	switch {
	case runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()):
		status = state.RunCancelled
	case runErr != nil:
		status = state.RunAborted
	}
	p.warn(journal.Finish(status, runErr, p.now()), "finish run journal")
	p.warn(state.Archive(p.journalDir), "archive run journal")
}

func (p *Pump) journalSession(journal *state.RunState, id string, ss *state.SessionState) {
	if journal == nil {
		return
	}
	p.warn(journal.UpdateSession(id, ss), "journal session")
}

// warn logs a journal problem; the journal never fails a run.
func (p *Pump) warn(err error, what string) {
	if err != nil {
		fmt.Fprintf(p.log, "  %s %s: %v\n", ui.Yellow("⚠️  Warning:"), what, err)
	}
}
