package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/state"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
)

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// PrintTasks writes a compact task table.
func PrintTasks(w io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintf(w, "%s\n", ui.Dim("No tasks."))
		return
	}
	for _, t := range tasks {
		approved := " "
		if t.HumanApproved {
			approved = ui.Green("✔")
		}
		archived := ""
		if t.Archived() {
			archived = ui.Dim(" [archived]")
		}
		fmt.Fprintf(w, "  %s %s %s %-8s %-14s %-50s %s%s\n",
			ui.StatusIcon(string(t.Status)),
			ui.BoldMagenta(ui.ShortID(t.ID)),
			approved,
			ui.PriorityLabel(string(t.Priority)),
			ui.Dim(string(t.Category)),
			truncate(t.Title, 50),
			ui.StatusLabel(string(t.Status)),
			archived)
	}
	fmt.Fprintf(w, "\n%s\n", ui.Dim(fmt.Sprintf("%d tasks", len(tasks))))
}

// PrintTask writes every field of one task.
func PrintTask(w io.Writer, t task.Task) {
	fmt.Fprintf(w, "%s %s\n", ui.StatusIcon(string(t.Status)), ui.Bold(t.Title))
	fmt.Fprintf(w, "%s\n", ui.Cyan("──────────────────────────"))
	fmt.Fprintf(w, "ID:        %s\n", t.ID)
	fmt.Fprintf(w, "Status:    %s\n", ui.StatusLabel(string(t.Status)))
	fmt.Fprintf(w, "Priority:  %s\n", ui.PriorityLabel(string(t.Priority)))
	fmt.Fprintf(w, "Category:  %s\n", t.Category)
	fmt.Fprintf(w, "Approved:  %t\n", t.HumanApproved)
	if t.AssignedAgent != "" {
		fmt.Fprintf(w, "Agent:     %s\n", t.AssignedAgent)
	}
	fmt.Fprintf(w, "Version:   %d\n", t.Metadata.Version)
	fmt.Fprintf(w, "Created:   %s\n", t.Metadata.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Modified:  %s\n", t.Metadata.LastModified.Format(time.RFC3339))
	if t.Metadata.ArchivedAt != nil {
		fmt.Fprintf(w, "Archived:  %s\n", t.Metadata.ArchivedAt.Format(time.RFC3339))
	}
	if len(t.AffectedFiles) > 0 {
		fmt.Fprintf(w, "Files:     %s\n", strings.Join(t.AffectedFiles, ", "))
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if t.Result != "" {
		label := ui.Bold("Result:")
		if strings.HasPrefix(t.Result, "ERROR:") {
			label = ui.BoldRed("Result:")
		}
		fmt.Fprintf(w, "\n%s\n%s\n", label, t.Result)
	}
}

// PrintStats writes the collection counters.
func PrintStats(w io.Writer, st store.Stats) {
	fmt.Fprintf(w, "%s\n", ui.BoldCyan("📋 Task Statistics"))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════"))
	fmt.Fprintf(w, "Total:     %d (%d active, %d archived)\n", st.Total, st.Active, st.Archived)
	fmt.Fprintf(w, "Approved:  %d\n\n", st.Approved)

	fmt.Fprintf(w, "%s\n", ui.Bold("By status"))
	for _, s := range task.Statuses {
		fmt.Fprintf(w, "  %s %-14s %d\n", ui.StatusIcon(string(s)), s, st.ByStatus[s])
	}
	fmt.Fprintf(w, "%s\n", ui.Bold("By priority"))
	for _, p := range task.Priorities {
		fmt.Fprintf(w, "    %-14s %d\n", p, st.ByPriority[p])
	}
	fmt.Fprintf(w, "%s\n", ui.Bold("By category"))
	for _, c := range task.Categories {
		if n := st.ByCategory[c]; n > 0 {
			fmt.Fprintf(w, "    %-14s %d\n", c, n)
		}
	}
}

// PrintDryRun lists what a batch would run and which agent each task gets.
func PrintDryRun(w io.Writer, tasks []task.Task, strategy agent.Strategy) {
	fmt.Fprintf(w, "%s %s\n\n", ui.BoldCyan("🔍 Dry run"), ui.Dim(fmt.Sprintf("(%d tasks, strategy %s)", len(tasks), strategy)))
	for i, t := range tasks {
		id, why := agent.Explain(t)
		if strategy.Pinned != "" {
			id, why = strategy.Pinned, "pinned"
		}
		fmt.Fprintf(w, "  %2d. %s %-50s → %s %s\n", i+1, ui.BoldMagenta(ui.ShortID(t.ID)), truncate(t.Title, 50), ui.Cyan(string(id)), ui.Dim("("+why+")"))
	}
}

// BatchSummary renders the counters of a finished batch.
func BatchSummary(sum pump.Summary, elapsed time.Duration, runErr error) string {
	var b strings.Builder

	statusText := ui.BoldGreen("completed")
	statusEmoji := "✅"
	switch {
	case runErr != nil && strings.HasPrefix(runErr.Error(), "cancelled"):
		statusText = ui.Yellow("cancelled")
		statusEmoji = "🚫"
	case runErr != nil:
		statusText = ui.BoldRed("aborted")
		statusEmoji = "❌"
	case sum.Failed > 0:
		statusText = ui.BoldYellow("completed with failures")
		statusEmoji = "⚠️"
	}

	fmt.Fprintf(&b, "\n%s %s\n", statusEmoji, ui.BoldCyan("Batch Complete"))
	fmt.Fprintf(&b, "%s\n", ui.Cyan("══════════════════"))
	if sum.RunID != "" {
		fmt.Fprintf(&b, "Run:       %s\n", ui.Dim(sum.RunID))
	}
	fmt.Fprintf(&b, "Duration:  %s\n", ui.Bold(elapsed.Truncate(time.Second)))
	fmt.Fprintf(&b, "Tasks:     %d processed: %s, %s, %s\n",
		sum.Processed,
		ui.Green(fmt.Sprintf("%d completed", sum.Successful)),
		ui.Red(fmt.Sprintf("%d need review", sum.Failed)),
		ui.Yellow(fmt.Sprintf("%d skipped", sum.Skipped)))
	fmt.Fprintf(&b, "Status:    %s\n", statusText)
	if runErr != nil {
		fmt.Fprintf(&b, "Error:     %s\n", ui.Red(runErr.Error()))
	}
	return b.String()
}

// Run renders a batch journal.
type Run struct {
	State *state.RunState
}

// New creates a Run reporter.
func New(st *state.RunState) *Run {
	return &Run{State: st}
}

// duration is the finish time minus start, or the time elapsed so far.
func (r *Run) duration() time.Duration {
	if r.State.FinishedAt != nil {
		return r.State.FinishedAt.Sub(r.State.StartedAt).Truncate(time.Second)
	}
	return time.Since(r.State.StartedAt).Truncate(time.Second)
}

// PrintStatus writes the journal as a table in snapshot order.
func (r *Run) PrintStatus(w io.Writer) {
	st := r.State
	done := st.Processed + st.Skipped
	fmt.Fprintf(w, "%s %s — %d of %d tasks done",
		ui.BoldCyan("📋 Taskloom"), ui.Dim(st.RunID), done, len(st.Snapshot))
	if st.Failed > 0 {
		fmt.Fprintf(w, " %s", ui.Red(fmt.Sprintf("(%d need review)", st.Failed)))
	}
	fmt.Fprintf(w, " %s\n", ui.Dim(fmt.Sprintf("[%s, %s]", st.Status, r.duration())))
	if st.Error != "" {
		fmt.Fprintf(w, "%s %s\n", ui.Red("Error:"), st.Error)
	}
	fmt.Fprintln(w)

	for _, id := range st.Snapshot {
		r.printSession(w, id)
	}
}

func (r *Run) printSession(w io.Writer, id string) {
	ss := r.State.GetSession(id)
	if ss == nil {
		ss = &state.SessionState{Status: state.StatusPending}
	}

	var dur string
	switch ss.Status {
	case state.StatusRunning:
		if ss.StartedAt != nil {
			dur = ui.Cyan(fmt.Sprintf("[running %s]", time.Since(*ss.StartedAt).Truncate(time.Second)))
		}
	case state.StatusSucceeded, state.StatusFailed:
		if ss.StartedAt != nil && ss.FinishedAt != nil {
			dur = ui.Dim(fmt.Sprintf("[%s]", ss.FinishedAt.Sub(*ss.StartedAt).Truncate(time.Second)))
		}
	case state.StatusSkipped:
		dur = ui.Yellow("[skipped]")
	}

	fmt.Fprintf(w, "    %s %s %-40s %-14s %s\n",
		ui.StatusIcon(string(ss.Status)),
		ui.BoldMagenta(ui.ShortID(id)),
		truncate(ss.Title, 40),
		ui.Dim(ss.Agent),
		dur)
	if ss.Status == state.StatusFailed && ss.Error != "" {
		fmt.Fprintf(w, "      %s\n", ui.Red(truncate(ss.Error, 100)))
	}
}

// JSON returns the journal in machine-readable form.
func (r *Run) JSON() ([]byte, error) {
	type session struct {
		TaskID string `json:"task_id"`
		Title  string `json:"title"`
		Status string `json:"status"`
		Agent  string `json:"agent,omitempty"`
		Error  string `json:"error,omitempty"`
	}
	type output struct {
		RunID      string    `json:"run_id"`
		Status     string    `json:"status"`
		Strategy   string    `json:"strategy"`
		Elapsed    string    `json:"elapsed"`
		Processed  int       `json:"processed"`
		Successful int       `json:"successful"`
		Failed     int       `json:"failed"`
		Skipped    int       `json:"skipped"`
		Tasks      []session `json:"tasks"`
	}

	st := r.State
	o := output{
		RunID:      st.RunID,
		Status:     st.Status,
		Strategy:   st.Strategy,
		Elapsed:    r.duration().String(),
		Processed:  st.Processed,
		Successful: st.Successful,
		Failed:     st.Failed,
		Skipped:    st.Skipped,
		Tasks:      []session{},
	}
	for _, id := range st.Snapshot {
		s := session{TaskID: id, Status: string(state.StatusPending)}
		if ss := st.GetSession(id); ss != nil {
			s.Title, s.Status, s.Agent, s.Error = ss.Title, string(ss.Status), ss.Agent, ss.Error
		}
		o.Tasks = append(o.Tasks, s)
	}
	return json.MarshalIndent(o, "", "  ")
}
