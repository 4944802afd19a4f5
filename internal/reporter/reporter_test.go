package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/state"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/task"
)

func init() {
	color.NoColor = true
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeTasks() []task.Task {
	archived := now
	return []task.Task{
		{
			ID: "aaaaaaaa-1111", Title: "Add login form", Status: task.StatusCompleted,
			Priority: task.PriorityHigh, Category: task.CategoryFrontend, HumanApproved: true,
			AssignedAgent: "claude-haiku", Result: "Done",
			Metadata: task.Metadata{Version: 3, CreatedAt: now, LastModified: now},
		},
		{
			ID: "bbbbbbbb-2222", Title: strings.Repeat("very long title ", 6), Status: task.StatusNeedsReview,
			Priority: task.PriorityCritical, Category: task.CategoryDatabase, Result: "ERROR: migration failed",
			Metadata: task.Metadata{Version: 2, CreatedAt: now, LastModified: now, ArchivedAt: &archived},
		},
	}
}

func makeState() *state.RunState {
	started := now.Add(-2 * time.Minute)
	finished := now
	return &state.RunState{
		RunID:      "run-20260301-115800-abcdef",
		Strategy:   "auto",
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     state.RunCompleted,
		Snapshot:   []string{"a", "b", "c"},
		Processed:  2,
		Successful: 1,
		Failed:     1,
		Skipped:    1,
		Sessions: map[string]*state.SessionState{
			"a": {Status: state.StatusSucceeded, Title: "Task A", Agent: "claude-opus", StartedAt: &started, FinishedAt: &finished},
			"b": {Status: state.StatusFailed, Title: "Task B", Agent: "claude-haiku", StartedAt: &started, FinishedAt: &finished, Error: "tests failed"},
			"c": {Status: state.StatusSkipped, Title: "Task C"},
		},
	}
}

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	PrintTasks(&buf, makeTasks())
	out := buf.String()

	for _, want := range []string{"aaaaaaaa", "Add login form", "COMPLETED", "[archived]", "...", "2 tasks"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "aaaaaaaa-1111") {
		t.Error("table should show short ids")
	}

	buf.Reset()
	PrintTasks(&buf, nil)
	if !strings.Contains(buf.String(), "No tasks.") {
		t.Errorf("expected empty message, got %q", buf.String())
	}
}

func TestPrintTask(t *testing.T) {
	var buf bytes.Buffer
	PrintTask(&buf, makeTasks()[1])
	out := buf.String()
	for _, want := range []string{"bbbbbbbb-2222", "CRITICAL", "Archived:", "ERROR: migration failed", "Version:   2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStats(t *testing.T) {
	st := store.Stats{
		Total: 3, Active: 2, Archived: 1, Approved: 1,
		ByStatus:   map[task.Status]int{task.StatusPending: 1, task.StatusCompleted: 1},
		ByPriority: map[task.Priority]int{task.PriorityHigh: 2},
		ByCategory: map[task.Category]int{task.CategoryAPI: 2},
	}
	var buf bytes.Buffer
	PrintStats(&buf, st)
	out := buf.String()
	for _, want := range []string{"Total:     3 (2 active, 1 archived)", "NEEDS_REVIEW", "API"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "FRONTEND") {
		t.Error("empty categories should be omitted")
	}
}

func TestPrintDryRun(t *testing.T) {
	tasks := []task.Task{
		{ID: "t1", Title: "fix typo", Priority: task.PriorityLow, Category: task.CategoryConfig},
	}
	var buf bytes.Buffer
	PrintDryRun(&buf, tasks, agent.StrategyAuto)
	if !strings.Contains(buf.String(), "claude-haiku") || !strings.Contains(buf.String(), "simple signals only") {
		t.Errorf("unexpected dry run:\n%s", buf.String())
	}

	buf.Reset()
	PrintDryRun(&buf, tasks, agent.Pin(agent.Complex))
	if !strings.Contains(buf.String(), "claude-opus") || !strings.Contains(buf.String(), "pinned") {
		t.Errorf("unexpected pinned dry run:\n%s", buf.String())
	}
}

func TestBatchSummary(t *testing.T) {
	sum := pump.Summary{RunID: "run-x", Processed: 3, Successful: 2, Failed: 1}
	out := BatchSummary(sum, 90*time.Second, nil)
	for _, want := range []string{"run-x", "1m30s", "2 completed", "1 need review", "completed with failures"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	out = BatchSummary(sum, time.Second, errors.New("cancelled: context canceled"))
	if !strings.Contains(out, "cancelled") {
		t.Errorf("expected cancelled status:\n%s", out)
	}
	out = BatchSummary(sum, time.Second, errors.New("record task a: disk full"))
	if !strings.Contains(out, "aborted") || !strings.Contains(out, "disk full") {
		t.Errorf("expected aborted status:\n%s", out)
	}
}

func TestRunPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	New(makeState()).PrintStatus(&buf)
	out := buf.String()

	for _, want := range []string{"run-20260301-115800-abcdef", "3 of 3 tasks done", "(1 need review)", "Task A", "claude-haiku", "tests failed", "[skipped]", "[2m0s]"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestRunJSON(t *testing.T) {
	data, err := New(makeState()).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var got struct {
		RunID   string `json:"run_id"`
		Elapsed string `json:"elapsed"`
		Tasks   []struct {
			TaskID string `json:"task_id"`
			Status string `json:"status"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != "run-20260301-115800-abcdef" || got.Elapsed != "2m0s" {
		t.Errorf("unexpected header: %+v", got)
	}
	if len(got.Tasks) != 3 || got.Tasks[1].Status != "failed" {
		t.Errorf("unexpected tasks: %+v", got.Tasks)
	}
}
