// Package executor runs tasks through Claude, either by spawning the claude
// CLI or by calling the Messages API.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
)

// CLIConfig configures the claude CLI executor.
type CLIConfig struct {
	ClaudeBin      string // path to claude binary (default: "claude")
	Safe           bool   // keep permission prompts on
	Quiet          bool   // do not stream agent activity to Progress
	Timeout        time.Duration
	ProjectDir     string // working directory of the agent
	LogDir         string // per-task logs; default <ProjectDir>/.taskloom/logs
	PromptTemplate string
	Models         Models
	Progress       io.Writer // default stderr
}

// CLI spawns `claude -p` for each task and reads its stream-json output.
type CLI struct {
	cfg CLIConfig
}

// NewCLI creates a CLI executor, filling in defaults.
func NewCLI(cfg CLIConfig) *CLI {
	if cfg.ClaudeBin == "" {
		cfg.ClaudeBin = "claude"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.ProjectDir, ".taskloom", "logs")
	}
	if cfg.Models == nil {
		cfg.Models = DefaultModels()
	}
	if cfg.Progress == nil {
		cfg.Progress = os.Stderr
	}
	return &CLI{cfg: cfg}
}

// Config returns the effective configuration.
func (c *CLI) Config() CLIConfig {
	return c.cfg
}

// LogPath returns where the agent output for a task is written.
func (c *CLI) LogPath(taskID string) string {
	return filepath.Join(c.cfg.LogDir, taskID+".log")
}

func (c *CLI) args(prompt string, id agent.Identity) []string {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--model", c.cfg.Models.For(id),
	}
	if !c.cfg.Safe {
		args = append(args, "--dangerously-skip-permissions")
	}
	return args
}

// Execute runs the agent and waits for it. A non-zero exit, a timeout or an
// error result event is a failed Outcome; only a failure to start the process
// is returned as an error.
func (c *CLI) Execute(ctx context.Context, t task.Task, id agent.Identity) (pump.Outcome, error) {
	prompt, err := RenderPrompt(PromptDataFor(t, id, c.cfg.ProjectDir), c.cfg.PromptTemplate)
	if err != nil {
		return pump.Outcome{}, err
	}

	if err := os.MkdirAll(c.cfg.LogDir, 0755); err != nil {
		return pump.Outcome{}, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.Create(c.LogPath(t.ID))
	if err != nil {
		return pump.Outcome{}, fmt.Errorf("create log file: %w", err)
	}
	defer logFile.Close()

	taskCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(taskCtx, c.cfg.ClaudeBin, c.args(prompt, id)...)
	cmd.Dir = c.cfg.ProjectDir
	cmd.WaitDelay = 10 * time.Second

	var progress io.Writer = c.cfg.Progress
	if c.cfg.Quiet {
		progress = nil
	}
	sf := ui.NewStreamFormatter(t.ID, progress)
	cmd.Stdout = io.MultiWriter(logFile, sf)
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return pump.Outcome{}, fmt.Errorf("spawn agent: %w", err)
	}
	waitErr := cmd.Wait()
	sf.Flush()

	text, isError, hasResult := sf.Result()

	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		return pump.Outcome{Reason: fmt.Sprintf("agent timed out after %s", c.cfg.Timeout)}, nil
	}
	if waitErr != nil {
		reason := fmt.Sprintf("agent exited: %v", waitErr)
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			reason = fmt.Sprintf("agent exited with code %d", exitErr.ExitCode())
		}
		if text != "" {
			reason += ": " + text
		}
		return pump.Outcome{Reason: reason}, nil
	}
	if !hasResult {
		return pump.Outcome{Reason: "agent produced no result (see " + c.LogPath(t.ID) + ")"}, nil
	}
	if isError {
		if text == "" {
			text = "agent reported an error"
		}
		return pump.Outcome{Reason: text}, nil
	}
	if reason, failed := splitFailure(text); failed {
		return pump.Outcome{Reason: reason}, nil
	}
	return pump.Outcome{OK: true, Output: text}, nil
}

var _ pump.Executor = (*CLI)(nil)
