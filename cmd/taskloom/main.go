package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/config"
	"github.com/joshharrison/taskloom/internal/executor"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagProject string
	flagJSON    bool
	flagSafe    bool
	flagQuiet   bool
	flagExec    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskloom",
		Short: "Keep a task list on disk and work through it with Claude",
		Long: `Taskloom keeps a project's tasks in tasks/tasks.json, merges edits made by
other processes, and runs pending tasks one at a time through a Claude agent
picked for each task.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "C", ".", "Project directory")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(reopenCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(archiveCmd(true))
	rootCmd.AddCommand(archiveCmd(false))
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runOneCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Red("Error:"), err)
		os.Exit(1)
	}
}

func projectDir() (string, error) {
	abs, err := filepath.Abs(flagProject)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return abs, nil
}

// env is what most commands need: the project, its config and its store.
type env struct {
	project string
	cfg     *config.Config
	store   *store.Store
}

func openEnv() (*env, error) {
	project, err := projectDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(project)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.DefaultPath(project))
	if err != nil {
		return nil, err
	}
	return &env{project: project, cfg: cfg, store: st}, nil
}

// newExecutor builds the executor named by the config, with command-line
// overrides applied.
func (e *env) newExecutor() (pump.Executor, error) {
	kind := e.cfg.Executor
	if flagExec != "" {
		kind = flagExec
	}
	models := executor.Models{
		agent.Complex: e.cfg.ModelFor(agent.Complex),
		agent.Simple:  e.cfg.ModelFor(agent.Simple),
	}

	switch kind {
	case config.ExecutorCLI:
		return executor.NewCLI(executor.CLIConfig{
			ClaudeBin:      e.cfg.ClaudeBin,
			Safe:           e.cfg.Safe || flagSafe,
			Quiet:          e.cfg.Quiet || flagQuiet || flagJSON,
			Timeout:        e.cfg.Timeout,
			ProjectDir:     e.project,
			LogDir:         config.LogsDir(e.project),
			PromptTemplate: e.cfg.PromptTemplate,
			Models:         models,
		}), nil
	case config.ExecutorAPI:
		api, err := executor.NewAPI(executor.APIConfig{
			APIKey:         os.Getenv(e.cfg.API.KeyEnv),
			Models:         models,
			ProjectDir:     e.project,
			PromptTemplate: e.cfg.PromptTemplate,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set %s)", err, e.cfg.API.KeyEnv)
		}
		return api, nil
	default:
		return nil, fmt.Errorf("unknown executor %q (use %s or %s)", kind, config.ExecutorCLI, config.ExecutorAPI)
	}
}

func (e *env) newPump() (*pump.Pump, error) {
	exec, err := e.newExecutor()
	if err != nil {
		return nil, err
	}
	return pump.New(e.store, exec, pump.WithJournal(config.RunsDir(e.project))), nil
}

func addExecutorFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagExec, "executor", "", "Executor to use: cli or api (default from config)")
	cmd.Flags().BoolVar(&flagSafe, "safe", false, "Do NOT pass --dangerously-skip-permissions to Claude")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress streaming agent output")
}

// signalContext is cancelled on the first SIGINT or SIGTERM. A second signal
// exits immediately.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Received interrupt, stopping after the current task (interrupt again to quit now)..."))
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// splitCSV splits a comma-separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
