package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/config"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/reporter"
	"github.com/joshharrison/taskloom/internal/state"
	"github.com/joshharrison/taskloom/internal/ui"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		flagStrategy string
		flagDryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every PENDING task, one at a time",
		Long: `Run snapshots the PENDING tasks and hands them to Claude one after another,
waiting for each result to be saved before starting the next. Failed tasks
move to NEEDS_REVIEW and the batch carries on.

An interrupt stops the batch after the current task finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := agent.ParseStrategy(flagStrategy)
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}

			if flagDryRun {
				pending := pump.New(e.store, nil).Pending()
				if flagJSON {
					type planned struct {
						ID     string         `json:"id"`
						Title  string         `json:"title"`
						Agent  agent.Identity `json:"agent"`
						Reason string         `json:"reason"`
					}
					out := make([]planned, 0, len(pending))
					for _, t := range pending {
						id, why := agent.Explain(t)
						if strategy.Pinned != "" {
							id, why = strategy.Pinned, "pinned"
						}
						out = append(out, planned{ID: t.ID, Title: t.Title, Agent: id, Reason: why})
					}
					return outputJSON(out)
				}
				reporter.PrintDryRun(os.Stdout, pending, strategy)
				return nil
			}

			p, err := e.newPump()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			if !flagJSON {
				ui.PrintLogo()
			}
			start := time.Now()
			sum, runErr := p.RunBatch(ctx, strategy)

			if flagJSON {
				if err := outputJSON(sum); err != nil {
					return err
				}
				return runErr
			}
			if runErr != nil {
				fmt.Fprintln(os.Stderr, reporter.BatchSummary(sum, time.Since(start), runErr))
				return runErr
			}
			fmt.Println(reporter.BatchSummary(sum, time.Since(start), nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&flagStrategy, "strategy", "auto", "Agent strategy: auto, complex or simple")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Show which agent each task would get without executing")
	addExecutorFlags(cmd)
	return cmd
}

func runOneCmd() *cobra.Command {
	var flagAgent string

	cmd := &cobra.Command{
		Use:   "run-one <id>",
		Short: "Execute a single PENDING task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id agent.Identity
			if flagAgent != "" && flagAgent != "auto" {
				var err error
				if id, err = agent.ParseIdentity(flagAgent); err != nil {
					return err
				}
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			taskID, err := resolveID(e.store, args[0])
			if err != nil {
				return err
			}
			t, _ := e.store.Get(taskID)

			p, err := e.newPump()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			updated, err := p.RunOne(ctx, t, id)
			if err != nil {
				return err
			}
			return printTask(updated)
		},
	}

	cmd.Flags().StringVar(&flagAgent, "agent", "auto", "Agent: auto, complex or simple")
	addExecutorFlags(cmd)
	return cmd
}

func statusCmd() *cobra.Command {
	var (
		flagPrevious bool
		flagRunID    string
		flagHistory  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the progress of the current or a past batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagPrevious && flagRunID != "" {
				return fmt.Errorf("--previous and --run are mutually exclusive")
			}
			project, err := projectDir()
			if err != nil {
				return err
			}
			dir := config.RunsDir(project)

			if flagHistory {
				ids, err := state.ListHistory(dir)
				if err != nil {
					return err
				}
				if flagJSON {
					if ids == nil {
						ids = []string{}
					}
					return outputJSON(ids)
				}
				if len(ids) == 0 {
					fmt.Println(ui.Dim("No finished batches."))
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			}

			var st *state.RunState
			switch {
			case flagRunID != "":
				st, err = state.LoadArchived(dir, flagRunID)
				if err != nil {
					return fmt.Errorf("load run %s: %w", flagRunID, err)
				}
			case flagPrevious || !state.Exists(dir):
				if !state.HistoryExists(dir) {
					return fmt.Errorf("no batch has run in this project (no %s)", dir)
				}
				st, err = state.LoadPrevious(dir)
				if err != nil {
					return fmt.Errorf("load previous run: %w", err)
				}
			default:
				st, err = state.Load(dir)
				if err != nil {
					return err
				}
			}

			rpt := reporter.New(st)
			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			rpt.PrintStatus(os.Stdout)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagPrevious, "previous", false, "Show the most recent finished batch")
	cmd.Flags().StringVar(&flagRunID, "run", "", "Show a finished batch by run id")
	cmd.Flags().BoolVar(&flagHistory, "history", false, "List finished batch ids, newest first")
	return cmd
}

func cleanCmd() *cobra.Command {
	var flagAll bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove a stale batch journal",
		Long: `Clean removes the journal left behind by a batch that was killed before it
could finish. With --all the batch history is removed too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectDir()
			if err != nil {
				return err
			}
			dir := config.RunsDir(project)
			if flagAll {
				err = state.Clean(dir)
			} else {
				err = state.CleanCurrent(dir)
			}
			if err != nil {
				return fmt.Errorf("clean %s: %w", dir, err)
			}
			fmt.Printf("%s cleaned %s\n", ui.Green("✓"), dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "Remove batch history as well")
	return cmd
}
