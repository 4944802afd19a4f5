package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshharrison/taskloom/internal/config"
	"github.com/joshharrison/taskloom/internal/reporter"
	"github.com/joshharrison/taskloom/internal/store"
	"github.com/joshharrison/taskloom/internal/task"
	"github.com/joshharrison/taskloom/internal/ui"
	"github.com/spf13/cobra"
)

// resolveID accepts a full task id or a unique prefix of one, so the short
// ids printed by list can be typed back.
func resolveID(st *store.Store, arg string) (string, error) {
	if _, ok := st.Get(arg); ok {
		return arg, nil
	}
	var matches []string
	for _, t := range st.GetAll() {
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &store.NotFoundError{ID: arg}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("task id prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func printTask(t task.Task) error {
	if flagJSON {
		return outputJSON(t)
	}
	reporter.PrintTask(os.Stdout, t)
	return nil
}

func initCmd() *cobra.Command {
	var flagForce bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the task file and a project config",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectDir()
			if err != nil {
				return err
			}

			cfgPath := config.ProjectConfigPath(project)
			if _, err := os.Stat(cfgPath); err == nil && !flagForce {
				fmt.Printf("%s %s already exists (use --force to overwrite)\n", ui.Dim("‣"), cfgPath)
			} else {
				if err := config.Default().Save(cfgPath); err != nil {
					return err
				}
				fmt.Printf("%s wrote %s\n", ui.Green("✓"), cfgPath)
			}

			st, err := store.Open(store.DefaultPath(project))
			if err != nil {
				return err
			}
			if _, err := os.Stat(st.Path()); os.IsNotExist(err) {
				if err := st.Save(); err != nil {
					return err
				}
				fmt.Printf("%s wrote %s\n", ui.Green("✓"), st.Path())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config")
	return cmd
}

func addCmd() *cobra.Command {
	var (
		flagDescription string
		flagPriority    string
		flagCategory    string
		flagFiles       string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a PENDING task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			t, err := e.store.Create(task.CreateInput{
				Title:         strings.Join(args, " "),
				Description:   flagDescription,
				Priority:      task.Priority(strings.ToUpper(flagPriority)),
				Category:      task.Category(strings.ToUpper(flagCategory)),
				AffectedFiles: splitCSV(flagFiles),
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(t)
			}
			fmt.Printf("%s created %s %s\n", ui.Green("✓"), ui.BoldMagenta(ui.ShortID(t.ID)), t.Title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagDescription, "description", "d", "", "Task description")
	cmd.Flags().StringVarP(&flagPriority, "priority", "p", "", "LOW, MEDIUM, HIGH or CRITICAL (default MEDIUM)")
	cmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Task category (default GENERAL)")
	cmd.Flags().StringVar(&flagFiles, "files", "", "Comma-separated affected files")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		flagStatus   string
		flagPriority string
		flagCategory string
		flagSearch   string
		flagApproved string
		flagAll      bool
		flagSort     string
		flagDesc     bool
		flagLimit    int
		flagOffset   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.Query{
				Text:            flagSearch,
				IncludeArchived: flagAll,
				Desc:            flagDesc,
				Limit:           flagLimit,
				Offset:          flagOffset,
			}
			for _, s := range splitCSV(flagStatus) {
				st := task.Status(strings.ToUpper(s))
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				q.Statuses = append(q.Statuses, st)
			}
			for _, s := range splitCSV(flagPriority) {
				p := task.Priority(strings.ToUpper(s))
				if !p.Valid() {
					return fmt.Errorf("unknown priority %q", s)
				}
				q.Priorities = append(q.Priorities, p)
			}
			for _, s := range splitCSV(flagCategory) {
				c := task.Category(strings.ToUpper(s))
				if !c.Valid() {
					return fmt.Errorf("unknown category %q", s)
				}
				q.Categories = append(q.Categories, c)
			}
			switch strings.ToLower(flagApproved) {
			case "":
			case "yes", "true":
				q.Approved = task.Ptr(true)
			case "no", "false":
				q.Approved = task.Ptr(false)
			default:
				return fmt.Errorf("--approved must be yes or no")
			}
			sortBy, err := store.ParseSortField(flagSort)
			if err != nil {
				return err
			}
			q.SortBy = sortBy
			if flagLimit < 0 || flagOffset < 0 {
				return fmt.Errorf("--limit and --offset must not be negative")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			tasks := e.store.Query(q)
			if flagJSON {
				if tasks == nil {
					tasks = []task.Task{}
				}
				return outputJSON(tasks)
			}
			reporter.PrintTasks(os.Stdout, tasks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagStatus, "status", "s", "", "Filter by status (comma-separated)")
	cmd.Flags().StringVarP(&flagPriority, "priority", "p", "", "Filter by priority (comma-separated)")
	cmd.Flags().StringVarP(&flagCategory, "category", "c", "", "Filter by category (comma-separated)")
	cmd.Flags().StringVar(&flagSearch, "search", "", "Match text in title or description")
	cmd.Flags().StringVar(&flagApproved, "approved", "", "Filter by human approval (yes or no)")
	cmd.Flags().BoolVarP(&flagAll, "all", "a", false, "Include archived tasks")
	cmd.Flags().StringVar(&flagSort, "sort", "created", "Sort by created, modified, priority, title or status")
	cmd.Flags().BoolVar(&flagDesc, "desc", false, "Reverse the sort order")
	cmd.Flags().IntVarP(&flagLimit, "limit", "n", 0, "Show at most n tasks")
	cmd.Flags().IntVar(&flagOffset, "offset", 0, "Skip the first n tasks")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			id, err := resolveID(e.store, args[0])
			if err != nil {
				return err
			}
			t, _ := e.store.Get(id)
			return printTask(t)
		},
	}
}

func updateCmd() *cobra.Command {
	var (
		flagTitle       string
		flagDescription string
		flagPriority    string
		flagCategory    string
		flagFiles       string
		flagStatus      string
		flagAgent       string
		flagResult      string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p task.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				p.Title = &flagTitle
			}
			if flags.Changed("description") {
				p.Description = &flagDescription
			}
			if flags.Changed("priority") {
				p.Priority = task.Ptr(task.Priority(strings.ToUpper(flagPriority)))
			}
			if flags.Changed("category") {
				p.Category = task.Ptr(task.Category(strings.ToUpper(flagCategory)))
			}
			if flags.Changed("files") {
				p.AffectedFiles = task.Ptr(splitCSV(flagFiles))
			}
			if flags.Changed("status") {
				p.Status = task.Ptr(task.Status(strings.ToUpper(flagStatus)))
			}
			if flags.Changed("agent") {
				p.AssignedAgent = &flagAgent
			}
			if flags.Changed("result") {
				p.Result = &flagResult
			}
			if p.Empty() {
				return fmt.Errorf("nothing to update (see --help for fields)")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			id, err := resolveID(e.store, args[0])
			if err != nil {
				return err
			}
			t, err := e.store.Update(id, p)
			if err != nil {
				return err
			}
			return printTask(t)
		},
	}

	cmd.Flags().StringVar(&flagTitle, "title", "", "New title")
	cmd.Flags().StringVarP(&flagDescription, "description", "d", "", "New description")
	cmd.Flags().StringVarP(&flagPriority, "priority", "p", "", "New priority")
	cmd.Flags().StringVarP(&flagCategory, "category", "c", "", "New category")
	cmd.Flags().StringVar(&flagFiles, "files", "", "Comma-separated affected files (replaces the list)")
	cmd.Flags().StringVar(&flagStatus, "status", "", "New status (must be a valid transition)")
	cmd.Flags().StringVar(&flagAgent, "agent", "", "Assigned agent")
	cmd.Flags().StringVar(&flagResult, "result", "", "Result text")
	return cmd
}

// applyEvent resolves args[0] and drives it through the state machine.
func applyEvent(arg string, ev task.Event) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	id, err := resolveID(e.store, arg)
	if err != nil {
		return err
	}
	t, err := e.store.Apply(id, ev)
	if err != nil {
		return err
	}
	if flagJSON {
		return outputJSON(t)
	}
	fmt.Printf("%s %s is now %s\n", ui.Green("✓"), ui.BoldMagenta(ui.ShortID(t.ID)), ui.StatusLabel(string(t.Status)))
	return nil
}

func reopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <id>",
		Short: "Move a finished task back to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyEvent(args[0], task.EventReopen)
		},
	}
}

func reviewCmd() *cobra.Command {
	var flagApprove, flagReject bool

	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Resolve a task that NEEDS_REVIEW",
		Long: `Approving marks a NEEDS_REVIEW task COMPLETED; rejecting sends it back to
PENDING so the next batch picks it up again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case flagApprove == flagReject:
				return fmt.Errorf("pass exactly one of --approve or --reject")
			case flagApprove:
				return applyEvent(args[0], task.EventApprove)
			default:
				return applyEvent(args[0], task.EventReject)
			}
		},
	}

	cmd.Flags().BoolVar(&flagApprove, "approve", false, "Accept the result")
	cmd.Flags().BoolVar(&flagReject, "reject", false, "Send the task back to PENDING")
	return cmd
}

func archiveCmd(archive bool) *cobra.Command {
	use, short := "archive <id>...", "Hide tasks from listings and batches"
	if !archive {
		use, short = "unarchive <id>...", "Restore archived tasks"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			for _, arg := range args {
				id, err := resolveID(e.store, arg)
				if err != nil {
					return err
				}
				var t task.Task
				if archive {
					t, err = e.store.Archive(id)
				} else {
					t, err = e.store.Unarchive(id)
				}
				if err != nil {
					return err
				}
				if !flagJSON {
					fmt.Printf("%s %sd %s %s\n", ui.Green("✓"), strings.Fields(use)[0], ui.BoldMagenta(ui.ShortID(t.ID)), t.Title)
				}
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete tasks permanently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			for _, arg := range args {
				id, err := resolveID(e.store, arg)
				if err != nil {
					return err
				}
				if err := e.store.Delete(id); err != nil {
					return err
				}
				if !flagJSON {
					fmt.Printf("%s deleted %s\n", ui.Green("✓"), ui.BoldMagenta(ui.ShortID(id)))
				}
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tasks by status, priority and category",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			st := e.store.Statistics()
			if flagJSON {
				return outputJSON(st)
			}
			reporter.PrintStats(os.Stdout, st)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var flagFormat, flagOutput string

	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Write tasks as a JSON or YAML document",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				id, err := resolveID(e.store, arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			doc, err := e.store.Export(ids...)
			if err != nil {
				return err
			}

			var data []byte
			switch strings.ToLower(flagFormat) {
			case "json":
				data, err = store.Encode(doc)
			case "yaml", "yml":
				data, err = store.EncodeYAML(doc)
			default:
				return fmt.Errorf("--format must be json or yaml")
			}
			if err != nil {
				return err
			}

			if flagOutput == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(flagOutput, data, 0644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(os.Stderr, "%s exported %d tasks to %s\n", ui.Green("✓"), len(doc.Tasks), flagOutput)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func importCmd() *cobra.Command {
	var flagOverwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add tasks from an exported JSON or YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			n, err := e.store.ImportBytes(data, flagOverwrite)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(map[string]int{"imported": n})
			}
			fmt.Printf("%s imported %d tasks from %s\n", ui.Green("✓"), n, filepath.Base(args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Replace tasks whose ids already exist")
	return cmd
}
