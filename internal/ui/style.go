package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
)

// PrintLogo renders the taskloom banner to stderr.
func PrintLogo() {
	FprintLogo(os.Stderr)
}

// FprintLogo renders the taskloom banner to w.
func FprintLogo(w io.Writer) {
	frame := color.New(color.FgCyan)
	cards := color.New(color.FgYellow)
	sep := color.New(color.FgCyan)
	brand := color.New(color.Bold, color.FgMagenta)

	fmt.Fprintln(w)
	frame.Fprintln(w, "   +--------------------------+")
	cards.Fprintln(w, "   |  [ ] [ ] [x] [ ] [x] [ ] |")
	sep.Fprintln(w, "   |==========================|")
	brand.Fprintln(w, "   |  T  A  S  K  L  O  O  M  |")
	sep.Fprintln(w, "   |==========================|")
	cards.Fprintln(w, "   |  [x] [ ] [ ] [x] [ ] [x] |")
	frame.Fprintln(w, "   +--------------------------+")
	fmt.Fprintf(w, "   %s\n", Dim("📋 One task at a time"))
	fmt.Fprintln(w)
}

// taskColors is a palette of distinct bold colors for differentiating tasks.
var taskColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

func taskColorIndex(taskID string) int {
	var h uint32
	for _, c := range taskID {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(taskColors)))
}

// ShortID trims a uuid to its first block for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// TaskPrefix returns a colored [short-id] prefix. The same id always gets the
// same color.
func TaskPrefix(taskID string) string {
	c := taskColors[taskColorIndex(taskID)]
	return Dim("[") + c(ShortID(taskID)) + Dim("]")
}

// StatusIcon returns a colored icon for a task status (PENDING, COMPLETED,
// NEEDS_REVIEW) or a batch session status (running, succeeded, failed,
// skipped).
func StatusIcon(status string) string {
	switch status {
	case "COMPLETED", "succeeded":
		return Green("✓")
	case "NEEDS_REVIEW", "failed":
		return Red("✗")
	case "running":
		return Cyan("●")
	case "skipped":
		return Yellow("⊘")
	default:
		return Dim("◌")
	}
}

// StatusLabel colors a task status name.
func StatusLabel(status string) string {
	switch status {
	case "COMPLETED":
		return Green(status)
	case "NEEDS_REVIEW":
		return BoldYellow(status)
	default:
		return Dim(status)
	}
}

// PriorityLabel colors a priority name by urgency.
func PriorityLabel(priority string) string {
	switch priority {
	case "CRITICAL":
		return BoldRed(priority)
	case "HIGH":
		return Yellow(priority)
	case "LOW":
		return Dim(priority)
	default:
		return priority
	}
}
