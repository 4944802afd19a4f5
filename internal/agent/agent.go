// Package agent decides which agent identity should run a task.
package agent

import (
	"fmt"
	"strings"

	"github.com/joshharrison/taskloom/internal/task"
)

// Identity names an agent. Executors map identities to concrete models.
type Identity string

const (
	Complex Identity = "claude-opus"
	Simple  Identity = "claude-haiku"
)

var (
	complexKeywords = []string{"refactor", "architecture", "complex", "analyze", "multiple files"}
	simpleKeywords  = []string{"fix", "update", "simple", "quick", "minor"}
)

// Select picks an identity from the task's priority, category, affected file
// count and wording. When both heuristics fire, or neither does, the complex
// agent wins.
func Select(t task.Task) Identity {
	needsComplex, needsSimple := signals(t)
	if needsSimple && !needsComplex {
		return Simple
	}
	return Complex
}

// Explain returns the same decision as Select with the signals behind it,
// for dry runs.
func Explain(t task.Task) (Identity, string) {
	needsComplex, needsSimple := signals(t)
	var why string
	switch {
	case needsComplex && needsSimple:
		why = "complex and simple signals both present, tie goes to complex"
	case needsComplex:
		why = "complex signals only"
	case needsSimple:
		why = "simple signals only"
	default:
		why = "no signals, defaulting to complex"
	}
	return Select(t), why
}

func signals(t task.Task) (needsComplex, needsSimple bool) {
	files := len(t.AffectedFiles)
	title := strings.ToLower(t.Title)
	text := title + "\n" + strings.ToLower(t.Description)

	needsComplex = t.Priority == task.PriorityCritical ||
		t.Priority == task.PriorityHigh ||
		t.Category == task.CategoryBackend ||
		t.Category == task.CategoryDatabase ||
		files > 5 ||
		containsAny(text, complexKeywords)

	needsSimple = t.Category == task.CategoryConfig ||
		t.Category == task.CategoryFrontend ||
		containsAny(title, simpleKeywords) ||
		files <= 2

	return needsComplex, needsSimple
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Strategy chooses the identity for each task of a batch: either Select, or
// one pinned identity for every task.
type Strategy struct {
	Pinned Identity // empty means auto
}

// StrategyAuto resolves each task with Select.
var StrategyAuto = Strategy{}

// Pin returns a strategy that always uses id.
func Pin(id Identity) Strategy {
	return Strategy{Pinned: id}
}

// Resolve returns the identity for t under this strategy.
func (s Strategy) Resolve(t task.Task) Identity {
	if s.Pinned != "" {
		return s.Pinned
	}
	return Select(t)
}

func (s Strategy) String() string {
	if s.Pinned == "" {
		return "auto"
	}
	return string(s.Pinned)
}

// ParseStrategy accepts "auto", "complex", "simple" or an identity name.
func ParseStrategy(s string) (Strategy, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "auto":
		return StrategyAuto, nil
	case "complex", string(Complex):
		return Pin(Complex), nil
	case "simple", string(Simple):
		return Pin(Simple), nil
	default:
		return Strategy{}, fmt.Errorf("unknown strategy %q (use auto, complex or simple)", s)
	}
}

// ParseIdentity accepts "complex", "simple" or an identity name.
func ParseIdentity(s string) (Identity, error) {
	st, err := ParseStrategy(s)
	if err != nil {
		return "", err
	}
	if st.Pinned == "" {
		return "", fmt.Errorf("%q is a strategy, not an agent", s)
	}
	return st.Pinned, nil
}
