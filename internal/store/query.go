package store

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/joshharrison/taskloom/internal/task"
)

// SortField selects the ordering of Query results.
type SortField string

const (
	SortCreated  SortField = "created"
	SortModified SortField = "modified"
	SortPriority SortField = "priority"
	SortTitle    SortField = "title"
	SortStatus   SortField = "status"
)

// ParseSortField validates a user-supplied sort key. Empty means SortCreated.
func ParseSortField(s string) (SortField, error) {
	f := SortField(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return SortCreated, nil
	case SortCreated, SortModified, SortPriority, SortTitle, SortStatus:
		return f, nil
	}
	return "", fmt.Errorf("unsupported sort field %q (use created, modified, priority, title or status)", s)
}

// Query filters, sorts and pages the task collection. The zero value returns
// every non-archived task in creation order.
type Query struct {
	Statuses        []task.Status
	Priorities      []task.Priority
	Categories      []task.Category
	Approved        *bool
	Text            string // case-insensitive match on title or description
	IncludeArchived bool

	SortBy SortField
	Desc   bool

	Offset int
	Limit  int // 0 means no limit
}

func (q Query) matches(t *task.Task) bool {
	if t.Archived() && !q.IncludeArchived {
		return false
	}
	if len(q.Statuses) > 0 && !contains(q.Statuses, t.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !contains(q.Priorities, t.Priority) {
		return false
	}
	if len(q.Categories) > 0 && !contains(q.Categories, t.Category) {
		return false
	}
	if q.Approved != nil && t.HumanApproved != *q.Approved {
		return false
	}
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Query returns the tasks matching q.
func (s *Store) Query(q Query) []task.Task {
	s.mu.Lock()
	all := s.listLocked()
	s.mu.Unlock()

	var out []task.Task
	for i := range all {
		if q.matches(&all[i]) {
			out = append(out, all[i])
		}
	}

	less := lessFunc(q.SortBy)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if q.Desc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ID < b.ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

func lessFunc(f SortField) func(a, b *task.Task) bool {
	switch f {
	case SortModified:
		return func(a, b *task.Task) bool { return a.Metadata.LastModified.Before(b.Metadata.LastModified) }
	case SortPriority:
		return func(a, b *task.Task) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case SortTitle:
		return func(a, b *task.Task) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case SortStatus:
		return func(a, b *task.Task) bool { return statusRank(a.Status) < statusRank(b.Status) }
	default:
		return func(a, b *task.Task) bool { return a.Metadata.CreatedAt.Before(b.Metadata.CreatedAt) }
	}
}

func statusRank(st task.Status) int {
	for i, v := range task.Statuses {
		if v == st {
			return i
		}
	}
	return len(task.Statuses)
}

// Stats summarises the collection. The per-field counts cover non-archived
// tasks only.
type Stats struct {
	Total      int                   `json:"total"`
	Active     int                   `json:"active"`
	Archived   int                   `json:"archived"`
	Approved   int                   `json:"approved"`
	ByStatus   map[task.Status]int   `json:"byStatus"`
	ByPriority map[task.Priority]int `json:"byPriority"`
	ByCategory map[task.Category]int `json:"byCategory"`
}

// Statistics counts tasks by status, priority and category.
func (s *Store) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ByStatus:   make(map[task.Status]int, len(task.Statuses)),
		ByPriority: make(map[task.Priority]int, len(task.Priorities)),
		ByCategory: make(map[task.Category]int),
	}
	for _, v := range task.Statuses {
		st.ByStatus[v] = 0
	}
	for _, v := range task.Priorities {
		st.ByPriority[v] = 0
	}

	for _, t := range s.tasks {
		st.Total++
		if t.Archived() {
			st.Archived++
			continue
		}
		st.Active++
		if t.HumanApproved {
			st.Approved++
		}
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		st.ByCategory[t.Category]++
	}
	return st
}

// Export returns a document holding the given tasks, or every task when no
// ids are given.
func (s *Store) Export(ids ...string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		return NewDocument(s.listLocked(), s.now()), nil
	}

	list := make([]task.Task, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		t, ok := s.tasks[id]
		if !ok {
			return nil, &NotFoundError{ID: id}
		}
		list = append(list, t.Clone())
	}
	return NewDocument(list, s.now()), nil
}

// ImportBytes decodes a JSON or YAML document and imports it.
func (s *Store) ImportBytes(data []byte, overwrite bool) (int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0, &ImportFormatError{Reason: "empty document"}
	}

	var (
		doc *Document
		err error
	)
	if trimmed[0] == '{' {
		doc, err = Decode(trimmed)
	} else {
		doc, err = DecodeYAML(trimmed)
	}
	if err != nil {
		return 0, &ImportFormatError{Reason: "malformed document", Err: err}
	}
	return s.Import(doc, overwrite)
}

// Import adds the document's tasks to the store. Existing ids are skipped
// unless overwrite is set, in which case the incoming record replaces the
// stored one as a new version. An overwrite must respect the status state
// machine: a record whose status cannot follow the stored one fails the whole
// import. The document is validated before anything changes; it returns the
// number of tasks written.
func (s *Store) Import(doc *Document, overwrite bool) (int, error) {
	if doc == nil {
		return 0, &ImportFormatError{Reason: "nil document"}
	}
	if err := doc.Validate(); err != nil {
		return 0, &ImportFormatError{Reason: "invalid document", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snapshot()
	imported := 0
	for _, in := range doc.Tasks {
		in = in.Clone()
		cur, exists := next[in.ID]
		if exists {
			if !overwrite {
				continue
			}
			if in.Status != cur.Status && !task.CanTransition(cur.Status, in.Status) {
				return 0, &ImportFormatError{
					Reason: fmt.Sprintf("task %s: %s -> %s", in.ID, cur.Status, in.Status),
					Err:    task.ErrInvalidTransition,
				}
			}
			in.Metadata.Version = cur.Metadata.Version
			in.Metadata.CreatedAt = cur.Metadata.CreatedAt
			in.Metadata.LastModified = cur.Metadata.LastModified
			in.Touch(s.now())
		}
		next[in.ID] = in
		imported++
	}

	if imported == 0 {
		return 0, nil
	}
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return imported, nil
}
