package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joshharrison/taskloom/internal/task"
)

// DocumentVersion is the only store file format this package reads or writes.
const DocumentVersion = "1.0"

const (
	storeDir  = "tasks"
	storeFile = "tasks.json"
)

// DefaultPath returns the store file location for a project root.
func DefaultPath(project string) string {
	return filepath.Join(project, storeDir, storeFile)
}

// Document is the on-disk form of the whole task collection.
type Document struct {
	Version   string      `json:"version" yaml:"version"`
	LastSaved time.Time   `json:"lastSaved" yaml:"last_saved"`
	Tasks     []task.Task `json:"tasks" yaml:"tasks"`
}

// NewDocument builds a document from tasks, ordered by creation time then id.
func NewDocument(tasks []task.Task, savedAt time.Time) *Document {
	sorted := make([]task.Task, len(tasks))
	copy(sorted, tasks)
	sortByCreation(sorted)
	return &Document{
		Version:   DocumentVersion,
		LastSaved: savedAt,
		Tasks:     sorted,
	}
}

// Map indexes the document's tasks by id.
func (d *Document) Map() map[string]task.Task {
	m := make(map[string]task.Task, len(d.Tasks))
	for _, t := range d.Tasks {
		m[t.ID] = t
	}
	return m
}

// Validate checks the version and every task, and rejects duplicate ids.
func (d *Document) Validate() error {
	if d.Version != DocumentVersion {
		return fmt.Errorf("unsupported document version %q", d.Version)
	}
	seen := make(map[string]bool, len(d.Tasks))
	for i := range d.Tasks {
		t := &d.Tasks[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d (%s): %w", i, t.ID, err)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Encode serialises the document as indented JSON.
func Encode(d *Document) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a JSON document.
func Decode(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// EncodeYAML serialises the document as YAML for export.
func EncodeYAML(d *Document) ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml document: %w", err)
	}
	return data, nil
}

// DecodeYAML parses and validates a YAML document.
func DecodeYAML(data []byte) (*Document, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse yaml document: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func sortByCreation(tasks []task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].Metadata.CreatedAt, tasks[j].Metadata.CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
