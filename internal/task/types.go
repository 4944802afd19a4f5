package task

import (
	"time"
)

// Status is the execution state of a task.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusCompleted   Status = "COMPLETED"
	StatusNeedsReview Status = "NEEDS_REVIEW"
)

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Category is the area of the codebase a task touches.
type Category string

const (
	CategoryFrontend       Category = "FRONTEND"
	CategoryBackend        Category = "BACKEND"
	CategoryDatabase       Category = "DATABASE"
	CategoryAPI            Category = "API"
	CategoryConfig         Category = "CONFIG"
	CategoryTesting        Category = "TESTING"
	CategoryDocumentation  Category = "DOCUMENTATION"
	CategoryInfrastructure Category = "INFRASTRUCTURE"
	CategoryGeneral        Category = "GENERAL"
)

// Statuses, Priorities and Categories list every valid value in display order.
var (
	Statuses   = []Status{StatusPending, StatusCompleted, StatusNeedsReview}
	Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	Categories = []Category{
		CategoryFrontend, CategoryBackend, CategoryDatabase, CategoryAPI, CategoryConfig,
		CategoryTesting, CategoryDocumentation, CategoryInfrastructure, CategoryGeneral,
	}
)

// Task is a unit of work queued for an agent.
type Task struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Description   string   `json:"description" yaml:"description"`
	Category      Category `json:"category" yaml:"category"`
	Priority      Priority `json:"priority" yaml:"priority"`
	Status        Status   `json:"status" yaml:"status"`
	HumanApproved bool     `json:"humanApproved" yaml:"human_approved"`
	AssignedAgent string   `json:"assignedAgent,omitempty" yaml:"assigned_agent,omitempty"`
	Result        string   `json:"result,omitempty" yaml:"result,omitempty"`
	AffectedFiles []string `json:"affectedFiles,omitempty" yaml:"affected_files,omitempty"`
	Metadata      Metadata `json:"metadata" yaml:"metadata"`
}

// Metadata is the bookkeeping attached to every task.
type Metadata struct {
	Version      int        `json:"version" yaml:"version"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"created_at"`
	LastModified time.Time  `json:"lastModified" yaml:"last_modified"`
	ArchivedAt   *time.Time `json:"archivedAt,omitempty" yaml:"archived_at,omitempty"`
}

// Archived reports whether the task has been soft-deleted.
func (t *Task) Archived() bool {
	return t.Metadata.ArchivedAt != nil
}

// Clone returns a deep copy so callers never share slices or pointers with the store.
func (t Task) Clone() Task {
	c := t
	if t.AffectedFiles != nil {
		c.AffectedFiles = append([]string(nil), t.AffectedFiles...)
	}
	if t.Metadata.ArchivedAt != nil {
		at := *t.Metadata.ArchivedAt
		c.Metadata.ArchivedAt = &at
	}
	return c
}

// Touch bumps the version and sets LastModified to now, keeping LastModified
// strictly increasing even when the clock has not advanced.
func (t *Task) Touch(now time.Time) {
	if !now.After(t.Metadata.LastModified) {
		now = t.Metadata.LastModified.Add(time.Nanosecond)
	}
	t.Metadata.Version++
	t.Metadata.LastModified = now
}

// Rank orders priorities from LOW (0) to CRITICAL (3). Unknown values rank -1.
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if v == p {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}
