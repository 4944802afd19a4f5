package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is returned for tasks or inputs that fail validation.
var ErrInvalid = errors.New("invalid task")

// CreateInput holds the user-supplied fields of a new task.
type CreateInput struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      Category `json:"category"`
	Priority      Priority `json:"priority"`
	AffectedFiles []string `json:"affectedFiles,omitempty"`
}

// New builds a PENDING task at version 1 from in.
func New(id string, in CreateInput, now time.Time) (Task, error) {
	if in.Category == "" {
		in.Category = CategoryGeneral
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}

	t := Task{
		ID:            id,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Category:      in.Category,
		Priority:      in.Priority,
		Status:        StatusPending,
		AffectedFiles: append([]string(nil), in.AffectedFiles...),
		Metadata: Metadata{
			Version:      1,
			CreatedAt:    now,
			LastModified: now,
		},
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Validate checks required fields and enumerations.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalid)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalid)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalid, t.Priority)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalid, t.Category)
	}
	if t.Metadata.Version < 1 {
		return fmt.Errorf("%w: version must be >= 1", ErrInvalid)
	}
	return nil
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title         *string   `json:"title,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Category      *Category `json:"category,omitempty"`
	Priority      *Priority `json:"priority,omitempty"`
	Status        *Status   `json:"status,omitempty"`
	HumanApproved *bool     `json:"humanApproved,omitempty"`
	AssignedAgent *string   `json:"assignedAgent,omitempty"`
	Result        *string   `json:"result,omitempty"`
	AffectedFiles *[]string `json:"affectedFiles,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// ApplyTo returns a copy of t with the patch applied. Status changes must
// follow the state machine; setting the current status again is allowed.
func (p Patch) ApplyTo(t Task) (Task, error) {
	out := t.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Status != nil && *p.Status != t.Status {
		if !CanTransition(t.Status, *p.Status) {
			return t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, *p.Status)
		}
		out.Status = *p.Status
	}
	if p.HumanApproved != nil {
		out.HumanApproved = *p.HumanApproved
	}
	if p.AssignedAgent != nil {
		out.AssignedAgent = *p.AssignedAgent
	}
	if p.Result != nil {
		out.Result = *p.Result
	}
	if p.AffectedFiles != nil {
		out.AffectedFiles = append([]string(nil), (*p.AffectedFiles)...)
	}
	if err := out.Validate(); err != nil {
		return t, err
	}
	return out, nil
}

// StatusPatch builds a patch that moves the task to the status reached by e.
func StatusPatch(current Status, e Event) (Patch, error) {
	next, err := current.Apply(e)
	if err != nil {
		return Patch{}, err
	}
	return Patch{Status: &next}, nil
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
