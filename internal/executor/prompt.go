package executor

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/task"
)

// failedMarker starts the final reply of an agent that could not finish.
const failedMarker = "FAILED:"

const defaultPromptTemplate = `You are working on task {{.TaskID}}: {{.Title}}

## Description
{{if .Description}}{{.Description}}{{else}}(no description){{end}}

## Details
- Category: {{.Category}}
- Priority: {{.Priority}}
{{- if .AffectedFiles}}
- Files likely affected:
{{- range .AffectedFiles}}
  - {{.}}
{{- end}}
{{- end}}

## Instructions
1. Implement the changes described above
2. Write or update tests as needed
3. Run existing tests to ensure nothing breaks
4. Finish with a short summary of what you changed
5. If you cannot complete the task, make your final reply start with "` + failedMarker + `" followed by the reason

## Context
- Working directory: {{.ProjectDir}}
- Agent: {{.Agent}}
`

// PromptData holds the data used to render a prompt template.
type PromptData struct {
	TaskID        string
	Title         string
	Description   string
	Category      string
	Priority      string
	AffectedFiles []string
	Agent         string
	ProjectDir    string
}

// PromptDataFor builds the template data for a task.
func PromptDataFor(t task.Task, id agent.Identity, projectDir string) PromptData {
	return PromptData{
		TaskID:        t.ID,
		Title:         t.Title,
		Description:   strings.TrimSpace(t.Description),
		Category:      string(t.Category),
		Priority:      string(t.Priority),
		AffectedFiles: t.AffectedFiles,
		Agent:         string(id),
		ProjectDir:    projectDir,
	}
}

// RenderPrompt renders a prompt using either a custom template file or the default.
func RenderPrompt(data PromptData, templatePath string) (string, error) {
	tmplStr := defaultPromptTemplate
	if templatePath != "" {
		content, err := os.ReadFile(templatePath)
		if err != nil {
			return "", fmt.Errorf("read prompt template: %w", err)
		}
		tmplStr = string(content)
	}

	tmpl, err := template.New("prompt").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Models maps agent identities to the model names passed to Claude.
type Models map[agent.Identity]string

// DefaultModels returns the stock identity to model mapping.
func DefaultModels() Models {
	return Models{
		agent.Complex: "claude-opus-4-1",
		agent.Simple:  "claude-haiku-4-5",
	}
}

// For returns the model for id, falling back to the identity name itself.
func (m Models) For(id agent.Identity) string {
	if model := m[id]; model != "" {
		return model
	}
	return string(id)
}

// splitFailure reports whether an agent's final reply declares failure and
// returns the reason.
func splitFailure(reply string) (reason string, failed bool) {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(strings.ToUpper(s), failedMarker) {
		return "", false
	}
	reason = strings.TrimSpace(s[len(failedMarker):])
	if reason == "" {
		reason = "agent gave up without a reason"
	}
	return reason, true
}
