package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/pump"
	"github.com/joshharrison/taskloom/internal/task"
)

const apiSystemPrompt = `You are a senior software engineer completing one task from a project's task list.
You cannot run commands or edit files. Reply with the complete change as a unified diff
or with precise instructions, followed by a one-paragraph summary.`

// APIConfig configures the Messages API executor.
type APIConfig struct {
	APIKey         string // default: $ANTHROPIC_API_KEY
	Models         Models
	MaxTokens      int64
	ProjectDir     string
	PromptTemplate string
}

// API asks the Claude Messages API to complete a task and stores the reply
// as the result. It has no tool access; it suits planning and review work.
type API struct {
	inner anthropic.Client
	cfg   APIConfig
}

// NewAPI creates an API executor. Extra request options are passed to the
// SDK client.
func NewAPI(cfg APIConfig, opts ...option.RequestOption) (*API, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if cfg.Models == nil {
		cfg.Models = DefaultModels()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}

	inner := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	return &API{inner: inner, cfg: cfg}, nil
}

// Execute sends the task prompt and waits for the reply. Transport and API
// errors are returned; a reply that starts with FAILED: is a failed Outcome.
func (a *API) Execute(ctx context.Context, t task.Task, id agent.Identity) (pump.Outcome, error) {
	prompt, err := RenderPrompt(PromptDataFor(t, id, a.cfg.ProjectDir), a.cfg.PromptTemplate)
	if err != nil {
		return pump.Outcome{}, err
	}

	resp, err := a.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Models.For(id)),
		MaxTokens: a.cfg.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: apiSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return pump.Outcome{}, fmt.Errorf("claude API call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = strings.TrimSpace(text)

	if reason, failed := splitFailure(text); failed {
		return pump.Outcome{Reason: reason}, nil
	}
	if text == "" {
		return pump.Outcome{Reason: "empty reply from " + a.cfg.Models.For(id)}, nil
	}
	return pump.Outcome{OK: true, Output: text}, nil
}

var _ pump.Executor = (*API)(nil)
