package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joshharrison/taskloom/internal/agent"
	"github.com/joshharrison/taskloom/internal/task"
)

func sampleTask() task.Task {
	return task.Task{
		ID:            "t-123",
		Title:         "Add pagination",
		Description:   "  List endpoint returns everything.  ",
		Category:      task.CategoryAPI,
		Priority:      task.PriorityHigh,
		Status:        task.StatusPending,
		AffectedFiles: []string{"api/list.go", "api/list_test.go"},
		Metadata:      task.Metadata{Version: 1},
	}
}

func TestRenderPrompt_Default(t *testing.T) {
	prompt, err := RenderPrompt(PromptDataFor(sampleTask(), agent.Complex, "/work/app"), "")
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	for _, want := range []string{
		"task t-123: Add pagination",
		"List endpoint returns everything.\n",
		"- Priority: HIGH",
		"  - api/list_test.go",
		"Working directory: /work/app",
		"Agent: claude-opus",
		`start with "FAILED:"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRenderPrompt_Custom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	os.WriteFile(path, []byte("Do {{.Title}} with {{.Agent}}"), 0644)

	prompt, err := RenderPrompt(PromptDataFor(sampleTask(), agent.Simple, "."), path)
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if prompt != "Do Add pagination with claude-haiku" {
		t.Errorf("unexpected prompt %q", prompt)
	}

	os.WriteFile(path, []byte("{{.Nope"), 0644)
	if _, err := RenderPrompt(PromptData{}, path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := RenderPrompt(PromptData{}, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected read error")
	}
}

func TestModelsFor(t *testing.T) {
	m := DefaultModels()
	if m.For(agent.Complex) == "" || m.For(agent.Simple) == "" {
		t.Error("defaults must cover both identities")
	}
	custom := Models{agent.Simple: "haiku"}
	if custom.For(agent.Simple) != "haiku" {
		t.Error("expected configured model")
	}
	if custom.For(agent.Complex) != "claude-opus" {
		t.Error("expected identity fallback")
	}
}

func TestSplitFailure(t *testing.T) {
	cases := []struct {
		in     string
		reason string
		failed bool
	}{
		{"All done.", "", false},
		{"FAILED: tests do not compile", "tests do not compile", true},
		{"  failed:   missing creds ", "missing creds", true},
		{"FAILED:", "agent gave up without a reason", true},
	}
	for _, c := range cases {
		reason, failed := splitFailure(c.in)
		if reason != c.reason || failed != c.failed {
			t.Errorf("splitFailure(%q) = %q, %v", c.in, reason, failed)
		}
	}
}

// fakeClaude writes a shell script that stands in for the claude binary.
func fakeClaude(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIDefaults(t *testing.T) {
	c := NewCLI(CLIConfig{ProjectDir: "/work"})
	cfg := c.Config()
	if cfg.ClaudeBin != "claude" || cfg.Timeout != 30*time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogDir != "/work/.taskloom/logs" {
		t.Errorf("unexpected log dir %s", cfg.LogDir)
	}

	args := c.args("do it", agent.Simple)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--model claude-haiku-4-5") || !strings.Contains(joined, "--dangerously-skip-permissions") {
		t.Errorf("unexpected args: %v", args)
	}

	safe := NewCLI(CLIConfig{Safe: true})
	for _, a := range safe.args("x", agent.Complex) {
		if a == "--dangerously-skip-permissions" {
			t.Error("safe mode must keep permission prompts")
		}
	}
}

func TestCLIExecute_Success(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_CLAUDE_ARGS", argsFile)
	bin := fakeClaude(t, `printf '%s\n' "$@" > "$FAKE_CLAUDE_ARGS"
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"working"}]}}'
echo '{"type":"result","subtype":"success","is_error":false,"result":"Added pagination."}'`)

	project := t.TempDir()
	var progress bytes.Buffer
	c := NewCLI(CLIConfig{ClaudeBin: bin, ProjectDir: project, Progress: &progress})

	out, err := c.Execute(context.Background(), sampleTask(), agent.Complex)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.OK || out.Output != "Added pagination." {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(progress.String(), "working") {
		t.Errorf("expected streamed progress, got %q", progress.String())
	}

	logData, err := os.ReadFile(c.LogPath("t-123"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logData), `"type":"result"`) {
		t.Error("log should hold the raw stream")
	}

	argData, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(argData), "claude-opus-4-1") || !strings.Contains(string(argData), "stream-json") {
		t.Errorf("unexpected claude args:\n%s", argData)
	}
}

func TestCLIExecute_Failures(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		reason string
	}{
		{"exit code", `echo '{"type":"result","subtype":"success","result":"half done"}'; exit 3`, "agent exited with code 3: half done"},
		{"error result", `echo '{"type":"result","subtype":"error_during_execution","is_error":true,"result":"tool crashed"}'`, "tool crashed"},
		{"no result", `echo 'plain text'`, "agent produced no result"},
		{"declared failure", `echo '{"type":"result","subtype":"success","result":"FAILED: no database"}'`, "no database"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCLI(CLIConfig{ClaudeBin: fakeClaude(t, tc.body), ProjectDir: t.TempDir(), Quiet: true})
			out, err := c.Execute(context.Background(), sampleTask(), agent.Simple)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.OK || !strings.HasPrefix(out.Reason, tc.reason) {
				t.Errorf("expected failure %q, got %+v", tc.reason, out)
			}
		})
	}
}

func TestCLIExecute_Timeout(t *testing.T) {
	c := NewCLI(CLIConfig{
		ClaudeBin:  fakeClaude(t, "exec sleep 5"),
		ProjectDir: t.TempDir(),
		Timeout:    100 * time.Millisecond,
		Quiet:      true,
	})
	out, err := c.Execute(context.Background(), sampleTask(), agent.Simple)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.OK || !strings.Contains(out.Reason, "timed out") {
		t.Errorf("expected timeout failure, got %+v", out)
	}
}

func TestCLIExecute_MissingBinary(t *testing.T) {
	c := NewCLI(CLIConfig{ClaudeBin: filepath.Join(t.TempDir(), "nope"), ProjectDir: t.TempDir(), Quiet: true})
	if _, err := c.Execute(context.Background(), sampleTask(), agent.Simple); err == nil {
		t.Error("expected spawn error")
	}
}

func fakeMessagesAPI(t *testing.T, reply string, status int, gotModel *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if gotModel != nil {
			*gotModel = req.Model
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_01",
			"type":          "message",
			"role":          "assistant",
			"model":         req.Model,
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
}

func TestNewAPI_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAPI(APIConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestAPIExecute(t *testing.T) {
	var model string
	srv := fakeMessagesAPI(t, "Here is the diff.", http.StatusOK, &model)
	defer srv.Close()

	a, err := NewAPI(APIConfig{APIKey: "test-key"}, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}
	out, err := a.Execute(context.Background(), sampleTask(), agent.Simple)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.OK || out.Output != "Here is the diff." {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if model != "claude-haiku-4-5" {
		t.Errorf("expected simple model, got %q", model)
	}
}

func TestAPIExecute_DeclaredFailure(t *testing.T) {
	srv := fakeMessagesAPI(t, "FAILED: need repository access", http.StatusOK, nil)
	defer srv.Close()

	a, _ := NewAPI(APIConfig{APIKey: "test-key"}, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	out, err := a.Execute(context.Background(), sampleTask(), agent.Complex)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.OK || out.Reason != "need repository access" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestAPIExecute_APIError(t *testing.T) {
	srv := fakeMessagesAPI(t, "", http.StatusInternalServerError, nil)
	defer srv.Close()

	a, _ := NewAPI(APIConfig{APIKey: "test-key"}, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	if _, err := a.Execute(context.Background(), sampleTask(), agent.Complex); err == nil {
		t.Error("expected error from failing API")
	}
}
