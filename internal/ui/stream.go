package ui

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"
)

// StreamFormatter turns Claude stream-json output into readable progress
// lines. It also remembers the final result event so the caller can decide
// whether the run succeeded. It implements io.Writer.
type StreamFormatter struct {
	prefix string
	dest   io.Writer
	mu     sync.Mutex
	buf    []byte

	result    string
	isError   bool
	hasResult bool
}

// NewStreamFormatter creates a StreamFormatter that prefixes output with the
// task's short id. A nil dest discards progress lines but still captures the
// result.
func NewStreamFormatter(taskID string, dest io.Writer) *StreamFormatter {
	if dest == nil {
		dest = io.Discard
	}
	return &StreamFormatter{
		prefix: TaskPrefix(taskID) + " ",
		dest:   dest,
	}
}

func (sf *StreamFormatter) Write(p []byte) (int, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	sf.buf = append(sf.buf, p...)
	for {
		idx := bytes.IndexByte(sf.buf, '\n')
		if idx == -1 {
			break
		}
		line := string(sf.buf[:idx])
		sf.buf = sf.buf[idx+1:]
		sf.processLine(line)
	}
	return len(p), nil
}

// Flush processes a trailing line that had no newline.
func (sf *StreamFormatter) Flush() {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if len(sf.buf) > 0 {
		sf.processLine(string(sf.buf))
		sf.buf = nil
	}
}

// Result returns the text of the final result event, whether it reported an
// error, and whether one was seen at all.
func (sf *StreamFormatter) Result() (text string, isError bool, ok bool) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.result, sf.isError, sf.hasResult
}

func (sf *StreamFormatter) processLine(line string) {
	if !gjson.Valid(line) {
		return
	}

	switch gjson.Get(line, "type").String() {
	case "assistant":
		sf.processAssistant(line)
	case "result":
		sf.result = gjson.Get(line, "result").String()
		subtype := gjson.Get(line, "subtype")
		sf.isError = gjson.Get(line, "is_error").Bool() || (subtype.Exists() && subtype.String() != "success")
		sf.hasResult = true
	}
}

func (sf *StreamFormatter) processAssistant(line string) {
	content := gjson.Get(line, "message.content")
	if !content.Exists() {
		return
	}

	content.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			if text := item.Get("text").String(); text != "" {
				sf.writeLine("💬 " + text)
			}
		case "tool_use":
			sf.processToolUse(item)
		}
		return true
	})
}

// toolLabels maps a tool name to the label shown for it and the input field
// that names its target.
var toolLabels = map[string]struct{ label, field string }{
	"Read":      {"📖 Reading", "file_path"},
	"Write":     {"✏️  Writing", "file_path"},
	"Edit":      {"✏️  Editing", "file_path"},
	"MultiEdit": {"✏️  Editing", "file_path"},
	"Glob":      {"🔍 Searching", "pattern"},
	"Grep":      {"🔍 Searching", "pattern"},
	"WebFetch":  {"🌐 Fetching", "url"},
	"Task":      {"🤖 Delegating", "description"},
}

func (sf *StreamFormatter) processToolUse(item gjson.Result) {
	name := item.Get("name").String()
	input := item.Get("input")

	display := "🔧 " + name
	if name == "Bash" {
		cmd := input.Get("description").String()
		if cmd == "" {
			cmd = input.Get("command").String()
		}
		if len(cmd) > 80 {
			cmd = cmd[:80] + "..."
		}
		display = "🔧 $ " + cmd
	} else if l, ok := toolLabels[name]; ok {
		display = l.label + " " + input.Get(l.field).String()
	}

	sf.writeLine(Dim(display))
}

func (sf *StreamFormatter) writeLine(text string) {
	fmt.Fprintf(sf.dest, "  %s%s\n", sf.prefix, text)
}
