package store

import (
	"strings"
	"testing"
	"time"

	"github.com/joshharrison/taskloom/internal/task"
)

func TestEncodeDecode(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := mk("b", "second", base.Add(time.Minute))
	a := mk("a", "first", base)
	a.AffectedFiles = []string{"main.go"}

	doc := NewDocument([]task.Task{b, a}, base)
	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"version": "1.0"`) {
		t.Errorf("expected version field, got:\n%s", data)
	}
	if !strings.Contains(string(data), `"lastModified": "2026-03-01T10:00:00Z"`) {
		t.Errorf("expected RFC3339 timestamps, got:\n%s", data)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Tasks) != 2 || got.Tasks[0].ID != "a" || got.Tasks[1].ID != "b" {
		t.Fatalf("expected tasks ordered by creation, got %+v", got.Tasks)
	}
	if got.Tasks[0].AffectedFiles[0] != "main.go" {
		t.Errorf("affected files lost: %+v", got.Tasks[0].AffectedFiles)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"malformed":   `{"version": "1.0", "tasks": [`,
		"version":     `{"version": "2.0", "tasks": []}`,
		"duplicate":   `{"version": "1.0", "tasks": [` + taskJSON("a") + `,` + taskJSON("a") + `]}`,
		"bad status":  `{"version": "1.0", "tasks": [{"id":"a","title":"x","status":"DONE","priority":"LOW","category":"API","metadata":{"version":1}}]}`,
		"missing id":  `{"version": "1.0", "tasks": [{"title":"x","status":"PENDING","priority":"LOW","category":"API","metadata":{"version":1}}]}`,
		"bad version": `{"version": "1.0", "tasks": [{"id":"a","title":"x","status":"PENDING","priority":"LOW","category":"API","metadata":{"version":0}}]}`,
	}
	for name, doc := range cases {
		if _, err := Decode([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func taskJSON(id string) string {
	return `{"id":"` + id + `","title":"x","status":"PENDING","priority":"LOW","category":"API","metadata":{"version":1}}`
}

func TestYAMLRoundTrip(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := mk("a", "first", base)
	archived := base.Add(time.Hour)
	a.Metadata.ArchivedAt = &archived
	a.Result = "ok"

	data, err := EncodeYAML(NewDocument([]task.Task{a}, base))
	if err != nil {
		t.Fatalf("EncodeYAML: %v", err)
	}
	if !strings.Contains(string(data), "archived_at:") {
		t.Errorf("expected archived_at in yaml, got:\n%s", data)
	}

	got, err := DecodeYAML(data)
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}
	if len(got.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(got.Tasks))
	}
	gt := got.Tasks[0]
	if gt.Result != "ok" || gt.Metadata.ArchivedAt == nil || !gt.Metadata.ArchivedAt.Equal(archived) {
		t.Errorf("yaml round trip lost fields: %+v", gt)
	}
	if !gt.Metadata.LastModified.Equal(base) {
		t.Errorf("expected lastModified %v, got %v", base, gt.Metadata.LastModified)
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath("/work/proj")
	if got != "/work/proj/tasks/tasks.json" {
		t.Errorf("unexpected path %s", got)
	}
}
