package store

import (
	"fmt"

	"github.com/joshharrison/taskloom/internal/task"
)

// MergeReport counts how Merge resolved each id.
type MergeReport struct {
	Adopted     int // only present externally
	Kept        int // only present in memory
	ExternalWon int // in both, external record newer
	MemoryWon   int // in both, memory record newer or equal
}

// Changed reports whether the external side contributed anything.
func (r MergeReport) Changed() bool {
	return r.Adopted > 0 || r.ExternalWon > 0
}

func (r MergeReport) String() string {
	return fmt.Sprintf("%d adopted, %d kept, %d external newer, %d local newer",
		r.Adopted, r.Kept, r.ExternalWon, r.MemoryWon)
}

// Merge reconciles the in-memory collection with a copy read from disk.
// For ids present on both sides the record with the later
// Metadata.LastModified wins; on a tie the in-memory record is kept. The
// winner carries the higher of the two versions so a task's version never
// goes backwards. Neither input is modified.
func Merge(memory, external map[string]task.Task) (map[string]task.Task, MergeReport) {
	merged := make(map[string]task.Task, len(memory)+len(external))
	var report MergeReport

	for id, mt := range memory {
		et, ok := external[id]
		switch {
		case !ok:
			merged[id] = mt
			report.Kept++
		case et.Metadata.LastModified.After(mt.Metadata.LastModified):
			et.Metadata.Version = max(et.Metadata.Version, mt.Metadata.Version)
			merged[id] = et
			report.ExternalWon++
		default:
			mt.Metadata.Version = max(et.Metadata.Version, mt.Metadata.Version)
			merged[id] = mt
			report.MemoryWon++
		}
	}

	for id, et := range external {
		if _, ok := memory[id]; ok {
			continue
		}
		merged[id] = et
		report.Adopted++
	}

	return merged, report
}
