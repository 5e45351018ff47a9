package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Preview chunk types.
const (
	ChunkEqual   = "equal"
	ChunkRemoved = "removed"
	ChunkAdded   = "added"
)

// PreviewChunk is one line-level segment of a conflict preview. Removed text
// exists only locally, added text only in the cloud record.
type PreviewChunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func indent(r Record) string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r)
	}
	return string(b) + "\n"
}

// Preview renders a line diff from the local record to the cloud record.
func Preview(c Conflict) []PreviewChunk {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(indent(c.Local), indent(c.Cloud))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	diffs = dmp.DiffCleanupSemantic(diffs)

	chunks := make([]PreviewChunk, 0, len(diffs))
	for _, d := range diffs {
		var t string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			t = ChunkAdded
		case diffmatchpatch.DiffDelete:
			t = ChunkRemoved
		default:
			t = ChunkEqual
		}
		chunks = append(chunks, PreviewChunk{Type: t, Content: d.Text})
	}
	return chunks
}
