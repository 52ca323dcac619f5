// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Engine renders human-readable diffs
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: max(contextLines, 0),
	}
}

// Diff generates a line-by-line diff between two contents, grouped into
// hunks that carry up to contextLines unchanged lines on each side.
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	script, err := editScript(SplitLines(oldContent), SplitLines(newContent))
	if err != nil {
		return nil, fmt.Errorf("computing edit script: %w", err)
	}

	result := &DiffResult{}
	for _, ed := range script {
		switch ed.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	for _, r := range e.hunkRanges(script) {
		result.Hunks = append(result.Hunks, buildHunk(script[r[0]:r[1]]))
	}
	return result, nil
}

// hunkRanges returns half-open [start, end) ranges of the script, one per hunk.
func (e *Engine) hunkRanges(script []edit) [][2]int {
	var ranges [][2]int
	for k, ed := range script {
		if ed.Type == Context {
			continue
		}
		start := max(0, k-e.contextLines)
		end := min(len(script), k+e.contextLines+1)
		if n := len(ranges); n > 0 && start <= ranges[n-1][1] {
			ranges[n-1][1] = max(ranges[n-1][1], end)
			continue
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

func buildHunk(ops []edit) Hunk {
	hunk := Hunk{
		OldStart: ops[0].OldIndex + 1,
		NewStart: ops[0].NewIndex + 1,
	}
	for _, ed := range ops {
		line := Line{
			Type:    ed.Type,
			Content: string(bytes.TrimSuffix(ed.Content, []byte{'\n'})),
		}
		switch ed.Type {
		case Context:
			line.OldNum, line.NewNum = ed.OldIndex+1, ed.NewIndex+1
			hunk.OldLines++
			hunk.NewLines++
		case Deletion:
			line.OldNum = ed.OldIndex + 1
			hunk.OldLines++
		case Addition:
			line.NewNum = ed.NewIndex + 1
			hunk.NewLines++
		}
		hunk.Lines = append(hunk.Lines, line)
	}
	return hunk
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
