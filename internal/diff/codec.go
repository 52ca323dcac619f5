package diff

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	apperrors "sbvc/internal/errors"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Insertion is one line added by a Difference. Line is the index of the
// inserted line in the resulting content.
type Insertion struct {
	Line int    `json:"line"`
	Text []byte `json:"text"`
}

// Difference is a line-level delta from a base content to a derived one.
// Deletions index lines of the base; Insertions index lines of the result.
// Both are strictly increasing.
type Difference struct {
	Deletions  []int       `json:"deletions"`
	Insertions []Insertion `json:"insertions"`
}

// IsEmpty reports whether applying d leaves the base unchanged.
func (d Difference) IsEmpty() bool {
	return len(d.Deletions) == 0 && len(d.Insertions) == 0
}

// Clone returns a deep copy of d.
func (d Difference) Clone() Difference {
	out := Difference{
		Deletions:  append([]int(nil), d.Deletions...),
		Insertions: make([]Insertion, len(d.Insertions)),
	}
	for i, ins := range d.Insertions {
		out.Insertions[i] = Insertion{Line: ins.Line, Text: bytes.Clone(ins.Text)}
	}
	return out
}

// Validate checks the structural well-formedness of d without a base.
func (d Difference) Validate() error {
	prev := -1
	for _, del := range d.Deletions {
		if del <= prev {
			return apperrors.CorruptDifference("deletion index %d out of order", del)
		}
		prev = del
	}
	prev = -1
	for _, ins := range d.Insertions {
		if ins.Line <= prev {
			return apperrors.CorruptDifference("insertion index %d out of order", ins.Line)
		}
		prev = ins.Line
	}
	return nil
}

// SplitLines splits content into lines that keep their '\n' terminator.
// The final line may lack one. Empty content has no lines.
func SplitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	lines := bytes.SplitAfter(content, []byte{'\n'})
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Compute returns the Difference that turns oldContent into newContent.
// Identical inputs always produce identical output.
func Compute(oldContent, newContent []byte) (Difference, error) {
	oldLines := SplitLines(oldContent)
	newLines := SplitLines(newContent)

	script, err := editScript(oldLines, newLines)
	if err != nil {
		return Difference{}, err
	}

	var d Difference
	for _, ed := range script {
		switch ed.Type {
		case Deletion:
			d.Deletions = append(d.Deletions, ed.OldIndex)
		case Addition:
			d.Insertions = append(d.Insertions, Insertion{
				Line: ed.NewIndex,
				Text: bytes.Clone(ed.Content),
			})
		}
	}
	return d, nil
}

// Apply reconstructs the content described by d on top of base. It fails with
// a CorruptDifference error when d references lines base does not have.
func Apply(base []byte, d Difference) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	lines := SplitLines(base)
	if n := len(d.Deletions); n > 0 && d.Deletions[n-1] >= len(lines) {
		return nil, apperrors.CorruptDifference(
			"deletion of line %d in content of %d lines", d.Deletions[n-1], len(lines))
	}

	kept := make([][]byte, 0, len(lines))
	di := 0
	for idx, line := range lines {
		if di < len(d.Deletions) && d.Deletions[di] == idx {
			di++
			continue
		}
		kept = append(kept, line)
	}

	out := make([][]byte, 0, len(kept)+len(d.Insertions))
	ki := 0
	for _, ins := range d.Insertions {
		for len(out) < ins.Line {
			if ki >= len(kept) {
				return nil, apperrors.CorruptDifference(
					"insertion at line %d past end of content", ins.Line)
			}
			out = append(out, kept[ki])
			ki++
		}
		out = append(out, ins.Text)
	}
	out = append(out, kept[ki:]...)

	return bytes.Join(out, nil), nil
}

// edit is one step of a line edit script.
type edit struct {
	Type     LineType
	OldIndex int
	NewIndex int
	Content  []byte
}

// maxTokens bounds the number of distinct lines a single diff can handle:
// every distinct line is encoded as one non-surrogate rune.
const maxTokens = utf8.MaxRune - 0x800

func tokenRune(idx int) rune {
	r := rune(idx + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// tokenize maps every distinct line to a rune so the Myers diff in
// diffmatchpatch operates on whole lines.
func tokenize(oldLines, newLines [][]byte) ([]rune, []rune, error) {
	index := make(map[string]int)
	encode := func(lines [][]byte) ([]rune, error) {
		out := make([]rune, len(lines))
		for i, line := range lines {
			idx, ok := index[string(line)]
			if !ok {
				idx = len(index)
				if idx >= maxTokens {
					return nil, fmt.Errorf("too many distinct lines to diff: %d", idx)
				}
				index[string(line)] = idx
			}
			out[i] = tokenRune(idx)
		}
		return out, nil
	}

	a, err := encode(oldLines)
	if err != nil {
		return nil, nil, err
	}
	b, err := encode(newLines)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func editScript(oldLines, newLines [][]byte) ([]edit, error) {
	a, b, err := tokenize(oldLines, newLines)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	// No deadline: a timed-out diff is valid but not reproducible.
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(a, b, false)

	script := make([]edit, 0, max(len(oldLines), len(newLines)))
	i, j := 0, 0
	for _, df := range diffs {
		n := utf8.RuneCountInString(df.Text)
		for k := 0; k < n; k++ {
			switch df.Type {
			case diffmatchpatch.DiffEqual:
				script = append(script, edit{Type: Context, OldIndex: i, NewIndex: j, Content: oldLines[i]})
				i++
				j++
			case diffmatchpatch.DiffDelete:
				script = append(script, edit{Type: Deletion, OldIndex: i, NewIndex: j, Content: oldLines[i]})
				i++
			case diffmatchpatch.DiffInsert:
				script = append(script, edit{Type: Addition, OldIndex: i, NewIndex: j, Content: newLines[j]})
				j++
			}
		}
	}
	if i != len(oldLines) || j != len(newLines) {
		return nil, fmt.Errorf("incomplete edit script: consumed %d/%d old and %d/%d new lines",
			i, len(oldLines), j, len(newLines))
	}
	return script, nil
}
