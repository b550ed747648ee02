package tools

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff line kinds.
const (
	DiffAdd     = "add"
	DiffRemove  = "remove"
	DiffContext = "context"
)

// Change kinds for a write.
const (
	ChangeCreate = "create"
	ChangeModify = "modify"
)

// DiffLine is one rendered line of a preview. LineNumber refers to the new
// file for added/context lines and to the original file for removed lines.
type DiffLine struct {
	LineNumber int    `json:"line_number"`
	Type       string `json:"type"`
	Content    string `json:"content"`
}

// DiffPreview describes the effect of a pending write. It is computed before
// the write happens and attached to the tool result for review.
type DiffPreview struct {
	FilePath        string     `json:"file_path"`
	OriginalContent string     `json:"original_content,omitempty"`
	NewContent      string     `json:"new_content"`
	DiffLines       []DiffLine `json:"diff_lines"`
	ChangeType      string     `json:"change_type"`
}

// BuildDiffPreview computes a line diff between original and updated
// content. New files render entirely as additions.
func BuildDiffPreview(path, original, updated string, exists bool) DiffPreview {
	preview := DiffPreview{
		FilePath:   path,
		NewContent: updated,
		ChangeType: ChangeCreate,
	}

	if !exists {
		for i, line := range splitLines(updated) {
			preview.DiffLines = append(preview.DiffLines, DiffLine{
				LineNumber: i + 1,
				Type:       DiffAdd,
				Content:    line,
			})
		}
		return preview
	}

	preview.ChangeType = ChangeModify
	preview.OriginalContent = original

	dmp := diffmatchpatch.New()
	oldChars, newChars, lineArray := dmp.DiffLinesToChars(original, updated)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldChars, newChars, false), lineArray)

	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldLine++
				newLine++
				preview.DiffLines = append(preview.DiffLines, DiffLine{
					LineNumber: newLine,
					Type:       DiffContext,
					Content:    line,
				})
			case diffmatchpatch.DiffDelete:
				oldLine++
				preview.DiffLines = append(preview.DiffLines, DiffLine{
					LineNumber: oldLine,
					Type:       DiffRemove,
					Content:    line,
				})
			case diffmatchpatch.DiffInsert:
				newLine++
				preview.DiffLines = append(preview.DiffLines, DiffLine{
					LineNumber: newLine,
					Type:       DiffAdd,
					Content:    line,
				})
			}
		}
	}
	return preview
}

// Stats returns the number of added and removed lines.
func (p DiffPreview) Stats() (added, removed int) {
	for _, l := range p.DiffLines {
		switch l.Type {
		case DiffAdd:
			added++
		case DiffRemove:
			removed++
		}
	}
	return added, removed
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
