package view

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"taskcal/internal/domain"
)

// TextSizer estimates the rendered height of a task list item: vertical
// padding, an optional bold title line, the wrapped body and a small date
// line. Widths are measured in terminal display cells.
type TextSizer struct {
	Columns      int
	LineHeight   int
	DateHeight   int
	Padding      int
	EditOverhead int
}

// DefaultTextSizer matches an 800 unit wide list with 16 unit text.
func DefaultTextSizer() TextSizer {
	return TextSizer{
		Columns:      100,
		LineHeight:   24,
		DateHeight:   20,
		Padding:      40,
		EditOverhead: 174,
	}
}

// Size implements Sizer.
func (s TextSizer) Size(t domain.Task) int {
	h := s.Padding + s.DateHeight
	if strings.TrimSpace(t.Title) != "" {
		h += s.LineHeight * s.Lines(t.Title)
	}
	return h + s.LineHeight*s.Lines(t.Body)
}

// Editing returns a Sizer that measures the task with id as an open inline
// editor holding draft, and every other task as usual.
func (s TextSizer) Editing(id string, draft domain.TaskPatch) Sizer {
	return func(t domain.Task) int {
		if t.ID != id {
			return s.Size(t)
		}
		t.Title, t.Body = draft.Title, draft.Body
		return s.Size(t) + s.EditOverhead
	}
}

// Lines counts wrapped lines of text, preserving explicit line breaks.
func (s TextSizer) Lines(text string) int {
	cols := s.Columns
	if cols < 1 {
		cols = 1
	}
	lines := 0
	for _, para := range strings.Split(text, "\n") {
		lines += wrapCount(para, cols)
	}
	return lines
}

// wrapCount greedily word-wraps para at cols cells. Words wider than a line
// are broken across lines.
func wrapCount(para string, cols int) int {
	lines, cur := 1, 0
	for _, word := range strings.Fields(para) {
		w := runewidth.StringWidth(word)
		switch {
		case cur == 0:
			cur = w
		case cur+1+w <= cols:
			cur += 1 + w
		default:
			lines++
			cur = w
		}
		for cur > cols {
			lines++
			cur -= cols
		}
	}
	return lines
}
