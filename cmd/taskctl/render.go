package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"taskcal/internal/domain"
	"taskcal/internal/view"
)

const defaultColumns = 100

// describe turns a classified failure into the message shown to the user.
func describe(err error) error {
	if err == nil {
		return nil
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return err
	case domain.KindUnauthorized:
		return errors.New("not signed in or token expired; set --token or TASKCAL_TOKEN")
	case domain.KindNotFound:
		return errors.New("task not found; it may have been deleted")
	}
	return errors.New("could not reach the task store; try again later")
}

func renderPage(w io.Writer, p view.Page, cols int) {
	if cols <= 0 {
		cols = defaultColumns
	}
	if p.Empty() {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	for _, g := range p.Groups {
		fmt.Fprintf(w, "== %s ==\n", g.Key)
		for _, t := range g.Tasks {
			fmt.Fprintf(w, "  %s\n", t.ID)
			if title := strings.TrimSpace(t.Title); title != "" {
				fmt.Fprintf(w, "    %s\n", runewidth.Truncate(title, cols-4, "…"))
			}
			for _, line := range strings.Split(t.Body, "\n") {
				fmt.Fprintf(w, "    %s\n", runewidth.Truncate(line, cols-4, "…"))
			}
		}
	}
	fmt.Fprintf(w, "page %d/%d, %d tasks (%s)\n", p.Number, p.TotalPages, p.Total, scope(p))
}

func scope(p view.Page) string {
	switch p.Mode {
	case domain.FilterToday:
		return p.Reference.Key()
	case domain.FilterMonth:
		return p.Reference.MonthOf().String()
	}
	return "all"
}

// renderCalendar draws a Sunday-first grid. Markers: '*' today, '>' selected,
// '.' has tasks.
func renderCalendar(w io.Writer, c view.Calendar) {
	fmt.Fprintf(w, "%s\n", c.Month.First().Time().Format("January 2006"))
	fmt.Fprintln(w, "  Su  Mo  Tu  We  Th  Fr  Sa")
	for _, week := range c.Weeks() {
		var b strings.Builder
		for _, cell := range week {
			if cell.Blank {
				b.WriteString("    ")
				continue
			}
			fmt.Fprintf(&b, " %c%2d", marker(cell.Highlight()), cell.Day.Day)
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}

func marker(h view.Highlight) rune {
	switch h {
	case view.HighlightToday:
		return '*'
	case view.HighlightSelected:
		return '>'
	case view.HighlightHasTasks:
		return '.'
	}
	return ' '
}
