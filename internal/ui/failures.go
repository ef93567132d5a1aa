package ui

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// FailureRow is one line of the end-of-run failure table.
type FailureRow struct {
	Path  string
	Kind  string
	Error string
}

// RenderFailures prints rows as a borderless table, capped at limit rows
// (0 means all) with a trailing count of what was left out.
func RenderFailures(w io.Writer, rows []FailureRow, limit int) error {
	if len(rows) == 0 {
		return nil
	}
	shown := rows
	if limit > 0 && len(rows) > limit {
		shown = rows[:limit]
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"PATH", "KIND", "ERROR"}),
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{
				Left:   tw.Off,
				Right:  tw.Off,
				Top:    tw.Off,
				Bottom: tw.Off,
			},
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader:     tw.Off,
					ShowFooter:     tw.Off,
					BetweenRows:    tw.Off,
					BetweenColumns: tw.Off,
				},
				Lines: tw.Lines{
					ShowTop:        tw.Off,
					ShowBottom:     tw.Off,
					ShowHeaderLine: tw.Off,
					ShowFooterLine: tw.Off,
				},
			},
		}))

	for _, r := range shown {
		if err := table.Append([]string{r.Path, r.Kind, r.Error}); err != nil {
			return fmt.Errorf("append failure row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render failure table: %w", err)
	}
	if rest := len(rows) - len(shown); rest > 0 {
		fmt.Fprintf(w, "... and %s more\n", FormatCount(int64(rest)))
	}
	return nil
}
