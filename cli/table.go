package cli

import (
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// versionTable lists migration versions next to the time they were applied
// or created.
type versionTable struct {
	timeHeader string
	loc        *time.Location
	rows       [][]string
}

func newVersionTable(timeHeader string, loc *time.Location) *versionTable {
	if loc == nil {
		loc = time.UTC
	}
	return &versionTable{timeHeader: timeHeader, loc: loc}
}

// add appends a row. A zero t leaves the time column empty.
func (vt *versionTable) add(t time.Time, version string) {
	ts := ""
	if !t.IsZero() {
		ts = t.In(vt.loc).Format(time.DateTime)
	}
	vt.rows = append(vt.rows, []string{ts, version})
}

// render writes the rows as borderless, left aligned columns. Versions are
// never wrapped, so they can be copied into a to or mark command.
func (vt *versionTable) render(w io.Writer) error {
	lines := tw.Lines{
		ShowHeaderLine: tw.On,
		ShowFooterLine: tw.Off,
		ShowTop:        tw.Off,
		ShowBottom:     tw.Off,
	}
	left := tw.CellAlignment{Global: tw.AlignLeft}

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Symbols:  tw.NewSymbols(tw.StyleASCII),
			Settings: tw.Settings{
				Lines: lines,
				Separators: tw.Separators{
					ShowHeader:     tw.Off,
					ShowFooter:     tw.Off,
					BetweenRows:    tw.Off,
					BetweenColumns: tw.Off,
				},
			},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{Alignment: left},
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  left,
			},
		}),
	)

	table.Header([]string{vt.timeHeader, "Version"})
	if err := table.Bulk(vt.rows); err != nil {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return table.Render() //nolint:wrapcheck // This is wrapped by the caller.
}

// versionTime returns the UTC creation time encoded in a migration version.
// The base version has none.
func versionTime(version string) (time.Time, bool) {
	if len(version) < 14 {
		return time.Time{}, false
	}
	t, err := time.Parse("060102_150405", version[1:14])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
