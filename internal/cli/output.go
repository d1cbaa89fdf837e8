package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// printer handles formatted output to the terminal
type printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

func newPrinter(out, err io.Writer, useColors bool) *printer {
	return &printer{out: out, err: err, useColors: useColors}
}

func (p *printer) Success(format string, args ...any) {
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
}

func (p *printer) Warning(format string, args ...any) {
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[WARN] "+format+"\n", args...)
}

func (p *printer) Print(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Prompt writes without a trailing newline.
func (p *printer) Prompt(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) Dim(s string) string {
	if p.useColors {
		return color.New(color.Faint).Sprint(s)
	}
	return s
}

func (p *printer) Bold(s string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(s)
	}
	return s
}

func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders rows under headers without borders.
func (p *printer) Table(headers []string, rows [][]string) {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	table.Bulk(rows)
	table.Render()
}
