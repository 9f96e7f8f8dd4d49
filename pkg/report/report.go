// Package report renders the derived reports as text tables, JSON, YAML or,
// for growth, an HTML chart.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatHTML = "html"
)

// ErrUnknownFormat is returned for a format a report does not support.
var ErrUnknownFormat = errors.New("unknown output format")

const yamlIndent = 2

// Options tune text output.
type Options struct {
	NoColor bool
}

// ParseFormat normalizes name and checks it against the allowed formats.
func ParseFormat(name string, allowed ...string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(name))
	if slices.Contains(allowed, f) {
		return f, nil
	}

	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, name, strings.Join(allowed, ", "))
}

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(v)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(yamlIndent)

		err := enc.Encode(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// textWriter accumulates the text rendition of one report.
type textWriter struct {
	w       io.Writer
	heading *color.Color
	label   *color.Color
	err     error
}

func newTextWriter(w io.Writer, opts Options) *textWriter {
	tw := &textWriter{
		w:       w,
		heading: color.New(color.FgMagenta, color.Bold),
		label:   color.New(color.FgCyan),
	}

	if opts.NoColor {
		tw.heading.DisableColor()
		tw.label.DisableColor()
	}

	return tw
}

func (t *textWriter) title(s string) {
	if t.err != nil {
		return
	}

	_, t.err = t.heading.Fprintln(t.w, s)
}

func (t *textWriter) field(name string, value any) {
	if t.err != nil {
		return
	}

	_, t.err = fmt.Fprintf(t.w, "  %s %v\n", t.label.Sprintf("%-14s", name+":"), value)
}

func (t *textWriter) blank() {
	if t.err != nil {
		return
	}

	_, t.err = fmt.Fprintln(t.w)
}

func (t *textWriter) table(header table.Row, rows []table.Row, footer table.Row) {
	if t.err != nil {
		return
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.SeparateRows = false
	tbl.AppendHeader(header)
	tbl.AppendRows(rows)

	if footer != nil {
		tbl.AppendFooter(footer)
	}

	_, t.err = fmt.Fprintln(t.w, tbl.Render())
}
