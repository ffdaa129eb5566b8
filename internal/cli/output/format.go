// Package output formats command results for the hsync CLI as tables,
// JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format is an output encoding selected with --output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json, yaml or yml, case-insensitively. An
// empty string selects table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case "yml":
		return FormatYAML, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
}

func (f Format) String() string {
	return string(f)
}

// Printer writes results in one format. Status lines are colored only
// when color is enabled.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter creates a Printer.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	return &Printer{out: out, format: format, color: color}
}

func (p *Printer) Format() Format { return p.format }

func (p *Printer) Writer() io.Writer { return p.out }

// Print encodes data. Table output needs a TableRenderer; anything else is
// printed as JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	case FormatTable:
		if t, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, t)
		}
		return PrintJSON(p.out, data)
	}
	return fmt.Errorf("unknown format: %s", p.format)
}

func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// ANSI colors for status lines.
const (
	colorGreen  = "32"
	colorYellow = "33"
)

func (p *Printer) status(color, msg string) {
	if p.color {
		msg = "\033[" + color + "m" + msg + "\033[0m"
	}
	_, _ = fmt.Fprintln(p.out, msg)
}

// Success prints a completed-action line.
func (p *Printer) Success(msg string) { p.status(colorGreen, msg) }

// Warning prints a line the user should notice.
func (p *Printer) Warning(msg string) { p.status(colorYellow, msg) }
