package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that print as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// RightAligned is optionally implemented by a TableRenderer to right-align
// some columns, typically sizes.
type RightAligned interface {
	RightAligned() []int
}

// newTable returns a borderless writer in the CLI's house style.
func newTable(w io.Writer, separator string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator(separator)
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

// PrintTable renders data with a header row.
func PrintTable(w io.Writer, data TableRenderer) error {
	headers := data.Headers()
	t := newTable(w, "")
	t.SetAutoFormatHeaders(true)
	t.SetHeader(headers)

	if ra, ok := data.(RightAligned); ok {
		align := make([]int, len(headers))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
		}
		for _, col := range ra.RightAligned() {
			if col >= 0 && col < len(align) {
				align[col] = tablewriter.ALIGN_RIGHT
			}
		}
		t.SetColumnAlignment(align)
	}

	t.AppendBulk(data.Rows())
	t.Render()
	return nil
}

// SimpleTable renders key/value pairs without a header.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	t := newTable(w, ":")
	t.SetAutoFormatHeaders(false)
	for _, pair := range pairs {
		t.Append(pair[:])
	}
	t.Render()
	return nil
}
