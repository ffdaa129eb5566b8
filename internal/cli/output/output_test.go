package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{" JSON ", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinterFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)
	require.NoError(t, p.Print(map[string]int{"a": 1}))
	assert.JSONEq(t, `{"a":1}`, buf.String())
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatYAML, false)
	require.NoError(t, p.Print(map[string]string{"cwd": "a/b"}))
	assert.Equal(t, "cwd: a/b\n", buf.String())
}

func TestListingRows(t *testing.T) {
	mod := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	entries := []protocol.Entry{
		{Name: "docs", IsDir: true, Size: protocol.Uint64(4096), Modified: &mod, Perm: "drwxr-xr-x"},
		{Name: "a.txt", Size: protocol.Uint64(2048), Modified: &mod, Perm: "-rw-r--r--"},
	}

	short := Listing{Entries: entries}
	assert.Equal(t, [][]string{{"docs/"}, {"a.txt"}}, short.Rows())

	long := Listing{Entries: entries, Style: ListingLong, Exact: true}
	rows := long.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "-rw-r--r--", rows[1][0])
	assert.Equal(t, "2048", rows[1][1])
	assert.Equal(t, "a.txt", rows[1][3])

	long.Exact = false
	assert.Equal(t, "2.0 KiB", long.Rows()[1][1])
}

func TestListingRecursiveDirectoryHasNoSize(t *testing.T) {
	l := Listing{
		Style:   ListingRecursive,
		Entries: []protocol.Entry{{Name: "a/b", IsDir: true}},
	}
	assert.Equal(t, [][]string{{"-", "-", "a/b/"}}, l.Rows())
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	l := Listing{Style: ListingShort, Entries: []protocol.Entry{{Name: "a.txt"}}}
	require.NoError(t, PrintTable(&buf, l))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "a.txt")
}

func TestStatusView(t *testing.T) {
	info := &protocol.StatusInfo{
		Server:        "hsync",
		Cwd:           "a",
		UptimeSeconds: 3700,
		FileCount:     1234,
		TotalBytes:    1 << 20,
	}
	pairs := StatusView{info}.Pairs()
	values := map[string]string{}
	for _, p := range pairs {
		values[p[0]] = p[1]
	}
	assert.Equal(t, "/a", values["Cwd"])
	assert.Equal(t, "1h 1m", values["Uptime"])
	assert.Equal(t, "1,234", values["Files"])
	assert.Equal(t, "1.0 MiB", values["Stored"])
}

func TestAuditRow(t *testing.T) {
	row := AuditRow(audit.Entry{
		Time:      time.Now(),
		Event:     audit.EventCommand,
		SessionID: "0123456789abcdef",
		Command:   "put",
		Path:      "a.txt",
		ErrorKind: "PathEscape",
	})
	assert.Equal(t, "command", row[1])
	assert.Equal(t, "01234567", row[2])
	assert.Equal(t, "", row[5])
	assert.Equal(t, "PathEscape", row[6])
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", FormatUptime(42*time.Second))
	assert.Equal(t, "5m", FormatUptime(5*time.Minute))
	assert.Equal(t, "2d 3h 4m", FormatUptime(51*time.Hour+4*time.Minute))
	assert.True(t, strings.HasSuffix(FormatTime(nil), "-"))
}

func TestPrinterStatusColor(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, true).Success("done")
	assert.Equal(t, "\033[32mdone\033[0m\n", buf.String())

	buf.Reset()
	NewPrinter(&buf, FormatTable, false).Warning("careful")
	assert.Equal(t, "careful\n", buf.String())
}

func TestListingRightAlignsSizes(t *testing.T) {
	assert.Equal(t, []int{1}, Listing{Style: ListingLong}.RightAligned())
	assert.Equal(t, []int{0}, Listing{Style: ListingRecursive}.RightAligned())
	assert.Nil(t, Listing{}.RightAligned())
}
