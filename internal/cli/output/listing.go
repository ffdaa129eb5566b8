package output

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/session"
)

// ListingStyle selects the columns of a directory listing.
type ListingStyle int

const (
	// ListingShort shows names only.
	ListingShort ListingStyle = iota
	// ListingLong adds permissions, size and modification time.
	ListingLong
	// ListingRecursive shows relative paths with size and modification time.
	ListingRecursive
)

// Listing renders protocol entries as a table. Directory names carry a
// trailing slash.
type Listing struct {
	Entries []protocol.Entry
	Style   ListingStyle
	// Exact prints sizes in bytes instead of humanized units.
	Exact bool
}

// Headers implements TableRenderer.
func (l Listing) Headers() []string {
	switch l.Style {
	case ListingLong:
		return []string{"PERM", "SIZE", "MODIFIED", "NAME"}
	case ListingRecursive:
		return []string{"SIZE", "MODIFIED", "PATH"}
	default:
		return []string{"NAME"}
	}
}

// Rows implements TableRenderer.
func (l Listing) Rows() [][]string {
	rows := make([][]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		name := e.Name
		if e.IsDir && !strings.HasSuffix(name, "/") {
			name += "/"
		}
		switch l.Style {
		case ListingLong:
			rows = append(rows, []string{e.Perm, l.size(e.Size), FormatTime(e.Modified), name})
		case ListingRecursive:
			rows = append(rows, []string{l.size(e.Size), FormatTime(e.Modified), name})
		default:
			rows = append(rows, []string{name})
		}
	}
	return rows
}

// RightAligned implements RightAligned for the size column.
func (l Listing) RightAligned() []int {
	switch l.Style {
	case ListingLong:
		return []int{1}
	case ListingRecursive:
		return []int{0}
	}
	return nil
}

func (l Listing) size(v *uint64) string {
	if v == nil {
		return "-"
	}
	if l.Exact {
		return strconv.FormatUint(*v, 10)
	}
	return humanize.IBytes(*v)
}

// StatusView renders a server status report as key/value pairs.
type StatusView struct {
	*protocol.StatusInfo
}

// Pairs returns the rows printed by SimpleTable.
func (s StatusView) Pairs() [][2]string {
	return [][2]string{
		{"Server", s.Server},
		{"Version", s.Version},
		{"Root", s.Root},
		{"Session", s.SessionID},
		{"Cwd", "/" + s.Cwd},
		{"Started", s.StartedAt.Local().Format(time.RFC3339)},
		{"Uptime", FormatUptime(time.Duration(s.UptimeSeconds) * time.Second)},
		{"Sessions", strconv.Itoa(s.ActiveSessions)},
		{"Files", humanize.Comma(int64(s.FileCount))},
		{"Stored", humanize.IBytes(s.TotalBytes)},
		{"Free", humanize.IBytes(s.FreeBytes)},
	}
}

// Headers implements TableRenderer.
func (s StatusView) Headers() []string { return []string{"FIELD", "VALUE"} }

// Rows implements TableRenderer.
func (s StatusView) Rows() [][]string {
	pairs := s.Pairs()
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	return rows
}

// SessionList renders the sessions reported by the management API.
type SessionList []session.Info

// Headers implements TableRenderer.
func (l SessionList) Headers() []string {
	return []string{"ID", "CLIENT", "CWD", "COMMANDS", "IN FLIGHT", "LAST ACTIVITY"}
}

// Rows implements TableRenderer.
func (l SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{
			s.ID,
			s.RemoteAddr,
			"/" + s.Cwd,
			strconv.FormatUint(s.Commands, 10),
			strconv.Itoa(int(s.InFlight)),
			humanize.Time(s.LastActivity),
		})
	}
	return rows
}

// AuditTable renders audit entries.
type AuditTable []audit.Entry

// Headers implements TableRenderer.
func (t AuditTable) Headers() []string {
	return []string{"TIME", "EVENT", "SESSION", "CMD", "PATH", "BYTES", "RESULT"}
}

// Rows implements TableRenderer.
func (t AuditTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, AuditRow(e))
	}
	return rows
}

// AuditRow formats a single audit entry with the AuditTable columns.
func AuditRow(e audit.Entry) []string {
	result := "ok"
	if !e.OK {
		result = e.ErrorKind
		if result == "" {
			result = "failed"
		}
	}
	bytes := ""
	if e.Bytes > 0 {
		bytes = humanize.IBytes(e.Bytes)
	}
	sid := e.SessionID
	if len(sid) > 8 {
		sid = sid[:8]
	}
	return []string{
		e.Time.Local().Format(time.DateTime),
		string(e.Event),
		sid,
		e.Command,
		e.Path,
		bytes,
		result,
	}
}
