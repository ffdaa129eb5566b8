package logger

import "log/slog"

// Standard field keys. Use them consistently so log lines can be queried.
const (
	KeyTraceID = "trace_id"

	KeySessionID  = "session_id"
	KeyClientAddr = "client_addr"
	KeyStreamID   = "stream_id"
	KeyCommand    = "cmd"
	KeyPath       = "path"
	KeyTarget     = "target"
	KeyCwd        = "cwd"

	KeySize       = "size"
	KeyWritten    = "written"
	KeyHash       = "hash"
	KeyEntries    = "entries"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorKind  = "error_kind"

	KeyRoot    = "root"
	KeyAddress = "address"
	KeyState   = "state"
)

// SessionID returns an attr for a session identifier.
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }

// ClientAddr returns an attr for a remote address.
func ClientAddr(addr string) slog.Attr { return slog.String(KeyClientAddr, addr) }

// Command returns an attr for a command name.
func Command(name string) slog.Attr { return slog.String(KeyCommand, name) }

// Path returns an attr for a sandbox-relative path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Cwd returns an attr for a session working directory.
func Cwd(p string) slog.Attr { return slog.String(KeyCwd, p) }

// Size returns an attr for a byte count.
func Size(n uint64) slog.Attr { return slog.Uint64(KeySize, n) }

// DurationMs returns an attr for an elapsed time in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// ErrorKind returns an attr for a protocol error kind.
func ErrorKind(kind string) slog.Attr { return slog.String(KeyErrorKind, kind) }

// Err returns an attr for an error; nil yields an empty attr that handlers skip.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
