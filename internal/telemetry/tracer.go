package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to hsync spans.
const (
	AttrClientAddr = "client.address"
	AttrSessionID  = "hsync.session_id"
	AttrStreamID   = "hsync.stream_id"
	AttrCommand    = "hsync.command"
	AttrPath       = "hsync.path"
	AttrCwd        = "hsync.cwd"
	AttrSize       = "hsync.size"
	AttrBytes      = "hsync.bytes"
	AttrHash       = "hsync.hash"
	AttrEntries    = "hsync.entries"
	AttrErrorKind  = "hsync.error_kind"
	AttrDigestHit  = "hsync.digest_cache_hit"
)

// Span names.
const (
	SpanConnection = "hsync.connection"
	SpanReceive    = "transfer.receive"
	SpanSend       = "transfer.send"
	SpanHash       = "transfer.hash"
)

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

func StreamID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrStreamID, id)
}

func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

func Cwd(p string) attribute.KeyValue {
	return attribute.String(AttrCwd, p)
}

// Size is the declared size of a file in a put or get.
func Size(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(n))
}

// Bytes is the number of body bytes actually moved.
func Bytes(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, int64(n))
}

func Hash(h string) attribute.KeyValue {
	return attribute.String(AttrHash, h)
}

func Entries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

func ErrorKind(kind string) attribute.KeyValue {
	return attribute.String(AttrErrorKind, kind)
}

func DigestHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrDigestHit, hit)
}

// StartCommandSpan starts the span covering one command stream. The span
// is named "hsync.<command>".
func StartCommandSpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, Command(command))
	all = append(all, attrs...)
	return StartSpan(ctx, "hsync."+command,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(all...),
	)
}

// StartTransferSpan starts an internal span for a body transfer or hash pass.
func StartTransferSpan(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, Path(path))
	all = append(all, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}
