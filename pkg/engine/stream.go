package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/internal/telemetry"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/metrics"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/session"
	"github.com/marmos91/hsync/pkg/transfer"
	"github.com/marmos91/hsync/pkg/transport"
)

// streamState is the position of a stream in its single exchange.
type streamState int

const (
	stateAwaitingRequest streamState = iota
	stateDispatching
	stateStreamingBody
	stateAwaitingCompletion
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateAwaitingRequest:
		return "awaiting_request"
	case stateDispatching:
		return "dispatching"
	case stateStreamingBody:
		return "streaming_body"
	case stateAwaitingCompletion:
		return "awaiting_completion"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// kindAborted labels exchanges that ended without a response, or with a
// success response followed by a failed body.
const kindAborted = "Aborted"

// exchange tracks one stream from request to close.
type exchange struct {
	e      *Engine
	sess   *session.Session
	stream transport.Stream
	state  streamState
	start  time.Time

	cmd  string
	path string
	loc  session.Location

	// Filled in as the exchange progresses, for logs and the audit trail.
	resp  protocol.Response
	bytes uint64
	err   error
}

func (x *exchange) transition(ctx context.Context, next streamState) {
	logger.DebugCtx(ctx, "Stream state", logger.KeyState, next.String(), "from", x.state.String())
	x.state = next
}

// ServeStream runs one command exchange on stream and closes it. Protocol
// errors are answered with a failure response; transport errors abort the
// stream without one.
func (e *Engine) ServeStream(ctx context.Context, sess *session.Session, stream transport.Stream) {
	x := &exchange{
		e:      e,
		sess:   sess,
		stream: stream,
		state:  stateAwaitingRequest,
		start:  time.Now(),
	}

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(sess.ID, sess.RemoteAddr)
	}
	lc = lc.WithStream(stream.ID())
	ctx = logger.WithContext(ctx, lc)

	sess.CommandStarted()
	defer sess.CommandFinished()

	req, err := protocol.ReadRequest(stream, e.cfg.MaxFrameSize)
	if err != nil {
		x.rejectFrame(ctx, err)
		return
	}

	x.cmd, x.path = req.Cmd, req.Path
	if req.Cmd == protocol.CmdDown && req.Target != "" {
		x.path = req.Target
	}
	lc = lc.WithCommand(x.cmd, x.path)
	ctx = logger.WithContext(ctx, lc)

	ctx, span := telemetry.StartCommandSpan(ctx, x.cmd,
		telemetry.SessionID(sess.ID),
		telemetry.StreamID(stream.ID()),
		telemetry.Path(x.path),
	)
	defer span.End()
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		ctx = logger.WithContext(ctx, lc.WithTrace(traceID))
	}

	if e.metrics != nil {
		e.metrics.RecordCommandStart(x.cmd)
		defer e.metrics.RecordCommandEnd(x.cmd)
	}
	defer x.finish(ctx)

	x.transition(ctx, stateDispatching)
	cmd, err := protocol.Decode(req)
	if err != nil {
		x.respond(ctx, protocol.Failure(err), err)
		return
	}

	// Every command resolves against this one snapshot. Navigation reads
	// the live location again under the session lock.
	x.loc = sess.Snapshot()

	reply, err := x.dispatch(ctx, cmd)
	if err != nil {
		if !isProtocolError(err) {
			x.abort(ctx, err)
			return
		}
		x.respond(ctx, protocol.Failure(err), err)
		return
	}

	if !x.respond(ctx, reply.Response, nil) || !reply.Response.OK {
		if reply.Body != nil {
			_ = reply.Body.Close()
		}
		return
	}

	if reply.Body != nil {
		x.sendBody(ctx, reply)
		if x.err != nil {
			return
		}
	}

	x.transition(ctx, stateAwaitingCompletion)
	if err := stream.Close(); err != nil {
		logger.DebugCtx(ctx, "Failed to close stream", logger.Err(err))
	}
}

// dispatch runs the command handler, converting a panic into IOFailure.
func (x *exchange) dispatch(ctx context.Context, cmd protocol.Command) (reply *protocol.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "Panic in command handler",
				"panic", r,
				"stack", string(debug.Stack()))
			reply, err = nil, protocol.Errorf(protocol.IOFailure, "internal error")
		}
	}()

	h := &handler{x: x, ctx: ctx}
	reply, err = cmd.Dispatch(h)
	if err == nil && reply == nil {
		reply = protocol.OK()
	}
	return reply, err
}

// rejectFrame handles a request frame that could not be read.
func (x *exchange) rejectFrame(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		x.respondEarly(ctx, protocol.Errorf(protocol.MalformedRequest, "empty request"))
	case errors.Is(err, protocol.ErrMalformedFrame), errors.Is(err, protocol.ErrFrameTooLarge):
		x.respondEarly(ctx, protocol.Wrap(protocol.MalformedRequest, err, err.Error()))
	default:
		// The stream itself failed; there is nobody to answer.
		x.abort(ctx, err)
		x.finish(ctx)
	}
}

func (x *exchange) respondEarly(ctx context.Context, perr *protocol.Error) {
	x.respond(ctx, protocol.Failure(perr), perr)
	x.finish(ctx)
}

// respond writes the single response frame. Any body the client may still
// be sending is refused first so the client stops writing and reads the
// answer. It reports whether the frame was written.
func (x *exchange) respond(ctx context.Context, resp protocol.Response, cause error) bool {
	x.resp = resp
	if cause != nil {
		x.err = cause
	}

	x.stream.CancelRead()
	if err := protocol.WriteResponse(x.stream, resp); err != nil {
		logger.DebugCtx(ctx, "Failed to write response", logger.Err(err))
		x.err = err
		x.stream.CancelWrite()
		x.state = stateClosed
		return false
	}
	if !resp.OK {
		x.transition(ctx, stateAwaitingCompletion)
		_ = x.stream.Close()
		x.state = stateClosed
	}
	return true
}

// abort tears the stream down without a response.
func (x *exchange) abort(ctx context.Context, err error) {
	x.err = err
	logger.DebugCtx(ctx, "Stream aborted", logger.Err(err))
	x.stream.CancelRead()
	x.stream.CancelWrite()
	x.state = stateClosed
}

func (x *exchange) sendBody(ctx context.Context, reply *protocol.Reply) {
	defer reply.Body.Close()
	x.transition(ctx, stateStreamingBody)

	ctx, span := telemetry.StartTransferSpan(ctx, telemetry.SpanSend, x.path, telemetry.Size(reply.BodySize))
	defer span.End()

	sent, err := transfer.Send(ctx, x.stream, reply.Body, reply.BodySize, x.e.transferOptions())
	x.bytes = sent
	if x.e.metrics != nil && sent > 0 {
		x.e.metrics.RecordBytes(metrics.DirectionDownload, sent)
	}
	if err != nil {
		// The response already went out as a success; the only way left to
		// tell the client is to reset the stream so it sees a short body.
		telemetry.RecordError(ctx, err)
		x.abort(ctx, err)
		return
	}
	telemetry.SetAttributes(ctx, telemetry.Bytes(sent))
}

// finish logs the exchange and records its metrics and audit entry.
func (x *exchange) finish(ctx context.Context) {
	x.state = stateClosed
	elapsed := time.Since(x.start)

	kind := ""
	switch {
	case x.err != nil && !isProtocolError(x.err):
		kind = kindAborted
	case !x.resp.OK:
		kind = string(x.resp.Error)
	}
	if kind != "" {
		telemetry.SetAttributes(ctx, telemetry.ErrorKind(kind))
	}
	if x.err != nil {
		telemetry.RecordError(ctx, x.err)
	}

	if x.e.metrics != nil {
		x.e.metrics.RecordCommand(metricName(x.cmd), elapsed, kind)
	}
	x.e.recordAudit(x)

	args := []any{logger.DurationMs(float64(elapsed.Microseconds()) / 1000)}
	if x.bytes > 0 {
		args = append(args, logger.Size(x.bytes))
	}
	switch {
	case x.resp.OK && x.err == nil:
		logger.InfoCtx(ctx, "Command completed", args...)
	case isProtocolError(x.err):
		args = append(args, logger.ErrorKind(kind), logger.Err(x.err))
		logger.InfoCtx(ctx, "Command failed", args...)
	default:
		args = append(args, logger.Err(x.err))
		logger.WarnCtx(ctx, "Command aborted", args...)
	}
}

func (e *Engine) recordAudit(x *exchange) {
	if e.audit == nil {
		return
	}
	entry := audit.Entry{
		Event:      audit.EventCommand,
		SessionID:  x.sess.ID,
		ClientAddr: x.sess.RemoteAddr,
		Command:    x.cmd,
		Path:       x.path,
		Cwd:        x.loc.Cwd,
		Bytes:      x.bytes,
		Hash:       x.resp.Hash,
		OK:         x.resp.OK && x.err == nil,
		DurationMs: time.Since(x.start).Milliseconds(),
	}
	if x.resp.Cwd != nil {
		entry.Cwd = *x.resp.Cwd
	}
	if !entry.OK {
		entry.ErrorKind = string(x.resp.Error)
		entry.Message = x.resp.Message
		if x.err != nil && !isProtocolError(x.err) {
			entry.ErrorKind = kindAborted
			entry.Message = x.err.Error()
		}
	}
	e.audit.Record(entry)
}

// metricName keeps label cardinality bounded when clients send junk.
func metricName(cmd string) string {
	switch cmd {
	case protocol.CmdPut, protocol.CmdGet, protocol.CmdView,
		protocol.CmdList, protocol.CmdListLong, protocol.CmdListRecursive,
		protocol.CmdUp, protocol.CmdDown, protocol.CmdStatus:
		return cmd
	}
	return "unknown"
}

func isProtocolError(err error) bool {
	var pe *protocol.Error
	return errors.As(err, &pe)
}
