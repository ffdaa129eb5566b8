package engine

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/internal/telemetry"
	"github.com/marmos91/hsync/pkg/metrics"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/sandbox"
	"github.com/marmos91/hsync/pkg/session"
	"github.com/marmos91/hsync/pkg/transfer"
)

// handler executes one decoded command for an exchange.
//
// File commands read x.loc, the snapshot taken before dispatch. Navigation
// commands ignore it and work on the live location under the session lock.
type handler struct {
	x   *exchange
	ctx context.Context
}

var _ protocol.Handler = (*handler)(nil)

func (h *handler) engine() *Engine {
	return h.x.e
}

// Put receives the upload body into path.
func (h *handler) Put(c protocol.Put) (*protocol.Reply, error) {
	e := h.engine()

	res, err := e.sandbox.Resolve(h.x.loc.Cwd, c.Path)
	if err != nil {
		return nil, err
	}
	if res.Rel == "" {
		return nil, protocol.Errorf(protocol.IsADirectory, "cannot upload onto the root")
	}
	if transfer.IsTempArtifact(path.Base(res.Rel)) {
		return nil, protocol.Errorf(protocol.MalformedRequest, "%q is a reserved name", path.Base(res.Rel))
	}

	h.x.transition(h.ctx, stateStreamingBody)
	ctx, span := telemetry.StartTransferSpan(h.ctx, telemetry.SpanReceive, res.Rel,
		telemetry.Size(c.Size), telemetry.Hash(c.Hash))
	pub, err := transfer.ReceiveFile(ctx, h.x.stream, res.Abs, c.Size, c.Hash, e.transferOptions())
	written := pub.Size
	h.x.bytes = written
	if e.metrics != nil && written > 0 {
		e.metrics.RecordBytes(metrics.DirectionUpload, written)
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		span.End()
		return nil, err
	}
	span.End()

	if e.index != nil {
		if err := e.index.Record(res.Rel, c.Hash, written, pub.ModTime); err != nil {
			logger.WarnCtx(h.ctx, "Failed to record digest", logger.Err(err))
		}
	}

	reply := protocol.OK()
	reply.Response.Written = protocol.Uint64(written)
	reply.Response.Hash = c.Hash
	return reply, nil
}

// Get serves the file at path as the response body.
func (h *handler) Get(c protocol.Get) (*protocol.Reply, error) {
	return h.download(c.Path)
}

// View serves the same bytes as Get; only the client treats them differently.
func (h *handler) View(c protocol.View) (*protocol.Reply, error) {
	return h.download(c.Path)
}

func (h *handler) download(p string) (*protocol.Reply, error) {
	e := h.engine()

	res, err := e.sandbox.Resolve(h.x.loc.Cwd, p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(res.Abs)
	if err != nil {
		return nil, protocol.FromFS(err, p)
	}
	keep := false
	defer func() {
		if !keep {
			_ = f.Close()
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, protocol.FromFS(err, p)
	}
	if info.IsDir() {
		return nil, protocol.Errorf(protocol.IsADirectory, "%q is a directory", p)
	}
	if !info.Mode().IsRegular() {
		return nil, protocol.Errorf(protocol.IOFailure, "%q is not a regular file", p)
	}

	size := uint64(info.Size())
	hash, err := h.digestOf(f, res.Rel, size, info)
	if err != nil {
		return nil, err
	}

	keep = true
	reply := protocol.OK()
	reply.Response.Size = protocol.Uint64(size)
	reply.Response.Hash = hash
	reply.Body = f
	reply.BodySize = size
	return reply, nil
}

// digestOf returns the digest of the open file f, from the index when its
// size and modification time still match, otherwise by hashing f and
// rewinding it.
func (h *handler) digestOf(f *os.File, rel string, size uint64, info os.FileInfo) (string, error) {
	e := h.engine()

	if e.index != nil {
		hash, ok := e.index.Lookup(rel, size, info.ModTime())
		if e.metrics != nil {
			e.metrics.RecordDigestLookup(ok)
		}
		telemetry.SetAttributes(h.ctx, telemetry.DigestHit(ok))
		if ok {
			return hash, nil
		}
	}

	_, span := telemetry.StartTransferSpan(h.ctx, telemetry.SpanHash, rel, telemetry.Size(size))
	defer span.End()

	hash, n, err := transfer.HashReader(f)
	if err != nil {
		return "", protocol.Wrap(protocol.IOFailure, err, "read failed")
	}
	if n != size {
		return "", protocol.Errorf(protocol.IOFailure, "file changed while reading")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", protocol.Wrap(protocol.IOFailure, err, "seek failed")
	}

	if e.index != nil {
		if err := e.index.Record(rel, hash, size, info.ModTime()); err != nil {
			logger.WarnCtx(h.ctx, "Failed to record digest", logger.Err(err))
		}
	}
	return hash, nil
}

// List returns the names of the immediate children of path.
func (h *handler) List(c protocol.List) (*protocol.Reply, error) {
	return h.listing(c.Path, listShort)
}

// ListLong returns the immediate children with size, time and permissions.
func (h *handler) ListLong(c protocol.ListLong) (*protocol.Reply, error) {
	return h.listing(c.Path, listLong)
}

// ListRecursive returns every entry below path, depth first.
func (h *handler) ListRecursive(c protocol.ListRecursive) (*protocol.Reply, error) {
	return h.listing(c.Path, listRecursive)
}

func (h *handler) listing(p string, mode listMode) (*protocol.Reply, error) {
	res, err := h.engine().sandbox.ResolveDir(h.x.loc.Cwd, p)
	if err != nil {
		return nil, err
	}

	entries, err := readListing(h.ctx, res.Abs, mode)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(h.ctx, telemetry.Entries(len(entries)))

	reply := protocol.OK()
	reply.Response.Entries = entries
	return reply, nil
}

// Up moves the session to the parent of its current directory. At the root
// it succeeds without moving.
func (h *handler) Up(protocol.Up) (*protocol.Reply, error) {
	sb := h.engine().sandbox
	return h.navigate(func(cur session.Location) (*session.Location, error) {
		parent, atRoot := sandbox.Parent(cur.Cwd)
		if atRoot {
			return nil, nil
		}
		res, err := sb.CheckDir(parent)
		if err != nil {
			return nil, err
		}
		return &session.Location{Cwd: res.Rel, Previous: cur.Cwd}, nil
	})
}

// Down enters the named child directory or, without a name, swaps the
// current and previous directories.
func (h *handler) Down(c protocol.Down) (*protocol.Reply, error) {
	sb := h.engine().sandbox
	return h.navigate(func(cur session.Location) (*session.Location, error) {
		var (
			res sandbox.Resolved
			err error
		)
		if c.Path == "" {
			res, err = sb.CheckDir(cur.Previous)
		} else {
			res, err = sb.EnterDir(cur.Cwd, c.Path)
		}
		if err != nil {
			return nil, err
		}
		return &session.Location{Cwd: res.Rel, Previous: cur.Cwd}, nil
	})
}

func (h *handler) navigate(fn func(cur session.Location) (*session.Location, error)) (*protocol.Reply, error) {
	loc, err := h.x.sess.Navigate(fn)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(h.ctx, telemetry.Cwd(loc.Cwd))
	logger.DebugCtx(h.ctx, "Session moved", logger.Cwd(loc.Cwd))

	reply := protocol.OK()
	reply.Response.Cwd = protocol.String(loc.Cwd)
	return reply, nil
}

// Status reports server identity and health.
func (h *handler) Status(protocol.Status) (*protocol.Reply, error) {
	info, err := h.engine().Status(h.ctx, h.x.sess)
	if err != nil {
		return nil, err
	}
	reply := protocol.OK()
	reply.Response.Status = info
	return reply, nil
}
