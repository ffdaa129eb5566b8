package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/session"
	"github.com/marmos91/hsync/pkg/transfer"
)

// TreeUsage summarises the regular files under the root.
type TreeUsage struct {
	Files uint64
	Bytes uint64
}

// Usage walks the root and counts regular files, skipping upload artifacts.
// Unreadable subtrees are skipped.
func (e *Engine) Usage(ctx context.Context) (TreeUsage, error) {
	var u TreeUsage
	root := e.sandbox.Root()
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || transfer.IsTempArtifact(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		u.Files++
		u.Bytes += uint64(info.Size())
		return nil
	})
	return u, err
}

// Status builds the status payload for sess. A nil session reports the
// root as cwd.
func (e *Engine) Status(ctx context.Context, sess *session.Session) (*protocol.StatusInfo, error) {
	usage, err := e.Usage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, protocol.FromFS(err, "/")
	}

	free, err := freeBytes(e.sandbox.Root())
	if err != nil {
		logger.DebugCtx(ctx, "Failed to read free space", logger.Err(err))
	}

	info := &protocol.StatusInfo{
		Server:         e.cfg.ServerName,
		Version:        e.cfg.Version,
		Root:           e.sandbox.Root(),
		StartedAt:      e.started.UTC(),
		UptimeSeconds:  int64(time.Since(e.started).Seconds()),
		ActiveSessions: e.sessions.Count(),
		FileCount:      usage.Files,
		TotalBytes:     usage.Bytes,
		FreeBytes:      free,
	}
	if sess != nil {
		info.SessionID = sess.ID
		info.Cwd = sess.Snapshot().Cwd
	}
	return info, nil
}
