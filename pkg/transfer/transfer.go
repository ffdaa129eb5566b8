// Package transfer moves file bodies between a stream and the filesystem.
//
// Receive never exposes a partially written file: bytes go to a temporary
// artifact next to the destination, are digested while they arrive, and the
// artifact is renamed over the destination only when the byte count and the
// digest both match. Every failure path removes the artifact.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/pkg/bufpool"
	"github.com/marmos91/hsync/pkg/protocol"
)

// DefaultChunkSize is the unit of transfer between stream and disk.
const DefaultChunkSize = 64 << 10

// Temporary artifacts are named ".hsync-<base>.<random>.part".
const (
	TempPrefix = ".hsync-"
	TempSuffix = ".part"
)

// Options tune a transfer. Zero values select defaults.
type Options struct {
	ChunkSize int
	Perm      os.FileMode
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

func (o Options) perm() os.FileMode {
	if o.Perm == 0 {
		return 0o644
	}
	return o.Perm
}

// IsTempArtifact reports whether name is an in-flight upload artifact.
func IsTempArtifact(name string) bool {
	return strings.HasPrefix(name, TempPrefix) && strings.HasSuffix(name, TempSuffix)
}

// Published describes a file made visible by ReceiveFile. ModTime is read
// from the temporary artifact before the rename, so a concurrent upload to
// the same name cannot leak its own metadata into it.
type Published struct {
	Size    uint64
	ModTime time.Time
}

// Receive is ReceiveFile returning only the byte count.
func Receive(ctx context.Context, r io.Reader, dest string, size uint64, hash string, opts Options) (uint64, error) {
	p, err := ReceiveFile(ctx, r, dest, size, hash, opts)
	return p.Size, err
}

// ReceiveFile reads exactly size bytes from r, which must end right after
// them, and publishes them at dest if their digest equals hash. On failure
// Size is the number of bytes read before giving up.
//
// Errors carrying a protocol kind describe the upload itself (SizeMismatch,
// HashMismatch, IsADirectory, NotADirectory, IOFailure). Any other error
// came from r and means the stream failed or was cancelled.
func ReceiveFile(ctx context.Context, r io.Reader, dest string, size uint64, hash string, opts Options) (Published, error) {
	n, modTime, err := receive(ctx, r, dest, size, hash, opts)
	return Published{Size: n, ModTime: modTime}, err
}

func receive(ctx context.Context, r io.Reader, dest string, size uint64, hash string, opts Options) (uint64, time.Time, error) {
	var none time.Time
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return 0, none, protocol.Errorf(protocol.IsADirectory, "%s is a directory", filepath.Base(dest))
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, none, protocol.FromFS(err, filepath.Base(dir))
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+filepath.Base(dest)+".*"+TempSuffix)
	if err != nil {
		return 0, none, protocol.FromFS(err, filepath.Base(dest))
	}
	tmpName := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				logger.Warn("Failed to remove temporary artifact", "file", tmpName, logger.Err(rmErr))
			}
		}
	}()

	h := NewHasher()
	chunk := opts.chunkSize()
	buf := bufpool.Get(chunk)
	defer bufpool.Put(buf)

	var received uint64
	for received < size {
		if err := ctx.Err(); err != nil {
			return received, none, err
		}

		n := uint64(chunk)
		if remaining := size - received; remaining < n {
			n = remaining
		}

		read, err := io.ReadFull(r, buf[:n])
		if read > 0 {
			_, _ = h.Write(buf[:read])
			if _, werr := tmp.Write(buf[:read]); werr != nil {
				return received, none, protocol.Wrap(protocol.IOFailure, werr, "write failed")
			}
			received += uint64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return received, none, protocol.Errorf(protocol.SizeMismatch, "received %d of %d bytes", received, size)
			}
			return received, none, err
		}
	}

	if err := expectEOF(r); err != nil {
		return received, none, err
	}

	if got := Sum(h); got != hash {
		return received, none, protocol.Errorf(protocol.HashMismatch, "digest %s does not match declared %s", got, hash)
	}

	if err := tmp.Sync(); err != nil {
		return received, none, protocol.Wrap(protocol.IOFailure, err, "sync failed")
	}
	if err := tmp.Close(); err != nil {
		return received, none, protocol.Wrap(protocol.IOFailure, err, "close failed")
	}
	_ = os.Chmod(tmpName, opts.perm())
	info, err := os.Stat(tmpName)
	if err != nil {
		return received, none, protocol.FromFS(err, filepath.Base(dest))
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return received, none, protocol.FromFS(err, filepath.Base(dest))
	}
	published = true
	return received, info.ModTime(), nil
}

// expectEOF fails with SizeMismatch if r yields any byte beyond the
// declared size.
func expectEOF(r io.Reader) error {
	var one [1]byte
	for {
		n, err := r.Read(one[:])
		if n > 0 {
			return protocol.Errorf(protocol.SizeMismatch, "body is longer than declared")
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Send copies exactly size bytes from src to w. A source that ends early is
// reported as IOFailure; write errors are returned unchanged.
func Send(ctx context.Context, w io.Writer, src io.Reader, size uint64, opts Options) (uint64, error) {
	chunk := opts.chunkSize()
	buf := bufpool.Get(chunk)
	defer bufpool.Put(buf)

	var sent uint64
	for sent < size {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		n := uint64(chunk)
		if remaining := size - sent; remaining < n {
			n = remaining
		}

		read, err := io.ReadFull(src, buf[:n])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return sent, werr
			}
			sent += uint64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return sent, protocol.Errorf(protocol.IOFailure, "source ended after %d of %d bytes", sent, size)
			}
			return sent, protocol.Wrap(protocol.IOFailure, err, "read failed")
		}
	}
	return sent, nil
}

// SweepStale removes temporary artifacts left under root by uploads that
// never finished, for example because the process was killed. It returns the
// number of artifacts removed.
func SweepStale(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.Type().IsRegular() && IsTempArtifact(d.Name()) {
			if rmErr := os.Remove(p); rmErr == nil {
				removed++
			} else {
				logger.Warn("Failed to remove stale artifact", "file", p, logger.Err(rmErr))
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep %s: %w", root, err)
	}
	return removed, nil
}
