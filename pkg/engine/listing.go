package engine

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/transfer"
)

type listMode int

const (
	listShort listMode = iota
	listLong
	listRecursive
)

// readListing lists dir. Entries are sorted by name at every level and
// in-flight upload artifacts are hidden. Symbolic links are reported as
// themselves and never followed, so a recursive listing cannot leave the
// tree.
func readListing(ctx context.Context, dir string, mode listMode) ([]protocol.Entry, error) {
	entries := []protocol.Entry{}
	if err := appendListing(ctx, &entries, dir, "", mode); err != nil {
		return nil, err
	}
	return entries, nil
}

func appendListing(ctx context.Context, out *[]protocol.Entry, dir, prefix string, mode listMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return protocol.FromFS(err, displayPrefix(prefix))
	}

	for _, d := range children {
		if transfer.IsTempArtifact(d.Name()) {
			continue
		}

		name := d.Name()
		if prefix != "" {
			name = path.Join(prefix, name)
		}
		entry := protocol.Entry{Name: name, IsDir: d.IsDir()}

		if mode != listShort {
			info, err := d.Info()
			if err != nil {
				// Removed between ReadDir and Lstat.
				continue
			}
			describe(&entry, info, mode)
		}
		*out = append(*out, entry)

		if mode == listRecursive && d.IsDir() {
			if err := appendListing(ctx, out, filepath.Join(dir, d.Name()), name, mode); err != nil {
				return err
			}
		}
	}
	return nil
}

func describe(entry *protocol.Entry, info fs.FileInfo, mode listMode) {
	mod := info.ModTime().UTC()
	entry.Modified = &mod

	switch mode {
	case listLong:
		entry.Size = protocol.Uint64(uint64(info.Size()))
		entry.Perm = info.Mode().String()
	case listRecursive:
		if !info.IsDir() {
			entry.Size = protocol.Uint64(uint64(info.Size()))
		}
	}
}

func displayPrefix(prefix string) string {
	if prefix == "" {
		return "."
	}
	return prefix
}
