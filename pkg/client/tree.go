package client

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/hsync/pkg/transfer"
)

// PutTree uploads every regular file below the local directory to dest,
// keeping relative paths. Uploads run concurrently on separate streams;
// onDone, if set, is called once per published file and may be called
// from several goroutines. The first failure stops the remaining uploads.
func (c *Client) PutTree(ctx context.Context, localDir, dest string, onDone func(PutResult)) ([]PutResult, error) {
	if dest == "" {
		dest = filepath.Base(localDir)
	}
	dest = strings.TrimSuffix(dest, "/")

	var files []string
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && !transfer.IsTempArtifact(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", localDir, err)
	}

	results := make([]PutResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)

	for i, file := range files {
		i, file := i, file
		rel, err := filepath.Rel(localDir, file)
		if err != nil {
			return nil, err
		}
		remote := path.Join(dest, filepath.ToSlash(rel))

		g.Go(func() error {
			res, err := c.Put(gctx, file, remote)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = res
			if onDone != nil {
				onDone(res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
