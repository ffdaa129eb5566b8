// Package digestindex caches content digests of published files so that
// downloads can announce a digest without re-reading the file each time.
//
// Entries are keyed by sandbox-relative path and validated against the
// file's size and modification time: a mismatch means the file changed
// behind the server's back and the entry is ignored.
//
// Key namespace:
//
//	"d:<rel>"  -> record (JSON)
package digestindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const prefix = "d:"

// Config selects where the index lives.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the index in RAM only.
	InMemory bool
}

type record struct {
	Hash       string    `json:"hash"`
	Size       uint64    `json:"size"`
	ModTime    int64     `json:"mtime"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Index is a persistent path -> digest map.
type Index struct {
	db *badgerdb.DB
}

// Open opens or creates the index.
func Open(cfg Config) (*Index, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("digest index path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open digest index: %w", err)
	}
	return &Index{db: db}, nil
}

func key(rel string) []byte {
	return []byte(prefix + rel)
}

// Lookup returns the digest recorded for rel if the entry matches the
// given size and modification time.
func (i *Index) Lookup(rel string, size uint64, modTime time.Time) (string, bool) {
	var rec record
	err := i.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(rel))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return "", false
	}
	if rec.Size != size || rec.ModTime != modTime.UnixNano() {
		return "", false
	}
	return rec.Hash, true
}

// Record stores the digest of rel as of the given size and modification time.
func (i *Index) Record(rel, hash string, size uint64, modTime time.Time) error {
	val, err := json.Marshal(record{
		Hash:       hash,
		Size:       size,
		ModTime:    modTime.UnixNano(),
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return i.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(rel), val)
	})
}

// Forget removes the entry for rel.
func (i *Index) Forget(rel string) error {
	return i.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key(rel))
	})
}

// Count returns the number of entries.
func (i *Index) Count() (int, error) {
	n := 0
	err := i.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Prune drops entries whose file no longer exists under root and returns
// how many were dropped.
func (i *Index) Prune(root string) (int, error) {
	var stale [][]byte
	err := i.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			rel := string(k[len(prefix):])
			if _, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel))); errors.Is(err, os.ErrNotExist) {
				stale = append(stale, k)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := i.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Healthcheck verifies the database can serve a read transaction.
func (i *Index) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := i.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("digest index healthcheck: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}
