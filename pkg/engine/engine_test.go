package engine

import (
	"context"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/digestindex"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/sandbox"
	"github.com/marmos91/hsync/pkg/session"
	"github.com/marmos91/hsync/pkg/transfer"
	"github.com/marmos91/hsync/pkg/transport"
)

// harness runs an engine on one end of an in-memory connection.
type harness struct {
	t      *testing.T
	root   string
	engine *Engine
	conn   *transport.MemoryConn
	done   chan struct{}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	root := t.TempDir()
	sb, err := sandbox.New(root)
	require.NoError(t, err)

	eng := New(Config{ServerName: "test", Version: "1.0.0", ChunkSize: 7}, sb, session.NewManager(), opts...)
	client, server := transport.MemoryPipe("client", "server")

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, root: sb.Root(), engine: eng, conn: client, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		eng.ServeConn(ctx, server)
	}()

	require.Eventually(t, func() bool { return eng.Sessions().Count() == 1 }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		cancel()
		_ = client.Close()
		<-h.done
	})
	return h
}

func (h *harness) write(rel, content string) {
	h.t.Helper()
	p := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(h.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(h.t, os.WriteFile(p, []byte(content), 0o644))
}

func (h *harness) mkdir(rel string) {
	h.t.Helper()
	require.NoError(h.t, os.MkdirAll(filepath.Join(h.root, filepath.FromSlash(rel)), 0o755))
}

// exchange sends req plus an optional body and returns the response and
// any download body.
func (h *harness) exchange(req protocol.Request, body []byte) (protocol.Response, []byte) {
	h.t.Helper()
	st := h.open()
	require.NoError(h.t, protocol.WriteRequest(st, req))
	return h.finishExchange(st, body)
}

func (h *harness) open() transport.Stream {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := h.conn.OpenStream(ctx)
	require.NoError(h.t, err)
	return st
}

func (h *harness) finishExchange(st transport.Stream, body []byte) (protocol.Response, []byte) {
	h.t.Helper()
	if len(body) > 0 {
		// Fails with ErrStreamCanceled when the server refuses the body.
		_, _ = st.Write(body)
	}
	_ = st.Close()

	resp, err := protocol.ReadResponse(st, 0)
	require.NoError(h.t, err)

	var payload []byte
	if resp.OK && resp.Size != nil {
		payload = make([]byte, *resp.Size)
		_, err := io.ReadFull(st, payload)
		require.NoError(h.t, err)
	}

	// Nothing may follow the response and body.
	n, err := st.Read(make([]byte, 1))
	assert.Equal(h.t, 0, n)
	assert.ErrorIs(h.t, err, io.EOF)
	return resp, payload
}

func (h *harness) put(p, content, hash string) protocol.Response {
	h.t.Helper()
	if hash == "" {
		hash = transfer.HashBytes([]byte(content))
	}
	resp, _ := h.exchange(protocol.Put{Path: p, Size: uint64(len(content)), Hash: hash}.Request(), []byte(content))
	return resp
}

func (h *harness) cwd() string {
	h.t.Helper()
	resp, _ := h.exchange(protocol.Status{}.Request(), nil)
	require.True(h.t, resp.OK)
	return resp.Status.Cwd
}

func names(entries []protocol.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func (h *harness) assertNoArtifacts() {
	h.t.Helper()
	_ = filepath.WalkDir(h.root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && transfer.IsTempArtifact(d.Name()) {
			h.t.Errorf("temporary artifact left behind: %s", p)
		}
		return nil
	})
}

func TestPutPublishesFile(t *testing.T) {
	h := newHarness(t)

	resp := h.put("a/b.txt", "hello", "")
	require.True(t, resp.OK, "response: %+v", resp)
	require.NotNil(t, resp.Written)
	assert.Equal(t, uint64(5), *resp.Written)

	data, err := os.ReadFile(filepath.Join(h.root, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	h.assertNoArtifacts()
}

func TestPutEmptyFile(t *testing.T) {
	h := newHarness(t)

	resp := h.put("empty", "", "")
	require.True(t, resp.OK)
	assert.Equal(t, uint64(0), *resp.Written)

	info, err := os.Stat(filepath.Join(h.root, "empty"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestPutFailuresLeaveNoFile(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		declared uint64
		body     string
		hash     string
		want     protocol.ErrorKind
	}{
		{"hash mismatch", "c.txt", 5, "right", transfer.HashBytes([]byte("wrong")), protocol.HashMismatch},
		{"truncated body", "c.txt", 10, "short", transfer.HashBytes([]byte("short")), protocol.SizeMismatch},
		{"extra bytes", "c.txt", 3, "longer", transfer.HashBytes([]byte("lon")), protocol.SizeMismatch},
		{"escape", "../c.txt", 5, "right", transfer.HashBytes([]byte("right")), protocol.PathEscape},
		{"onto root", "/", 5, "right", transfer.HashBytes([]byte("right")), protocol.IsADirectory},
		{"reserved name", ".hsync-x.123.part", 5, "right", transfer.HashBytes([]byte("right")), protocol.MalformedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := protocol.Put{Path: tt.path, Size: tt.declared, Hash: tt.hash}.Request()
			resp, _ := h.exchange(req, []byte(tt.body))

			assert.False(t, resp.OK)
			assert.Equal(t, tt.want, resp.Error)
			assert.Nil(t, resp.Written)

			_, err := os.Stat(filepath.Join(h.root, "c.txt"))
			assert.ErrorIs(t, err, fs.ErrNotExist)
			h.assertNoArtifacts()
		})
	}
}

func TestPutFailureKeepsExistingFile(t *testing.T) {
	h := newHarness(t)
	h.write("keep.txt", "original")

	resp := h.put("keep.txt", "changed", transfer.HashBytes([]byte("nope")))
	assert.Equal(t, protocol.HashMismatch, resp.Error)

	data, err := os.ReadFile(filepath.Join(h.root, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestPutOntoDirectory(t *testing.T) {
	h := newHarness(t)
	h.mkdir("dir")

	resp := h.put("dir", "x", "")
	assert.Equal(t, protocol.IsADirectory, resp.Error)
}

func TestPutAbortedStreamRollsBack(t *testing.T) {
	h := newHarness(t)

	st := h.open()
	require.NoError(t, protocol.WriteRequest(st, protocol.Put{Path: "big.bin", Size: 1000, Hash: transfer.HashBytes(nil)}.Request()))
	_, err := st.Write([]byte("partial body"))
	require.NoError(t, err)
	st.CancelWrite()

	_, err = protocol.ReadResponse(st, 0)
	assert.Error(t, err, "no response after an aborted upload")

	require.Eventually(t, func() bool {
		entries, _ := os.ReadDir(h.root)
		return len(entries) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestGetAndView(t *testing.T) {
	h := newHarness(t)
	content := strings.Repeat("0123456789", 10)
	h.write("docs/readme.md", content)

	for _, req := range []protocol.Request{
		protocol.Get{Path: "docs/readme.md"}.Request(),
		protocol.View{Path: "/docs/readme.md"}.Request(),
	} {
		resp, body := h.exchange(req, nil)
		require.True(t, resp.OK, "%s: %+v", req.Cmd, resp)
		assert.Equal(t, uint64(len(content)), *resp.Size)
		assert.Equal(t, transfer.HashBytes([]byte(content)), resp.Hash)
		assert.Equal(t, content, string(body))
	}
}

func TestGetErrors(t *testing.T) {
	h := newHarness(t)
	h.mkdir("dir")

	tests := []struct {
		path string
		want protocol.ErrorKind
	}{
		{"../../etc/passwd", protocol.PathEscape},
		{"missing.txt", protocol.NotFound},
		{"dir", protocol.IsADirectory},
		{"a\\b", protocol.MalformedRequest},
	}
	for _, tt := range tests {
		resp, body := h.exchange(protocol.Get{Path: tt.path}.Request(), nil)
		assert.False(t, resp.OK, tt.path)
		assert.Equal(t, tt.want, resp.Error, tt.path)
		assert.Empty(t, body, tt.path)
		assert.NotEmpty(t, resp.Message, tt.path)
	}
}

func TestSymlinkCannotEscape(t *testing.T) {
	h := newHarness(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(h.root, "link")))

	resp, _ := h.exchange(protocol.Get{Path: "link/secret"}.Request(), nil)
	assert.Equal(t, protocol.PathEscape, resp.Error)

	resp = h.put("link/new", "x", "")
	assert.Equal(t, protocol.PathEscape, resp.Error)
	_, err := os.Stat(filepath.Join(outside, "new"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	resp, _ = h.exchange(protocol.Down{Path: "link"}.Request(), nil)
	assert.Equal(t, protocol.PathEscape, resp.Error)
	assert.Equal(t, "", h.cwd())
}

func TestDigestIndexServesCachedHash(t *testing.T) {
	idx, err := digestindex.Open(digestindex.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	h := newHarness(t, WithDigestIndex(idx))

	require.True(t, h.put("f.bin", "payload", "").OK)
	info, err := os.Stat(filepath.Join(h.root, "f.bin"))
	require.NoError(t, err)

	hash, ok := idx.Lookup("f.bin", 7, info.ModTime())
	require.True(t, ok)
	assert.Equal(t, transfer.HashBytes([]byte("payload")), hash)

	resp, body := h.exchange(protocol.Get{Path: "f.bin"}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, hash, resp.Hash)
	assert.Equal(t, "payload", string(body))

	// A file written behind the server's back is hashed and then cached.
	h.write("g.bin", "other")
	resp, _ = h.exchange(protocol.Get{Path: "g.bin"}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, transfer.HashBytes([]byte("other")), resp.Hash)
	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDigestIndexIgnoresLaterReplacement(t *testing.T) {
	idx, err := digestindex.Open(digestindex.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	h := newHarness(t, WithDigestIndex(idx))
	require.True(t, h.put("f.bin", "hello", "").OK)

	// Same size, different content and mtime, written after the upload.
	p := filepath.Join(h.root, "f.bin")
	require.NoError(t, os.WriteFile(p, []byte("world"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))

	resp, body := h.exchange(protocol.Get{Path: "f.bin"}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "world", string(body))
	assert.Equal(t, transfer.HashBytes([]byte("world")), resp.Hash)
}

func TestListings(t *testing.T) {
	h := newHarness(t)
	h.write("b.txt", "bb")
	h.write("a/z.txt", "z")
	h.write("a/c/d.txt", "ddd")
	h.write("a/"+transfer.TempPrefix+"z.txt.1"+transfer.TempSuffix, "in flight")
	h.mkdir("a/empty")

	resp, _ := h.exchange(protocol.List{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, []string{"a", "b.txt"}, names(resp.Entries))
	assert.True(t, resp.Entries[0].IsDir)
	assert.Nil(t, resp.Entries[1].Size)
	assert.Empty(t, resp.Entries[1].Perm)

	resp, _ = h.exchange(protocol.ListLong{Path: "a"}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, []string{"c", "empty", "z.txt"}, names(resp.Entries))
	z := resp.Entries[2]
	require.NotNil(t, z.Size)
	assert.Equal(t, uint64(1), *z.Size)
	assert.True(t, strings.HasPrefix(z.Perm, "-rw"), z.Perm)
	assert.NotNil(t, z.Modified)
	assert.True(t, strings.HasPrefix(resp.Entries[0].Perm, "d"))

	resp, _ = h.exchange(protocol.ListRecursive{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, []string{"a", "a/c", "a/c/d.txt", "a/empty", "a/z.txt", "b.txt"}, names(resp.Entries))
	assert.Equal(t, uint64(3), *resp.Entries[2].Size)
	assert.Nil(t, resp.Entries[0].Size)

	resp, _ = h.exchange(protocol.List{Path: "a/empty"}.Request(), nil)
	require.True(t, resp.OK)
	assert.NotNil(t, resp.Entries)
	assert.Empty(t, resp.Entries)
}

func TestListRecursiveReproducesTree(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{"x/1", "x/y/2", "x/y/z/3", "w", "x/y/z/4", "v/u/5"} {
		h.write(p, p)
	}
	h.mkdir("empty/dir")

	var want []string
	require.NoError(t, filepath.WalkDir(h.root, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if p != h.root {
			rel, _ := filepath.Rel(h.root, p)
			want = append(want, filepath.ToSlash(rel))
		}
		return nil
	}))

	resp, _ := h.exchange(protocol.ListRecursive{}.Request(), nil)
	require.True(t, resp.OK)
	got := names(resp.Entries)
	assert.Equal(t, want, got, "depth-first, lexicographic at every level")
}

func TestListErrors(t *testing.T) {
	h := newHarness(t)
	h.write("file", "x")

	resp, _ := h.exchange(protocol.List{Path: "file"}.Request(), nil)
	assert.Equal(t, protocol.NotADirectory, resp.Error)

	resp, _ = h.exchange(protocol.ListLong{Path: "nope"}.Request(), nil)
	assert.Equal(t, protocol.NotFound, resp.Error)

	resp, _ = h.exchange(protocol.ListRecursive{Path: ".."}.Request(), nil)
	assert.Equal(t, protocol.PathEscape, resp.Error)
}

func TestNavigation(t *testing.T) {
	h := newHarness(t)
	h.mkdir("x/y")
	h.write("x/file", "f")

	// up at the root is a successful no-op.
	resp, _ := h.exchange(protocol.Up{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "", *resp.Cwd)

	resp, _ = h.exchange(protocol.Down{Path: "x"}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "x", *resp.Cwd)

	// Paths now resolve against x.
	require.True(t, h.put("new.txt", "n", "").OK)
	_, err := os.Stat(filepath.Join(h.root, "x", "new.txt"))
	assert.NoError(t, err)

	resp, _ = h.exchange(protocol.Down{Path: "y"}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "x/y", *resp.Cwd)

	resp, _ = h.exchange(protocol.Up{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "x", *resp.Cwd)

	// down without a name swaps with the previous directory, twice restores.
	resp, _ = h.exchange(protocol.Down{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "x/y", *resp.Cwd)
	resp, _ = h.exchange(protocol.Down{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "x", *resp.Cwd)
}

func TestNavigationFailuresDoNotMove(t *testing.T) {
	h := newHarness(t)
	h.mkdir("x")
	h.write("x/file", "f")

	resp, _ := h.exchange(protocol.Down{Path: "x"}.Request(), nil)
	require.True(t, resp.OK)

	tests := []struct {
		target string
		want   protocol.ErrorKind
	}{
		{"file", protocol.NotADirectory},
		{"missing", protocol.NotFound},
		{"../..", protocol.NotFound},
	}
	for _, tt := range tests {
		resp, _ := h.exchange(protocol.Down{Path: tt.target}.Request(), nil)
		assert.Equal(t, tt.want, resp.Error, tt.target)
		assert.Equal(t, "x", h.cwd(), tt.target)
	}
}

func TestDownAboveRootFailsWithoutEscape(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.exchange(protocol.Down{Path: ".."}.Request(), nil)
	assert.False(t, resp.OK)
	assert.Equal(t, protocol.NotFound, resp.Error)
	assert.Equal(t, "", h.cwd())

	resp, _ = h.exchange(protocol.List{Path: ".."}.Request(), nil)
	assert.Equal(t, protocol.PathEscape, resp.Error)
}

func TestDownWithoutPreviousGoesToRoot(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.exchange(protocol.Down{}.Request(), nil)
	require.True(t, resp.OK)
	assert.Equal(t, "", *resp.Cwd)
}

func TestDownToRemovedPrevious(t *testing.T) {
	h := newHarness(t)
	h.mkdir("gone")

	resp, _ := h.exchange(protocol.Down{Path: "gone"}.Request(), nil)
	require.True(t, resp.OK)
	resp, _ = h.exchange(protocol.Up{}.Request(), nil)
	require.True(t, resp.OK)
	require.NoError(t, os.Remove(filepath.Join(h.root, "gone")))

	resp, _ = h.exchange(protocol.Down{}.Request(), nil)
	assert.Equal(t, protocol.NotFound, resp.Error)
	assert.Equal(t, "", h.cwd())
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.exchange(protocol.Request{Cmd: "rm", Path: "x"}, nil)
	assert.Equal(t, protocol.Unsupported, resp.Error)

	resp, _ = h.exchange(protocol.Request{Cmd: protocol.CmdPut, Path: "x"}, nil)
	assert.Equal(t, protocol.MalformedRequest, resp.Error)

	// Undecodable JSON inside a well-formed frame.
	st := h.open()
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 3)
	_, err := st.Write(append(hdr[:], "{{{"...))
	require.NoError(t, err)
	resp, _ = h.finishExchange(st, nil)
	assert.Equal(t, protocol.MalformedRequest, resp.Error)

	// A stream closed before any request.
	st = h.open()
	resp, _ = h.finishExchange(st, nil)
	assert.Equal(t, protocol.MalformedRequest, resp.Error)

	// The session survives all of the above.
	resp, _ = h.exchange(protocol.List{}.Request(), nil)
	assert.True(t, resp.OK)
}

func TestOversizedFrame(t *testing.T) {
	root := t.TempDir()
	sb, err := sandbox.New(root)
	require.NoError(t, err)
	eng := New(Config{MaxFrameSize: 64}, sb, nil)

	client, server := transport.MemoryPipe("c", "s")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.ServeConn(ctx, server)
	defer client.Close()

	st, err := client.OpenStream(ctx)
	require.NoError(t, err)
	_ = protocol.WriteRequest(st, protocol.Request{Cmd: protocol.CmdGet, Path: strings.Repeat("p", 200)})
	_ = st.Close()

	resp, err := protocol.ReadResponse(st, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.MalformedRequest, resp.Error)
}

func TestConcurrentNavigationAndListing(t *testing.T) {
	h := newHarness(t)
	h.write("root-file", "r")
	h.write("x/inner-file", "i")

	rootNames := []string{"root-file", "x"}
	innerNames := []string{"inner-file"}

	for i := 0; i < 20; i++ {
		var wg sync.WaitGroup
		var listResp protocol.Response
		wg.Add(2)
		go func() {
			defer wg.Done()
			target := "x"
			if i%2 == 1 {
				target = ""
			}
			st := h.open()
			if target == "" {
				_ = protocol.WriteRequest(st, protocol.Up{}.Request())
			} else {
				_ = protocol.WriteRequest(st, protocol.Down{Path: target}.Request())
			}
			_ = st.Close()
			_, _ = protocol.ReadResponse(st, 0)
		}()
		go func() {
			defer wg.Done()
			st := h.open()
			_ = protocol.WriteRequest(st, protocol.List{}.Request())
			_ = st.Close()
			listResp, _ = protocol.ReadResponse(st, 0)
		}()
		wg.Wait()

		require.True(t, listResp.OK)
		got := names(listResp.Entries)
		if !assert.ObjectsAreEqual(rootNames, got) && !assert.ObjectsAreEqual(innerNames, got) {
			t.Fatalf("listing mixed two locations: %v", got)
		}
	}
}

func TestConcurrentPutsOnOneConnection(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := strings.Repeat(string(rune('a'+i)), 100+i)
			p := filepath.ToSlash(filepath.Join("p", string(rune('a'+i))+".txt"))
			st, err := h.conn.OpenStream(context.Background())
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			req := protocol.Put{Path: p, Size: uint64(len(content)), Hash: transfer.HashBytes([]byte(content))}.Request()
			_ = protocol.WriteRequest(st, req)
			_, _ = st.Write([]byte(content))
			_ = st.Close()
			resp, err := protocol.ReadResponse(st, 0)
			if err != nil || !resp.OK {
				t.Errorf("put %s: %+v %v", p, resp, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(filepath.Join(h.root, "p"))
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.write("a", "12345")
	h.write("d/b", "123")
	h.write("d/"+transfer.TempPrefix+"c.1"+transfer.TempSuffix, "ignored")

	resp, _ := h.exchange(protocol.Status{}.Request(), nil)
	require.True(t, resp.OK)
	st := resp.Status
	require.NotNil(t, st)
	assert.Equal(t, "test", st.Server)
	assert.Equal(t, "1.0.0", st.Version)
	assert.Equal(t, h.root, st.Root)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, uint64(2), st.FileCount)
	assert.Equal(t, uint64(8), st.TotalBytes)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, "", st.Cwd)
}

func TestSessionRemovedOnDisconnect(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 1, h.engine.Sessions().Count())

	require.NoError(t, h.conn.Close())
	<-h.done
	assert.Equal(t, 0, h.engine.Sessions().Count())
}

func TestAuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := audit.NewJSONLSink(path, audit.JSONLOptions{})
	require.NoError(t, err)
	rec := audit.NewRecorder(sink, audit.RecorderOptions{})

	h := newHarness(t, WithAudit(rec))
	require.True(t, h.put("f", "data", "").OK)
	resp, _ := h.exchange(protocol.Get{Path: "../x"}.Request(), nil)
	require.False(t, resp.OK)

	require.NoError(t, h.conn.Close())
	<-h.done
	require.NoError(t, rec.Close())

	entries, err := audit.ReadJSONL(path, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// Newest first.
	assert.Equal(t, audit.EventDisconnect, entries[0].Event)
	assert.Equal(t, audit.EventCommand, entries[1].Event)
	assert.Equal(t, "get", entries[1].Command)
	assert.Equal(t, string(protocol.PathEscape), entries[1].ErrorKind)
	assert.False(t, entries[1].OK)
	assert.Equal(t, "put", entries[2].Command)
	assert.True(t, entries[2].OK)
	assert.Equal(t, uint64(4), entries[2].Bytes)
	assert.Equal(t, transfer.HashBytes([]byte("data")), entries[2].Hash)
	assert.Equal(t, audit.EventConnect, entries[3].Event)
}

func TestStreamStateNames(t *testing.T) {
	assert.Equal(t, "awaiting_request", stateAwaitingRequest.String())
	assert.Equal(t, "streaming_body", stateStreamingBody.String())
	assert.Equal(t, "closed", stateClosed.String())
	assert.Equal(t, "state(42)", streamState(42).String())
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "listr", metricName("listr"))
	assert.Equal(t, "unknown", metricName("drop table"))
}
