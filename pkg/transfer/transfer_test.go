package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/hsync/pkg/protocol"
)

// listArtifacts returns the temporary artifacts present in dir.
func listArtifacts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if IsTempArtifact(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestReceivePublishesVerifiedFile(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("hsync"), 40000)
	dest := filepath.Join(dir, "nested", "out.bin")

	n, err := Receive(context.Background(), bytes.NewReader(data), dest, uint64(len(data)), HashBytes(data), Options{ChunkSize: 4096})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Empty(t, listArtifacts(t, filepath.Dir(dest)))
}

func TestReceiveFileReportsItsOwnMetadata(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "f")
	data := []byte("first")

	pub, err := ReceiveFile(context.Background(), bytes.NewReader(data), dest, 5, HashBytes(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), pub.Size)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, pub.ModTime.Equal(info.ModTime()))

	// Another writer replaces the file after the rename.
	later := pub.ModTime.Add(time.Hour)
	require.NoError(t, os.WriteFile(dest, []byte("other"), 0o644))
	require.NoError(t, os.Chtimes(dest, later, later))

	info, err = os.Stat(dest)
	require.NoError(t, err)
	assert.False(t, pub.ModTime.Equal(info.ModTime()))
}

func TestReceiveEmptyFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty")
	n, err := Receive(context.Background(), strings.NewReader(""), dest, 0, HashBytes(nil), Options{})
	require.NoError(t, err)
	assert.Zero(t, n)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReceiveReplacesExistingAtomically(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	data := []byte("new contents")
	_, err := Receive(context.Background(), bytes.NewReader(data), dest, uint64(len(data)), HashBytes(data), Options{})
	require.NoError(t, err)

	got, _ := os.ReadFile(dest)
	assert.Equal(t, data, got)
}

func TestReceiveFailuresLeaveNoTrace(t *testing.T) {
	data := []byte("0123456789")

	tests := []struct {
		name     string
		body     io.Reader
		size     uint64
		hash     string
		wantKind protocol.ErrorKind
	}{
		{"Truncated", bytes.NewReader(data[:4]), 10, HashBytes(data), protocol.SizeMismatch},
		{"TooLong", bytes.NewReader(append(data, 'x')), 10, HashBytes(data), protocol.SizeMismatch},
		{"WrongDigest", bytes.NewReader(data), 10, HashBytes([]byte("other")), protocol.HashMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			dest := filepath.Join(dir, "f.txt")
			require.NoError(t, os.WriteFile(dest, []byte("previous"), 0o644))

			_, err := Receive(context.Background(), tt.body, dest, tt.size, tt.hash, Options{ChunkSize: 3})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, protocol.KindOf(err))

			got, _ := os.ReadFile(dest)
			assert.Equal(t, "previous", string(got), "destination must be untouched")
			assert.Empty(t, listArtifacts(t, dir))
		})
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReceiveStreamErrorIsNotAProtocolError(t *testing.T) {
	dir := t.TempDir()
	reset := errors.New("stream reset by peer")
	r := &failingReader{data: []byte("abc"), err: reset}

	_, err := Receive(context.Background(), r, filepath.Join(dir, "f"), 100, HashBytes(nil), Options{})
	require.ErrorIs(t, err, reset)
	assert.Equal(t, protocol.ErrorKind(""), protocol.KindOf(err))
	assert.Empty(t, listArtifacts(t, dir))
	_, statErr := os.Stat(filepath.Join(dir, "f"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReceiveCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Receive(ctx, strings.NewReader("abc"), filepath.Join(dir, "f"), 3, HashBytes([]byte("abc")), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listArtifacts(t, dir))
}

func TestReceiveOntoDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d"), 0o755))

	_, err := Receive(context.Background(), strings.NewReader(""), filepath.Join(dir, "d"), 0, HashBytes(nil), Options{})
	assert.ErrorIs(t, err, protocol.ErrIsADirectory)
}

func TestReceiveBelowFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), nil, 0o644))

	_, err := Receive(context.Background(), strings.NewReader(""), filepath.Join(dir, "file", "child"), 0, HashBytes(nil), Options{})
	assert.ErrorIs(t, err, protocol.ErrNotADirectory)
}

func TestSend(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 10000)
	var out bytes.Buffer

	n, err := Send(context.Background(), &out, bytes.NewReader(data), uint64(len(data)), Options{ChunkSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
}

func TestSendStopsAtSize(t *testing.T) {
	var out bytes.Buffer
	n, err := Send(context.Background(), &out, strings.NewReader("abcdef"), 3, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	assert.Equal(t, "abc", out.String())
}

func TestSendShortSource(t *testing.T) {
	var out bytes.Buffer
	_, err := Send(context.Background(), &out, strings.NewReader("ab"), 5, Options{})
	assert.ErrorIs(t, err, protocol.ErrIOFailure)
}

func TestDigestHelpersAgree(t *testing.T) {
	data := []byte("the quick brown fox")
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fromFile, size, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), size)
	assert.Equal(t, HashBytes(data), fromFile)
	assert.Len(t, fromFile, protocol.DigestHexLen)
	assert.True(t, protocol.ValidHash(fromFile))
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hsync-x.bin.123.part"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", ".hsync-y.456.part"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "keep.part"), nil, 0o644))

	n, err := SweepStale(root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(root, "a", "keep.part"))
	assert.NoFileExists(t, filepath.Join(root, ".hsync-x.bin.123.part"))
}

func TestIsTempArtifact(t *testing.T) {
	assert.True(t, IsTempArtifact(".hsync-report.pdf.8812.part"))
	assert.False(t, IsTempArtifact("report.pdf"))
	assert.False(t, IsTempArtifact(".hsync-report.pdf"))
}
