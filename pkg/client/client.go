// Package client talks to an hsync server. Every method runs one command
// on its own stream, so a Client may be used from several goroutines.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/transfer"
	"github.com/marmos91/hsync/pkg/transport"
)

// ErrExists is returned by Get when the destination exists and overwriting
// was not requested.
var ErrExists = errors.New("destination already exists")

// Options tune a client. Zero values select defaults.
type Options struct {
	// MaxFrameSize bounds response frames.
	MaxFrameSize int
	// ChunkSize is the copy unit for bodies.
	ChunkSize int
	// Parallelism bounds concurrent uploads in PutTree.
	Parallelism int
}

// Client is a connection to one server.
type Client struct {
	conn transport.Conn
	opts Options
}

// Dial connects to addr over QUIC.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, quicCfg transport.QUICConfig, opts Options) (*Client, error) {
	conn, err := transport.DialQUIC(ctx, addr, tlsConf, quicCfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	logger.Debug("Connected", "server", addr, "local", conn.LocalAddr().String())
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn transport.Conn, opts Options) *Client {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &Client{conn: conn, opts: opts}
}

// Close closes the connection; the server then discards the session.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) transferOptions() transfer.Options {
	return transfer.Options{ChunkSize: c.opts.ChunkSize}
}

// call runs a command without bodies and returns its successful response.
// Failures reported by the server are returned as *protocol.Error.
func (c *Client) call(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	st, err := c.open(ctx, cmd)
	if err != nil {
		return protocol.Response{}, err
	}
	defer st.CancelRead()

	_ = st.Close()
	return c.readResponse(st, cmd)
}

// open opens a stream and sends the request frame.
func (c *Client) open(ctx context.Context, cmd protocol.Command) (transport.Stream, error) {
	st, err := c.conn.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := protocol.WriteRequest(st, cmd.Request()); err != nil {
		st.CancelWrite()
		st.CancelRead()
		return nil, fmt.Errorf("%s: send request: %w", cmd.Name(), err)
	}
	return st, nil
}

func (c *Client) readResponse(st transport.Stream, cmd protocol.Command) (protocol.Response, error) {
	resp, err := protocol.ReadResponse(st, c.opts.MaxFrameSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return resp, fmt.Errorf("%s: stream closed without a response", cmd.Name())
		}
		return resp, fmt.Errorf("%s: read response: %w", cmd.Name(), err)
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

// PutResult describes one published upload.
type PutResult struct {
	Local   string
	Remote  string
	Written uint64
	Hash    string
}

// Put uploads the local file to dest, relative to the session's cwd. An
// empty dest uses the file's base name; a dest ending in "/" names a
// directory to upload into.
func (c *Client) Put(ctx context.Context, local, dest string) (PutResult, error) {
	remote := remoteName(local, dest)

	hash, size, err := transfer.HashFile(local)
	if err != nil {
		return PutResult{}, fmt.Errorf("hash %s: %w", local, err)
	}

	f, err := os.Open(local)
	if err != nil {
		return PutResult{}, err
	}
	defer func() { _ = f.Close() }()

	written, err := c.PutReader(ctx, remote, f, size, hash)
	if err != nil {
		return PutResult{}, err
	}
	return PutResult{Local: local, Remote: remote, Written: written, Hash: hash}, nil
}

// PutReader uploads size bytes from r, whose digest the caller has already
// computed, to the remote path. It returns the byte count the server
// published.
func (c *Client) PutReader(ctx context.Context, remote string, r io.Reader, size uint64, hash string) (uint64, error) {
	cmd := protocol.Put{Path: remote, Size: size, Hash: hash}
	st, err := c.open(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer st.CancelRead()

	// A server that rejects the upload stops reading; its response still
	// explains why, so the send error only matters if no response arrives.
	_, sendErr := transfer.Send(ctx, st, r, size, c.transferOptions())
	if sendErr != nil && (protocol.KindOf(sendErr) != "" || ctx.Err() != nil) {
		// The local source failed or the caller gave up. Resetting the
		// stream makes the server discard the partial upload.
		st.CancelWrite()
		return 0, sendErr
	}
	_ = st.Close()

	resp, err := c.readResponse(st, cmd)
	if err != nil {
		if sendErr != nil && protocol.KindOf(err) == "" {
			return 0, fmt.Errorf("put: send body: %w", sendErr)
		}
		return 0, err
	}
	if resp.Written == nil {
		return 0, fmt.Errorf("put: response without byte count")
	}
	logger.Debug("Uploaded", "path", remote, "bytes", *resp.Written)
	return *resp.Written, nil
}

func remoteName(local, dest string) string {
	base := filepath.Base(local)
	switch {
	case dest == "":
		return base
	case strings.HasSuffix(dest, "/"):
		return dest + base
	}
	return dest
}

// GetOptions controls a download.
type GetOptions struct {
	// Force replaces an existing local file.
	Force bool
}

// GetResult describes a completed download.
type GetResult struct {
	Local string
	Size  uint64
	Hash  string
}

// Get downloads the remote file to local. When local is an existing
// directory the file is placed inside it under its remote base name. The
// content is verified against the server's digest and published atomically.
func (c *Client) Get(ctx context.Context, remote, local string, opts GetOptions) (GetResult, error) {
	if remote == "" {
		return GetResult{}, protocol.Errorf(protocol.MalformedRequest, "get requires a path")
	}
	if local == "" {
		local = path.Base(remote)
	}
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		local = filepath.Join(local, path.Base(remote))
	}
	if !opts.Force {
		if _, err := os.Lstat(local); err == nil {
			return GetResult{}, fmt.Errorf("%s: %w", local, ErrExists)
		}
	}

	cmd := protocol.Get{Path: remote}
	st, err := c.open(ctx, cmd)
	if err != nil {
		return GetResult{}, err
	}
	defer st.CancelRead()
	_ = st.Close()

	resp, err := c.readResponse(st, cmd)
	if err != nil {
		return GetResult{}, err
	}
	size, hash, err := downloadInfo(resp)
	if err != nil {
		return GetResult{}, err
	}

	if _, err := transfer.Receive(ctx, st, local, size, hash, c.transferOptions()); err != nil {
		return GetResult{}, fmt.Errorf("get %s: %w", remote, err)
	}
	logger.Debug("Downloaded", "path", remote, "local", local, "bytes", size)
	return GetResult{Local: local, Size: size, Hash: hash}, nil
}

// View streams the remote file to w and verifies its digest once the whole
// body has been written. It returns the number of bytes written.
func (c *Client) View(ctx context.Context, remote string, w io.Writer) (uint64, error) {
	cmd := protocol.View{Path: remote}
	st, err := c.open(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer st.CancelRead()
	_ = st.Close()

	resp, err := c.readResponse(st, cmd)
	if err != nil {
		return 0, err
	}
	size, hash, err := downloadInfo(resp)
	if err != nil {
		return 0, err
	}

	h := transfer.NewHasher()
	n, err := transfer.Send(ctx, io.MultiWriter(w, h), st, size, c.transferOptions())
	if err != nil {
		return n, fmt.Errorf("view %s: %w", remote, err)
	}
	if got := transfer.Sum(h); got != hash {
		return n, protocol.Errorf(protocol.HashMismatch, "digest %s does not match announced %s", got, hash)
	}
	return n, nil
}

func downloadInfo(resp protocol.Response) (uint64, string, error) {
	if resp.Size == nil {
		return 0, "", fmt.Errorf("download response without size")
	}
	if !protocol.ValidHash(resp.Hash) {
		return 0, "", fmt.Errorf("download response without a valid digest")
	}
	return *resp.Size, resp.Hash, nil
}

// List returns the entry names of dir, or of the cwd when dir is empty.
func (c *Client) List(ctx context.Context, dir string) ([]protocol.Entry, error) {
	resp, err := c.call(ctx, protocol.List{Path: dir})
	return resp.Entries, err
}

// ListLong returns entries with size, modification time and permissions.
func (c *Client) ListLong(ctx context.Context, dir string) ([]protocol.Entry, error) {
	resp, err := c.call(ctx, protocol.ListLong{Path: dir})
	return resp.Entries, err
}

// ListRecursive returns every entry below dir, depth first.
func (c *Client) ListRecursive(ctx context.Context, dir string) ([]protocol.Entry, error) {
	resp, err := c.call(ctx, protocol.ListRecursive{Path: dir})
	return resp.Entries, err
}

// Up moves to the parent directory and returns the new cwd.
func (c *Client) Up(ctx context.Context) (string, error) {
	return c.navigate(ctx, protocol.Up{})
}

// Down moves into dir and returns the new cwd. An empty dir returns to the
// previous directory.
func (c *Client) Down(ctx context.Context, dir string) (string, error) {
	return c.navigate(ctx, protocol.Down{Path: dir})
}

func (c *Client) navigate(ctx context.Context, cmd protocol.Command) (string, error) {
	resp, err := c.call(ctx, cmd)
	if err != nil {
		return "", err
	}
	if resp.Cwd == nil {
		return "", fmt.Errorf("%s: response without cwd", cmd.Name())
	}
	return *resp.Cwd, nil
}

// Status reports the server's identity and health.
func (c *Client) Status(ctx context.Context) (*protocol.StatusInfo, error) {
	resp, err := c.call(ctx, protocol.Status{})
	if err != nil {
		return nil, err
	}
	if resp.Status == nil {
		return nil, fmt.Errorf("status: empty response")
	}
	return resp.Status, nil
}
