package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/marmos91/hsync/pkg/bufpool"
)

// Frames are a 4-byte big-endian length followed by that many bytes of JSON.

// DefaultMaxFrameSize bounds a single frame unless configured otherwise.
const DefaultMaxFrameSize = 1 << 20

const headerLen = 4

var (
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrMalformedFrame = errors.New("malformed frame")
)

// WriteFrame encodes v and writes it as one frame with a single Write call.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	buf := bufpool.Get(headerLen + len(payload))
	defer bufpool.Put(buf)

	binary.BigEndian.PutUint32(buf[:headerLen], uint32(len(payload)))
	copy(buf[headerLen:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame of at most max payload bytes and decodes it into
// v. It returns io.EOF when r ends before the first header byte, and wraps
// ErrMalformedFrame for truncated or undecodable frames.
func ReadFrame(r io.Reader, max int, v any) error {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}

	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated header", ErrMalformedFrame)
		}
		return err
	}

	n := binary.BigEndian.Uint32(header[:])
	if uint64(n) > uint64(max) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
	}

	buf := bufpool.Get(int(n))
	defer bufpool.Put(buf)

	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated payload", ErrMalformedFrame)
		}
		return err
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// WriteRequest writes a request frame.
func WriteRequest(w io.Writer, req Request) error {
	return WriteFrame(w, req)
}

// ReadRequest reads a request frame.
func ReadRequest(r io.Reader, max int) (Request, error) {
	var req Request
	err := ReadFrame(r, max, &req)
	return req, err
}

// WriteResponse writes a response frame.
func WriteResponse(w io.Writer, resp Response) error {
	return WriteFrame(w, resp)
}

// ReadResponse reads a response frame.
func ReadResponse(r io.Reader, max int) (Response, error) {
	var resp Response
	err := ReadFrame(r, max, &resp)
	return resp, err
}
