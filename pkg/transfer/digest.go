package transfer

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/marmos91/hsync/pkg/bufpool"
)

// NewHasher returns the content digest used on the wire: BLAKE2b-256.
func NewHasher() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	return h
}

// Sum returns the hex encoding of h's current digest.
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// HashBytes returns the hex digest of b.
func HashBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashReader digests r to EOF and returns the hex digest and byte count.
func HashReader(r io.Reader) (string, uint64, error) {
	h := NewHasher()
	buf := bufpool.Get(DefaultChunkSize)
	defer bufpool.Put(buf)

	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", uint64(n), err
	}
	return Sum(h), uint64(n), nil
}

// HashFile returns the hex digest and size of the file at path.
func HashFile(path string) (string, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()
	return HashReader(f)
}
