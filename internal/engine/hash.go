package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const hashChunk = 256 * 1024

// Digest is a BLAKE3-256 sum.
type Digest [32]byte

func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }

// HashFile computes the BLAKE3 digest of the file at path, checking ctx
// between chunks.
func HashFile(ctx context.Context, path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, hashChunk)
	for {
		if err := ctx.Err(); err != nil {
			return Digest{}, err
		}
		n, err := f.Read(buf)
		h.Write(buf[:n]) //nolint:errcheck // hash writes never fail
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("hash %s: %w", path, err)
		}
	}

	var d Digest
	h.Sum(d[:0])
	return d, nil
}

// sameContent hashes both files and reports a mismatch as an error.
func sameContent(ctx context.Context, src, dst string) error {
	srcSum, err := HashFile(ctx, src)
	if err != nil {
		return err
	}
	dstSum, err := HashFile(ctx, dst)
	if err != nil {
		return err
	}
	if !bytes.Equal(srcSum[:], dstSum[:]) {
		return fmt.Errorf("checksum mismatch: source %.16s, destination %.16s", srcSum, dstSum)
	}
	return nil
}
