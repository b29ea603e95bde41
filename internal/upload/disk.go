package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const chunkSize = 64 << 10

// DiskStore is a filesystem-backed blob store. Objects are written in chunks
// so progress can be reported, and a failed write leaves nothing behind.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore constructs a DiskStore rooted at dir. Returned URLs are
// baseURL + "/" + key.
func NewDiskStore(dir, baseURL string) *DiskStore {
	return &DiskStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Put streams the object to disk, calling onChunk with the running byte
// count after each chunk.
func (d *DiskStore) Put(ctx context.Context, key string, r io.Reader, size int64, onChunk func(written int64)) (string, error) {
	dest := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}

	var written int64
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			os.Remove(dest)
			return "", err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				os.Remove(dest)
				return "", fmt.Errorf("write object: %w", writeErr)
			}
			written += int64(n)
			if onChunk != nil {
				onChunk(written)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(dest)
			return "", fmt.Errorf("read upload: %w", readErr)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close object: %w", err)
	}

	return d.baseURL + "/" + key, nil
}
