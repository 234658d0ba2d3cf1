package dump

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

// Handle is a resolved, locally readable dump file.
type Handle struct {
	ID     Identifier
	Path   string
	Source string
	Size   int64
}

// Reader is a decompressed dump stream that tracks how many compressed bytes
// have been consumed.
type Reader struct {
	io.Reader
	file *os.File
	gz   *gzip.Reader
	read *atomic.Int64
}

// CompressedRead returns the compressed bytes consumed so far. It is safe to
// call from another goroutine.
func (r *Reader) CompressedRead() int64 { return r.read.Load() }

// Close releases the decompressor and the file.
func (r *Reader) Close() error {
	return errors.Join(r.gz.Close(), r.file.Close())
}

// Open returns a decompressed stream over the dump. The caller must Close it.
func (h Handle) Open() (*Reader, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, fmt.Errorf("open dump %s: %w", h.Path, err)
	}
	counter := &atomic.Int64{}
	gz, err := gzip.NewReader(&countingReader{r: f, n: counter})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip stream %s: %w", h.Path, err)
	}
	return &Reader{Reader: gz, file: f, gz: gz, read: counter}, nil
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
