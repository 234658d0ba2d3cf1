package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressFunc receives bytes written so far and the expected total (-1 if unknown).
type ProgressFunc func(written, total int64)

// SaveAtomic streams rawURL into dir/name. The body is written to a temp file
// in dir, synced, and renamed into place only once fully received; on any
// failure the temp file is removed and nothing appears at dir/name. dir is
// only created once the server has answered with 200.
func SaveAtomic(ctx context.Context, f *Fetcher, rawURL, dir, name string, progress ProgressFunc) (path string, size int64, err error) {
	logger := f.logger.With(slog.String("url", rawURL), slog.String("dir", dir))
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create download directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warn("Failed to remove partial download.", slog.String("temp_file", tmpName), "error", rmErr)
			}
		}
	}()

	start := time.Now()
	w := &progressWriter{w: tmp, total: resp.ContentLength, fn: progress, logger: logger, lastLog: start}
	size, err = io.Copy(w, resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if resp.ContentLength >= 0 && size != resp.ContentLength {
		err = fmt.Errorf("download %s: short body, got %d of %d bytes", rawURL, size, resp.ContentLength)
		return "", 0, err
	}
	if err = tmp.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close %s: %w", tmpName, err)
	}
	path = filepath.Join(dir, name)
	if err = os.Rename(tmpName, path); err != nil {
		return "", 0, fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}

	logger.Info("Download complete.",
		slog.String("path", path),
		slog.String("size", humanize.Bytes(uint64(size))),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return path, size, nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
	logger  *slog.Logger
	lastLog time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.fn != nil {
		p.fn(p.written, p.total)
	}
	if time.Since(p.lastLog) >= 30*time.Second {
		p.lastLog = time.Now()
		total := "unknown"
		if p.total >= 0 {
			total = humanize.Bytes(uint64(p.total))
		}
		p.logger.Info("Downloading...", slog.String("written", humanize.Bytes(uint64(p.written))), slog.String("total", total))
	}
	return n, err
}
