package txlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"idealcity/internal/model"
)

// ArchiveDir is the default rotation target next to the live log.
func (l *Log) ArchiveDir() string {
	return filepath.Join(filepath.Dir(l.path), "archive")
}

// Archive compresses the current transaction log into
// <dir>/transactions-<stamp>.jsonl.zst and truncates the live log. The log
// stays canonical; archives exist so the live file does not grow without
// bound. Returns the archive path, or "" when there was nothing to archive.
func (l *Log) Archive(dir string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.archiveLocked(dir)
}

// ArchiveIfOver rotates only when the live log has reached maxBytes. The
// drain loop calls this every tick; most ticks are a cheap stat.
func (l *Log) ArchiveIfOver(dir string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		return "", nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fi, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: archive stat: %v", model.ErrStorage, err)
	}
	if fi.Size() < maxBytes {
		return "", nil
	}
	return l.archiveLocked(dir)
}

func (l *Log) archiveLocked(dir string) (string, error) {
	src, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("%w: archive open: %v", model.ErrStorage, err)
	}
	defer src.Close()

	if fi, err := src.Stat(); err != nil || fi.Size() == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: archive dir: %v", model.ErrStorage, err)
	}
	stamp := time.Now().UTC().Format("2006-01-02-150405")
	dst := filepath.Join(dir, fmt.Sprintf("transactions-%s.jsonl.zst", stamp))
	tmp := dst + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("%w: archive create: %v", model.ErrStorage, err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return "", fmt.Errorf("archive encoder: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: archive copy: %v", model.ErrStorage, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: archive flush: %v", model.ErrStorage, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("%w: archive sync: %v", model.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: archive close: %v", model.ErrStorage, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("%w: archive rename: %v", model.ErrStorage, err)
	}
	if err := os.Truncate(l.path, 0); err != nil {
		return "", fmt.Errorf("%w: archive truncate: %v", model.ErrStorage, err)
	}
	return dst, nil
}
