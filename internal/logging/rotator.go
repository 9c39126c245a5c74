package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Rotated files append a sortable timestamp after the full base name
// (pointerd.log -> pointerd.log.20260823T101500), so pruning can order
// them by name alone.
const rotateStamp = "20060102T150405"

// logFile is the size-rotated writer behind the "file" and "both"
// outputs. A write that would cross the size limit renames the live
// file aside and reopens; compression and pruning of rotated files run
// off the write path.
type logFile struct {
	path     string
	maxBytes int64
	keep     int
	maxAge   time.Duration
	compress bool

	mu   sync.Mutex
	f    *os.File
	size int64
}

func openLogFile(cfg *Config) (*logFile, error) {
	lf := &logFile{
		path:     cfg.FilePath,
		maxBytes: cfg.MaxSize * 1024 * 1024,
		keep:     cfg.MaxBackups,
		maxAge:   time.Duration(cfg.MaxAge) * 24 * time.Hour,
		compress: cfg.Compress,
	}
	if err := os.MkdirAll(filepath.Dir(lf.path), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := lf.open(); err != nil {
		return nil, err
	}
	return lf, nil
}

func (lf *logFile) open() error {
	f, err := os.OpenFile(lf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	lf.f = f
	lf.size = info.Size()
	return nil
}

func (lf *logFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		if err := lf.open(); err != nil {
			return 0, err
		}
	}
	if lf.maxBytes > 0 && lf.size+int64(len(p)) > lf.maxBytes {
		if err := lf.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}
	n, err := lf.f.Write(p)
	lf.size += int64(n)
	return n, err
}

// rotate runs under lf.mu.
func (lf *logFile) rotate() error {
	if err := lf.f.Close(); err != nil {
		return fmt.Errorf("close full log: %w", err)
	}
	lf.f = nil

	aside := lf.path + "." + time.Now().Format(rotateStamp)
	if err := os.Rename(lf.path, aside); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("set full log aside: %w", err)
	}
	go lf.finishRotation(aside)

	return lf.open()
}

// finishRotation compresses the file just set aside and applies the
// retention limits to everything previously rotated.
func (lf *logFile) finishRotation(aside string) {
	if lf.compress {
		if err := gzipFile(aside); err == nil {
			os.Remove(aside)
		}
	}
	lf.prune()
}

// prune removes rotated files beyond the keep count or older than the
// retention window. The name timestamps make a lexical sort
// oldest-first; names that lost their timestamp are left alone.
func (lf *logFile) prune() {
	dir := filepath.Dir(lf.path)
	prefix := filepath.Base(lf.path) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var rotated []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			rotated = append(rotated, e.Name())
		}
	}
	sort.Strings(rotated)

	cutoff := time.Now().Add(-lf.maxAge)
	for i, name := range rotated {
		overCount := lf.keep > 0 && len(rotated)-i > lf.keep
		expired := lf.maxAge > 0 && rotatedBefore(name, prefix, cutoff)
		if overCount || expired {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

// rotatedBefore reports whether a rotated file's name timestamp falls
// before the cutoff.
func rotatedBefore(name, prefix string, cutoff time.Time) bool {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".gz")
	at, err := time.ParseInLocation(rotateStamp, stamp, time.Local)
	if err != nil {
		return false
	}
	return at.Before(cutoff)
}

// gzipFile writes path's gzip twin next to it. The original is kept on
// any failure.
func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path + ".gz")
		return err
	}
	return nil
}

func (lf *logFile) Sync() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		return nil
	}
	return lf.f.Sync()
}

func (lf *logFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}
