package medium

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileMedium persists each key as one file under a data directory. Keys are
// encoded to stable filenames so arbitrary key strings stay filesystem-safe.
type FileMedium struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	logger   *slog.Logger
}

// NewFile creates a FileMedium rooted at dir, creating it if needed.
// A capacity of 0 means unlimited.
func NewFile(dir string, capacity int64, logger *slog.Logger) (*FileMedium, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileMedium{dir: dir, capacity: capacity, logger: logger}, nil
}

func (f *FileMedium) path(key string) string {
	name := base64.URLEncoding.EncodeToString([]byte(key)) + ".kv"
	return filepath.Join(f.dir, name)
}

func (f *FileMedium) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (f *FileMedium) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.capacity > 0 {
		usage, err := f.usageExcluding(f.path(key))
		if err != nil {
			f.logger.Warn("failed to measure storage usage", "error", err)
		} else if usage+int64(len(value)) > f.capacity {
			return ErrQuotaExceeded
		}
	}

	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, f.path(key))
}

func (f *FileMedium) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("failed to delete key", "key", key, "error", err)
	}
}

func (f *FileMedium) usageExcluding(skip string) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}
	var usage int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".kv" {
			continue
		}
		full := filepath.Join(f.dir, e.Name())
		if full == skip {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		usage += info.Size()
	}
	return usage, nil
}
