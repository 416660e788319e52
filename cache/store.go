// Package cache keeps the last result of each benchmark run on disk so the
// bench command can show it again without asking the server.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store is a JSON file cache with one file per key:
//
//	~/.cache/gpu-pulse/
//	  matrix_multiply-call.json
//	  matrix_multiply-feed.json
//	  ml_inference-call.json
type Store struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// DefaultDir is ~/.cache/gpu-pulse, or the platform equivalent.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gpu-pulse")
	}
	return filepath.Join(base, "gpu-pulse")
}

// NewStore creates the directory with 0700 permissions if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger, now: time.Now}, nil
}

func (s *Store) keyPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads a cached value. A missing key returns nil, nil. Corrupted files
// are removed and treated as a miss.
func (s *Store) Get(key string) (json.RawMessage, error) {
	path := s.keyPath(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: read %s: %w", key, err)
	}
	if !json.Valid(data) {
		s.logger.Warn("cache: removing corrupted entry", zap.String("key", key))
		_ = os.Remove(path)
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// Set writes a value through a temp file and rename, so readers never see
// a partial file.
func (s *Store) Set(key string, data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key+"-*.json")
	if err != nil {
		return fmt.Errorf("cache: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()

	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: chmod temp for %s: %w", key, err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: write temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.keyPath(key)); err != nil {
		return fmt.Errorf("cache: rename temp for %s: %w", key, err)
	}

	success = true
	return nil
}

// GetTyped reads and unmarshals a cached value. It returns nil when the key
// is missing or does not decode into T.
func GetTyped[T any](s *Store, key string) (*T, error) {
	raw, err := s.Get(key)
	if err != nil || raw == nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Warn("cache: removing entry with unmarshal error", zap.String("key", key), zap.Error(err))
		_ = os.Remove(s.keyPath(key))
		return nil, nil
	}
	return &result, nil
}

// SetTyped caches a value of type T.
func SetTyped[T any](s *Store, key string, data *T) error {
	return s.Set(key, data)
}

// Keys returns the cached keys in sorted order.
func (s *Store) Keys() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys
}

// Clear removes every cache file.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cache: clear read dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cache: clear remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
