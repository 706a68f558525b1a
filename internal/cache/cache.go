// Package cache stores non-streaming completion answers on disk so
// repeated identical questions skip retrieval and inference entirely. Keys
// are the hex MD5 of the question; values are plain text files. Everything
// is best-effort: a broken cache degrades to a miss, never to an error.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
)

// Store is a flat-file response cache. A nil Store or one with an empty
// directory is disabled and ignores all calls. Safe for concurrent use.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store under dir. An empty dir disables caching.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Enabled reports whether the cache persists anything.
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// Get returns the cached answer for the question, if any.
func (s *Store) Get(question string) (string, bool) {
	if !s.Enabled() {
		return "", false
	}

	data, err := os.ReadFile(s.path(question))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Put stores the answer for the question. Failures are logged and
// swallowed.
func (s *Store) Put(question, answer string) {
	if !s.Enabled() {
		return
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("response cache unavailable", "dir", s.dir, "error", err)
		return
	}
	if err := os.WriteFile(s.path(question), []byte(answer), 0o644); err != nil {
		s.logger.Warn("response cache write failed", "dir", s.dir, "error", err)
	}
}

func (s *Store) path(question string) string {
	return filepath.Join(s.dir, key(question)+".txt")
}

// key derives the stable cache file name for a question.
func key(question string) string {
	sum := md5.Sum([]byte(question))
	return hex.EncodeToString(sum[:])
}
