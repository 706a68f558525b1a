// Package source loads source files from the configured roots and computes
// the content fingerprint that gates index rebuilds.
//
// Provides functionality to:
//   - Enumerate matching source files under one or more roots in a stable order
//   - Read and clean file contents into documents ready for chunking
//   - Fold every file's raw bytes into a single tree fingerprint
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragrelay/ragrelay/internal/log"
)

// Document is one loaded source file. Immutable after creation; discarded
// once it has been chunked.
type Document struct {
	Path    string // path as discovered during the walk
	Raw     string // file bytes as read
	Cleaned string // Raw after Clean
}

// languageExtensions maps a source-language identifier to the file extension
// that selects which files belong to the index.
var languageExtensions = map[string]string{
	"go":         ".go",
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"rust":       ".rs",
	"java":       ".java",
	"c":          ".c",
	"cpp":        ".cpp",
	"ruby":       ".rb",
}

// Loader enumerates and reads source files for one configured tree.
// Safe for concurrent use.
type Loader struct {
	roots  []string
	ext    string
	logger log.Logger
}

// NewLoader creates a Loader over the given roots. The language identifier
// selects the file extension ("go" matches *.go); unknown identifiers fall
// back to "." + language.
func NewLoader(roots []string, language string, logger log.Logger) *Loader {
	ext, ok := languageExtensions[strings.ToLower(language)]
	if !ok {
		ext = "." + strings.ToLower(language)
	}
	return &Loader{
		roots:  roots,
		ext:    ext,
		logger: logger,
	}
}

// Load reads every matching file under the roots and returns cleaned
// documents in walk order. Files that cannot be read are skipped with a
// warning so one bad file never sinks the whole load. It is an error only
// when every configured root is missing or unreadable.
func (l *Loader) Load() ([]Document, error) {
	paths, visited := l.matchFiles()
	if visited == 0 {
		return nil, fmt.Errorf("no readable source roots among %v", l.roots)
	}

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		docs = append(docs, Document{
			Path:    path,
			Raw:     string(raw),
			Cleaned: Clean(string(raw)),
		})
	}
	return docs, nil
}

// matchFiles walks all roots in configuration order and returns matching
// file paths in a deterministic order, plus the number of roots that could
// be walked at all. Hidden files and directories (dot-prefixed, e.g. .git)
// are skipped, matching the recursive-glob semantics of the indexing
// contract. A missing root contributes nothing rather than failing.
func (l *Loader) matchFiles() (paths []string, visited int) {
	for _, root := range l.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			l.logger.Warn("skipping unusable source root", "root", root, "error", err)
			continue
		}
		visited++

		// WalkDir yields lexical order within each directory, which keeps
		// the overall enumeration stable across runs.
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				l.logger.Warn("skipping unreadable entry", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), l.ext) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			l.logger.Warn("walk aborted for root", "root", root, "error", err)
		}
	}
	return paths, visited
}
