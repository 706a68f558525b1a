// Package index maintains the persistent vector index over the configured
// source trees. Two chromem collections are kept side by side: "chat" holds
// one whole-document entry per source file, "generate" holds the fine
// windowed chunks. A content fingerprint of the tree decides when the
// collections are stale, and rebuilds are collapsed so concurrent requests
// trigger at most one embedding pass.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/ragrelay/ragrelay/internal/embed"
	"github.com/ragrelay/ragrelay/internal/source"
)

var (
	// ErrUnknownCollection indicates a query named a collection other than
	// the chat or generate one.
	ErrUnknownCollection = errors.New("unknown index collection")

	// ErrIndexLocked indicates another process holds the persist
	// directory lock.
	ErrIndexLocked = errors.New("index persist directory is locked by another process")
)

// Source yields the documents to index and identifies the current state of
// the tree they come from. *source.Loader satisfies it.
type Source interface {
	Load() ([]source.Document, error)
	Fingerprint() source.Fingerprint
}

// Result is one retrieved excerpt with its cosine similarity to the query.
type Result struct {
	Path       string
	Content    string
	Similarity float32
}

// Stats describes the currently served index generation.
type Stats struct {
	Files       int
	Chunks      int
	Fingerprint string
	BuiltAt     time.Time
}

// newEmbeddingFunc adapts the provider's indexing role to the callback
// chromem invokes while adding documents.
func newEmbeddingFunc(provider embed.Provider) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return provider.EmbedForIndexing(ctx, text)
	}
}

// docID derives a stable document ID from a file path, so rebuilding an
// unchanged tree produces the same IDs.
func docID(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	hash := sha256.Sum256([]byte(absPath))
	return "file_" + hex.EncodeToString(hash[:16])
}
