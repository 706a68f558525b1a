// Package embed turns text into vector embeddings through an Ollama
// backend. Retrieval-tuned models are trained with distinct task prefixes
// for stored documents and for queries, so the package separates the two
// roles: indexing goes through EmbedForIndexing, lookups through
// EmbedForQuery, and RolePrefix injects the matching prefix before the
// text reaches the model.
package embed

import "context"

// Role prefixes understood by nomic-style retrieval models.
const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// Embedder is the transport contract: one text in, one vector out.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider produces embeddings for the two retrieval roles. Documents and
// queries must go through the matching method or similarity scores degrade.
type Provider interface {
	EmbedForIndexing(ctx context.Context, text string) ([]float32, error)
	EmbedForQuery(ctx context.Context, text string) ([]float32, error)
}

// Ensure RolePrefix implements the interface.
var _ Provider = (*RolePrefix)(nil)

// RolePrefix adapts a plain Embedder into a Provider by prepending the
// retrieval-role prefix. The prefix is added unconditionally, even when the
// text already starts with one.
type RolePrefix struct {
	embedder Embedder
}

// NewRolePrefix wraps the given transport.
func NewRolePrefix(embedder Embedder) *RolePrefix {
	return &RolePrefix{embedder: embedder}
}

// EmbedForIndexing embeds text destined for the vector index.
func (p *RolePrefix) EmbedForIndexing(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.Embed(ctx, documentPrefix+text)
}

// EmbedForQuery embeds a lookup question.
func (p *RolePrefix) EmbedForQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.Embed(ctx, queryPrefix+text)
}
