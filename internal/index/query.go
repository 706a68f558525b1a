package index

import (
	"context"
	"fmt"
)

// Query retrieves the topK most similar excerpts from the named collection,
// refreshing the index first when the tree changed. When a refresh fails
// but a previous generation exists, that stale generation serves the query.
func (m *Manager) Query(ctx context.Context, collection, question string, topK int) ([]Result, error) {
	st, err := m.EnsureFresh(ctx)
	if st == nil {
		return nil, err
	}
	if err != nil {
		m.logger.Warn("serving stale index generation",
			"fingerprint", shortFingerprint(st.fingerprint),
			"error", err)
	}

	coll := st.collection(collection)
	if coll == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}

	// chromem rejects nResults larger than the collection, so clamp.
	n := coll.Count()
	if topK < n {
		n = topK
	}
	if n <= 0 {
		return nil, nil
	}

	vec, err := m.provider.EmbedForQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := coll.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %q: %w", collection, err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Path:       h.Metadata["path"],
			Content:    h.Content,
			Similarity: h.Similarity,
		})
	}
	return results, nil
}
