package config

import (
	"fmt"
	"net/url"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 1. Backend validation
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute URL like http://127.0.0.1:11434", ErrInvalidBackendURL, c.BackendURL)
	}

	if c.GenerateModel == "" {
		return fmt.Errorf("%w: generate_model cannot be empty", ErrInvalidModel)
	}
	if c.EmbedModel == "" {
		return fmt.Errorf("%w: embed_model cannot be empty", ErrInvalidModel)
	}

	// RequestTimeout covers a full backend generation; one hour is already
	// far beyond any sane local-model run.
	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("%w: must be between 1 and 3600 seconds, got %d", ErrInvalidTimeout, c.RequestTimeout)
	}

	// 2. Index validation
	if len(c.Roots()) == 0 {
		return fmt.Errorf("%w: source_roots (SRC_PATH) must name at least one path", ErrNoSourceRoots)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// 3. Augmentation validation
	if c.ChatTopK < 1 || c.ChatTopK > 50 {
		return fmt.Errorf("%w: chat_top_k must be between 1 and 50, got %d", ErrInvalidTopK, c.ChatTopK)
	}
	if c.GenerateTopK < 1 || c.GenerateTopK > 50 {
		return fmt.Errorf("%w: generate_top_k must be between 1 and 50, got %d", ErrInvalidTopK, c.GenerateTopK)
	}
	if c.WebTopK < 0 || c.WebTopK > 10 {
		return fmt.Errorf("%w: web_top_k must be between 0 and 10, got %d", ErrInvalidTopK, c.WebTopK)
	}

	if c.ChatPromptMaxChars < 1 {
		return fmt.Errorf("%w: chat_prompt_max_chars must be positive, got %d", ErrInvalidPromptBound, c.ChatPromptMaxChars)
	}

	return nil
}
