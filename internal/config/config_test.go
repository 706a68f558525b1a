package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig points the config search paths at empty directories so a
// developer's real ~/.ragrelay/config.yaml cannot leak into tests.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfig(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
	assert.Equal(t, 60, cfg.RateBurst)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.BackendURL)
	assert.Equal(t, "llama3:13b", cfg.GenerateModel)
	assert.Equal(t, "nomic-embed-text", cfg.EmbedModel)
	assert.Equal(t, 768, cfg.EmbedDims)
	assert.Equal(t, "./chroma_db", cfg.PersistDir)
	assert.Equal(t, "./response_cache", cfg.CacheDir)
	assert.Equal(t, []string{"."}, cfg.Roots())
	assert.Equal(t, "go", cfg.SourceLanguage)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 150, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.ChatTopK)
	assert.Equal(t, 8, cfg.GenerateTopK)
	assert.Equal(t, 2, cfg.WebTopK)
	assert.True(t, cfg.WebSearchEnabled)
	assert.Equal(t, 8000, cfg.ChatPromptMaxChars)
	assert.Equal(t, 120*time.Second, cfg.Timeout())
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateConfig(t)
	t.Setenv("OLLAMA_BASE_URL", "http://ollama.internal:11434")
	t.Setenv("OLLAMA_MODEL", "codellama:7b")
	t.Setenv("EMBED_MODEL", "mxbai-embed-large:latest")
	t.Setenv("CHROMA_PERSIST_DIR", "/var/lib/ragrelay/index")
	t.Setenv("RESPONSE_CACHE_DIR", "")
	t.Setenv("SRC_PATH", "/repo/a:/repo/b")
	t.Setenv("CHUNK_SIZE", "400")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("REQUEST_TIMEOUT", "30")
	t.Setenv("WEB_SEARCH_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://ollama.internal:11434", cfg.BackendURL)
	assert.Equal(t, "codellama:7b", cfg.GenerateModel)
	assert.Equal(t, "mxbai-embed-large:latest", cfg.EmbedModel)
	assert.Equal(t, "/var/lib/ragrelay/index", cfg.PersistDir)
	assert.Empty(t, cfg.CacheDir)
	assert.Equal(t, []string{"/repo/a", "/repo/b"}, cfg.Roots())
	assert.Equal(t, 400, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.False(t, cfg.WebSearchEnabled)
}

func TestRoots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", ".", []string{"."}},
		{"multiple", "a:b:c", []string{"a", "b", "c"}},
		{"empty segments dropped", "a::b:", []string{"a", "b"}},
		{"whitespace trimmed", " a : b ", []string{"a", "b"}},
		{"all empty", " : ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{SourceRoots: tt.in}
			if tt.want == nil {
				assert.Empty(t, cfg.Roots())
				return
			}
			assert.Equal(t, tt.want, cfg.Roots())
		})
	}
}

func TestEffectiveChatModel(t *testing.T) {
	t.Parallel()

	cfg := &Config{GenerateModel: "llama3:13b"}
	assert.Equal(t, "llama3:13b", cfg.EffectiveChatModel())

	cfg.ChatModel = "llama3:instruct"
	assert.Equal(t, "llama3:instruct", cfg.EffectiveChatModel())
}

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		assert.Equal(t, tt.want, cfg.Level(), "level %q", tt.in)
	}
}
