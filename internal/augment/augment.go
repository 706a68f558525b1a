// Package augment builds the final model prompt from a question, retrieved
// code excerpts and optional web results. Augmentation never fails: when
// retrieval is unavailable the original question passes through unchanged,
// so the relay always has something to forward.
package augment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ragrelay/ragrelay/internal/config"
	"github.com/ragrelay/ragrelay/internal/index"
	"github.com/ragrelay/ragrelay/internal/websearch"
)

// Mode selects the prompt shape and the collection queried.
type Mode int

const (
	// ModeGenerate targets raw completion requests: broad windowed
	// context, no web results.
	ModeGenerate Mode = iota
	// ModeChat targets conversations: whole-file context, web results
	// when enabled, instruction wrapping and tail truncation.
	ModeChat
)

func (m Mode) String() string {
	switch m {
	case ModeGenerate:
		return "generate"
	case ModeChat:
		return "chat"
	}
	return "unknown"
}

// Default retrieval parameters.
const (
	DefaultChatTopK     = 4
	DefaultGenerateTopK = 8
	DefaultWebTopK      = 2
	DefaultChatMaxChars = 8000
	DefaultLanguage     = "go"
)

// snippetMaxChars bounds each rendered web snippet.
const snippetMaxChars = 150

// Placeholders substituted for absent sections.
const (
	noContextPlaceholder   = "No code context available."
	webDisabledPlaceholder = "Web search disabled."
	noWebPlaceholder       = "No web results found."
)

// Retriever searches the vector index. *index.Manager satisfies it.
type Retriever interface {
	Query(ctx context.Context, collection, question string, topK int) ([]index.Result, error)
}

// Searcher performs toggleable web searches. *websearch.Client satisfies it.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, k int) ([]websearch.Result, error)
}

// Config holds configuration for the augmenter.
type Config struct {
	// Language names the source language in the chat instruction
	// (default: go).
	Language string

	// ChatTopK and GenerateTopK bound retrieval per mode.
	ChatTopK     int
	GenerateTopK int

	// WebTopK bounds web results merged into chat prompts.
	WebTopK int

	// ChatMaxChars is the trailing window kept of a chat prompt
	// (default: 8000).
	ChatMaxChars int

	// Logger for debugging (nil = use default).
	Logger *slog.Logger
}

// Augmenter assembles prompts. Safe for concurrent use.
type Augmenter struct {
	retriever Retriever
	web       Searcher
	cfg       Config
}

// New creates an Augmenter. Zero config fields fall back to defaults.
func New(retriever Retriever, web Searcher, cfg Config) *Augmenter {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.ChatTopK <= 0 {
		cfg.ChatTopK = DefaultChatTopK
	}
	if cfg.GenerateTopK <= 0 {
		cfg.GenerateTopK = DefaultGenerateTopK
	}
	if cfg.WebTopK <= 0 {
		cfg.WebTopK = DefaultWebTopK
	}
	if cfg.ChatMaxChars <= 0 {
		cfg.ChatMaxChars = DefaultChatMaxChars
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Augmenter{
		retriever: retriever,
		web:       web,
		cfg:       cfg,
	}
}

// Augment returns the prompt to forward for the question. Retrieval
// failures degrade to the unmodified question and are only logged.
func (a *Augmenter) Augment(ctx context.Context, mode Mode, question string) string {
	collection, topK := a.modeParams(mode)

	results, err := a.retriever.Query(ctx, collection, question, topK)
	if err != nil {
		a.cfg.Logger.Warn("context retrieval failed, forwarding question unchanged",
			"mode", mode.String(),
			"error", err)
		return question
	}

	contextBlock := renderExcerpts(dedupe(results))

	switch mode {
	case ModeChat:
		prompt := renderChatPrompt(a.cfg.Language, contextBlock, a.webBlock(ctx, question), question)
		return tailTruncate(prompt, a.cfg.ChatMaxChars)
	default:
		return renderGeneratePrompt(contextBlock, question)
	}
}

func (a *Augmenter) modeParams(mode Mode) (collection string, topK int) {
	if mode == ModeChat {
		return config.CollectionChat, a.cfg.ChatTopK
	}
	return config.CollectionGenerate, a.cfg.GenerateTopK
}

// webBlock renders the web results section of a chat prompt.
func (a *Augmenter) webBlock(ctx context.Context, question string) string {
	if !a.web.Enabled() {
		return webDisabledPlaceholder
	}

	results, err := a.web.Search(ctx, question, a.cfg.WebTopK)
	if err != nil {
		a.cfg.Logger.Warn("web search failed", "error", err)
		return noWebPlaceholder
	}
	if len(results) == 0 {
		return noWebPlaceholder
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- [%s](%s): %s...", r.Title, r.URL, headRunes(r.Snippet, snippetMaxChars)))
	}
	return strings.Join(lines, "\n")
}

// dedupe drops excerpts whose text already appeared, keeping the first
// occurrence and the similarity ordering.
func dedupe(results []index.Result) []index.Result {
	seen := make(map[string]struct{}, len(results))
	var out []index.Result
	for _, r := range results {
		if _, ok := seen[r.Content]; ok {
			continue
		}
		seen[r.Content] = struct{}{}
		out = append(out, r)
	}
	return out
}

// renderExcerpts formats retrieved excerpts as headed, indented blocks.
func renderExcerpts(results []index.Result) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		name := filepath.Base(r.Path)
		if r.Path == "" {
			name = "unknown"
		}
		header := fmt.Sprintf("### File: %s (Excerpt %d) ###", name, i+1)
		blocks = append(blocks, header+"\n"+indent(r.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// indent prefixes every line with four spaces.
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}

func renderGeneratePrompt(contextBlock, question string) string {
	if contextBlock == "" {
		contextBlock = noContextPlaceholder
	}
	return "### CODE CONTEXT ###\n" + contextBlock + "\n\n### QUESTION ###\n" + question
}

const chatTemplate = `You are an expert %s programmer. Answer the question using the
provided code excerpts and the web results when available.

**Code context (relevant excerpts):**
%s

**Web results:**
%s

**Question:**
%s

**Guidelines:**
- Answer concisely and precisely
- When the answer comes from the code context, cite the file and excerpt
- When you use a web result, cite the source
- Keep code formatting and indentation intact`

func renderChatPrompt(language, contextBlock, webBlock, question string) string {
	if contextBlock == "" {
		contextBlock = noContextPlaceholder
	}
	return fmt.Sprintf(chatTemplate, language, contextBlock, webBlock, question)
}

// headRunes keeps the first n runes of s.
func headRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// tailTruncate keeps the trailing maxChars runes of s.
func tailTruncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[len(runes)-maxChars:])
}
