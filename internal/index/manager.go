package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/singleflight"

	"github.com/ragrelay/ragrelay/internal/chunk"
	"github.com/ragrelay/ragrelay/internal/config"
	"github.com/ragrelay/ragrelay/internal/embed"
	"github.com/ragrelay/ragrelay/internal/source"
)

// Persist directory entries next to the chromem collection data.
const (
	lockFileName        = "index.lock"
	fingerprintFileName = "fingerprint"
)

// embedConcurrency is how many chunks are embedded in parallel during a
// rebuild. The Ollama backend serializes heavily anyway, so a small number
// keeps it busy without flooding it.
const embedConcurrency = 4

// State is one immutable index generation: both collections plus the
// fingerprint of the tree they were built from. Old generations remain
// queryable in memory after being superseded.
type State struct {
	fingerprint source.Fingerprint
	chat        *chromem.Collection
	generate    *chromem.Collection
	files       int
	chunks      int
	builtAt     time.Time
}

func (s *State) collection(name string) *chromem.Collection {
	switch name {
	case config.CollectionChat:
		return s.chat
	case config.CollectionGenerate:
		return s.generate
	}
	return nil
}

// Manager keeps the vector index in sync with the source tree.
//
// Manager is safe for concurrent use by multiple goroutines. Cross-process
// safety comes from an exclusive file lock on the persist directory.
type Manager struct {
	db        *chromem.DB
	source    Source
	splitter  *chunk.Splitter
	provider  embed.Provider
	embedFunc chromem.EmbeddingFunc
	logger    *slog.Logger

	persistDir string
	fileLock   *flock.Flock

	current atomic.Pointer[State]
	group   singleflight.Group
}

// NewManager opens (or creates) the persistent index under persistDir and
// adopts the previously built collections when their recorded fingerprint
// is intact, so a restart over an unchanged tree costs no embedding calls.
// The persist directory is locked for the lifetime of the Manager;
// ErrIndexLocked is returned when another process already holds it.
func NewManager(persistDir string, src Source, splitter *chunk.Splitter, provider embed.Provider, logger *slog.Logger) (*Manager, error) {
	if persistDir == "" {
		return nil, errors.New("persist directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persist directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(persistDir, lockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock persist directory: %w", err)
	}
	if !locked {
		return nil, ErrIndexLocked
	}

	db, err := chromem.NewPersistentDB(persistDir, false)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	m := &Manager{
		db:         db,
		source:     src,
		splitter:   splitter,
		provider:   provider,
		embedFunc:  newEmbeddingFunc(provider),
		logger:     logger,
		persistDir: persistDir,
		fileLock:   fileLock,
	}
	m.adopt()

	return m, nil
}

// Close releases the persist directory lock.
func (m *Manager) Close() error {
	return m.fileLock.Unlock()
}

// Stats reports the currently served generation. The second return value
// is false before the first successful build or adoption.
func (m *Manager) Stats() (Stats, bool) {
	st := m.current.Load()
	if st == nil {
		return Stats{}, false
	}
	return Stats{
		Files:       st.files,
		Chunks:      st.chunks,
		Fingerprint: string(st.fingerprint),
		BuiltAt:     st.builtAt,
	}, true
}

// EnsureFresh compares the live tree fingerprint against the served
// generation and rebuilds when they differ. Concurrent callers observing
// the same stale fingerprint share a single rebuild. On rebuild failure the
// previous generation, if any, is returned alongside the error so callers
// can degrade to stale results.
func (m *Manager) EnsureFresh(ctx context.Context) (*State, error) {
	fp := m.source.Fingerprint()
	if cur := m.current.Load(); cur != nil && cur.fingerprint == fp {
		return cur, nil
	}

	v, err, _ := m.group.Do(string(fp), func() (any, error) {
		// A rebuild that finished while this caller waited for the
		// flight lock already covers this fingerprint.
		if cur := m.current.Load(); cur != nil && cur.fingerprint == fp {
			return cur, nil
		}
		return m.rebuild(ctx, fp)
	})
	if err != nil {
		return m.current.Load(), err
	}
	return v.(*State), nil
}

// rebuild re-reads the tree, re-creates both collections and swaps the
// served generation. It runs detached from the triggering request's
// cancellation because its result is shared by every waiter.
func (m *Manager) rebuild(ctx context.Context, fp source.Fingerprint) (*State, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	m.logger.Info("rebuilding vector index", "fingerprint", shortFingerprint(fp))

	docs, err := m.source.Load()
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	// Invalidate the persisted generation first, so a crash mid-rebuild
	// never leaves half-built collections that a restart would adopt.
	if err := os.Remove(m.fingerprintPath()); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("invalidate persisted fingerprint: %w", err)
	}

	chatDocs, generateDocs := m.buildDocuments(docs)

	chat, err := m.recreateCollection(ctx, config.CollectionChat, chatDocs)
	if err != nil {
		return nil, err
	}
	generate, err := m.recreateCollection(ctx, config.CollectionGenerate, generateDocs)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(m.fingerprintPath(), []byte(fp), 0o644); err != nil {
		return nil, fmt.Errorf("persist fingerprint: %w", err)
	}

	st := &State{
		fingerprint: fp,
		chat:        chat,
		generate:    generate,
		files:       len(docs),
		chunks:      len(chatDocs) + len(generateDocs),
		builtAt:     time.Now(),
	}
	m.current.Store(st)

	m.logger.Info("vector index rebuilt",
		"files", st.files,
		"chunks", st.chunks,
		"duration", time.Since(start).String())
	return st, nil
}

// buildDocuments chunks every source document at both granularities.
func (m *Manager) buildDocuments(docs []source.Document) (chatDocs, generateDocs []chromem.Document) {
	for _, d := range docs {
		base := docID(d.Path)

		for _, c := range m.splitter.Split(d.Path, d.Cleaned, chunk.Whole) {
			chatDocs = append(chatDocs, chromem.Document{
				ID:      base,
				Content: c.Text,
				Metadata: map[string]string{
					"path":     d.Path,
					"filename": filepath.Base(d.Path),
				},
			})
		}

		for i, c := range m.splitter.Split(d.Path, d.Cleaned, chunk.Window) {
			generateDocs = append(generateDocs, chromem.Document{
				ID:      fmt.Sprintf("%s_%d", base, i),
				Content: c.Text,
				Metadata: map[string]string{
					"path":     d.Path,
					"filename": filepath.Base(d.Path),
					"chunk":    strconv.Itoa(i),
				},
			})
		}
	}
	return chatDocs, generateDocs
}

// recreateCollection drops and refills one collection. Embedding happens
// inside AddDocuments through the provider-backed embedding func.
func (m *Manager) recreateCollection(ctx context.Context, name string, docs []chromem.Document) (*chromem.Collection, error) {
	if err := m.db.DeleteCollection(name); err != nil {
		return nil, fmt.Errorf("delete collection %q: %w", name, err)
	}

	coll, err := m.db.CreateCollection(name, nil, m.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}

	if len(docs) > 0 {
		if err := coll.AddDocuments(ctx, docs, embedConcurrency); err != nil {
			return nil, fmt.Errorf("embed documents into %q: %w", name, err)
		}
	}
	return coll, nil
}

// adopt restores the previous generation from disk. It only trusts
// collections whose build completed, which the fingerprint file records.
func (m *Manager) adopt() {
	raw, err := os.ReadFile(m.fingerprintPath())
	if err != nil {
		return
	}
	fp := source.Fingerprint(strings.TrimSpace(string(raw)))
	if fp == "" {
		return
	}

	chat := m.db.GetCollection(config.CollectionChat, m.embedFunc)
	generate := m.db.GetCollection(config.CollectionGenerate, m.embedFunc)
	if chat == nil || generate == nil {
		return
	}

	builtAt := time.Now()
	if info, err := os.Stat(m.fingerprintPath()); err == nil {
		builtAt = info.ModTime()
	}

	st := &State{
		fingerprint: fp,
		chat:        chat,
		generate:    generate,
		files:       chat.Count(),
		chunks:      chat.Count() + generate.Count(),
		builtAt:     builtAt,
	}
	m.current.Store(st)

	m.logger.Info("adopted persisted vector index",
		"fingerprint", shortFingerprint(fp),
		"files", st.files,
		"chunks", st.chunks)
}

func (m *Manager) fingerprintPath() string {
	return filepath.Join(m.persistDir, fingerprintFileName)
}

func shortFingerprint(fp source.Fingerprint) string {
	if len(fp) > 8 {
		return string(fp[:8])
	}
	return string(fp)
}
