package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EmbeddingFunc converts text into a fixed-length vector. The memory
// subsystem never calls an embedding provider directly; hosts inject one at
// the search boundary so the core stays testable without network access.
type EmbeddingFunc func(text string) []float64

// SearchResult is one scored hit from a long-term memory search.
type SearchResult struct {
	Content any     `json:"content"`
	Score   float64 `json:"score"`
}

// LongTermMemoryConfig configures a LongTermMemory.
type LongTermMemoryConfig struct {
	// StoragePath enables JSON persistence when non-empty. An existing file
	// at the path is loaded at construction time.
	StoragePath string

	// AutoSaveInterval debounces opportunistic saves (default 60s).
	AutoSaveInterval time.Duration

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// LongTermMemory is an unbounded store of entries plus optional vector
// embeddings sharing the same id space. Every key in embeddings is also a
// key in memories; the reverse is not required.
type LongTermMemory struct {
	storagePath string
	memories    map[string]*MemoryEntry
	embeddings  map[string][]float64

	// saveGate debounces auto-saves. It lives on the store instance so
	// independent stores in one process keep independent save cadences.
	saveGate rate.Sometimes

	now    func() time.Time
	logger *zap.Logger
}

// NewLongTermMemory creates a long-term store, loading any existing state
// from the configured storage path. A corrupt or unreadable file is logged
// and leaves the store empty.
func NewLongTermMemory(config LongTermMemoryConfig, logger *zap.Logger) *LongTermMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := config.AutoSaveInterval
	if interval <= 0 {
		interval = time.Minute
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	m := &LongTermMemory{
		storagePath: config.StoragePath,
		memories:    make(map[string]*MemoryEntry),
		embeddings:  make(map[string][]float64),
		saveGate:    rate.Sometimes{First: 1, Interval: interval},
		now:         now,
		logger:      logger.With(zap.String("memory", "long_term")),
	}
	if m.storagePath != "" {
		m.load()
	}
	return m
}

// Add stores content and, when embedding is non-nil, the vector under the
// same id. Returns the entry id. Triggers a debounced auto-save when
// persistence is configured.
func (m *LongTermMemory) Add(content any, memoryType, source string, importance float64, embedding []float64) string {
	entry := newMemoryEntry(content, memoryType, source, importance, m.now())
	m.memories[entry.ID] = entry
	if embedding != nil {
		m.embeddings[entry.ID] = append([]float64(nil), embedding...)
	}
	m.autoSave()
	return entry.ID
}

// Get returns the content for id, marking the entry accessed.
func (m *LongTermMemory) Get(id string) (any, bool) {
	entry, ok := m.memories[id]
	if !ok {
		return nil, false
	}
	entry.Access(m.now())
	return entry.Content, true
}

// Search scores stored memories against the query and returns the top
// results, best first.
//
// With an embedding function, the query is embedded and every memory that
// has a stored embedding (and passes the type filter) is scored by cosine
// similarity; scores are signed and lie in [-1, 1]. Without one the search
// degrades to an approximate lexical scorer: the lower-cased occurrence
// ratio of the query within the stringified content. The fallback is a
// degrade path, not a replacement for semantic search.
func (m *LongTermMemory) Search(query, memoryType string, limit int, embed EmbeddingFunc) []SearchResult {
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	if embed != nil && len(m.embeddings) > 0 {
		results = m.semanticSearch(embed(query), memoryType)
	} else {
		results = m.lexicalSearch(query, memoryType)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit < len(results) {
		results = results[:limit]
	}

	m.autoSave()
	return results
}

func (m *LongTermMemory) semanticSearch(queryVec []float64, memoryType string) []SearchResult {
	now := m.now()
	results := make([]SearchResult, 0, len(m.embeddings))
	for id, embedding := range m.embeddings {
		entry, ok := m.memories[id]
		if !ok {
			continue
		}
		if memoryType != "" && entry.MemoryType != memoryType {
			continue
		}
		entry.Access(now)
		results = append(results, SearchResult{
			Content: entry.Content,
			Score:   cosineSimilarity(queryVec, embedding),
		})
	}
	return results
}

func (m *LongTermMemory) lexicalSearch(query, memoryType string) []SearchResult {
	queryLower := strings.ToLower(query)
	var results []SearchResult
	for _, entry := range m.memories {
		if memoryType != "" && entry.MemoryType != memoryType {
			continue
		}
		contentStr := strings.ToLower(fmt.Sprintf("%v", entry.Content))
		if queryLower == "" || !strings.Contains(contentStr, queryLower) {
			continue
		}
		score := float64(strings.Count(contentStr, queryLower)) / float64(len(contentStr))
		results = append(results, SearchResult{Content: entry.Content, Score: score})
	}
	return results
}

// Remove deletes the entry and any embedding stored under the same id.
func (m *LongTermMemory) Remove(id string) bool {
	if _, ok := m.memories[id]; !ok {
		return false
	}
	delete(m.memories, id)
	delete(m.embeddings, id)
	m.autoSave()
	return true
}

// Clear drops every entry and embedding.
func (m *LongTermMemory) Clear() {
	m.memories = make(map[string]*MemoryEntry)
	m.embeddings = make(map[string][]float64)
	m.autoSave()
}

// Len returns the number of stored entries.
func (m *LongTermMemory) Len() int { return len(m.memories) }

// longTermState is the serialized form of a LongTermMemory.
type longTermState struct {
	Memories   map[string]*MemoryEntry `json:"memories"`
	Embeddings map[string][]float64    `json:"embeddings"`
}

// snapshot copies the store so callers can serialize it while the live
// store keeps mutating.
func (m *LongTermMemory) snapshot() longTermState {
	embeddings := make(map[string][]float64, len(m.embeddings))
	for id, vec := range m.embeddings {
		embeddings[id] = append([]float64(nil), vec...)
	}
	return longTermState{Memories: cloneEntries(m.memories), Embeddings: embeddings}
}

func (m *LongTermMemory) restore(state longTermState) {
	m.memories = state.Memories
	if m.memories == nil {
		m.memories = make(map[string]*MemoryEntry)
	}
	m.embeddings = state.Embeddings
	if m.embeddings == nil {
		m.embeddings = make(map[string][]float64)
	}
	// An embedding without a backing entry breaks the key-space invariant;
	// drop strays rather than carry them.
	for id := range m.embeddings {
		if _, ok := m.memories[id]; !ok {
			delete(m.embeddings, id)
		}
	}
}

// Save persists the whole store to the storage path. No-op without one.
func (m *LongTermMemory) Save() error {
	if m.storagePath == "" {
		return nil
	}
	if dir := filepath.Dir(m.storagePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(m.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode long-term memory: %w", err)
	}
	tempPath := m.storagePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write long-term memory: %w", err)
	}
	return os.Rename(tempPath, m.storagePath)
}

// load reads the backing file. Missing files are normal; corrupt files are
// logged and leave the store empty.
func (m *LongTermMemory) load() {
	data, err := os.ReadFile(m.storagePath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		m.logger.Warn("failed to read long-term memory file",
			zap.String("path", m.storagePath), zap.Error(err))
		return
	}
	var state longTermState
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("corrupt long-term memory file, starting empty",
			zap.String("path", m.storagePath), zap.Error(err))
		return
	}
	m.restore(state)
}

// autoSave persists opportunistically, at most once per debounce interval.
func (m *LongTermMemory) autoSave() {
	if m.storagePath == "" {
		return
	}
	m.saveGate.Do(func() {
		if err := m.Save(); err != nil {
			m.logger.Warn("auto-save failed", zap.Error(err))
		}
	})
}

// cosineSimilarity returns dot(a,b)/(|a|*|b|) in [-1, 1]. Mismatched
// lengths or zero vectors score 0 rather than dividing by zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
