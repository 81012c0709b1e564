package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scriptvault/agentcore/types"
)

// SystemConfig configures an EnhancedMemorySystem.
type SystemConfig struct {
	// WorkingCapacity bounds working memory (default 50).
	WorkingCapacity int

	// LongTermPath enables long-term persistence when non-empty.
	LongTermPath string

	// AutoSaveInterval debounces long-term persistence writes
	// (default one minute).
	AutoSaveInterval time.Duration

	// MaxEpisodes bounds episodic retention (default 100).
	MaxEpisodes int

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// EnhancedMemorySystem composes the three memory tiers for a single agent.
// It owns episode lifecycle and whole-state save/load, and it is the
// mutual-exclusion boundary for concurrent hosts: the tiers underneath
// carry no locking of their own.
type EnhancedMemorySystem struct {
	mu       sync.Mutex
	working  *WorkingMemory
	longTerm *LongTermMemory
	episodic *EpisodicMemory
	logger   *zap.Logger
}

// NewEnhancedMemorySystem creates the three tiers and opens an initial
// episode.
func NewEnhancedMemorySystem(config SystemConfig, logger *zap.Logger) *EnhancedMemorySystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EnhancedMemorySystem{
		working: NewWorkingMemory(WorkingMemoryConfig{
			Capacity: config.WorkingCapacity,
			Now:      config.Now,
		}, logger),
		longTerm: NewLongTermMemory(LongTermMemoryConfig{
			StoragePath:      config.LongTermPath,
			AutoSaveInterval: config.AutoSaveInterval,
			Now:              config.Now,
		}, logger),
		episodic: NewEpisodicMemory(EpisodicMemoryConfig{
			MaxEpisodes: config.MaxEpisodes,
			Now:         config.Now,
		}, logger),
		logger: logger.With(zap.String("component", "memory_system")),
	}
	s.episodic.StartEpisode("Initial Episode")
	return s
}

// AddToWorkingMemory stores content in working memory and returns its id.
func (s *EnhancedMemorySystem) AddToWorkingMemory(content any, memoryType, source string, importance float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Add(content, memoryType, source, importance)
}

// AddToLongTermMemory stores content (with an optional embedding) in
// long-term memory and returns its id.
func (s *EnhancedMemorySystem) AddToLongTermMemory(content any, memoryType, source string, importance float64, embedding []float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longTerm.Add(content, memoryType, source, importance, embedding)
}

// AddEvent appends an event to the current episode.
func (s *EnhancedMemorySystem) AddEvent(eventType string, content any, metadata map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodic.AddEvent(eventType, content, metadata, "")
}

// GetFromWorkingMemory returns working memory content by id.
func (s *EnhancedMemorySystem) GetFromWorkingMemory(id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working.Get(id)
}

// GetFromLongTermMemory returns long-term memory content by id.
func (s *EnhancedMemorySystem) GetFromLongTermMemory(id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longTerm.Get(id)
}

// SearchLongTermMemory searches long-term memory, best matches first.
func (s *EnhancedMemorySystem) SearchLongTermMemory(query, memoryType string, limit int, embed EmbeddingFunc) []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longTerm.Search(query, memoryType, limit, embed)
}

// GetRecentEvents returns the most recent events across all episodes,
// optionally filtered by type.
func (s *EnhancedMemorySystem) GetRecentEvents(eventType string, limit int) []EpisodeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodic.SearchEvents(eventType, "", nil, nil, limit)
}

// StartNewEpisode closes the open episode and starts a new one.
func (s *EnhancedMemorySystem) StartNewEpisode(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.episodic.CurrentEpisode(); current != "" {
		s.episodic.EndEpisode(current)
	}
	return s.episodic.StartEpisode(name)
}

// WorkingMemory exposes the working tier for hosts that need direct access.
// Callers are responsible for serializing access alongside the facade.
func (s *EnhancedMemorySystem) WorkingMemory() *WorkingMemory { return s.working }

// LongTermMemory exposes the long-term tier.
func (s *EnhancedMemorySystem) LongTermMemory() *LongTermMemory { return s.longTerm }

// EpisodicMemory exposes the episodic tier.
func (s *EnhancedMemorySystem) EpisodicMemory() *EpisodicMemory { return s.episodic }

// State is the serialized form of a whole memory system.
type State struct {
	WorkingMemory  workingState  `json:"working_memory"`
	LongTermMemory longTermState `json:"long_term_memory"`
	EpisodicMemory episodicState `json:"episodic_memory"`
}

// Snapshot captures all three tiers.
func (s *EnhancedMemorySystem) Snapshot() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &State{
		WorkingMemory:  s.working.snapshot(),
		LongTermMemory: s.longTerm.snapshot(),
		EpisodicMemory: s.episodic.snapshot(),
	}
}

// Restore replaces all three tiers with the snapshot contents.
func (s *EnhancedMemorySystem) Restore(state *State) {
	if state == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working.restore(state.WorkingMemory)
	s.longTerm.restore(state.LongTermMemory)
	s.episodic.restore(state.EpisodicMemory)
}

// SaveState writes the full memory state to path. Failures are logged and
// reported as false; the method never panics or propagates.
func (s *EnhancedMemorySystem) SaveState(path string) bool {
	if err := s.saveState(path); err != nil {
		err = types.NewError(types.ErrPersistence, "save memory state").WithCause(err)
		s.logger.Error("failed to save memory state", zap.String("path", path), zap.Error(err))
		return false
	}
	s.logger.Info("saved memory state", zap.String("path", path))
	return true
}

func (s *EnhancedMemorySystem) saveState(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory state: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write memory state: %w", err)
	}
	return os.Rename(tempPath, path)
}

// LoadState reads a full memory state from path. Failures are logged and
// reported as false, leaving the current state untouched.
func (s *EnhancedMemorySystem) LoadState(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to read memory state", zap.String("path", path), zap.Error(err))
		return false
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Error("corrupt memory state file", zap.String("path", path), zap.Error(err))
		return false
	}
	s.Restore(&state)
	s.logger.Info("loaded memory state", zap.String("path", path))
	return true
}
