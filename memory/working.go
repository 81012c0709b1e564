package memory

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Priority formula weights. Priority rewards important, recently touched,
// frequently touched memories.
const (
	importanceWeight = 0.4
	recencyWeight    = 0.3
	frequencyWeight  = 0.3

	recencyDecay        = 24 * time.Hour
	frequencySaturation = 10
)

// queueItem is one element of the derived priority index.
type queueItem struct {
	Priority float64 `json:"priority"`
	ID       string  `json:"id"`
}

// WorkingMemoryConfig configures a WorkingMemory.
type WorkingMemoryConfig struct {
	// Capacity is the maximum number of entries held (default 50).
	Capacity int

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// WorkingMemory is a bounded short-term store. The memories map is the
// source of truth; queue is a derived index sorted by priority descending
// and kept reconciled after every mutation. When capacity is exceeded the
// single lowest-priority entry is evicted.
type WorkingMemory struct {
	capacity int
	memories map[string]*MemoryEntry
	queue    []queueItem
	now      func() time.Time
	logger   *zap.Logger
}

// NewWorkingMemory creates a working memory store.
func NewWorkingMemory(config WorkingMemoryConfig, logger *zap.Logger) *WorkingMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = 50
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &WorkingMemory{
		capacity: capacity,
		memories: make(map[string]*MemoryEntry),
		now:      now,
		logger:   logger.With(zap.String("memory", "working")),
	}
}

// Add stores content and returns the entry id. Empty memoryType and source
// default to "general" and "agent". Adding beyond capacity evicts the
// lowest-priority entry.
func (m *WorkingMemory) Add(content any, memoryType, source string, importance float64) string {
	entry := newMemoryEntry(content, memoryType, source, importance, m.now())
	m.memories[entry.ID] = entry
	// Identical content added at the same instant produces the same id, so
	// any existing queue item for it must be dropped before inserting.
	m.reinsert(entry)

	if len(m.memories) > m.capacity {
		m.evictLowest()
	}
	return entry.ID
}

// Get returns the content for id and marks the entry accessed, refreshing
// its position in the priority index. The second return is false when the
// id is unknown.
func (m *WorkingMemory) Get(id string) (any, bool) {
	entry, ok := m.memories[id]
	if !ok {
		return nil, false
	}
	entry.Access(m.now())
	m.reinsert(entry)
	return entry.Content, true
}

// GetAll returns all contents, optionally filtered by memory type (empty
// string matches everything). Every returned entry is marked accessed, so
// the priority index is rebuilt wholesale afterwards.
func (m *WorkingMemory) GetAll(memoryType string) []any {
	now := m.now()
	results := make([]any, 0, len(m.memories))
	for _, entry := range m.memories {
		if memoryType != "" && entry.MemoryType != memoryType {
			continue
		}
		entry.Access(now)
		results = append(results, entry.Content)
	}
	m.rebuild()
	return results
}

// Remove deletes the entry from both the map and the index. Removing an
// unknown id is a no-op returning false.
func (m *WorkingMemory) Remove(id string) bool {
	if _, ok := m.memories[id]; !ok {
		return false
	}
	delete(m.memories, id)
	m.dropFromQueue(id)
	return true
}

// Clear drops every entry.
func (m *WorkingMemory) Clear() {
	m.memories = make(map[string]*MemoryEntry)
	m.queue = m.queue[:0]
}

// Len returns the number of stored entries.
func (m *WorkingMemory) Len() int { return len(m.memories) }

// Capacity returns the maximum number of entries held.
func (m *WorkingMemory) Capacity() int { return m.capacity }

// priority computes the eviction priority of an entry at the current time:
// 0.4*importance + 0.3*recency + 0.3*frequency, where recency decays
// linearly to zero over 24h since last access and frequency saturates at
// ten accesses.
func (m *WorkingMemory) priority(entry *MemoryEntry) float64 {
	elapsed := m.now().Sub(entry.LastAccessed)
	timeFactor := 1 - elapsed.Seconds()/recencyDecay.Seconds()
	if timeFactor < 0 {
		timeFactor = 0
	}
	accessFactor := float64(entry.AccessCount) / frequencySaturation
	if accessFactor > 1 {
		accessFactor = 1
	}
	return importanceWeight*entry.Importance + recencyWeight*timeFactor + frequencyWeight*accessFactor
}

func (m *WorkingMemory) insert(entry *MemoryEntry) {
	m.queue = append(m.queue, queueItem{Priority: m.priority(entry), ID: entry.ID})
	m.sortQueue()
}

func (m *WorkingMemory) reinsert(entry *MemoryEntry) {
	m.dropFromQueue(entry.ID)
	m.insert(entry)
}

func (m *WorkingMemory) rebuild() {
	m.queue = m.queue[:0]
	for _, entry := range m.memories {
		m.queue = append(m.queue, queueItem{Priority: m.priority(entry), ID: entry.ID})
	}
	m.sortQueue()
}

func (m *WorkingMemory) dropFromQueue(id string) {
	for i, item := range m.queue {
		if item.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// sortQueue orders by priority descending. The sort is stable so equal
// priorities keep their existing order.
func (m *WorkingMemory) sortQueue() {
	sort.SliceStable(m.queue, func(i, j int) bool {
		return m.queue[i].Priority > m.queue[j].Priority
	})
}

func (m *WorkingMemory) evictLowest() {
	if len(m.queue) == 0 {
		return
	}
	victim := m.queue[len(m.queue)-1]
	m.queue = m.queue[:len(m.queue)-1]
	delete(m.memories, victim.ID)
	workingEvictionsTotal.Inc()
	m.logger.Debug("evicted working memory entry",
		zap.String("id", victim.ID),
		zap.Float64("priority", victim.Priority))
}

// workingState is the serialized form of a WorkingMemory.
type workingState struct {
	Capacity      int                     `json:"capacity"`
	Memories      map[string]*MemoryEntry `json:"memories"`
	PriorityQueue []queueItem             `json:"priority_queue"`
}

// snapshot copies the store so callers can serialize it while the live
// store keeps mutating.
func (m *WorkingMemory) snapshot() workingState {
	return workingState{
		Capacity:      m.capacity,
		Memories:      cloneEntries(m.memories),
		PriorityQueue: append([]queueItem(nil), m.queue...),
	}
}

func (m *WorkingMemory) restore(state workingState) {
	if state.Capacity > 0 {
		m.capacity = state.Capacity
	}
	m.memories = state.Memories
	if m.memories == nil {
		m.memories = make(map[string]*MemoryEntry)
	}
	m.queue = state.PriorityQueue
	// The serialized index may predate access-state changes; rebuild so the
	// index and the map agree on membership.
	m.rebuild()
}
