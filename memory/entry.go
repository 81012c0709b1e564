package memory

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Default tags applied when a caller leaves them empty.
const (
	DefaultMemoryType = "general"
	DefaultSource     = "agent"
)

// MemoryEntry is the atomic unit of remembered content. Entries are created
// by the tier that stores them and mutated only through Access.
type MemoryEntry struct {
	ID           string    `json:"id"`
	Content      any       `json:"content"`
	MemoryType   string    `json:"memory_type"`
	Source       string    `json:"source"`
	Importance   float64   `json:"importance"`
	Timestamp    time.Time `json:"timestamp"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
}

func newMemoryEntry(content any, memoryType, source string, importance float64, now time.Time) *MemoryEntry {
	if memoryType == "" {
		memoryType = DefaultMemoryType
	}
	if source == "" {
		source = DefaultSource
	}
	e := &MemoryEntry{
		Content:      content,
		MemoryType:   memoryType,
		Source:       source,
		Importance:   importance,
		Timestamp:    now,
		LastAccessed: now,
	}
	e.ID = entryID(content, now, memoryType, source)
	return e
}

// cloneEntries copies an entry map. Content values are shared; nothing in
// the memory system mutates them.
func cloneEntries(entries map[string]*MemoryEntry) map[string]*MemoryEntry {
	out := make(map[string]*MemoryEntry, len(entries))
	for id, entry := range entries {
		e := *entry
		out[id] = &e
	}
	return out
}

// entryID derives a deterministic id from content, timestamp, type, and
// source. Identical content created at the identical instant with the same
// tags collides on purpose.
func entryID(content any, ts time.Time, memoryType, source string) string {
	input := fmt.Sprintf("%v_%d_%s_%s", content, ts.UnixNano(), memoryType, source)
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Access records a read of the entry at the given instant.
func (e *MemoryEntry) Access(now time.Time) {
	e.LastAccessed = now
	e.AccessCount++
}
