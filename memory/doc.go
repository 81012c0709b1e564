// Package memory provides the tiered memory subsystem for AgentCore agents.
//
// Three tiers compose into one EnhancedMemorySystem per agent:
//
//   - WorkingMemory: bounded short-term store with priority-based eviction.
//     Priority is derived from importance, recency, and access frequency.
//   - LongTermMemory: unbounded store with optional vector embeddings,
//     cosine-similarity search, and debounced JSON persistence.
//   - EpisodicMemory: named episodes of timestamped events with time-range
//     and content queries.
//
// The tiers themselves carry no locking; the EnhancedMemorySystem facade is
// the single mutual-exclusion boundary for concurrent hosts.
package memory
