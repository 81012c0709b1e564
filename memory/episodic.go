package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Episode is a bounded span of time containing an ordered event sequence.
// EndTime is nil while the episode is open.
type Episode struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Events    []*Event   `json:"events"`
}

// Open reports whether the episode has not been closed yet.
func (e *Episode) Open() bool { return e.EndTime == nil }

// Event is a single timestamped occurrence inside an episode.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Content   any            `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EpisodeEvent is an event annotated with its parent episode, as returned
// by cross-episode searches.
type EpisodeEvent struct {
	Event
	EpisodeID   string `json:"episode_id"`
	EpisodeName string `json:"episode_name"`
}

// EpisodicMemoryConfig configures an EpisodicMemory.
type EpisodicMemoryConfig struct {
	// MaxEpisodes bounds episode retention (default 100). The oldest
	// episode is evicted wholesale; items inside episodes never are.
	MaxEpisodes int

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// EpisodicMemory stores named episodes of events. At most one episode is
// open at a time; starting a new episode implicitly closes the previous one.
type EpisodicMemory struct {
	maxEpisodes    int
	episodes       map[string]*Episode
	currentEpisode string
	now            func() time.Time
	logger         *zap.Logger
}

// NewEpisodicMemory creates an episodic store.
func NewEpisodicMemory(config EpisodicMemoryConfig, logger *zap.Logger) *EpisodicMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxEpisodes := config.MaxEpisodes
	if maxEpisodes <= 0 {
		maxEpisodes = 100
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &EpisodicMemory{
		maxEpisodes: maxEpisodes,
		episodes:    make(map[string]*Episode),
		now:         now,
		logger:      logger.With(zap.String("memory", "episodic")),
	}
}

// StartEpisode closes any open episode, opens a new one, and evicts the
// oldest episode if the retention bound would be exceeded. Returns the new
// episode id. An empty name gets a generated one.
func (m *EpisodicMemory) StartEpisode(name string) string {
	if m.currentEpisode != "" {
		m.EndEpisode(m.currentEpisode)
	}

	now := m.now()
	id := fmt.Sprintf("episode_%d_%s", now.Unix(), uuid.NewString()[:8])
	if name == "" {
		name = fmt.Sprintf("Episode %d", len(m.episodes)+1)
	}
	m.episodes[id] = &Episode{
		ID:        id,
		Name:      name,
		StartTime: now,
		Events:    make([]*Event, 0),
	}
	m.currentEpisode = id

	if len(m.episodes) > m.maxEpisodes {
		m.evictOldest()
	}
	return id
}

// EndEpisode closes the given episode, or the current one when id is empty.
// Closing an absent or already-closed episode is a no-op.
func (m *EpisodicMemory) EndEpisode(id string) {
	if id == "" {
		id = m.currentEpisode
	}
	episode, ok := m.episodes[id]
	if !ok || !episode.Open() {
		return
	}
	end := m.now()
	episode.EndTime = &end
	if id == m.currentEpisode {
		m.currentEpisode = ""
	}
}

// AddEvent appends an event to the given episode, or the current one when
// episodeID is empty; with no current episode a new one is started. An
// unknown episode id logs a warning and returns "".
func (m *EpisodicMemory) AddEvent(eventType string, content any, metadata map[string]any, episodeID string) string {
	if episodeID == "" {
		episodeID = m.currentEpisode
	}
	if episodeID == "" {
		episodeID = m.StartEpisode("")
	}
	episode, ok := m.episodes[episodeID]
	if !ok {
		m.logger.Warn("episode not found", zap.String("episode_id", episodeID))
		return ""
	}

	now := m.now()
	event := &Event{
		ID:        fmt.Sprintf("event_%d_%s", now.Unix(), uuid.NewString()[:8]),
		Type:      eventType,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	}
	episode.Events = append(episode.Events, event)
	return event.ID
}

// GetEpisode returns the episode with the given id.
func (m *EpisodicMemory) GetEpisode(id string) (*Episode, bool) {
	episode, ok := m.episodes[id]
	return episode, ok
}

// CurrentEpisode returns the id of the open episode, or "".
func (m *EpisodicMemory) CurrentEpisode() string { return m.currentEpisode }

// GetEpisodes returns episodes contained in the given time range, newest
// started first. Nil bounds are open; limit <= 0 returns all.
func (m *EpisodicMemory) GetEpisodes(start, end *time.Time, limit int) []*Episode {
	filtered := make([]*Episode, 0, len(m.episodes))
	for _, episode := range m.episodes {
		if start != nil && episode.StartTime.Before(*start) {
			continue
		}
		if end != nil && (episode.EndTime == nil || episode.EndTime.After(*end)) {
			continue
		}
		filtered = append(filtered, episode)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartTime.After(filtered[j].StartTime)
	})
	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered
}

// SearchEvents flattens events across all episodes, annotates each with its
// parent episode, and filters by type, content substring, and time window,
// newest first. Empty/nil filters match everything; limit <= 0 returns all.
func (m *EpisodicMemory) SearchEvents(eventType, query string, start, end *time.Time, limit int) []EpisodeEvent {
	queryLower := strings.ToLower(query)
	var all []EpisodeEvent
	for id, episode := range m.episodes {
		for _, event := range episode.Events {
			if eventType != "" && event.Type != eventType {
				continue
			}
			if query != "" {
				contentStr := strings.ToLower(fmt.Sprintf("%v", event.Content))
				if !strings.Contains(contentStr, queryLower) {
					continue
				}
			}
			if start != nil && event.Timestamp.Before(*start) {
				continue
			}
			if end != nil && event.Timestamp.After(*end) {
				continue
			}
			all = append(all, EpisodeEvent{
				Event:       *event,
				EpisodeID:   id,
				EpisodeName: episode.Name,
			})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Clear drops every episode.
func (m *EpisodicMemory) Clear() {
	m.episodes = make(map[string]*Episode)
	m.currentEpisode = ""
}

// Len returns the number of retained episodes.
func (m *EpisodicMemory) Len() int { return len(m.episodes) }

func (m *EpisodicMemory) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, episode := range m.episodes {
		if oldestID == "" || episode.StartTime.Before(oldest) {
			oldestID = id
			oldest = episode.StartTime
		}
	}
	if oldestID == "" {
		return
	}
	delete(m.episodes, oldestID)
	if oldestID == m.currentEpisode {
		m.currentEpisode = ""
	}
	m.logger.Debug("evicted oldest episode", zap.String("episode_id", oldestID))
}

// episodicState is the serialized form of an EpisodicMemory.
type episodicState struct {
	MaxEpisodes    int                 `json:"max_episodes"`
	Episodes       map[string]*Episode `json:"episodes"`
	CurrentEpisode string              `json:"current_episode"`
}

// snapshot copies the store so callers can serialize it while the live
// store keeps mutating.
func (m *EpisodicMemory) snapshot() episodicState {
	episodes := make(map[string]*Episode, len(m.episodes))
	for id, episode := range m.episodes {
		e := *episode
		e.Events = append([]*Event(nil), episode.Events...)
		if episode.EndTime != nil {
			end := *episode.EndTime
			e.EndTime = &end
		}
		episodes[id] = &e
	}
	return episodicState{
		MaxEpisodes:    m.maxEpisodes,
		Episodes:       episodes,
		CurrentEpisode: m.currentEpisode,
	}
}

func (m *EpisodicMemory) restore(state episodicState) {
	if state.MaxEpisodes > 0 {
		m.maxEpisodes = state.MaxEpisodes
	}
	m.episodes = state.Episodes
	if m.episodes == nil {
		m.episodes = make(map[string]*Episode)
	}
	m.currentEpisode = state.CurrentEpisode
	if _, ok := m.episodes[m.currentEpisode]; !ok {
		m.currentEpisode = ""
	}
}
