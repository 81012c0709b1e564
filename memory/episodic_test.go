package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestEpisodicMemory(maxEpisodes int, now *time.Time) *EpisodicMemory {
	return NewEpisodicMemory(EpisodicMemoryConfig{
		MaxEpisodes: maxEpisodes,
		Now:         func() time.Time { return *now },
	}, zap.NewNop())
}

func TestEpisodicMemory_StartClosesCurrent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	first := m.StartEpisode("session one")
	now = now.Add(time.Minute)
	second := m.StartEpisode("session two")

	ep1, ok := m.GetEpisode(first)
	require.True(t, ok)
	require.False(t, ep1.Open(), "starting a new episode must close the previous one")

	ep2, ok := m.GetEpisode(second)
	require.True(t, ok)
	require.True(t, ep2.Open())
	require.Equal(t, second, m.CurrentEpisode())
}

func TestEpisodicMemory_GeneratedName(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	id := m.StartEpisode("")
	episode, ok := m.GetEpisode(id)
	require.True(t, ok)
	require.Equal(t, "Episode 1", episode.Name)
}

func TestEpisodicMemory_EndEpisode(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	id := m.StartEpisode("s")
	now = now.Add(time.Minute)
	m.EndEpisode("")

	episode, _ := m.GetEpisode(id)
	require.False(t, episode.Open())
	require.Equal(t, now, *episode.EndTime)
	require.Empty(t, m.CurrentEpisode())

	// Closing again is a no-op.
	end := *episode.EndTime
	now = now.Add(time.Minute)
	m.EndEpisode(id)
	require.Equal(t, end, *episode.EndTime)
}

func TestEpisodicMemory_AddEventStartsEpisodeWhenNoneOpen(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	eventID := m.AddEvent("task_created", "created task x", nil, "")
	require.NotEmpty(t, eventID)
	require.NotEmpty(t, m.CurrentEpisode())
	require.Equal(t, 1, m.Len())

	episode, _ := m.GetEpisode(m.CurrentEpisode())
	require.Len(t, episode.Events, 1)
}

func TestEpisodicMemory_AddEventUnknownEpisode(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	require.Empty(t, m.AddEvent("x", "y", nil, "no-such-episode"))
}

func TestEpisodicMemory_EvictsOldest(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(2, &now)

	first := m.StartEpisode("a")
	now = now.Add(time.Minute)
	m.StartEpisode("b")
	now = now.Add(time.Minute)
	m.StartEpisode("c")

	require.Equal(t, 2, m.Len())
	_, ok := m.GetEpisode(first)
	require.False(t, ok, "the oldest episode should have been evicted")
}

func TestEpisodicMemory_GetEpisodesContainmentFilter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	early := m.StartEpisode("early")
	now = now.Add(time.Hour)
	mid := m.StartEpisode("mid")
	now = now.Add(time.Hour)
	m.StartEpisode("late") // stays open

	start := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 2, 30, 0, 0, time.UTC)

	episodes := m.GetEpisodes(&start, &end, 0)
	require.Len(t, episodes, 1, "only fully contained, closed episodes match")
	require.Equal(t, mid, episodes[0].ID)

	all := m.GetEpisodes(nil, nil, 0)
	require.Len(t, all, 3)
	require.Equal(t, "late", all[0].Name, "newest started first")
	require.Equal(t, early, all[2].ID)

	limited := m.GetEpisodes(nil, nil, 2)
	require.Len(t, limited, 2)
}

func TestEpisodicMemory_SearchEvents(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)

	m.StartEpisode("one")
	m.AddEvent("task_created", "Created deploy task", nil, "")
	now = now.Add(time.Minute)
	m.AddEvent("task_completed", "Finished deploy task", nil, "")
	now = now.Add(time.Minute)
	m.StartEpisode("two")
	m.AddEvent("task_created", "Created backup task", nil, "")

	byType := m.SearchEvents("task_created", "", nil, nil, 0)
	require.Len(t, byType, 2)
	require.Equal(t, "Created backup task", byType[0].Content, "newest first")
	require.Equal(t, "two", byType[0].EpisodeName)

	byQuery := m.SearchEvents("", "deploy", nil, nil, 0)
	require.Len(t, byQuery, 2)

	windowStart := now.Add(-30 * time.Second)
	windowed := m.SearchEvents("", "", &windowStart, nil, 0)
	require.Len(t, windowed, 1)

	limited := m.SearchEvents("", "", nil, nil, 1)
	require.Len(t, limited, 1)
}

func TestEpisodicMemory_SnapshotRestore(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestEpisodicMemory(10, &now)
	id := m.StartEpisode("s")
	m.AddEvent("note", "remember this", nil, "")

	state := m.snapshot()

	restored := newTestEpisodicMemory(10, &now)
	restored.restore(state)
	require.Equal(t, id, restored.CurrentEpisode())
	episode, ok := restored.GetEpisode(id)
	require.True(t, ok)
	require.Len(t, episode.Events, 1)
}

// At most one episode is open at any point, whatever the operation order.
func TestProperty_EpisodicMemory_SingleOpenEpisode(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m := newTestEpisodicMemory(rapid.IntRange(1, 10).Draw(rt, "max"), &now)

		ops := rapid.IntRange(1, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("op_%d", i)) {
			case 0:
				m.StartEpisode("")
			case 1:
				m.EndEpisode("")
			case 2:
				m.AddEvent("e", fmt.Sprintf("content_%d", i), nil, "")
			}
			now = now.Add(time.Second)

			open := 0
			for _, episode := range m.episodes {
				if episode.Open() {
					open++
				}
			}
			require.LessOrEqual(rt, open, 1)
			require.LessOrEqual(rt, m.Len(), m.maxEpisodes)
			if m.CurrentEpisode() != "" {
				episode, ok := m.GetEpisode(m.CurrentEpisode())
				require.True(rt, ok)
				require.True(rt, episode.Open())
			}
		}
	})
}
