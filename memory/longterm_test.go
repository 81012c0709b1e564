package memory

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestLongTermMemory(path string, now *time.Time) *LongTermMemory {
	return NewLongTermMemory(LongTermMemoryConfig{
		StoragePath: path,
		Now:         func() time.Time { return *now },
	}, zap.NewNop())
}

func TestLongTermMemory_AddAndGet(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)

	id := m.Add("backup script rotates logs weekly", "fact", "analyst", 0.7, nil)
	require.NotEmpty(t, id)
	require.Equal(t, 1, m.Len())

	content, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, "backup script rotates logs weekly", content)
	require.Equal(t, 1, m.memories[id].AccessCount)

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestLongTermMemory_SemanticSearchRanksBySimilarity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)

	m.Add("exact match", "", "", 0.5, []float64{1, 0})
	now = now.Add(time.Second)
	m.Add("orthogonal", "", "", 0.5, []float64{0, 1})
	now = now.Add(time.Second)
	m.Add("opposite", "", "", 0.5, []float64{-1, 0})

	embed := func(string) []float64 { return []float64{1, 0} }
	results := m.Search("anything", "", 10, embed)
	require.Len(t, results, 3)
	require.Equal(t, "exact match", results[0].Content)
	require.InDelta(t, 1.0, results[0].Score, 1e-9)
	require.Equal(t, "orthogonal", results[1].Content)
	require.InDelta(t, 0.0, results[1].Score, 1e-9)
	require.Equal(t, "opposite", results[2].Content)
	require.InDelta(t, -1.0, results[2].Score, 1e-9)
}

func TestLongTermMemory_SemanticSearchSkipsUnembedded(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)

	m.Add("embedded", "", "", 0.5, []float64{1, 0})
	now = now.Add(time.Second)
	m.Add("plain", "", "", 0.5, nil)

	embed := func(string) []float64 { return []float64{1, 0} }
	results := m.Search("anything", "", 10, embed)
	require.Len(t, results, 1)
	require.Equal(t, "embedded", results[0].Content)
}

func TestLongTermMemory_LexicalFallback(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)

	m.Add("deploy deploy deploy", "", "", 0.5, nil)
	now = now.Add(time.Second)
	m.Add("one deploy in a much longer sentence about other things", "", "", 0.5, nil)
	now = now.Add(time.Second)
	m.Add("nothing relevant here", "", "", 0.5, nil)

	results := m.Search("deploy", "", 10, nil)
	require.Len(t, results, 2)
	require.Equal(t, "deploy deploy deploy", results[0].Content)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestLongTermMemory_SearchFiltersByType(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)

	m.Add("fact about deploy", "fact", "", 0.5, nil)
	now = now.Add(time.Second)
	m.Add("opinion about deploy", "opinion", "", 0.5, nil)

	results := m.Search("deploy", "fact", 10, nil)
	require.Len(t, results, 1)
	require.Equal(t, "fact about deploy", results[0].Content)
}

func TestLongTermMemory_SearchLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)
	for i := 0; i < 15; i++ {
		m.Add(fmt.Sprintf("deploy note %d", i), "", "", 0.5, nil)
		now = now.Add(time.Second)
	}

	require.Len(t, m.Search("deploy", "", 0, nil), 10, "limit defaults to 10")
	require.Len(t, m.Search("deploy", "", 3, nil), 3)
}

func TestLongTermMemory_RemoveDropsEmbedding(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)

	id := m.Add("embedded", "", "", 0.5, []float64{1, 0})
	require.True(t, m.Remove(id))
	require.False(t, m.Remove(id))
	require.Empty(t, m.embeddings)
}

func TestLongTermMemory_SaveAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "long_term.json")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := newTestLongTermMemory(path, &now)
	id := m.Add("persistent fact", "fact", "system", 0.9, []float64{0.5, 0.5})
	require.NoError(t, m.Save())

	reloaded := newTestLongTermMemory(path, &now)
	require.Equal(t, 1, reloaded.Len())
	content, ok := reloaded.Get(id)
	require.True(t, ok)
	require.Equal(t, "persistent fact", content)
	require.Len(t, reloaded.embeddings[id], 2)
}

func TestLongTermMemory_CorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "long_term.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory(path, &now)
	require.Equal(t, 0, m.Len())
}

func TestLongTermMemory_RestoreDropsStrayEmbeddings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestLongTermMemory("", &now)
	m.restore(longTermState{
		Memories:   map[string]*MemoryEntry{},
		Embeddings: map[string][]float64{"orphan": {1, 0}},
	})
	require.Empty(t, m.embeddings)
}

func TestCosineSimilarity_Guards(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, cosineSimilarity(nil, nil))
	require.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{1}))
	require.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 0}))
	require.InDelta(t, 1.0, cosineSimilarity([]float64{2, 0}, []float64{5, 0}), 1e-9)
}

// Cosine similarity stays within [-1, 1] and a vector is maximally similar
// to itself.
func TestProperty_CosineSimilarity_Bounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(rt, "dim")
		a := make([]float64, n)
		b := make([]float64, n)
		for i := 0; i < n; i++ {
			a[i] = rapid.Float64Range(-100, 100).Draw(rt, fmt.Sprintf("a_%d", i))
			b[i] = rapid.Float64Range(-100, 100).Draw(rt, fmt.Sprintf("b_%d", i))
		}

		score := cosineSimilarity(a, b)
		require.GreaterOrEqual(rt, score, -1.0-1e-9)
		require.LessOrEqual(rt, score, 1.0+1e-9)

		var norm float64
		for _, v := range a {
			norm += v * v
		}
		if norm > 0 {
			require.InDelta(rt, 1.0, cosineSimilarity(a, a), 1e-9)
		}
	})
}

// Self-similar entries always rank first in semantic search.
func TestProperty_LongTermMemory_SelfSimilarityRanksFirst(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m := newTestLongTermMemory("", &now)

		dim := rapid.IntRange(2, 8).Draw(rt, "dim")
		target := make([]float64, dim)
		var norm float64
		for i := range target {
			target[i] = rapid.Float64Range(-10, 10).Draw(rt, fmt.Sprintf("t_%d", i))
			norm += target[i] * target[i]
		}
		if math.Sqrt(norm) < 1e-6 {
			rt.Skip("degenerate target vector")
		}

		m.Add("target", "", "", 0.5, target)
		others := rapid.IntRange(1, 5).Draw(rt, "others")
		for i := 0; i < others; i++ {
			now = now.Add(time.Second)
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = rapid.Float64Range(-10, 10).Draw(rt, fmt.Sprintf("v_%d_%d", i, j))
			}
			m.Add(fmt.Sprintf("other_%d", i), "", "", 0.5, vec)
		}

		embed := func(string) []float64 { return target }
		results := m.Search("query", "", 1, embed)
		require.Len(rt, results, 1)
		require.InDelta(rt, 1.0, results[0].Score, 1e-9)
	})
}
