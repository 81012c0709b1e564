package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/scriptvault/agentcore/types"
)

// SQLiteArchive is an optional durable mirror of a LongTermMemory: every
// entry and embedding is kept in a queryable SQLite table alongside the
// JSON snapshot. Similarity search still runs in application memory; the
// archive exists for durability and offline inspection.
type SQLiteArchive struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteArchive opens (or creates) the archive database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral archive.
func NewSQLiteArchive(ctx context.Context, path string, logger *zap.Logger) (*SQLiteArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, types.NewError(types.ErrPersistence, "open archive").WithCause(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, types.NewError(types.ErrPersistence, "ping archive").WithCause(err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS long_term_memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			source TEXT NOT NULL,
			importance REAL NOT NULL,
			timestamp TEXT NOT NULL,
			last_accessed TEXT NOT NULL,
			access_count INTEGER NOT NULL,
			embedding BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_memories_type ON long_term_memories(memory_type);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, types.NewError(types.ErrPersistence, "init archive schema").WithCause(err)
	}

	return &SQLiteArchive{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_archive")),
	}, nil
}

// Archive upserts every entry and embedding from the store. Returns the
// number of rows written.
func (a *SQLiteArchive) Archive(ctx context.Context, store *LongTermMemory) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO long_term_memories
			(id, content, memory_type, source, importance, timestamp, last_accessed, access_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare archive stmt: %w", err)
	}
	defer stmt.Close()

	count := 0
	for id, entry := range store.memories {
		content, err := json.Marshal(entry.Content)
		if err != nil {
			return count, fmt.Errorf("encode content for %s: %w", id, err)
		}
		var blob []byte
		if embedding, ok := store.embeddings[id]; ok {
			blob = encodeVector(embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			id, string(content), entry.MemoryType, entry.Source, entry.Importance,
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.LastAccessed.Format(time.RFC3339Nano),
			entry.AccessCount, blob,
		); err != nil {
			return count, fmt.Errorf("archive entry %s: %w", id, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("commit archive tx: %w", err)
	}
	a.logger.Info("archived long-term memory", zap.Int("entries", count))
	return count, nil
}

// Restore loads every archived row into the store, replacing entries with
// the same id. Returns the number of rows read.
func (a *SQLiteArchive) Restore(ctx context.Context, store *LongTermMemory) (int, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, content, memory_type, source, importance, timestamp, last_accessed, access_count, embedding
		FROM long_term_memories
	`)
	if err != nil {
		return 0, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id, content, memoryType, source, ts, accessed string
			importance                                    float64
			accessCount                                   int
			blob                                          []byte
		)
		if err := rows.Scan(&id, &content, &memoryType, &source, &importance, &ts, &accessed, &accessCount, &blob); err != nil {
			return count, fmt.Errorf("scan archive row: %w", err)
		}

		entry := &MemoryEntry{
			ID:          id,
			MemoryType:  memoryType,
			Source:      source,
			Importance:  importance,
			AccessCount: accessCount,
		}
		if err := json.Unmarshal([]byte(content), &entry.Content); err != nil {
			return count, fmt.Errorf("decode content for %s: %w", id, err)
		}
		if entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return count, fmt.Errorf("parse timestamp for %s: %w", id, err)
		}
		if entry.LastAccessed, err = time.Parse(time.RFC3339Nano, accessed); err != nil {
			return count, fmt.Errorf("parse last_accessed for %s: %w", id, err)
		}

		store.memories[id] = entry
		if len(blob) > 0 {
			store.embeddings[id] = decodeVector(blob)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate archive rows: %w", err)
	}
	return count, nil
}

// Close releases the underlying database handle.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// encodeVector packs a float64 vector as little-endian bytes.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}
