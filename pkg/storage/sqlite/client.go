// Package sqlite provides a SQLite implementation of the SoulNet store.
//
// SQLite is file-based and suitable for local development and small
// deployments. Embedding vectors are stored as JSON strings in TEXT columns
// and similarity search is an in-memory cosine scan over the user's rows.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Client implements storage.Store backed by SQLite.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient opens (creating if necessary) the SQLite database at cfg.DBPath
// and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 3,
			sentiment TEXT NOT NULL DEFAULT 'neutral',
			confidence REAL NOT NULL DEFAULT 0.5,
			source TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_embeddings (
			id INTEGER PRIMARY KEY,
			memory_id INTEGER NOT NULL UNIQUE REFERENCES memories(id) ON DELETE CASCADE,
			embedding TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			achievement_type TEXT NOT NULL,
			unlocked_at DATETIME,
			progress INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, achievement_type)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			meta TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_created ON interactions(user_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// InsertMemory inserts a memory row.
func (c *Client) InsertMemory(ctx context.Context, memory *storage.Memory) error {
	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = memory.CreatedAt
	}

	sourceJSON, err := marshalMeta(memory.Source)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, user_id, type, content, importance, sentiment, confidence, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		memory.ID,
		memory.UserID,
		string(memory.Type),
		memory.Content,
		memory.Importance,
		memory.Sentiment,
		memory.Confidence,
		sourceJSON,
		memory.CreatedAt,
		memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory owned by userID.
func (c *Client) GetMemory(ctx context.Context, userID string, id int64) (*storage.Memory, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, content, importance, sentiment, confidence, source, created_at, updated_at
		FROM memories
		WHERE id = ? AND user_id = ?
	`, id, userID)

	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetMemory: %w", err)
	}
	return memory, nil
}

// UpdateMemory applies a partial update to a memory owned by userID.
func (c *Client) UpdateMemory(ctx context.Context, userID string, id int64, update *storage.MemoryUpdate) (*storage.Memory, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*update.Type))
	}
	if update.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *update.Content)
	}
	if update.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *update.Importance)
	}
	if update.Source != nil {
		sourceJSON, err := marshalMeta(update.Source)
		if err != nil {
			return nil, fmt.Errorf("UpdateMemory: %w", err)
		}
		sets = append(sets, "source = ?")
		args = append(args, sourceJSON)
	}

	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ? AND user_id = ?", strings.Join(sets, ", "))

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("UpdateMemory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("UpdateMemory: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	return c.GetMemory(ctx, userID, id)
}

// DeleteMemory deletes a memory owned by userID.
func (c *Client) DeleteMemory(ctx context.Context, userID string, id int64) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListMemories lists memories according to opts.
func (c *Client) ListMemories(ctx context.Context, opts *storage.ListMemoriesOptions) ([]*storage.Memory, error) {
	where := "WHERE user_id = ?"
	args := []interface{}{opts.UserID}

	if opts.Type != "" {
		where += " AND type = ?"
		args = append(args, string(opts.Type))
	}

	order := "ORDER BY created_at DESC, id DESC"
	if opts.Ascending {
		order = "ORDER BY created_at ASC, id ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, content, importance, sentiment, confidence, source, created_at, updated_at
		FROM memories
		%s
		%s
	`, where, order)

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMemories: %w", err)
		}
		memories = append(memories, memory)
	}
	return memories, rows.Err()
}

// CountMemories counts the memories owned by userID.
func (c *Client) CountMemories(ctx context.Context, userID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("CountMemories: %w", err)
	}
	return count, nil
}

// GetMemoriesByIDs retrieves the memories among ids owned by userID.
func (c *Client) GetMemoriesByIDs(ctx context.Context, userID string, ids []int64) ([]*storage.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{userID}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, content, importance, sentiment, confidence, source, created_at, updated_at
		FROM memories
		WHERE user_id = ? AND id IN (%s)
		ORDER BY created_at ASC, id ASC
	`, strings.Join(placeholders, ", "))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetMemoriesByIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("GetMemoriesByIDs: %w", err)
		}
		memories = append(memories, memory)
	}
	return memories, rows.Err()
}

// UpsertEmbedding inserts or replaces the embedding for a memory.
func (c *Client) UpsertEmbedding(ctx context.Context, embedding *storage.MemoryEmbedding) error {
	embeddingJSON, err := marshalVector(embedding.Embedding)
	if err != nil {
		return fmt.Errorf("UpsertEmbedding: %w", err)
	}

	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memory_embeddings (id, memory_id, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, embedding.ID, embedding.MemoryID, embeddingJSON, now, now)
	if err != nil {
		return fmt.Errorf("UpsertEmbedding: %w", err)
	}
	return nil
}

// SearchSimilar performs a brute-force cosine scan over the user's embedded
// memories. SQLite has no native vector operations, so similarity is
// calculated in memory after loading the user's rows.
func (c *Client) SearchSimilar(ctx context.Context, userID string, embedding []float64, threshold float64, limit int) ([]*storage.ScoredMemory, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.type, m.content, m.importance, m.sentiment, m.confidence, m.source,
		       m.created_at, m.updated_at, e.embedding
		FROM memories m
		INNER JOIN memory_embeddings e ON e.memory_id = m.id
		WHERE m.user_id = ?
		ORDER BY m.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.ScoredMemory
	for rows.Next() {
		memory, vector, err := scanMemoryWithVector(rows)
		if err != nil {
			return nil, fmt.Errorf("SearchSimilar: %w", err)
		}

		score := storage.CosineSimilarity(embedding, vector)
		if score >= threshold {
			results = append(results, &storage.ScoredMemory{Memory: memory, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return storage.SortScored(results, limit), nil
}

// ListAchievements lists the achievements unlocked by userID.
func (c *Client) ListAchievements(ctx context.Context, userID string) ([]*storage.Achievement, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, achievement_type, unlocked_at, progress, created_at
		FROM achievements
		WHERE user_id = ?
		ORDER BY unlocked_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAchievements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var achievements []*storage.Achievement
	for rows.Next() {
		var a storage.Achievement
		var unlockedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &unlockedAt, &a.Progress, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListAchievements: %w", err)
		}
		if unlockedAt.Valid {
			a.UnlockedAt = &unlockedAt.Time
		}
		achievements = append(achievements, &a)
	}
	return achievements, rows.Err()
}

// UnlockAchievement inserts an achievement row unless one already exists for
// (user_id, achievement_type). The unique constraint carries the idempotence;
// a conflicting insert simply reports false.
func (c *Client) UnlockAchievement(ctx context.Context, achievement *storage.Achievement) (bool, error) {
	if achievement.CreatedAt.IsZero() {
		achievement.CreatedAt = time.Now().UTC()
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT INTO achievements (id, user_id, achievement_type, unlocked_at, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, achievement_type) DO NOTHING
	`,
		achievement.ID,
		achievement.UserID,
		achievement.Type,
		achievement.UnlockedAt,
		achievement.Progress,
		achievement.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("UnlockAchievement: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UnlockAchievement: %w", err)
	}
	return affected > 0, nil
}

// InsertInteraction appends an interaction to the transcript.
func (c *Client) InsertInteraction(ctx context.Context, interaction *storage.Interaction) error {
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	metaJSON, err := marshalMeta(interaction.Meta)
	if err != nil {
		return fmt.Errorf("InsertInteraction: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, role, content, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		interaction.ID,
		interaction.UserID,
		interaction.Role,
		interaction.Content,
		metaJSON,
		interaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertInteraction: %w", err)
	}
	return nil
}

// ListInteractions returns the most recent interactions for userID.
func (c *Client) ListInteractions(ctx context.Context, userID string, limit int) ([]*storage.Interaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, meta, created_at
		FROM interactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListInteractions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interactions []*storage.Interaction
	for rows.Next() {
		var in storage.Interaction
		var metaStr sql.NullString
		if err := rows.Scan(&in.ID, &in.UserID, &in.Role, &in.Content, &metaStr, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListInteractions: %w", err)
		}
		meta, err := unmarshalMeta(metaStr.String)
		if err != nil {
			return nil, fmt.Errorf("ListInteractions: %w", err)
		}
		in.Meta = meta
		interactions = append(interactions, &in)
	}
	return interactions, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
