// Package mysql provides a MySQL implementation of the SoulNet store.
//
// MySQL has no native vector type, so embeddings are stored as JSON strings
// and similarity search falls back to an in-memory cosine scan over the
// user's rows, like the SQLite backend.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Client implements storage.Store backed by MySQL.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a MySQL store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient connects to MySQL and ensures the schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			type VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			importance INT NOT NULL DEFAULT 3,
			sentiment VARCHAR(16) NOT NULL DEFAULT 'neutral',
			confidence DOUBLE NOT NULL DEFAULT 0.5,
			source JSON,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_memories_user_created (user_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_embeddings (
			id BIGINT PRIMARY KEY,
			memory_id BIGINT NOT NULL UNIQUE,
			embedding LONGTEXT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			achievement_type VARCHAR(32) NOT NULL,
			unlocked_at DATETIME(6),
			progress INT NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			UNIQUE KEY uq_achievements_user_type (user_id, achievement_type)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			role VARCHAR(16) NOT NULL,
			content TEXT NOT NULL,
			meta JSON,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_interactions_user_created (user_id, created_at)
		)`,
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

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("UpdateMemory: %w", err)
	}

	// MySQL reports zero affected rows for no-op updates, so re-read to
	// distinguish "unchanged" from "missing".
	return c.GetMemory(ctx, userID, id)
}

// DeleteMemory deletes a memory owned by userID and its embedding.
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

	// No foreign keys between the tables, clean up the embedding manually.
	if _, err := c.db.ExecContext(ctx, `DELETE FROM memory_embeddings WHERE memory_id = ?`, id); err != nil {
		return fmt.Errorf("DeleteMemory: %w", err)
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
	embeddingJSON, err := json.Marshal(embedding.Embedding)
	if err != nil {
		return fmt.Errorf("UpsertEmbedding: %w", err)
	}

	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memory_embeddings (id, memory_id, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			embedding = VALUES(embedding),
			updated_at = VALUES(updated_at)
	`, embedding.ID, embedding.MemoryID, string(embeddingJSON), now, now)
	if err != nil {
		return fmt.Errorf("UpsertEmbedding: %w", err)
	}
	return nil
}

// SearchSimilar performs a brute-force cosine scan over the user's embedded
// memories.
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
// (user_id, achievement_type).
func (c *Client) UnlockAchievement(ctx context.Context, achievement *storage.Achievement) (bool, error) {
	if achievement.CreatedAt.IsZero() {
		achievement.CreatedAt = time.Now().UTC()
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT IGNORE INTO achievements (id, user_id, achievement_type, unlocked_at, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
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
