// Package postgres provides a PostgreSQL implementation of the SoulNet store.
//
// Embeddings live in a pgvector column and similarity search runs in SQL via
// the <=> cosine-distance operator, so the scan never leaves the database.
// Requires the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Client implements storage.Store backed by PostgreSQL with pgvector.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a PostgreSQL store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// EmbeddingDims is the dimensionality of the pgvector column.
	// Defaults to 1536.
	EmbeddingDims int
}

// NewClient connects to PostgreSQL and ensures the schema (including the
// pgvector extension) exists.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dims := cfg.EmbeddingDims
	if dims == 0 {
		dims = 1536
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background(), dims); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context, dims int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memories (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 3,
			sentiment TEXT NOT NULL DEFAULT 'neutral',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			source JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_embeddings (
			id BIGINT PRIMARY KEY,
			memory_id BIGINT NOT NULL UNIQUE REFERENCES memories(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dims),
		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			achievement_type TEXT NOT NULL,
			unlocked_at TIMESTAMPTZ,
			progress INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, achievement_type)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			meta JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
		WHERE id = $1 AND user_id = $2
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
	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	if update.Type != nil {
		sets = append(sets, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, string(*update.Type))
	}
	if update.Content != nil {
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)+1))
		args = append(args, *update.Content)
	}
	if update.Importance != nil {
		sets = append(sets, fmt.Sprintf("importance = $%d", len(args)+1))
		args = append(args, *update.Importance)
	}
	if update.Source != nil {
		sourceJSON, err := marshalMeta(update.Source)
		if err != nil {
			return nil, fmt.Errorf("UpdateMemory: %w", err)
		}
		sets = append(sets, fmt.Sprintf("source = $%d", len(args)+1))
		args = append(args, sourceJSON)
	}

	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d AND user_id = $%d",
		strings.Join(sets, ", "), len(args)+1, len(args)+2)
	args = append(args, id, userID)

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
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1 AND user_id = $2`, id, userID)
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
	where := "WHERE user_id = $1"
	args := []interface{}{opts.UserID}

	if opts.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", len(args)+1)
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
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
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
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE user_id = $1`, userID).Scan(&count)
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
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, content, importance, sentiment, confidence, source, created_at, updated_at
		FROM memories
		WHERE user_id = $1 AND id IN (%s)
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
	now := time.Now().UTC()
	vector := pgvector.NewVector(toFloat32(embedding.Embedding))

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO memory_embeddings (id, memory_id, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (memory_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`, embedding.ID, embedding.MemoryID, vector, now, now)
	if err != nil {
		return fmt.Errorf("UpsertEmbedding: %w", err)
	}
	return nil
}

// SearchSimilar runs the similarity query in SQL. The <=> operator computes
// cosine distance, so score is 1 - distance and ordering by distance
// ascending yields most similar first.
func (c *Client) SearchSimilar(ctx context.Context, userID string, embedding []float64, threshold float64, limit int) ([]*storage.ScoredMemory, error) {
	vector := pgvector.NewVector(toFloat32(embedding))

	rows, err := c.db.QueryContext(ctx, `
		SELECT m.id, m.user_id, m.type, m.content, m.importance, m.sentiment, m.confidence, m.source,
		       m.created_at, m.updated_at,
		       1 - (e.embedding <=> $1) AS score
		FROM memories m
		INNER JOIN memory_embeddings e ON e.memory_id = m.id
		WHERE m.user_id = $2
			AND 1 - (e.embedding <=> $1) >= $3
		ORDER BY score DESC, m.created_at DESC
		LIMIT $4
	`, vector, userID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*storage.ScoredMemory
	for rows.Next() {
		memory, score, err := scanScoredMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("SearchSimilar: %w", err)
		}
		results = append(results, &storage.ScoredMemory{Memory: memory, Score: score})
	}
	return results, rows.Err()
}

// ListAchievements lists the achievements unlocked by userID.
func (c *Client) ListAchievements(ctx context.Context, userID string) ([]*storage.Achievement, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, achievement_type, unlocked_at, progress, created_at
		FROM achievements
		WHERE user_id = $1
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
		INSERT INTO achievements (id, user_id, achievement_type, unlocked_at, progress, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, achievement_type) DO NOTHING
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
		VALUES ($1, $2, $3, $4, $5, $6)
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
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListInteractions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var interactions []*storage.Interaction
	for rows.Next() {
		var in storage.Interaction
		var metaRaw []byte
		if err := rows.Scan(&in.ID, &in.UserID, &in.Role, &in.Content, &metaRaw, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListInteractions: %w", err)
		}
		meta, err := unmarshalMeta(metaRaw)
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
