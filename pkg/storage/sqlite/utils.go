package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(scanner rowScanner) (*storage.Memory, error) {
	var memory storage.Memory
	var memType string
	var sourceStr sql.NullString

	err := scanner.Scan(
		&memory.ID,
		&memory.UserID,
		&memType,
		&memory.Content,
		&memory.Importance,
		&memory.Sentiment,
		&memory.Confidence,
		&sourceStr,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Type = storage.MemoryType(memType)
	source, err := unmarshalMeta(sourceStr.String)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	memory.Source = source

	return &memory, nil
}

func scanMemoryWithVector(rows *sql.Rows) (*storage.Memory, []float64, error) {
	var memory storage.Memory
	var memType string
	var sourceStr sql.NullString
	var embeddingStr string

	err := rows.Scan(
		&memory.ID,
		&memory.UserID,
		&memType,
		&memory.Content,
		&memory.Importance,
		&memory.Sentiment,
		&memory.Confidence,
		&sourceStr,
		&memory.CreatedAt,
		&memory.UpdatedAt,
		&embeddingStr,
	)
	if err != nil {
		return nil, nil, err
	}

	memory.Type = storage.MemoryType(memType)
	source, err := unmarshalMeta(sourceStr.String)
	if err != nil {
		return nil, nil, fmt.Errorf("parse source: %w", err)
	}
	memory.Source = source

	var vector []float64
	if err := json.Unmarshal([]byte(embeddingStr), &vector); err != nil {
		return nil, nil, fmt.Errorf("parse embedding: %w", err)
	}

	return &memory, vector, nil
}

func marshalVector(vector []float64) (string, error) {
	data, err := json.Marshal(vector)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshalMeta(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMeta(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}
