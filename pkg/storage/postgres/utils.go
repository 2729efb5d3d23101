package postgres

import (
	"encoding/json"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(scanner rowScanner) (*storage.Memory, error) {
	var memory storage.Memory
	var memType string
	var sourceRaw []byte

	err := scanner.Scan(
		&memory.ID,
		&memory.UserID,
		&memType,
		&memory.Content,
		&memory.Importance,
		&memory.Sentiment,
		&memory.Confidence,
		&sourceRaw,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Type = storage.MemoryType(memType)
	source, err := unmarshalMeta(sourceRaw)
	if err != nil {
		return nil, err
	}
	memory.Source = source

	return &memory, nil
}

func scanScoredMemory(scanner rowScanner) (*storage.Memory, float64, error) {
	var memory storage.Memory
	var memType string
	var sourceRaw []byte
	var score float64

	err := scanner.Scan(
		&memory.ID,
		&memory.UserID,
		&memType,
		&memory.Content,
		&memory.Importance,
		&memory.Sentiment,
		&memory.Confidence,
		&sourceRaw,
		&memory.CreatedAt,
		&memory.UpdatedAt,
		&score,
	)
	if err != nil {
		return nil, 0, err
	}

	memory.Type = storage.MemoryType(memType)
	source, err := unmarshalMeta(sourceRaw)
	if err != nil {
		return nil, 0, err
	}
	memory.Source = source

	return &memory, score, nil
}

func marshalMeta(meta map[string]interface{}) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func unmarshalMeta(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func toFloat32(vector []float64) []float32 {
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out
}
