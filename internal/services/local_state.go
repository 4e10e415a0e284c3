package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liamwears/reeldeck/internal/database"
)

// ErrMalformedLocalState is returned when a persisted record cannot be decoded
var ErrMalformedLocalState = errors.New("malformed local state")

// loadJSON decodes key into dst. A missing key leaves dst untouched and returns nil.
func loadJSON(ctx context.Context, kv database.KV, key string, dst any) error {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, database.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	return decodeJSON(key, data, dst)
}

func decodeJSON(key string, data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedLocalState, key, err)
	}
	return nil
}

func saveJSON(ctx context.Context, kv database.KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
