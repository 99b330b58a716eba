// File: internal/puhemies/artifacts.go
// Brief: JSON artifact read/write helpers shared across the orchestrator.

package puhemies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
)

func writeJSON(ctx context.Context, store artifactstore.Store, key string, v any) error {
	data, err := marshalIndent(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := store.WriteBytes(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// readJSON returns (false, nil) when the key does not exist, rather than
// an error, so callers can treat optional artifacts uniformly.
func readJSON(ctx context.Context, store artifactstore.Store, key string, v any) (bool, error) {
	data, err := store.ReadBytes(ctx, key)
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
