// File: internal/recipestore/recipestore.go
// Brief: Content-addressed manual-recipe index keyed by structural hash.

// Package recipestore implements the recipe-recall mechanism: a
// structural-hash-keyed lookup from a previously confirmed manual recipe,
// backed by an authoritative JSON artifact (recipe_store/recipe_index.json
// plus one recipe_store/<hash>/manual_recipe.json per entry) and a SQLite
// cache for fast lookups. The SQLite table is a derived, rebuildable index;
// the JSON artifact is always the source of truth, matching the artifact
// store's own single-writer-per-key discipline.
package recipestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
)

const (
	indexKey = "recipe_store/recipe_index.json"

	createIndexTableStmt = `
CREATE TABLE IF NOT EXISTS recipe_index (
    structural_hash TEXT PRIMARY KEY,
    recipe_key      TEXT NOT NULL,
    stored_at       TEXT NOT NULL
);`
)

// entry is one row of the authoritative JSON index.
type entry struct {
	RecipeKey string `json:"recipe_key"`
	StoredAt  string `json:"stored_at"`
}

// Index is the recipe recall index: an artifact-store-backed JSON map plus
// a local SQLite cache over it.
type Index struct {
	store artifactstore.Store
	db    *sql.DB
}

// Open builds an Index over store, creating (or reusing) a SQLite database
// file at dbPath for the lookup cache. The cache is rebuilt from the
// authoritative JSON artifact if the database is freshly created or empty.
func Open(ctx context.Context, store artifactstore.Store, dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open recipe index db %q: %w", dbPath, err)
	}
	if _, err := db.ExecContext(ctx, createIndexTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("create recipe_index table: %w", err)
	}
	idx := &Index{store: store, db: db}
	if err := idx.rebuildIfEmpty(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying SQLite handle.
func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) rebuildIfEmpty(ctx context.Context) error {
	var count int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipe_index`).Scan(&count); err != nil {
		return fmt.Errorf("count recipe_index rows: %w", err)
	}
	if count > 0 {
		return nil
	}
	return i.Rebuild(ctx)
}

// Rebuild repopulates the SQLite cache from the authoritative JSON index
// artifact, discarding any existing cache rows first. This is the recovery
// path when the cache file is lost, corrupted, or out of sync.
func (i *Index) Rebuild(ctx context.Context) error {
	entries, err := i.readJSONIndex(ctx)
	if err != nil {
		return err
	}
	if _, err := i.db.ExecContext(ctx, `DELETE FROM recipe_index`); err != nil {
		return fmt.Errorf("clear recipe_index cache: %w", err)
	}
	stmt, err := i.db.PrepareContext(ctx, `INSERT INTO recipe_index(structural_hash, recipe_key, stored_at) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare recipe_index insert: %w", err)
	}
	defer stmt.Close()
	for hash, e := range entries {
		if _, err := stmt.ExecContext(ctx, hash, e.RecipeKey, e.StoredAt); err != nil {
			return fmt.Errorf("rebuild recipe_index row %q: %w", hash, err)
		}
	}
	return nil
}

func (i *Index) readJSONIndex(ctx context.Context) (map[string]entry, error) {
	data, err := i.store.ReadBytes(ctx, indexKey)
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return map[string]entry{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", indexKey, err)
	}
	var entries map[string]entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", indexKey, err)
	}
	if entries == nil {
		entries = map[string]entry{}
	}
	return entries, nil
}

func recipeKeyFor(structuralHash string) string {
	return "recipe_store/" + structuralHash + "/manual_recipe.json"
}

// Store persists recipe under structuralHash, becoming the entry future
// runs with the same fingerprint recall. recipe is marshaled as JSON; last
// writer wins per hash, matching the artifact store's single-writer
// assumption.
func (i *Index) Store(ctx context.Context, structuralHash string, recipe any) error {
	data, err := json.MarshalIndent(recipe, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recipe for %s: %w", structuralHash, err)
	}
	recipeKey := recipeKeyFor(structuralHash)
	if err := i.store.WriteBytes(ctx, recipeKey, data); err != nil {
		return fmt.Errorf("write %s: %w", recipeKey, err)
	}

	entries, err := i.readJSONIndex(ctx)
	if err != nil {
		return err
	}
	storedAt := time.Now().UTC().Format(time.RFC3339Nano)
	entries[structuralHash] = entry{RecipeKey: recipeKey, StoredAt: storedAt}
	indexBytes, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", indexKey, err)
	}
	if err := i.store.WriteBytes(ctx, indexKey, indexBytes); err != nil {
		return fmt.Errorf("write %s: %w", indexKey, err)
	}

	if _, err := i.db.ExecContext(ctx,
		`INSERT INTO recipe_index(structural_hash, recipe_key, stored_at) VALUES(?, ?, ?)
		 ON CONFLICT(structural_hash) DO UPDATE SET recipe_key=excluded.recipe_key, stored_at=excluded.stored_at`,
		structuralHash, recipeKey, storedAt); err != nil {
		return fmt.Errorf("upsert recipe_index cache row %q: %w", structuralHash, err)
	}
	return nil
}

// Lookup returns the recalled recipe's raw JSON for structuralHash, if one
// was previously stored. ok is false when no entry exists for the hash.
func (i *Index) Lookup(ctx context.Context, structuralHash string) (json.RawMessage, bool, error) {
	var recipeKey string
	err := i.db.QueryRowContext(ctx, `SELECT recipe_key FROM recipe_index WHERE structural_hash = ?`, structuralHash).Scan(&recipeKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Cache miss: fall back to the authoritative JSON index once, in
		// case the SQLite cache has drifted out from under a concurrent
		// writer, then give up.
		entries, readErr := i.readJSONIndex(ctx)
		if readErr != nil {
			return nil, false, readErr
		}
		e, ok := entries[structuralHash]
		if !ok {
			return nil, false, nil
		}
		recipeKey = e.RecipeKey
	case err != nil:
		return nil, false, fmt.Errorf("query recipe_index cache: %w", err)
	}

	data, err := i.store.ReadBytes(ctx, recipeKey)
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", recipeKey, err)
	}
	return json.RawMessage(data), true, nil
}
