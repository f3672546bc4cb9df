//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/pkg/version"
)

const metadataTable = "salesdw_metadata"

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaVersion       = "version"
	MetaInitializedAt = "initialized_at"
	MetaLastBatchID   = "last_batch_id"
	MetaLastBatchAt   = "last_batch_at"
)

const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS salesdw_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// SaveInitMetadata records the schema version after initialization.
func SaveInitMetadata(ctx context.Context, db DB) error {
	return SaveMetadata(ctx, db, map[string]string{
		MetaSchemaVersion: SchemaVersion,
		MetaVersion:       version.Short(),
		MetaInitializedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// SaveMetadata upserts metadata values.
func SaveMetadata(ctx context.Context, db DB, values map[string]string) error {
	if _, err := db.Exec(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	for key, value := range values {
		_, err := db.Exec(ctx, `
            INSERT INTO salesdw_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().Int("keys", len(values)).Msg("Saved metadata")
	return nil
}

// GetMetadataValue retrieves a single metadata value. A missing key
// returns an empty string.
func GetMetadataValue(ctx context.Context, db DB, key string) (string, error) {
	var value string
	err := db.QueryRow(ctx, `
        SELECT value FROM salesdw_metadata WHERE key = $1
    `, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, db DB) (map[string]string, error) {
	rows, err := db.Query(ctx, `SELECT key, value FROM salesdw_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", metadataTable))
	return err
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, db DB) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_name = $1
        )
    `, metadataTable).Scan(&exists)
	return exists, err
}
