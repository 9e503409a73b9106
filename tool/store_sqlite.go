package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS tool_definitions (
	name TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

const (
	defaultSQLiteStoreDir = ".toolbridge"
	defaultSQLiteStoreDB  = "toolbridge.db"
)

// Store persists registered tool definitions across daemon restarts.
type Store interface {
	List(ctx context.Context) ([]ToolDefinition, error)
	Get(ctx context.Context, name string) (ToolDefinition, bool, error)
	Upsert(ctx context.Context, def ToolDefinition) error
	Delete(ctx context.Context, name string) error
	Close() error
}

// SQLiteStore persists tool definitions in SQLite. Definitions are stored
// as JSON payload blobs keyed by name, so the schema never changes when the
// definition shape grows a field.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default SQLite path for CLI/server storage.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteStoreDir, defaultSQLiteStoreDB), nil
}

// NewDefaultSQLiteStore creates a SQLite store at ~/.toolbridge/toolbridge.db.
func NewDefaultSQLiteStore() (*SQLiteStore, error) {
	path, err := DefaultSQLitePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("tool: create store directory: %w", err)
	}
	return NewSQLiteStore(path)
}

// NewSQLiteStore opens (or creates) a SQLite-backed definition store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("tool: sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List returns all stored definitions in name-sorted order.
func (s *SQLiteStore) List(ctx context.Context) ([]ToolDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("tool: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM tool_definitions
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite list definitions: %w", err)
	}
	defer rows.Close()

	var defs []ToolDefinition
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("tool: sqlite scan definition: %w", err)
		}
		def, err := decodeDefinition(payload)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tool: sqlite definition rows: %w", err)
	}
	return defs, nil
}

// Get returns a stored definition by name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (ToolDefinition, bool, error) {
	if err := ctx.Err(); err != nil {
		return ToolDefinition{}, false, err
	}
	if s == nil || s.db == nil {
		return ToolDefinition{}, false, errors.New("tool: sqlite store is nil")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT payload
FROM tool_definitions
WHERE name = ?`, name)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ToolDefinition{}, false, nil
		}
		return ToolDefinition{}, false, fmt.Errorf("tool: sqlite get definition: %w", err)
	}

	def, err := decodeDefinition(payload)
	if err != nil {
		return ToolDefinition{}, false, err
	}
	return def, true, nil
}

// Upsert inserts or updates a definition by name.
func (s *SQLiteStore) Upsert(ctx context.Context, def ToolDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("tool: sqlite store is nil")
	}
	if strings.TrimSpace(def.Name) == "" {
		return errors.New("tool: definition name is required")
	}

	payload, err := encodeDefinition(def)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO tool_definitions (name, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	payload = excluded.payload,
	updated_at = excluded.updated_at`,
		def.Name,
		payload,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("tool: sqlite upsert definition: %w", err)
	}
	return nil
}

// Delete removes a definition by name. Deleting a missing name is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("tool: sqlite store is nil")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tool_definitions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("tool: sqlite delete definition: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func encodeDefinition(def ToolDefinition) ([]byte, error) {
	payload := struct {
		ToolDefinition
		ParamOrder []string `json:"param_order,omitempty"`
	}{ToolDefinition: def, ParamOrder: def.ParamOrder}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite encode definition: %w", err)
	}
	return data, nil
}

func decodeDefinition(payload []byte) (ToolDefinition, error) {
	var decoded struct {
		ToolDefinition
		ParamOrder []string `json:"param_order,omitempty"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ToolDefinition{}, fmt.Errorf("tool: sqlite decode definition: %w", err)
	}
	def := decoded.ToolDefinition
	def.ParamOrder = decoded.ParamOrder
	return def, nil
}

var _ Store = (*SQLiteStore)(nil)
