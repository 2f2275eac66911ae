package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/risk-sim/risk-sim/risk"
)

// SQLiteStore is a TreeStore backed by a SQLite database. Each tree is one
// row; nodes are serialized as JSON since the engine always reads whole
// snapshots. Version checks run inside the UPDATE's WHERE clause, which is
// what makes concurrent saves safe across processes.
type SQLiteStore struct {
	db       *sql.DB
	maxDepth int
}

// NewSQLiteStore opens or creates the database at dbPath. maxDepth is
// applied to snapshots restored from disk.
func NewSQLiteStore(dbPath string, maxDepth int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db, maxDepth: maxDepth}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS trees (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		root       TEXT NOT NULL,
		version    INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		nodes      TEXT NOT NULL
	)`)
	return err
}

// Load implements risk.TreeStore.
func (s *SQLiteStore) Load(ctx context.Context, id risk.TreeID) (*risk.RiskTree, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, root, version, created_at, updated_at, nodes FROM trees WHERE id = ?`, string(id))
	var (
		name, root, nodesJSON string
		version               int64
		createdAt, updatedAt  int64
	)
	if err := row.Scan(&name, &root, &version, &createdAt, &updatedAt, &nodesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", risk.ErrTreeNotFound, id)
		}
		return nil, fmt.Errorf("loading tree %q: %w", id, err)
	}
	var nodes []*risk.RiskNode
	if err := json.Unmarshal([]byte(nodesJSON), &nodes); err != nil {
		return nil, fmt.Errorf("decoding nodes of tree %q: %w", id, err)
	}
	return risk.RestoreTree(id, name, risk.NodeID(root), version, s.maxDepth,
		time.UnixMilli(createdAt).UTC(), time.UnixMilli(updatedAt).UTC(), nodes)
}

// Save implements risk.TreeStore with an optimistic version check: the
// UPDATE only matches when the stored version is exactly tree.Version-1.
func (s *SQLiteStore) Save(ctx context.Context, tree *risk.RiskTree) (int64, error) {
	nodesJSON, err := json.Marshal(tree.Nodes())
	if err != nil {
		return 0, fmt.Errorf("encoding nodes of tree %q: %w", tree.ID, err)
	}
	if tree.Version == 1 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO trees (id, name, root, version, created_at, updated_at, nodes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(tree.ID), tree.Name, string(tree.Root), tree.Version,
			tree.CreatedAt.UnixMilli(), tree.UpdatedAt.UnixMilli(), string(nodesJSON))
		if err != nil {
			return 0, fmt.Errorf("%w: inserting tree %q: %v", risk.ErrVersionConflict, tree.ID, err)
		}
		return tree.Version, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trees SET name = ?, root = ?, version = ?, updated_at = ?, nodes = ? WHERE id = ? AND version = ?`,
		tree.Name, string(tree.Root), tree.Version, tree.UpdatedAt.UnixMilli(), string(nodesJSON),
		string(tree.ID), tree.Version-1)
	if err != nil {
		return 0, fmt.Errorf("saving tree %q: %w", tree.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("saving tree %q: %w", tree.ID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: tree %q at version %d", risk.ErrVersionConflict, tree.ID, tree.Version)
	}
	return tree.Version, nil
}
