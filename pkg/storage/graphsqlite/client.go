// Package graphsqlite provides the SQLite implementation of the relation
// store: entity nodes, relation edges, and the fact ledger in one embedded
// database file.
package graphsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/duomem/duomem-go/pkg/storage"
)

// Client is a SQLite relation store client.
type Client struct {
	db *sql.DB
}

// Config contains SQLite graph store configuration.
type Config struct {
	DBPath string
}

// NewClient creates a new SQLite relation store client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("NewGraphClient: db path is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("NewGraphClient: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewGraphClient: %w", err)
	}

	client := &Client{db: db}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_owner ON entities(owner_id)`,
		`CREATE TABLE IF NOT EXISTS relations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_name TEXT NOT NULL,
			label TEXT NOT NULL,
			target_id TEXT NOT NULL,
			target_name TEXT NOT NULL,
			fact_id INTEGER NOT NULL,
			confidence REAL NOT NULL,
			tombstone INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_owner ON relations(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_fact ON relations(fact_id)`,
		`CREATE TABLE IF NOT EXISTS fact_ledger (
			fact_id INTEGER PRIMARY KEY,
			owner_id TEXT NOT NULL,
			tombstone INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := c.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// UpsertEntity creates the entity if it does not exist, or refreshes it.
// Idempotent by entity ID.
func (c *Client) UpsertEntity(ctx context.Context, entity *storage.Entity) error {
	createdAt := entity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO entities (id, owner_id, name, type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type
	`

	if _, err := c.db.ExecContext(ctx, query,
		entity.ID, entity.OwnerID, entity.Name, entity.Type, createdAt); err != nil {
		return fmt.Errorf("UpsertEntity: %w", err)
	}

	return nil
}

// InsertRelation appends a relation edge.
func (c *Client) InsertRelation(ctx context.Context, relation *storage.Relation) error {
	id := relation.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := relation.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO relations
		(id, owner_id, source_id, source_name, label, target_id, target_name, fact_id, confidence, tombstone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	if _, err := c.db.ExecContext(ctx, query,
		id, relation.OwnerID, relation.SourceID, relation.SourceName, relation.Label,
		relation.TargetID, relation.TargetName, relation.FactID, relation.Confidence,
		createdAt); err != nil {
		return fmt.Errorf("InsertRelation: %w", err)
	}

	relation.ID = id
	return nil
}

// Neighbors traverses up to depth hops from the given entity, following
// edges in both directions, and returns every entity reached.
func (c *Client) Neighbors(ctx context.Context, entityID, ownerID string, depth int) ([]*storage.Neighbor, error) {
	if depth <= 0 {
		depth = 1
	}

	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	var neighbors []*storage.Neighbor

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []string

		for _, id := range frontier {
			edges, err := c.edgesTouching(ctx, id, ownerID)
			if err != nil {
				return nil, fmt.Errorf("Neighbors: %w", err)
			}

			for _, rel := range edges {
				otherID := rel.TargetID
				if otherID == id {
					otherID = rel.SourceID
				}
				if visited[otherID] {
					continue
				}
				visited[otherID] = true

				entity, err := c.getEntity(ctx, otherID, ownerID)
				if err == sql.ErrNoRows {
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("Neighbors: %w", err)
				}

				neighbors = append(neighbors, &storage.Neighbor{
					Entity:   entity,
					Relation: rel,
					Distance: hop,
				})
				next = append(next, otherID)
			}
		}

		frontier = next
	}

	return neighbors, nil
}

// edgesTouching returns live edges where the entity is source or target.
func (c *Client) edgesTouching(ctx context.Context, entityID, ownerID string) ([]*storage.Relation, error) {
	query := `
		SELECT id, owner_id, source_id, source_name, label, target_id, target_name, fact_id, confidence, created_at
		FROM relations
		WHERE (source_id = ? OR target_id = ?) AND owner_id = ? AND tombstone = 0
	`

	rows, err := c.db.QueryContext(ctx, query, entityID, entityID, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRelations(rows)
}

func (c *Client) getEntity(ctx context.Context, id, ownerID string) (*storage.Entity, error) {
	query := `SELECT id, owner_id, name, type, created_at FROM entities WHERE id = ? AND owner_id = ?`

	var e storage.Entity
	err := c.db.QueryRowContext(ctx, query, id, ownerID).
		Scan(&e.ID, &e.OwnerID, &e.Name, &e.Type, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

// RelationsForOwner lists live relations for an owner, newest first.
func (c *Client) RelationsForOwner(ctx context.Context, ownerID string, limit int) ([]*storage.Relation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, owner_id, source_id, source_name, label, target_id, target_name, fact_id, confidence, created_at
		FROM relations
		WHERE owner_id = ? AND tombstone = 0
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("RelationsForOwner: %w", err)
	}
	defer func() { _ = rows.Close() }()

	relations, err := scanRelations(rows)
	if err != nil {
		return nil, fmt.Errorf("RelationsForOwner: %w", err)
	}

	return relations, nil
}

// RecordFact writes the fact-ledger entry for a fact.
func (c *Client) RecordFact(ctx context.Context, record *storage.FactRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO fact_ledger (fact_id, owner_id, tombstone, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fact_id) DO UPDATE SET
			tombstone = excluded.tombstone
	`

	if _, err := c.db.ExecContext(ctx, query,
		record.FactID, record.OwnerID, record.Tombstone, createdAt); err != nil {
		return fmt.Errorf("RecordFact: %w", err)
	}

	return nil
}

// DeleteByFact tombstones the ledger entry and all relations derived from
// the given fact. Both writes happen in one transaction.
func (c *Client) DeleteByFact(ctx context.Context, factID int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteByFact: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE relations SET tombstone = 1 WHERE fact_id = ?`, factID); err != nil {
		return fmt.Errorf("DeleteByFact: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE fact_ledger SET tombstone = 1 WHERE fact_id = ?`, factID); err != nil {
		return fmt.Errorf("DeleteByFact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteByFact: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func scanRelations(rows *sql.Rows) ([]*storage.Relation, error) {
	var relations []*storage.Relation

	for rows.Next() {
		var r storage.Relation
		err := rows.Scan(&r.ID, &r.OwnerID, &r.SourceID, &r.SourceName, &r.Label,
			&r.TargetID, &r.TargetName, &r.FactID, &r.Confidence, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		relations = append(relations, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return relations, nil
}
