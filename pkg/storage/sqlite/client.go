// Package sqlite provides the SQLite implementation of the similarity store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-node deployments. Vectors are stored as JSON strings in TEXT
// fields, and similarity search uses in-memory cosine similarity calculation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duomem/duomem-go/pkg/storage"
)

// Client implements storage.SimilarityStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing facts.
	tableName string
}

// Config contains configuration for creating a SQLite similarity store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use. Defaults to "facts".
	TableName string
}

// NewClient creates a new SQLite similarity store client.
//
// Parameters:
//   - cfg: Configuration containing database path and table name
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	if cfg.TableName == "" {
		cfg.TableName = "facts"
	}

	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:        db,
		tableName: cfg.TableName,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			owner_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER DEFAULT 1,
			graph_pending INTEGER DEFAULT 0
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner_id)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Upsert inserts a fact, replacing any existing row with the same ID.
func (c *Client) Upsert(ctx context.Context, fact *storage.Fact) error {
	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s
		(id, owner_id, content, embedding, metadata, created_at, updated_at, version, graph_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.tableName)

	embeddingJSON, err := json.Marshal(fact.Embedding)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	metadataJSON, err := json.Marshal(fact.Metadata)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	createdAt := fact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	version := fact.Version
	if version == 0 {
		version = 1
	}

	_, err = c.db.ExecContext(ctx, query,
		fact.ID,
		fact.OwnerID,
		fact.Content,
		string(embeddingJSON),
		string(metadataJSON),
		createdAt,
		time.Now(),
		version,
		boolToInt(fact.GraphPending),
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// Search performs vector similarity search using cosine similarity.
//
// SQLite does not have native vector operations, so similarity is calculated
// in memory after loading all matching records.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Fact, error) {
	whereClause, args := buildWhereClause(opts.OwnerID)

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, embedding, metadata,
		       created_at, updated_at, version, graph_pending
		FROM %s
		%s
		ORDER BY id
	`, c.tableName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []*storage.Fact
	for rows.Next() {
		fact, err := c.scanFact(rows)
		if err != nil {
			return nil, err
		}

		score := cosineSimilarity(embedding, fact.Embedding)
		fact.Score = score

		if score >= opts.MinScore && matchesFilters(fact.Metadata, opts.Filters) {
			facts = append(facts, fact)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sortByScore(facts, opts.Limit), nil
}

// Get retrieves a fact by ID with optional owner scoping.
func (c *Client) Get(ctx context.Context, id int64, opts *storage.GetOptions) (*storage.Fact, error) {
	if opts == nil {
		opts = &storage.GetOptions{}
	}

	whereClause := "WHERE id = ?"
	args := []interface{}{id}
	if opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll {
		whereClause += " AND owner_id = ?"
		args = append(args, opts.OwnerID)
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, embedding, metadata,
		       created_at, updated_at, version, graph_pending
		FROM %s
		%s
	`, c.tableName, whereClause)

	row := c.db.QueryRowContext(ctx, query, args...)

	fact, err := c.scanFact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("Get: not found or access denied")
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return fact, nil
}

// GetAll retrieves all facts with optional filtering and pagination.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Fact, error) {
	whereClause, args := buildWhereClause(opts.OwnerID)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, embedding, metadata,
		       created_at, updated_at, version, graph_pending
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, c.tableName, whereClause)

	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []*storage.Fact
	for rows.Next() {
		fact, err := c.scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}

	return facts, rows.Err()
}

// Delete deletes a fact by ID with optional owner scoping.
func (c *Client) Delete(ctx context.Context, id int64, opts *storage.DeleteOptions) error {
	if opts == nil {
		opts = &storage.DeleteOptions{}
	}

	whereClause := "WHERE id = ?"
	args := []interface{}{id}
	if opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll {
		whereClause += " AND owner_id = ?"
		args = append(args, opts.OwnerID)
	}

	query := fmt.Sprintf("DELETE FROM %s %s", c.tableName, whereClause)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Delete: not found or access denied")
	}

	return nil
}

// DeleteAll deletes all facts matching the given filters.
func (c *Client) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	whereClause, args := buildWhereClause(opts.OwnerID)

	query := fmt.Sprintf("DELETE FROM %s %s", c.tableName, whereClause)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
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

// scanFact scans a fact from a database row or rows.
func (c *Client) scanFact(scanner interface{}) (*storage.Fact, error) {
	var fact storage.Fact
	var embeddingStr string
	var metadataStr sql.NullString
	var graphPending int

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingStr,
			&metadataStr, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version, &graphPending)
	case *sql.Rows:
		err = s.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingStr,
			&metadataStr, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version, &graphPending)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(embeddingStr), &fact.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}

	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &fact.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	fact.GraphPending = graphPending != 0

	return &fact, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
