// Package postgres provides the PostgreSQL + pgvector implementation of the
// similarity store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/duomem/duomem-go/pkg/storage"
)

// Client is a PostgreSQL + pgvector similarity store client.
type Client struct {
	db         *sql.DB
	tableName  string
	dimensions int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	TableName          string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient creates a new PostgreSQL similarity store client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	if cfg.TableName == "" {
		cfg.TableName = "facts"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:         db,
		tableName:  cfg.TableName,
		dimensions: cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the pgvector extension and the facts table.
func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			version INTEGER DEFAULT 1,
			graph_pending BOOLEAN DEFAULT FALSE
		)
	`, c.tableName, c.dimensions)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner_id)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}

	return nil
}

// Upsert inserts a fact, replacing any existing row with the same ID.
func (c *Client) Upsert(ctx context.Context, fact *storage.Fact) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, owner_id, content, embedding, metadata, created_at, updated_at, version, graph_pending)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version,
			graph_pending = EXCLUDED.graph_pending
	`, c.tableName)

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
		vectorToString(fact.Embedding),
		metadataJSON,
		createdAt,
		time.Now(),
		version,
		fact.GraphPending,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// Search performs vector search using pgvector's cosine distance operator.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Fact, error) {
	queryVectorStr := vectorToString(embedding)

	// WHERE clause parameters start at $2 since $1 is the query vector.
	whereClause, filterArgs := buildWhereClauseWithOffset(opts.OwnerID, 2)

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT
			id, owner_id, content, embedding, metadata,
			created_at, updated_at, version, graph_pending,
			1 - (embedding <=> $1) as similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, c.tableName, whereClause, len(filterArgs)+2)

	allArgs := []interface{}{queryVectorStr}
	allArgs = append(allArgs, filterArgs...)
	allArgs = append(allArgs, limit)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	facts, err := c.scanFacts(rows, true)
	if err != nil {
		return nil, err
	}

	if opts.MinScore > 0 {
		filtered := facts[:0]
		for _, f := range facts {
			if f.Score >= opts.MinScore {
				filtered = append(filtered, f)
			}
		}
		facts = filtered
	}

	return facts, nil
}

// Get retrieves a fact by ID with optional owner scoping.
func (c *Client) Get(ctx context.Context, id int64, opts *storage.GetOptions) (*storage.Fact, error) {
	if opts == nil {
		opts = &storage.GetOptions{}
	}

	whereClause := "WHERE id = $1"
	args := []interface{}{id}
	if opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll {
		whereClause += " AND owner_id = $2"
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
	whereClause, args := buildWhereClauseWithOffset(opts.OwnerID, 1)

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
		LIMIT $%d OFFSET $%d
	`, c.tableName, whereClause, len(args)+1, len(args)+2)

	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return c.scanFacts(rows, false)
}

// Delete deletes a fact by ID with optional owner scoping.
func (c *Client) Delete(ctx context.Context, id int64, opts *storage.DeleteOptions) error {
	if opts == nil {
		opts = &storage.DeleteOptions{}
	}

	whereClause := "WHERE id = $1"
	args := []interface{}{id}
	if opts.OwnerID != "" && opts.OwnerID != storage.OwnerAll {
		whereClause += " AND owner_id = $2"
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
	whereClause, args := buildWhereClauseWithOffset(opts.OwnerID, 1)

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

// scanFact scans a single fact row.
func (c *Client) scanFact(row *sql.Row) (*storage.Fact, error) {
	var fact storage.Fact
	var embeddingStr string
	var metadataStr []byte

	err := row.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingStr,
		&metadataStr, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version, &fact.GraphPending)
	if err != nil {
		return nil, err
	}

	fact.Embedding, err = parseVectorString(embeddingStr)
	if err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}

	if len(metadataStr) > 0 {
		if err := json.Unmarshal(metadataStr, &fact.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	return &fact, nil
}

// scanFacts scans fact rows, optionally including the similarity column.
func (c *Client) scanFacts(rows *sql.Rows, hasScore bool) ([]*storage.Fact, error) {
	var facts []*storage.Fact

	for rows.Next() {
		var fact storage.Fact
		var embeddingStr string
		var metadataStr []byte
		var similarity float64

		var err error
		if hasScore {
			err = rows.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingStr,
				&metadataStr, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version,
				&fact.GraphPending, &similarity)
			fact.Score = similarity
		} else {
			err = rows.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingStr,
				&metadataStr, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version,
				&fact.GraphPending)
		}
		if err != nil {
			return nil, err
		}

		fact.Embedding, err = parseVectorString(embeddingStr)
		if err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}

		if len(metadataStr) > 0 {
			if err := json.Unmarshal(metadataStr, &fact.Metadata); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
		}

		facts = append(facts, &fact)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return facts, nil
}
