// Package mysql provides a MySQL-backed similarity store. Embeddings are
// stored as JSON arrays and ranked in memory, so it works against stock
// MySQL without vector extensions.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/duomem/duomem-go/pkg/storage"
)

// Client is a MySQL similarity store client.
type Client struct {
	db        *sql.DB
	tableName string
}

// Config contains MySQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
}

// NewClient creates a new MySQL similarity store client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.TableName == "" {
		cfg.TableName = "facts"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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

// initTables initializes the facts table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			content LONGTEXT NOT NULL,
			embedding LONGTEXT NOT NULL,
			metadata JSON,
			created_at DATETIME,
			updated_at DATETIME,
			version INT DEFAULT 1,
			graph_pending TINYINT(1) DEFAULT 0,
			INDEX idx_owner (owner_id)
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Upsert inserts a fact, replacing any existing row with the same ID.
func (c *Client) Upsert(ctx context.Context, fact *storage.Fact) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, owner_id, content, embedding, metadata, created_at, updated_at, version, graph_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			content = VALUES(content),
			embedding = VALUES(embedding),
			metadata = VALUES(metadata),
			updated_at = VALUES(updated_at),
			version = VALUES(version),
			graph_pending = VALUES(graph_pending)
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
		embeddingJSON,
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

// Search loads candidate rows for the owner and ranks them by cosine
// similarity in memory.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Fact, error) {
	whereClause, args := buildWhereClause(opts.OwnerID)

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, embedding, metadata,
		       created_at, updated_at, version, graph_pending
		FROM %s
		%s
	`, c.tableName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	facts, err := c.scanFacts(rows)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	var scored []*storage.Fact
	for _, f := range facts {
		if !matchesFilters(f.Metadata, opts.Filters) {
			continue
		}
		f.Score = cosineSimilarity(embedding, f.Embedding)
		if opts.MinScore > 0 && f.Score < opts.MinScore {
			continue
		}
		scored = append(scored, f)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	return sortByScore(scored, limit), nil
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

	facts, err := c.scanFacts(rows)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}

	return facts, nil
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

func (c *Client) scanFact(row *sql.Row) (*storage.Fact, error) {
	var fact storage.Fact
	var embeddingJSON, metadataJSON []byte

	err := row.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingJSON,
		&metadataJSON, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version, &fact.GraphPending)
	if err != nil {
		return nil, err
	}

	if err := unmarshalFields(&fact, embeddingJSON, metadataJSON); err != nil {
		return nil, err
	}

	return &fact, nil
}

func (c *Client) scanFacts(rows *sql.Rows) ([]*storage.Fact, error) {
	var facts []*storage.Fact

	for rows.Next() {
		var fact storage.Fact
		var embeddingJSON, metadataJSON []byte

		err := rows.Scan(&fact.ID, &fact.OwnerID, &fact.Content, &embeddingJSON,
			&metadataJSON, &fact.CreatedAt, &fact.UpdatedAt, &fact.Version, &fact.GraphPending)
		if err != nil {
			return nil, err
		}

		if err := unmarshalFields(&fact, embeddingJSON, metadataJSON); err != nil {
			return nil, err
		}

		facts = append(facts, &fact)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return facts, nil
}

func unmarshalFields(fact *storage.Fact, embeddingJSON, metadataJSON []byte) error {
	if len(embeddingJSON) > 0 {
		if err := json.Unmarshal(embeddingJSON, &fact.Embedding); err != nil {
			return fmt.Errorf("parse embedding: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &fact.Metadata); err != nil {
			return fmt.Errorf("parse metadata: %w", err)
		}
	}
	return nil
}
