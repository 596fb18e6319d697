// Package neo4jstore provides the Neo4j implementation of the relation
// store. Entities are nodes labeled Entity, relations are RELATES edges
// carrying the label as a property, and the fact ledger lives on Fact nodes.
package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/duomem/duomem-go/pkg/storage"
)

// Client is a Neo4j relation store client.
type Client struct {
	driver neo4j.DriverWithContext
}

// Config contains Neo4j configuration.
type Config struct {
	URI      string
	Username string
	Password string
}

// NewClient creates a new Neo4j relation store client and verifies
// connectivity.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("NewNeo4jClient: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("NewNeo4jClient: %w", err)
	}

	return &Client{driver: driver}, nil
}

// UpsertEntity merges the entity node by ID. Idempotent.
func (c *Client) UpsertEntity(ctx context.Context, entity *storage.Entity) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()

	createdAt := entity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		MERGE (e:Entity {id: $id})
		ON CREATE SET e.owner_id = $owner_id, e.name = $name, e.type = $type, e.created_at = $created_at
		ON MATCH SET e.name = $name, e.type = $type
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"id":         entity.ID,
		"owner_id":   entity.OwnerID,
		"name":       entity.Name,
		"type":       entity.Type,
		"created_at": createdAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("UpsertEntity: %w", err)
	}

	return nil
}

// InsertRelation creates a RELATES edge between two existing entity nodes.
func (c *Client) InsertRelation(ctx context.Context, relation *storage.Relation) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()

	id := relation.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := relation.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		MATCH (s:Entity {id: $source_id}), (t:Entity {id: $target_id})
		CREATE (s)-[r:RELATES {
			id: $id,
			owner_id: $owner_id,
			label: $label,
			fact_id: $fact_id,
			confidence: $confidence,
			tombstone: false,
			created_at: $created_at
		}]->(t)
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"source_id":  relation.SourceID,
		"target_id":  relation.TargetID,
		"id":         id,
		"owner_id":   relation.OwnerID,
		"label":      relation.Label,
		"fact_id":    relation.FactID,
		"confidence": relation.Confidence,
		"created_at": createdAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("InsertRelation: %w", err)
	}

	relation.ID = id
	return nil
}

// Neighbors traverses up to depth hops in either direction from the given
// entity and returns the entities and edges found.
func (c *Client) Neighbors(ctx context.Context, entityID, ownerID string, depth int) ([]*storage.Neighbor, error) {
	if depth <= 0 {
		depth = 1
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	// Variable-length patterns cannot parameterize the bound, so the depth
	// is interpolated. It is an integer under our control, never user input.
	query := fmt.Sprintf(`
		MATCH path = (origin:Entity {id: $id, owner_id: $owner_id})-[rels:RELATES*1..%d]-(n:Entity)
		WHERE n.owner_id = $owner_id
		  AND ALL(r IN rels WHERE r.tombstone = false AND r.owner_id = $owner_id)
		WITH n, rels[-1] AS r, length(path) AS hops
		ORDER BY hops
		WITH n, collect({rel: r, hops: hops})[0] AS closest
		RETURN n.id, n.owner_id, n.name, n.type, n.created_at,
		       closest.rel.id, closest.rel.label, closest.rel.fact_id,
		       closest.rel.confidence, closest.rel.created_at,
		       startNode(closest.rel).id, startNode(closest.rel).name,
		       endNode(closest.rel).id, endNode(closest.rel).name,
		       closest.hops
	`, depth)

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":       entityID,
		"owner_id": ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("Neighbors: %w", err)
	}

	var neighbors []*storage.Neighbor
	for result.Next(ctx) {
		rec := result.Record()
		vals := rec.Values

		entity := &storage.Entity{
			ID:      asString(vals[0]),
			OwnerID: asString(vals[1]),
			Name:    asString(vals[2]),
			Type:    asString(vals[3]),
		}
		entity.CreatedAt = parseTime(asString(vals[4]))

		relation := &storage.Relation{
			ID:         asString(vals[5]),
			OwnerID:    ownerID,
			Label:      asString(vals[6]),
			FactID:     asInt64(vals[7]),
			Confidence: asFloat64(vals[8]),
			CreatedAt:  parseTime(asString(vals[9])),
			SourceID:   asString(vals[10]),
			SourceName: asString(vals[11]),
			TargetID:   asString(vals[12]),
			TargetName: asString(vals[13]),
		}

		neighbors = append(neighbors, &storage.Neighbor{
			Entity:   entity,
			Relation: relation,
			Distance: int(asInt64(vals[14])),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("Neighbors: %w", err)
	}

	return neighbors, nil
}

// RelationsForOwner lists live relations for an owner, newest first.
func (c *Client) RelationsForOwner(ctx context.Context, ownerID string, limit int) ([]*storage.Relation, error) {
	if limit <= 0 {
		limit = 100
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	query := `
		MATCH (s:Entity)-[r:RELATES {owner_id: $owner_id}]->(t:Entity)
		WHERE r.tombstone = false
		RETURN r.id, r.label, r.fact_id, r.confidence, r.created_at,
		       s.id, s.name, t.id, t.name
		ORDER BY r.created_at DESC
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"owner_id": ownerID,
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("RelationsForOwner: %w", err)
	}

	var relations []*storage.Relation
	for result.Next(ctx) {
		vals := result.Record().Values
		relations = append(relations, &storage.Relation{
			ID:         asString(vals[0]),
			OwnerID:    ownerID,
			Label:      asString(vals[1]),
			FactID:     asInt64(vals[2]),
			Confidence: asFloat64(vals[3]),
			CreatedAt:  parseTime(asString(vals[4])),
			SourceID:   asString(vals[5]),
			SourceName: asString(vals[6]),
			TargetID:   asString(vals[7]),
			TargetName: asString(vals[8]),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("RelationsForOwner: %w", err)
	}

	return relations, nil
}

// RecordFact merges the fact-ledger node for a fact.
func (c *Client) RecordFact(ctx context.Context, record *storage.FactRecord) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		MERGE (f:Fact {fact_id: $fact_id})
		ON CREATE SET f.owner_id = $owner_id, f.created_at = $created_at
		SET f.tombstone = $tombstone
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"fact_id":    record.FactID,
		"owner_id":   record.OwnerID,
		"tombstone":  record.Tombstone,
		"created_at": createdAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("RecordFact: %w", err)
	}

	return nil
}

// DeleteByFact tombstones the fact node and all edges derived from the fact.
func (c *Client) DeleteByFact(ctx context.Context, factID int64) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()

	query := `
		OPTIONAL MATCH ()-[r:RELATES {fact_id: $fact_id}]->()
		SET r.tombstone = true
		WITH count(r) AS edges
		OPTIONAL MATCH (f:Fact {fact_id: $fact_id})
		SET f.tombstone = true
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"fact_id": factID,
	})
	if err != nil {
		return fmt.Errorf("DeleteByFact: %w", err)
	}

	return nil
}

// Close closes the underlying driver.
func (c *Client) Close() error {
	return c.driver.Close(context.Background())
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}

func asFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
