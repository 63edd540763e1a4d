// Package graph is the User Learning Graph (spec §3): idempotent upserts
// of STUDIED/COMPLETED/WEAK_AT/PREREQUISITE relationships over User,
// Module, Topic nodes. Grounded on quanticsoul4772-unified-thinking's
// internal/knowledge/neo4j_client.go (Neo4jClient, env-var config with
// defaults, ExecuteWrite/ExecuteRead session wrapper).
package graph

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"maritime-tutor/internal/apperr"
)

const stage = "graph"

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// DefaultConfig reads NEO4J_* environment variables with sane defaults,
// matching the teacher-pack convention in neo4j_client.go.
func DefaultConfig() Config {
	cfg := Config{
		URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Username: getEnv("NEO4J_USERNAME", "neo4j"),
		Password: getEnv("NEO4J_PASSWORD", "password"),
		Database: getEnv("NEO4J_DATABASE", "neo4j"),
		Timeout:  5 * time.Second,
	}
	if ms := os.Getenv("NEO4J_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Client wraps the Neo4j driver.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewClient creates and verifies a Neo4j client with connection pooling.
func NewClient(cfg Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = 50
			c.ConnectionAcquisitionTimeout = cfg.Timeout
			c.SocketConnectTimeout = cfg.Timeout
		},
	)
	if err != nil {
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("create driver: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperr.New(apperr.KindTransient, stage, fmt.Errorf("verify connectivity: %w", err))
	}
	return &Client{driver: driver, database: cfg.Database, timeout: cfg.Timeout}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Client) write(ctx context.Context, query string, params map[string]any) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, params)
	})
	if err != nil {
		return apperr.New(apperr.KindTransient, stage, fmt.Errorf("write: %w", err))
	}
	return nil
}

// UpsertStudied idempotently merges a STUDIED relationship with progress.
func (c *Client) UpsertStudied(ctx context.Context, userID, moduleID string, progress float64) error {
	const q = `
		MERGE (u:User {id: $userID})
		MERGE (m:Module {id: $moduleID})
		MERGE (u)-[r:STUDIED]->(m)
		SET r.progress = $progress, r.last_studied = datetime()
	`
	return c.write(ctx, q, map[string]any{"userID": userID, "moduleID": moduleID, "progress": progress})
}

// UpsertCompleted idempotently merges a COMPLETED relationship.
func (c *Client) UpsertCompleted(ctx context.Context, userID, moduleID string) error {
	const q = `
		MERGE (u:User {id: $userID})
		MERGE (m:Module {id: $moduleID})
		MERGE (u)-[r:COMPLETED]->(m)
		SET r.completed_at = datetime()
	`
	return c.write(ctx, q, map[string]any{"userID": userID, "moduleID": moduleID})
}

// UpsertWeakAt idempotently merges a WEAK_AT relationship with confidence.
func (c *Client) UpsertWeakAt(ctx context.Context, userID, topicID string, confidence float64) error {
	const q = `
		MERGE (u:User {id: $userID})
		MERGE (t:Topic {id: $topicID})
		MERGE (u)-[r:WEAK_AT]->(t)
		SET r.confidence = $confidence
	`
	return c.write(ctx, q, map[string]any{"userID": userID, "topicID": topicID, "confidence": confidence})
}

// UpsertPrerequisite idempotently merges a module-to-module PREREQUISITE edge.
func (c *Client) UpsertPrerequisite(ctx context.Context, moduleID, prerequisiteID string) error {
	const q = `
		MERGE (m:Module {id: $moduleID})
		MERGE (p:Module {id: $prerequisiteID})
		MERGE (p)-[:PREREQUISITE]->(m)
	`
	return c.write(ctx, q, map[string]any{"moduleID": moduleID, "prerequisiteID": prerequisiteID})
}

// StudySnippet summarizes a user's learning state for chat context
// assembly (§4.9's "learning-graph snippet").
type StudySnippet struct {
	TopModulesStudied []string
	TopKnowledgeGaps  []string
}

// Snippet fetches the top modules studied and top knowledge gaps for a
// user, used by the chat orchestrator's context builder (§4.9).
func (c *Client) Snippet(ctx context.Context, userID string, limit int) (StudySnippet, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		modules, err := queryStrings(ctx, tx, `
			MATCH (:User {id: $userID})-[r:STUDIED]->(m:Module)
			RETURN m.id AS id ORDER BY r.progress DESC LIMIT $limit
		`, userID, limit)
		if err != nil {
			return nil, err
		}
		gaps, err := queryStrings(ctx, tx, `
			MATCH (:User {id: $userID})-[r:WEAK_AT]->(t:Topic)
			RETURN t.id AS id ORDER BY r.confidence ASC LIMIT $limit
		`, userID, limit)
		if err != nil {
			return nil, err
		}
		return StudySnippet{TopModulesStudied: modules, TopKnowledgeGaps: gaps}, nil
	})
	if err != nil {
		return StudySnippet{}, apperr.New(apperr.KindTransient, stage, fmt.Errorf("snippet: %w", err))
	}
	return result.(StudySnippet), nil
}

func queryStrings(ctx context.Context, tx neo4j.ManagedTransaction, query, userID string, limit int) ([]string, error) {
	res, err := tx.Run(ctx, query, map[string]any{"userID": userID, "limit": limit})
	if err != nil {
		return nil, err
	}
	var out []string
	for res.Next(ctx) {
		if id, ok := res.Record().Get("id"); ok {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out, res.Err()
}
