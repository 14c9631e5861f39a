package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds Neo4j connection configuration
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Connect creates a driver and verifies connectivity. On a connectivity
// failure the driver is closed and the error returned.
func Connect(ctx context.Context, cfg Config) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	return driver, nil
}

// Neo4j runs read-only queries against the knowledge graph.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
}

// New wraps an existing driver. The driver stays owned by the caller.
func New(driver neo4j.DriverWithContext, database string) *Neo4j {
	return &Neo4j{driver: driver, database: database}
}

// Query validates cypher as read-only, runs it in a read transaction and
// returns at most limit rows. limit <= 0 means no cap.
func (g *Neo4j) Query(ctx context.Context, cypher string, params map[string]any, limit int) ([]Row, error) {
	if err := ValidateReadOnly(cypher); err != nil {
		return nil, err
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: g.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}

		rows := []Row{}
		for result.Next(ctx) {
			if limit > 0 && len(rows) >= limit {
				break
			}
			record := result.Record()
			row := make(Row, len(record.Keys))
			for i, key := range record.Keys {
				row[key] = plain(record.Values[i])
			}
			rows = append(rows, row)
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("executing cypher: %w", err)
	}
	return result.([]Row), nil
}

// Schema reads labels, relationship types, property keys and a sample of
// entity names used to steer query generation toward known vocabulary.
func (g *Neo4j) Schema(ctx context.Context) (Schema, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: g.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var s Schema
		var err error
		if s.Labels, err = collectStrings(ctx, tx, `CALL db.labels() YIELD label RETURN label AS v`); err != nil {
			return nil, err
		}
		if s.RelationshipTypes, err = collectStrings(ctx, tx, `CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType AS v`); err != nil {
			return nil, err
		}
		if s.PropertyKeys, err = collectStrings(ctx, tx, `CALL db.propertyKeys() YIELD propertyKey RETURN propertyKey AS v`); err != nil {
			return nil, err
		}
		if s.Names, err = collectStrings(ctx, tx, `
			MATCH (n) WHERE n.name IS NOT NULL AND NOT n:User AND NOT n:Query
			RETURN DISTINCT toString(n.name) AS v
			LIMIT 200
		`); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return Schema{}, fmt.Errorf("reading schema: %w", err)
	}
	return result.(Schema), nil
}

func collectStrings(ctx context.Context, tx neo4j.ManagedTransaction, cypher string) ([]string, error) {
	result, err := tx.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for result.Next(ctx) {
		v, isNil, err := neo4j.GetRecordValue[string](result.Record(), "v")
		if err != nil {
			return nil, err
		}
		if !isNil {
			out = append(out, v)
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// plain converts driver graph types into maps so rows marshal cleanly.
func plain(v any) any {
	switch t := v.(type) {
	case neo4j.Node:
		m := map[string]any{"_labels": t.Labels}
		for k, pv := range t.Props {
			m[k] = plain(pv)
		}
		return m
	case neo4j.Relationship:
		m := map[string]any{"_type": t.Type}
		for k, pv := range t.Props {
			m[k] = plain(pv)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	default:
		return v
	}
}
