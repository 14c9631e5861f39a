package history

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements Store as (:User)-[:ASKED|FEEDBACK]->(:Query) in Neo4j.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j builds a store on an existing driver. The driver is owned by the
// caller; Close does not close it.
func NewNeo4j(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database}
}

// EnsureConstraints creates the uniqueness constraints MERGE relies on to stay
// duplicate-free under concurrent writers.
func (s *Neo4jStore) EnsureConstraints(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	constraints := []string{
		`CREATE CONSTRAINT history_user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT history_query_text IF NOT EXISTS FOR (q:Query) REQUIRE q.text IS UNIQUE`,
	}
	for _, c := range constraints {
		if _, err := session.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("creating constraint: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the driver belongs to the caller.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return nil
}

// RecordAsk merges the ASKED relationship and increments its count.
func (s *Neo4jStore) RecordAsk(ctx context.Context, userID, queryText string) error {
	if err := checkArgs(userID, queryText); err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// The _lock write takes the relationship write lock before count is
		// read, so two concurrent increments cannot read the same value.
		query := `
			MERGE (u:User {id: $user_id})
			MERGE (q:Query {text: $query_text})
			MERGE (u)-[r:ASKED]->(q)
			ON CREATE SET r.count = 0, r.first_asked = datetime()
			SET r._lock = true
			WITH r
			SET r.count = r.count + 1, r.last_asked = datetime()
			REMOVE r._lock
		`
		params := map[string]any{
			"user_id":    userID,
			"query_text": queryText,
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("recording ask: %w", err)
	}
	return nil
}

// TopQueries returns the user's most asked queries.
func (s *Neo4jStore) TopQueries(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $user_id})-[r:ASKED]->(q:Query)
			RETURN q.text AS query
			ORDER BY r.count DESC, r.last_asked DESC, q.text ASC
			LIMIT $limit
		`
		result, err := tx.Run(ctx, query, map[string]any{
			"user_id": userID,
			"limit":   int64(limit),
		})
		if err != nil {
			return nil, err
		}

		top := []string{}
		for result.Next(ctx) {
			text, _, err := neo4j.GetRecordValue[string](result.Record(), "query")
			if err != nil {
				return nil, err
			}
			top = append(top, text)
		}
		return top, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying top queries: %w", err)
	}
	return result.([]string), nil
}

// RecordFeedback merges the FEEDBACK relationship and overwrites its rating.
func (s *Neo4jStore) RecordFeedback(ctx context.Context, userID, queryText, rating string) error {
	if err := checkArgs(userID, queryText); err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (u:User {id: $user_id})
			MERGE (q:Query {text: $query_text})
			MERGE (u)-[r:FEEDBACK]->(q)
			SET r.rating = $rating, r.updated = datetime()
		`
		params := map[string]any{
			"user_id":    userID,
			"query_text": queryText,
			"rating":     rating,
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}
	return nil
}

// History lists every asked query for the user.
func (s *Neo4jStore) History(ctx context.Context, userID string) ([]Entry, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (u:User {id: $user_id})-[r:ASKED]->(q:Query)
			OPTIONAL MATCH (u)-[f:FEEDBACK]->(q)
			RETURN q.text AS query, r.count AS count, r.last_asked AS last_asked,
			       coalesce(f.rating, '') AS rating
			ORDER BY r.count DESC, r.last_asked DESC, q.text ASC
		`
		result, err := tx.Run(ctx, query, map[string]any{"user_id": userID})
		if err != nil {
			return nil, err
		}

		entries := []Entry{}
		for result.Next(ctx) {
			record := result.Record()
			var e Entry
			if e.Query, _, err = neo4j.GetRecordValue[string](record, "query"); err != nil {
				return nil, err
			}
			if e.Count, _, err = neo4j.GetRecordValue[int64](record, "count"); err != nil {
				return nil, err
			}
			if e.Rating, _, err = neo4j.GetRecordValue[string](record, "rating"); err != nil {
				return nil, err
			}
			if lastAsked, ok := record.AsMap()["last_asked"].(time.Time); ok {
				e.LastAsked = lastAsked.UTC()
			}
			entries = append(entries, e)
		}
		return entries, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return result.([]Entry), nil
}
