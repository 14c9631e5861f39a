// Package graph is the read-only view of the knowledge graph that questions
// are answered from.
package graph

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Row is one result record keyed by column name.
type Row map[string]any

// Schema is the graph vocabulary offered to the model.
type Schema struct {
	Labels            []string `json:"labels"`
	RelationshipTypes []string `json:"relationship_types"`
	PropertyKeys      []string `json:"property_keys"`
	Names             []string `json:"names,omitempty"`
}

// Querier is what the question-answering chain needs from a graph.
type Querier interface {
	Query(ctx context.Context, cypher string, params map[string]any, limit int) ([]Row, error)
	Schema(ctx context.Context) (Schema, error)
}

// String renders the schema for a prompt.
func (s Schema) String() string {
	var b strings.Builder
	b.WriteString("Node labels: ")
	b.WriteString(joinOrNone(s.Labels))
	b.WriteString("\nRelationship types: ")
	b.WriteString(joinOrNone(s.RelationshipTypes))
	b.WriteString("\nProperty keys: ")
	b.WriteString(joinOrNone(s.PropertyKeys))
	if len(s.Names) > 0 {
		b.WriteString("\nKnown entity names: ")
		b.WriteString(strings.Join(s.Names, ", "))
	}
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// ErrUnsafeQuery marks generated Cypher that would modify the graph.
var ErrUnsafeQuery = errors.New("unsafe cypher query")

// UnsafeQueryError reports the offending keyword.
type UnsafeQueryError struct {
	Keyword string
}

func (e *UnsafeQueryError) Error() string {
	if e.Keyword == "" {
		return "cypher query must contain MATCH and RETURN"
	}
	return "cypher query contains forbidden keyword: " + e.Keyword
}

func (e *UnsafeQueryError) Is(target error) bool {
	return target == ErrUnsafeQuery
}

var (
	writeKeyword = regexp.MustCompile(`(?i)\b(CREATE|DELETE|DETACH|SET|REMOVE|MERGE|DROP|CALL|LOAD\s+CSV|FOREACH)\b`)
	matchKeyword = regexp.MustCompile(`(?i)\bMATCH\b`)
	returnKeywrd = regexp.MustCompile(`(?i)\bRETURN\b`)
	stringLit    = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
)

// ValidateReadOnly rejects Cypher that writes, calls procedures or lacks
// MATCH ... RETURN. Keywords inside string literals are ignored.
func ValidateReadOnly(cypher string) error {
	stripped := stringLit.ReplaceAllString(cypher, "''")

	if m := writeKeyword.FindString(stripped); m != "" {
		return &UnsafeQueryError{Keyword: strings.ToUpper(strings.Join(strings.Fields(m), " "))}
	}
	if !matchKeyword.MatchString(stripped) || !returnKeywrd.MatchString(stripped) {
		return &UnsafeQueryError{}
	}
	return nil
}
