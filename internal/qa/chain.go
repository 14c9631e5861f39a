// Package qa translates natural-language questions into Cypher, runs them
// against the knowledge graph and phrases the answer.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/systemshift/graphchat/internal/graph"
	"github.com/systemshift/graphchat/internal/llm"
)

// NoQuery is the GeneratedQuery sentinel for answers that did not come from
// a graph query.
const NoQuery = "none"

// DontKnow is the answer used when the model returns nothing usable.
const DontKnow = "I don't know the answer."

// DefaultTopK caps the rows passed back to the model.
const DefaultTopK = 10

// Result is the chain output for one question.
type Result struct {
	GeneratedQuery string      `json:"generated_query"`
	Answer         string      `json:"answer"`
	Context        []graph.Row `json:"context,omitempty"`
}

// HasQuery reports whether the answer came from a generated query.
func (r *Result) HasQuery() bool {
	return r.GeneratedQuery != NoQuery
}

// Answerer is what sessions need from a chain.
type Answerer interface {
	Answer(ctx context.Context, question string) (*Result, error)
}

// Chain is the question-answering chain. It is safe for concurrent use.
type Chain struct {
	llm    llm.Client
	graph  graph.Querier
	topK   int
	logger *zap.Logger

	loads  singleflight.Group
	mu     sync.RWMutex
	schema *graph.Schema
}

// NewChain builds a chain. topK <= 0 selects DefaultTopK.
func NewChain(client llm.Client, g graph.Querier, topK int, logger *zap.Logger) *Chain {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{llm: client, graph: g, topK: topK, logger: logger.Named("qa")}
}

// Answer runs generate, execute and answer for one question. Model and graph
// errors are returned; an underivable query is not an error.
func (c *Chain) Answer(ctx context.Context, question string) (*Result, error) {
	schema := c.loadSchema(ctx)

	gen, err := c.complete(ctx, llm.Request{
		System: SystemPrompt,
		Prompt: generationPrompt(schema, question),
	})
	if err != nil {
		return nil, fmt.Errorf("generating cypher: %w", err)
	}

	cypher, isNone := ExtractCypher(gen.Text)
	if cypher == "" {
		if !isNone {
			// The model answered in prose, typically declining the request.
			return &Result{GeneratedQuery: NoQuery, Answer: orDontKnow(gen.Text)}, nil
		}
		return c.answerDirectly(ctx, question)
	}

	c.logger.Debug("generated cypher", zap.String("question", question), zap.String("cypher", cypher))

	rows, err := c.graph.Query(ctx, cypher, nil, c.topK)
	if err != nil {
		if !errors.Is(err, graph.ErrUnsafeQuery) {
			// The graph may have changed under the cached schema.
			c.RefreshSchema()
		}
		return nil, fmt.Errorf("running generated query: %w", err)
	}

	ans, err := c.complete(ctx, llm.Request{
		System: SystemPrompt,
		Prompt: answerPrompt(question, cypher, rows),
	})
	if err != nil {
		return nil, fmt.Errorf("composing answer: %w", err)
	}

	return &Result{
		GeneratedQuery: cypher,
		Answer:         orDontKnow(ans.Text),
		Context:        rows,
	}, nil
}

func (c *Chain) answerDirectly(ctx context.Context, question string) (*Result, error) {
	resp, err := c.complete(ctx, llm.Request{System: SystemPrompt, Prompt: question})
	if err != nil {
		return nil, fmt.Errorf("answering without query: %w", err)
	}
	return &Result{GeneratedQuery: NoQuery, Answer: orDontKnow(resp.Text)}, nil
}

// RefreshSchema drops the cached schema so the next question reloads it.
func (c *Chain) RefreshSchema() {
	c.mu.Lock()
	c.schema = nil
	c.mu.Unlock()
}

// complete calls the model, treating an empty reply as empty text.
func (c *Chain) complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := c.llm.Complete(ctx, req)
	if errors.Is(err, llm.ErrEmptyResponse) {
		return &llm.Response{}, nil
	}
	return resp, err
}

// loadSchema returns the cached schema, loading it on first use. Concurrent
// callers share one load. A failed load yields an empty schema and is
// retried on the next question.
func (c *Chain) loadSchema(ctx context.Context) graph.Schema {
	c.mu.RLock()
	cached := c.schema
	c.mu.RUnlock()
	if cached != nil {
		return *cached
	}

	v, err, _ := c.loads.Do("schema", func() (any, error) {
		s, err := c.graph.Schema(ctx)
		if err != nil {
			return graph.Schema{}, err
		}
		c.mu.Lock()
		c.schema = &s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		c.logger.Warn("loading graph schema", zap.Error(err))
		return graph.Schema{}
	}
	return v.(graph.Schema)
}

func orDontKnow(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return DontKnow
	}
	return text
}
