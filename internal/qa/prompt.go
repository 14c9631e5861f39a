package qa

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/systemshift/graphchat/internal/graph"
)

// SystemPrompt steers every model call the chain makes.
const SystemPrompt = `You are an assistant that answers questions using a Neo4j knowledge graph.
You are a precise Cypher query generator: for every question you derive a correct read-only Cypher query
and use its results to answer.

Rules:
- Read the question carefully and pick out its keywords.
- Users may misspell words. Match each keyword to the most similar label, relationship type,
  property key or entity name from the graph schema and use the schema spelling.
- Only answer questions about the contents of the knowledge graph. If anything else is asked,
  say that it is beyond your ability.
- Never write to the graph.`

// generationPrompt asks for a single Cypher statement or NONE.
func generationPrompt(schema graph.Schema, question string) string {
	return fmt.Sprintf(`Graph schema:
%s

Write one read-only Cypher query that answers the question below.
Use only the labels, relationship types and properties listed in the schema.
Reply with the Cypher query only, no explanation.
If the question cannot be answered from this graph, reply with exactly: NONE

Question: %s`, schema.String(), question)
}

// answerPrompt asks the model to phrase the final answer from query rows.
func answerPrompt(question, cypher string, rows []graph.Row) string {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%v", rows))
	}
	return fmt.Sprintf(`The following Cypher query was run against the knowledge graph:
%s

It returned these rows (JSON):
%s

Using only this information, answer the question in clear natural language.
If the rows are empty or do not contain the answer, say that you don't know the answer.
Do not mention the query or the rows themselves.

Question: %s`, cypher, string(data), question)
}

var (
	fence        = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.*?)```")
	cypherPrefix = regexp.MustCompile(`(?i)^\s*cypher(\s+query)?\s*:\s*`)
	queryStart   = regexp.MustCompile(`(?i)^\s*((OPTIONAL\s+)?MATCH|WITH|UNWIND)\b`)
	hasReturn    = regexp.MustCompile(`(?i)\bRETURN\b`)
)

// ExtractCypher pulls the Cypher statement out of a model reply. It returns
// "" with isNone set when the model declined with NONE, and "" without isNone
// when the reply is prose rather than a query. A query must open with a
// reading clause and project with RETURN.
func ExtractCypher(reply string) (cypher string, isNone bool) {
	text := strings.TrimSpace(reply)
	if m := fence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	text = cypherPrefix.ReplaceAllString(text, "")
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))

	if strings.EqualFold(strings.Trim(text, ".\"' "), "none") {
		return "", true
	}
	if !queryStart.MatchString(text) || !hasReturn.MatchString(text) {
		return "", false
	}
	return text, false
}
