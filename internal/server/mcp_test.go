package server

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/graphchat/internal/history"
)

func newMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	ctx := context.Background()
	store, err := history.NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })
	return MCPDeps{Store: store, Chain: echoChain{}, User: "alice"}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_AskRecordsHistory(t *testing.T) {
	deps := newMCPDeps(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := mcpAsk(deps)(ctx, callTool("ask", map[string]any{"question": "list CVEs"}))
		require.NoError(t, err)
		require.False(t, result.IsError, toolText(t, result))
		assert.Contains(t, toolText(t, result), "answer to list CVEs")
	}

	result, err := mcpTopQueries(deps)(ctx, callTool("top_queries", map[string]any{"limit": 5}))
	require.NoError(t, err)
	var top []string
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &top))
	assert.Equal(t, []string{"list CVEs"}, top)

	result, err = mcpHistory(deps)(ctx, callTool("user_history", nil))
	require.NoError(t, err)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Count)
}

func TestMCPTool_TopQueriesEmpty(t *testing.T) {
	deps := newMCPDeps(t)

	result, err := mcpTopQueries(deps)(context.Background(), callTool("top_queries", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", toolText(t, result))
}

func TestMCPTool_RecordFeedback(t *testing.T) {
	deps := newMCPDeps(t)
	ctx := context.Background()

	result, err := mcpRecordFeedback(deps)(ctx, callTool("record_feedback", map[string]any{"query": "list CVEs"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = mcpRecordFeedback(deps)(ctx, callTool("record_feedback", map[string]any{
		"query":  "list CVEs",
		"rating": "bad",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))
}

func TestMCPTool_StoreUnavailable(t *testing.T) {
	deps := MCPDeps{Store: history.NewUnavailable(errors.New("connection refused")), Chain: echoChain{}}

	result, err := mcpTopQueries(deps)(context.Background(), callTool("top_queries", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// ask still answers and reports the history failure.
	result, err = mcpAsk(deps)(context.Background(), callTool("ask", map[string]any{"question": "q"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, toolText(t, result), "history_error")
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(newMCPDeps(t))
	require.NotNil(t, s)
}
