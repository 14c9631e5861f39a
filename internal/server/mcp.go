package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/qa"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   history.Store
	Chain   qa.Answerer // optional; if nil, ask returns an error
	User    string      // history owner for every tool call
	Version string
}

// NewMCPServer creates an MCP server exposing the question history tools.
func NewMCPServer(deps MCPDeps) *mcpserver.MCPServer {
	if deps.User == "" {
		deps.User = DefaultUser
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := mcpserver.NewMCPServer(
		"graphchat",
		deps.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions("graphchat: ask questions about a Neo4j knowledge graph and browse the user's question history."),
		mcpserver.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("top_queries",
			mcp.WithDescription("List the user's most frequently asked questions, most asked first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of questions (default 3)")),
		),
		mcpTopQueries(deps),
	)

	s.AddTool(
		mcp.NewTool("user_history",
			mcp.WithDescription("List every question the user asked with its ask count and rating."),
		),
		mcpHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("record_feedback",
			mcp.WithDescription("Rate an answered question. A new rating replaces the previous one."),
			mcp.WithString("query", mcp.Description("Exact question text"), mcp.Required()),
			mcp.WithString("rating", mcp.Description("Rating, e.g. good or bad"), mcp.Required()),
		),
		mcpRecordFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the knowledge graph and record it in the user's history."),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	return s
}

func mcpTopQueries(deps MCPDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}

		queries, err := deps.Store.TopQueries(ctx, deps.User, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("loading top queries: %v", err)), nil
		}
		if queries == nil {
			queries = []string{}
		}
		return mcpJSON(queries)
	}
}

func mcpHistory(deps MCPDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := deps.Store.History(ctx, deps.User)
		if err != nil {
			return mcpError(fmt.Sprintf("loading history: %v", err)), nil
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		return mcpJSON(entries)
	}
}

func mcpRecordFeedback(deps MCPDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		rating, err := req.RequireString("rating")
		if err != nil || rating == "" {
			return mcpError("rating is required"), nil
		}

		if err := deps.Store.RecordFeedback(ctx, deps.User, query, rating); err != nil {
			return mcpError(fmt.Sprintf("recording feedback: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded rating %q for %q", rating, query)), nil
	}
}

func mcpAsk(deps MCPDeps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Chain == nil {
			return mcpError("graph QA is not configured"), nil
		}
		question, err := req.RequireString("question")
		if err != nil || question == "" {
			return mcpError("question is required"), nil
		}

		// History is best effort; the answer still matters without it.
		recordErr := deps.Store.RecordAsk(ctx, deps.User, question)

		res, err := deps.Chain.Answer(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("answering: %v", err)), nil
		}

		out := struct {
			*qa.Result
			HistoryError string `json:"history_error,omitempty"`
		}{Result: res}
		if recordErr != nil {
			out.HistoryError = recordErr.Error()
		}
		return mcpJSON(out)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
