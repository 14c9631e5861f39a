package main

import (
	"context"
	"errors"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/server"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the history and ask tools over MCP (stdio)",
	Long: `Runs a Model Context Protocol server on stdin/stdout exposing:

  top_queries      most frequent questions
  user_history     every question with count and rating
  record_feedback  rate a question
  ask              answer a question and record it

Logs go to stderr so they never mix with the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		mcpSrv := server.NewMCPServer(server.MCPDeps{
			Store:   a.store,
			Chain:   a.answerer(),
			User:    currentUser(),
			Version: version,
		})

		logger.Info("MCP server started (stdio transport)", zap.String("user", currentUser()))
		stdio := mcpserver.NewStdioServer(mcpSrv)
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
