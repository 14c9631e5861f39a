package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/terminal"
)

var plainOutput bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the knowledge graph in the terminal",
	RunE:  runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().BoolVar(&plainOutput, "plain", false, "disable markdown rendering")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	term, err := terminal.New(os.Stdin, cmd.OutOrStdout(), terminal.Options{Plain: plainOutput})
	if err != nil {
		return err
	}

	sess := chat.NewSession(uuid.NewString(), currentUser(), term, a.store, a.chatOptions(cfg.Chat), a.metrics, logger)
	return term.Run(ctx, sess, a.answerer())
}
