package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var topLimit int

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the user's most frequently asked questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		queries, err := a.store.TopQueries(cmd.Context(), currentUser(), topLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(queries) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No previous queries found."))
			return nil
		}
		fmt.Fprintln(out, headerStyle.Render("Frequent questions for "+currentUser()))
		for i, q := range queries {
			fmt.Fprintf(out, "%2d. %s\n", i+1, q)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List every question the user asked with counts and ratings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		entries, err := a.store.History(cmd.Context(), currentUser())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No previous queries found."))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COUNT\tRATING\tLAST ASKED\tQUESTION")
		for _, e := range entries {
			rating := e.Rating
			if rating == "" {
				rating = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Count, rating, e.LastAsked.Local().Format(time.DateTime), e.Query)
		}
		return w.Flush()
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <question> <rating>",
	Short: "Rate a question; a new rating replaces the old one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.store.RecordFeedback(cmd.Context(), currentUser(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded rating %q for %q\n", args[1], args[0])
		return nil
	},
}

func init() {
	topCmd.Flags().IntVarP(&topLimit, "limit", "n", 3, "number of questions to show")
}
