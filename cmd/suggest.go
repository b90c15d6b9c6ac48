package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/output"
	"github.com/joescharf/fixit/internal/tracker"
)

var (
	suggestionIssue string
	suggestionJSON  bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <issue-id>",
	Short: "Generate an AI resolution suggestion for an issue",
	Long: `Ask the configured model for advice on resolving an issue and store
the answer. Every call makes a fresh request and stores a new suggestion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return suggestRun(cmd.Context(), args[0])
	},
}

var suggestionCmd = &cobra.Command{
	Use:     "suggestion",
	Aliases: []string{"suggestions"},
	Short:   "Inspect stored suggestions",
}

var suggestionShowCmd = &cobra.Command{
	Use:   "show <suggestion-id>",
	Short: "Show a suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return suggestionShowRun(cmd.Context(), args[0])
	},
}

var suggestionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List suggestions",
	Long:    "List the suggestions of one issue (--issue) or, for ADMIN users, all suggestions.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return suggestionListRun(cmd.Context())
	},
}

func init() {
	suggestCmd.Flags().BoolVar(&suggestionJSON, "json", false, "Output JSON")
	suggestionShowCmd.Flags().BoolVar(&suggestionJSON, "json", false, "Output JSON")
	suggestionListCmd.Flags().StringVar(&suggestionIssue, "issue", "", "Only suggestions for this issue")
	suggestionListCmd.Flags().BoolVar(&suggestionJSON, "json", false, "Output JSON")

	suggestionCmd.AddCommand(suggestionShowCmd)
	suggestionCmd.AddCommand(suggestionListCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(suggestionCmd)
}

func suggestRun(ctx context.Context, issueID string) error {
	_, workflow, err := newTracker()
	if err != nil {
		return err
	}
	actor, err := requireIdentity(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would request a suggestion for issue %s", issueID)
		return nil
	}

	ui.VerboseLog("Requesting suggestion for %s", issueID)
	sg, err := workflow.CreateSuggestion(ctx, tracker.CreateSuggestionInput{IssueID: issueID}, actor)
	if err != nil {
		return err
	}
	if suggestionJSON {
		return ui.JSON(sg)
	}

	ui.Success("Stored suggestion %s", output.Cyan(sg.ID))
	printSuggestion(sg)
	return nil
}

func suggestionShowRun(ctx context.Context, id string) error {
	_, workflow, err := newTracker()
	if err != nil {
		return err
	}
	sg, err := workflow.GetSuggestion(ctx, id)
	if err != nil {
		return err
	}
	if suggestionJSON {
		return ui.JSON(sg)
	}
	printSuggestion(sg)
	return nil
}

func suggestionListRun(ctx context.Context) error {
	_, workflow, err := newTracker()
	if err != nil {
		return err
	}

	var list []*models.Suggestion
	if suggestionIssue != "" {
		list, err = workflow.ListSuggestionsForIssue(ctx, suggestionIssue)
	} else {
		actor, idErr := requireIdentity(ctx)
		if idErr != nil {
			return idErr
		}
		if !actor.IsAdmin() {
			return fmt.Errorf("listing all suggestions requires the ADMIN role (use --issue)")
		}
		list, err = workflow.ListSuggestions(ctx)
	}
	if err != nil {
		return err
	}

	if suggestionJSON {
		return ui.JSON(list)
	}
	if len(list) == 0 {
		ui.Info("No suggestions found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Issue", "Model", "Created", "Suggestion"})
	for _, sg := range list {
		_ = table.Append([]string{
			sg.ID,
			sg.IssueID,
			sg.Model,
			sg.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(sg.Suggestion, 60),
		})
	}
	_ = table.Render()
	return nil
}

func printSuggestion(sg *models.Suggestion) {
	fmt.Fprintf(ui.Out, "%s  for issue %s\n", output.Cyan(sg.ID), sg.IssueID)
	if sg.Model != "" {
		fmt.Fprintf(ui.Out, "  Model:      %s\n", sg.Model)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", sg.CreatedAt.Format(time.RFC3339))
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, sg.Suggestion)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
