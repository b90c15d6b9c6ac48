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
	issueTitle    string
	issueDesc     string
	issueStatus   string
	issuePriority string
	issueAssignee string
	issueCreator  string
	issueJSON     bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Open, inspect, update and delete issues. Mutations act as --as <user-id>.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Open a new issue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the issues created by a user",
	Long:    "List the issues created by --creator, or by the acting user when omitted.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Change the status, priority or assignee of an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch tracker.UpdateIssuePatch
		if cmd.Flags().Changed("status") {
			patch.Status = &issueStatus
		}
		if cmd.Flags().Changed("priority") {
			patch.Priority = &issuePriority
		}
		if cmd.Flags().Changed("assignee") {
			patch.AssigneeID = &issueAssignee
		}
		return issueUpdateRun(cmd.Context(), args[0], patch)
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue and its suggestions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description (required)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Status: open, in_progress, resolved, closed (default open)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: low, medium, high, critical")
	issueAddCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Assignee user ID")

	issueListCmd.Flags().StringVar(&issueCreator, "creator", "", "Creator user ID (default: acting user)")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Output JSON")

	issueShowCmd.Flags().BoolVar(&issueJSON, "json", false, "Output JSON")

	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueAssignee, "assignee", "", "New assignee user ID")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun(ctx context.Context) error {
	issues, _, err := newTracker()
	if err != nil {
		return err
	}
	actor, err := requireIdentity(ctx)
	if err != nil {
		return err
	}

	in := tracker.CreateIssueInput{
		Title:       issueTitle,
		Description: issueDesc,
		Status:      issueStatus,
		Priority:    issuePriority,
		AssigneeID:  issueAssignee,
	}

	if dryRun {
		if err := issues.ValidateCreate(ctx, in); err != nil {
			return err
		}
		ui.DryRunMsg("Would add issue: %s", issueTitle)
		return nil
	}

	issue, err := issues.CreateIssue(ctx, in, actor)
	if err != nil {
		return err
	}

	ui.Success("Created issue %s: %s", output.Cyan(issue.ID), issue.Title)
	return nil
}

func issueListRun(ctx context.Context) error {
	issues, _, err := newTracker()
	if err != nil {
		return err
	}

	creator := issueCreator
	if creator == "" {
		actor, err := requireIdentity(ctx)
		if err != nil {
			return err
		}
		creator = actor.UserID
	}

	list, err := issues.ListIssuesByCreator(ctx, creator)
	if tracker.IsKind(err, tracker.KindNotFound) && !issueJSON {
		ui.Info("No issues found.")
		return nil
	}
	if err != nil {
		return err
	}

	if issueJSON {
		return ui.JSON(list)
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Updated"})
	for _, issue := range list {
		_ = table.Append([]string{
			issue.ID,
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			issue.AssigneeID,
			issue.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ctx context.Context, id string) error {
	issues, workflow, err := newTracker()
	if err != nil {
		return err
	}

	issue, err := issues.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	if issueJSON {
		return ui.JSON(issue)
	}

	printIssue(issue)

	suggestions, err := workflow.ListSuggestionsForIssue(ctx, id)
	if err != nil {
		return err
	}
	if len(suggestions) > 0 {
		fmt.Fprintf(ui.Out, "  Suggestions: %d (latest %s)\n", len(suggestions), suggestions[0].ID)
	}
	return nil
}

func printIssue(issue *models.Issue) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.ID), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Creator:    %s\n", issue.CreatorID)
	if issue.AssigneeID != "" {
		fmt.Fprintf(ui.Out, "  Assignee:   %s\n", issue.AssigneeID)
	}
	fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
}

func issueUpdateRun(ctx context.Context, id string, patch tracker.UpdateIssuePatch) error {
	issues, _, err := newTracker()
	if err != nil {
		return err
	}
	actor, err := requireIdentity(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", id)
		return nil
	}

	issue, err := issues.UpdateIssue(ctx, id, patch, actor)
	if err != nil {
		return err
	}

	ui.Success("Updated issue %s [%s]", output.Cyan(issue.ID), output.StatusColor(string(issue.Status)))
	return nil
}

func issueDeleteRun(ctx context.Context, id string) error {
	issues, _, err := newTracker()
	if err != nil {
		return err
	}
	actor, err := requireIdentity(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s", id)
		return nil
	}

	if err := issues.DeleteIssue(ctx, id, actor); err != nil {
		return err
	}

	ui.Success("Deleted issue %s", output.Cyan(id))
	return nil
}
