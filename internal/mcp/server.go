package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/tracker"
)

// Server exposes the issue tracker as MCP tools. Every tool call acts as a
// single identity fixed at construction.
type Server struct {
	issues      *tracker.Manager
	suggestions *tracker.Workflow
	actor       *identity.Identity
	version     string
	logger      *slog.Logger
}

// NewServer creates the MCP server wrapper. actor may be nil, in which case
// every mutating tool fails as unauthenticated.
func NewServer(issues *tracker.Manager, suggestions *tracker.Workflow, actor *identity.Identity, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		issues:      issues,
		suggestions: suggestions,
		actor:       actor,
		version:     version,
		logger:      slog.Default(),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("fixit", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())
	srv.AddTool(s.createSuggestionTool())
	srv.AddTool(s.getSuggestionTool())
	srv.AddTool(s.listSuggestionsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// toolError renders a tracker failure as a tool error result. Only the typed
// message is shown; causes go to the log.
func (s *Server) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	kind := tracker.KindOf(err)
	if kind == tracker.KindInternal || kind == tracker.KindPersistence || kind == tracker.KindUpstream {
		s.logger.ErrorContext(ctx, "mcp tool failed", "tool", tool, "kind", kind, "error", err)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", kind, tracker.Message(err)))
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// optionalString returns the named argument and whether it was supplied.
func optionalString(request mcp.CallToolRequest, key string) (*string, error) {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return nil, nil
	}
	str, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &str, nil
}

// ---------------------------------------------------------------------------
// Issues
// ---------------------------------------------------------------------------

// fixit_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_create_issue",
		mcp.WithDescription("Open a new issue owned by the acting user. Status defaults to OPEN."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What is wrong")),
		mcp.WithString("status", mcp.Description("OPEN, IN_PROGRESS, RESOLVED or CLOSED (any casing)")),
		mcp.WithString("priority", mcp.Description("LOW, MEDIUM, HIGH or CRITICAL (any casing)")),
		mcp.WithString("assignee_id", mcp.Description("ID of an existing user to assign")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := tracker.CreateIssueInput{
		Title:       request.GetString("title", ""),
		Description: request.GetString("description", ""),
		Status:      request.GetString("status", ""),
		Priority:    request.GetString("priority", ""),
		AssigneeID:  request.GetString("assignee_id", ""),
	}
	issue, err := s.issues.CreateIssue(ctx, in, s.actor)
	if err != nil {
		return s.toolError(ctx, "fixit_create_issue", err), nil
	}
	return jsonResult(issue), nil
}

// fixit_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_get_issue",
		mcp.WithDescription("Get a single issue by ID."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := s.issues.GetIssue(ctx, id)
	if err != nil {
		return s.toolError(ctx, "fixit_get_issue", err), nil
	}
	return jsonResult(issue), nil
}

// fixit_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_list_issues",
		mcp.WithDescription("List the issues created by a user. Defaults to the acting user. Fails with not_found when the user has no issues."),
		mcp.WithString("creator_id", mcp.Description("Creator user ID")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creator := request.GetString("creator_id", "")
	if creator == "" && s.actor != nil {
		creator = s.actor.UserID
	}
	issues, err := s.issues.ListIssuesByCreator(ctx, creator)
	if err != nil {
		return s.toolError(ctx, "fixit_list_issues", err), nil
	}
	return jsonResult(issues), nil
}

// fixit_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_update_issue",
		mcp.WithDescription("Change the status, priority or assignee of an issue. Only the issue's creator may update it."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Description("New status")),
		mcp.WithString("priority", mcp.Description("New priority")),
		mcp.WithString("assignee_id", mcp.Description("New assignee user ID")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	var patch tracker.UpdateIssuePatch
	for key, dst := range map[string]**string{
		"status":      &patch.Status,
		"priority":    &patch.Priority,
		"assignee_id": &patch.AssigneeID,
	} {
		v, err := optionalString(request, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		*dst = v
	}

	issue, err := s.issues.UpdateIssue(ctx, id, patch, s.actor)
	if err != nil {
		return s.toolError(ctx, "fixit_update_issue", err), nil
	}
	return jsonResult(issue), nil
}

// fixit_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_delete_issue",
		mcp.WithDescription("Delete an issue and its suggestions. Only the issue's creator may delete it."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	if err := s.issues.DeleteIssue(ctx, id, s.actor); err != nil {
		return s.toolError(ctx, "fixit_delete_issue", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted issue %s", id)), nil
}

// ---------------------------------------------------------------------------
// Suggestions
// ---------------------------------------------------------------------------

// fixit_create_suggestion
func (s *Server) createSuggestionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_create_suggestion",
		mcp.WithDescription("Generate and store an AI resolution suggestion for an issue. Each call produces a new suggestion."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID")),
	)
	return tool, s.handleCreateSuggestion
}

func (s *Server) handleCreateSuggestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	sg, err := s.suggestions.CreateSuggestion(ctx, tracker.CreateSuggestionInput{IssueID: id}, s.actor)
	if err != nil {
		return s.toolError(ctx, "fixit_create_suggestion", err), nil
	}
	return jsonResult(sg), nil
}

// fixit_get_suggestion
func (s *Server) getSuggestionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_get_suggestion",
		mcp.WithDescription("Get a stored suggestion by ID."),
		mcp.WithString("suggestion_id", mcp.Required(), mcp.Description("Suggestion ID")),
	)
	return tool, s.handleGetSuggestion
}

func (s *Server) handleGetSuggestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("suggestion_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: suggestion_id"), nil
	}
	sg, err := s.suggestions.GetSuggestion(ctx, id)
	if err != nil {
		return s.toolError(ctx, "fixit_get_suggestion", err), nil
	}
	return jsonResult(sg), nil
}

// fixit_list_suggestions
func (s *Server) listSuggestionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("fixit_list_suggestions",
		mcp.WithDescription("List suggestions. With issue_id, lists that issue's suggestions; without it, lists all suggestions (ADMIN only)."),
		mcp.WithString("issue_id", mcp.Description("Restrict to one issue")),
	)
	return tool, s.handleListSuggestions
}

func (s *Server) handleListSuggestions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if issueID := request.GetString("issue_id", ""); issueID != "" {
		list, err := s.suggestions.ListSuggestionsForIssue(ctx, issueID)
		if err != nil {
			return s.toolError(ctx, "fixit_list_suggestions", err), nil
		}
		return jsonResult(list), nil
	}

	if !s.actor.IsAdmin() {
		return mcp.NewToolResultError("forbidden: listing all suggestions requires the ADMIN role"), nil
	}
	list, err := s.suggestions.ListSuggestions(ctx)
	if err != nil {
		return s.toolError(ctx, "fixit_list_suggestions", err), nil
	}
	return jsonResult(list), nil
}
