// Package tracker holds the issue lifecycle rules and the suggestion workflow.
package tracker

import (
	"context"
	"errors"
	"strings"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/store"
)

// CreateIssueInput carries the fields accepted when opening an issue. Status
// and Priority are raw caller text, matched case-insensitively.
type CreateIssueInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssigneeID  string `json:"assigneeId,omitempty"`
}

// UpdateIssuePatch carries the only fields that may change after creation.
// Nil means not supplied.
type UpdateIssuePatch struct {
	Status     *string `json:"status,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	AssigneeID *string `json:"assigneeId,omitempty"`
}

// Manager applies validation and creator-only authorization to issue
// operations. Every read goes to the store; nothing is cached.
type Manager struct {
	store store.Store
}

// NewManager creates a Manager backed by s.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// CreateIssue validates in and persists a new issue owned by actor. Checks run
// in a fixed order: title, description, status, priority, assignee, actor.
func (m *Manager) CreateIssue(ctx context.Context, in CreateIssueInput, actor *identity.Identity) (*models.Issue, error) {
	issue, err := m.buildIssue(ctx, in)
	if err != nil {
		return nil, err
	}

	if actor == nil || actor.UserID == "" {
		return nil, unauthenticatedError()
	}
	issue.CreatorID = actor.UserID

	// The assignee may be removed between the check in buildIssue and this
	// write; the store does not re-verify it.
	if err := m.store.CreateIssue(ctx, issue); err != nil {
		return nil, persistenceError("failed to save issue", err)
	}
	return issue, nil
}

// ValidateCreate runs every CreateIssue field check without writing anything.
func (m *Manager) ValidateCreate(ctx context.Context, in CreateIssueInput) error {
	_, err := m.buildIssue(ctx, in)
	return err
}

// buildIssue validates in and returns the unsaved issue it describes.
func (m *Manager) buildIssue(ctx context.Context, in CreateIssueInput) (*models.Issue, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, validationError("title is required and cannot be empty")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, validationError("description is required and cannot be empty")
	}

	issue := &models.Issue{
		Title:       in.Title,
		Description: in.Description,
	}

	if in.Status != "" {
		st, err := parseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		issue.Status = st
	}
	if in.Priority != "" {
		pr, err := parsePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		issue.Priority = pr
	}
	if in.AssigneeID != "" {
		if err := m.checkAssignee(ctx, in.AssigneeID); err != nil {
			return nil, err
		}
		issue.AssigneeID = in.AssigneeID
	}
	return issue, nil
}

// GetIssue returns the issue with id. Any authenticated caller may read.
func (m *Manager) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("issue id is required")
	}
	issue, err := m.store.GetIssue(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("issue with id %s does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// ListIssuesByCreator returns the issues created by creatorID. An empty result
// is reported as not found rather than an empty list.
func (m *Manager) ListIssuesByCreator(ctx context.Context, creatorID string) ([]*models.Issue, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, validationError("creator id is required")
	}
	issues, err := m.store.ListIssues(ctx, store.IssueListFilter{CreatorID: creatorID})
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, notFoundError("no issues found for user %s", creatorID)
	}
	return issues, nil
}

// UpdateIssue applies patch to the issue with id on behalf of actor. All
// supplied fields are validated before anything is written.
func (m *Manager) UpdateIssue(ctx context.Context, id string, patch UpdateIssuePatch, actor *identity.Identity) (*models.Issue, error) {
	if actor == nil || actor.UserID == "" {
		return nil, unauthenticatedError()
	}
	issue, err := m.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanMutate(issue, actor) {
		return nil, forbiddenError("only the creator of an issue may update it")
	}

	var p models.IssuePatch
	if patch.Status != nil {
		st, err := parseStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		p.Status = &st
	}
	if patch.Priority != nil {
		pr, err := parsePriority(*patch.Priority)
		if err != nil {
			return nil, err
		}
		p.Priority = &pr
	}
	if patch.AssigneeID != nil {
		if err := m.checkAssignee(ctx, *patch.AssigneeID); err != nil {
			return nil, err
		}
		assignee := *patch.AssigneeID
		p.AssigneeID = &assignee
	}
	if p.Empty() {
		return nil, validationError("at least one of status, priority or assigneeId is required")
	}

	updated, err := m.store.UpdateIssue(ctx, id, p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("issue with id %s does not exist", id)
	}
	if err != nil {
		return nil, persistenceError("failed to update issue", err)
	}
	return updated, nil
}

// DeleteIssue removes the issue with id on behalf of actor. The issue's
// suggestions go with it.
func (m *Manager) DeleteIssue(ctx context.Context, id string, actor *identity.Identity) error {
	if actor == nil || actor.UserID == "" {
		return unauthenticatedError()
	}
	issue, err := m.GetIssue(ctx, id)
	if err != nil {
		return err
	}
	if !CanMutate(issue, actor) {
		return forbiddenError("only the creator of an issue may delete it")
	}

	err = m.store.DeleteIssue(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("issue with id %s does not exist", id)
	}
	if err != nil {
		return persistenceError("failed to delete issue", err)
	}
	return nil
}

func (m *Manager) checkAssignee(ctx context.Context, assigneeID string) error {
	if strings.TrimSpace(assigneeID) == "" {
		return validationError("assigneeId cannot be empty")
	}
	ok, err := m.store.UserExists(ctx, assigneeID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundError("assignee with id %s does not exist", assigneeID)
	}
	return nil
}

func parseStatus(s string) (models.IssueStatus, error) {
	st, ok := models.ParseIssueStatus(s)
	if !ok {
		return "", validationError("status must be one of: %s", joinEnum(models.IssueStatuses))
	}
	return st, nil
}

func parsePriority(s string) (models.IssuePriority, error) {
	pr, ok := models.ParseIssuePriority(s)
	if !ok {
		return "", validationError("priority must be one of: %s", joinEnum(models.IssuePriorities))
	}
	return pr, nil
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
