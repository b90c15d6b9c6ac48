package store

import (
	"context"
	"errors"

	"github.com/joescharf/fixit/internal/models"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	CreatorID  string
	AssigneeID string
	Status     models.IssueStatus
	Priority   models.IssuePriority
}

// Store defines the persistence interface for fixit.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UserExists(ctx context.Context, id string) (bool, error)

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error)
	DeleteIssue(ctx context.Context, id string) error

	// Suggestions
	CreateSuggestion(ctx context.Context, s *models.Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error)
	ListSuggestions(ctx context.Context, issueID string) ([]*models.Suggestion, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
