package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/store"
)

// DefaultSuggestionTimeout bounds a single generator call when none is configured.
const DefaultSuggestionTimeout = 60 * time.Second

// Generator turns an issue description into free-text resolution advice.
// Implementations are remote and non-deterministic.
type Generator interface {
	GenerateSuggestion(ctx context.Context, description string) (string, error)
}

// modelNamer is implemented by generators that can report the model they use.
type modelNamer interface {
	ModelName() string
}

// CreateSuggestionInput names the issue to generate a suggestion for.
type CreateSuggestionInput struct {
	IssueID string `json:"issueId"`
}

// Workflow generates and stores AI suggestions for issues. It never retries:
// one generator failure fails the whole operation.
type Workflow struct {
	issues  *Manager
	store   store.Store
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// NewWorkflow wires a workflow. gen may be nil when no provider is configured;
// CreateSuggestion then fails with an upstream error. A non-positive timeout
// selects DefaultSuggestionTimeout.
func NewWorkflow(issues *Manager, s store.Store, gen Generator, timeout time.Duration) *Workflow {
	if timeout <= 0 {
		timeout = DefaultSuggestionTimeout
	}
	return &Workflow{
		issues:  issues,
		store:   s,
		gen:     gen,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// SetLogger replaces the workflow's logger.
func (w *Workflow) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

// CreateSuggestion loads the issue, asks the generator for advice on its
// description and stores the result. Each call produces a new record.
func (w *Workflow) CreateSuggestion(ctx context.Context, in CreateSuggestionInput, actor *identity.Identity) (*models.Suggestion, error) {
	if actor == nil || actor.UserID == "" {
		return nil, unauthenticatedError()
	}
	if strings.TrimSpace(in.IssueID) == "" {
		return nil, validationError("issueId is required")
	}

	issue, err := w.issues.GetIssue(ctx, in.IssueID)
	if err != nil {
		return nil, err
	}

	// Issues written outside CreateIssue may lack a description.
	if strings.TrimSpace(issue.Description) == "" {
		return nil, validationError("issue %s has no description to generate a suggestion from", issue.ID)
	}

	if w.gen == nil {
		return nil, upstreamError("suggestion provider is not configured", nil)
	}

	genCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	text, err := w.gen.GenerateSuggestion(genCtx, issue.Description)
	if err != nil {
		w.logger.Warn("suggestion generation failed",
			"issue_id", issue.ID,
			"duration", time.Since(start),
			"timeout", errors.Is(err, context.DeadlineExceeded),
			"error", err,
		)
		return nil, upstreamError("failed to generate suggestion", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, upstreamError("suggestion provider returned no content", nil)
	}

	sg := &models.Suggestion{
		IssueID:    issue.ID,
		Suggestion: text,
	}
	if mn, ok := w.gen.(modelNamer); ok {
		sg.Model = mn.ModelName()
	}
	if err := w.store.CreateSuggestion(ctx, sg); err != nil {
		return nil, persistenceError("failed to save suggestion", err)
	}

	w.logger.Info("suggestion created",
		"suggestion_id", sg.ID,
		"issue_id", issue.ID,
		"actor", actor.UserID,
		"duration", time.Since(start),
	)
	return sg, nil
}

// GetSuggestion returns the suggestion with id.
func (w *Workflow) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("suggestion id is required")
	}
	sg, err := w.store.GetSuggestion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("suggestion with id %s cannot be found", id)
	}
	if err != nil {
		return nil, err
	}
	return sg, nil
}

// ListSuggestions returns every stored suggestion. Restricting this to admins
// is the caller's job.
func (w *Workflow) ListSuggestions(ctx context.Context) ([]*models.Suggestion, error) {
	out, err := w.store.ListSuggestions(ctx, "")
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.Suggestion{}
	}
	return out, nil
}

// ListSuggestionsForIssue returns the suggestions of one issue, newest first.
func (w *Workflow) ListSuggestionsForIssue(ctx context.Context, issueID string) ([]*models.Suggestion, error) {
	if _, err := w.issues.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	out, err := w.store.ListSuggestions(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.Suggestion{}
	}
	return out, nil
}
