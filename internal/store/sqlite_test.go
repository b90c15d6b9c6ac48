package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/fixit/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *SQLiteStore, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Name: name, Role: role}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

// --- Users ---

func TestPragmas_SurviveReconnect(t *testing.T) {
	s := newTestStore(t)

	// No idle connections: every query below runs on a fresh connection.
	s.db.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		var fk int
		require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk)

		var timeout int
		require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Name: "ada", Email: "ada@example.com"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.RoleUser, u.Role, "role defaults to USER")

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Name)
	assert.Equal(t, models.RoleUser, got.Role)

	ok, err := s.UserExists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UserExists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	createUser(t, s, "root", models.RoleAdmin)
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUsers_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "a", Email: "dup@example.com"}))
	assert.Error(t, s.CreateUser(ctx, &models.User{Name: "b", Email: "dup@example.com"}))

	// Empty emails do not collide.
	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "c"}))
	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "d"}))
}

// --- Issues ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	creator := createUser(t, s, "creator", models.RoleUser)

	issue := &models.Issue{
		Title:       "Crash on start",
		Description: "App crashes",
		CreatorID:   creator.ID,
	}
	require.NoError(t, s.CreateIssue(ctx, issue))
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, models.IssueStatusOpen, issue.Status, "status defaults to OPEN")

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Crash on start", got.Title)
	assert.Equal(t, "App crashes", got.Description)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
	assert.Empty(t, got.Priority)
	assert.Empty(t, got.AssigneeID)
	assert.Equal(t, creator.ID, got.CreatorID)

	// Sparse update touches only supplied fields.
	st := models.IssueStatusInProgress
	updated, err := s.UpdateIssue(ctx, issue.ID, models.IssuePatch{Status: &st})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, updated.Status)
	assert.Empty(t, updated.Priority)
	assert.Equal(t, "Crash on start", updated.Title)

	pr := models.IssuePriorityCritical
	assignee := creator.ID
	updated, err = s.UpdateIssue(ctx, issue.ID, models.IssuePatch{Priority: &pr, AssigneeID: &assignee})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, updated.Status)
	assert.Equal(t, models.IssuePriorityCritical, updated.Priority)
	assert.Equal(t, creator.ID, updated.AssigneeID)

	require.NoError(t, s.DeleteIssue(ctx, issue.ID))
	_, err = s.GetIssue(ctx, issue.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIssue_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetIssue(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	st := models.IssueStatusClosed
	_, err = s.UpdateIssue(ctx, "missing", models.IssuePatch{Status: &st})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteIssue(ctx, "missing"), ErrNotFound)
}

func TestIssue_EmptyPatchRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpdateIssue(context.Background(), "any", models.IssuePatch{})
	assert.Error(t, err)
}

func TestIssue_CheckConstraints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := &models.Issue{Title: "t", Description: "d", CreatorID: "u", Status: "DONE"}
	assert.Error(t, s.CreateIssue(ctx, bad), "unknown status must not persist")

	bad = &models.Issue{Title: "t", Description: "d", CreatorID: "u", Priority: "URGENT"}
	assert.Error(t, s.CreateIssue(ctx, bad), "unknown priority must not persist")
}

func TestListIssues_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, "a", models.RoleUser)
	b := createUser(t, s, "b", models.RoleUser)

	for _, in := range []*models.Issue{
		{Title: "a1", Description: "d", CreatorID: a.ID, Priority: models.IssuePriorityLow},
		{Title: "a2", Description: "d", CreatorID: a.ID, Priority: models.IssuePriorityCritical, AssigneeID: b.ID},
		{Title: "b1", Description: "d", CreatorID: b.ID, Status: models.IssueStatusClosed},
	} {
		require.NoError(t, s.CreateIssue(ctx, in))
	}

	issues, err := s.ListIssues(ctx, IssueListFilter{CreatorID: a.ID})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "a2", issues[0].Title, "critical sorts before low")

	issues, err = s.ListIssues(ctx, IssueListFilter{AssigneeID: b.ID})
	require.NoError(t, err)
	assert.Len(t, issues, 1)

	issues, err = s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusClosed})
	require.NoError(t, err)
	assert.Len(t, issues, 1)

	issues, err = s.ListIssues(ctx, IssueListFilter{CreatorID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

// --- Suggestions ---

func TestSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u", models.RoleUser)

	issue := &models.Issue{Title: "t", Description: "d", CreatorID: u.ID}
	require.NoError(t, s.CreateIssue(ctx, issue))

	first := &models.Suggestion{IssueID: issue.ID, Suggestion: "restart it", Model: "m"}
	require.NoError(t, s.CreateSuggestion(ctx, first))
	second := &models.Suggestion{IssueID: issue.ID, Suggestion: "restart it"}
	require.NoError(t, s.CreateSuggestion(ctx, second))
	assert.NotEqual(t, first.ID, second.ID, "identical text still yields distinct records")

	got, err := s.GetSuggestion(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "restart it", got.Suggestion)
	assert.Equal(t, "m", got.Model)

	list, err := s.ListSuggestions(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := s.ListSuggestions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetSuggestion(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSuggestions_RequireIssue(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateSuggestion(context.Background(), &models.Suggestion{IssueID: "missing", Suggestion: "x"})
	assert.Error(t, err, "foreign key rejects orphan suggestions")
}

func TestSuggestions_RejectEmptyText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	issue := &models.Issue{Title: "t", Description: "d", CreatorID: "u"}
	require.NoError(t, s.CreateIssue(ctx, issue))

	err := s.CreateSuggestion(ctx, &models.Suggestion{IssueID: issue.ID})
	assert.Error(t, err)
}

func TestDeleteIssue_CascadesSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := &models.Issue{Title: "t", Description: "d", CreatorID: "u"}
	require.NoError(t, s.CreateIssue(ctx, issue))
	sg := &models.Suggestion{IssueID: issue.ID, Suggestion: "x"}
	require.NoError(t, s.CreateSuggestion(ctx, sg))

	require.NoError(t, s.DeleteIssue(ctx, issue.ID))

	_, err := s.GetSuggestion(ctx, sg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
