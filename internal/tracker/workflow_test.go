package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/store"
)

// fakeGenerator returns canned text and records what it was asked.
type fakeGenerator struct {
	text  string
	err   error
	block bool
	calls atomic.Int32
	last  string
}

func (f *fakeGenerator) GenerateSuggestion(ctx context.Context, description string) (string, error) {
	f.calls.Add(1)
	f.last = description
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeGenerator) ModelName() string { return "fake-model" }

// failingStore fails suggestion writes and passes everything else through.
type failingStore struct {
	store.Store
}

func (failingStore) CreateSuggestion(context.Context, *models.Suggestion) error {
	return errors.New("disk full")
}

type workflowFixture struct {
	store    *store.SQLiteStore
	manager  *Manager
	workflow *Workflow
	gen      *fakeGenerator
	alice    *identity.Identity
	issue    *models.Issue
}

func newWorkflowFixture(t *testing.T, gen *fakeGenerator) *workflowFixture {
	t.Helper()
	s := newTestStore(t)
	m := NewManager(s)
	alice := newUser(t, s, "alice", models.RoleUser)
	issue, err := m.CreateIssue(context.Background(), CreateIssueInput{Title: "Login fails", Description: "Users cannot log in"}, alice)
	require.NoError(t, err)

	return &workflowFixture{
		store:    s,
		manager:  m,
		workflow: NewWorkflow(m, s, gen, time.Second),
		gen:      gen,
		alice:    alice,
		issue:    issue,
	}
}

func TestCreateSuggestion(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "  Check the auth service logs.\n"})
	ctx := context.Background()

	sg, err := f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
	require.NoError(t, err)
	assert.NotEmpty(t, sg.ID)
	assert.Equal(t, f.issue.ID, sg.IssueID)
	assert.Equal(t, "Check the auth service logs.", sg.Suggestion)
	assert.Equal(t, "fake-model", sg.Model)
	assert.Equal(t, "Users cannot log in", f.gen.last, "generator sees the description")

	got, err := f.workflow.GetSuggestion(ctx, sg.ID)
	require.NoError(t, err)
	assert.Equal(t, sg.Suggestion, got.Suggestion)
	assert.Equal(t, f.issue.ID, got.IssueID)
}

func TestCreateSuggestion_NotIdempotent(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "same text"})
	ctx := context.Background()
	in := CreateSuggestionInput{IssueID: f.issue.ID}

	first, err := f.workflow.CreateSuggestion(ctx, in, f.alice)
	require.NoError(t, err)
	second, err := f.workflow.CreateSuggestion(ctx, in, f.alice)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int32(2), f.gen.calls.Load())

	list, err := f.workflow.ListSuggestionsForIssue(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCreateSuggestion_AnyUserMayRequest(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})
	bob := newUser(t, f.store, "bob", models.RoleUser)

	_, err := f.workflow.CreateSuggestion(context.Background(), CreateSuggestionInput{IssueID: f.issue.ID}, bob)
	assert.NoError(t, err)
}

func TestCreateSuggestion_UnknownIssue(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})

	_, err := f.workflow.CreateSuggestion(context.Background(), CreateSuggestionInput{IssueID: "missing"}, f.alice)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, int32(0), f.gen.calls.Load(), "generator never called")
}

func TestCreateSuggestion_InputErrors(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})
	ctx := context.Background()

	_, err := f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{}, f.alice)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: f.issue.ID}, nil)
	assert.Equal(t, KindUnauthenticated, KindOf(err))

	assert.Equal(t, int32(0), f.gen.calls.Load())
}

func TestCreateSuggestion_EmptyDescription(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})
	ctx := context.Background()

	// Written straight to the store, skipping CreateIssue validation.
	bare := &models.Issue{Title: "t", Description: "", CreatorID: f.alice.UserID}
	require.NoError(t, f.store.CreateIssue(ctx, bare))

	_, err := f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: bare.ID}, f.alice)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, int32(0), f.gen.calls.Load())

	list, err := f.workflow.ListSuggestionsForIssue(ctx, bare.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateSuggestion_GeneratorFailureLeavesIssue(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{err: errors.New("connection reset")})
	ctx := context.Background()

	before, err := f.manager.GetIssue(ctx, f.issue.ID)
	require.NoError(t, err)

	_, err = f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
	assert.Equal(t, KindUpstream, KindOf(err))

	after, err := f.manager.GetIssue(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreateSuggestion_GeneratorFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"provider error", &fakeGenerator{err: errors.New("503 overloaded")}},
		{"empty content", &fakeGenerator{text: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkflowFixture(t, tt.gen)
			ctx := context.Background()

			_, err := f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
			require.Error(t, err)
			assert.Equal(t, KindUpstream, KindOf(err))
			assert.Equal(t, int32(1), tt.gen.calls.Load(), "no retries")

			all, err := f.workflow.ListSuggestions(ctx)
			require.NoError(t, err)
			assert.Empty(t, all, "nothing persisted")
		})
	}
}

func TestCreateSuggestion_Timeout(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{block: true})
	f.workflow = NewWorkflow(f.manager, f.store, f.gen, 20*time.Millisecond)

	_, err := f.workflow.CreateSuggestion(context.Background(), CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateSuggestion_NoGenerator(t *testing.T) {
	f := newWorkflowFixture(t, nil)
	f.workflow = NewWorkflow(f.manager, f.store, nil, 0)

	_, err := f.workflow.CreateSuggestion(context.Background(), CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestCreateSuggestion_PersistenceFailure(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})
	f.workflow = NewWorkflow(f.manager, failingStore{f.store}, f.gen, time.Second)

	_, err := f.workflow.CreateSuggestion(context.Background(), CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Equal(t, "failed to save suggestion", Message(err), "cause is not exposed")
}

func TestGetSuggestion_NotFound(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})

	_, err := f.workflow.GetSuggestion(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, Message(err), "missing")
}

func TestListSuggestions(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})
	ctx := context.Background()

	all, err := f.workflow.ListSuggestions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	other, err := f.manager.CreateIssue(ctx, CreateIssueInput{Title: "t", Description: "d"}, f.alice)
	require.NoError(t, err)
	for _, id := range []string{f.issue.ID, other.ID, other.ID} {
		_, err := f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: id}, f.alice)
		require.NoError(t, err)
	}

	all, err = f.workflow.ListSuggestions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forOther, err := f.workflow.ListSuggestionsForIssue(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, forOther, 2)

	_, err = f.workflow.ListSuggestionsForIssue(ctx, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDeleteIssue_RemovesSuggestions(t *testing.T) {
	f := newWorkflowFixture(t, &fakeGenerator{text: "advice"})
	ctx := context.Background()

	sg, err := f.workflow.CreateSuggestion(ctx, CreateSuggestionInput{IssueID: f.issue.ID}, f.alice)
	require.NoError(t, err)
	require.NoError(t, f.manager.DeleteIssue(ctx, f.issue.ID, f.alice))

	_, err = f.workflow.GetSuggestion(ctx, sg.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "internal error", Message(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))

	cause := errors.New("cause")
	err := upstreamError("failed", cause)
	assert.True(t, IsKind(err, KindUpstream))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed: cause", err.Error())
	assert.Equal(t, "failed", Message(err))
}
