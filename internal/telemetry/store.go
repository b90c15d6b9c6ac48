package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/store"
)

const storeScopeName = "github.com/joescharf/fixit/store"

// InstrumentedStore wraps store.Store with OTel tracing and metrics.
// Every method gets a span and is counted in fixit.store.* metrics.
type InstrumentedStore struct {
	inner  store.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ store.Store = (*InstrumentedStore)(nil)

// WrapStore returns s decorated with OTel instrumentation. When telemetry is
// disabled, s is returned as-is.
func WrapStore(s store.Store) store.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s store.Store) *InstrumentedStore {
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("fixit.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("fixit.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("fixit.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storeScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// Unwrap returns the underlying store.
func (s *InstrumentedStore) Unwrap() store.Store { return s.inner }

// op starts a span and counts the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and the error if any.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, name string) {
	attr := metric.WithAttributes(attribute.String("db.operation", name))
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, attr)
	}
	span.End()
}

func (s *InstrumentedStore) CreateUser(ctx context.Context, u *models.User) error {
	ctx, span, t := s.op(ctx, "CreateUser")
	err := s.inner.CreateUser(ctx, u)
	s.done(ctx, span, t, err, "CreateUser")
	return err
}

func (s *InstrumentedStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, span, t := s.op(ctx, "GetUser", attribute.String("fixit.user.id", id))
	u, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err, "GetUser")
	return u, err
}

func (s *InstrumentedStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	ctx, span, t := s.op(ctx, "ListUsers")
	users, err := s.inner.ListUsers(ctx)
	span.SetAttributes(attribute.Int("fixit.result.count", len(users)))
	s.done(ctx, span, t, err, "ListUsers")
	return users, err
}

func (s *InstrumentedStore) UserExists(ctx context.Context, id string) (bool, error) {
	ctx, span, t := s.op(ctx, "UserExists", attribute.String("fixit.user.id", id))
	ok, err := s.inner.UserExists(ctx, id)
	s.done(ctx, span, t, err, "UserExists")
	return ok, err
}

func (s *InstrumentedStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	ctx, span, t := s.op(ctx, "CreateIssue")
	err := s.inner.CreateIssue(ctx, issue)
	if err == nil {
		span.SetAttributes(attribute.String("fixit.issue.id", issue.ID))
	}
	s.done(ctx, span, t, err, "CreateIssue")
	return err
}

func (s *InstrumentedStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	ctx, span, t := s.op(ctx, "GetIssue", attribute.String("fixit.issue.id", id))
	issue, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, "GetIssue")
	return issue, err
}

func (s *InstrumentedStore) ListIssues(ctx context.Context, filter store.IssueListFilter) ([]*models.Issue, error) {
	ctx, span, t := s.op(ctx, "ListIssues")
	issues, err := s.inner.ListIssues(ctx, filter)
	span.SetAttributes(attribute.Int("fixit.result.count", len(issues)))
	s.done(ctx, span, t, err, "ListIssues")
	return issues, err
}

func (s *InstrumentedStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	ctx, span, t := s.op(ctx, "UpdateIssue", attribute.String("fixit.issue.id", id))
	issue, err := s.inner.UpdateIssue(ctx, id, patch)
	s.done(ctx, span, t, err, "UpdateIssue")
	return issue, err
}

func (s *InstrumentedStore) DeleteIssue(ctx context.Context, id string) error {
	ctx, span, t := s.op(ctx, "DeleteIssue", attribute.String("fixit.issue.id", id))
	err := s.inner.DeleteIssue(ctx, id)
	s.done(ctx, span, t, err, "DeleteIssue")
	return err
}

func (s *InstrumentedStore) CreateSuggestion(ctx context.Context, sg *models.Suggestion) error {
	ctx, span, t := s.op(ctx, "CreateSuggestion", attribute.String("fixit.issue.id", sg.IssueID))
	err := s.inner.CreateSuggestion(ctx, sg)
	s.done(ctx, span, t, err, "CreateSuggestion")
	return err
}

func (s *InstrumentedStore) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	ctx, span, t := s.op(ctx, "GetSuggestion", attribute.String("fixit.suggestion.id", id))
	sg, err := s.inner.GetSuggestion(ctx, id)
	s.done(ctx, span, t, err, "GetSuggestion")
	return sg, err
}

func (s *InstrumentedStore) ListSuggestions(ctx context.Context, issueID string) ([]*models.Suggestion, error) {
	ctx, span, t := s.op(ctx, "ListSuggestions", attribute.String("fixit.issue.id", issueID))
	list, err := s.inner.ListSuggestions(ctx, issueID)
	span.SetAttributes(attribute.Int("fixit.result.count", len(list)))
	s.done(ctx, span, t, err, "ListSuggestions")
	return list, err
}

func (s *InstrumentedStore) Migrate(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Migrate")
	err := s.inner.Migrate(ctx)
	s.done(ctx, span, t, err, "Migrate")
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
