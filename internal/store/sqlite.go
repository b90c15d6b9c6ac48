package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/fixit/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// sqlitePragmas is applied by the driver to every new connection, so a
// recycled connection keeps foreign keys (and the suggestion cascade) on.
const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func newID() string {
	return ulid.Make().String()
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, role, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) UserExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

// --- Issues ---

const issueColumns = `id, title, description, status, priority, creator_id, assignee_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var status string
	var priority, assignee sql.NullString
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &status, &priority,
		&issue.CreatorID, &assignee, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority.String)
	issue.AssigneeID = assignee.String
	return issue, nil
}

// CreateIssue persists a new issue. An empty status defaults to OPEN.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newID()
	}
	if issue.Status == "" {
		issue.Status = models.IssueStatusOpen
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, string(issue.Status),
		nullString(string(issue.Priority)), issue.CreatorID, nullString(issue.AssigneeID),
		issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var conditions []string
	var args []any

	if filter.CreatorID != "" {
		conditions = append(conditions, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY
		CASE status WHEN 'OPEN' THEN 0 WHEN 'IN_PROGRESS' THEN 1 WHEN 'RESOLVED' THEN 2 WHEN 'CLOSED' THEN 3 ELSE 4 END,
		CASE priority WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'LOW' THEN 3 ELSE 4 END,
		created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// UpdateIssue applies the non-nil fields of patch in a single statement and
// returns the stored record. Concurrent patches to the same issue resolve
// last-writer-wins per field.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("update issue %s: empty patch", id)
	}

	var sets []string
	var args []any
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, nullString(string(*patch.Priority)))
	}
	if patch.AssigneeID != nil {
		sets = append(sets, "assignee_id = ?")
		args = append(args, nullString(*patch.AssigneeID))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE issues SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return s.GetIssue(ctx, id)
}

// DeleteIssue removes an issue. Its suggestions are removed by the cascade.
func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Suggestions ---

func (s *SQLiteStore) CreateSuggestion(ctx context.Context, sg *models.Suggestion) error {
	if sg.ID == "" {
		sg.ID = newID()
	}
	sg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestions (id, issue_id, suggestion, model, created_at) VALUES (?, ?, ?, ?, ?)`,
		sg.ID, sg.IssueID, sg.Suggestion, sg.Model, sg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create suggestion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	sg := &models.Suggestion{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, issue_id, suggestion, model, created_at FROM suggestions WHERE id = ?`, id,
	).Scan(&sg.ID, &sg.IssueID, &sg.Suggestion, &sg.Model, &sg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return sg, nil
}

// ListSuggestions returns suggestions newest first. An empty issueID lists all.
func (s *SQLiteStore) ListSuggestions(ctx context.Context, issueID string) ([]*models.Suggestion, error) {
	query := `SELECT id, issue_id, suggestion, model, created_at FROM suggestions`
	var args []any
	if issueID != "" {
		query += " WHERE issue_id = ?"
		args = append(args, issueID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Suggestion
	for rows.Next() {
		sg := &models.Suggestion{}
		if err := rows.Scan(&sg.ID, &sg.IssueID, &sg.Suggestion, &sg.Model, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}
