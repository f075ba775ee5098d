// Package sqlite is the bounty store on the pure-Go sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mohtion/mohtion/internal/storage/migrations"
	"github.com/mohtion/mohtion/internal/types"
)

// ErrNotFound is returned when a bounty ID is unknown
var ErrNotFound = errors.New("bounty not found")

// timeLayout sorts lexicographically, so range queries work on TEXT columns
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Filter narrows ListBounties. Zero values match everything; Limit 0 means no limit.
type Filter struct {
	Owner  string
	Repo   string
	Status types.BountyStatus
	Limit  int
}

// SQLiteStorage stores bounties in a single sqlite file
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and migrates it
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL lets the history command read while workers write
	dsn := "file:" + filepath.ToSlash(path) + "?" + url.Values{
		"_pragma": {"journal_mode(WAL)", "busy_timeout(5000)", "foreign_keys(ON)"},
	}.Encode()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.NewManager(schema...).Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveBounty inserts or replaces a bounty by ID
func (s *SQLiteStorage) SaveBounty(ctx context.Context, b *types.BountyResult) error {
	if b.ID == "" {
		return fmt.Errorf("bounty has no ID")
	}
	target, err := json.Marshal(b.Target)
	if err != nil {
		return fmt.Errorf("failed to encode target: %w", err)
	}

	var completed sql.NullString
	if b.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*b.CompletedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bounties (
			id, owner, repo, status, branch_name,
			file_path, kind, severity, target_json,
			started_at, completed_at, pr_url, pr_number,
			original_code, candidate_code, summary,
			test_passed, test_output, retry_count, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			pr_url = excluded.pr_url,
			pr_number = excluded.pr_number,
			candidate_code = excluded.candidate_code,
			summary = excluded.summary,
			test_passed = excluded.test_passed,
			test_output = excluded.test_output,
			retry_count = excluded.retry_count,
			error_message = excluded.error_message
	`,
		b.ID, b.Owner, b.Repo, string(b.Status), b.BranchName,
		b.Target.FilePath, string(b.Target.Kind), b.Target.Severity, string(target),
		formatTime(b.StartedAt), completed, b.PRURL, b.PRNumber,
		b.OriginalCode, b.CandidateCode, b.Summary,
		b.TestPassed, b.TestOutput, b.RetryCount, b.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save bounty %s: %w", b.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, owner, repo, status, branch_name, target_json,
		started_at, completed_at, pr_url, pr_number,
		original_code, candidate_code, summary,
		test_passed, test_output, retry_count, error_message
	FROM bounties`

// GetBounty loads one bounty
func (s *SQLiteStorage) GetBounty(ctx context.Context, id string) (*types.BountyResult, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	b, err := scanBounty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bounty %s: %w", id, err)
	}
	return b, nil
}

// ListBounties returns matching bounties, newest first
func (s *SQLiteStorage) ListBounties(ctx context.Context, filter Filter) ([]*types.BountyResult, error) {
	var where []string
	var args []any
	if filter.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, filter.Owner)
	}
	if filter.Repo != "" {
		where = append(where, "repo = ?")
		args = append(args, filter.Repo)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.BountyResult
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read bounty: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountSince counts attempts against owner/repo started at or after since
func (s *SQLiteStorage) CountSince(ctx context.Context, owner, repo string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bounties WHERE owner = ? AND repo = ? AND started_at >= ?",
		owner, repo, formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bounties: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBounty(row rowScanner) (*types.BountyResult, error) {
	var (
		b         types.BountyResult
		status    string
		target    string
		started   string
		completed sql.NullString
	)
	if err := row.Scan(
		&b.ID, &b.Owner, &b.Repo, &status, &b.BranchName, &target,
		&started, &completed, &b.PRURL, &b.PRNumber,
		&b.OriginalCode, &b.CandidateCode, &b.Summary,
		&b.TestPassed, &b.TestOutput, &b.RetryCount, &b.ErrorMessage,
	); err != nil {
		return nil, err
	}

	b.Status = types.BountyStatus(status)
	if err := json.Unmarshal([]byte(target), &b.Target); err != nil {
		return nil, fmt.Errorf("corrupt target for %s: %w", b.ID, err)
	}
	var err error
	if b.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		b.CompletedAt = &t
	}
	return &b, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
