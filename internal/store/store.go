// Package store keeps the cursor and the publication history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ReactorcoreGames/BlueskyAutoPoster/internal/cursor"
)

// Publication statuses.
const (
	StatusPublished = "published"
	StatusSkipped   = "skipped"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Publication is one history row: a record that was posted or skipped.
type Publication struct {
	ID        int64
	RunID     string
	Index     int // position in the post list
	SourceRow int // row in the source file
	Title     string
	URL       string
	Status    string
	PostURI   string
	PostCID   string
	Message   string
	CreatedAt time.Time
}

type PublicationInput struct {
	RunID     string
	Index     int
	SourceRow int
	Title     string
	URL       string
	Status    string
	PostURI   string
	PostCID   string
	Message   string
	CreatedAt time.Time
}

// Summary aggregates the history.
type Summary struct {
	Published       int
	Skipped         int
	LastPublishedAt time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One process, one connection; keeps read-after-write trivially true.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the saved cursor, or index 0 before the first save.
func (s *Store) Load(ctx context.Context) (cursor.Cursor, error) {
	info, err := s.Inspect(ctx)
	if err != nil {
		return cursor.Cursor{}, err
	}
	return info.Cursor, nil
}

func (s *Store) Inspect(ctx context.Context) (cursor.Info, error) {
	if s == nil || s.db == nil {
		return cursor.Info{}, errors.New("store is not initialized")
	}

	var (
		next      int
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, "SELECT next_index, updated_at FROM cursor WHERE id = 1").Scan(&next, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cursor.Info{}, nil
	}
	if err != nil {
		return cursor.Info{}, fmt.Errorf("load cursor: %w", err)
	}

	ts, err := parseTime(updatedAt)
	if err != nil {
		return cursor.Info{}, fmt.Errorf("parse cursor updated_at: %w", err)
	}
	return cursor.Info{Cursor: cursor.Cursor{Index: next}, UpdatedAt: ts}, nil
}

// Save overwrites the cursor.
func (s *Store) Save(ctx context.Context, c cursor.Cursor) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if c.Index < 0 {
		return fmt.Errorf("invalid cursor index %d", c.Index)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursor (id, next_index, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			next_index = excluded.next_index,
			updated_at = excluded.updated_at
	`, c.Index, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (s *Store) RecordPublication(ctx context.Context, in PublicationInput) (Publication, error) {
	if s == nil || s.db == nil {
		return Publication{}, errors.New("store is not initialized")
	}
	if strings.TrimSpace(in.RunID) == "" {
		return Publication{}, errors.New("run_id is required")
	}
	if strings.TrimSpace(in.URL) == "" {
		return Publication{}, errors.New("url is required")
	}
	switch in.Status {
	case StatusPublished:
		if in.PostURI == "" {
			return Publication{}, errors.New("post_uri is required for published rows")
		}
	case StatusSkipped:
	default:
		return Publication{}, fmt.Errorf("unknown status %q", in.Status)
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (
			run_id, row_index, source_row, title, url, status, post_uri, post_cid, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.RunID,
		in.Index,
		in.SourceRow,
		in.Title,
		strings.TrimSpace(in.URL),
		in.Status,
		nullString(in.PostURI),
		nullString(in.PostCID),
		nullString(in.Message),
		formatTime(in.CreatedAt),
	)
	if err != nil {
		return Publication{}, fmt.Errorf("insert publication: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Publication{}, fmt.Errorf("publication id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, row_index, source_row, title, url, status, post_uri, post_cid, message, created_at
		FROM publications
		WHERE id = ?
	`, id)
	return scanPublication(row)
}

// ListPublications returns the newest rows first. limit <= 0 means all.
func (s *Store) ListPublications(ctx context.Context, limit int) ([]Publication, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	query := `
		SELECT id, run_id, row_index, source_row, title, url, status, post_uri, post_cid, message, created_at
		FROM publications
		ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pubs []Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publications: %w", err)
	}
	return pubs, nil
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	if s == nil || s.db == nil {
		return Summary{}, errors.New("store is not initialized")
	}

	var (
		sum  Summary
		last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			MAX(CASE WHEN status = 'published' THEN created_at END)
		FROM publications
	`).Scan(&sum.Published, &sum.Skipped, &last)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize publications: %w", err)
	}
	if last.Valid {
		sum.LastPublishedAt, err = parseTime(last.String)
		if err != nil {
			return Summary{}, fmt.Errorf("parse last published: %w", err)
		}
	}
	return sum, nil
}

// PruneOld deletes history rows older than retainDays. The cursor is never
// touched. Returns the number of rows removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(s.now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM publications WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune publications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPublication(scanner rowScanner) (Publication, error) {
	var (
		p                      Publication
		uriVal, cidVal, msgVal sql.NullString
		createdAt              string
	)
	if err := scanner.Scan(
		&p.ID,
		&p.RunID,
		&p.Index,
		&p.SourceRow,
		&p.Title,
		&p.URL,
		&p.Status,
		&uriVal,
		&cidVal,
		&msgVal,
		&createdAt,
	); err != nil {
		return Publication{}, fmt.Errorf("scan publication: %w", err)
	}

	p.PostURI = uriVal.String
	p.PostCID = cidVal.String
	p.Message = msgVal.String

	var err error
	p.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return Publication{}, fmt.Errorf("parse created_at: %w", err)
	}
	return p, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
