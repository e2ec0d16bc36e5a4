package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

type SQLiteOption func(*SQLite)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLite) { s.now = now }
}

func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS headshot_generations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			reference_images TEXT NOT NULL DEFAULT '[]',
			selected_style TEXT NOT NULL,
			selected_background TEXT NOT NULL,
			generated_images TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_user_created
			ON headshot_generations(user_id, created_at DESC);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Create(ctx context.Context, r Record) error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: id and user id are required", ErrInvalidRecord)
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, r.Status)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	refs, err := encodeList(r.ReferenceImages)
	if err != nil {
		return err
	}
	generated, err := encodeList(r.GeneratedImages)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO headshot_generations
		(id, user_id, reference_images, selected_style, selected_background, generated_images, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		r.ID, r.UserID, refs, r.SelectedStyle, r.SelectedBackground, generated, string(r.Status), r.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// Update applies p inside a transaction. Status changes must follow
// Status.CanTransition; a record that reached completed or failed is frozen.
func (s *SQLite) Update(ctx context.Context, id string, p Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM headshot_generations WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load generation: %w", err)
	}

	from := Status(current)
	if from.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrStatusTransition, id, from)
	}

	sets := []string{}
	args := []any{}
	if p.Status != nil && *p.Status != from {
		if !from.CanTransition(*p.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrStatusTransition, from, *p.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.GeneratedImages != nil {
		generated, err := encodeList(p.GeneratedImages)
		if err != nil {
			return err
		}
		sets = append(sets, "generated_images = ?")
		args = append(args, generated)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := `UPDATE headshot_generations SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update generation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, id string) (Record, error) {
	query := `
	SELECT id, user_id, reference_images, selected_style, selected_background, generated_images, status, created_at
	FROM headshot_generations
	WHERE id = ?
	`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns the user's records, most recent first.
func (s *SQLite) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT id, user_id, reference_images, selected_style, selected_background, generated_images, status, created_at
	FROM headshot_generations
	WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, q.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r         Record
		refs      string
		generated string
		status    string
		createdNs int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &refs, &r.SelectedStyle, &r.SelectedBackground, &generated, &status, &createdNs); err != nil {
		return Record{}, err
	}

	var err error
	if r.ReferenceImages, err = decodeList(refs); err != nil {
		return Record{}, fmt.Errorf("decode reference images of %s: %w", r.ID, err)
	}
	if r.GeneratedImages, err = decodeList(generated); err != nil {
		return Record{}, fmt.Errorf("decode generated images of %s: %w", r.ID, err)
	}
	r.Status = Status(status)
	r.CreatedAt = time.Unix(0, createdNs).UTC()
	return r, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode url list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
