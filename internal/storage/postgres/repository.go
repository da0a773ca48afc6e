package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
)

const (
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS manga (
	scope_id     TEXT NOT NULL,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL,
	last_chapter TEXT NOT NULL,
	PRIMARY KEY (scope_id, title)
);
CREATE TABLE IF NOT EXISTS manga_meta (
	scope_id        TEXT PRIMARY KEY,
	last_check_date TEXT NOT NULL
);
`

type mangaRow struct {
	Title       string `db:"title"`
	URL         string `db:"url"`
	LastChapter string `db:"last_chapter"`
}

// Repository хранит мангу в PostgreSQL, строки привязаны к scope.
type Repository struct {
	db             *sqlx.DB
	scope          string
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(dsn, scope string, commandTimeoutMS int, logger *observability.Logger) (*Repository, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newRepository(db, scope, commandTimeoutMS, logger), nil
}

func newRepository(db *sqlx.DB, scope string, commandTimeoutMS int, logger *observability.Logger) *Repository {
	return &Repository{
		db:             db,
		scope:          scope,
		commandTimeout: time.Duration(commandTimeoutMS) * time.Millisecond,
		logger:         logger,
	}
}

func (r *Repository) Setup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (r *Repository) Load(ctx context.Context) (*storage.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	var rows []mangaRow
	query := `SELECT title, url, last_chapter FROM manga WHERE scope_id = $1`
	if err := r.db.SelectContext(ctx, &rows, query, r.scope); err != nil {
		return nil, fmt.Errorf("failed to load manga: %w", err)
	}

	snap := &storage.Snapshot{Manga: make(map[string]storage.Entry, len(rows))}
	for _, row := range rows {
		snap.Manga[row.Title] = storage.Entry{URL: row.URL, LastChapter: chapter.ParseIndicator(row.LastChapter)}
	}

	err := r.db.GetContext(ctx, &snap.LastCheckDate,
		`SELECT last_check_date FROM manga_meta WHERE scope_id = $1`, r.scope)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load last check date: %w", err)
	}

	return snap, nil
}

func (r *Repository) AddManga(ctx context.Context, title, url string) error {
	query := `
		INSERT INTO manga (scope_id, title, url, last_chapter)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope_id, title) DO NOTHING
	`

	n, err := r.exec(ctx, query, r.scope, title, url, chapter.Unknown.String())
	if err != nil {
		return fmt.Errorf("failed to add manga: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrExists)
	}
	return nil
}

func (r *Repository) RemoveManga(ctx context.Context, title string) error {
	n, err := r.exec(ctx, `DELETE FROM manga WHERE scope_id = $1 AND title = $2`, r.scope, title)
	if err != nil {
		return fmt.Errorf("failed to remove manga: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) UpdateChapter(ctx context.Context, title string, ind chapter.Indicator) error {
	n, err := r.exec(ctx, `UPDATE manga SET last_chapter = $3 WHERE scope_id = $1 AND title = $2`,
		r.scope, title, ind.String())
	if err != nil {
		return fmt.Errorf("failed to update chapter: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) SetLastCheckDate(ctx context.Context, date string) error {
	query := `
		INSERT INTO manga_meta (scope_id, last_check_date)
		VALUES ($1, $2)
		ON CONFLICT (scope_id) DO UPDATE SET last_check_date = EXCLUDED.last_check_date
	`

	if _, err := r.exec(ctx, query, r.scope, date); err != nil {
		return fmt.Errorf("failed to set last check date: %w", err)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
