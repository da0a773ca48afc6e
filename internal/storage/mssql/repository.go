package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
)

// Repository хранит мангу в SQL Server. Все строки привязаны к scope
// (id владельца списка, обычно chat id в Telegram).
type Repository struct {
	db             *sql.DB
	scope          string
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(dsn, scope string, commandTimeoutMS int, logger *observability.Logger) (*Repository, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Тестируем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newRepository(db, scope, commandTimeoutMS, logger), nil
}

func newRepository(db *sql.DB, scope string, commandTimeoutMS int, logger *observability.Logger) *Repository {
	return &Repository{
		db:             db,
		scope:          scope,
		commandTimeout: time.Duration(commandTimeoutMS) * time.Millisecond,
		logger:         logger,
	}
}

// Setup создаёт таблицы, если их ещё нет
func (r *Repository) Setup(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `
		IF OBJECT_ID(N'dbo.TblManga', N'U') IS NULL
		BEGIN
			CREATE TABLE dbo.TblManga (
				[ScopeID]     NVARCHAR(64)   NOT NULL,
				[Title]       NVARCHAR(400)  NOT NULL,
				[URL]         NVARCHAR(2000) NOT NULL,
				[LastChapter] NVARCHAR(32)   NOT NULL,
				CONSTRAINT PK_TblManga PRIMARY KEY ([ScopeID], [Title])
			)
		END;
		IF OBJECT_ID(N'dbo.TblMangaMeta', N'U') IS NULL
		BEGIN
			CREATE TABLE dbo.TblMangaMeta (
				[ScopeID]       NVARCHAR(64) NOT NULL PRIMARY KEY,
				[LastCheckDate] NVARCHAR(10) NOT NULL
			)
		END;
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Load читает всю мангу и дату последней проверки для scope
func (r *Repository) Load(ctx context.Context) (*storage.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := `SELECT [Title], [URL], [LastChapter] FROM TblManga WHERE [ScopeID] = @ScopeID`

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer r.closeStmt(stmt)

	rows, err := stmt.QueryContext(ctx, sql.Named("ScopeID", r.scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query database: %w", err)
	}
	defer rows.Close()

	snap := &storage.Snapshot{Manga: make(map[string]storage.Entry)}
	for rows.Next() {
		var title, url, last string
		if err := rows.Scan(&title, &url, &last); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		snap.Manga[title] = storage.Entry{URL: url, LastChapter: chapter.ParseIndicator(last)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	date, err := r.lastCheckDate(ctx)
	if err != nil {
		return nil, err
	}
	snap.LastCheckDate = date

	return snap, nil
}

func (r *Repository) AddManga(ctx context.Context, title, url string) error {
	query := `
		INSERT INTO TblManga ([ScopeID], [Title], [URL], [LastChapter])
		SELECT @ScopeID, @Title, @URL, @LastChapter
		WHERE NOT EXISTS (SELECT 1 FROM TblManga WHERE [ScopeID] = @ScopeID AND [Title] = @Title)
	`

	n, err := r.exec(ctx, query,
		sql.Named("ScopeID", r.scope),
		sql.Named("Title", title),
		sql.Named("URL", url),
		sql.Named("LastChapter", chapter.Unknown.String()),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrExists)
	}
	return nil
}

func (r *Repository) RemoveManga(ctx context.Context, title string) error {
	query := `DELETE FROM TblManga WHERE [ScopeID] = @ScopeID AND [Title] = @Title`

	n, err := r.exec(ctx, query, sql.Named("ScopeID", r.scope), sql.Named("Title", title))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) UpdateChapter(ctx context.Context, title string, ind chapter.Indicator) error {
	query := `UPDATE TblManga SET [LastChapter] = @LastChapter WHERE [ScopeID] = @ScopeID AND [Title] = @Title`

	n, err := r.exec(ctx, query,
		sql.Named("LastChapter", ind.String()),
		sql.Named("ScopeID", r.scope),
		sql.Named("Title", title),
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) SetLastCheckDate(ctx context.Context, date string) error {
	// MERGE statement для MS SQL
	query := `
		MERGE INTO TblMangaMeta AS target
		USING (SELECT @ScopeID AS ScopeID) AS source
		ON target.[ScopeID] = source.ScopeID
		WHEN MATCHED THEN
			UPDATE SET [LastCheckDate] = @LastCheckDate
		WHEN NOT MATCHED THEN
			INSERT ([ScopeID], [LastCheckDate]) VALUES (@ScopeID, @LastCheckDate);
	`

	_, err := r.exec(ctx, query, sql.Named("ScopeID", r.scope), sql.Named("LastCheckDate", date))
	return err
}

func (r *Repository) lastCheckDate(ctx context.Context) (string, error) {
	query := `SELECT [LastCheckDate] FROM TblMangaMeta WHERE [ScopeID] = @ScopeID`

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer r.closeStmt(stmt)

	var date string
	err = stmt.QueryRowContext(ctx, sql.Named("ScopeID", r.scope)).Scan(&date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query database: %w", err)
	}
	return date, nil
}

// exec выполняет команду и возвращает число затронутых строк
func (r *Repository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer r.closeStmt(stmt)

	result, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (r *Repository) closeStmt(stmt *sql.Stmt) {
	if err := stmt.Close(); err != nil {
		r.logger.Error("Failed to close statement", "error", err.Error())
	}
}

// Close закрывает соединение с БД
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
