package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return newRepository(sqlx.NewDb(db, "postgres"), "42", 1000, observability.NewNop()), mock
}

func TestLoad(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT title, url, last_chapter FROM manga WHERE scope_id = \$1`).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"title", "url", "last_chapter"}).
			AddRow("Berserk", "https://mangabuff.ru/manga/berserk", "374.5").
			AddRow("Solo", "https://com-x.life/1-solo.html", "невідомо"))
	mock.ExpectQuery(`SELECT last_check_date FROM manga_meta`).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"last_check_date"}).AddRow("2026-10-18"))

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18", snap.LastCheckDate)
	assert.Equal(t, chapter.New(374.5), snap.Manga["Berserk"].LastChapter)
	assert.False(t, snap.Manga["Solo"].LastChapter.Known())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadWithoutMeta(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT title, url, last_chapter FROM manga`).
		WillReturnRows(sqlmock.NewRows([]string{"title", "url", "last_chapter"}))
	mock.ExpectQuery(`SELECT last_check_date FROM manga_meta`).
		WillReturnRows(sqlmock.NewRows([]string{"last_check_date"}))

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Manga)
	assert.Equal(t, "", snap.LastCheckDate)
}

func TestMutations(t *testing.T) {
	tests := []struct {
		name     string
		expect   func(mock sqlmock.Sqlmock)
		run      func(r *Repository) error
		expected error
	}{
		{
			name: "add",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO manga`).WithArgs("42", "A", "https://a", "unknown").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			run: func(r *Repository) error { return r.AddManga(context.Background(), "A", "https://a") },
		},
		{
			name: "add duplicate",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO manga`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			run:      func(r *Repository) error { return r.AddManga(context.Background(), "A", "https://a") },
			expected: storage.ErrExists,
		},
		{
			name: "remove missing",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM manga`).WithArgs("42", "A").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			run:      func(r *Repository) error { return r.RemoveManga(context.Background(), "A") },
			expected: storage.ErrNotFound,
		},
		{
			name: "update chapter",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE manga SET last_chapter`).WithArgs("42", "A", "12").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			run: func(r *Repository) error { return r.UpdateChapter(context.Background(), "A", chapter.New(12)) },
		},
		{
			name: "set date",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO manga_meta`).WithArgs("42", "2026-10-19").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			run: func(r *Repository) error { return r.SetLastCheckDate(context.Background(), "2026-10-19") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.expect(mock)

			err := tt.run(repo)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecErrorIsWrapped(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(`UPDATE manga`).WillReturnError(boom)

	err := repo.UpdateChapter(context.Background(), "A", chapter.New(1))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}
