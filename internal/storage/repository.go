package storage

import (
	"context"
	"errors"
	"sort"

	"manga-tracker/internal/chapter"
)

var (
	// манги с таким названием нет в хранилище
	ErrNotFound = errors.New("manga not found")
	// манга с таким названием уже отслеживается
	ErrExists = errors.New("manga already exists")
	// хранилище занято другим процессом
	ErrLocked = errors.New("storage is locked by another process")
)

// Entry отслеживаемая манга
type Entry struct {
	URL         string
	LastChapter chapter.Indicator
}

// Snapshot состояние хранилища на момент чтения
type Snapshot struct {
	Manga         map[string]Entry
	LastCheckDate string // YYYY-MM-DD, пусто если проверок ещё не было
}

// Items возвращает мангу в виде элементов для проверки, отсортированную по названию
func (s *Snapshot) Items() []chapter.Item {
	items := make([]chapter.Item, 0, len(s.Manga))
	for title, e := range s.Manga {
		items = append(items, chapter.Item{Title: title, URL: e.URL})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Title < items[j].Title })
	return items
}

// Titles возвращает названия в алфавитном порядке
func (s *Snapshot) Titles() []string {
	titles := make([]string, 0, len(s.Manga))
	for title := range s.Manga {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// Repository интерфейс хранилища отслеживаемой манги
type Repository interface {
	// Setup создаёт таблицы/файл при первом запуске, повторный вызов безопасен
	Setup(ctx context.Context) error

	Load(ctx context.Context) (*Snapshot, error)

	// AddManga добавляет мангу с неизвестной главой; ErrExists если название занято
	AddManga(ctx context.Context, title, url string) error

	// RemoveManga удаляет мангу; ErrNotFound если её нет
	RemoveManga(ctx context.Context, title string) error

	UpdateChapter(ctx context.Context, title string, ind chapter.Indicator) error

	SetLastCheckDate(ctx context.Context, date string) error

	Close() error
}
