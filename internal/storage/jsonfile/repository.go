package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"manga-tracker/internal/chapter"
	"manga-tracker/internal/observability"
	"manga-tracker/internal/storage"
)

type fileEntry struct {
	URL         *string `json:"url"`
	LastChapter *string `json:"last_chapter"`
}

type fileData struct {
	LastCheckDate *string               `json:"last_check_date"`
	Manga         map[string]*fileEntry `json:"manga"`
}

const (
	DefaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

// Repository хранит мангу в одном JSON-файле.
// Запись идёт через временный файл и rename, предыдущая версия копируется в .bak.
// Каждая операция берёт flock на <path>.lock, так что CLI и демон
// не затирают изменения друг друга.
type Repository struct {
	path        string
	mu          sync.Mutex
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      *observability.Logger
}

func NewRepository(path string, logger *observability.Logger) *Repository {
	return &Repository{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
		logger:      logger,
	}
}

func (r *Repository) backupPath() string { return r.path + ".bak" }
func (r *Repository) tempPath() string   { return r.path + ".tmp" }

func (r *Repository) Setup(ctx context.Context) error {
	return r.locked(ctx, func() error {
		_, err := r.read()
		return err
	})
}

func (r *Repository) Load(ctx context.Context) (*storage.Snapshot, error) {
	var data *fileData
	err := r.locked(ctx, func() error {
		var err error
		data, err = r.read()
		return err
	})
	if err != nil {
		return nil, err
	}

	snap := &storage.Snapshot{
		Manga:         make(map[string]storage.Entry, len(data.Manga)),
		LastCheckDate: *data.LastCheckDate,
	}
	for title, e := range data.Manga {
		snap.Manga[title] = storage.Entry{
			URL:         *e.URL,
			LastChapter: chapter.ParseIndicator(*e.LastChapter),
		}
	}
	return snap, nil
}

func (r *Repository) AddManga(ctx context.Context, title, url string) error {
	return r.modify(ctx, func(data *fileData) error {
		if _, ok := data.Manga[title]; ok {
			return fmt.Errorf("%q: %w", title, storage.ErrExists)
		}
		unknown := chapter.Unknown.String()
		data.Manga[title] = &fileEntry{URL: &url, LastChapter: &unknown}
		return nil
	})
}

func (r *Repository) RemoveManga(ctx context.Context, title string) error {
	return r.modify(ctx, func(data *fileData) error {
		if _, ok := data.Manga[title]; !ok {
			return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
		}
		delete(data.Manga, title)
		return nil
	})
}

func (r *Repository) UpdateChapter(ctx context.Context, title string, ind chapter.Indicator) error {
	return r.modify(ctx, func(data *fileData) error {
		e, ok := data.Manga[title]
		if !ok {
			return fmt.Errorf("%q: %w", title, storage.ErrNotFound)
		}
		v := ind.String()
		e.LastChapter = &v
		return nil
	})
}

func (r *Repository) SetLastCheckDate(ctx context.Context, date string) error {
	return r.modify(ctx, func(data *fileData) error {
		data.LastCheckDate = &date
		return nil
	})
}

func (r *Repository) Close() error { return nil }

func (r *Repository) modify(ctx context.Context, fn func(*fileData) error) error {
	return r.locked(ctx, func() error {
		data, err := r.read()
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
		return r.write(data)
	})
}

// locked выполняет fn под мьютексом и файловой блокировкой.
// Если блокировку не удалось взять за lockTimeout, возвращает storage.ErrLocked.
func (r *Repository) locked(ctx context.Context, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	ok, err := r.lock.TryLockContext(lctx, lockRetryDelay)
	if !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to lock %s: %w", r.lock.Path(), err)
		}
		return fmt.Errorf("%s: %w", r.lock.Path(), storage.ErrLocked)
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("Failed to unlock data file", "path", r.lock.Path(), "error", err.Error())
		}
	}()

	return fn()
}

// read загружает файл, создавая пустой при первом запуске.
// Если файл битый, пробует восстановиться из .bak.
func (r *Repository) read() (*fileData, error) {
	data, err := decodeFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		data = emptyData()
		if err := r.write(data); err != nil {
			return nil, err
		}
		r.logger.Info("Created empty data file", "path", r.path)
		return data, nil
	}
	if err == nil {
		return data, nil
	}

	r.logger.Warn("Data file is corrupted, trying backup", "path", r.path, "error", err.Error())
	restored, bakErr := decodeFile(r.backupPath())
	if bakErr != nil {
		return nil, fmt.Errorf("data file %s is corrupted and backup is unusable: %w", r.path, err)
	}
	r.logger.Info("Restored data from backup", "path", r.backupPath())
	return restored, nil
}

func (r *Repository) write(data *fileData) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// битый файл в .bak не копируем, иначе потеряем последнюю рабочую версию
	if _, err := decodeFile(r.path); err == nil {
		if err := copyFile(r.path, r.backupPath()); err != nil {
			return fmt.Errorf("failed to backup data file: %w", err)
		}
	}

	raw, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := os.WriteFile(r.tempPath(), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(r.tempPath(), r.path); err != nil {
		return fmt.Errorf("failed to replace data file: %w", err)
	}
	return nil
}

func emptyData() *fileData {
	date := ""
	return &fileData{LastCheckDate: &date, Manga: map[string]*fileEntry{}}
}

func decodeFile(path string) (*fileData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := validate(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// validate проверяет структуру:
// {"last_check_date": "", "manga": {"Название": {"url": "...", "last_chapter": "..."}}}
func validate(data *fileData) error {
	if data.LastCheckDate == nil || data.Manga == nil {
		return errors.New("invalid structure: last_check_date and manga are required")
	}
	for title, e := range data.Manga {
		if e == nil || e.URL == nil || e.LastChapter == nil {
			return fmt.Errorf("invalid structure: entry %q needs url and last_chapter", title)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
