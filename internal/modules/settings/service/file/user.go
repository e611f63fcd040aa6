package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"market_scanner/internal/models"
	"market_scanner/internal/modules/settings/service"

	"gopkg.in/yaml.v2"
)

// Store: настройки в yaml-файле, для локального запуска.
type Store struct {
	path     string
	defaults models.ScanConfig
	now      func() time.Time

	mu     sync.Mutex
	cache  map[int64]*models.UserSettings
	loaded bool
}

func New(path string, defaults models.ScanConfig) *Store {
	return &Store{
		path:     path,
		defaults: defaults,
		now:      time.Now,
		cache:    make(map[int64]*models.UserSettings),
	}
}

// WithClock подменяет часы для проверки подписки.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Get(_ context.Context, userID int64) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	u, ok := s.cache[userID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return cloneUser(u)
}

func (s *Store) Save(_ context.Context, user *models.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	u, err := cloneUser(user)
	if err != nil {
		return err
	}
	s.cache[user.UserID] = u
	return s.saveLocked()
}

func (s *Store) EffectiveConfig(ctx context.Context, userID int64, dir models.Direction) (models.ScanConfig, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return models.ScanConfig{}, err
	}
	return u.Effective(dir), nil
}

func (s *Store) DueUsers(_ context.Context, _ time.Time) ([]models.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	users := make([]*models.UserSettings, 0, len(s.cache))
	for _, u := range s.cache {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return service.JobsOf(users), nil
}

func (s *Store) CheckAccess(ctx context.Context, userID int64) (bool, models.AccessStatus, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return false, models.AccessNone, err
	}
	st := u.Access(s.now())
	return st == models.AccessActive, st, nil
}

func (s *Store) Deactivate(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	u, ok := s.cache[userID]
	if !ok {
		return service.ErrNotFound
	}
	u.Deactivate()
	return s.saveLocked()
}

// ---- storage format ----

type snapshot struct {
	UpdatedAt time.Time              `yaml:"updated_at"`
	Users     []*models.UserSettings `yaml:"users"`
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}

	s.cache = make(map[int64]*models.UserSettings, len(snap.Users))
	for _, u := range snap.Users {
		if u == nil {
			continue
		}
		// пустой общий конфиг в файле: берём дефолты сервиса
		if u.Shared.Timeframe == "" && u.Shared.EMASlow == 0 {
			u.Shared = s.defaults
		}
		s.cache[u.UserID] = u
	}

	s.loaded = true
	return nil
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	users := make([]*models.UserSettings, 0, len(s.cache))
	for _, u := range s.cache {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	b, err := yaml.Marshal(&snapshot{UpdatedAt: s.now(), Users: users})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path) // атомарно
}

// clone чтобы никто извне не мутировал shared ptr
func cloneUser(in *models.UserSettings) (*models.UserSettings, error) {
	b, err := yaml.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out models.UserSettings
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
