package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"market_scanner/internal/models"
	"market_scanner/internal/modules/settings/service"
)

const usersYAML = `users:
  - user_id: 1
    name: alice
    active_long: true
    active_short: true
    admin: true
    shared:
      timeframe: 15m
      ema_slow: 50
    short:
      tp3_rr: 4
      removed_param: 1
  - user_id: 2
    name: bob
    active_long: true
    subscription_until: 2025-01-01T00:00:00Z
  - user_id: 3
    name: carol
`

func newStore(t *testing.T, content string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return New(path, models.DefaultScanConfig()).WithClock(func() time.Time { return now }), path
}

func TestDueUsers(t *testing.T) {
	s, _ := newStore(t, usersYAML)

	jobs, err := s.DueUsers(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].UserID != 1 || jobs[0].Direction != models.Long || jobs[0].Config.Timeframe != "15m" {
		t.Errorf("unexpected first job %+v", jobs[0])
	}
	if jobs[1].Direction != models.Short || jobs[1].Config.TP3RR != 4 {
		t.Errorf("expected short job with tp3 4, got %+v", jobs[1])
	}
	// пустой shared у bob заполняется дефолтами
	if jobs[2].UserID != 2 || jobs[2].Config.Timeframe != models.DefaultScanConfig().Timeframe {
		t.Errorf("unexpected bob job %+v", jobs[2])
	}
}

func TestCheckAccess(t *testing.T) {
	s, _ := newStore(t, usersYAML)

	tests := []struct {
		name    string
		userID  int64
		allowed bool
		status  models.AccessStatus
	}{
		{name: "admin", userID: 1, allowed: true, status: models.AccessActive},
		{name: "expired", userID: 2, allowed: false, status: models.AccessExpired},
		{name: "no subscription", userID: 3, allowed: false, status: models.AccessNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, st, err := s.CheckAccess(context.Background(), tt.userID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if ok != tt.allowed || st != tt.status {
				t.Errorf("expected %v/%s, got %v/%s", tt.allowed, tt.status, ok, st)
			}
		})
	}

	if _, _, err := s.CheckAccess(context.Background(), 99); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeactivatePersists(t *testing.T) {
	s, path := newStore(t, usersYAML)
	ctx := context.Background()

	if err := s.Deactivate(ctx, 2); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	reloaded := New(path, models.DefaultScanConfig())
	u, err := reloaded.Get(ctx, 2)
	if err != nil {
		t.Fatalf("expected user, got %v", err)
	}
	if u.Active() {
		t.Error("expected user to be inactive after reload")
	}
	if u.SubscriptionUntil == nil || !u.SubscriptionUntil.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected subscription to survive, got %v", u.SubscriptionUntil)
	}

	if err := s.Deactivate(ctx, 99); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndGet(t *testing.T) {
	s, _ := newStore(t, "")
	ctx := context.Background()

	if _, err := s.Get(ctx, 5); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	u := models.NewUserSettings(5, "dave", models.DefaultScanConfig())
	u.ActiveShort = true
	if err := s.Save(ctx, u); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// внешняя мутация не видна хранилищу
	u.ActiveShort = false

	got, err := s.Get(ctx, 5)
	if err != nil {
		t.Fatalf("expected user, got %v", err)
	}
	if !got.ActiveShort || got.Name != "dave" {
		t.Errorf("unexpected stored user %+v", got)
	}

	cfg, err := s.EffectiveConfig(ctx, 5, models.Short)
	if err != nil {
		t.Fatalf("expected config, got %v", err)
	}
	if cfg.EMASlow != models.DefaultScanConfig().EMASlow {
		t.Errorf("expected default ema_slow, got %d", cfg.EMASlow)
	}
}

func TestBrokenFile(t *testing.T) {
	s, _ := newStore(t, "users: [ {")
	if _, err := s.DueUsers(context.Background(), time.Now()); err == nil {
		t.Error("expected decode error")
	}
}
