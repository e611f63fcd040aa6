package service

import (
	"context"
	"errors"
	"time"

	"market_scanner/internal/models"
)

var ErrNotFound = errors.New("user settings not found")

// Store: хранилище пользовательских настроек.
// Кандидатов отдаёт на каждый проход, "пора ли сканировать" решает планировщик.
type Store interface {
	Get(ctx context.Context, userID int64) (*models.UserSettings, error)
	Save(ctx context.Context, user *models.UserSettings) error

	EffectiveConfig(ctx context.Context, userID int64, dir models.Direction) (models.ScanConfig, error)
	DueUsers(ctx context.Context, now time.Time) ([]models.ScanJob, error)
	CheckAccess(ctx context.Context, userID int64) (bool, models.AccessStatus, error)
	Deactivate(ctx context.Context, userID int64) error
}

// JobsOf раскладывает активных пользователей на задания.
func JobsOf(users []*models.UserSettings) []models.ScanJob {
	var jobs []models.ScanJob
	for _, u := range users {
		if u == nil || !u.Active() {
			continue
		}
		jobs = append(jobs, u.Jobs()...)
	}
	return jobs
}
