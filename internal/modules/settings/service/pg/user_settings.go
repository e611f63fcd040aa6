package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market_scanner/internal/models"
	"market_scanner/internal/modules/settings/service"
	"market_scanner/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

const (
	queryGet = `SELECT id, chatid, name, settings FROM user_settings WHERE chatid = $1`

	queryUpsert = `INSERT INTO user_settings (chatid, name, settings)
VALUES ($1, $2, $3)
ON CONFLICT (chatid) DO UPDATE SET name = EXCLUDED.name, settings = EXCLUDED.settings`

	queryActive = `SELECT id, chatid, name, settings FROM user_settings
WHERE COALESCE((settings->>'active_long')::bool, false) OR COALESCE((settings->>'active_short')::bool, false)
ORDER BY chatid`

	queryDeactivate = `UPDATE user_settings
SET settings = settings || '{"active_long": false, "active_short": false}'::jsonb
WHERE chatid = $1`
)

// Store: настройки в Postgres, сам конфиг лежит в JSONB.
type Store struct {
	db       db.TxManager
	defaults models.ScanConfig
	now      func() time.Time
}

func New(tx db.TxManager, defaults models.ScanConfig) *Store {
	return &Store{db: tx, defaults: defaults, now: time.Now}
}

func (s *Store) Get(ctx context.Context, userID int64) (user *models.UserSettings, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("UserSettings.Get: %w", err)
		}
	}()

	var (
		id, chatID int64
		name       string
		raw        []byte
	)
	err = s.db.Conn().QueryRow(ctx, queryGet, userID).Scan(&id, &chatID, &name, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(id, chatID, name, raw, s.defaults)
}

func (s *Store) Save(ctx context.Context, user *models.UserSettings) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("UserSettings.Save: %w", err)
		}
	}()

	data, err := sonic.Marshal(user)
	if err != nil {
		return err
	}
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, queryUpsert, user.UserID, user.Name, data)
		return err
	})
}

func (s *Store) EffectiveConfig(ctx context.Context, userID int64, dir models.Direction) (models.ScanConfig, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return models.ScanConfig{}, err
	}
	return u.Effective(dir), nil
}

func (s *Store) DueUsers(ctx context.Context, _ time.Time) (jobs []models.ScanJob, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("UserSettings.DueUsers: %w", err)
		}
	}()

	rows, err := s.db.Conn().Query(ctx, queryActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.UserSettings
	for rows.Next() {
		var (
			id, chatID int64
			name       string
			raw        []byte
		)
		if err := rows.Scan(&id, &chatID, &name, &raw); err != nil {
			return nil, err
		}
		u, err := decodeUser(id, chatID, name, raw, s.defaults)
		if err != nil {
			// битая запись не должна ронять весь проход
			continue
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
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

func (s *Store) Deactivate(ctx context.Context, userID int64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("UserSettings.Deactivate: %w", err)
		}
	}()

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		tag, err := tx.Exec(ctxTx, queryDeactivate, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return service.ErrNotFound
		}
		return nil
	})
}

// decodeUser: неизвестные ключи в JSON игнорируются, отсутствующие в shared берутся из defaults.
func decodeUser(id, chatID int64, name string, raw []byte, defaults models.ScanConfig) (*models.UserSettings, error) {
	u := models.UserSettings{Shared: defaults}
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decode settings of %d: %w", chatID, err)
		}
	}
	u.ID = id
	u.UserID = chatID
	u.Name = name
	return &u, nil
}
