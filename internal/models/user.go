package models

import "time"

// UserSettings хранит данные пользователя
type UserSettings struct {
	ID int64 `json:"id" yaml:"id"`

	UserID int64  `json:"user_id" yaml:"user_id"` // Telegram chat/user ID
	Name   string `json:"name" yaml:"name"`

	ActiveLong  bool `json:"active_long" yaml:"active_long"`
	ActiveShort bool `json:"active_short" yaml:"active_short"`
	// Combined: одна задача BOTH вместо двух раздельных, если активны обе стороны.
	Combined bool `json:"combined" yaml:"combined"`

	Shared ScanConfig    `json:"shared" yaml:"shared"`
	Long   TradeOverride `json:"long" yaml:"long"`
	Short  TradeOverride `json:"short" yaml:"short"`

	// Старый формат: полный набор параметров на сторону.
	LegacyLong  *ScanConfig `json:"legacy_long,omitempty" yaml:"legacy_long,omitempty"`
	LegacyShort *ScanConfig `json:"legacy_short,omitempty" yaml:"legacy_short,omitempty"`

	SubscriptionUntil *time.Time `json:"subscription_until,omitempty" yaml:"subscription_until,omitempty"`
	Admin             bool       `json:"admin" yaml:"admin"`
}

// NewUserSettings: новый пользователь с общими дефолтами, сканирование выключено.
func NewUserSettings(userID int64, name string, defaults ScanConfig) *UserSettings {
	return &UserSettings{
		UserID: userID,
		Name:   name,
		Shared: defaults.Normalized(),
	}
}

// Effective собирает конфиг для стороны.
func (u *UserSettings) Effective(dir Direction) ScanConfig {
	shared := u.Shared.Normalized()
	switch dir {
	case Long:
		return shared.MergedWith(u.override(u.Long, u.LegacyLong)).Normalized()
	case Short:
		return shared.MergedWith(u.override(u.Short, u.LegacyShort)).Normalized()
	default:
		return shared
	}
}

func (u *UserSettings) override(o TradeOverride, legacy *ScanConfig) TradeOverride {
	if o.Empty() && legacy != nil {
		return LegacyOverride(*legacy)
	}
	return o
}

// Jobs: задания сканирования для активных сторон.
func (u *UserSettings) Jobs() []ScanJob {
	if u.Combined && u.ActiveLong && u.ActiveShort {
		return []ScanJob{{UserID: u.UserID, Direction: Both, Config: u.Effective(Both)}}
	}

	var jobs []ScanJob
	if u.ActiveLong {
		jobs = append(jobs, ScanJob{UserID: u.UserID, Direction: Long, Config: u.Effective(Long)})
	}
	if u.ActiveShort {
		jobs = append(jobs, ScanJob{UserID: u.UserID, Direction: Short, Config: u.Effective(Short)})
	}
	return jobs
}

// HasAccess: подписка действует на момент now.
func (u *UserSettings) HasAccess(now time.Time) bool {
	return u.Access(now) == AccessActive
}

func (u *UserSettings) Access(now time.Time) AccessStatus {
	switch {
	case u.Admin:
		return AccessActive
	case u.SubscriptionUntil == nil:
		return AccessNone
	case now.Before(*u.SubscriptionUntil):
		return AccessActive
	}
	return AccessExpired
}

func (u *UserSettings) Active() bool { return u.ActiveLong || u.ActiveShort }

// Deactivate снимает флаги активности обеих сторон.
func (u *UserSettings) Deactivate() {
	u.ActiveLong = false
	u.ActiveShort = false
}

// ScanJob: задание (пользователь, сторона) с конфигом на текущий проход.
type ScanJob struct {
	UserID    int64
	Direction Direction
	Config    ScanConfig
}

type JobKey struct {
	UserID    int64
	Direction Direction
}

func (j ScanJob) Key() JobKey { return JobKey{UserID: j.UserID, Direction: j.Direction} }

// AccessStatus: результат проверки подписки.
type AccessStatus string

const (
	AccessActive  AccessStatus = "active"
	AccessExpired AccessStatus = "expired"
	AccessNone    AccessStatus = "none"
)
