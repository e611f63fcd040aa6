package models

import "time"

// Trade: сигнал, отданный пользователю. Исход сделки пишется отдельно.
type Trade struct {
	ID        string       `json:"id"`
	UserID    int64        `json:"user_id"`
	Signal    SignalResult `json:"signal"`
	Config    ScanConfig   `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
}
