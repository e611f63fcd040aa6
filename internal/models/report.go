package models

import "time"

// CycleReport: итог одного прохода планировщика.
type CycleReport struct {
	At            time.Time     `json:"at"`
	Due           int           `json:"due"`
	Dispatched    int           `json:"dispatched"`
	Skipped       int           `json:"skipped"`
	Analyses      int           `json:"analyses"`
	Signals       int           `json:"signals"`
	FetchFailures int           `json:"fetch_failures"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}
