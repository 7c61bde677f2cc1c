package domain

import "time"

// AccountTotals is the outcome of one account in one completed refresh pass.
type AccountTotals struct {
	PassID      string
	AccountID   string
	Day         string // YYYY-MM-DD the daily figure refers to
	WeeklyHours float64
	DailyHours  float64
	Projects    map[int64]float64
	Clients     map[int64]float64
	Active      bool
	RecordedAt  time.Time
}
