// Package aggregate turns raw time entries into the figures totals buttons show.
package aggregate

import (
	"time"

	"harvest-deck/internal/domain"
)

// Totals holds the figures for a single account within one pass.
type Totals struct {
	WeeklyHours float64
	DailyHours  float64
	Projects    map[int64]float64
	Clients     map[int64]float64
	Today       string
	Active      bool
}

// NewTotals returns an empty accumulator for the given day (YYYY-MM-DD).
func NewTotals(today string) *Totals {
	return &Totals{
		Projects: make(map[int64]float64),
		Clients:  make(map[int64]float64),
		Today:    today,
	}
}

// Today formats t as the local calendar date used to match spent dates.
func Today(t time.Time) string {
	return t.Local().Format(time.DateOnly)
}

// Add accumulates entries. The result does not depend on entry order.
func (t *Totals) Add(entries []domain.TimeEntry) {
	for _, e := range entries {
		h := e.RoundedHours
		t.WeeklyHours += h
		if e.SpentDate == t.Today {
			t.DailyHours += h
		}
		t.Projects[e.Project.ID] += h
		t.Clients[e.Client.ID] += h
		if e.IsRunning {
			t.Active = true
		}
	}
}

// Value returns the hours a Daily, Project or Client button of this account displays.
// ok is false for kinds that are not resolved per account.
func (t *Totals) Value(cfg domain.ButtonConfig) (hours float64, ok bool) {
	switch cfg.Kind {
	case domain.KindDaily:
		return t.DailyHours, true
	case domain.KindProject:
		return t.Projects[cfg.ProjectID], true
	case domain.KindClient:
		return t.Clients[cfg.ClientID], true
	}
	return 0, false
}

// Pass spans every account polled in one refresh cycle.
// Weekly figures are only final once every expected account has reported.
type Pass struct {
	ID       string
	Seq      uint64
	Today    string
	Expected int

	completed   int
	weeklyHours float64
	active      bool
	accounts    []domain.AccountTotals
}

// NewPass starts a pass expecting the given number of accounts.
func NewPass(id string, seq uint64, today string, expected int) *Pass {
	return &Pass{ID: id, Seq: seq, Today: today, Expected: expected}
}

// Complete records one account's entries and returns that account's totals.
// Each account must be completed at most once per pass.
func (p *Pass) Complete(accountID string, entries []domain.TimeEntry, at time.Time) *Totals {
	t := NewTotals(p.Today)
	t.Add(entries)
	p.completed++
	p.weeklyHours += t.WeeklyHours
	if t.Active {
		p.active = true
	}
	p.accounts = append(p.accounts, domain.AccountTotals{
		PassID:      p.ID,
		AccountID:   accountID,
		Day:         p.Today,
		WeeklyHours: t.WeeklyHours,
		DailyHours:  t.DailyHours,
		Projects:    t.Projects,
		Clients:     t.Clients,
		Active:      t.Active,
		RecordedAt:  at,
	})
	return t
}

// Done reports whether the last expected account has been completed.
func (p *Pass) Done() bool { return p.Expected > 0 && p.completed == p.Expected }

// Weekly returns the cross-account weekly hours and whether any account has a running entry.
func (p *Pass) Weekly() (hours float64, active bool) { return p.weeklyHours, p.active }

// Accounts returns the per-account totals recorded so far.
func (p *Pass) Accounts() []domain.AccountTotals { return p.accounts }
