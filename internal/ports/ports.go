package ports

import (
	"context"
	"time"

	"harvest-deck/internal/domain"
)

// TimeService defines the calls made against the remote time tracker.
type TimeService interface {
	FetchRunning(ctx context.Context, acct domain.Account) ([]domain.TimeEntry, error)
	FetchWeek(ctx context.Context, acct domain.Account, from, to time.Time) ([]domain.TimeEntry, error)
	StartTimer(ctx context.Context, acct domain.Account, projectID, taskID int64, date time.Time) (int64, error)
	StopTimer(ctx context.Context, acct domain.Account, entryID int64) error
}

// Display sends visual updates to a single button identified by its context.
type Display interface {
	SetState(ctx context.Context, button string, state int) error
	SetTitle(ctx context.Context, button, title string) error
	ShowAlert(ctx context.Context, button string) error
}

// SettingsStore is the part of the device host's settings storage the engine drives.
// GetSettings is a request; the answer comes back as a device event.
type SettingsStore interface {
	GetSettings(ctx context.Context, button string) error
	SetGlobalSettings(ctx context.Context, payload map[string]any) error
}

// DeviceEvents receives decoded button lifecycle events from the device channel.
type DeviceEvents interface {
	ButtonAppeared(ctx context.Context, button string, s domain.Settings, pos domain.Position)
	ButtonDisappeared(ctx context.Context, button string)
	ButtonPressed(ctx context.Context, button string, s domain.Settings, pos domain.Position)
	SettingsChanged(ctx context.Context, button string, s domain.Settings, pos domain.Position)
	SettingsRequestCompleted(ctx context.Context, button string)
	GlobalSettingsReceived(ctx context.Context, g domain.GlobalSettings)
}

// TotalsSink receives the totals of every completed refresh pass.
// The primary target is a MySQL reporting table, but the interface stays
// generic so other exports can be added.
type TotalsSink interface {
	RecordTotals(ctx context.Context, totals []domain.AccountTotals) error
}
