package usecase

import (
	"log/slog"

	"harvest-deck/internal/display"
	"harvest-deck/internal/domain"
)

// ToggleOp is what pressing a timer button does.
type ToggleOp int

const (
	OpStart ToggleOp = iota + 1
	OpStop
)

func (o ToggleOp) String() string {
	if o == OpStop {
		return "stop"
	}
	return "start"
}

// ToggleAction is the outcome of DecideToggle. EntryID is set for OpStop.
type ToggleAction struct {
	Op      ToggleOp
	EntryID int64
}

// DecideToggle picks the action for a press given the account's running entries.
// A running entry for the button's project and task is stopped; otherwise a new
// entry is started, which makes Harvest stop whatever else was running.
func DecideToggle(cfg domain.ButtonConfig, running []domain.TimeEntry) ToggleAction {
	if entry, ok := matchRunning(cfg, running); ok {
		return ToggleAction{Op: OpStop, EntryID: entry.ID}
	}
	return ToggleAction{Op: OpStart}
}

func (e *Engine) press(button string, s domain.Settings, pos domain.Position) {
	cfg := domain.NewButtonConfig(s.Inherit(e.global), pos)
	if cfg.Kind != domain.KindTimer {
		e.log.Debug("ignoring press on totals button", slog.String("button", button), slog.String("kind", cfg.Kind.String()))
		return
	}
	if !cfg.Complete() {
		e.alert(button, cfg.Problem.Error())
		return
	}
	e.log.Info("pressed timer", slog.String("button", button), slog.String("label", cfg.Label))
	go e.toggle(button, cfg)
}

// toggle runs on its own goroutine; every display change is posted back to the loop.
func (e *Engine) toggle(button string, cfg domain.ButtonConfig) {
	ctx := e.runCtx
	running, err := e.svc.FetchRunning(ctx, cfg.Account)
	if err != nil {
		e.post(func() {
			e.log.Warn("toggle: running fetch failed", slog.String("account", cfg.Account.ID), slog.String("error", err.Error()))
			e.failTimers(cfg.Account.ID, false, err)
		})
		return
	}

	action := DecideToggle(cfg, running)
	switch action.Op {
	case OpStart:
		e.post(func() {
			e.paint(button, display.Frame{Label: cfg.Label, State: domain.RenderActive, ShowTime: true, Sep: display.TimerSep})
		})
		id, err := e.svc.StartTimer(ctx, cfg.Account, cfg.ProjectID, cfg.TaskID, e.now())
		if err == nil {
			action.EntryID = id
		}
		e.post(func() { e.finishToggle(button, cfg, action, err) })
	case OpStop:
		e.post(func() { e.paint(button, display.Idle(cfg.Label)) })
		err := e.svc.StopTimer(ctx, cfg.Account, action.EntryID)
		e.post(func() { e.finishToggle(button, cfg, action, err) })
	}
}

func (e *Engine) finishToggle(button string, cfg domain.ButtonConfig, action ToggleAction, err error) {
	if err != nil {
		e.log.Warn("toggle failed", slog.String("button", button), slog.String("op", action.Op.String()),
			slog.String("kind", domain.Classify(err).String()), slog.String("error", err.Error()))
		f := display.Idle(cfg.Label)
		f.State = domain.RenderError
		e.paint(button, f)
		e.alert(button, err.Error())
		return
	}
	e.log.Info("toggled timer", slog.String("button", button), slog.String("op", action.Op.String()), slog.Int64("entry", action.EntryID))
	e.refreshSoon()
}
