package usecase

import (
	"log/slog"
	"time"

	"harvest-deck/internal/aggregate"
	"harvest-deck/internal/cache"
	"harvest-deck/internal/display"
	"harvest-deck/internal/domain"
)

// refresh runs one cycle: fan out one fetch per account and query kind, then re-arm.
func (e *Engine) refresh() {
	if e.reg.Len() == 0 {
		if e.state == StatePolling {
			e.log.Info("stopping polling, no buttons remain")
		}
		e.state = StateIdle
		e.disarm()
		return
	}
	e.state = StatePolling
	e.seq++
	seq := e.seq
	accounts := e.reg.Accounts()
	needsTotals := e.reg.NeedsTotals()
	e.log.Debug("refreshing buttons", slog.Uint64("seq", seq), slog.Int("accounts", len(accounts)), slog.Bool("totals", needsTotals))

	if needsTotals && len(accounts) > 0 {
		now := e.now()
		pass := aggregate.NewPass(newPassID(), seq, aggregate.Today(now), len(accounts))
		from, to := weekRange(now)
		for _, acct := range accounts {
			go func() {
				entries, err := e.svc.FetchWeek(e.runCtx, acct, from, to)
				e.post(func() { e.applyWeek(pass, acct, entries, err) })
			}()
		}
	}

	for _, acct := range accounts {
		go func() {
			entries, err := e.svc.FetchRunning(e.runCtx, acct)
			e.post(func() { e.applyRunning(seq, acct, entries, err) })
		}()
	}

	e.arm(e.interval)
}

// weekRange returns Monday and Sunday of the local week containing t.
func weekRange(t time.Time) (time.Time, time.Time) {
	t = t.Local()
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	return monday, monday.AddDate(0, 0, 6)
}

func (e *Engine) applyWeek(pass *aggregate.Pass, acct domain.Account, entries []domain.TimeEntry, err error) {
	if !e.cache.Put(cache.Entries, acct.ID, pass.Seq, entries, err) {
		e.log.Debug("discarding stale entries", slog.String("account", acct.ID), slog.Uint64("seq", pass.Seq))
		return
	}
	if err != nil {
		e.log.Warn("entries fetch failed", slog.String("account", acct.ID),
			slog.String("kind", domain.Classify(err).String()), slog.String("error", err.Error()))
		e.failTimers(acct.ID, true, err)
	}
	cached, _ := e.cache.Get(cache.Entries, acct.ID)
	e.resolveTotals(pass, acct.ID, cached.TimeEntries, "")
}

func (e *Engine) applyRunning(seq uint64, acct domain.Account, entries []domain.TimeEntry, err error) {
	if !e.cache.Put(cache.Running, acct.ID, seq, entries, err) {
		e.log.Debug("discarding stale running entries", slog.String("account", acct.ID), slog.Uint64("seq", seq))
		return
	}
	if err != nil {
		e.log.Warn("running fetch failed", slog.String("account", acct.ID),
			slog.String("kind", domain.Classify(err).String()), slog.String("error", err.Error()))
		e.failTimers(acct.ID, false, err)
		return
	}
	e.paintTimers(acct.ID, entries, "")
}

// failTimers paints every timer button of the account idle, marks it errored and
// raises an alert. With errorLabel the label is replaced by display.ErrorLabel.
func (e *Engine) failTimers(accountID string, errorLabel bool, cause error) {
	for b, cfg := range e.reg.All() {
		if cfg.Kind != domain.KindTimer || !cfg.Complete() || cfg.Account.ID != accountID {
			continue
		}
		f := display.Idle(cfg.Label)
		if errorLabel {
			f.Label = display.ErrorLabel
		}
		f.State = domain.RenderError
		e.paint(b, f)
		e.alert(b, cause.Error())
	}
}

// resolveTotals completes one account of the pass and draws that account's
// daily, project and client buttons. Weekly buttons are drawn once the pass
// is done. With only set, just that button is drawn and nothing is exported.
// It reports whether only was drawn.
func (e *Engine) resolveTotals(pass *aggregate.Pass, accountID string, entries []domain.TimeEntry, only string) bool {
	drawn := false
	t := pass.Complete(accountID, entries, e.now())
	for b, cfg := range e.reg.All() {
		if only != "" && b != only {
			continue
		}
		if !cfg.Complete() || cfg.Account.ID != accountID {
			continue
		}
		hours, ok := t.Value(cfg)
		if !ok {
			continue
		}
		e.paint(b, totalsFrame(hours, cfg.Label, t.Active))
		drawn = drawn || b == only
	}
	if !pass.Done() {
		return drawn
	}

	weekly, active := pass.Weekly()
	for b, cfg := range e.reg.All() {
		if only != "" && b != only {
			continue
		}
		if cfg.Kind != domain.KindWeekly || !cfg.Complete() {
			continue
		}
		e.paint(b, totalsFrame(weekly, cfg.Label, active))
		drawn = drawn || b == only
	}
	if only == "" {
		e.recordPass(pass)
		e.export(pass)
	}
	return drawn
}

// recordPass stores the account set of a completed pass for cache replays.
func (e *Engine) recordPass(pass *aggregate.Pass) {
	totals := pass.Accounts()
	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.AccountID)
	}
	if !e.cache.SetAccounts(pass.Seq, ids) {
		e.log.Debug("discarding stale pass accounts", slog.String("pass", pass.ID), slog.Uint64("seq", pass.Seq))
	}
}

func totalsFrame(hours float64, label string, active bool) display.Frame {
	state := domain.RenderIdle
	if active {
		state = domain.RenderActive
	}
	return display.Frame{Hours: hours, Label: label, State: state, ShowTime: true, Sep: display.TotalsSep}
}

// paintTimers draws the account's timer buttons from its running entries.
// With only set, just that button is drawn.
func (e *Engine) paintTimers(accountID string, running []domain.TimeEntry, only string) {
	for b, cfg := range e.reg.All() {
		if only != "" && b != only {
			continue
		}
		if cfg.Kind != domain.KindTimer || !cfg.Complete() || cfg.Account.ID != accountID {
			continue
		}
		if entry, ok := matchRunning(cfg, running); ok {
			e.paint(b, display.Frame{Hours: entry.Hours, Label: cfg.Label, State: domain.RenderActive, ShowTime: true, Sep: display.TimerSep})
			continue
		}
		e.paint(b, display.Idle(cfg.Label))
	}
}

func matchRunning(cfg domain.ButtonConfig, running []domain.TimeEntry) (domain.TimeEntry, bool) {
	for _, entry := range running {
		if entry.Matches(cfg.ProjectID, cfg.TaskID) {
			return entry, true
		}
	}
	return domain.TimeEntry{}, false
}

// redrawFromCache draws one button from cached payloads without any network call.
func (e *Engine) redrawFromCache(button string) {
	cfg, ok := e.reg.Get(button)
	if !ok {
		return
	}
	if !cfg.Complete() {
		e.paint(button, display.Idle(cfg.Label))
		return
	}

	switch {
	case cfg.Kind == domain.KindTimer:
		entry, ok := e.cache.Get(cache.Running, cfg.Account.ID)
		switch {
		case !ok:
			e.paint(button, display.Idle(cfg.Label))
		case entry.Err != nil:
			f := display.Idle(cfg.Label)
			f.State = domain.RenderError
			e.paint(button, f)
		default:
			e.paintTimers(cfg.Account.ID, entry.TimeEntries, button)
		}

	case cfg.Kind.IsTotals():
		drawn := false
		accounts := e.cache.Accounts()
		pass := aggregate.NewPass("", 0, aggregate.Today(e.now()), len(accounts))
		for _, id := range accounts {
			entry, ok := e.cache.Get(cache.Entries, id)
			if !ok {
				continue
			}
			if e.resolveTotals(pass, id, entry.TimeEntries, button) {
				drawn = true
			}
		}
		if !drawn {
			e.paint(button, display.Idle(cfg.Label))
		}
	}
}

func (e *Engine) export(pass *aggregate.Pass) {
	if e.sink == nil {
		return
	}
	totals := pass.Accounts()
	ctx := e.runCtx
	go func() {
		if err := e.sink.RecordTotals(ctx, totals); err != nil {
			e.log.Warn("export totals failed", slog.String("pass", pass.ID), slog.String("error", err.Error()))
			return
		}
		e.log.Debug("exported totals", slog.String("pass", pass.ID), slog.Int("accounts", len(totals)))
	}()
}
