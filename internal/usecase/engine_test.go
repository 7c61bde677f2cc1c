package usecase

import (
	"context"
	"testing"
	"time"

	"harvest-deck/internal/domain"
)

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without service and display")
	}
}

func TestStartTimerPaintsActiveImmediately(t *testing.T) {
	h := newHarness(t)
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	eventually(t, "initial paint", func() bool { return h.disp.snapshot("t1").title == "Dev" })

	h.eng.ButtonPressed(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})

	eventually(t, "timer started", func() bool {
		started, _ := h.svc.calls()
		s := h.disp.snapshot("t1")
		return len(started) == 1 && s.state == 1 && s.title == "0:00\n\nDev"
	})
	started, _ := h.svc.calls()
	if started[0] != 99 {
		t.Fatalf("started %v", started)
	}
	if a := h.disp.snapshot("t1").alerts; a != 0 {
		t.Fatalf("expected no alert, got %d", a)
	}
}

func TestPressStopsMatchingRunningEntry(t *testing.T) {
	h := newHarness(t)
	h.svc.setRunning("A1", domain.TimeEntry{ID: 7, Project: domain.Ref{ID: 10}, Task: domain.Ref{ID: 20}, Hours: 1.5, IsRunning: true})
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	eventually(t, "running paint", func() bool {
		s := h.disp.snapshot("t1")
		return s.state == 1 && s.title == "1:30\n\nDev"
	})

	h.eng.ButtonPressed(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})

	eventually(t, "timer stopped", func() bool {
		_, stopped := h.svc.calls()
		s := h.disp.snapshot("t1")
		return len(stopped) == 1 && s.state == 0 && s.title == "Dev"
	})
	started, stopped := h.svc.calls()
	if stopped[0] != 7 || len(started) != 0 {
		t.Fatalf("started %v stopped %v", started, stopped)
	}
}

func TestRunningFailureOnlyAffectsThatAccount(t *testing.T) {
	h := newHarness(t)
	h.svc.runningErr["A1"] = httpStatusErr(500)
	h.svc.setRunning("A2", domain.TimeEntry{ID: 3, Project: domain.Ref{ID: 30}, Task: domain.Ref{ID: 40}, Hours: 0.5, IsRunning: true})

	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	h.eng.ButtonAppeared(h.ctx, "t2", timer("A2", 30, 40, "Ops"), domain.Position{Column: 1})
	h.refresh(t)

	eventually(t, "A1 alerted and A2 active", func() bool {
		s1, s2 := h.disp.snapshot("t1"), h.disp.snapshot("t2")
		return s1.alerts > 0 && s1.state == 0 && s1.title == "Dev" &&
			s2.state == 1 && s2.title == "0:30\n\nOps"
	})
	if a := h.disp.snapshot("t2").alerts; a != 0 {
		t.Fatalf("A2 button alerted %d times", a)
	}

	buttons, err := h.eng.Buttons(h.ctx)
	if err != nil {
		t.Fatalf("Buttons: %v", err)
	}
	if buttons[0].Rendered != "error" || buttons[1].Rendered != "active" {
		t.Fatalf("rendered states %+v", buttons)
	}
}

func TestStartFailureAlertsAndPaintsIdle(t *testing.T) {
	h := newHarness(t)
	h.svc.startErr = errBoom
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	h.eng.ButtonAppeared(h.ctx, "t2", timer("A1", 11, 21, "Ops"), domain.Position{Column: 1})
	eventually(t, "initial paint", func() bool { return h.disp.snapshot("t1").paints > 0 })

	h.eng.ButtonPressed(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})

	eventually(t, "failure alert", func() bool {
		s := h.disp.snapshot("t1")
		return s.alerts == 1 && s.state == 0 && s.title == "Dev"
	})
	if a := h.disp.snapshot("t2").alerts; a != 0 {
		t.Fatalf("sibling alerted %d times", a)
	}
	buttons, err := h.eng.Buttons(h.ctx)
	if err != nil {
		t.Fatalf("Buttons: %v", err)
	}
	if buttons[0].Rendered != "error" {
		t.Fatalf("expected error state, got %+v", buttons[0])
	}
}

func TestPressOnTotalsButtonIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.eng.ButtonAppeared(h.ctx, "d1", totals("daily", "A1", "Today"), domain.Position{})
	h.eng.ButtonPressed(h.ctx, "d1", totals("daily", "A1", "Today"), domain.Position{})
	h.eng.ButtonPressed(h.ctx, "d1", totals("daily", "A1", "Today"), domain.Position{})

	// Buttons is processed after both presses.
	if _, err := h.eng.Buttons(h.ctx); err != nil {
		t.Fatalf("Buttons: %v", err)
	}
	started, stopped := h.svc.calls()
	if len(started)+len(stopped) != 0 || h.disp.snapshot("d1").alerts != 0 {
		t.Fatal("totals press must not toggle or alert")
	}
}

func TestIncompleteButtonIsDrawnButNotPolled(t *testing.T) {
	h := newHarness(t)
	s := timer("A1", 10, 0, "Dev")
	h.eng.ButtonAppeared(h.ctx, "t1", s, domain.Position{})
	h.eng.ButtonPressed(h.ctx, "t1", s, domain.Position{})

	eventually(t, "alert on incomplete press", func() bool {
		sh := h.disp.snapshot("t1")
		return sh.alerts == 1 && sh.title == "Dev"
	})
	if n := h.svc.runningCalls(); n != 0 {
		t.Fatalf("incomplete button polled %d times", n)
	}
	buttons, err := h.eng.Buttons(h.ctx)
	if err != nil {
		t.Fatalf("Buttons: %v", err)
	}
	if buttons[0].Complete || buttons[0].Problem == "" {
		t.Fatalf("expected incomplete button, got %+v", buttons[0])
	}
}

func seedWeek(h *harness) {
	h.svc.week["A1"] = []domain.TimeEntry{
		weekEntry(1, 1.5, "2026-10-19", 10, 100),
		weekEntry(2, 2.25, "2026-10-19", 11, 100),
		weekEntry(3, 0.5, "2026-10-20", 10, 100),
	}
	running := weekEntry(4, 1, "2026-10-19", 10, 200)
	running.IsRunning = true
	h.svc.week["A2"] = []domain.TimeEntry{running}
}

func addTotalsButtons(h *harness) {
	h.eng.ButtonAppeared(h.ctx, "w1", totals("weekly", "A1", "Week"), domain.Position{})
	h.eng.ButtonAppeared(h.ctx, "d1", totals("daily", "A1", "Today"), domain.Position{Column: 1})
	h.eng.ButtonAppeared(h.ctx, "p1", totals("project", "A1", "Dev"), domain.Position{Column: 2})
	h.eng.ButtonAppeared(h.ctx, "c1", totals("client", "A1", "Acme"), domain.Position{Column: 3})
	h.eng.ButtonAppeared(h.ctx, "d2", totals("daily", "A2", "Today"), domain.Position{Row: 1})
}

var wantTotals = map[string]shown{
	"w1": {state: 1, title: "5:15\nWeek"},
	"d1": {state: 0, title: "3:45\nToday"},
	"p1": {state: 0, title: "2:00\nDev"},
	"c1": {state: 0, title: "4:15\nAcme"},
	"d2": {state: 1, title: "1:00\nToday"},
}

func totalsSettled(h *harness) bool {
	for b, want := range wantTotals {
		got := h.disp.snapshot(b)
		if got.state != want.state || got.title != want.title {
			return false
		}
	}
	return true
}

func TestTotalsButtons(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	addTotalsButtons(h)
	h.refresh(t)

	eventually(t, "totals painted", func() bool { return totalsSettled(h) })
	eventually(t, "totals exported", func() bool {
		h.sink.mu.Lock()
		defer h.sink.mu.Unlock()
		for _, pass := range h.sink.totals {
			if len(pass) == 2 {
				return true
			}
		}
		return false
	})
}

func TestReplayFromCacheMatchesNetworkPaint(t *testing.T) {
	h := newHarness(t)
	seedWeek(h)
	addTotalsButtons(h)
	h.refresh(t)
	eventually(t, "totals painted", func() bool { return totalsSettled(h) })

	before := make(map[string]int, len(wantTotals))
	for b := range wantTotals {
		before[b] = h.disp.snapshot(b).paints
	}
	weekCalls := func() int {
		h.svc.mu.Lock()
		defer h.svc.mu.Unlock()
		return h.svc.weekCalls
	}
	calls := weekCalls()

	addTotalsButtons(h)

	eventually(t, "replayed paints", func() bool {
		for b, n := range before {
			if h.disp.snapshot(b).paints <= n {
				return false
			}
		}
		return true
	})
	if !totalsSettled(h) {
		t.Fatal("replay changed what the buttons show")
	}
	if weekCalls() != calls {
		t.Fatal("replay must not fetch")
	}
}

func TestEntriesFailureZeroesTotals(t *testing.T) {
	h := newHarness(t)
	h.svc.weekErr["A1"] = errBoom
	h.eng.ButtonAppeared(h.ctx, "d1", totals("daily", "A1", "Today"), domain.Position{})
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{Column: 1})
	h.refresh(t)

	eventually(t, "zero totals and timer alert", func() bool {
		return h.disp.snapshot("d1").title == "0:00\nToday" && h.disp.snapshot("t1").alerts > 0
	})
}

func TestPollingStopsWhenLastButtonDisappears(t *testing.T) {
	h := newHarness(t)
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	state, err := h.eng.State(h.ctx)
	if err != nil || state != StatePolling {
		t.Fatalf("state = %v, %v", state, err)
	}

	h.eng.ButtonDisappeared(h.ctx, "t1")
	h.refresh(t)

	eventually(t, "idle loop", func() bool {
		s, err := h.eng.State(h.ctx)
		return err == nil && s == StateIdle
	})
	buttons, err := h.eng.Buttons(h.ctx)
	if err != nil || len(buttons) != 0 {
		t.Fatalf("buttons = %+v, %v", buttons, err)
	}
}

func TestRefreshSoonWithinGraceIsCoalesced(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.SoonDelay = 200 * time.Millisecond })
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	eventually(t, "first cycle", func() bool { return h.svc.runningCalls() == 1 })

	h.refresh(t)
	h.refresh(t)

	eventually(t, "second cycle", func() bool { return h.svc.runningCalls() == 2 })
	time.Sleep(400 * time.Millisecond)
	if n := h.svc.runningCalls(); n != 2 {
		t.Fatalf("expected a single out-of-band cycle, got %d calls", n)
	}
}

func TestSettingsChangedReplacesButton(t *testing.T) {
	h := newHarness(t)
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	h.eng.SettingsChanged(h.ctx, "t1", totals("daily", "A1", "Today"), domain.Position{})

	buttons, err := h.eng.Buttons(h.ctx)
	if err != nil {
		t.Fatalf("Buttons: %v", err)
	}
	if len(buttons) != 1 || buttons[0].Kind != "daily" || buttons[0].Label != "Today" {
		t.Fatalf("buttons = %+v", buttons)
	}
	eventually(t, "daily paint", func() bool { return h.disp.snapshot("t1").title == "0:00\nToday" })
}

func TestGlobalCredentialsAreAdoptedAndInherited(t *testing.T) {
	h := newHarness(t)
	h.eng.GlobalSettingsReceived(h.ctx, domain.GlobalSettings{Raw: map[string]any{"theme": "dark"}})
	h.eng.ButtonAppeared(h.ctx, "t1", timer("A1", 10, 20, "Dev"), domain.Position{})
	h.eng.ButtonAppeared(h.ctx, "t2", domain.Settings{Type: "timer", ProjectID: 11, TaskID: 21, Label: "Ops"}, domain.Position{Column: 1})

	buttons, err := h.eng.Buttons(h.ctx)
	if err != nil {
		t.Fatalf("Buttons: %v", err)
	}
	if !buttons[1].Complete || buttons[1].AccountID != "A1" {
		t.Fatalf("second button did not inherit credentials: %+v", buttons[1])
	}

	h.settings.mu.Lock()
	defer h.settings.mu.Unlock()
	if len(h.settings.global) != 1 {
		t.Fatalf("expected one global settings write, got %d", len(h.settings.global))
	}
	g := h.settings.global[0]
	if g["accountId"] != "A1" || g["accessToken"] != "tok" || g["theme"] != "dark" {
		t.Fatalf("global payload %v", g)
	}
}

func TestSettingsRequestCompletedAsksForSettings(t *testing.T) {
	h := newHarness(t)
	h.eng.SettingsRequestCompleted(context.Background(), "t1")

	h.settings.mu.Lock()
	defer h.settings.mu.Unlock()
	if len(h.settings.requested) != 1 || h.settings.requested[0] != "t1" {
		t.Fatalf("requested %v", h.settings.requested)
	}
}
