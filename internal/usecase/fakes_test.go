package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"harvest-deck/internal/domain"
)

type httpStatusErr int

func (s httpStatusErr) Error() string   { return "unexpected status" }
func (s httpStatusErr) StatusCode() int { return int(s) }

// fakeService is an in-memory stand-in for the Harvest client.
// A fetch whose "running:<account>" or "week:<account>" key is held captures
// its payload at call time and then waits for the gate to close.
type fakeService struct {
	mu         sync.Mutex
	running    map[string][]domain.TimeEntry
	runningErr map[string]error
	week       map[string][]domain.TimeEntry
	weekErr    map[string]error
	startErr   error
	stopErr    error
	nextID     int64
	started    []int64
	stopped    []int64
	weekCalls  int
	runCalls   int
	gates      map[string]chan struct{}
	waiting    int
}

func newFakeService() *fakeService {
	return &fakeService{
		running:    make(map[string][]domain.TimeEntry),
		runningErr: make(map[string]error),
		week:       make(map[string][]domain.TimeEntry),
		weekErr:    make(map[string]error),
		gates:      make(map[string]chan struct{}),
		nextID:     99,
	}
}

func (f *fakeService) FetchRunning(ctx context.Context, acct domain.Account) ([]domain.TimeEntry, error) {
	f.mu.Lock()
	f.runCalls++
	err := f.runningErr[acct.ID]
	entries := append([]domain.TimeEntry(nil), f.running[acct.ID]...)
	gate := f.gates["running:"+acct.ID]
	f.mu.Unlock()

	if werr := f.wait(ctx, gate); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *fakeService) FetchWeek(ctx context.Context, acct domain.Account, from, to time.Time) ([]domain.TimeEntry, error) {
	f.mu.Lock()
	f.weekCalls++
	err := f.weekErr[acct.ID]
	entries := append([]domain.TimeEntry(nil), f.week[acct.ID]...)
	gate := f.gates["week:"+acct.ID]
	f.mu.Unlock()

	if werr := f.wait(ctx, gate); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *fakeService) wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	f.mu.Lock()
	f.waiting++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.waiting--
		f.mu.Unlock()
	}()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hold makes every later fetch for key wait until the returned gate is closed.
func (f *fakeService) hold(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[key] = gate
	return gate
}

// unhold lets later fetches for key through; fetches already waiting keep waiting.
func (f *fakeService) unhold(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.gates, key)
}

func (f *fakeService) blocked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

func (f *fakeService) setWeek(account string, entries ...domain.TimeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.week[account] = entries
}

func (f *fakeService) StartTimer(_ context.Context, acct domain.Account, projectID, taskID int64, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	id := f.nextID
	f.nextID++
	f.started = append(f.started, id)
	f.running[acct.ID] = []domain.TimeEntry{{
		ID:        id,
		Project:   domain.Ref{ID: projectID},
		Task:      domain.Ref{ID: taskID},
		IsRunning: true,
	}}
	return id, nil
}

func (f *fakeService) StopTimer(_ context.Context, acct domain.Account, entryID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, entryID)
	f.running[acct.ID] = nil
	return nil
}

func (f *fakeService) setRunning(account string, entries ...domain.TimeEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[account] = entries
}

func (f *fakeService) runningCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runCalls
}

func (f *fakeService) calls() (started, stopped []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.started...), append([]int64(nil), f.stopped...)
}

type shown struct {
	state  int
	title  string
	alerts int
	paints int
}

// fakeDisplay records the last state and title per button.
type fakeDisplay struct {
	mu      sync.Mutex
	buttons map[string]*shown
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{buttons: make(map[string]*shown)}
}

func (d *fakeDisplay) get(b string) *shown {
	s, ok := d.buttons[b]
	if !ok {
		s = &shown{}
		d.buttons[b] = s
	}
	return s
}

func (d *fakeDisplay) SetState(_ context.Context, b string, state int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.get(b).state = state
	return nil
}

func (d *fakeDisplay) SetTitle(_ context.Context, b, title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.get(b)
	s.title = title
	s.paints++
	return nil
}

func (d *fakeDisplay) ShowAlert(_ context.Context, b string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.get(b).alerts++
	return nil
}

func (d *fakeDisplay) snapshot(b string) shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.buttons[b]; ok {
		return *s
	}
	return shown{}
}

// fakeSettings records writes to the settings store.
type fakeSettings struct {
	mu        sync.Mutex
	requested []string
	global    []map[string]any
}

func (s *fakeSettings) GetSettings(_ context.Context, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, b)
	return nil
}

func (s *fakeSettings) SetGlobalSettings(_ context.Context, p map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = append(s.global, p)
	return nil
}

// fakeSink collects exported totals.
type fakeSink struct {
	mu     sync.Mutex
	totals [][]domain.AccountTotals
}

func (s *fakeSink) RecordTotals(_ context.Context, t []domain.AccountTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = append(s.totals, t)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.totals)
}

var errBoom = errors.New("boom")

type harness struct {
	eng      *Engine
	svc      *fakeService
	disp     *fakeDisplay
	settings *fakeSettings
	sink     *fakeSink
	ctx      context.Context
}

// fixedNow pins the calendar to Monday 2026-10-19.
func fixedNow() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.Local) }

func newHarness(t *testing.T, tweaks ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		svc:      newFakeService(),
		disp:     newFakeDisplay(),
		settings: &fakeSettings{},
		sink:     &fakeSink{},
	}
	opts := Options{
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Service:   h.svc,
		Display:   h.disp,
		Settings:  h.settings,
		Sink:      h.sink,
		Interval:  time.Hour,
		Grace:     time.Second,
		SoonDelay: 5 * time.Millisecond,
		Now:       fixedNow,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	eng, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.eng = eng
	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// refresh asks the engine for an out-of-band cycle.
func (h *harness) refresh(t *testing.T) {
	t.Helper()
	if err := h.eng.RefreshSoon(h.ctx); err != nil {
		t.Fatalf("RefreshSoon: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func timer(account string, project, task int64, label string) domain.Settings {
	return domain.Settings{Type: "timer", AccountID: account, AccessToken: "tok", Label: label, ProjectID: project, TaskID: task}
}

func totals(kind, account, label string) domain.Settings {
	return domain.Settings{Type: kind, AccountID: account, AccessToken: "tok", Label: label, ProjectID: 10, ClientID: 100}
}

func weekEntry(id int64, hours float64, day string, project, client int64) domain.TimeEntry {
	return domain.TimeEntry{ID: id, RoundedHours: hours, SpentDate: day, Project: domain.Ref{ID: project}, Client: domain.Ref{ID: client}}
}
