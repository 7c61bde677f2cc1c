package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"harvest-deck/internal/cache"
	"harvest-deck/internal/display"
	"harvest-deck/internal/domain"
	"harvest-deck/internal/ports"
	"harvest-deck/internal/registry"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultGrace     = 2 * time.Second
	DefaultSoonDelay = 500 * time.Millisecond
)

// LoopState is the state of the polling loop.
type LoopState int

const (
	StateIdle LoopState = iota
	StatePolling
)

func (s LoopState) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Options configures an Engine. Service and Display are required.
type Options struct {
	Log      *slog.Logger
	Service  ports.TimeService
	Display  ports.Display
	Settings ports.SettingsStore // optional
	Sink     ports.TotalsSink    // optional
	Registry *registry.Registry
	Cache    *cache.Cache

	Interval  time.Duration // between periodic refreshes
	Grace     time.Duration // RefreshSoon is a no-op when the next refresh is this close
	SoonDelay time.Duration // delay of a RefreshSoon refresh

	// Now supplies the calendar time used for "today" and the week range.
	Now func() time.Time
}

// Engine reconciles button displays with the remote time tracker.
//
// All engine state is owned by the goroutine running Run. Callers and network
// goroutines hand work to it as closures, so handlers never interleave.
type Engine struct {
	log      *slog.Logger
	svc      ports.TimeService
	disp     *display.Dispatcher
	settings ports.SettingsStore
	sink     ports.TotalsSink
	reg      *registry.Registry
	cache    *cache.Cache
	now      func() time.Time

	interval  time.Duration
	grace     time.Duration
	soonDelay time.Duration

	tasks  chan func()
	runCtx context.Context

	state  LoopState
	seq    uint64
	timer  *time.Timer
	due    time.Time
	global domain.GlobalSettings
}

func New(opts Options) (*Engine, error) {
	if opts.Service == nil || opts.Display == nil {
		return nil, errors.New("engine not initialized: missing dependencies")
	}
	e := &Engine{
		log:       opts.Log,
		svc:       opts.Service,
		disp:      display.NewDispatcher(opts.Display, opts.Log),
		settings:  opts.Settings,
		sink:      opts.Sink,
		reg:       opts.Registry,
		cache:     opts.Cache,
		now:       opts.Now,
		interval:  opts.Interval,
		grace:     opts.Grace,
		soonDelay: opts.SoonDelay,
		tasks:     make(chan func(), 64),
		runCtx:    context.Background(),
	}
	if e.log == nil {
		e.log = slog.Default()
		e.disp = display.NewDispatcher(opts.Display, e.log)
	}
	if e.reg == nil {
		e.reg = registry.New()
	}
	if e.cache == nil {
		e.cache = cache.New()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.grace <= 0 {
		e.grace = DefaultGrace
	}
	if e.soonDelay <= 0 {
		e.soonDelay = DefaultSoonDelay
	}
	return e, nil
}

// Run processes events and refreshes until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	defer e.disarm()
	e.log.Info("engine started", slog.Duration("interval", e.interval))
	for {
		var tick <-chan time.Time
		if e.timer != nil {
			tick = e.timer.C
		}
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return ctx.Err()
		case fn := <-e.tasks:
			fn()
		case <-tick:
			e.timer = nil
			e.refresh()
		}
	}
}

// do queues fn on the loop on behalf of an external caller.
func (e *Engine) do(ctx context.Context, fn func()) error {
	select {
	case e.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the loop from a goroutine the loop started.
func (e *Engine) post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.runCtx.Done():
	}
}

// ButtonAppeared registers a button, draws it from cache and makes sure polling runs.
func (e *Engine) ButtonAppeared(ctx context.Context, button string, s domain.Settings, pos domain.Position) {
	_ = e.do(ctx, func() { e.addButton(button, s, pos) })
}

// ButtonDisappeared forgets a button. Polling stops at the next cycle if none remain.
func (e *Engine) ButtonDisappeared(ctx context.Context, button string) {
	_ = e.do(ctx, func() {
		if e.reg.Remove(button) {
			e.log.Info("removed button", slog.String("button", button), slog.Int("remaining", e.reg.Len()))
		}
	})
}

// SettingsChanged replaces a button's configuration wholesale and asks for a refresh.
func (e *Engine) SettingsChanged(ctx context.Context, button string, s domain.Settings, pos domain.Position) {
	_ = e.do(ctx, func() {
		e.reg.Remove(button)
		e.addButton(button, s, pos)
		e.refreshSoon()
	})
}

// SettingsRequestCompleted asks the host to echo back the button's saved settings.
func (e *Engine) SettingsRequestCompleted(ctx context.Context, button string) {
	if e.settings == nil {
		return
	}
	if err := e.settings.GetSettings(ctx, button); err != nil {
		e.log.Warn("request settings failed", slog.String("button", button), slog.String("error", err.Error()))
	}
}

// GlobalSettingsReceived stores the plugin-wide settings used as credential fallback.
func (e *Engine) GlobalSettingsReceived(ctx context.Context, g domain.GlobalSettings) {
	_ = e.do(ctx, func() {
		e.global = g
		e.log.Debug("global settings received", slog.Bool("credentials", g.HasCredentials()))
	})
}

// ButtonPressed toggles the timer behind a timer button. Other kinds ignore presses.
func (e *Engine) ButtonPressed(ctx context.Context, button string, s domain.Settings, pos domain.Position) {
	_ = e.do(ctx, func() { e.press(button, s, pos) })
}

// RefreshSoon asks for an out-of-band refresh, coalesced with the periodic one.
func (e *Engine) RefreshSoon(ctx context.Context) error {
	return e.do(ctx, e.refreshSoon)
}

// State returns the polling state.
func (e *Engine) State(ctx context.Context) (LoopState, error) {
	ch := make(chan LoopState, 1)
	if err := e.do(ctx, func() { ch <- e.state }); err != nil {
		return StateIdle, err
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return StateIdle, ctx.Err()
	}
}

// ButtonStatus describes a registered button without its credentials.
type ButtonStatus struct {
	Button    string `json:"button"`
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	AccountID string `json:"account_id"`
	Row       int    `json:"row"`
	Column    int    `json:"column"`
	Complete  bool   `json:"complete"`
	Problem   string `json:"problem,omitempty"`
	Rendered  string `json:"rendered"`
}

// Buttons returns a snapshot of the registry in iteration order.
func (e *Engine) Buttons(ctx context.Context) ([]ButtonStatus, error) {
	ch := make(chan []ButtonStatus, 1)
	err := e.do(ctx, func() {
		out := make([]ButtonStatus, 0, e.reg.Len())
		for b, cfg := range e.reg.All() {
			st := ButtonStatus{
				Button:    b,
				Kind:      cfg.Kind.String(),
				Label:     cfg.Label,
				AccountID: cfg.Account.ID,
				Row:       cfg.Position.Row,
				Column:    cfg.Position.Column,
				Complete:  cfg.Complete(),
				Rendered:  e.reg.Rendered(b).String(),
			}
			if cfg.Problem != nil {
				st.Problem = cfg.Problem.Error()
			}
			out = append(out, st)
		}
		ch <- out
	})
	if err != nil {
		return nil, err
	}
	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) addButton(button string, s domain.Settings, pos domain.Position) {
	cfg := domain.NewButtonConfig(s.Inherit(e.global), pos)
	e.reg.Add(button, cfg)
	log := e.log.With(slog.String("button", button), slog.String("kind", cfg.Kind.String()),
		slog.Int("row", pos.Row), slog.Int("column", pos.Column))
	if cfg.Complete() {
		log.Info("added button", slog.String("label", cfg.Label))
		e.adoptCredentials(cfg)
	} else {
		log.Info("added incomplete button", slog.String("problem", cfg.Problem.Error()))
	}
	e.redrawFromCache(button)
	e.ensurePolling()
}

// adoptCredentials seeds the global settings with the first complete account
// so buttons configured later can inherit it.
func (e *Engine) adoptCredentials(cfg domain.ButtonConfig) {
	if e.settings == nil || e.global.HasCredentials() {
		return
	}
	payload := make(map[string]any, len(e.global.Raw)+2)
	for k, v := range e.global.Raw {
		payload[k] = v
	}
	payload["accountId"] = cfg.Account.ID
	payload["accessToken"] = cfg.Account.Token
	e.global = domain.GlobalSettings{AccountID: cfg.Account.ID, AccessToken: cfg.Account.Token, Raw: payload}
	if err := e.settings.SetGlobalSettings(e.runCtx, payload); err != nil {
		e.log.Warn("store global settings failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) ensurePolling() {
	if e.state == StatePolling {
		return
	}
	e.log.Info("beginning to poll")
	e.state = StatePolling
	e.refresh()
}

func (e *Engine) refreshSoon() {
	if e.state != StatePolling {
		return
	}
	if e.timer != nil && time.Until(e.due) <= e.grace {
		e.log.Debug("refresh already due", slog.Duration("in", time.Until(e.due)))
		return
	}
	e.arm(e.soonDelay)
}

func (e *Engine) arm(d time.Duration) {
	e.disarm()
	e.timer = time.NewTimer(d)
	e.due = time.Now().Add(d)
}

func (e *Engine) disarm() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) paint(button string, f display.Frame) {
	if _, ok := e.reg.Get(button); !ok {
		return
	}
	if err := e.disp.Paint(e.runCtx, button, f); err != nil {
		e.log.Warn("paint failed", slog.String("button", button), slog.String("error", err.Error()))
		return
	}
	e.reg.SetRendered(button, f.State)
}

func (e *Engine) alert(button, reason string) {
	if err := e.disp.Alert(e.runCtx, button, reason); err != nil {
		e.log.Warn("alert failed", slog.String("button", button), slog.String("error", err.Error()))
	}
}

func newPassID() string { return uuid.NewString() }
