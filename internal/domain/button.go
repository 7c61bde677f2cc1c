package domain

import (
	"fmt"
	"strings"
)

// ButtonKind selects what a button shows and whether it can be pressed.
type ButtonKind int

const (
	KindUnknown ButtonKind = iota
	KindTimer
	KindDaily
	KindWeekly
	KindProject
	KindClient
)

var kindNames = map[ButtonKind]string{
	KindUnknown: "unknown",
	KindTimer:   "timer",
	KindDaily:   "daily",
	KindWeekly:  "weekly",
	KindProject: "project",
	KindClient:  "client",
}

func (k ButtonKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps the settings "type" value to a kind. Unknown values map to KindUnknown.
func ParseKind(s string) ButtonKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// IsTotals reports whether the kind displays an aggregate rather than a timer.
func (k ButtonKind) IsTotals() bool {
	switch k {
	case KindDaily, KindWeekly, KindProject, KindClient:
		return true
	}
	return false
}

// Account identifies a Harvest tenant and the token used to read it.
type Account struct {
	ID    string
	Token string
}

// Complete reports whether both halves of the credential are present.
func (a Account) Complete() bool { return a.ID != "" && a.Token != "" }

// Position is the row/column of a key on the device.
type Position struct {
	Row    int
	Column int
}

// ConfigStatus separates usable configurations from incomplete ones.
type ConfigStatus int

const (
	StatusIncomplete ConfigStatus = iota
	StatusComplete
)

// Settings is the per-button key/value configuration as stored by the host.
type Settings struct {
	Type        string
	AccountID   string
	AccessToken string
	Label       string
	ProjectID   int64
	TaskID      int64
	ClientID    int64
}

// GlobalSettings is the plugin-wide configuration shared by every button.
// Raw keeps keys this process does not interpret so writes do not drop them.
type GlobalSettings struct {
	AccountID   string
	AccessToken string
	Raw         map[string]any
}

// HasCredentials reports whether the global settings carry an account.
func (g GlobalSettings) HasCredentials() bool {
	return g.AccountID != "" && g.AccessToken != ""
}

// Inherit fills missing credentials from the global settings.
func (s Settings) Inherit(g GlobalSettings) Settings {
	if s.AccountID == "" && s.AccessToken == "" {
		s.AccountID = g.AccountID
		s.AccessToken = g.AccessToken
	}
	return s
}

// ButtonConfig is the validated configuration of one visible button.
// Configurations that fail validation keep their label and position but carry
// StatusIncomplete and the reason in Problem.
type ButtonConfig struct {
	Kind      ButtonKind
	Account   Account
	Label     string
	ProjectID int64
	TaskID    int64
	ClientID  int64
	Position  Position
	Status    ConfigStatus
	Problem   error
}

// NewButtonConfig validates s for its kind and returns the resulting config.
func NewButtonConfig(s Settings, pos Position) ButtonConfig {
	cfg := ButtonConfig{
		Kind:      ParseKind(s.Type),
		Account:   Account{ID: strings.TrimSpace(s.AccountID), Token: strings.TrimSpace(s.AccessToken)},
		Label:     s.Label,
		ProjectID: s.ProjectID,
		TaskID:    s.TaskID,
		ClientID:  s.ClientID,
		Position:  pos,
	}
	if err := cfg.validate(); err != nil {
		cfg.Problem = err
		return cfg
	}
	cfg.Status = StatusComplete
	return cfg
}

func (c ButtonConfig) validate() error {
	if c.Kind == KindUnknown {
		return fmt.Errorf("%w: unknown button type", ErrConfigIncomplete)
	}
	if !c.Account.Complete() {
		return fmt.Errorf("%w: missing account id or access token", ErrConfigIncomplete)
	}
	switch c.Kind {
	case KindTimer:
		if c.ProjectID == 0 || c.TaskID == 0 {
			return fmt.Errorf("%w: timer needs project and task", ErrConfigIncomplete)
		}
	case KindProject:
		if c.ProjectID == 0 {
			return fmt.Errorf("%w: project total needs a project", ErrConfigIncomplete)
		}
	case KindClient:
		if c.ClientID == 0 {
			return fmt.Errorf("%w: client total needs a client", ErrConfigIncomplete)
		}
	}
	return nil
}

// Complete reports whether the configuration takes part in polling.
func (c ButtonConfig) Complete() bool { return c.Status == StatusComplete }

// RenderState is what a button currently shows.
type RenderState int

const (
	RenderIdle RenderState = iota
	RenderActive
	RenderError
)

func (r RenderState) String() string {
	switch r {
	case RenderActive:
		return "active"
	case RenderError:
		return "error"
	default:
		return "idle"
	}
}

// StateIndex maps a rendered state to the device's visual state slot.
func (r RenderState) StateIndex() int {
	if r == RenderActive {
		return 1
	}
	return 0
}
