package streamdeck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"harvest-deck/internal/domain"
)

// Inbound event names.
const (
	EventKeyDown              = "keyDown"
	EventWillAppear           = "willAppear"
	EventWillDisappear        = "willDisappear"
	EventDidReceiveSettings   = "didReceiveSettings"
	EventInspectorDisappeared = "propertyInspectorDidDisappear"
	EventDidReceiveGlobal     = "didReceiveGlobalSettings"
)

// Outbound command names.
const (
	cmdGetSettings       = "getSettings"
	cmdGetGlobalSettings = "getGlobalSettings"
	cmdSetSettings       = "setSettings"
	cmdSetGlobalSettings = "setGlobalSettings"
	cmdSetState          = "setState"
	cmdSetTitle          = "setTitle"
	cmdShowAlert         = "showAlert"
)

// Event is a message received from the host.
type Event struct {
	Event   string          `json:"event"`
	Action  string          `json:"action,omitempty"`
	Context string          `json:"context,omitempty"`
	Device  string          `json:"device,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type coordinates struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type buttonPayload struct {
	Settings        rawSettings `json:"settings"`
	Coordinates     coordinates `json:"coordinates"`
	IsInMultiAction bool        `json:"isInMultiAction"`
}

type globalPayload struct {
	Settings map[string]any `json:"settings"`
}

// rawSettings is the per-button settings object written by the property inspector.
// The inspector stores ids from HTML inputs, so they may arrive as strings.
type rawSettings struct {
	Type        string     `json:"type"`
	AccountID   flexString `json:"accountId"`
	AccessToken string     `json:"accessToken"`
	Label       string     `json:"label"`
	ProjectID   flexID     `json:"projectId"`
	TaskID      flexID     `json:"taskId"`
	ClientID    flexID     `json:"clientId"`
}

func (s rawSettings) settings() domain.Settings {
	return domain.Settings{
		Type:        s.Type,
		AccountID:   string(s.AccountID),
		AccessToken: s.AccessToken,
		Label:       s.Label,
		ProjectID:   int64(s.ProjectID),
		TaskID:      int64(s.TaskID),
		ClientID:    int64(s.ClientID),
	}
}

func (c coordinates) position() domain.Position {
	return domain.Position{Row: c.Row, Column: c.Column}
}

// flexID decodes a number, a numeric string, or nothing. Anything else is 0,
// which leaves the button incomplete.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			n = 0
		}
		*f = flexID(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", b, err)
	}
	v, err := n.Int64()
	if err != nil {
		fl, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("decode id %s: %w", b, err)
		}
		v = int64(fl)
	}
	*f = flexID(v)
	return nil
}

// flexString decodes a string or a number as a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode string %s: %w", b, err)
	}
	*f = flexString(n.String())
	return nil
}

// decodeButton parses the payload of appear, disappear, keyDown and settings events.
func decodeButton(raw json.RawMessage) (buttonPayload, error) {
	var p buttonPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode button payload: %w", err)
	}
	return p, nil
}

// decodeGlobal parses a didReceiveGlobalSettings payload. Unknown keys are
// kept in Raw so a later write does not drop them.
func decodeGlobal(raw json.RawMessage) (domain.GlobalSettings, error) {
	var p globalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.GlobalSettings{}, fmt.Errorf("decode global settings: %w", err)
		}
	}
	if p.Settings == nil {
		p.Settings = map[string]any{}
	}
	return domain.GlobalSettings{
		AccountID:   stringValue(p.Settings["accountId"]),
		AccessToken: stringValue(p.Settings["accessToken"]),
		Raw:         p.Settings,
	}, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

type registration struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}

type command struct {
	Event   string `json:"event"`
	Context string `json:"context,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type statePayload struct {
	State int `json:"state"`
}

type titlePayload struct {
	Title string `json:"title"`
}
