// Package streamdeck connects the plugin to the Stream Deck host over its
// local websocket and translates between host messages and the engine ports.
package streamdeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"harvest-deck/internal/ports"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

// ErrClosed is returned by writes after the connection has shut down.
var ErrClosed = errors.New("streamdeck: connection closed")

// Conn is one plugin connection to the host. It implements ports.Display and
// ports.SettingsStore; Run feeds inbound events to a ports.DeviceEvents.
type Conn struct {
	ws         *websocket.Conn
	pluginUUID string
	log        *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the host listening on the given local port.
func Dial(ctx context.Context, port int, pluginUUID string, log *slog.Logger) (*Conn, error) {
	return DialURL(ctx, fmt.Sprintf("ws://127.0.0.1:%d", port), pluginUUID, log)
}

// DialURL connects to the host at url.
func DialURL(ctx context.Context, url, pluginUUID string, log *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("streamdeck: dial %s: %w", url, err)
	}
	return NewConn(ws, pluginUUID, log), nil
}

// NewConn wraps an established websocket and starts its write pump.
func NewConn(ws *websocket.Conn, pluginUUID string, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}
	c := &Conn{
		ws:         ws,
		pluginUUID: pluginUUID,
		log:        log,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close shuts the connection down. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// Register announces the plugin to the host and asks for the global settings,
// which arrive later as a didReceiveGlobalSettings event.
func (c *Conn) Register(ctx context.Context, registerEvent string) error {
	if err := c.write(ctx, registration{Event: registerEvent, UUID: c.pluginUUID}); err != nil {
		return fmt.Errorf("streamdeck: register: %w", err)
	}
	c.log.Info("registered with host", slog.String("event", registerEvent))
	return c.GetGlobalSettings(ctx)
}

// Run reads host events and dispatches them until the connection closes or
// ctx is cancelled.
func (c *Conn) Run(ctx context.Context, events ports.DeviceEvents) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.Close()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("host closed connection")
				return nil
			}
			return fmt.Errorf("streamdeck: read: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Warn("dropping malformed message", slog.String("error", err.Error()))
			continue
		}
		c.dispatch(ctx, ev, events)
	}
}

func (c *Conn) dispatch(ctx context.Context, ev Event, events ports.DeviceEvents) {
	log := c.log.With(slog.String("event", ev.Event), slog.String("button", ev.Context))

	switch ev.Event {
	case EventWillAppear, EventWillDisappear, EventKeyDown, EventDidReceiveSettings:
		p, err := decodeButton(ev.Payload)
		if err != nil {
			log.Warn("dropping event", slog.String("error", err.Error()))
			return
		}
		if p.IsInMultiAction {
			log.Debug("ignoring multi-action event")
			return
		}
		s, pos := p.Settings.settings(), p.Coordinates.position()
		switch ev.Event {
		case EventWillAppear:
			events.ButtonAppeared(ctx, ev.Context, s, pos)
		case EventWillDisappear:
			events.ButtonDisappeared(ctx, ev.Context)
		case EventKeyDown:
			events.ButtonPressed(ctx, ev.Context, s, pos)
		case EventDidReceiveSettings:
			events.SettingsChanged(ctx, ev.Context, s, pos)
		}

	case EventInspectorDisappeared:
		events.SettingsRequestCompleted(ctx, ev.Context)

	case EventDidReceiveGlobal:
		g, err := decodeGlobal(ev.Payload)
		if err != nil {
			log.Warn("dropping event", slog.String("error", err.Error()))
			return
		}
		events.GlobalSettingsReceived(ctx, g)

	default:
		log.Debug("ignoring event")
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("write failed", slog.String("error", err.Error()))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetState selects the icon slot from the manifest state list.
func (c *Conn) SetState(ctx context.Context, button string, state int) error {
	return c.write(ctx, command{Event: cmdSetState, Context: button, Payload: statePayload{State: state}})
}

func (c *Conn) SetTitle(ctx context.Context, button, title string) error {
	return c.write(ctx, command{Event: cmdSetTitle, Context: button, Payload: titlePayload{Title: title}})
}

func (c *Conn) ShowAlert(ctx context.Context, button string) error {
	return c.write(ctx, command{Event: cmdShowAlert, Context: button})
}

// GetSettings asks the host to send the button's settings as didReceiveSettings.
func (c *Conn) GetSettings(ctx context.Context, button string) error {
	return c.write(ctx, command{Event: cmdGetSettings, Context: button})
}

func (c *Conn) GetGlobalSettings(ctx context.Context) error {
	return c.write(ctx, command{Event: cmdGetGlobalSettings, Context: c.pluginUUID})
}

func (c *Conn) SetSettings(ctx context.Context, button string, payload map[string]any) error {
	return c.write(ctx, command{Event: cmdSetSettings, Context: button, Payload: payload})
}

func (c *Conn) SetGlobalSettings(ctx context.Context, payload map[string]any) error {
	return c.write(ctx, command{Event: cmdSetGlobalSettings, Context: c.pluginUUID, Payload: payload})
}
