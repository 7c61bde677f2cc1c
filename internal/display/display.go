// Package display turns computed button values into device commands.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"harvest-deck/internal/domain"
	"harvest-deck/internal/ports"
)

const (
	// lineBreakToken is what users type in labels for a line break.
	lineBreakToken = "<NL>"
	maxLineBreaks  = 3

	// TimerSep separates elapsed time and label on timer buttons.
	TimerSep = "\n\n"
	// TotalsSep separates elapsed time and label on totals buttons.
	TotalsSep = "\n"
	// ErrorLabel replaces the label of a timer whose account failed to load.
	ErrorLabel = "ERROR"
)

// Frame is everything needed to draw one button.
type Frame struct {
	Hours    float64
	Label    string
	State    domain.RenderState
	ShowTime bool
	Sep      string
}

// Idle is the frame of a button that shows only its label.
func Idle(label string) Frame {
	return Frame{Label: label, State: domain.RenderIdle}
}

// FormatElapsed renders decimal hours as H:MM. Minutes are floored, so 1.83 reads 1:49.
func FormatElapsed(hours float64) string {
	if hours < 0 || math.IsNaN(hours) {
		hours = 0
	}
	h := math.Floor(hours)
	m := int(math.Floor((hours - h) * 60))
	if m > 59 {
		m = 59
	}
	return fmt.Sprintf("%d:%02d", int64(h), m)
}

// ExpandLabel replaces up to three line-break tokens with real line breaks.
func ExpandLabel(label string) string {
	return strings.Replace(label, lineBreakToken, "\n", maxLineBreaks)
}

// Title computes the text shown on the button.
func Title(f Frame) string {
	label := ExpandLabel(f.Label)
	if !f.ShowTime {
		return label
	}
	elapsed := FormatElapsed(f.Hours)
	if label == "" {
		return elapsed
	}
	sep := f.Sep
	if sep == "" {
		sep = TimerSep
	}
	return elapsed + sep + label
}

// Dispatcher sends frames to the device.
type Dispatcher struct {
	out ports.Display
	log *slog.Logger
}

func NewDispatcher(out ports.Display, log *slog.Logger) *Dispatcher {
	return &Dispatcher{out: out, log: log}
}

// Paint sets the visual state, then the title, of a button.
func (d *Dispatcher) Paint(ctx context.Context, button string, f Frame) error {
	if err := d.out.SetState(ctx, button, f.State.StateIndex()); err != nil {
		return fmt.Errorf("display: set state: %w", err)
	}
	if err := d.out.SetTitle(ctx, button, Title(f)); err != nil {
		return fmt.Errorf("display: set title: %w", err)
	}
	return nil
}

// Alert flashes the alert glyph on a button. The reason is only logged.
func (d *Dispatcher) Alert(ctx context.Context, button, reason string) error {
	d.log.Warn("button alert", slog.String("button", button), slog.String("reason", reason))
	if err := d.out.ShowAlert(ctx, button); err != nil {
		return fmt.Errorf("display: show alert: %w", err)
	}
	return nil
}
