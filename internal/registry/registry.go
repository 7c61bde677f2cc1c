// Package registry tracks the buttons currently visible on the device.
package registry

import (
	"iter"

	"harvest-deck/internal/domain"
)

type slot struct {
	cfg      domain.ButtonConfig
	rendered domain.RenderState
}

// Registry is an insertion-ordered set of buttons keyed by their device context.
// It is not safe for concurrent use; the engine loop owns it.
type Registry struct {
	order []string
	slots map[string]*slot
}

func New() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

// Add inserts a button or replaces the configuration of an existing one.
// A replaced button keeps its place in the iteration order.
func (r *Registry) Add(button string, cfg domain.ButtonConfig) {
	if s, ok := r.slots[button]; ok {
		s.cfg = cfg
		return
	}
	r.order = append(r.order, button)
	r.slots[button] = &slot{cfg: cfg}
}

// Remove deletes a button and reports whether it was present.
func (r *Registry) Remove(button string) bool {
	if _, ok := r.slots[button]; !ok {
		return false
	}
	delete(r.slots, button)
	for i, b := range r.order {
		if b == button {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the configuration of a button.
func (r *Registry) Get(button string) (domain.ButtonConfig, bool) {
	s, ok := r.slots[button]
	if !ok {
		return domain.ButtonConfig{}, false
	}
	return s.cfg, true
}

// Len returns the number of registered buttons.
func (r *Registry) Len() int { return len(r.order) }

// All yields buttons in insertion order. Buttons removed while iterating are skipped.
func (r *Registry) All() iter.Seq2[string, domain.ButtonConfig] {
	return func(yield func(string, domain.ButtonConfig) bool) {
		order := append([]string(nil), r.order...)
		for _, b := range order {
			s, ok := r.slots[b]
			if !ok {
				continue
			}
			if !yield(b, s.cfg) {
				return
			}
		}
	}
}

// Accounts returns the distinct accounts of complete buttons, in registry order.
// When two buttons name the same account id with different tokens the first wins.
func (r *Registry) Accounts() []domain.Account {
	seen := make(map[string]bool)
	var out []domain.Account
	for _, cfg := range r.All() {
		if !cfg.Complete() || seen[cfg.Account.ID] {
			continue
		}
		seen[cfg.Account.ID] = true
		out = append(out, cfg.Account)
	}
	return out
}

// NeedsTotals reports whether any complete totals-kind button is registered.
func (r *Registry) NeedsTotals() bool {
	for _, cfg := range r.All() {
		if cfg.Complete() && cfg.Kind.IsTotals() {
			return true
		}
	}
	return false
}

// SetRendered records what a button currently shows.
func (r *Registry) SetRendered(button string, state domain.RenderState) {
	if s, ok := r.slots[button]; ok {
		s.rendered = state
	}
}

// Rendered returns what a button currently shows.
func (r *Registry) Rendered(button string) domain.RenderState {
	if s, ok := r.slots[button]; ok {
		return s.rendered
	}
	return domain.RenderIdle
}
