package panel

import "sync/atomic"

// Holder publishes the current panel to concurrent funnel evaluations.
// Reloads replace the whole panel in one atomic swap so an in-flight
// evaluation never observes a half-updated panel.
type Holder struct {
	current atomic.Pointer[Panel]
}

func NewHolder(p *Panel) *Holder {
	h := &Holder{}
	h.current.Store(p)
	return h
}

// Current returns the panel snapshot to evaluate against. Callers keep the
// returned pointer for the duration of one evaluation and never mutate it.
func (h *Holder) Current() *Panel {
	return h.current.Load()
}

// Swap installs a freshly loaded panel.
func (h *Holder) Swap(p *Panel) {
	h.current.Store(p)
}
