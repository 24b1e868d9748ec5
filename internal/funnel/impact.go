package funnel

import "github.com/danhatton/bridgematch/internal/panel"

// RefinerImpact is one chip in the refiner row: what the eligible count would
// be if this refiner's toggle were flipped from its current state.
type RefinerImpact struct {
	Key                string          `json:"key"`
	Icon               string          `json:"icon"`
	Label              string          `json:"label"`
	Category           RefinerCategory `json:"category"`
	Active             bool            `json:"active"`
	RemainingIfToggled int             `json:"remaining_count"`
}

// Impacts is the refiner stage output for one evaluation.
type Impacts struct {
	CurrentCount int
	PerRefiner   []RefinerImpact
}

// ComputeImpacts applies the active refiners to the knockout survivors and
// projects each visible refiner's toggled count. For an inactive refiner the
// projection adds it on top of the other active refiners; for an active one
// it removes it. Activating a refiner can therefore only hold or shrink the
// current count, never grow it.
func ComputeImpacts(ev Evaluation, d Deal) Impacts {
	active := d.ActiveRefinerSet()
	current := applyRefiners(ev.Eligible, d, active)

	out := Impacts{CurrentCount: len(current)}
	for _, def := range Catalog {
		if !def.Visible(d) {
			continue
		}
		isActive := active[def.Key]

		others := make(map[string]bool, len(active))
		for k := range active {
			if k != def.Key {
				others[k] = true
			}
		}
		base := applyRefiners(ev.Eligible, d, others)

		remaining := len(base)
		if !isActive {
			n := 0
			for _, l := range base {
				if def.Rule.Passes(l, d) {
					n++
				}
			}
			remaining = n
		}

		out.PerRefiner = append(out.PerRefiner, RefinerImpact{
			Key:                def.Key,
			Icon:               def.Icon,
			Label:              def.Label,
			Category:           def.Category,
			Active:             isActive,
			RemainingIfToggled: remaining,
		})
	}
	return out
}

// CurrentEligible is the knockout survivors narrowed by the active refiners,
// in panel order. The filter response's eligible ids, its count, and the
// impact calculator's CurrentCount all come from this one slice.
func CurrentEligible(ev Evaluation, d Deal) []*panel.Lender {
	return applyRefiners(ev.Eligible, d, d.ActiveRefinerSet())
}
