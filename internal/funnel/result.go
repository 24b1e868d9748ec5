package funnel

import (
	"go.uber.org/zap"

	"github.com/danhatton/bridgematch/internal/panel"
)

const (
	StatusOK                = "ok"
	StatusInsufficientInput = "insufficient_input"
)

// RefinerGroup is one category's chips, in catalog order.
type RefinerGroup struct {
	Category RefinerCategory `json:"category"`
	Refiners []RefinerImpact `json:"refiners"`
}

// ExcludedLender pairs a knocked-out lender with its reasons, for the
// "why not" panel.
type ExcludedLender struct {
	Name    string   `json:"name"`
	Reasons []string `json:"reasons"`
}

// Result is the full funnel output for one deal description. EligibleCount,
// len(EligibleLenderIDs) and the impact calculator's current count are the
// same number from the same evaluation.
type Result struct {
	Status        string   `json:"status"`
	MissingFields []string `json:"missing_fields,omitempty"`

	EligibleCount     int      `json:"eligible_count"`
	EligibleLenderIDs []string `json:"eligible_lender_ids"`

	Refiners []RefinerGroup `json:"refiners,omitempty"`

	LeverageHints LeverageHints `json:"leverage_hints"`
	SecurityHints SecurityHints `json:"security_hints"`

	Excluded []ExcludedLender `json:"excluded,omitempty"`

	LTV            float64         `json:"ltv"`
	WorksRatio     float64         `json:"works_ratio,omitempty"`
	WorksIntensity panel.WorksBand `json:"works_intensity,omitempty"`
}

// Run normalizes the deal, applies knockouts and active refiners, and
// assembles the filter result. One evaluation feeds the count, the id list,
// the refiner impacts and both hint generators; the stages only narrow or
// annotate, never widen. A deal missing its essential figures yields the
// distinguished insufficient-input result rather than an empty match set.
func Run(p *panel.Panel, d Deal, log *zap.Logger) Result {
	res, _, _ := RunWithEvaluation(p, d, log)
	return res
}

// RunWithEvaluation is Run exposing the single evaluation and normalized deal
// the result was assembled from, so a caller layering more work on top (AI
// ranking) feeds the exact same eligible set instead of evaluating again.
// The evaluation is zero-valued on insufficient input.
func RunWithEvaluation(p *panel.Panel, d Deal, log *zap.Logger) (Result, Evaluation, Deal) {
	d = Normalize(d, log)

	if missing := d.MissingEssentials(); len(missing) > 0 {
		return Result{
			Status:            StatusInsufficientInput,
			MissingFields:     missing,
			EligibleLenderIDs: []string{},
		}, Evaluation{}, d
	}

	ev := EvaluateKnockouts(p, d)
	eligible := CurrentEligible(ev, d)
	impacts := ComputeImpacts(ev, d)

	res := Result{
		Status:            StatusOK,
		EligibleCount:     impacts.CurrentCount,
		EligibleLenderIDs: make([]string, 0, len(eligible)),
		LeverageHints:     GenerateLeverageHints(p, d, ev),
		SecurityHints:     GenerateSecurityHints(p, d, ev),
		LTV:               ev.LTV,
		WorksRatio:        ev.WorksRatio,
	}
	if d.Refurb {
		res.WorksIntensity = d.WorksIntensity()
	}
	for _, l := range eligible {
		res.EligibleLenderIDs = append(res.EligibleLenderIDs, l.Name)
	}
	for _, ex := range ev.Excluded {
		res.Excluded = append(res.Excluded, ExcludedLender{Name: ex.Lender.Name, Reasons: ex.Reasons})
	}

	for _, cat := range Categories {
		var group RefinerGroup
		group.Category = cat
		for _, imp := range impacts.PerRefiner {
			if imp.Category == cat {
				group.Refiners = append(group.Refiners, imp)
			}
		}
		if len(group.Refiners) > 0 {
			res.Refiners = append(res.Refiners, group)
		}
	}
	return res, ev, d
}
