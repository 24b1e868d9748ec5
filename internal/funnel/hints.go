package funnel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danhatton/bridgematch/internal/panel"
)

// TightLTVThreshold is the point above which a deal's leverage starts
// knocking lenders out and the hint generators engage.
const TightLTVThreshold = 70.0

const maxHints = 3

// LeverageUnlock names one lender that a single flipped deal attribute would
// admit, with the ceiling that would then apply.
type LeverageUnlock struct {
	Name    string  `json:"name"`
	Ceiling float64 `json:"ceiling"`
	Detail  string  `json:"detail"`
}

// LeverageHints surfaces near-miss lenders: excluded today, admitted if the
// deal were a refurb or serviced its interest.
type LeverageHints struct {
	RefurbUnlocks         []LeverageUnlock `json:"refurb_unlocks,omitempty"`
	ServicedInterestHelps []LeverageUnlock `json:"serviced_interest_helps,omitempty"`
	TightLTV              bool             `json:"tight_ltv"`
	Summary               string           `json:"summary,omitempty"`
}

// SecurityHints reports whether additional security over other property could
// widen the panel, and how many lenders would entertain each structure.
type SecurityHints struct {
	AdditionalSecurityHelps bool   `json:"additional_security_helps"`
	Supporting2ndCount      int    `json:"supporting_2nd_count"`
	EquitableCount          int    `json:"equitable_count"`
	Message                 string `json:"message,omitempty"`
}

// GenerateLeverageHints re-runs the knockout evaluator with one deal
// attribute hypothetically flipped and reports lenders that the flip admits.
// It never uses a separate rule set, so a hint can always be reproduced by
// actually flipping the attribute in the form. Hints only fire above the
// tight-LTV threshold; below it nothing is being left on the table.
func GenerateLeverageHints(p *panel.Panel, d Deal, ev Evaluation) LeverageHints {
	hints := LeverageHints{TightLTV: ev.LTV > TightLTVThreshold}
	if !hints.TightLTV {
		return hints
	}

	if !d.Refurb {
		refurb := d
		refurb.Refurb = true
		hints.RefurbUnlocks = unlockedBy(p, refurb, ev, "day-1 refurb advance")
	}
	if !d.ServicedInterest {
		serviced := d
		serviced.ServicedInterest = true
		hints.ServicedInterestHelps = unlockedBy(p, serviced, ev, "gross ceiling usable in full with serviced interest")
	}

	var parts []string
	if len(hints.RefurbUnlocks) > 0 {
		parts = append(parts, "Refurb scenario unlocks: "+joinNames(hints.RefurbUnlocks))
	}
	if len(hints.ServicedInterestHelps) > 0 {
		parts = append(parts, "Serviced interest helps: "+joinNames(hints.ServicedInterestHelps))
	}
	hints.Summary = strings.Join(parts, "; ")
	return hints
}

// unlockedBy evaluates the counterfactual deal and returns lenders eligible
// under it that the base evaluation excluded, best ceiling first, names
// breaking ties, capped at maxHints.
func unlockedBy(p *panel.Panel, counterfactual Deal, base Evaluation, detail string) []LeverageUnlock {
	baseEligible := make(map[string]bool, len(base.Eligible))
	for _, l := range base.Eligible {
		baseEligible[l.Name] = true
	}

	after := EvaluateKnockouts(p, counterfactual)
	var out []LeverageUnlock
	for _, l := range after.Eligible {
		if baseEligible[l.Name] {
			continue
		}
		out = append(out, LeverageUnlock{
			Name:    l.Name,
			Ceiling: after.Ceilings[l.Name],
			Detail:  detail,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ceiling != out[j].Ceiling {
			return out[i].Ceiling > out[j].Ceiling
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxHints {
		out = out[:maxHints]
	}
	return out
}

// GenerateSecurityHints counts lenders that would entertain a supporting 2nd
// or equitable charge over other property. Only relevant on a 1st-charge deal
// that is either tight on leverage or thin on matches.
func GenerateSecurityHints(p *panel.Panel, d Deal, ev Evaluation) SecurityHints {
	var hints SecurityHints
	if d.Charge != panel.ChargeFirst {
		return hints
	}
	if ev.LTV <= TightLTVThreshold && len(ev.Eligible) >= 20 {
		return hints
	}

	for _, l := range p.Lenders {
		if l.Invalid != "" {
			continue
		}
		if l.LTV.ResidentialSupporting2nd != nil {
			hints.Supporting2ndCount++
		}
		if l.LTV.EquitableCharge != nil {
			hints.EquitableCount++
		}
	}

	switch {
	case ev.LTV > TightLTVThreshold:
		hints.AdditionalSecurityHelps = true
		hints.Message = fmt.Sprintf(
			"If borrower has other property: supporting 2nd charge (%d lenders) or equitable charge (%d lenders) could reduce effective LTV",
			hints.Supporting2ndCount, hints.EquitableCount)
	case len(ev.Eligible) < 10:
		hints.AdditionalSecurityHelps = true
		hints.Message = fmt.Sprintf(
			"Additional security could expand options: %d lenders offer supporting 2nd charge",
			hints.Supporting2ndCount)
	}
	return hints
}

func joinNames(unlocks []LeverageUnlock) string {
	names := make([]string, len(unlocks))
	for i, u := range unlocks {
		names[i] = u.Name
	}
	return strings.Join(names, ", ")
}
