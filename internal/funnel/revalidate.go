package funnel

import (
	"fmt"
	"strings"

	"github.com/danhatton/bridgematch/internal/panel"
)

// AIPDetails is the extra information a broker gathers before approaching a
// lender for an agreement in principle. All fields are free-form; only a few
// feed revalidation, the rest flow into the presentation email.
type AIPDetails struct {
	BorrowerName              string `json:"borrower_name,omitempty"`
	BorrowerType              string `json:"borrower_type,omitempty"`
	IsHomeowner               *bool  `json:"is_homeowner,omitempty"`
	AssetsLiabilities         string `json:"assets_liabilities,omitempty"`
	PropertyAddress           string `json:"property_address,omitempty"`
	AdditionalSecurityAddress string `json:"additional_security_address,omitempty"`
	RefurbExperience          string `json:"refurb_experience,omitempty"`
	WorksSchedule             string `json:"works_schedule,omitempty"`
	GDVEstimate               string `json:"gdv_estimate,omitempty"`
	ExitStrategy              string `json:"exit_strategy,omitempty"`
	ExitTimeframe             string `json:"exit_timeframe,omitempty"`
	Urgency                   string `json:"urgency,omitempty"`
	AdditionalNotes           string `json:"additional_notes,omitempty"`
}

// Alternative is a substitute lender suggested when AIP details break the
// original match.
type Alternative struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Revalidation is the outcome of re-checking a chosen lender once AIP details
// are known. StillFits stays true for soft warnings; it flips when a detail
// contradicts a stated lender requirement.
type Revalidation struct {
	StillFits    bool          `json:"still_fits"`
	Warnings     []string      `json:"warnings"`
	Alternatives []Alternative `json:"alternative_suggestions"`
}

const maxAlternatives = 3

// Revalidate re-checks the chosen lender against the AIP details. Checks
// cover refurb experience, completion urgency, owner-occupier status on
// regulated deals, and the borrower's asset position.
func Revalidate(p *panel.Panel, l *panel.Lender, d Deal, aip AIPDetails) Revalidation {
	out := Revalidation{StillFits: true, Warnings: []string{}, Alternatives: []Alternative{}}

	if d.Refurb && aip.RefurbExperience != "" && isFirstTimer(aip.RefurbExperience) {
		if terms, ok := l.Refurb.Band(d.WorksIntensity()); ok && terms.MinExperience >= 2 {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("%s requires %d+ projects experience for refurb", l.Name, terms.MinExperience))
			out.StillFits = false
			out.Alternatives = firstTimerAlternatives(p, l, d)
		}
	}

	if isUrgent(aip.Urgency) && l.Caps.DualLegalRep == panel.FlagNo {
		out.Warnings = append(out.Warnings,
			l.Name+" doesn't offer dual legal rep - may be slower for auction")
	}

	if d.Regulated && aip.IsHomeowner != nil && !*aip.IsHomeowner {
		if l.Caps.NonOwnerOccupiers == panel.FlagNo {
			out.Warnings = append(out.Warnings,
				l.Name+" may not lend to non-owner occupiers on regulated deals")
			out.StillFits = false
		}
	}

	if hasWeakALProfile(aip.AssetsLiabilities) && l.Caps.NilOrNegativeAL == panel.FlagNo {
		out.Warnings = append(out.Warnings, l.Name+" doesn't accept nil/negative A&L profiles")
		out.StillFits = false
	}

	return out
}

// firstTimerAlternatives finds other panel lenders with no stated experience
// minimum for the deal's works band, capped at maxAlternatives.
func firstTimerAlternatives(p *panel.Panel, chosen *panel.Lender, d Deal) []Alternative {
	band := d.WorksIntensity()
	var out []Alternative
	for _, alt := range p.Lenders {
		if alt.Name == chosen.Name || alt.Invalid != "" {
			continue
		}
		terms, ok := alt.Refurb.Band(band)
		if ok && terms.Supported.Granted() && terms.MinExperience <= 0 {
			out = append(out, Alternative{Name: alt.Name, Reason: "Accepts first-time developers"})
			if len(out) == maxAlternatives {
				break
			}
		}
	}
	return out
}

func isFirstTimer(experience string) bool {
	e := strings.ToLower(experience)
	return strings.Contains(e, "none") || strings.Contains(e, "0") || strings.Contains(e, "first")
}

func isUrgent(urgency string) bool {
	u := strings.ToLower(urgency)
	return strings.Contains(u, "auction") || strings.Contains(u, "28") || strings.Contains(u, "urgent")
}

func hasWeakALProfile(al string) bool {
	a := strings.ToLower(al)
	return strings.Contains(a, "nil") || strings.Contains(a, "negative")
}
