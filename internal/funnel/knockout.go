package funnel

import (
	"fmt"

	"github.com/danhatton/bridgematch/internal/panel"
)

// GrossRetentionPoints is the haircut applied to a gross-basis ceiling when
// the deal does not service interest: rolled-up interest comes out of the
// advance, so the usable ceiling sits below the quoted gross figure. Serviced
// interest removes the haircut, which is what makes the serviced-interest
// leverage hint a pure counterfactual re-run of this evaluator.
const GrossRetentionPoints = 5.0

// Exclusion records why a lender fell out of the knockout stage.
type Exclusion struct {
	Lender  *panel.Lender
	Reasons []string
}

// Evaluation is the result of one knockout pass over the panel. Eligible
// preserves panel order. Ceilings holds the LTV ceiling that was applied to
// each lender that offered the deal's configuration, keyed by lender name;
// the hint generator reports these as the limiting figure.
type Evaluation struct {
	Eligible   []*panel.Lender
	Excluded   []Exclusion
	Ceilings   map[string]float64
	LTV        float64
	WorksRatio float64
}

// entityGate maps a deal entity type onto the capability flag that can veto
// it. Individuals and plain limited companies are not gated here; company
// structure subtleties are refiner territory.
func entityGate(caps *panel.Capabilities, entityType string) panel.Flag {
	switch entityType {
	case "trust":
		return caps.Trusts
	case "charity":
		return caps.Charities
	case "llp":
		return caps.LLPs
	case "sipp_ssas":
		return caps.SIPPSSAS
	case "overseas":
		return caps.OverseasEntities
	default:
		return panel.FlagUnknown
	}
}

// EvaluateKnockouts applies every hard rule to every lender and splits the
// panel into eligible and excluded, with per-lender exclusion reasons. It is
// pure and deterministic: same panel, same deal, same answer. A lender whose
// stored record failed to decode is excluded as unevaluable rather than
// aborting the run.
func EvaluateKnockouts(p *panel.Panel, d Deal) Evaluation {
	ev := Evaluation{
		Ceilings:   make(map[string]float64, p.Len()),
		LTV:        d.LTV(),
		WorksRatio: d.WorksRatio(),
	}

	for _, l := range p.Lenders {
		if l.Invalid != "" {
			ev.Excluded = append(ev.Excluded, Exclusion{Lender: l, Reasons: []string{"Record could not be evaluated: " + l.Invalid}})
			continue
		}

		var reasons []string

		if l.Size.Min > 0 && d.LoanAmount < l.Size.Min {
			reasons = append(reasons, fmt.Sprintf("Below minimum loan (£%s)", formatMoney(l.Size.Min)))
		}
		if l.Size.Max > 0 && d.LoanAmount > l.Size.Max {
			reasons = append(reasons, fmt.Sprintf("Above maximum loan (£%s)", formatMoney(l.Size.Max)))
		}

		// Compliance rules fail closed: an unanswered question is a no.
		if d.Regulated && !l.Caps.RegulatedLending.Granted() {
			reasons = append(reasons, "Doesn't offer regulated bridging")
		}
		if l.ExcludesGeography(d.Geography) {
			reasons = append(reasons, "Doesn't lend in "+d.Geography)
		}

		if d.Refurb {
			if !l.Caps.RefurbLending.Granted() {
				reasons = append(reasons, "Doesn't offer refurbishment bridging")
			} else if d.WorksRatio() > 0 {
				band := d.WorksIntensity()
				if terms, ok := l.Refurb.Band(band); ok && terms.Supported == panel.FlagNo {
					reasons = append(reasons, "Doesn't fund "+worksBandLabel(band))
				}
			}
		}

		if gate := entityGate(&l.Caps, d.EntityType); gate == panel.FlagNo {
			reasons = append(reasons, "Doesn't lend to "+entityLabel(d.EntityType))
		}

		ceiling, offered := effectiveCeiling(l, d)
		switch {
		case !offered:
			reasons = append(reasons, configurationReason(d))
		case ev.LTV > ceiling:
			reasons = append(reasons, fmt.Sprintf("LTV %.1f%% exceeds max %.0f%%", ev.LTV, ceiling))
			ev.Ceilings[l.Name] = ceiling
		default:
			ev.Ceilings[l.Name] = ceiling
		}

		if len(reasons) > 0 {
			ev.Excluded = append(ev.Excluded, Exclusion{Lender: l, Reasons: reasons})
		} else {
			ev.Eligible = append(ev.Eligible, l)
		}
	}
	return ev
}

// effectiveCeiling selects the LTV ceiling for the deal configuration. For a
// refurb deal a supported works band's day-1 advance ceiling applies when it
// beats the standard grid entry; many lenders go higher on day 1 against a
// works schedule. The second return is false when the lender does not offer
// the configuration at all.
func effectiveCeiling(l *panel.Lender, d Deal) (float64, bool) {
	limit := l.LTV.Lookup(d.PropertyType, d.Charge, d.Regulated)

	var standard float64
	if limit != nil {
		standard = applyBasis(limit.Ceiling, limit.Basis, d)
	}

	if d.Refurb && l.Caps.RefurbLending.Granted() {
		if terms, ok := l.Refurb.Band(d.WorksIntensity()); ok && terms.Supported.Granted() && terms.MaxDay1LTV > 0 {
			day1 := applyBasis(terms.MaxDay1LTV, terms.Day1Basis, d)
			if limit == nil || day1 > standard {
				return day1, true
			}
		}
	}

	if limit == nil {
		return 0, false
	}
	return standard, true
}

func applyBasis(ceiling float64, basis panel.LTVBasis, d Deal) float64 {
	if basis == panel.BasisGross && !d.ServicedInterest {
		return ceiling - GrossRetentionPoints
	}
	return ceiling
}

// configurationReason words the "no ceiling defined" exclusion for the most
// specific aspect of the configuration, so the UI can explain the knockout.
func configurationReason(d Deal) string {
	if d.Regulated {
		return "Doesn't offer regulated bridging at any LTV"
	}
	switch d.PropertyType {
	case panel.PropertyLandWithPP:
		return "Doesn't lend on land with planning"
	case panel.PropertyLandNoPP:
		return "Doesn't lend on land without planning"
	}
	switch d.Charge {
	case panel.ChargeSupporting2nd:
		return "Doesn't offer supporting 2nd charge"
	case panel.ChargeStandalone2nd:
		return "Doesn't offer standalone 2nd charge"
	case panel.ChargeEquitable:
		return "Doesn't offer equitable charges"
	}
	return "Doesn't lend on " + propertyLabel(d.PropertyType)
}

func worksBandLabel(b panel.WorksBand) string {
	switch b {
	case panel.WorksLight:
		return "light works (<30% of value)"
	case panel.WorksMedium:
		return "medium works (30-50% of value)"
	case panel.WorksHeavy:
		return "heavy works (50-100% of value)"
	case panel.WorksVeryHeavy:
		return "very heavy works (>100% of value)"
	}
	return string(b)
}

func propertyLabel(c panel.PropertyClass) string {
	for _, p := range panel.PropertyTypes {
		if p.Key == c {
			return p.Label
		}
	}
	return string(c)
}

func entityLabel(key string) string {
	for _, e := range panel.EntityTypes {
		if e.Key == key {
			return e.Label
		}
	}
	return key
}

func formatMoney(v float64) string {
	n := int64(v)
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	var parts []string
	for n > 0 {
		if n >= 1000 {
			parts = append([]string{fmt.Sprintf("%03d", n%1000)}, parts...)
		} else {
			parts = append([]string{fmt.Sprintf("%d", n%1000)}, parts...)
		}
		n /= 1000
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}
