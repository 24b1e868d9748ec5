package funnel

import (
	"github.com/danhatton/bridgematch/internal/panel"
)

// RefinerCategory orders the chip groups in the UI.
type RefinerCategory string

const (
	CategoryBorrower RefinerCategory = "borrower"
	CategoryDeal     RefinerCategory = "deal"
	CategoryProduct  RefinerCategory = "product"
	CategoryRefurb   RefinerCategory = "refurb"
	CategoryLand     RefinerCategory = "land"
)

// Categories in presentation order.
var Categories = []RefinerCategory{CategoryBorrower, CategoryDeal, CategoryProduct, CategoryRefurb, CategoryLand}

// Rule is one refiner's eligibility predicate. Implementations are small
// tagged variants so a new refiner is a new catalog row, not a new code path.
// An unknown capability answer never passes a rule.
type Rule interface {
	Passes(l *panel.Lender, d Deal) bool
}

// flagRule passes when a single questionnaire flag is granted.
type flagRule struct {
	cap func(*panel.Lender) panel.Flag
}

func (r flagRule) Passes(l *panel.Lender, _ Deal) bool { return r.cap(l).Granted() }

// anyFlagRule passes when any of several flags is granted.
type anyFlagRule struct {
	caps []func(*panel.Lender) panel.Flag
}

func (r anyFlagRule) Passes(l *panel.Lender, _ Deal) bool {
	for _, c := range r.caps {
		if c(l).Granted() {
			return true
		}
	}
	return false
}

// appetiteRule passes when the lender scored the scenario at or above Min.
// An unanswered scenario fails.
type appetiteRule struct {
	scenario string
	min      int
}

func (r appetiteRule) Passes(l *panel.Lender, _ Deal) bool {
	score, ok := l.AppetiteFor(r.scenario)
	return ok && score >= r.min
}

// speedRule approximates "can complete fast": dual legal representation, or a
// minimum interest commitment of one month.
type speedRule struct{}

func (speedRule) Passes(l *panel.Lender, _ Deal) bool {
	return l.Caps.DualLegalRep.Granted() || l.MinMonthsInterest == 1
}

// firstTimeDevRule passes when the lender's stated minimum refurb experience
// for the deal's works band is none. A lender with no stated minimum passes;
// silence on experience is not a gate in practice.
type firstTimeDevRule struct{}

func (firstTimeDevRule) Passes(l *panel.Lender, d Deal) bool {
	terms, ok := l.Refurb.Band(d.WorksIntensity())
	if !ok {
		return false
	}
	return terms.MinExperience <= 0
}

// bandRule passes when the lender explicitly supports the given works band.
type bandRule struct {
	band panel.WorksBand
}

func (r bandRule) Passes(l *panel.Lender, _ Deal) bool {
	terms, ok := l.Refurb.Band(r.band)
	return ok && terms.Supported.Granted()
}

// stagedFundingRule passes when the lender funds works in arrears stages.
type stagedFundingRule struct{}

func (stagedFundingRule) Passes(l *panel.Lender, _ Deal) bool {
	return l.Refurb.StagedFunding.Granted()
}

// groundUpRule passes when the lender funds ground-up development on land.
type groundUpRule struct{}

func (groundUpRule) Passes(l *panel.Lender, _ Deal) bool {
	return l.Land.GroundUp.Granted()
}

// RefinerDef is one catalog entry. Visible gates whether the refiner applies
// to the deal at all; an invisible refiner never appears in impact output and
// is ignored even if its key is in the active set.
type RefinerDef struct {
	Key      string
	Icon     string
	Label    string
	Category RefinerCategory
	Visible  func(Deal) bool
	Rule     Rule
}

func visibleAlways(Deal) bool { return true }
func visibleRefurb(d Deal) bool { return d.Refurb }
func visibleLand(d Deal) bool {
	return d.PropertyType == panel.PropertyLandWithPP || d.PropertyType == panel.PropertyLandNoPP
}
func visibleResidential(d Deal) bool { return d.PropertyType == panel.PropertyResidential }
func visibleWorksBand(b panel.WorksBand) func(Deal) bool {
	return func(d Deal) bool { return d.Refurb && d.WorksIntensity() == b }
}
func visibleEntity(key string) func(Deal) bool {
	return func(d Deal) bool { return d.EntityType == key }
}

// Catalog is the fixed refiner registry, in presentation order: borrower,
// deal, product, refurb, land. Keys are unique; registration order within a
// category fixes the output order so the chip row is stable across renders.
var Catalog = []RefinerDef{
	{Key: "foreign_national", Icon: "🌍", Label: "Foreign National", Category: CategoryBorrower, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.ForeignNationals }}},
	{Key: "expat", Icon: "🛫", Label: "Expat", Category: CategoryBorrower, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.Expats }}},
	{Key: "adverse_credit", Icon: "⚠️", Label: "Adverse Credit", Category: CategoryBorrower, Visible: visibleAlways,
		Rule: anyFlagRule{[]func(*panel.Lender) panel.Flag{
			func(l *panel.Lender) panel.Flag { return l.Caps.AdverseCredit },
			func(l *panel.Lender) panel.Flag { return l.Caps.BankruptcyIVA },
		}}},
	{Key: "bankruptcy", Icon: "💀", Label: "Bankruptcy/IVA", Category: CategoryBorrower, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.BankruptcyIVA }}},
	{Key: "ftb", Icon: "🏠", Label: "First Time Buyer", Category: CategoryBorrower, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.FirstTimeBuyers }}},
	{Key: "ftl", Icon: "🔑", Label: "First Time Landlord", Category: CategoryBorrower, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.FirstTimeLandlords }}},
	{Key: "trust", Icon: "🏛️", Label: "Trust Lending", Category: CategoryBorrower, Visible: visibleEntity("trust"),
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.Trusts }}},
	{Key: "sipp", Icon: "💼", Label: "SIPP/SSAS", Category: CategoryBorrower, Visible: visibleEntity("sipp_ssas"),
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.SIPPSSAS }}},
	{Key: "charity", Icon: "🎁", Label: "Charity", Category: CategoryBorrower, Visible: visibleEntity("charity"),
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.Charities }}},

	{Key: "auction", Icon: "🔨", Label: "Auction", Category: CategoryDeal, Visible: visibleAlways,
		Rule: appetiteRule{scenario: "auction", min: 2}},
	{Key: "hmo", Icon: "🏘️", Label: "HMO Conversion", Category: CategoryDeal, Visible: visibleAlways,
		Rule: appetiteRule{scenario: "hmo_conversion", min: 2}},
	{Key: "probate", Icon: "📜", Label: "Probate", Category: CategoryDeal, Visible: visibleAlways,
		Rule: appetiteRule{scenario: "probate", min: 2}},
	{Key: "comm_to_resi", Icon: "🔄", Label: "Comm to Resi", Category: CategoryDeal, Visible: visibleAlways,
		Rule: appetiteRule{scenario: "comm_to_resi", min: 2}},
	{Key: "developer_exit", Icon: "🏗️", Label: "Developer Exit", Category: CategoryDeal, Visible: visibleAlways,
		Rule: appetiteRule{scenario: "developer_exit", min: 2}},

	{Key: "speed", Icon: "⚡", Label: "Speed Critical", Category: CategoryProduct, Visible: visibleAlways,
		Rule: speedRule{}},
	{Key: "serviced_interest", Icon: "💰", Label: "Serviced Interest", Category: CategoryProduct, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.ServicedInterest }}},
	{Key: "dual_legal", Icon: "⚖️", Label: "Dual Legal Rep", Category: CategoryProduct, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.DualLegalRep }}},
	{Key: "flexible", Icon: "🔄", Label: "Flexible Facility", Category: CategoryProduct, Visible: visibleAlways,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.FlexibleFacility }}},
	{Key: "avm", Icon: "🖥️", Label: "AVM/Desktop Val", Category: CategoryProduct, Visible: visibleResidential,
		Rule: flagRule{func(l *panel.Lender) panel.Flag { return l.Caps.AVMs }}},

	{Key: "light_works", Icon: "🖌️", Label: "Light Works (<30%)", Category: CategoryRefurb, Visible: visibleWorksBand(panel.WorksLight),
		Rule: bandRule{panel.WorksLight}},
	{Key: "medium_works", Icon: "🔧", Label: "Medium Works (30-50%)", Category: CategoryRefurb, Visible: visibleWorksBand(panel.WorksMedium),
		Rule: bandRule{panel.WorksMedium}},
	{Key: "heavy_works", Icon: "🏚️", Label: "Heavy Works (50-100%)", Category: CategoryRefurb, Visible: visibleWorksBand(panel.WorksHeavy),
		Rule: bandRule{panel.WorksHeavy}},
	{Key: "very_heavy_works", Icon: "🏗️", Label: "Very Heavy Works (>100%)", Category: CategoryRefurb, Visible: visibleWorksBand(panel.WorksVeryHeavy),
		Rule: bandRule{panel.WorksVeryHeavy}},
	{Key: "staged_funding", Icon: "💸", Label: "Staged Funding", Category: CategoryRefurb, Visible: visibleRefurb,
		Rule: stagedFundingRule{}},
	{Key: "first_time_dev", Icon: "👷", Label: "First-Time Developer OK", Category: CategoryRefurb, Visible: visibleRefurb,
		Rule: firstTimeDevRule{}},

	{Key: "ground_up", Icon: "🧱", Label: "Ground-Up Development", Category: CategoryLand, Visible: visibleLand,
		Rule: groundUpRule{}},
}

// RefinerByKey looks up a catalog entry.
func RefinerByKey(key string) (RefinerDef, bool) {
	for _, def := range Catalog {
		if def.Key == key {
			return def, true
		}
	}
	return RefinerDef{}, false
}

// VisibleRefiners returns the catalog entries applicable to the deal, in
// registration order.
func VisibleRefiners(d Deal) []RefinerDef {
	var out []RefinerDef
	for _, def := range Catalog {
		if def.Visible(d) {
			out = append(out, def)
		}
	}
	return out
}

// applyRefiners narrows the eligible set by every active, visible refiner.
// Unknown keys in the active set are ignored; they cannot widen or narrow.
func applyRefiners(eligible []*panel.Lender, d Deal, active map[string]bool) []*panel.Lender {
	out := eligible
	for _, def := range Catalog {
		if !active[def.Key] || !def.Visible(d) {
			continue
		}
		var kept []*panel.Lender
		for _, l := range out {
			if def.Rule.Passes(l, d) {
				kept = append(kept, l)
			}
		}
		out = kept
	}
	return out
}
