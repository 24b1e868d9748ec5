package funnel

import (
	"reflect"
	"strings"
	"testing"

	"github.com/danhatton/bridgematch/internal/panel"
)

func residentialLender(name string, ceiling float64) *panel.Lender {
	return &panel.Lender{
		Name: name,
		LTV:  panel.LTVTable{Residential1st: &panel.LTVLimit{Ceiling: ceiling, Basis: panel.BasisNet}},
	}
}

func testPanel(lenders ...*panel.Lender) *panel.Panel {
	return &panel.Panel{Lenders: lenders}
}

func baseDeal() Deal {
	return Deal{
		TransactionType: "purchase",
		LoanAmount:      200000,
		MarketValue:     400000,
		PropertyType:    panel.PropertyResidential,
		Geography:       "England",
		Charge:          panel.ChargeFirst,
		EntityType:      "individual",
	}
}

func names(lenders []*panel.Lender) []string {
	out := make([]string, len(lenders))
	for i, l := range lenders {
		out[i] = l.Name
	}
	return out
}

func TestScenarioStandardResidential(t *testing.T) {
	// loan=200000, value=400000 -> LTV 50%. Ceilings and size bounds decide.
	tight := residentialLender("Tight Cap", 45)
	fits := residentialLender("Fits", 70)
	bigMin := residentialLender("Big Min", 70)
	bigMin.Size.Min = 500000
	smallMax := residentialLender("Small Max", 70)
	smallMax.Size.Max = 150000

	ev := EvaluateKnockouts(testPanel(tight, fits, bigMin, smallMax), baseDeal())

	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Fits"}) {
		t.Fatalf("eligible = %v, want [Fits]", got)
	}
	if len(ev.Excluded) != 3 {
		t.Fatalf("excluded = %d lenders, want 3", len(ev.Excluded))
	}
}

func TestGeographyExclusion(t *testing.T) {
	avoids := residentialLender("Avoids NI", 70)
	avoids.GeoExclusions = []string{"northern ireland"}
	open := residentialLender("Open", 70)

	d := baseDeal()
	d.Geography = "Northern Ireland"

	ev := EvaluateKnockouts(testPanel(avoids, open), d)
	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Open"}) {
		t.Fatalf("eligible = %v, want [Open]", got)
	}
	if len(ev.Excluded) != 1 || ev.Excluded[0].Lender.Name != "Avoids NI" {
		t.Fatalf("excluded = %+v, want Avoids NI", ev.Excluded)
	}
}

func TestRegulatedFailsClosed(t *testing.T) {
	// An unset regulated-lending flag is a no when the deal is regulated.
	unset := residentialLender("Silent", 70)
	unset.LTV.RegulatedBridge = &panel.LTVLimit{Ceiling: 70}
	denies := residentialLender("Denies", 70)
	denies.Caps.RegulatedLending = panel.FlagNo
	denies.LTV.RegulatedBridge = &panel.LTVLimit{Ceiling: 70}
	grants := residentialLender("Grants", 70)
	grants.Caps.RegulatedLending = panel.FlagYes
	grants.LTV.RegulatedBridge = &panel.LTVLimit{Ceiling: 70}

	d := baseDeal()
	d.Regulated = true

	ev := EvaluateKnockouts(testPanel(unset, denies, grants), d)
	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Grants"}) {
		t.Fatalf("eligible = %v, want [Grants]", got)
	}
}

func TestRegulatedWithoutCeilingIsKnockedOut(t *testing.T) {
	// Granting the flag is not enough: no regulated ceiling, no deal.
	l := residentialLender("No Grid Entry", 70)
	l.Caps.RegulatedLending = panel.FlagYes

	d := baseDeal()
	d.Regulated = true

	ev := EvaluateKnockouts(testPanel(l), d)
	if len(ev.Eligible) != 0 {
		t.Fatalf("eligible = %v, want none", names(ev.Eligible))
	}
}

func TestRefurbSupportFailsClosed(t *testing.T) {
	// An unanswered refurb-lending flag reads as no when the deal is a refurb.
	silent := residentialLender("Silent", 80)
	denies := residentialLender("Denies", 80)
	denies.Caps.RefurbLending = panel.FlagNo
	offers := residentialLender("Offers", 80)
	offers.Caps.RefurbLending = panel.FlagYes

	d := baseDeal()
	d.Refurb = true

	ev := EvaluateKnockouts(testPanel(silent, denies, offers), d)
	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Offers"}) {
		t.Fatalf("eligible = %v, want [Offers]", got)
	}
	for _, ex := range ev.Excluded {
		if len(ex.Reasons) != 1 || ex.Reasons[0] != "Doesn't offer refurbishment bridging" {
			t.Fatalf("%s reasons = %v", ex.Lender.Name, ex.Reasons)
		}
	}
}

func TestEntityGateExplicitNo(t *testing.T) {
	refuses := residentialLender("No Trusts", 70)
	refuses.Caps.Trusts = panel.FlagNo
	silent := residentialLender("Silent On Trusts", 70)

	d := baseDeal()
	d.EntityType = "trust"

	ev := EvaluateKnockouts(testPanel(refuses, silent), d)
	// Only an explicit no gates the entity type; silence does not.
	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Silent On Trusts"}) {
		t.Fatalf("eligible = %v, want [Silent On Trusts]", got)
	}
	if len(ev.Excluded) != 1 || ev.Excluded[0].Reasons[0] != "Doesn't lend to Trust" {
		t.Fatalf("excluded = %+v", ev.Excluded)
	}
}

func TestUnknownPropertyTypeMatchesNothing(t *testing.T) {
	l := residentialLender("Resi Only", 70)

	d := baseDeal()
	d.PropertyType = "houseboat"

	ev := EvaluateKnockouts(testPanel(l), d)
	if len(ev.Eligible) != 0 {
		t.Fatalf("eligible = %v, want none", names(ev.Eligible))
	}
	if len(ev.Excluded) != 1 || !strings.Contains(ev.Excluded[0].Reasons[0], "houseboat") {
		t.Fatalf("excluded = %+v, want a houseboat configuration reason", ev.Excluded)
	}
}

func TestLTVBoundaryInclusive(t *testing.T) {
	l := residentialLender("Edge", 50)

	at := baseDeal() // exactly 50%
	if ev := EvaluateKnockouts(testPanel(l), at); len(ev.Eligible) != 1 {
		t.Fatalf("LTV at ceiling should pass, excluded: %+v", ev.Excluded)
	}

	over := baseDeal()
	over.LoanAmount = 200001
	if ev := EvaluateKnockouts(testPanel(l), over); len(ev.Eligible) != 0 {
		t.Fatal("LTV above ceiling should fail")
	}
}

func TestGrossBasisHaircut(t *testing.T) {
	l := residentialLender("Gross Quoter", 75)
	l.LTV.Residential1st.Basis = panel.BasisGross
	l.Caps.ServicedInterest = panel.FlagYes

	d := baseDeal()
	d.LoanAmount = 288000 // 72% against the 75 gross / 70 effective ceiling

	if ev := EvaluateKnockouts(testPanel(l), d); len(ev.Eligible) != 0 {
		t.Fatal("rolled-up interest should cut the gross ceiling below the deal LTV")
	}

	d.ServicedInterest = true
	if ev := EvaluateKnockouts(testPanel(l), d); len(ev.Eligible) != 1 {
		t.Fatal("serviced interest should restore the full gross ceiling")
	}
}

func TestMalformedLenderIsolated(t *testing.T) {
	bad := &panel.Lender{Name: "Broken", Invalid: "ltv: not numeric"}
	good := residentialLender("Good", 70)

	ev := EvaluateKnockouts(testPanel(bad, good), baseDeal())
	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Good"}) {
		t.Fatalf("eligible = %v, want [Good]", got)
	}
	if len(ev.Excluded) != 1 || ev.Excluded[0].Lender.Name != "Broken" {
		t.Fatalf("malformed lender should be excluded, got %+v", ev.Excluded)
	}
}

func TestInsufficientInputIsDistinguished(t *testing.T) {
	d := baseDeal()
	d.LoanAmount = 0

	res := Run(testPanel(residentialLender("Any", 70)), d, nil)
	if res.Status != StatusInsufficientInput {
		t.Fatalf("status = %q, want %q", res.Status, StatusInsufficientInput)
	}
	if !reflect.DeepEqual(res.MissingFields, []string{"loan_amount"}) {
		t.Fatalf("missing = %v, want [loan_amount]", res.MissingFields)
	}
	if res.EligibleCount != 0 || len(res.Refiners) != 0 {
		t.Fatal("insufficient input must not produce funnel output")
	}
}

func TestMonotonicity(t *testing.T) {
	a := residentialLender("A", 70)
	a.Caps.ServicedInterest = panel.FlagYes
	a.Caps.DualLegalRep = panel.FlagYes
	b := residentialLender("B", 70)
	b.Caps.ServicedInterest = panel.FlagYes
	c := residentialLender("C", 70)
	p := testPanel(a, b, c)

	sets := [][]string{
		nil,
		{"serviced_interest"},
		{"serviced_interest", "dual_legal"},
	}
	prev := -1
	for i, set := range sets {
		d := baseDeal()
		d.ActiveRefiners = set
		res := Run(p, d, nil)
		if prev >= 0 && res.EligibleCount > prev {
			t.Fatalf("count grew from %d to %d when adding refiner set %v", prev, res.EligibleCount, sets[i])
		}
		prev = res.EligibleCount
	}
	if prev != 1 {
		t.Fatalf("final count = %d, want 1 (only A passes both refiners)", prev)
	}
}

func TestIdempotence(t *testing.T) {
	a := residentialLender("A", 70)
	a.Caps.Expats = panel.FlagYes
	b := residentialLender("B", 60)
	p := testPanel(a, b)

	d := baseDeal()
	d.ActiveRefiners = []string{"expat"}

	first := Run(p, d, nil)
	second := Run(p, d, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated evaluation diverged:\n%+v\n%+v", first, second)
	}
}

func TestResultConsistency(t *testing.T) {
	a := residentialLender("A", 70)
	a.Caps.ForeignNationals = panel.FlagYes
	b := residentialLender("B", 70)
	p := testPanel(a, b)

	d := baseDeal()
	d.ActiveRefiners = []string{"foreign_national"}

	res := Run(p, d, nil)
	ev := EvaluateKnockouts(p, Normalize(d, nil))
	impacts := ComputeImpacts(ev, Normalize(d, nil))

	if res.EligibleCount != len(res.EligibleLenderIDs) {
		t.Fatalf("eligible_count %d != |ids| %d", res.EligibleCount, len(res.EligibleLenderIDs))
	}
	if res.EligibleCount != impacts.CurrentCount {
		t.Fatalf("eligible_count %d != impact current %d", res.EligibleCount, impacts.CurrentCount)
	}
}

func TestRunWithEvaluationSharesOneEvaluation(t *testing.T) {
	a := residentialLender("A", 70)
	a.Caps.Expats = panel.FlagYes
	b := residentialLender("B", 70)
	p := testPanel(a, b)

	d := baseDeal()
	d.ActiveRefiners = []string{"expat"}

	res, ev, nd := RunWithEvaluation(p, d, nil)
	if !reflect.DeepEqual(res.EligibleLenderIDs, names(CurrentEligible(ev, nd))) {
		t.Fatalf("result ids %v diverge from the exposed evaluation %v",
			res.EligibleLenderIDs, names(CurrentEligible(ev, nd)))
	}
	if res.EligibleCount != len(res.EligibleLenderIDs) {
		t.Fatalf("count %d != ids %d", res.EligibleCount, len(res.EligibleLenderIDs))
	}

	d.LoanAmount = 0
	res, ev, _ = RunWithEvaluation(p, d, nil)
	if res.Status != StatusInsufficientInput || len(ev.Eligible) != 0 {
		t.Fatalf("insufficient input should carry an empty evaluation, got %+v", ev)
	}
}

func TestHeavyWorksRefiner(t *testing.T) {
	// works=150000, value=300000 -> ratio 50% -> heavy band.
	yes := residentialLender("Heavy Yes", 80)
	yes.Caps.RefurbLending = panel.FlagYes
	yes.Refurb.Bands = map[panel.WorksBand]panel.RefurbBandTerms{
		panel.WorksHeavy: {Supported: panel.FlagYes, MinExperience: -1},
	}
	silent := residentialLender("Heavy Silent", 80)
	silent.Caps.RefurbLending = panel.FlagYes

	d := baseDeal()
	d.LoanAmount = 150000
	d.MarketValue = 300000
	d.Refurb = true
	d.CostOfWorks = 150000

	if got := d.WorksIntensity(); got != panel.WorksHeavy {
		t.Fatalf("works intensity = %q, want heavy", got)
	}

	p := testPanel(yes, silent)

	// Knockout alone keeps both: silence on the band is not an explicit no.
	ev := EvaluateKnockouts(p, d)
	if len(ev.Eligible) != 2 {
		t.Fatalf("knockout eligible = %v, want both", names(ev.Eligible))
	}

	d.ActiveRefiners = []string{"heavy_works"}
	res := Run(p, d, nil)
	if !reflect.DeepEqual(res.EligibleLenderIDs, []string{"Heavy Yes"}) {
		t.Fatalf("heavy_works refiner kept %v, want [Heavy Yes]", res.EligibleLenderIDs)
	}
}

func TestExplicitNoWorksBandKnocksOut(t *testing.T) {
	no := residentialLender("Refuses Heavy", 80)
	no.Caps.RefurbLending = panel.FlagYes
	no.Refurb.Bands = map[panel.WorksBand]panel.RefurbBandTerms{
		panel.WorksHeavy: {Supported: panel.FlagNo},
	}

	d := baseDeal()
	d.LoanAmount = 150000
	d.MarketValue = 300000
	d.Refurb = true
	d.CostOfWorks = 150000

	if ev := EvaluateKnockouts(testPanel(no), d); len(ev.Eligible) != 0 {
		t.Fatal("explicit no on the deal's works band must knock out")
	}
}

func TestToggleSemantics(t *testing.T) {
	a := residentialLender("A", 70)
	a.Caps.Expats = panel.FlagYes
	b := residentialLender("B", 70)
	p := testPanel(a, b)

	d := baseDeal()
	d.ActiveRefiners = []string{"expat"}
	ev := EvaluateKnockouts(p, d)
	impacts := ComputeImpacts(ev, d)

	if impacts.CurrentCount != 1 {
		t.Fatalf("current = %d, want 1", impacts.CurrentCount)
	}
	for _, imp := range impacts.PerRefiner {
		if imp.Key == "expat" {
			if !imp.Active {
				t.Fatal("expat should read active")
			}
			// Toggling an active refiner off returns to the wider set.
			if imp.RemainingIfToggled != 2 {
				t.Fatalf("toggled-off remaining = %d, want 2", imp.RemainingIfToggled)
			}
		}
	}
}

func TestInvisibleRefinerAbsentFromImpacts(t *testing.T) {
	d := baseDeal() // not a refurb, not land, individual
	ev := EvaluateKnockouts(testPanel(residentialLender("A", 70)), d)
	impacts := ComputeImpacts(ev, d)
	for _, imp := range impacts.PerRefiner {
		switch imp.Key {
		case "staged_funding", "heavy_works", "ground_up", "trust", "sipp", "charity":
			t.Fatalf("refiner %q not applicable to this deal but present in impacts", imp.Key)
		}
	}
}

func TestRefurbUnlockHint(t *testing.T) {
	// Excluded at 75% on a 70 standard ceiling, but day-1 refurb goes to 80.
	locked := residentialLender("Unlockable", 70)
	locked.Caps.RefurbLending = panel.FlagYes
	locked.Refurb.Bands = map[panel.WorksBand]panel.RefurbBandTerms{
		panel.WorksLight: {Supported: panel.FlagYes, MaxDay1LTV: 80, Day1Basis: panel.BasisNet, MinExperience: -1},
	}
	steady := residentialLender("Steady", 80)
	steady.Caps.RefurbLending = panel.FlagYes

	d := baseDeal()
	d.LoanAmount = 300000 // 75%

	p := testPanel(locked, steady)
	ev := EvaluateKnockouts(p, d)
	hints := GenerateLeverageHints(p, d, ev)

	if !hints.TightLTV {
		t.Fatal("75% should read as tight")
	}
	if len(hints.RefurbUnlocks) != 1 || hints.RefurbUnlocks[0].Name != "Unlockable" {
		t.Fatalf("refurb unlocks = %+v, want Unlockable", hints.RefurbUnlocks)
	}
	if hints.RefurbUnlocks[0].Ceiling != 80 {
		t.Fatalf("unlock ceiling = %v, want 80", hints.RefurbUnlocks[0].Ceiling)
	}

	// Once the deal is a refurb the lender is simply eligible; no hint.
	d.Refurb = true
	ev = EvaluateKnockouts(p, d)
	hints = GenerateLeverageHints(p, d, ev)
	if len(hints.RefurbUnlocks) != 0 {
		t.Fatalf("refurb deal should not re-suggest refurb, got %+v", hints.RefurbUnlocks)
	}
	if got := names(ev.Eligible); !reflect.DeepEqual(got, []string{"Unlockable", "Steady"}) {
		t.Fatalf("eligible after flip = %v", got)
	}
}

func TestServicedInterestHint(t *testing.T) {
	gross := residentialLender("Gross House", 78)
	gross.LTV.Residential1st.Basis = panel.BasisGross
	gross.Caps.ServicedInterest = panel.FlagYes

	d := baseDeal()
	d.LoanAmount = 300000 // 75%: above the 73 haircut ceiling, under 78 serviced

	p := testPanel(gross)
	ev := EvaluateKnockouts(p, d)
	if len(ev.Eligible) != 0 {
		t.Fatal("setup: lender should be excluded without serviced interest")
	}

	hints := GenerateLeverageHints(p, d, ev)
	if len(hints.ServicedInterestHelps) != 1 || hints.ServicedInterestHelps[0].Name != "Gross House" {
		t.Fatalf("serviced hints = %+v, want Gross House", hints.ServicedInterestHelps)
	}
}

func TestHintOrderingAndCap(t *testing.T) {
	d := baseDeal()
	d.LoanAmount = 300000 // 75%

	var lenders []*panel.Lender
	for _, spec := range []struct {
		name string
		day1 float64
	}{{"Bravo", 80}, {"Alpha", 80}, {"Delta", 85}, {"Echo", 76}} {
		l := residentialLender(spec.name, 70)
		l.Caps.RefurbLending = panel.FlagYes
		l.Refurb.Bands = map[panel.WorksBand]panel.RefurbBandTerms{
			panel.WorksLight: {Supported: panel.FlagYes, MaxDay1LTV: spec.day1, Day1Basis: panel.BasisNet, MinExperience: -1},
		}
		lenders = append(lenders, l)
	}

	p := testPanel(lenders...)
	hints := GenerateLeverageHints(p, d, EvaluateKnockouts(p, d))
	got := make([]string, len(hints.RefurbUnlocks))
	for i, u := range hints.RefurbUnlocks {
		got[i] = u.Name
	}
	// Best ceiling first, names break ties, capped at three.
	if !reflect.DeepEqual(got, []string{"Delta", "Alpha", "Bravo"}) {
		t.Fatalf("unlock order = %v, want [Delta Alpha Bravo]", got)
	}
}

func TestSecurityHints(t *testing.T) {
	a := residentialLender("A", 70)
	a.LTV.ResidentialSupporting2nd = &panel.LTVLimit{Ceiling: 65}
	a.LTV.EquitableCharge = &panel.LTVLimit{Ceiling: 60}
	b := residentialLender("B", 70)
	b.LTV.ResidentialSupporting2nd = &panel.LTVLimit{Ceiling: 60}
	p := testPanel(a, b)

	d := baseDeal()
	d.LoanAmount = 300000 // 75%, tight

	hints := GenerateSecurityHints(p, d, EvaluateKnockouts(p, d))
	if !hints.AdditionalSecurityHelps {
		t.Fatal("tight LTV on 1st charge should suggest additional security")
	}
	if hints.Supporting2ndCount != 2 || hints.EquitableCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", hints.Supporting2ndCount, hints.EquitableCount)
	}

	// Not applicable when already on a 2nd charge.
	d.Charge = panel.ChargeSupporting2nd
	hints = GenerateSecurityHints(p, d, EvaluateKnockouts(p, d))
	if hints.AdditionalSecurityHelps {
		t.Fatal("security hints should stay quiet on a non-1st charge deal")
	}
}

func TestRevalidateFirstTimeDeveloper(t *testing.T) {
	chosen := residentialLender("Experienced Only", 80)
	chosen.Caps.RefurbLending = panel.FlagYes
	chosen.Refurb.Bands = map[panel.WorksBand]panel.RefurbBandTerms{
		panel.WorksLight: {Supported: panel.FlagYes, MinExperience: 2},
	}
	friendly := residentialLender("FTD Friendly", 75)
	friendly.Caps.RefurbLending = panel.FlagYes
	friendly.Refurb.Bands = map[panel.WorksBand]panel.RefurbBandTerms{
		panel.WorksLight: {Supported: panel.FlagYes, MinExperience: 0},
	}

	d := baseDeal()
	d.Refurb = true

	p := testPanel(chosen, friendly)
	rev := Revalidate(p, chosen, d, AIPDetails{RefurbExperience: "none"})
	if rev.StillFits {
		t.Fatal("experience shortfall should break the fit")
	}
	if len(rev.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", rev.Warnings)
	}
	if len(rev.Alternatives) != 1 || rev.Alternatives[0].Name != "FTD Friendly" {
		t.Fatalf("alternatives = %+v, want FTD Friendly", rev.Alternatives)
	}
}

func TestRevalidateNonOwnerOccupier(t *testing.T) {
	l := residentialLender("Owner Occ Only", 70)
	l.Caps.RegulatedLending = panel.FlagYes
	l.Caps.NonOwnerOccupiers = panel.FlagNo

	d := baseDeal()
	d.Regulated = true

	no := false
	rev := Revalidate(testPanel(l), l, d, AIPDetails{IsHomeowner: &no})
	if rev.StillFits || len(rev.Warnings) != 1 {
		t.Fatalf("non-owner-occupier on regulated deal should warn and break fit, got %+v", rev)
	}
}

func TestRevalidateUrgencyIsSoftWarning(t *testing.T) {
	l := residentialLender("Slow", 70)
	l.Caps.DualLegalRep = panel.FlagNo

	rev := Revalidate(testPanel(l), l, baseDeal(), AIPDetails{Urgency: "auction in 28 days"})
	if !rev.StillFits {
		t.Fatal("urgency alone must not break the fit")
	}
	if len(rev.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", rev.Warnings)
	}
}
