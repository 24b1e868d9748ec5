package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/danhatton/bridgematch/internal/panel"
)

// ImportCSV reads a questionnaire export and builds typed lender records.
// The export is one row per lender with free-form answers; headers are
// normalised before matching so punctuation and casing changes in the
// spreadsheet don't break the import. Rows without a lender name are skipped.
func ImportCSV(r io.Reader) ([]*panel.Lender, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := normaliseHeader(h)
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	nameIdx, ok := findNameColumn(cols)
	if !ok {
		return nil, fmt.Errorf("no lender name column in header")
	}

	var lenders []*panel.Lender
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		get := func(key string) string {
			i, ok := cols[key]
			if !ok {
				// Spreadsheet exports truncate long headers; fall back to
				// prefix matching.
				for k, j := range cols {
					if strings.HasPrefix(k, key) || strings.HasPrefix(key, k) {
						i, ok = j, true
						break
					}
				}
			}
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		name := strings.TrimSpace(row[nameIdx])
		if name == "" {
			continue
		}
		lenders = append(lenders, lenderFromRow(name, get))
	}
	return lenders, nil
}

var headerJunk = regexp.MustCompile(`[^a-z0-9_]+`)
var underscoreRuns = regexp.MustCompile(`_+`)

// normaliseHeader lower-cases a spreadsheet header and collapses punctuation
// into single underscores.
func normaliseHeader(h string) string {
	s := strings.ToLower(strings.TrimSpace(h))
	s = headerJunk.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

func findNameColumn(cols map[string]int) (int, bool) {
	for _, candidate := range []string{"name", "name_of_lender", "lender_name"} {
		if i, ok := cols[candidate]; ok {
			return i, true
		}
	}
	for key, i := range cols {
		if strings.Contains(key, "lender") && strings.Contains(key, "name") {
			return i, true
		}
	}
	return 0, false
}

func lenderFromRow(name string, get func(string) string) *panel.Lender {
	l := &panel.Lender{Name: name}

	l.Size = panel.SizeBounds{
		Min: panel.ParseMoney(get("minimum_loan_size")),
		Max: panel.ParseMoney(get("maximum_loan_size")),
	}

	l.LTV = panel.LTVTable{
		Residential1st:           panel.ParseLTV(get("max_ltv_1st_charge_residential_investment_property")),
		ResidentialSupporting2nd: panel.ParseLTV(get("max_ltv_supporting_2nd_charge_residential")),
		ResidentialStandalone2nd: panel.ParseLTV(get("max_ltv_standalone_2nd_charge_residential")),
		EquitableCharge:          panel.ParseLTV(get("max_ltv_supporting_equitable_charge")),
		SemiCommercial:           panel.ParseLTV(get("max_ltv_semi_commercial")),
		FullyCommercial:          panel.ParseLTV(get("max_ltv_fully_commercial")),
		LandWithPlanning:         panel.ParseLTV(get("max_ltv_land_with_planning")),
		LandWithoutPlanning:      panel.ParseLTV(get("max_ltv_land_without_planning")),
		RegulatedBridge:          panel.ParseLTV(get("max_ltv_regulated")),
	}

	// The questionnaire export misspells this header.
	bankruptcy := get("bankruptcy_ivas_accepted")
	if bankruptcy == "" {
		bankruptcy = get("bankrupcy_ivas_accepted")
	}

	l.Caps = panel.Capabilities{
		RegulatedLending:   panel.ParseFlag(get("do_you_offer_regulated_bridging")),
		RefurbLending:      panel.ParseFlag(get("do_you_offer_refurbishment_bridging")),
		ForeignNationals:   panel.ParseFlag(get("can_you_lend_to_foreign_nationals")),
		Expats:             panel.ParseFlag(get("can_you_lend_to_expats")),
		AdverseCredit:      panel.ParseFlag(get("heavy_recent_adverse_accepted")),
		BankruptcyIVA:      panel.ParseFlag(bankruptcy),
		FirstTimeBuyers:    panel.ParseFlag(get("do_you_lend_to_first_time_buyers")),
		FirstTimeLandlords: panel.ParseFlag(get("do_you_lend_to_first_time_landlords")),
		NonOwnerOccupiers:  panel.ParseFlag(get("do_you_lend_to_non_owner_occupiers")),
		NilOrNegativeAL:    panel.ParseFlag(get("do_you_lend_to_applicants_with_a_nil_or_negative_a_l_profile")),

		LimitedCompanies: panel.ParseFlag(get("do_you_lend_to_limited_companies")),
		LayeredCompanies: panel.ParseFlag(get("do_you_lend_to_layered_company_structures")),
		LLPs:             panel.ParseFlag(get("do_you_lend_to_llps")),
		Trusts:           panel.ParseFlag(get("do_you_lend_to_trusts")),
		Charities:        panel.ParseFlag(get("do_you_lend_to_charities")),
		SIPPSSAS:         panel.ParseFlag(get("can_you_lend_to_sipps_ssas_pensions")),
		OverseasEntities: panel.ParseFlag(get("do_you_lend_to_overseas_entities")),

		ServicedInterest: panel.ParseFlag(get("serviced_interest_allowed")),
		DualLegalRep:     panel.ParseFlag(get("dual_legal_rep_offered")),
		FlexibleFacility: panel.ParseFlag(get("flexible_rotating_credit_facility_product_offered")),
		SteppedRates:     panel.ParseFlag(get("stepped_rates_offered")),
		AVMs:             panel.ParseFlag(get("can_you_potentially_use_avms_and_or_desktops_for_residential")),
		Indemnity:        panel.ParseFlag(get("search_indemnity_accepted")),
		RemoteProcess:    panel.ParseFlag(get("fully_remote_process_possible")),
		Retypes:          panel.ParseFlag(get("retypes_accepted")),
	}

	l.Refurb = panel.RefurbTerms{
		Bands:         refurbBands(get),
		StagedFunding: panel.ParseFlag(get("do_you_also_offer_arrears_staged_funding_for_refurbishments")),
		CosmeticOnly:  panel.ParseFlag(get("cosmetic_refurb_only")),
		Monitoring:    panel.ParseFlag(get("is_a_monitoring_surveyor_required")),
		MinDrawdown:   panel.ParseMoney(get("minimum_drawdown_amount")),
	}

	l.Land = panel.LandTerms{
		GroundUp: panel.ParseFlag(get("do_you_fund_ground_up_development")),
	}

	l.Appetite = appetiteScores(get)
	l.GeoExclusions = panel.ParseGeographies(get("geographic_areas_excluded"))
	l.MinMonthsInterest = minMonths(get("minimum_number_of_months_interest"))
	l.RateBand = get("approximate_interest_rate_band")
	l.ProcFee = get("typical_proc_fee")
	l.FundingModel = get("funding_model")
	l.Notes = get("notes")

	l.Contact = panel.Contact{
		BDMName:      get("bdm_name"),
		BDMEmail:     get("bdm_email"),
		BDMPhone:     get("bdm_phone"),
		EnquiryEmail: get("new_business_email"),
		EnquiryPhone: get("new_business_phone"),
	}
	return l
}

// refurbBands assembles per-intensity terms from the banded questionnaire
// columns. A band with no answers at all is left out of the map, which reads
// as "no stated position" rather than a refusal.
func refurbBands(get func(string) string) map[panel.WorksBand]panel.RefurbBandTerms {
	prefixes := map[panel.WorksBand]string{
		panel.WorksLight:     "light_refurb",
		panel.WorksMedium:    "medium_refurb",
		panel.WorksHeavy:     "heavy_refurb",
		panel.WorksVeryHeavy: "very_heavy_refurb",
	}
	bands := make(map[panel.WorksBand]panel.RefurbBandTerms)
	for band, prefix := range prefixes {
		supported := panel.ParseFlag(get(prefix + "_offered"))
		day1 := panel.ParseLTV(get("maximum_day_1_ltv_" + prefix))
		if day1 == nil {
			day1 = panel.ParseLTV(get("maximum_day_1_advance_" + prefix))
		}
		ltgdv := panel.ParseLTV(get("maximum_ltgdv_" + prefix))
		exp := panel.ParseExperience(get("minimum_borrower_experience_with_refurbs"))

		if supported == panel.FlagUnknown && day1 == nil && ltgdv == nil {
			continue
		}
		terms := panel.RefurbBandTerms{Supported: supported, MinExperience: exp}
		if day1 != nil {
			terms.MaxDay1LTV = day1.Ceiling
			terms.Day1Basis = day1.Basis
		}
		if ltgdv != nil {
			terms.MaxLTGDV = ltgdv.Ceiling
		}
		bands[band] = terms
	}
	if len(bands) == 0 {
		return nil
	}
	return bands
}

// appetiteScores reads the 0-3 deal appetite answers, keyed by scenario.
func appetiteScores(get func(string) string) map[string]int {
	scores := make(map[string]int)
	for _, sc := range panel.DealScenarios {
		if v, ok := panel.ParseAppetite(get("deal_appetite_" + sc.Key)); ok {
			scores[sc.Key] = v
		}
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

func minMonths(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "none") {
		return 1
	}
	n := 0
	fmt.Sscanf(s, "%d", &n)
	return n
}
