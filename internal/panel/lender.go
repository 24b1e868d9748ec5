package panel

import "strings"

// Flag is a tri-state capability answer from a lender questionnaire.
// The zero value is FlagUnknown so an unanswered question can never be
// mistaken for a yes.
type Flag uint8

const (
	FlagUnknown Flag = iota
	FlagNo
	FlagYes
	FlagConditional
)

// Granted reports whether the lender has affirmed the capability.
// Unknown and No both answer false.
func (f Flag) Granted() bool {
	return f == FlagYes || f == FlagConditional
}

func (f Flag) String() string {
	switch f {
	case FlagNo:
		return "no"
	case FlagYes:
		return "yes"
	case FlagConditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// MarshalText/UnmarshalText keep flags readable inside the JSON columns the
// store persists.
func (f Flag) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Flag) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "no":
		*f = FlagNo
	case "yes":
		*f = FlagYes
	case "conditional":
		*f = FlagConditional
	default:
		*f = FlagUnknown
	}
	return nil
}

type PropertyClass string

const (
	PropertyResidential    PropertyClass = "residential"
	PropertySemiCommercial PropertyClass = "semi_commercial"
	PropertyCommercial     PropertyClass = "commercial"
	PropertyLandWithPP     PropertyClass = "land_with_pp"
	PropertyLandNoPP       PropertyClass = "land_no_pp"
)

type ChargePosition string

const (
	ChargeFirst         ChargePosition = "1st"
	ChargeSupporting2nd ChargePosition = "2nd_supporting"
	ChargeStandalone2nd ChargePosition = "2nd_standalone"
	ChargeEquitable     ChargePosition = "equitable"
)

// LTVBasis records whether a lender quotes a ceiling gross (interest rolled
// into the advance) or net (what the borrower actually receives).
type LTVBasis string

const (
	BasisNet   LTVBasis = "net"
	BasisGross LTVBasis = "gross"
)

// LTVLimit is one ceiling from a lender's LTV grid. A nil *LTVLimit in the
// table means the lender does not offer that configuration at all, which is
// a knockout, not a missing constraint.
type LTVLimit struct {
	Ceiling float64  `json:"ceiling"`
	Basis   LTVBasis `json:"basis,omitempty"`
}

// LTVTable maps {property class x charge position} plus the regulated-bridge
// column onto maximum loan-to-value ceilings.
type LTVTable struct {
	Residential1st           *LTVLimit `json:"residential_1st,omitempty"`
	ResidentialSupporting2nd *LTVLimit `json:"residential_supporting_2nd,omitempty"`
	ResidentialStandalone2nd *LTVLimit `json:"residential_standalone_2nd,omitempty"`
	EquitableCharge          *LTVLimit `json:"equitable_charge,omitempty"`
	SemiCommercial           *LTVLimit `json:"semi_commercial,omitempty"`
	FullyCommercial          *LTVLimit `json:"fully_commercial,omitempty"`
	LandWithPlanning         *LTVLimit `json:"land_with_planning,omitempty"`
	LandWithoutPlanning      *LTVLimit `json:"land_without_planning,omitempty"`
	RegulatedBridge          *LTVLimit `json:"regulated_bridge,omitempty"`
}

// Lookup selects the ceiling for a deal configuration. Regulated deals use
// the regulated-bridge column regardless of charge position. Land and
// commercial classes carry no charge variation in the questionnaire data.
func (t LTVTable) Lookup(class PropertyClass, charge ChargePosition, regulated bool) *LTVLimit {
	if regulated {
		return t.RegulatedBridge
	}
	switch class {
	case PropertyLandWithPP:
		return t.LandWithPlanning
	case PropertyLandNoPP:
		return t.LandWithoutPlanning
	case PropertyCommercial:
		return t.FullyCommercial
	case PropertySemiCommercial:
		return t.SemiCommercial
	case PropertyResidential:
		switch charge {
		case ChargeSupporting2nd:
			return t.ResidentialSupporting2nd
		case ChargeStandalone2nd:
			return t.ResidentialStandalone2nd
		case ChargeEquitable:
			return t.EquitableCharge
		default:
			return t.Residential1st
		}
	}
	return nil
}

// SizeBounds holds the lender's loan size window. A zero bound means the
// questionnaire left that side blank, which does not constrain the deal.
type SizeBounds struct {
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// Capabilities collects the yes/no/conditional questionnaire answers that
// drive knockouts and refiners.
type Capabilities struct {
	RegulatedLending   Flag `json:"regulated_lending,omitempty"`
	RefurbLending      Flag `json:"refurb_lending,omitempty"`
	ForeignNationals   Flag `json:"foreign_nationals,omitempty"`
	Expats             Flag `json:"expats,omitempty"`
	AdverseCredit      Flag `json:"adverse_credit,omitempty"`
	BankruptcyIVA      Flag `json:"bankruptcy_iva,omitempty"`
	FirstTimeBuyers    Flag `json:"first_time_buyers,omitempty"`
	FirstTimeLandlords Flag `json:"first_time_landlords,omitempty"`
	NonOwnerOccupiers  Flag `json:"non_owner_occupiers,omitempty"`
	NilOrNegativeAL    Flag `json:"nil_or_negative_al,omitempty"`

	LimitedCompanies Flag `json:"limited_companies,omitempty"`
	LayeredCompanies Flag `json:"layered_companies,omitempty"`
	LLPs             Flag `json:"llps,omitempty"`
	Trusts           Flag `json:"trusts,omitempty"`
	Charities        Flag `json:"charities,omitempty"`
	SIPPSSAS         Flag `json:"sipp_ssas,omitempty"`
	OverseasEntities Flag `json:"overseas_entities,omitempty"`

	ServicedInterest Flag `json:"serviced_interest,omitempty"`
	DualLegalRep     Flag `json:"dual_legal_rep,omitempty"`
	FlexibleFacility Flag `json:"flexible_facility,omitempty"`
	SteppedRates     Flag `json:"stepped_rates,omitempty"`
	AVMs             Flag `json:"avms,omitempty"`
	Indemnity        Flag `json:"indemnity,omitempty"`
	RemoteProcess    Flag `json:"remote_process,omitempty"`
	Retypes          Flag `json:"retypes,omitempty"`
}

// WorksBand classifies refurbishment cost relative to current property value.
type WorksBand string

const (
	WorksLight     WorksBand = "light"      // <30%
	WorksMedium    WorksBand = "medium"     // 30-50%
	WorksHeavy     WorksBand = "heavy"      // 50-100%
	WorksVeryHeavy WorksBand = "very_heavy" // >=100%
)

// WorksBands in ascending intensity order.
var WorksBands = []WorksBand{WorksLight, WorksMedium, WorksHeavy, WorksVeryHeavy}

// RefurbBandTerms is a lender's offering for one works-intensity band.
// MinExperience of -1 means the questionnaire did not answer; 0 means
// first-time developers are accepted.
type RefurbBandTerms struct {
	Supported     Flag     `json:"supported,omitempty"`
	MaxDay1LTV    float64  `json:"max_day1_ltv,omitempty"`
	Day1Basis     LTVBasis `json:"day1_basis,omitempty"`
	MaxLTGDV      float64  `json:"max_ltgdv,omitempty"`
	MinExperience int      `json:"min_experience"`
}

type RefurbTerms struct {
	Bands         map[WorksBand]RefurbBandTerms `json:"bands,omitempty"`
	StagedFunding Flag                          `json:"staged_funding,omitempty"`
	CosmeticOnly  Flag                          `json:"cosmetic_only,omitempty"`
	Monitoring    Flag                          `json:"monitoring,omitempty"`
	MinDrawdown   float64                       `json:"min_drawdown,omitempty"`
}

// Band returns the lender's terms for a works band, reporting presence.
func (r RefurbTerms) Band(b WorksBand) (RefurbBandTerms, bool) {
	t, ok := r.Bands[b]
	return t, ok
}

type LandTerms struct {
	GroundUp Flag `json:"ground_up,omitempty"`
}

// Contact is display-only; it never participates in filtering.
type Contact struct {
	BDMName      string `json:"bdm_name,omitempty"`
	BDMEmail     string `json:"bdm_email,omitempty"`
	BDMPhone     string `json:"bdm_phone,omitempty"`
	EnquiryEmail string `json:"enquiry_email,omitempty"`
	EnquiryPhone string `json:"enquiry_phone,omitempty"`
}

// Best folds the BDM details over the general enquiry line.
func (c Contact) Best() Contact {
	out := c
	if out.EnquiryEmail == "" {
		out.EnquiryEmail = c.BDMEmail
	}
	if out.EnquiryPhone == "" {
		out.EnquiryPhone = c.BDMPhone
	}
	if out.BDMName == "" {
		out.BDMName = "New Business Team"
	}
	return out
}

// Lender is one panel member. Immutable once the panel is built.
type Lender struct {
	Name string

	Size     SizeBounds
	LTV      LTVTable
	Caps     Capabilities
	Refurb   RefurbTerms
	Land     LandTerms
	Appetite      map[string]int // scenario key -> 0..3; absence means unknown
	GeoExclusions []string       // lower-cased, trimmed region names

	MinMonthsInterest int
	RateBand          string
	ProcFee           string
	FundingModel      string

	Notes   string
	Contact Contact

	// Invalid carries a parse-failure description when the stored record
	// could not be decoded. Such a lender is unevaluable and is excluded
	// from every funnel run rather than aborting the batch.
	Invalid string
}

// ExcludesGeography reports whether the lender's exclusion list names the
// given region (case-insensitive, trimmed).
func (l *Lender) ExcludesGeography(region string) bool {
	needle := strings.ToLower(strings.TrimSpace(region))
	if needle == "" {
		return false
	}
	for _, g := range l.GeoExclusions {
		if g == needle {
			return true
		}
	}
	return false
}

// AppetiteFor returns the 0-3 appetite score for a deal scenario and whether
// the lender answered it at all.
func (l *Lender) AppetiteFor(scenario string) (int, bool) {
	v, ok := l.Appetite[scenario]
	return v, ok
}

// Panel is the loaded lender set, in import order. It is read-only after
// construction; reloads swap the whole Panel reference atomically.
type Panel struct {
	Lenders []*Lender
}

// ByName finds a lender by exact name first, then by case-insensitive
// substring, mirroring how brokers type partial lender names.
func (p *Panel) ByName(name string) *Lender {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for _, l := range p.Lenders {
		if strings.ToLower(l.Name) == needle {
			return l
		}
	}
	for _, l := range p.Lenders {
		if strings.Contains(strings.ToLower(l.Name), needle) {
			return l
		}
	}
	return nil
}

func (p *Panel) Len() int { return len(p.Lenders) }
