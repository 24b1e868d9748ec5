package funnel

import (
	"strings"

	"go.uber.org/zap"

	"github.com/danhatton/bridgematch/internal/panel"
)

// Deal is the canonical description of one financing request. It is built
// fresh from form state on every edit and never mutated afterwards; the
// hint generator copies it to flip single attributes counterfactually.
type Deal struct {
	TransactionType string  `json:"transaction_type"`
	LoanAmount      float64 `json:"loan_amount"`
	PurchasePrice   float64 `json:"purchase_price,omitempty"`
	MarketValue     float64 `json:"market_value"`

	PropertyType panel.PropertyClass  `json:"property_type"`
	Geography    string               `json:"geography"`
	Charge       panel.ChargePosition `json:"charge_position"`
	EntityType   string               `json:"entity_type"`

	Regulated        bool `json:"is_regulated"`
	Refurb           bool `json:"is_refurb"`
	ServicedInterest bool `json:"serviced_interest"`

	CostOfWorks float64 `json:"cost_of_works,omitempty"`
	GDV         float64 `json:"gdv,omitempty"`

	ActiveRefiners []string `json:"active_refiners,omitempty"`
}

// LTV is the day-1 loan-to-value percentage.
func (d Deal) LTV() float64 {
	if d.MarketValue <= 0 {
		return 0
	}
	return d.LoanAmount / d.MarketValue * 100
}

// WorksRatio is cost of works over current value, as a percentage. Zero when
// the deal is not a refurb or the works cost is unknown.
func (d Deal) WorksRatio() float64 {
	if !d.Refurb || d.CostOfWorks <= 0 || d.MarketValue <= 0 {
		return 0
	}
	return d.CostOfWorks / d.MarketValue * 100
}

// WorksIntensity buckets the works ratio: light <30%, medium <50%,
// heavy <100%, very heavy >=100%.
func (d Deal) WorksIntensity() panel.WorksBand {
	r := d.WorksRatio()
	switch {
	case r >= 100:
		return panel.WorksVeryHeavy
	case r >= 50:
		return panel.WorksHeavy
	case r >= 30:
		return panel.WorksMedium
	default:
		return panel.WorksLight
	}
}

// ActiveRefinerSet gives membership lookups over the active refiner keys.
func (d Deal) ActiveRefinerSet() map[string]bool {
	if len(d.ActiveRefiners) == 0 {
		return nil
	}
	set := make(map[string]bool, len(d.ActiveRefiners))
	for _, k := range d.ActiveRefiners {
		set[strings.TrimSpace(k)] = true
	}
	return set
}

// MissingEssentials names the required numeric fields that are absent or
// non-positive. A non-empty result means the funnel must not run and the
// caller gets the distinguished insufficient-input state instead of an
// empty eligible set.
func (d Deal) MissingEssentials() []string {
	var missing []string
	if d.LoanAmount <= 0 {
		missing = append(missing, "loan_amount")
	}
	if d.MarketValue <= 0 {
		missing = append(missing, "market_value")
	}
	return missing
}

// Normalize canonicalises enumerated fields and logs unrecognised codes for
// operators. Unknown codes are kept as-is; downstream rules treat them as
// matching nothing rather than failing the whole evaluation.
func Normalize(d Deal, log *zap.Logger) Deal {
	d.TransactionType = strings.ToLower(strings.TrimSpace(d.TransactionType))
	if d.TransactionType == "" {
		d.TransactionType = "purchase"
	}
	d.Geography = strings.TrimSpace(d.Geography)
	d.EntityType = strings.ToLower(strings.TrimSpace(d.EntityType))
	if d.EntityType == "" {
		d.EntityType = "individual"
	}
	if d.PropertyType == "" {
		d.PropertyType = panel.PropertyResidential
	}
	if d.Charge == "" {
		d.Charge = panel.ChargeFirst
	}

	if log != nil {
		if !panel.KnownPropertyClass(d.PropertyType) {
			log.Warn("unknown property type in deal", zap.String("property_type", string(d.PropertyType)))
		}
		if d.Geography != "" && !panel.KnownGeography(d.Geography) {
			log.Warn("unknown geography in deal", zap.String("geography", d.Geography))
		}
		if !panel.KnownEntityType(d.EntityType) {
			log.Warn("unknown entity type in deal", zap.String("entity_type", d.EntityType))
		}
	}
	return d
}
