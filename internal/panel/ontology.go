package panel

import "strings"

// Domain vocabulary served to the form layer and used to validate incoming
// deal descriptions. Sourced from the panel questionnaire.

// Geographies a UK bridging deal can sit in.
var Geographies = []string{
	"England",
	"Wales",
	"Scotland",
	"Scottish Highlands",
	"Scottish Islands",
	"Northern Ireland",
	"Isle of Man",
	"Isle of Wight",
	"Channel Islands",
	"London",
}

type EntityType struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

var EntityTypes = []EntityType{
	{Key: "individual", Label: "Individual"},
	{Key: "ltd_spv", Label: "Limited Company (SPV)"},
	{Key: "ltd_trading", Label: "Limited Company (Trading)"},
	{Key: "llp", Label: "LLP"},
	{Key: "trust", Label: "Trust"},
	{Key: "sipp_ssas", Label: "SIPP / SSAS"},
	{Key: "charity", Label: "Charity"},
	{Key: "overseas", Label: "Overseas Entity"},
}

type PropertyType struct {
	Key   PropertyClass `json:"key"`
	Label string        `json:"label"`
}

var PropertyTypes = []PropertyType{
	{Key: PropertyResidential, Label: "Residential"},
	{Key: PropertySemiCommercial, Label: "Semi-Commercial / Mixed Use"},
	{Key: PropertyCommercial, Label: "Fully Commercial"},
	{Key: PropertyLandWithPP, Label: "Land (With Planning)"},
	{Key: PropertyLandNoPP, Label: "Land (Without Planning)"},
}

type DealScenario struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// DealScenarios are the named situations lenders score 0-3 for appetite.
var DealScenarios = []DealScenario{
	{Key: "auction", Label: "Auction Purchase"},
	{Key: "business_stabilisation", Label: "Business Stabilisation"},
	{Key: "insolvency", Label: "Insolvency Solution"},
	{Key: "hmo_conversion", Label: "HMO Conversion"},
	{Key: "comm_to_resi", Label: "Commercial to Residential"},
	{Key: "airspace", Label: "Airspace Development"},
	{Key: "pre_planning", Label: "Pre-Planning Acquisition"},
	{Key: "subsidence", Label: "Subsidence History"},
	{Key: "sitting_tenant", Label: "Sitting Tenant"},
	{Key: "probate", Label: "Probate"},
	{Key: "fire_flood", Label: "Fire/Flood Damage"},
	{Key: "barn_church", Label: "Barn/Church Conversion"},
	{Key: "developer_exit", Label: "Developer Exit"},
	{Key: "lease_extension", Label: "Lease Extension"},
	{Key: "refinance_btl", Label: "Refinance to BTL"},
}

// KnownEntityType reports whether the code is in the vocabulary.
func KnownEntityType(key string) bool {
	for _, e := range EntityTypes {
		if e.Key == key {
			return true
		}
	}
	return false
}

// KnownPropertyClass reports whether the code is in the vocabulary.
func KnownPropertyClass(key PropertyClass) bool {
	for _, p := range PropertyTypes {
		if p.Key == key {
			return true
		}
	}
	return false
}

// KnownGeography reports whether the region name is in the vocabulary,
// case-insensitively.
func KnownGeography(name string) bool {
	for _, g := range Geographies {
		if strings.EqualFold(g, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}
