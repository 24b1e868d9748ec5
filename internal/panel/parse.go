package panel

import (
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`[\d.]+`)

// ParseMoney extracts a currency amount from free-form questionnaire text
// such as "£250k", "1.5m", or "250,000". It returns 0 when no amount is
// present; a missing bound never constrains a deal.
func ParseMoney(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" || isNullish(s) {
		return 0
	}
	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, ",", "")

	mult := 1.0
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "m"):
		mult = 1_000_000
	case strings.Contains(lower, "k"):
		mult = 1_000
	}

	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v * mult
}

// ParseLTV extracts a percentage ceiling and its basis from text such as
// "75%", "70% gross", or "65 net". It returns nil for blank or
// "not available" style answers, which the evaluator treats as the lender
// not offering that configuration.
func ParseLTV(raw string) *LTVLimit {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || isNullish(s) || isUnavailable(s) {
		return nil
	}

	basis := BasisNet
	if strings.Contains(s, "gross") {
		basis = BasisGross
	}

	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &LTVLimit{Ceiling: v, Basis: basis}
}

// ParseFlag maps questionnaire answers onto the tri-state Flag. Answers
// containing both "yes" and a qualifier ("yes - case by case") come back
// conditional; a bare "no" wins only when "yes" is absent.
func ParseFlag(raw string) Flag {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || isNullish(s) {
		return FlagUnknown
	}
	hasYes := strings.Contains(s, "yes")
	hasNo := strings.Contains(s, "no")
	switch {
	case hasYes && (hasNo || strings.Contains(s, "case by case") || strings.Contains(s, "refer") || strings.Contains(s, "subject to")):
		return FlagConditional
	case hasYes:
		return FlagYes
	case hasNo:
		return FlagNo
	default:
		return FlagUnknown
	}
}

// ParseGeographies splits a free-text exclusion list on commas and
// semicolons, lower-casing and trimming each entry.
func ParseGeographies(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" || isNullish(s) {
		return nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		g := strings.ToLower(strings.TrimSpace(part))
		if g != "" {
			out = append(out, g)
		}
	}
	return out
}

// ParseExperience reads a minimum-projects requirement. "None", "0", and
// "no minimum" mean first-timers are accepted; blank means unanswered (-1).
func ParseExperience(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || isNullish(s) {
		return -1
	}
	if strings.Contains(s, "none") || strings.Contains(s, "no minimum") || strings.Contains(s, "first time") {
		return 0
	}
	m := numberRe.FindString(s)
	if m == "" {
		return -1
	}
	v, err := strconv.Atoi(strings.SplitN(m, ".", 2)[0])
	if err != nil {
		return -1
	}
	return v
}

// ParseAppetite reads a 0-3 appetite score, reporting whether the lender
// answered at all.
func ParseAppetite(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || isNullish(s) {
		return 0, false
	}
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.SplitN(m, ".", 2)[0])
	if err != nil || v < 0 {
		return 0, false
	}
	if v > 3 {
		v = 3
	}
	return v, true
}

func isNullish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan", "none", "null", "n/a", "-":
		return true
	}
	return false
}

func isUnavailable(s string) bool {
	return strings.Contains(s, "not available") ||
		strings.Contains(s, "not offered") ||
		strings.Contains(s, "don't lend") ||
		strings.Contains(s, "dont lend")
}
