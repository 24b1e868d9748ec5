package presentation

import (
	"fmt"
	"strings"

	"github.com/danhatton/bridgematch/internal/funnel"
	"github.com/danhatton/bridgematch/internal/panel"
)

// BuildEmail renders a deal presentation email for the broker to send to the
// lender's BDM. Markdown, so it pastes cleanly into mail clients and feeds
// the HTML/PDF renderers unchanged.
func BuildEmail(l *panel.Lender, d funnel.Deal, aip funnel.AIPDetails) string {
	contact := l.Contact.Best()
	ltv := d.LTV()

	var sb strings.Builder
	subject := "New Bridging Enquiry"
	if aip.PropertyAddress != "" {
		subject += " - " + aip.PropertyAddress
	} else {
		subject += " - Property TBC"
	}
	fmt.Fprintf(&sb, "Subject: %s\n\nDear %s,\n\nI have a bridging enquiry I'd like to discuss with you:\n\n", subject, contact.BDMName)

	sb.WriteString("**LOAN DETAILS**\n")
	fmt.Fprintf(&sb, "- Loan Amount: £%s\n", formatAmount(d.LoanAmount))
	fmt.Fprintf(&sb, "- Property Value: £%s\n", formatAmount(d.MarketValue))
	fmt.Fprintf(&sb, "- LTV: %.1f%%\n", ltv)
	fmt.Fprintf(&sb, "- Property Type: %s\n", titleCase(string(d.PropertyType)))
	fmt.Fprintf(&sb, "- Transaction: %s\n", titleCase(d.TransactionType))
	if d.Regulated {
		sb.WriteString("- Regulated: Yes (owner-occupied)\n")
	}
	if d.Refurb {
		sb.WriteString("- Refurbishment: Yes\n")
		if d.CostOfWorks > 0 {
			fmt.Fprintf(&sb, "- Works Budget: £%s\n", formatAmount(d.CostOfWorks))
		}
		if aip.GDVEstimate != "" {
			fmt.Fprintf(&sb, "- Estimated GDV: %s\n", aip.GDVEstimate)
		}
	}

	sb.WriteString("\n**BORROWER**\n")
	fmt.Fprintf(&sb, "- Name: %s\n", orTBC(aip.BorrowerName))
	borrowerType := aip.BorrowerType
	if borrowerType == "" {
		borrowerType = d.EntityType
	}
	fmt.Fprintf(&sb, "- Type: %s\n", titleCase(borrowerType))
	if aip.IsHomeowner != nil {
		fmt.Fprintf(&sb, "- Homeowner: %s\n", yesNo(*aip.IsHomeowner))
	}
	if aip.AssetsLiabilities != "" {
		fmt.Fprintf(&sb, "- A&L Position: %s\n", aip.AssetsLiabilities)
	}

	if aip.PropertyAddress != "" {
		sb.WriteString("\n**PROPERTY**\n")
		fmt.Fprintf(&sb, "- Address: %s\n", aip.PropertyAddress)
		if aip.AdditionalSecurityAddress != "" {
			fmt.Fprintf(&sb, "- Additional Security: %s\n", aip.AdditionalSecurityAddress)
		}
	}

	if d.Refurb {
		sb.WriteString("\n**REFURBISHMENT DETAILS**\n")
		if aip.RefurbExperience != "" {
			fmt.Fprintf(&sb, "- Developer Experience: %s\n", aip.RefurbExperience)
		}
		if aip.WorksSchedule != "" {
			fmt.Fprintf(&sb, "- Works Schedule: %s\n", aip.WorksSchedule)
		}
	}

	sb.WriteString("\n**EXIT STRATEGY**\n")
	fmt.Fprintf(&sb, "- Strategy: %s\n", orTBC(aip.ExitStrategy))
	if aip.ExitTimeframe != "" {
		fmt.Fprintf(&sb, "- Timeframe: %s\n", aip.ExitTimeframe)
	}

	if aip.Urgency != "" {
		sb.WriteString("\n**TIMING**\n")
		fmt.Fprintf(&sb, "- Urgency: %s\n", aip.Urgency)
	}

	if aip.AdditionalNotes != "" {
		sb.WriteString("\n**ADDITIONAL NOTES**\n")
		sb.WriteString(aip.AdditionalNotes + "\n")
	}

	sb.WriteString("\nPlease let me know if this is something you can support in principle, and any further information you need.\n\n")
	sb.WriteString("Best regards,\n[Your name]\n[Your company]\n[Phone/Email]\n")
	return sb.String()
}

func formatAmount(v float64) string {
	n := int64(v)
	s := fmt.Sprintf("%d", n)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orTBC(s string) string {
	if strings.TrimSpace(s) == "" {
		return "TBC"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
