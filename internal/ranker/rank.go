package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/danhatton/bridgematch/internal/funnel"
	"github.com/danhatton/bridgematch/internal/panel"
)

var tracer = otel.Tracer("bridgematch/ranker")

const rankSystemPrompt = "You are a UK bridging finance specialist ranking lenders for a broker. " +
	"You are given a deal and the lenders that already passed every eligibility rule. " +
	"Rank the best fits only; never introduce a lender that is not in the candidate list. " +
	"Respond with strict JSON only."

// RankedLender is one entry of the model's shortlist.
type RankedLender struct {
	Name      string `json:"name"`
	Rank      int    `json:"rank"`
	Rationale string `json:"rationale"`
}

// rankPayload is what the model sees: the deal, the eligible candidates with
// their limiting figures, and the active refiner keys. Free-text notes and
// contact details never cross this boundary.
type rankPayload struct {
	Deal       funnel.Deal     `json:"deal"`
	LTV        float64         `json:"ltv"`
	WorksRatio float64         `json:"works_ratio,omitempty"`
	Candidates []rankCandidate `json:"candidates"`
	Refiners   []string        `json:"active_refiners,omitempty"`
}

type rankCandidate struct {
	Name       string  `json:"name"`
	LTVCeiling float64 `json:"ltv_ceiling,omitempty"`
	MinLoan    float64 `json:"min_loan,omitempty"`
	MaxLoan    float64 `json:"max_loan,omitempty"`
	RateBand   string  `json:"rate_band,omitempty"`
}

// Ranker turns an eligible set into a shortlist of at most three lenders.
type Ranker struct {
	caller Caller
	log    *zap.Logger
}

func New(caller Caller, log *zap.Logger) *Ranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{caller: caller, log: log}
}

// Available reports whether the boundary is configured at all.
func (r *Ranker) Available() bool {
	return r != nil && r.caller != nil
}

const maxShortlist = 3

// Rank asks the model for a shortlist over the eligible set. The candidates
// handed over are exactly the current eligible set; the shortlist is filtered
// back against it so a hallucinated name can never surface. Any failure
// returns an error and the caller degrades to the unranked funnel output.
func (r *Ranker) Rank(ctx context.Context, d funnel.Deal, ev funnel.Evaluation, eligible []*panel.Lender) ([]RankedLender, error) {
	if !r.Available() {
		return nil, funnel.NewUnavailableError("AI ranking not configured")
	}
	if len(eligible) == 0 {
		return []RankedLender{}, nil
	}
	ctx, span := tracer.Start(ctx, "rank")
	defer span.End()

	payload := rankPayload{
		Deal:       d,
		LTV:        ev.LTV,
		WorksRatio: ev.WorksRatio,
		Refiners:   d.ActiveRefiners,
	}
	allowed := make(map[string]bool, len(eligible))
	for _, l := range eligible {
		allowed[l.Name] = true
		payload.Candidates = append(payload.Candidates, rankCandidate{
			Name:       l.Name,
			LTVCeiling: ev.Ceilings[l.Name],
			MinLoan:    l.Size.Min,
			MaxLoan:    l.Size.Max,
			RateBand:   l.RateBand,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, funnel.NewInternalError(fmt.Sprintf("encode rank payload: %v", err))
	}
	prompt := fmt.Sprintf(`Deal and candidates:

%s

Return JSON: {"ranked": [{"name": "...", "rank": 1, "rationale": "..."}]} with at most %d entries, best fit first.`,
		string(body), maxShortlist)

	var parsed struct {
		Ranked []RankedLender `json:"ranked"`
	}
	feedback := ""
	for attempt := 1; attempt <= 3; attempt++ {
		full := prompt
		if feedback != "" {
			full += "\n\n" + feedback
		}
		raw, err := r.caller.Complete(ctx, rankSystemPrompt, []Turn{{Role: "user", Content: full}})
		if err != nil {
			if retryable(classifyTransportError(err)) && attempt < 3 {
				time.Sleep(backoffDelay(attempt))
				continue
			}
			return nil, funnel.NewUnavailableError(fmt.Sprintf("ranking transport failure: %v", err))
		}
		clean := stripCodeFences(raw)
		if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
			if attempt < 3 {
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			return nil, funnel.NewUnavailableError(fmt.Sprintf("ranking parse failure: %v", err))
		}
		break
	}

	out := make([]RankedLender, 0, maxShortlist)
	for _, rl := range parsed.Ranked {
		name := strings.TrimSpace(rl.Name)
		if !allowed[name] {
			r.log.Warn("model ranked a non-candidate lender", zap.String("lender", name))
			continue
		}
		rl.Name = name
		out = append(out, rl)
		if len(out) == maxShortlist {
			break
		}
	}
	return out, nil
}
