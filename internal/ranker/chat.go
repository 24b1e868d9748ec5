package ranker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danhatton/bridgematch/internal/funnel"
	"github.com/danhatton/bridgematch/internal/store"
)

const (
	chatQueriesPerHour = 30
	historyTurnLimit   = 20
)

const chatSystemPrompt = "You are a UK bridging finance assistant helping a broker place a deal. " +
	"Ground every answer in the deal context and eligible lender list provided; " +
	"if the list is empty, explain which deal attribute is the likely blocker. " +
	"Be concise and practical."

// ChatService runs broker conversations over the funnel's output, with
// per-session rate limiting and a persisted transcript.
type ChatService struct {
	store   *store.Store
	caller  Caller
	limiter *RateLimiter
	log     *zap.Logger
}

func NewChatService(st *store.Store, caller Caller, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		store:   st,
		caller:  caller,
		limiter: NewRateLimiter(chatQueriesPerHour, time.Hour),
		log:     log,
	}
}

// NewSession mints a fresh conversation id.
func (c *ChatService) NewSession() string {
	return uuid.NewString()
}

// History returns a session's stored transcript.
func (c *ChatService) History(sessionID string) ([]store.ChatMessage, error) {
	return c.store.History(sessionID)
}

// Chat sends one broker message, grounded in the current funnel result, and
// returns the assistant's reply. Both turns are persisted so a session can be
// resumed.
func (c *ChatService) Chat(ctx context.Context, sessionID, message string, d funnel.Deal, res funnel.Result) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", funnel.NewValidationError("message is required")
	}
	if sessionID == "" {
		sessionID = c.NewSession()
	}
	if !c.limiter.Allow(sessionID) {
		return "", funnel.NewRateLimitedError(
			fmt.Sprintf("rate limit reached (%d queries/hour), wait before sending more", chatQueriesPerHour))
	}
	if c.caller == nil {
		return "", funnel.NewUnavailableError("AI assistant not configured")
	}

	history, err := c.store.History(sessionID)
	if err != nil {
		return "", funnel.NewInternalError(fmt.Sprintf("load history: %v", err))
	}
	if len(history) > historyTurnLimit {
		history = history[len(history)-historyTurnLimit:]
	}

	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, Turn{Role: "user", Content: message})

	system := chatSystemPrompt + "\n\n" + dealContext(d, res) + c.feedbackNotes(res.EligibleLenderIDs)
	reply, err := c.caller.Complete(ctx, system, turns)
	if err != nil {
		c.log.Warn("chat completion failed", zap.String("session", sessionID), zap.Error(err))
		return "", funnel.NewUnavailableError("AI assistant temporarily unavailable")
	}
	reply = strings.TrimSpace(reply)

	if err := c.store.AppendMessage(sessionID, "user", message); err != nil {
		return "", funnel.NewInternalError(fmt.Sprintf("persist message: %v", err))
	}
	if err := c.store.AppendMessage(sessionID, "assistant", reply); err != nil {
		return "", funnel.NewInternalError(fmt.Sprintf("persist message: %v", err))
	}
	return reply, nil
}

// feedbackNotes folds recent broker ratings of the eligible lenders into the
// context, capped so the prompt stays small.
func (c *ChatService) feedbackNotes(eligible []string) string {
	if len(eligible) == 0 {
		return ""
	}
	all, err := c.store.ListFeedback("")
	if err != nil || len(all) == 0 {
		return ""
	}
	names := make(map[string]bool, len(eligible))
	for _, n := range eligible {
		names[n] = true
	}
	var parts []string
	for _, f := range all {
		if !names[f.LenderName] {
			continue
		}
		note := fmt.Sprintf("%s rated %d/5", f.LenderName, f.Rating)
		if f.Comments != "" {
			note += " (" + f.Comments + ")"
		}
		parts = append(parts, note)
		if len(parts) == 5 {
			break
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Recent broker feedback: " + strings.Join(parts, "; ") + ".\n"
}

// dealContext renders the current deal and funnel outcome for the system
// prompt. Lender names only; notes and contact details stay server-side.
func dealContext(d funnel.Deal, res funnel.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current deal: £%.0f against £%.0f (%.1f%% LTV), %s, %s charge, %s",
		d.LoanAmount, d.MarketValue, res.LTV, d.PropertyType, d.Charge, d.Geography)
	if d.Regulated {
		sb.WriteString(", regulated")
	}
	if d.Refurb {
		fmt.Fprintf(&sb, ", refurb (works ratio %.0f%%)", res.WorksRatio)
	}
	sb.WriteString(".\n")

	if res.Status == funnel.StatusInsufficientInput {
		fmt.Fprintf(&sb, "The deal is missing: %s.\n", strings.Join(res.MissingFields, ", "))
		return sb.String()
	}
	fmt.Fprintf(&sb, "Eligible lenders (%d): %s.\n", res.EligibleCount, strings.Join(res.EligibleLenderIDs, ", "))
	if len(d.ActiveRefiners) > 0 {
		fmt.Fprintf(&sb, "Active refiners: %s.\n", strings.Join(d.ActiveRefiners, ", "))
	}
	if res.LeverageHints.Summary != "" {
		fmt.Fprintf(&sb, "Leverage hints: %s.\n", res.LeverageHints.Summary)
	}
	return sb.String()
}
