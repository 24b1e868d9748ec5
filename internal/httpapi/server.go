package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/danhatton/bridgematch/internal/funnel"
	"github.com/danhatton/bridgematch/internal/panel"
	"github.com/danhatton/bridgematch/internal/presentation"
	"github.com/danhatton/bridgematch/internal/ranker"
	"github.com/danhatton/bridgematch/internal/store"
)

var tracer = otel.Tracer("bridgematch/httpapi")

// PDFRenderer prints a deal presentation. Satisfied by the Chromium renderer;
// tests swap in a stub.
type PDFRenderer interface {
	Render(ctx context.Context, lenderName, markdown string) ([]byte, error)
}

type Server struct {
	panel  *panel.Holder
	store  *store.Store
	ranker *ranker.Ranker
	chat   *ranker.ChatService
	pdf    PDFRenderer
	log    *zap.Logger
}

func NewServer(holder *panel.Holder, st *store.Store, rk *ranker.Ranker, chat *ranker.ChatService, pdf PDFRenderer, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{panel: holder, store: st, ranker: rk, chat: chat, pdf: pdf, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/filter", s.handleFilter)
	mux.HandleFunc("/api/refiner-options", s.handleRefinerOptions)
	mux.HandleFunc("/api/lenders", s.handleLenders)
	mux.HandleFunc("/api/lenders/", s.handleLenderContact)
	mux.HandleFunc("/api/contact-lender", s.handleContactLender)
	mux.HandleFunc("/api/contact-lender/pdf", s.handleContactLenderPDF)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/chat/new", s.handleChatNew)
	mux.HandleFunc("/api/chat/history/", s.handleChatHistory)
	mux.HandleFunc("/api/feedback", s.handleFeedback)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/reload", s.handleReload)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var fe *funnel.Error
	if errors.As(err, &fe) {
		writeJSON(w, fe.Status, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":      fe.Code,
				"message":   fe.Message,
				"transient": fe.Transient,
			},
		})
		return
	}
	writeJSON(w, 500, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":      funnel.CodeInternal,
			"message":   err.Error(),
			"transient": true,
		},
	})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return funnel.NewValidationError("request body required")
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return funnel.NewValidationError("read body: " + err.Error())
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return funnel.NewValidationError("invalid JSON: " + err.Error())
	}
	return nil
}

type filterResponse struct {
	funnel.Result
	Ranked []ranker.RankedLender `json:"ranked,omitempty"`
}

// handleFilter is the main funnel endpoint, re-run on every deal-field edit.
// With ?rank=1 it additionally asks the AI boundary for a shortlist over the
// eligible set; a ranking failure is logged and the unranked result returned,
// never an error.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	var d funnel.Deal
	if err := decodeBody(r, &d); err != nil {
		writeError(w, err)
		return
	}
	ctx, span := tracer.Start(r.Context(), "filter")
	defer span.End()

	res, ev, nd := funnel.RunWithEvaluation(s.panel.Current(), d, s.log)
	out := filterResponse{Result: res}

	if r.URL.Query().Get("rank") == "1" && res.Status == funnel.StatusOK && s.ranker.Available() {
		ranked, err := s.ranker.Rank(ctx, nd, ev, funnel.CurrentEligible(ev, nd))
		if err != nil {
			s.log.Warn("ranking degraded", zap.Error(err))
		} else {
			out.Ranked = ranked
		}
	}
	writeJSON(w, 200, out)
}

// handleRefinerOptions serves just the chip row for the current deal. Same
// evaluation as /api/filter, trimmed payload.
func (s *Server) handleRefinerOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	var d funnel.Deal
	if err := decodeBody(r, &d); err != nil {
		writeError(w, err)
		return
	}
	res := funnel.Run(s.panel.Current(), d, s.log)
	writeJSON(w, 200, map[string]any{
		"status":     res.Status,
		"base_count": res.EligibleCount,
		"refiners":   res.Refiners,
	})
}

type lenderSummary struct {
	Name         string `json:"name"`
	RateBand     string `json:"rate_band,omitempty"`
	FundingModel string `json:"funding_model,omitempty"`
}

func (s *Server) handleLenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	p := s.panel.Current()
	out := make([]lenderSummary, 0, p.Len())
	for _, l := range p.Lenders {
		if l.Invalid != "" {
			continue
		}
		out = append(out, lenderSummary{Name: l.Name, RateBand: l.RateBand, FundingModel: l.FundingModel})
	}
	writeJSON(w, 200, map[string]any{"lenders": out, "count": len(out)})
}

// handleLenderContact serves GET /api/lenders/{name}/contact.
func (s *Server) handleLenderContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/lenders/")
	name, ok := strings.CutSuffix(rest, "/contact")
	if !ok || name == "" {
		writeError(w, funnel.NewNotFoundError("unknown resource"))
		return
	}
	l := s.panel.Current().ByName(name)
	if l == nil {
		writeError(w, funnel.NewNotFoundError("lender not found"))
		return
	}
	writeJSON(w, 200, map[string]any{
		"lender_name":      l.Name,
		"contact":          l.Contact.Best(),
		"funding_model":    l.FundingModel,
		"typical_proc_fee": l.ProcFee,
		"rate_band":        l.RateBand,
	})
}

type contactLenderRequest struct {
	LenderName    string             `json:"lender_name"`
	Deal          funnel.Deal        `json:"deal"`
	AIPDetails    *funnel.AIPDetails `json:"aip_details,omitempty"`
	GenerateEmail bool               `json:"generate_email,omitempty"`
}

// handleContactLender resolves a lender, re-validates the deal against the
// gathered AIP details, and optionally renders the presentation email.
func (s *Server) handleContactLender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	req, l, err := s.resolveContactRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out := map[string]any{
		"lender_name":             l.Name,
		"contact":                 l.Contact.Best(),
		"still_fits":              true,
		"warnings":                []string{},
		"alternative_suggestions": []funnel.Alternative{},
	}
	d := funnel.Normalize(req.Deal, s.log)
	if req.AIPDetails != nil {
		rev := funnel.Revalidate(s.panel.Current(), l, d, *req.AIPDetails)
		out["still_fits"] = rev.StillFits
		out["warnings"] = rev.Warnings
		out["alternative_suggestions"] = rev.Alternatives
	}
	if req.GenerateEmail && req.AIPDetails != nil {
		out["email_template"] = presentation.BuildEmail(l, d, *req.AIPDetails)
	}
	writeJSON(w, 200, out)
}

// handleContactLenderPDF prints the presentation email as a PDF download.
func (s *Server) handleContactLenderPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	req, l, err := s.resolveContactRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	aip := funnel.AIPDetails{}
	if req.AIPDetails != nil {
		aip = *req.AIPDetails
	}
	email := presentation.BuildEmail(l, funnel.Normalize(req.Deal, s.log), aip)
	pdf, err := s.pdf.Render(r.Context(), l.Name, email)
	if err != nil {
		s.log.Error("pdf render failed", zap.String("lender", l.Name), zap.Error(err))
		writeError(w, funnel.NewUnavailableError("PDF rendering unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="deal-presentation.pdf"`)
	w.WriteHeader(200)
	_, _ = w.Write(pdf)
}

func (s *Server) resolveContactRequest(r *http.Request) (contactLenderRequest, *panel.Lender, error) {
	var req contactLenderRequest
	if err := decodeBody(r, &req); err != nil {
		return req, nil, err
	}
	if strings.TrimSpace(req.LenderName) == "" {
		return req, nil, funnel.NewValidationError("lender_name is required")
	}
	l := s.panel.Current().ByName(req.LenderName)
	if l == nil {
		return req, nil, funnel.NewNotFoundError("lender not found")
	}
	return req, l, nil
}

type chatRequest struct {
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
	Deal      funnel.Deal `json:"deal"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.chat.NewSession()
	}
	// The assistant is grounded in the same funnel run the broker sees.
	res := funnel.Run(s.panel.Current(), req.Deal, s.log)
	reply, err := s.chat.Chat(r.Context(), req.SessionID, req.Message, funnel.Normalize(req.Deal, nil), res)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"response": reply, "session_id": req.SessionID})
}

func (s *Server) handleChatNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	writeJSON(w, 200, map[string]any{"session_id": s.chat.NewSession()})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/chat/history/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, funnel.NewNotFoundError("unknown resource"))
		return
	}
	history, err := s.chat.History(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"session_id": sessionID, "messages": history})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var f store.Feedback
		if err := decodeBody(r, &f); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(f.LenderName) == "" {
			writeError(w, funnel.NewValidationError("lender_name is required"))
			return
		}
		if f.Rating < 1 || f.Rating > 5 {
			writeError(w, funnel.NewValidationError("rating must be 1-5"))
			return
		}
		if err := s.store.SaveFeedback(f); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"status": "saved"})
	case http.MethodGet:
		feedback, err := s.store.ListFeedback(r.URL.Query().Get("lender"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"feedback": feedback})
	default:
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
	}
}

// handleConfig serves the form vocabularies and the refiner catalog so the
// front end never hardcodes domain lists.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	type refinerInfo struct {
		Key      string                 `json:"key"`
		Icon     string                 `json:"icon"`
		Label    string                 `json:"label"`
		Category funnel.RefinerCategory `json:"category"`
	}
	refiners := make([]refinerInfo, 0, len(funnel.Catalog))
	for _, def := range funnel.Catalog {
		refiners = append(refiners, refinerInfo{Key: def.Key, Icon: def.Icon, Label: def.Label, Category: def.Category})
	}
	writeJSON(w, 200, map[string]any{
		"geographies":    panel.Geographies,
		"entity_types":   panel.EntityTypes,
		"property_types": panel.PropertyTypes,
		"deal_scenarios": panel.DealScenarios,
		"refiners":       refiners,
	})
}

// handleReload re-reads the panel from the store and swaps it in atomically.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, 405, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	p, err := s.store.LoadPanel()
	if err != nil {
		writeError(w, funnel.NewInternalError("reload panel: "+err.Error()))
		return
	}
	s.panel.Swap(p)
	s.log.Info("panel reloaded", zap.Int("lenders", p.Len()))
	writeJSON(w, 200, map[string]any{"ok": true, "lenders": p.Len()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	db := "ok"
	if err := s.store.Ping(); err != nil {
		db = "error"
	}
	writeJSON(w, 200, map[string]any{
		"status":   "ok",
		"lenders":  s.panel.Current().Len(),
		"database": db,
		"ai":       s.ranker.Available(),
	})
}
