package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/danhatton/bridgematch/internal/funnel"
	"github.com/danhatton/bridgematch/internal/panel"
	"github.com/danhatton/bridgematch/internal/ranker"
	"github.com/danhatton/bridgematch/internal/store"
)

type stubCaller struct {
	reply string
}

func (s *stubCaller) Complete(_ context.Context, _ string, _ []ranker.Turn) (string, error) {
	return s.reply, nil
}

type stubPDF struct{}

func (stubPDF) Render(_ context.Context, _, _ string) ([]byte, error) {
	return []byte("%PDF-1.4 stub"), nil
}

func testLenders() []*panel.Lender {
	open := &panel.Lender{
		Name: "Alpha Bridging",
		LTV:  panel.LTVTable{Residential1st: &panel.LTVLimit{Ceiling: 75}},
		Caps: panel.Capabilities{ServicedInterest: panel.FlagYes},
		Contact: panel.Contact{
			BDMName:  "Jo Fisher",
			BDMEmail: "jo@alpha.example",
		},
		RateBand: "0.75-0.95%",
	}
	tight := &panel.Lender{
		Name: "Zebra Capital",
		LTV:  panel.LTVTable{Residential1st: &panel.LTVLimit{Ceiling: 55}},
	}
	return []*panel.Lender{open, tight}
}

func newTestServer(t *testing.T, caller ranker.Caller) http.Handler {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.SaveLenders(testLenders()); err != nil {
		t.Fatalf("seed lenders: %v", err)
	}
	p, err := st.LoadPanel()
	if err != nil {
		t.Fatalf("load panel: %v", err)
	}
	holder := panel.NewHolder(p)
	chat := ranker.NewChatService(st, caller, nil)
	return NewServer(holder, st, ranker.New(caller, nil), chat, stubPDF{}, nil)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	blob, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(blob))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getPath(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFilterEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(t, h, "/api/filter", map[string]any{
		"loan_amount":  240000,
		"market_value": 400000, // 60% LTV: Alpha passes, Zebra capped at 55
	})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res funnel.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != funnel.StatusOK {
		t.Fatalf("status = %q", res.Status)
	}
	if res.EligibleCount != len(res.EligibleLenderIDs) {
		t.Fatalf("count %d != ids %d", res.EligibleCount, len(res.EligibleLenderIDs))
	}
	if res.EligibleCount != 1 || res.EligibleLenderIDs[0] != "Alpha Bridging" {
		t.Fatalf("eligible = %v", res.EligibleLenderIDs)
	}
	if len(res.Excluded) != 1 || res.Excluded[0].Name != "Zebra Capital" {
		t.Fatalf("excluded = %+v", res.Excluded)
	}
}

func TestFilterWithRanking(t *testing.T) {
	h := newTestServer(t, &stubCaller{
		reply: `{"ranked": [{"name": "Alpha Bridging", "rank": 1, "rationale": "fits the size and rate"}]}`,
	})

	rec := postJSON(t, h, "/api/filter?rank=1", map[string]any{
		"loan_amount":  240000,
		"market_value": 400000,
	})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		EligibleLenderIDs []string `json:"eligible_lender_ids"`
		Ranked            []struct {
			Name string `json:"name"`
			Rank int    `json:"rank"`
		} `json:"ranked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Ranked) != 1 || out.Ranked[0].Name != "Alpha Bridging" {
		t.Fatalf("ranked = %+v", out.Ranked)
	}
	// The shortlist is drawn from the same eligible set the response reports.
	if !reflect.DeepEqual(out.EligibleLenderIDs, []string{"Alpha Bridging"}) {
		t.Fatalf("eligible = %v", out.EligibleLenderIDs)
	}
}

func TestFilterInsufficientInputIsHTTP200(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(t, h, "/api/filter", map[string]any{"market_value": 400000})
	if rec.Code != 200 {
		t.Fatalf("insufficient input is a defined state, got %d", rec.Code)
	}
	var res funnel.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != funnel.StatusInsufficientInput {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestFilterRejectsInvalidJSON(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/filter", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRefinerOptionsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(t, h, "/api/refiner-options", map[string]any{
		"loan_amount":  200000,
		"market_value": 400000,
	})
	var out struct {
		BaseCount int `json:"base_count"`
		Refiners  []struct {
			Category string `json:"category"`
			Refiners []struct {
				Key       string `json:"key"`
				Remaining int    `json:"remaining_count"`
			} `json:"refiners"`
		} `json:"refiners"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.BaseCount != 2 {
		t.Fatalf("base = %d", out.BaseCount)
	}
	found := false
	for _, group := range out.Refiners {
		for _, ref := range group.Refiners {
			if ref.Key == "serviced_interest" {
				found = true
				if ref.Remaining != 1 {
					t.Fatalf("serviced_interest remaining = %d, want 1", ref.Remaining)
				}
			}
		}
	}
	if !found {
		t.Fatal("serviced_interest refiner missing")
	}
}

func TestLenderContactLookup(t *testing.T) {
	h := newTestServer(t, nil)

	rec := getPath(h, "/api/lenders/alpha/contact") // substring match
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		LenderName string `json:"lender_name"`
		Contact    struct {
			BDMName string `json:"bdm_name"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.LenderName != "Alpha Bridging" || out.Contact.BDMName != "Jo Fisher" {
		t.Fatalf("contact = %+v", out)
	}

	if rec := getPath(h, "/api/lenders/nonexistent/contact"); rec.Code != 404 {
		t.Fatalf("unknown lender status = %d", rec.Code)
	}
}

func TestContactLenderGeneratesEmail(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(t, h, "/api/contact-lender", map[string]any{
		"lender_name":    "Alpha Bridging",
		"generate_email": true,
		"deal": map[string]any{
			"loan_amount":  200000,
			"market_value": 400000,
		},
		"aip_details": map[string]any{
			"borrower_name": "J Smith",
			"exit_strategy": "Sale",
		},
	})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		StillFits     bool   `json:"still_fits"`
		EmailTemplate string `json:"email_template"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.StillFits {
		t.Fatal("clean AIP details should still fit")
	}
	if !strings.Contains(out.EmailTemplate, "Dear Jo Fisher,") || !strings.Contains(out.EmailTemplate, "J Smith") {
		t.Fatalf("email = %q", out.EmailTemplate)
	}
}

func TestContactLenderPDF(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(t, h, "/api/contact-lender/pdf", map[string]any{
		"lender_name": "Alpha Bridging",
		"deal":        map[string]any{"loan_amount": 200000, "market_value": 400000},
	})
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("no pdf payload")
	}
}

func TestChatSessionFlow(t *testing.T) {
	h := newTestServer(t, &stubCaller{reply: "Alpha Bridging fits best."})

	rec := postJSON(t, h, "/api/chat/new", nil)
	var sess struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil || sess.SessionID == "" {
		t.Fatalf("new session = %q (%v)", rec.Body.String(), err)
	}

	rec = postJSON(t, h, "/api/chat", map[string]any{
		"session_id": sess.SessionID,
		"message":    "who fits?",
		"deal":       map[string]any{"loan_amount": 200000, "market_value": 400000},
	})
	if rec.Code != 200 {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body.String())
	}
	var chat struct {
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &chat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chat.Response != "Alpha Bridging fits best." || chat.SessionID != sess.SessionID {
		t.Fatalf("chat = %+v", chat)
	}

	rec = getPath(h, "/api/chat/history/"+sess.SessionID)
	var hist struct {
		Messages []store.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("history = %d messages, want 2", len(hist.Messages))
	}
}

func TestChatWithoutAIIsUnavailable(t *testing.T) {
	h := newTestServer(t, nil)
	rec := postJSON(t, h, "/api/chat", map[string]any{
		"message": "hello",
		"deal":    map[string]any{"loan_amount": 1, "market_value": 2},
	})
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestFeedbackRoundTrip(t *testing.T) {
	h := newTestServer(t, nil)

	rec := postJSON(t, h, "/api/feedback", map[string]any{
		"lender_name": "Alpha Bridging",
		"rating":      4,
		"comments":    "quick decision",
	})
	if rec.Code != 200 {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}

	if rec := postJSON(t, h, "/api/feedback", map[string]any{"lender_name": "X", "rating": 9}); rec.Code != 400 {
		t.Fatalf("bad rating status = %d", rec.Code)
	}

	rec = getPath(h, "/api/feedback?lender=Alpha+Bridging")
	var out struct {
		Feedback []store.Feedback `json:"feedback"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Feedback) != 1 || out.Feedback[0].Rating != 4 {
		t.Fatalf("feedback = %+v", out.Feedback)
	}
}

func TestConfigEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	rec := getPath(h, "/api/config")
	var out struct {
		Geographies []string `json:"geographies"`
		Refiners    []struct {
			Key      string `json:"key"`
			Category string `json:"category"`
		} `json:"refiners"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Geographies) == 0 || len(out.Refiners) == 0 {
		t.Fatal("config vocabularies missing")
	}
}

func TestHealthAndReload(t *testing.T) {
	h := newTestServer(t, nil)

	rec := getPath(h, "/health")
	var health struct {
		Status   string `json:"status"`
		Lenders  int    `json:"lenders"`
		Database string `json:"database"`
		AI       bool   `json:"ai"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Lenders != 2 || health.AI {
		t.Fatalf("health = %+v", health)
	}
	if health.Database != "ok" {
		t.Fatalf("database = %q, want ok", health.Database)
	}

	rec = postJSON(t, h, "/api/reload", nil)
	if rec.Code != 200 {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body.String())
	}
}
