package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/drill/internal/anthropic"
	"github.com/MikeSquared-Agency/drill/internal/scenario"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScorer struct {
	reply    string
	err      error
	calls    int
	system   string
	messages []anthropic.Message
}

func (f *fakeScorer) Complete(_ context.Context, system string, messages []anthropic.Message, _ int) (string, error) {
	f.calls++
	f.system = system
	f.messages = messages
	return f.reply, f.err
}

func validResponse() map[string]any {
	cats := map[string]any{}
	for _, k := range DefaultRubric.Keys() {
		cats[k] = map[string]any{"score": 80, "feedback": k + " was fine"}
	}
	return map[string]any{
		"overallScore": 96,
		"categories":   cats,
		"strengths":    []string{"Greeted the customer warmly"},
		"improvements": []string{"Confirm the account number earlier"},
		"summary":      "Solid call with a clear resolution.",
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func sampleRequest(t *testing.T) Request {
	t.Helper()
	sc, err := scenario.Lookup("billing_complaint")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return Request{
		SessionID: "s-1",
		Transcript: []transcript.Message{
			{Role: transcript.RoleTrainee, Content: "hello", Final: true},
			{Role: transcript.RolePersona, Content: "hi there", Final: true},
		},
		Scenario: sc,
		Duration: 95 * time.Second,
	}
}

func TestEvaluate_Success(t *testing.T) {
	scorer := &fakeScorer{reply: mustJSON(t, validResponse())}
	p := New(scorer, Config{Model: "test-model"}, discardLogger())

	ev, err := p.Evaluate(context.Background(), sampleRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scorer.calls != 1 {
		t.Errorf("expected one scorer call, got %d", scorer.calls)
	}
	if ev.OverallScore != 96 || ev.OverallGrade != "A" {
		t.Errorf("expected 96/A, got %d/%s", ev.OverallScore, ev.OverallGrade)
	}
	if len(ev.Categories) != 6 {
		t.Errorf("expected 6 categories, got %d", len(ev.Categories))
	}
	if ev.Categories["processAdherence"].Feedback != "processAdherence was fine" {
		t.Errorf("unexpected category feedback: %+v", ev.Categories["processAdherence"])
	}
	if ev.MessageCount != 2 || ev.DurationSeconds != 95 {
		t.Errorf("expected 2 messages / 95s, got %d / %d", ev.MessageCount, ev.DurationSeconds)
	}
	if ev.ScenarioID != "billing_complaint" || ev.Model != "test-model" || ev.CreatedAt.IsZero() {
		t.Errorf("metadata not populated: %+v", ev)
	}

	user := scorer.messages[0].Content
	for _, want := range []string{
		"AGENT: hello\nCUSTOMER: hi there",
		"billing_complaint",
		"Explaining the charges clearly",
		"95 seconds",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
	for _, key := range DefaultRubric.Keys() {
		if !strings.Contains(scorer.system, `"`+key+`"`) {
			t.Errorf("system prompt missing category %q", key)
		}
	}
}

func TestEvaluate_GradeIgnoresScorerGrade(t *testing.T) {
	resp := validResponse()
	resp["overallScore"] = 59
	resp["overallGrade"] = "A+"
	p := New(&fakeScorer{reply: mustJSON(t, resp)}, Config{}, discardLogger())

	ev, err := p.Evaluate(context.Background(), sampleRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OverallGrade != "F" {
		t.Errorf("expected computed grade F, got %s", ev.OverallGrade)
	}
}

func TestEvaluate_EmptyTranscript(t *testing.T) {
	scorer := &fakeScorer{}
	p := New(scorer, Config{}, discardLogger())

	req := sampleRequest(t)
	req.Transcript = nil
	if _, err := p.Evaluate(context.Background(), req); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if scorer.calls != 0 {
		t.Errorf("scorer should not be called for an empty transcript")
	}
}

func TestEvaluate_Unavailable(t *testing.T) {
	p := New(&fakeScorer{err: errors.New("connection refused")}, Config{}, discardLogger())

	_, err := p.Evaluate(context.Background(), sampleRequest(t))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidResponse) {
		t.Error("upstream error must not be reported as invalid response")
	}
}

func TestEvaluate_InvalidResponses(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
		raw    string
	}{
		{name: "not json", raw: "I think the agent did well."},
		{name: "missing overall", mutate: func(m map[string]any) { delete(m, "overallScore") }},
		{name: "overall string", mutate: func(m map[string]any) { m["overallScore"] = "85" }},
		{name: "overall above range", mutate: func(m map[string]any) { m["overallScore"] = 101 }},
		{name: "overall negative", mutate: func(m map[string]any) { m["overallScore"] = -1 }},
		{name: "missing categories", mutate: func(m map[string]any) { delete(m, "categories") }},
		{name: "missing category", mutate: func(m map[string]any) { delete(m["categories"].(map[string]any), "empathy") }},
		{name: "category score out of range", mutate: func(m map[string]any) {
			m["categories"].(map[string]any)["tone"] = map[string]any{"score": 140, "feedback": "x"}
		}},
		{name: "category feedback missing", mutate: func(m map[string]any) {
			m["categories"].(map[string]any)["clarity"] = map[string]any{"score": 70}
		}},
		{name: "strengths not array", mutate: func(m map[string]any) { m["strengths"] = "good greeting" }},
		{name: "improvements item not string", mutate: func(m map[string]any) { m["improvements"] = []any{1, 2} }},
		{name: "missing summary", mutate: func(m map[string]any) { delete(m, "summary") }},
		{name: "optional field wrong type", mutate: func(m map[string]any) { m["summaryUrdu"] = 12 }},
		{name: "example missing quote", mutate: func(m map[string]any) {
			m["examples"] = map[string]any{"good": []any{map[string]any{"reason": "x"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			if tt.mutate != nil {
				m := validResponse()
				tt.mutate(m)
				raw = mustJSON(t, m)
			}
			p := New(&fakeScorer{reply: raw}, Config{}, discardLogger())
			_, err := p.Evaluate(context.Background(), sampleRequest(t))
			if !errors.Is(err, ErrInvalidResponse) {
				t.Fatalf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

func TestEvaluate_OptionalFields(t *testing.T) {
	resp := validResponse()
	resp["summaryUrdu"] = "اچھی کال"
	resp["strengthsUrdu"] = []string{"خوش اخلاقی"}
	resp["examples"] = map[string]any{
		"good":      []any{map[string]any{"quote": "I understand", "reason": "empathy"}},
		"needsWork": []any{map[string]any{"quote": "hold on", "reason": "abrupt", "reasonUrdu": "اچانک"}},
	}
	raw := "```json\n" + mustJSON(t, resp) + "\n```"
	p := New(&fakeScorer{reply: raw}, Config{Bilingual: true}, discardLogger())

	ev, err := p.Evaluate(context.Background(), sampleRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.SummaryUrdu == "" || len(ev.StrengthsUrdu) != 1 {
		t.Errorf("localized fields not parsed: %+v", ev)
	}
	if ev.Examples == nil || len(ev.Examples.Good) != 1 || ev.Examples.NeedsWork[0].ReasonUrdu != "اچانک" {
		t.Errorf("examples not parsed: %+v", ev.Examples)
	}
}

func TestEvaluate_FractionalScoreRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"overall below band edge", func(r map[string]any) { r["overallScore"] = 59.5 }},
		{"overall near top", func(r map[string]any) { r["overallScore"] = 96.6 }},
		{"category", func(r map[string]any) {
			cats := r["categories"].(map[string]any)
			cats["empathy"].(map[string]any)["score"] = 71.2
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := validResponse()
			tt.mutate(resp)
			p := New(&fakeScorer{reply: mustJSON(t, resp)}, Config{}, discardLogger())

			ev, err := p.Evaluate(context.Background(), sampleRequest(t))
			if !errors.Is(err, ErrInvalidResponse) {
				t.Fatalf("expected ErrInvalidResponse, got %v (evaluation %+v)", err, ev)
			}
		})
	}
}

func TestEvaluate_WholeFloatScoreAccepted(t *testing.T) {
	reply := strings.Replace(mustJSON(t, validResponse()), `"overallScore":96`, `"overallScore":60.0`, 1)
	p := New(&fakeScorer{reply: reply}, Config{}, discardLogger())

	ev, err := p.Evaluate(context.Background(), sampleRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OverallScore != 60 || ev.OverallGrade != "D" {
		t.Errorf("expected 60/D, got %d/%s", ev.OverallScore, ev.OverallGrade)
	}
}

func TestEvaluate_CustomRubric(t *testing.T) {
	rubric := Rubric{Name: "sales", Categories: []Category{
		{Key: "discovery", Name: "Discovery"},
		{Key: "closing", Name: "Closing"},
	}}
	resp := map[string]any{
		"overallScore": 72,
		"categories": map[string]any{
			"discovery": map[string]any{"score": 70, "feedback": "ok"},
			"closing":   map[string]any{"score": 74, "feedback": "ok"},
		},
		"strengths":    []string{},
		"improvements": []string{},
		"summary":      "fine",
	}
	p := New(&fakeScorer{reply: mustJSON(t, resp)}, Config{Rubric: rubric}, discardLogger())

	ev, err := p.Evaluate(context.Background(), sampleRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Categories) != 2 || ev.Rubric != "sales" || ev.OverallGrade != "C-" {
		t.Errorf("unexpected evaluation: %+v", ev)
	}
}

func TestEvaluate_ThroughAnthropicClient(t *testing.T) {
	reply := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()
	reply = mustJSON(t, validResponse())

	llm := anthropic.NewClient("test-key", "test-model", "")
	llm.SetTestTransport(server.URL)

	ev, err := New(llm, Config{}, discardLogger()).Evaluate(context.Background(), sampleRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OverallGrade != "A" {
		t.Errorf("expected grade A, got %s", ev.OverallGrade)
	}
}

func TestEvaluate_UpstreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	}))
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model", "")
	llm.SetTestTransport(server.URL)

	_, err := New(llm, Config{}, discardLogger()).Evaluate(context.Background(), sampleRequest(t))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var apiErr *anthropic.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected wrapped APIError 503, got %v", err)
	}
}
