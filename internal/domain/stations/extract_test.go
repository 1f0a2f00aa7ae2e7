package stations

import (
	"context"
	"strings"
	"testing"

	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// scriptedLLM replays completions in order; the last entry repeats.
type scriptedLLM struct {
	replies []string
	err     error
	calls   int
}

func (s *scriptedLLM) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	out := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return out, nil
}

func newTestExtractor(llm ports.CompletionService) *Extractor {
	return NewExtractor(llm, zap.NewNop().Sugar())
}

func TestExtractorValidFirstTry(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"title":"Standup notes","summary":"Team sync about the release.","tasks":["ping QA","update changelog"]}`,
	}}
	ex := newTestExtractor(llm)

	res, degraded, err := ex.Run(context.Background(), "we talked about the release", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if degraded {
		t.Fatal("degraded = true, want false")
	}
	if res.Title != "Standup notes" || len(res.Tasks) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if llm.calls != 1 {
		t.Errorf("calls = %d, want 1", llm.calls)
	}
}

func TestExtractorRepairsInvalidOutput(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`Sure! Here is the summary you asked for.`,
		`{"title":"Groceries","summary":"Shopping list for the week.","tasks":["buy milk"]}`,
	}}
	ex := newTestExtractor(llm)

	res, degraded, err := ex.Run(context.Background(), "buy milk and eggs", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if degraded {
		t.Fatal("degraded = true, want false")
	}
	if res.Title != "Groceries" {
		t.Errorf("title = %q", res.Title)
	}
	if llm.calls != 2 {
		t.Errorf("calls = %d, want 2", llm.calls)
	}
}

func TestExtractorDegradesAfterRepairBudget(t *testing.T) {
	llm := &scriptedLLM{replies: []string{`not json`}}
	ex := newTestExtractor(llm)

	res, degraded, err := ex.Run(context.Background(), "some transcript", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !degraded {
		t.Fatal("degraded = false, want true")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	// one initial call plus the full repair budget
	if llm.calls != 1+maxRepairAttempts {
		t.Errorf("calls = %d, want %d", llm.calls, 1+maxRepairAttempts)
	}
}

func TestExtractorFatalProviderError(t *testing.T) {
	llm := &scriptedLLM{err: &ports.ProviderError{Provider: "llm", Kind: ports.ErrKindAuth}}
	ex := newTestExtractor(llm)

	_, degraded, err := ex.Run(context.Background(), "transcript", "")
	if degraded {
		t.Fatal("degraded = true on fatal error")
	}
	pe, ok := ports.AsProviderError(err)
	if !ok || pe.Kind != ports.ErrKindAuth {
		t.Fatalf("want auth ProviderError, got %v", err)
	}
}

func TestExtractorRetryableProviderErrorDegrades(t *testing.T) {
	llm := &scriptedLLM{err: &ports.ProviderError{Provider: "llm", Kind: ports.ErrKindTimeout}}
	ex := newTestExtractor(llm)

	res, degraded, err := ex.Run(context.Background(), "transcript", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !degraded || res != nil {
		t.Errorf("degraded = %v, res = %+v; want degraded with nil result", degraded, res)
	}
}

func TestExtractorRoleHintFoldsIntoPrompt(t *testing.T) {
	var seenSystem string
	llm := &hookLLM{fn: func(system, user string) (string, error) {
		seenSystem = system
		return `{"title":"T","summary":"S.","tasks":[]}`, nil
	}}
	ex := newTestExtractor(llm)

	if _, _, err := ex.Run(context.Background(), "transcript", "field technician, logs inspections"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(seenSystem, "field technician") {
		t.Error("role hint missing from system prompt")
	}
}

type hookLLM struct {
	fn func(system, user string) (string, error)
}

func (h *hookLLM) Complete(ctx context.Context, system, user string) (string, error) {
	return h.fn(system, user)
}

func TestParseExtraction(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		tasks   int
	}{
		{"clean", `{"title":"T","summary":"S.","tasks":["a","b"]}`, false, 2},
		{"wrapped in prose", "Here you go:\n```json\n{\"title\":\"T\",\"summary\":\"S.\",\"tasks\":[]}\n```", false, 0},
		{"blank tasks dropped", `{"title":"T","summary":"S.","tasks":["  ","a"]}`, false, 1},
		{"empty title", `{"title":"","summary":"S.","tasks":[]}`, true, 0},
		{"empty summary", `{"title":"T","summary":"","tasks":[]}`, true, 0},
		{"no object", `plain text`, true, 0},
		{"broken json", `{"title": "T",`, true, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := parseExtraction(c.raw)
			if c.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtraction: %v", err)
			}
			if len(res.Tasks) != c.tasks {
				t.Errorf("tasks = %d, want %d", len(res.Tasks), c.tasks)
			}
		})
	}
}
