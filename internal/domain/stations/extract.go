package stations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// maxRepairAttempts bounds the stricter reprompts after invalid output.
const maxRepairAttempts = 2

const extractSystemPrompt = `You turn a raw voice-note transcript into structured data.

Reply with a single JSON object and NOTHING else:

{"title": "...", "summary": "...", "tasks": ["...", "..."]}

Rules:
- "title": short, at most 80 characters, never empty.
- "summary": 1-3 sentences in the transcript's language, never empty.
- "tasks": concrete action items mentioned in the note; empty array when none.
- Do not invent tasks that are not in the transcript.
- No markdown, no code fences, no commentary.`

const repairPrompt = `Your previous reply was not valid JSON of the required shape.
Return ONLY the JSON object {"title": "...", "summary": "...", "tasks": ["..."]}.
No other text of any kind.

Previous reply:
%s

Transcript:
%s`

// ExtractResult is the schema-validated output of the extraction stage.
type ExtractResult struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tasks   []string `json:"tasks"`
}

// Extractor asks the completion provider for strict JSON and repairs or
// degrades when the model will not comply.
type Extractor struct {
	llm ports.CompletionService
	log *zap.SugaredLogger
}

func NewExtractor(llm ports.CompletionService, log *zap.SugaredLogger) *Extractor {
	return &Extractor{llm: llm, log: log}
}

// Run extracts {title, summary, tasks} from the transcript. roleHint is a
// short profile of the owner's usage pattern folded into the prompt. When
// the output stays invalid after the repair budget, Run returns
// (nil, degraded=true, nil): the caller keeps the transcript and marks the
// note degraded instead of failing the job. Fatal provider errors come back
// as *ports.ProviderError.
func (e *Extractor) Run(ctx context.Context, transcript, roleHint string) (*ExtractResult, bool, error) {
	system := extractSystemPrompt
	if roleHint != "" {
		system += "\n\nAbout the note's author: " + roleHint
	}

	out, err := e.llm.Complete(ctx, system, transcript)
	if err != nil {
		return e.classify(err)
	}

	for attempt := 0; ; attempt++ {
		res, verr := parseExtraction(out)
		if verr == nil {
			e.log.Infow("[EXTRACT] ok", "tasks", len(res.Tasks), "repairs", attempt)
			return res, false, nil
		}

		if attempt >= maxRepairAttempts {
			e.log.Warnw("[EXTRACT] degraded after repairs", "err", verr)
			return nil, true, nil
		}

		e.log.Infow("[EXTRACT] invalid output, repairing", "attempt", attempt+1, "err", verr)
		out, err = e.llm.Complete(ctx, system, fmt.Sprintf(repairPrompt, clip(out, 2000), clip(transcript, 6000)))
		if err != nil {
			return e.classify(err)
		}
	}
}

// classify decides whether a provider error fails the job or only degrades
// the note. Auth and quota exhaustion are job failures; everything else
// (timeouts, flapping servers) degrades, because keeping the transcript is
// the higher-priority outcome.
func (e *Extractor) classify(err error) (*ExtractResult, bool, error) {
	if pe, ok := ports.AsProviderError(err); ok {
		if pe.Kind == ports.ErrKindAuth || pe.Kind == ports.ErrKindQuota {
			return nil, false, pe
		}
	}
	e.log.Warnw("[EXTRACT] provider error, degrading", "err", err)
	return nil, true, nil
}

// parseExtraction pulls the first JSON object out of the model reply and
// validates the shape.
func parseExtraction(raw string) (*ExtractResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json object in reply")
	}

	var res ExtractResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}

	res.Title = strings.TrimSpace(res.Title)
	res.Summary = strings.TrimSpace(res.Summary)
	if res.Title == "" {
		return nil, fmt.Errorf("empty title")
	}
	if len(res.Title) > 200 {
		return nil, fmt.Errorf("title too long")
	}
	if res.Summary == "" {
		return nil, fmt.Errorf("empty summary")
	}

	tasks := res.Tasks[:0]
	for _, t := range res.Tasks {
		if t = strings.TrimSpace(t); t != "" {
			tasks = append(tasks, t)
		}
	}
	res.Tasks = tasks
	return &res, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
