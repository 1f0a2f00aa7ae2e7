package stations

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// transcriptExcerptLen caps how much transcript feeds the embedding input.
const transcriptExcerptLen = 2000

// Embedder computes the note's semantic vector from title + summary +
// transcript excerpt.
type Embedder struct {
	svc ports.EmbeddingService
	log *zap.SugaredLogger
}

func NewEmbedder(svc ports.EmbeddingService, log *zap.SugaredLogger) *Embedder {
	return &Embedder{svc: svc, log: log}
}

func (e *Embedder) Run(ctx context.Context, title, summary, transcript string) ([]float32, error) {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	sb.WriteString(clip(transcript, transcriptExcerptLen))

	vec, err := e.svc.Embed(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	e.log.Infow("[EMBED] ok", "dim", len(vec))
	return vec, nil
}

// Linker picks the top-N most similar notes above a similarity threshold.
type Linker struct {
	TopN      int
	Threshold float64
}

type scored struct {
	noteID int64
	score  float64
}

// TopRelated returns candidate note ids ordered by descending cosine
// similarity, filtered by the threshold and capped at TopN.
func (l *Linker) TopRelated(vec []float32, candidates []ports.NoteEmbedding) []int64 {
	var hits []scored
	for _, c := range candidates {
		s := CosineSimilarity(vec, c.Vector)
		if s >= l.Threshold {
			hits = append(hits, scored{noteID: c.NoteID, score: s})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	n := l.TopN
	if n > len(hits) {
		n = len(hits)
	}
	out := make([]int64, 0, n)
	for _, h := range hits[:n] {
		out = append(out, h.noteID)
	}
	return out
}

// CosineSimilarity returns 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
