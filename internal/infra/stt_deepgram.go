package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/ports"
)

// DeepgramSTT is the primary transcription provider.
type DeepgramSTT struct {
	cfg    *config.ProviderConfig
	client *http.Client

	mu     sync.Mutex
	keyIdx int
}

func NewDeepgramSTT(cfg *config.ProviderConfig) *DeepgramSTT {
	return &DeepgramSTT{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (s *DeepgramSTT) Name() string { return s.cfg.Name }

func (s *DeepgramSTT) RotateKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Keys) <= 1 {
		return false
	}
	s.keyIdx = (s.keyIdx + 1) % len(s.cfg.Keys)
	return true
}

func (s *DeepgramSTT) key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Keys[s.keyIdx]
}

type dgWord struct {
	Word    string  `json:"punctuated_word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker int     `json:"speaker"`
}

type dgResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string   `json:"transcript"`
				Confidence float64  `json:"confidence"`
				Words      []dgWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (s *DeepgramSTT) Recognize(ctx context.Context, audio []byte, opts ports.STTOptions) (*ports.STTResult, error) {
	url := fmt.Sprintf("%s?model=%s&smart_format=true&detect_language=true", s.cfg.Endpoint, s.cfg.Model)
	if opts.Diarize {
		url += "&diarize=true"
	}
	if opts.LanguageHint != "" {
		url += "&language=" + opts.LanguageHint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+s.key())
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, &ports.ProviderError{Provider: s.cfg.Name, Kind: ports.ErrKindTimeout, Err: err}
		}
		return nil, &ports.ProviderError{Provider: s.cfg.Name, Kind: ports.ErrKindServer, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if kind, bad := classifyHTTP(resp.StatusCode); bad {
		return nil, &ports.ProviderError{
			Provider: s.cfg.Name,
			Kind:     kind,
			Err:      fmt.Errorf("http %d: %.200s", resp.StatusCode, raw),
		}
	}

	var parsed dgResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ports.ProviderError{Provider: s.cfg.Name, Kind: ports.ErrKindServer, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, &ports.ProviderError{Provider: s.cfg.Name, Kind: ports.ErrKindServer, Err: fmt.Errorf("empty result")}
	}

	ch := parsed.Results.Channels[0]
	alt := ch.Alternatives[0]

	return &ports.STTResult{
		Text:        alt.Transcript,
		Language:    ch.DetectedLanguage,
		Confidence:  alt.Confidence,
		DurationSec: parsed.Metadata.Duration,
		Segments:    wordsToSegments(alt.Words),
		Provider:    s.cfg.Name,
		Model:       s.cfg.Model,
	}, nil
}

// wordsToSegments folds word-level diarization into contiguous speaker spans.
func wordsToSegments(words []dgWord) []ports.SpeakerSegment {
	var segs []ports.SpeakerSegment
	for _, w := range words {
		speaker := fmt.Sprintf("speaker_%d", w.Speaker)
		if n := len(segs); n > 0 && segs[n-1].Speaker == speaker {
			segs[n-1].EndSec = w.End
			segs[n-1].Text += " " + w.Word
			continue
		}
		segs = append(segs, ports.SpeakerSegment{
			Speaker:  speaker,
			StartSec: w.Start,
			EndSec:   w.End,
			Text:     w.Word,
		})
	}
	return segs
}

// classifyHTTP maps a provider HTTP status onto the retryable/fatal taxonomy.
func classifyHTTP(status int) (ports.ProviderErrorKind, bool) {
	switch {
	case status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ports.ErrKindAuth, true
	case status == http.StatusTooManyRequests:
		return ports.ErrKindRateLimited, true
	case status == http.StatusUnsupportedMediaType || status == http.StatusUnprocessableEntity:
		return ports.ErrKindUnsupported, true
	case status == http.StatusPaymentRequired:
		return ports.ErrKindQuota, true
	case status >= 500:
		return ports.ErrKindServer, true
	default:
		return ports.ErrKindServer, true
	}
}
