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

// YandexSTT is the secondary transcription provider. SpeechKit's short-audio
// endpoint returns a single result string, no diarization.
type YandexSTT struct {
	cfg    *config.ProviderConfig
	client *http.Client

	mu     sync.Mutex
	keyIdx int
}

func NewYandexSTT(cfg *config.ProviderConfig) *YandexSTT {
	return &YandexSTT{
		cfg:    cfg,
		client: http.DefaultClient,
	}
}

func (s *YandexSTT) Name() string { return s.cfg.Name }

func (s *YandexSTT) RotateKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Keys) <= 1 {
		return false
	}
	s.keyIdx = (s.keyIdx + 1) % len(s.cfg.Keys)
	return true
}

func (s *YandexSTT) key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Keys[s.keyIdx]
}

type yandexResponse struct {
	Result string `json:"result"`
	Error  string `json:"error_message"`
}

func (s *YandexSTT) Recognize(ctx context.Context, audio []byte, opts ports.STTOptions) (*ports.STTResult, error) {
	lang := opts.LanguageHint
	if lang == "" {
		lang = "auto"
	}
	url := fmt.Sprintf("%s?lang=%s", s.cfg.Endpoint, lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Api-Key "+s.key())
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

	var parsed yandexResponse
	_ = json.Unmarshal(raw, &parsed)

	if parsed.Error != "" {
		return nil, &ports.ProviderError{
			Provider: s.cfg.Name,
			Kind:     ports.ErrKindServer,
			Err:      fmt.Errorf("%s", parsed.Error),
		}
	}

	return &ports.STTResult{
		Text:     parsed.Result,
		Language: opts.LanguageHint,
		Provider: s.cfg.Name,
		Model:    s.cfg.Model,
	}, nil
}
