package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/ports"
)

// OpenRouterClient is the structured-completion provider used by the
// extraction stage.
type OpenRouterClient struct {
	cfg    *config.ProviderConfig
	client *http.Client
}

func NewOpenRouterClient(cfg *config.ProviderConfig) ports.CompletionService {
	return &OpenRouterClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// sanitize strips invalid UTF-8 before the payload is marshalled.
func sanitize(s string) string {
	return strings.ToValidUTF8(s, "")
}

type orMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type orRequest struct {
	Model       string      `json:"model"`
	Messages    []orMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
}

type orResponse struct {
	Choices []struct {
		Message orMessage `json:"message"`
	} `json:"choices"`
}

func (g *OpenRouterClient) Complete(ctx context.Context, system, user string) (string, error) {
	body := orRequest{
		Model:       g.cfg.Model,
		MaxTokens:   1024,
		Temperature: 0,
		Messages: []orMessage{
			{Role: "system", Content: sanitize(system)},
			{Role: "user", Content: sanitize(user)},
		},
	}

	j, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	var out string
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(j))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.cfg.Keys[0])

		resp, err := g.client.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return backoff.Permanent(&ports.ProviderError{Provider: g.cfg.Name, Kind: ports.ErrKindTimeout, Err: err})
			}
			return err
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)

		if kind, bad := classifyHTTP(resp.StatusCode); bad {
			pe := &ports.ProviderError{
				Provider: g.cfg.Name,
				Kind:     kind,
				Err:      fmt.Errorf("http %d: %.200s", resp.StatusCode, raw),
			}
			if pe.Retryable() {
				return pe
			}
			return backoff.Permanent(pe)
		}

		var parsed orResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("empty choices")
		}

		out = parsed.Choices[0].Message.Content
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = g.cfg.Timeout

	if err := backoff.Retry(attempt, backoff.WithContext(bo, ctx)); err != nil {
		if pe, ok := ports.AsProviderError(err); ok {
			return "", pe
		}
		return "", &ports.ProviderError{Provider: g.cfg.Name, Kind: ports.ErrKindServer, Err: err}
	}
	return out, nil
}
