package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/ports"
)

// OpenAIEmbeddings calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbeddings struct {
	cfg    *config.ProviderConfig
	client *http.Client
}

func NewOpenAIEmbeddings(cfg *config.ProviderConfig) ports.EmbeddingService {
	return &OpenAIEmbeddings{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	j, err := json.Marshal(embRequest{Model: e.cfg.Model, Input: sanitize(text)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(j))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.Keys[0])

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, &ports.ProviderError{Provider: e.cfg.Name, Kind: ports.ErrKindTimeout, Err: err}
		}
		return nil, &ports.ProviderError{Provider: e.cfg.Name, Kind: ports.ErrKindServer, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if kind, bad := classifyHTTP(resp.StatusCode); bad {
		return nil, &ports.ProviderError{
			Provider: e.cfg.Name,
			Kind:     kind,
			Err:      fmt.Errorf("http %d: %.200s", resp.StatusCode, raw),
		}
	}

	var parsed embResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return parsed.Data[0].Embedding, nil
}
