package ports

import "context"

// EmbeddingService turns text into a fixed-dimension vector.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
