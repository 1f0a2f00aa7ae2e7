package ports

import "context"

// CompletionService is a structured-completion provider. It returns the raw
// model output; callers own JSON parsing and validation.
type CompletionService interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
