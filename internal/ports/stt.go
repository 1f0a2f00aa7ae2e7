package ports

import (
	"context"
	"errors"
	"fmt"
)

// ProviderErrorKind classifies a provider failure for retry decisions.
type ProviderErrorKind string

const (
	// Retryable: failover to the next credential or provider.
	ErrKindTimeout     ProviderErrorKind = "timeout"
	ErrKindRateLimited ProviderErrorKind = "rate_limited"
	ErrKindServer      ProviderErrorKind = "server_error"

	// Fatal: abort the job with a reason code.
	ErrKindAuth        ProviderErrorKind = "auth_error"
	ErrKindUnsupported ProviderErrorKind = "unsupported_format"
	ErrKindQuota       ProviderErrorKind = "quota_exhausted"
)

// ProviderError is an error from an external STT/LLM/embedding provider,
// tagged with a retryable-vs-fatal classification.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure warrants key rotation or failover.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrKindTimeout, ErrKindRateLimited, ErrKindServer:
		return true
	}
	return false
}

// AsProviderError unwraps err into a *ProviderError if one is in the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// SpeakerSegment is one diarized span of the transcript.
type SpeakerSegment struct {
	Speaker  string  `json:"speaker"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// STTResult is the normalized output contract of a transcription provider.
type STTResult struct {
	Text        string
	Language    string
	Confidence  float64
	DurationSec float64
	Segments    []SpeakerSegment
	Provider    string
	Model       string
}

// STTOptions tunes a single recognition call.
type STTOptions struct {
	LanguageHint string
	Diarize      bool
}

// STTProvider is one speech-to-text backend holding a rotating credential set.
type STTProvider interface {
	Name() string
	Recognize(ctx context.Context, audio []byte, opts STTOptions) (*STTResult, error)
	// RotateKey switches to the next credential after a rate limit.
	// Returns false when the key ring is exhausted.
	RotateKey() bool
}
