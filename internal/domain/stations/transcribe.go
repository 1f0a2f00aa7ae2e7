package stations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// ErrSTTUnavailable means every provider failed with retryable errors; the
// job goes FAILED with reason STT_UNAVAILABLE.
var ErrSTTUnavailable = errors.New("all stt providers unavailable")

type sttState int

const (
	stateTryPrimary sttState = iota
	stateTrySecondary
	stateFailed
)

// sttCandidate pairs a provider with its key-rotation budget from config.
type sttCandidate struct {
	provider ports.STTProvider
	keyCount int
}

// Transcriber runs speech-to-text with provider failover as an explicit
// state machine: TRY_PRIMARY -> TRY_SECONDARY -> SUCCESS/FAILED. Key
// rotation on a rate limit is an internal retry of the same provider, not a
// failover.
type Transcriber struct {
	primary   sttCandidate
	secondary sttCandidate
	log       *zap.SugaredLogger
}

func NewTranscriber(primary ports.STTProvider, primaryKeys int, secondary ports.STTProvider, secondaryKeys int, log *zap.SugaredLogger) *Transcriber {
	return &Transcriber{
		primary:   sttCandidate{provider: primary, keyCount: primaryKeys},
		secondary: sttCandidate{provider: secondary, keyCount: secondaryKeys},
		log:       log,
	}
}

// Run transcribes audio, failing over on retryable errors. A fatal provider
// error (auth, unsupported format) aborts immediately and propagates as a
// *ports.ProviderError. preference may name a provider to try first.
func (t *Transcriber) Run(ctx context.Context, audio []byte, opts ports.STTOptions, preference string, timeout time.Duration) (*ports.STTResult, error) {
	first, second := t.primary, t.secondary
	if preference != "" && preference == second.provider.Name() {
		first, second = second, first
	}

	var lastErr error
	state := stateTryPrimary

	for {
		switch state {
		case stateTryPrimary:
			res, err := t.attempt(ctx, first, audio, opts, timeout)
			if err == nil {
				return res, nil
			}
			if pe, ok := ports.AsProviderError(err); ok && !pe.Retryable() {
				return nil, pe
			}
			t.log.Infow("[STT] primary failed, failing over",
				"provider", first.provider.Name(), "err", err)
			lastErr = err
			state = stateTrySecondary

		case stateTrySecondary:
			res, err := t.attempt(ctx, second, audio, opts, timeout)
			if err == nil {
				return res, nil
			}
			if pe, ok := ports.AsProviderError(err); ok && !pe.Retryable() {
				return nil, pe
			}
			t.log.Warnw("[STT] secondary failed",
				"provider", second.provider.Name(), "err", err)
			lastErr = err
			state = stateFailed

		case stateFailed:
			return nil, fmt.Errorf("%w: %v", ErrSTTUnavailable, lastErr)
		}
	}
}

// attempt calls one provider, rotating credentials on rate limits until the
// key ring is spent. The returned error is provider-level: either fatal or
// retryable-after-all-keys.
func (t *Transcriber) attempt(ctx context.Context, c sttCandidate, audio []byte, opts ports.STTOptions, timeout time.Duration) (*ports.STTResult, error) {
	rotations := 0
	for {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		res, err := c.provider.Recognize(cctx, audio, opts)
		cancel()

		if err == nil {
			t.log.Infow("[STT] ok",
				"provider", res.Provider, "model", res.Model,
				"lang", res.Language, "chars", len(res.Text))
			return res, nil
		}

		pe, ok := ports.AsProviderError(err)
		if !ok {
			return nil, &ports.ProviderError{Provider: c.provider.Name(), Kind: ports.ErrKindServer, Err: err}
		}
		if !pe.Retryable() {
			return nil, pe
		}
		if pe.Kind == ports.ErrKindRateLimited && rotations < c.keyCount-1 && c.provider.RotateKey() {
			rotations++
			t.log.Infow("[STT] key rotated",
				"provider", c.provider.Name(), "rotation", rotations)
			continue
		}
		return nil, pe
	}
}
