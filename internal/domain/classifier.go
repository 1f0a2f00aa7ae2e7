package domain

import (
	"context"
	"encoding/binary"

	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// bytesPerSecEstimate approximates compressed voice audio when no container
// hint is available. Misclassification only affects queue latency, so the
// guess stays deliberately cheap.
const bytesPerSecEstimate = 16000

// longFallbackSeconds is the duration estimate when the probe fails entirely.
const longFallbackSeconds = 600

// Classifier picks the SHORT/LONG queue class from a cheap probe: a blob
// HEAD on the decoupled path, or the in-memory bytes on the legacy path.
type Classifier struct {
	blob            ports.BlobStore
	shortMaxBytes   int64
	shortMaxSeconds float64
	log             *zap.SugaredLogger
}

func NewClassifier(blob ports.BlobStore, shortMaxBytes int64, shortMaxSeconds float64, log *zap.SugaredLogger) *Classifier {
	return &Classifier{
		blob:            blob,
		shortMaxBytes:   shortMaxBytes,
		shortMaxSeconds: shortMaxSeconds,
		log:             log,
	}
}

// ClassifyKey probes the blob store for the object size. Probe failures are
// non-fatal and default to LONG.
func (c *Classifier) ClassifyKey(ctx context.Context, key string) (models.DurationClass, float64) {
	size, err := c.blob.Head(ctx, key)
	if err != nil {
		c.log.Warnw("[CLASSIFY] probe failed, defaulting to LONG", "key", key, "err", err)
		return models.ClassLong, longFallbackSeconds
	}
	return c.classifySize(size)
}

// ClassifyBytes classifies an inline upload. A parseable WAV header gives an
// exact duration; anything else falls back to the size heuristic.
func (c *Classifier) ClassifyBytes(data []byte) (models.DurationClass, float64) {
	if secs, ok := wavDuration(data); ok {
		class := models.ClassLong
		if secs <= c.shortMaxSeconds {
			class = models.ClassShort
		}
		return class, secs
	}
	return c.classifySize(int64(len(data)))
}

func (c *Classifier) classifySize(size int64) (models.DurationClass, float64) {
	est := float64(size) / bytesPerSecEstimate
	if size <= c.shortMaxBytes {
		return models.ClassShort, est
	}
	return models.ClassLong, est
}

// wavDuration reads the byte rate out of a canonical RIFF/WAVE header.
func wavDuration(data []byte) (float64, bool) {
	if len(data) < 44 {
		return 0, false
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}
	byteRate := binary.LittleEndian.Uint32(data[28:32])
	if byteRate == 0 {
		return 0, false
	}
	return float64(len(data)-44) / float64(byteRate), true
}
