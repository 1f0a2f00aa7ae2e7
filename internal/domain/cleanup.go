package domain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// Janitor guarantees the transient blob is deleted once a job reaches a
// terminal decision. A failed delete never surfaces to the user; it lands in
// the dead-letter table and the reaper loop retries it later.
type Janitor struct {
	blob     ports.BlobStore
	notes    ports.NoteRepository
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewJanitor(blob ports.BlobStore, notes ports.NoteRepository, interval time.Duration, log *zap.SugaredLogger) *Janitor {
	return &Janitor{
		blob:     blob,
		notes:    notes,
		interval: interval,
		log:      log,
	}
}

// Release deletes the blob at storageKey. It runs on every job exit path,
// success or error, and never returns an error to the pipeline.
func (j *Janitor) Release(ctx context.Context, noteID int64, storageKey string) {
	if storageKey == "" {
		return
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	err := backoff.Retry(func() error {
		return j.blob.Delete(ctx, storageKey)
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		// keep the key for manual reconciliation
		j.log.Errorw("[CLEANUP] blob delete failed, dead-lettered",
			"note_id", noteID, "storage_key", storageKey, "err", err)
		if dlErr := j.notes.EnqueueCleanup(ctx, noteID, storageKey, err.Error()); dlErr != nil {
			j.log.Errorw("[CLEANUP] dead-letter enqueue failed",
				"note_id", noteID, "storage_key", storageKey, "err", dlErr)
		}
		return
	}

	if err := j.notes.ClearStorageKey(ctx, noteID); err != nil {
		j.log.Warnw("[CLEANUP] clear storage key failed", "note_id", noteID, "err", err)
	}
	j.log.Infow("[CLEANUP] blob deleted", "note_id", noteID, "storage_key", storageKey)
}

// Run is the dead-letter reaper loop.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	backlog, err := j.notes.ListCleanupBacklog(ctx, 50)
	if err != nil {
		j.log.Warnw("[CLEANUP] backlog read failed", "err", err)
		return
	}

	for _, entry := range backlog {
		if err := j.blob.Delete(ctx, entry.StorageKey); err != nil {
			j.log.Warnw("[CLEANUP] retry delete failed",
				"storage_key", entry.StorageKey, "attempts", entry.Attempts, "err", err)
			_ = j.notes.EnqueueCleanup(ctx, entry.NoteID, entry.StorageKey, err.Error())
			continue
		}
		if err := j.notes.ResolveCleanup(ctx, entry.ID); err != nil {
			j.log.Warnw("[CLEANUP] resolve failed", "id", entry.ID, "err", err)
			continue
		}
		_ = j.notes.ClearStorageKey(ctx, entry.NoteID)
		j.log.Infow("[CLEANUP] dead-lettered blob deleted",
			"note_id", entry.NoteID, "storage_key", entry.StorageKey)
	}
}
