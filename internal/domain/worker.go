package domain

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/domain/stations"
	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type jobOutcome int

const (
	outcomeDone jobOutcome = iota
	outcomeFailed
	outcomeDelayed
	// outcomeSkip: nothing to write (lost status race or hard-deleted row),
	// but the blob still needs releasing.
	outcomeSkip
)

// Runner owns the worker pools. Each worker pulls one job and runs the full
// pipeline to a terminal decision: billing pre-check, STT with failover,
// extraction, embedding/linking, billing settlement. The blob release is
// deferred over the whole job, so it happens on every exit path.
type Runner struct {
	cfg     *config.Config
	notes   ports.NoteRepository
	billing *BillingService
	stt     *stations.Transcriber
	extract *stations.Extractor
	embed   *stations.Embedder
	linker  *stations.Linker
	blob    ports.BlobStore
	janitor *Janitor
	disp    *Dispatcher
	events  chan ports.StatusEvent
	log     *zap.SugaredLogger
}

func NewRunner(
	cfg *config.Config,
	notes ports.NoteRepository,
	billing *BillingService,
	stt *stations.Transcriber,
	extract *stations.Extractor,
	embed *stations.Embedder,
	blob ports.BlobStore,
	janitor *Janitor,
	disp *Dispatcher,
	log *zap.SugaredLogger,
) *Runner {
	return &Runner{
		cfg:     cfg,
		notes:   notes,
		billing: billing,
		stt:     stt,
		extract: extract,
		embed:   embed,
		linker:  &stations.Linker{TopN: cfg.Linker.TopN, Threshold: cfg.Linker.Threshold},
		blob:    blob,
		janitor: janitor,
		disp:    disp,
		events:  make(chan ports.StatusEvent, 100),
		log:     log,
	}
}

func (r *Runner) Events() <-chan ports.StatusEvent { return r.events }

// Start spins up the per-queue worker pools and the cleanup reaper, and
// blocks until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, q := range r.disp.queues() {
		for i := 0; i < q.cfg.Workers; i++ {
			g.Go(func() error {
				r.consume(gctx, q)
				return nil
			})
		}
	}

	g.Go(func() error {
		r.janitor.Run(gctx)
		return nil
	})

	return g.Wait()
}

func (r *Runner) consume(ctx context.Context, q *jobQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			r.runJob(ctx, q, job)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, q *jobQueue, job models.ProcessingJob) {
	log := r.log.With("note_id", job.NoteID, "queue", q.name, "attempt", job.Attempt)
	start := time.Now()

	outcome := r.process(ctx, q.cfg, job, log)

	if outcome == outcomeDelayed {
		if job.Attempt+1 < r.cfg.MaxJobAttempts {
			job.Attempt++
			log.Infow("[JOB] delayed, will requeue", "next_attempt", job.Attempt)
			go r.requeueLater(ctx, job)
			return // not terminal: the blob stays for the retry
		}
		log.Warnw("[JOB] attempt ceiling reached")
		r.transition(ctx, job, models.StatusFailed, models.ReasonInternal, log)
		outcome = outcomeFailed
	}

	r.janitor.Release(ctx, job.NoteID, job.StorageKey)
	r.disp.release(job.NoteID)
	log.Infow("[JOB] finished", "outcome", int(outcome), "dur", time.Since(start))
}

// requeueLater waits out the backoff with jitter, then puts the job back on
// the overflow queue. The note's job slot stays held the whole time.
func (r *Runner) requeueLater(ctx context.Context, job models.ProcessingJob) {
	t := time.NewTimer(requeueDelay(job.Attempt))
	defer t.Stop()

	select {
	case <-ctx.Done():
		r.disp.release(job.NoteID)
		return
	case <-t.C:
	}

	if err := r.disp.requeue(job); err != nil {
		r.log.Errorw("[JOB] requeue failed", "note_id", job.NoteID, "err", err)
		r.transition(ctx, job, models.StatusFailed, models.ReasonInternal, r.log)
		r.janitor.Release(ctx, job.NoteID, job.StorageKey)
		r.disp.release(job.NoteID)
	}
}

func requeueDelay(attempt int) time.Duration {
	base := 5 * time.Second << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

// process runs the pipeline stages strictly sequentially and returns the
// job's outcome. Status writes happen here; blob cleanup happens in the
// caller so it covers panics too.
func (r *Runner) process(ctx context.Context, qcfg config.QueueConfig, job models.ProcessingJob, log *zap.SugaredLogger) (out jobOutcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("[JOB] panic recovered", "panic", p)
			r.transition(ctx, job, models.StatusFailed, models.ReasonInternal, log)
			out = outcomeFailed
		}
	}()

	note, err := r.notes.GetByID(ctx, job.NoteID)
	if err != nil {
		log.Warnw("[JOB] note load failed", "err", err)
		return outcomeDelayed
	}
	if note == nil {
		log.Infow("[JOB] note hard-deleted before start")
		return outcomeSkip
	}
	if err := r.notes.UpdateStatus(ctx, note.ID, note.Status, models.StatusProcessing, ""); err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			log.Infow("[JOB] lost admission race, skipping")
			return outcomeSkip
		}
		log.Warnw("[JOB] mark processing failed", "err", err)
		return outcomeDelayed
	}
	r.emit(job, models.StatusProcessing, "")

	if note.Deleted() {
		r.transition(ctx, job, models.StatusFailed, models.ReasonCancelled, log)
		return outcomeFailed
	}

	// billing pre-check: before the costly provider calls
	payer, err := r.billing.SelectPayer(ctx, note.OwnerID, note.OrgID, job.Coords)
	if err != nil {
		log.Warnw("[BILLING] payer lookup failed", "err", err)
		return r.delay(ctx, job, log)
	}
	if err := r.billing.PreCheck(payer, job.EstimatedSecs); err != nil {
		log.Infow("[BILLING] denied", "wallet_id", payer.ID, "err", err)
		r.transition(ctx, job, models.StatusFailed, models.ReasonBillingDenied, log)
		return outcomeFailed
	}

	audio, err := r.blob.Get(ctx, job.StorageKey)
	if err != nil {
		if errors.Is(err, ports.ErrBlobNotFound) {
			log.Errorw("[JOB] blob missing", "storage_key", job.StorageKey)
			r.transition(ctx, job, models.StatusFailed, models.ReasonInternal, log)
			return outcomeFailed
		}
		log.Warnw("[JOB] blob read failed", "err", err)
		return r.delay(ctx, job, log)
	}

	// STT with provider failover
	res, err := r.stt.Run(ctx, audio, ports.STTOptions{Diarize: true}, job.STTPreference, qcfg.STTTimeout)
	if err != nil {
		reason := models.ReasonSTTUnavailable
		if pe, ok := ports.AsProviderError(err); ok && !pe.Retryable() {
			switch pe.Kind {
			case ports.ErrKindUnsupported:
				reason = models.ReasonUnsupported
			default:
				reason = models.ReasonProviderAuth
			}
		}
		log.Errorw("[STT] job failed", "reason", reason, "err", err)
		r.transition(ctx, job, models.StatusFailed, reason, log)
		return outcomeFailed
	}

	actualSecs := res.DurationSec
	if actualSecs <= 0 {
		actualSecs = job.EstimatedSecs
	}

	if err := r.notes.SetTranscript(ctx, note.ID, res.Text, res.Provider+"/"+res.Model, res.Language); err != nil {
		log.Warnw("[JOB] transcript persist failed", "err", err)
		return r.delay(ctx, job, log)
	}

	if r.cancelled(ctx, note.ID) {
		r.transition(ctx, job, models.StatusFailed, models.ReasonCancelled, log)
		return outcomeFailed
	}

	// structured extraction with repair retries and degrade path
	roleHint, err := r.notes.GetOwnerProfile(ctx, note.OwnerID)
	if err != nil {
		log.Warnw("[EXTRACT] profile hint lookup failed", "err", err)
		roleHint = ""
	}

	ectx, ecancel := context.WithTimeout(ctx, qcfg.ExtractTimeout)
	ext, degraded, err := r.extract.Run(ectx, res.Text, roleHint)
	ecancel()
	if err != nil {
		log.Errorw("[EXTRACT] fatal provider error", "err", err)
		r.transition(ctx, job, models.StatusFailed, models.ReasonProviderAuth, log)
		return outcomeFailed
	}

	if degraded {
		if err := r.notes.SetExtraction(ctx, note.ID, "", "", true); err != nil {
			log.Warnw("[EXTRACT] degrade persist failed", "err", err)
		}
	} else {
		// the transcript is already durable; extraction persistence errors
		// degrade rather than delay, so the provider spend is not repeated
		if err := r.notes.SetExtraction(ctx, note.ID, ext.Title, ext.Summary, false); err != nil {
			log.Warnw("[EXTRACT] persist failed", "err", err)
		} else if err := r.notes.InsertTasks(ctx, note.ID, ext.Tasks); err != nil {
			log.Warnw("[EXTRACT] task persist failed", "err", err)
		}
	}

	if r.cancelled(ctx, note.ID) {
		r.transition(ctx, job, models.StatusFailed, models.ReasonCancelled, log)
		return outcomeFailed
	}

	// embedding and linking: an enhancement, never a job failure
	r.embedAndLink(ctx, qcfg, note, res.Text, ext, log)

	// reconciling debit on measured duration, idempotent on note id
	if _, err := r.billing.Settle(ctx, payer.ID, note.ID, actualSecs); err != nil {
		log.Errorw("[BILLING] settle failed", "wallet_id", payer.ID, "err", err)
	}

	r.transition(ctx, job, models.StatusDone, "", log)
	return outcomeDone
}

func (r *Runner) embedAndLink(ctx context.Context, qcfg config.QueueConfig, note *models.Note, transcript string, ext *stations.ExtractResult, log *zap.SugaredLogger) {
	title, summary := "", ""
	if ext != nil {
		title, summary = ext.Title, ext.Summary
	}

	mctx, cancel := context.WithTimeout(ctx, qcfg.EmbedTimeout)
	defer cancel()

	vec, err := r.embed.Run(mctx, title, summary, transcript)
	if err != nil {
		log.Warnw("[EMBED] failed, skipping linking", "err", err)
		return
	}
	if err := r.notes.SetEmbedding(ctx, note.ID, vec); err != nil {
		log.Warnw("[EMBED] persist failed", "err", err)
		return
	}

	candidates, err := r.notes.ListEmbeddings(ctx, note.OwnerID, note.OrgID, note.ID)
	if err != nil {
		log.Warnw("[LINK] candidate fetch failed", "err", err)
		return
	}

	related := r.linker.TopRelated(vec, candidates)
	if err := r.notes.SetRelatedNotes(ctx, note.ID, related); err != nil {
		log.Warnw("[LINK] persist failed", "err", err)
		return
	}
	log.Infow("[LINK] related notes stored", "count", len(related))
}

// cancelled is the stage-boundary cancellation check: the note was hard- or
// soft-deleted while the job was in flight.
func (r *Runner) cancelled(ctx context.Context, noteID int64) bool {
	n, err := r.notes.GetByID(ctx, noteID)
	if err != nil {
		return false
	}
	return n == nil || n.Deleted()
}

// delay marks the note DELAYED for a transient infrastructure error.
func (r *Runner) delay(ctx context.Context, job models.ProcessingJob, log *zap.SugaredLogger) jobOutcome {
	if err := r.notes.UpdateStatus(ctx, job.NoteID, models.StatusProcessing, models.StatusDelayed, ""); err != nil {
		log.Warnw("[JOB] mark delayed failed", "err", err)
	}
	r.emit(job, models.StatusDelayed, "")
	return outcomeDelayed
}

// transition writes a terminal (or cancel) state from wherever the note
// currently is, so unexpected failures never leave it stuck PROCESSING.
func (r *Runner) transition(ctx context.Context, job models.ProcessingJob, to models.NoteStatus, reason string, log *zap.SugaredLogger) {
	froms := []models.NoteStatus{models.StatusProcessing, models.StatusDelayed}
	if to == models.StatusDone {
		froms = []models.NoteStatus{models.StatusProcessing}
	}
	for _, from := range froms {
		err := r.notes.UpdateStatus(ctx, job.NoteID, from, to, reason)
		if err == nil {
			r.emit(job, to, reason)
			return
		}
		if !errors.Is(err, ports.ErrStatusConflict) {
			log.Errorw("[JOB] status write failed", "to", to, "err", err)
			return
		}
	}
	log.Warnw("[JOB] no matching status for transition", "to", to)
}

func (r *Runner) emit(job models.ProcessingJob, status models.NoteStatus, reason string) {
	ev := ports.StatusEvent{
		NoteID:  job.NoteID,
		OwnerID: job.OwnerID,
		Status:  status,
		Reason:  reason,
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warnw("[EVENTS] channel full, dropping", "note_id", job.NoteID)
	}
}
