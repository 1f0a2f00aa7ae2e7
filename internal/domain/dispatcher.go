package domain

import (
	"context"
	"fmt"
	"sync"

	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// jobQueue is one bounded queue class. The channel is the serialization
// point for job admission; workers pull from it one job at a time.
type jobQueue struct {
	name string
	cfg  config.QueueConfig
	jobs chan models.ProcessingJob
}

func newJobQueue(name string, cfg config.QueueConfig) *jobQueue {
	return &jobQueue{
		name: name,
		cfg:  cfg,
		jobs: make(chan models.ProcessingJob, cfg.Depth),
	}
}

// Dispatcher enforces at most one active job per note id, then routes onto
// the class-selected queue. SHORT gets the high-concurrency queue with tight
// timeouts; LONG the low-concurrency one; both spill into a shared overflow
// queue when full.
type Dispatcher struct {
	notes      ports.NoteRepository
	classifier *Classifier
	log        *zap.SugaredLogger

	short    *jobQueue
	long     *jobQueue
	overflow *jobQueue

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewDispatcher(notes ports.NoteRepository, classifier *Classifier, cfg *config.Config, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		notes:      notes,
		classifier: classifier,
		log:        log,
		short:      newJobQueue("short", cfg.ShortQueue),
		long:       newJobQueue("long", cfg.LongQueue),
		overflow:   newJobQueue("overflow", cfg.OverflowQueue),
		inflight:   make(map[int64]struct{}),
	}
}

func (d *Dispatcher) queues() []*jobQueue {
	return []*jobQueue{d.short, d.long, d.overflow}
}

// acquire reserves the note's single job slot. False means a job is already
// in flight.
func (d *Dispatcher) acquire(noteID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[noteID]; busy {
		return false
	}
	d.inflight[noteID] = struct{}{}
	return true
}

// release frees the note's job slot once its job reached a terminal decision.
func (d *Dispatcher) release(noteID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, noteID)
}

// Dispatch admits one processing job for the note. Resubmission while a job
// is queued or running is an idempotent no-op returning the current status.
func (d *Dispatcher) Dispatch(ctx context.Context, req ports.DispatchRequest) (*ports.DispatchResult, error) {
	note, err := d.notes.GetByID(ctx, req.NoteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, ErrNoteNotFound
	}
	if req.OwnerID != 0 && note.OwnerID != req.OwnerID {
		return nil, ErrNoteNotFound
	}
	if note.Deleted() {
		return nil, ErrNoteDeleted
	}
	if note.Status != models.StatusPending {
		// PROCESSING, DONE, FAILED and DELAYED all refuse a fresh job; FAILED
		// needs the explicit operator retry.
		return &ports.DispatchResult{Status: note.Status}, nil
	}

	storageKey := req.StorageKey
	if storageKey == "" && note.StorageKey != nil {
		storageKey = *note.StorageKey
	}
	if storageKey == "" {
		return nil, fmt.Errorf("note %d has no storage key", req.NoteID)
	}

	if !d.acquire(req.NoteID) {
		return &ports.DispatchResult{Status: note.Status}, nil
	}

	class, est := req.Class, req.EstimatedSecs
	if class == "" {
		class, est = d.classifier.ClassifyKey(ctx, storageKey)
	}

	job := models.ProcessingJob{
		NoteID:        note.ID,
		OwnerID:       note.OwnerID,
		OrgID:         note.OrgID,
		StorageKey:    storageKey,
		Class:         class,
		EstimatedSecs: est,
		STTPreference: req.STTPreference,
		Coords:        req.Coords,
	}

	target := d.short
	if class == models.ClassLong {
		target = d.long
	}

	if err := d.enqueue(target, job); err != nil {
		d.release(req.NoteID)
		return nil, err
	}

	d.log.Infow("[DISPATCH] enqueued",
		"note_id", note.ID, "class", class, "est_secs", est)
	return &ports.DispatchResult{Status: note.Status, Enqueued: true, Class: class}, nil
}

// enqueue tries the class queue, then the shared overflow queue. Both full
// means the dispatch fails as retryable and the note stays PENDING.
func (d *Dispatcher) enqueue(target *jobQueue, job models.ProcessingJob) error {
	select {
	case target.jobs <- job:
		return nil
	default:
	}

	select {
	case d.overflow.jobs <- job:
		d.log.Warnw("[DISPATCH] queue full, spilled to overflow",
			"note_id", job.NoteID, "queue", target.name)
		return nil
	default:
		return fmt.Errorf("%w: queues %s and overflow are full", ErrDispatch, target.name)
	}
}

// requeue puts a DELAYED job back on the overflow queue while keeping the
// note's job slot held, so a concurrent Dispatch cannot double-admit it.
func (d *Dispatcher) requeue(job models.ProcessingJob) error {
	select {
	case d.overflow.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: overflow queue full on requeue", ErrDispatch)
	}
}

// Retry is the operator path out of FAILED: back to PENDING, then a normal
// dispatch.
func (d *Dispatcher) Retry(ctx context.Context, noteID int64) (*ports.DispatchResult, error) {
	if err := d.notes.UpdateStatus(ctx, noteID, models.StatusFailed, models.StatusPending, ""); err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, ports.DispatchRequest{NoteID: noteID})
}
