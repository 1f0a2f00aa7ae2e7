package ports

import (
	"context"

	"github.com/vonote/vonote/internal/models"
)

// StatusEvent is broadcast on every status transition so connected clients
// see progress without polling.
type StatusEvent struct {
	NoteID  int64
	OwnerID int64
	Status  models.NoteStatus
	Reason  string
}

// DispatchResult tells the caller what happened to a process request.
type DispatchResult struct {
	Status   models.NoteStatus
	Enqueued bool
	Class    models.DurationClass
}

// JobDispatcher admits at most one in-flight job per note id.
type JobDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
	// Retry re-enters a FAILED note into PENDING and dispatches it again.
	Retry(ctx context.Context, noteID int64) (*DispatchResult, error)
}

// DispatchRequest is the job-submission contract from the CRUD surface.
type DispatchRequest struct {
	NoteID        int64
	OwnerID       int64
	StorageKey    string
	STTPreference string
	Coords        *models.GeoPoint
	// Class is set on the legacy inline path where bytes were classified
	// before dispatch; empty means "probe the blob store".
	Class         models.DurationClass
	EstimatedSecs float64
}
