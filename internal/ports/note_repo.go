package ports

import (
	"context"
	"errors"

	"github.com/vonote/vonote/internal/models"
)

// ErrStatusConflict means the note was not in the expected status when a
// transition was attempted; a concurrent writer got there first.
var ErrStatusConflict = errors.New("note status conflict")

// NoteEmbedding is the minimal projection the linker needs for a
// nearest-neighbor pass.
type NoteEmbedding struct {
	NoteID int64
	Vector []float32
}

type NoteRepository interface {
	InsertPending(ctx context.Context, ownerID int64, orgID *int64, storageKey string) (*models.Note, error)
	GetByID(ctx context.Context, id int64) (*models.Note, error)

	// UpdateStatus enforces the transition table; illegal moves return an error
	// and leave the row untouched.
	UpdateStatus(ctx context.Context, id int64, from, to models.NoteStatus, failReason string) error

	SetTranscript(ctx context.Context, id int64, text, provider, lang string) error
	SetExtraction(ctx context.Context, id int64, title, summary string, degraded bool) error
	SetEmbedding(ctx context.Context, id int64, vec []float32) error
	SetRelatedNotes(ctx context.Context, id int64, related []int64) error
	ClearStorageKey(ctx context.Context, id int64) error

	// GetOwnerProfile returns the owner's short usage-pattern hint for prompt
	// customization; empty when none is set.
	GetOwnerProfile(ctx context.Context, ownerID int64) (string, error)

	InsertTasks(ctx context.Context, noteID int64, texts []string) error
	ListTasks(ctx context.Context, noteID int64) ([]models.Task, error)

	// ListEmbeddings returns owner/org-scoped vectors excluding soft-deleted
	// notes and the note being linked.
	ListEmbeddings(ctx context.Context, ownerID int64, orgID *int64, excludeNoteID int64) ([]NoteEmbedding, error)

	EnqueueCleanup(ctx context.Context, noteID int64, storageKey, lastErr string) error
	ListCleanupBacklog(ctx context.Context, limit int) ([]CleanupEntry, error)
	ResolveCleanup(ctx context.Context, id int64) error
}

// CleanupEntry is one dead-lettered blob deletion awaiting retry.
type CleanupEntry struct {
	ID         int64
	NoteID     int64
	StorageKey string
	LastErr    string
	Attempts   int
}
