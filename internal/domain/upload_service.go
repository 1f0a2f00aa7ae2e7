package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// UploadService mints upload credentials: a PENDING note row plus a
// time-boxed signed write URL. No processing starts until the client signals
// readiness through the dispatcher.
type UploadService struct {
	notes ports.NoteRepository
	blob  ports.BlobStore
	log   *zap.SugaredLogger
}

func NewUploadService(notes ports.NoteRepository, blob ports.BlobStore, log *zap.SugaredLogger) *UploadService {
	return &UploadService{notes: notes, blob: blob, log: log}
}

// CreateUploadCredential issues {note, storage key, signed PUT URL, expiry}.
// Fails with ErrCredential when the owner cannot be resolved; side-effect
// free beyond the note row.
func (s *UploadService) CreateUploadCredential(ctx context.Context, ownerID int64, orgID *int64) (*models.Note, ports.UploadCredential, error) {
	if ownerID <= 0 {
		return nil, ports.UploadCredential{}, fmt.Errorf("%w: owner %d", ErrCredential, ownerID)
	}

	key := "voice/" + uuid.NewString()

	note, err := s.notes.InsertPending(ctx, ownerID, orgID, key)
	if err != nil {
		return nil, ports.UploadCredential{}, fmt.Errorf("%w: %v", ErrCredential, err)
	}

	cred := s.blob.PresignPut(key)

	s.log.Infow("[UPLOAD] credential issued",
		"note_id", note.ID, "owner_id", ownerID, "expires_at", cred.ExpiresAt)
	return note, cred, nil
}
