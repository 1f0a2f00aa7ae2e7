package models

import "time"

// Note is one audio-derived artifact. The storage key is only set while the
// transient blob still exists; privacy cleanup nils it out.
type Note struct {
	ID                 int64      `db:"id"`
	OwnerID            int64      `db:"owner_id"`
	OrgID              *int64     `db:"org_id"`
	StorageKey         *string    `db:"storage_key"`
	Status             NoteStatus `db:"status"`
	FailReason         string     `db:"fail_reason"`
	Transcript         string     `db:"transcript"`
	TranscriptProvider string     `db:"transcript_provider"`
	TranscriptLang     string     `db:"transcript_lang"`
	Title              string     `db:"title"`
	Summary            string     `db:"summary"`
	ExtractionDegraded bool       `db:"extraction_degraded"`
	Embedding          []float32  `db:"embedding"`
	RelatedNoteIDs     []int64    `db:"related_note_ids"`
	DeletedAt          *time.Time `db:"deleted_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// Deleted reports whether the owner removed the note. Workers treat this as a
// cancellation flag at stage boundaries.
func (n *Note) Deleted() bool {
	return n != nil && n.DeletedAt != nil
}
