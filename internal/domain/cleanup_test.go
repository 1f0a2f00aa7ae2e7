package domain

import (
	"context"
	"testing"
	"time"
)

func TestJanitorReleaseDeletesAndClearsKey(t *testing.T) {
	repo := newFakeNoteRepo()
	blob := newFakeBlobStore()
	j := NewJanitor(blob, repo, time.Hour, testLogger())

	note, _ := repo.InsertPending(context.Background(), 7, nil, "voice/a")
	_ = blob.Put(context.Background(), "voice/a", []byte("audio"))

	j.Release(context.Background(), note.ID, "voice/a")

	if blob.exists("voice/a") {
		t.Error("blob still present after release")
	}
	got, _ := repo.GetByID(context.Background(), note.ID)
	if got.StorageKey != nil {
		t.Errorf("storage key = %q, want nil", *got.StorageKey)
	}
	if len(repo.backlog) != 0 {
		t.Errorf("backlog = %+v, want empty", repo.backlog)
	}
}

func TestJanitorReleaseEmptyKeyIsNoop(t *testing.T) {
	blob := newFakeBlobStore()
	j := NewJanitor(blob, newFakeNoteRepo(), time.Hour, testLogger())

	j.Release(context.Background(), 1, "")

	if blob.deletes != 0 {
		t.Errorf("deletes = %d, want 0", blob.deletes)
	}
}

func TestJanitorDeadLettersFailedDelete(t *testing.T) {
	repo := newFakeNoteRepo()
	blob := newFakeBlobStore()
	blob.failDelete = true
	j := NewJanitor(blob, repo, time.Hour, testLogger())

	note, _ := repo.InsertPending(context.Background(), 7, nil, "voice/a")
	_ = blob.Put(context.Background(), "voice/a", []byte("audio"))

	j.Release(context.Background(), note.ID, "voice/a")

	// the key stays on the note for reconciliation and the failure is queued
	got, _ := repo.GetByID(context.Background(), note.ID)
	if got.StorageKey == nil {
		t.Error("storage key cleared despite failed delete")
	}
	if len(repo.backlog) != 1 {
		t.Fatalf("backlog entries = %d, want 1", len(repo.backlog))
	}
	if repo.backlog[0].StorageKey != "voice/a" || repo.backlog[0].NoteID != note.ID {
		t.Errorf("backlog entry = %+v", repo.backlog[0])
	}
}

func TestJanitorSweepDrainsBacklog(t *testing.T) {
	repo := newFakeNoteRepo()
	blob := newFakeBlobStore()
	j := NewJanitor(blob, repo, time.Hour, testLogger())

	note, _ := repo.InsertPending(context.Background(), 7, nil, "voice/a")
	_ = blob.Put(context.Background(), "voice/a", []byte("audio"))
	_ = repo.EnqueueCleanup(context.Background(), note.ID, "voice/a", "store unavailable")

	j.sweep(context.Background())

	if blob.exists("voice/a") {
		t.Error("blob still present after sweep")
	}
	if len(repo.backlog) != 0 {
		t.Errorf("backlog = %+v, want drained", repo.backlog)
	}
	got, _ := repo.GetByID(context.Background(), note.ID)
	if got.StorageKey != nil {
		t.Errorf("storage key = %q, want nil", *got.StorageKey)
	}
}

func TestJanitorSweepKeepsEntryOnRepeatFailure(t *testing.T) {
	repo := newFakeNoteRepo()
	blob := newFakeBlobStore()
	blob.failDelete = true
	j := NewJanitor(blob, repo, time.Hour, testLogger())

	_ = repo.EnqueueCleanup(context.Background(), 1, "voice/a", "store unavailable")

	j.sweep(context.Background())

	if len(repo.backlog) == 0 {
		t.Error("backlog drained despite the delete still failing")
	}
}
