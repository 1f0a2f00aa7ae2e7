package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vonote/vonote/internal/config"
	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func pdErr(provider string, kind ports.ProviderErrorKind) error {
	return &ports.ProviderError{Provider: provider, Kind: kind}
}

func testConfig() *config.Config {
	qc := config.QueueConfig{
		Workers:        1,
		Depth:          8,
		STTTimeout:     time.Second,
		ExtractTimeout: time.Second,
		EmbedTimeout:   time.Second,
	}
	return &config.Config{
		ShortMaxBytes:   1 << 20,
		ShortMaxSeconds: 120,
		ShortQueue:      qc,
		LongQueue:       qc,
		OverflowQueue:   qc,
		Billing:         config.BillingConfig{PricePerMinuteCents: 10},
		Linker:          config.LinkerConfig{TopN: 5, Threshold: 0.5},
		MaxJobAttempts:  3,
		CleanupInterval: time.Hour,
	}
}

// fakeNoteRepo is an in-memory NoteRepository enforcing the same status
// transition rules as the Postgres implementation.
type fakeNoteRepo struct {
	mu      sync.Mutex
	nextID  int64
	notes   map[int64]*models.Note
	tasks   map[int64][]models.Task
	backlog []ports.CleanupEntry
	profile map[int64]string
}

func newFakeNoteRepo() *fakeNoteRepo {
	return &fakeNoteRepo{
		nextID:  1,
		notes:   make(map[int64]*models.Note),
		tasks:   make(map[int64][]models.Task),
		profile: make(map[int64]string),
	}
}

func (r *fakeNoteRepo) InsertPending(ctx context.Context, ownerID int64, orgID *int64, storageKey string) (*models.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := storageKey
	n := &models.Note{
		ID:         r.nextID,
		OwnerID:    ownerID,
		OrgID:      orgID,
		StorageKey: &key,
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	r.nextID++
	r.notes[n.ID] = n
	cp := *n
	return &cp, nil
}

func (r *fakeNoteRepo) GetByID(ctx context.Context, id int64) (*models.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r *fakeNoteRepo) UpdateStatus(ctx context.Context, id int64, from, to models.NoteStatus, failReason string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.Status != from {
		return ports.ErrStatusConflict
	}
	n.Status = to
	n.FailReason = failReason
	return nil
}

func (r *fakeNoteRepo) SetTranscript(ctx context.Context, id int64, text, provider, lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		n.Transcript = text
		n.TranscriptProvider = provider
		n.TranscriptLang = lang
	}
	return nil
}

func (r *fakeNoteRepo) SetExtraction(ctx context.Context, id int64, title, summary string, degraded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		n.Title = title
		n.Summary = summary
		n.ExtractionDegraded = degraded
	}
	return nil
}

func (r *fakeNoteRepo) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		n.Embedding = vec
	}
	return nil
}

func (r *fakeNoteRepo) SetRelatedNotes(ctx context.Context, id int64, related []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		n.RelatedNoteIDs = related
	}
	return nil
}

func (r *fakeNoteRepo) ClearStorageKey(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		n.StorageKey = nil
	}
	return nil
}

func (r *fakeNoteRepo) GetOwnerProfile(ctx context.Context, ownerID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profile[ownerID], nil
}

func (r *fakeNoteRepo) InsertTasks(ctx context.Context, noteID int64, texts []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range texts {
		r.tasks[noteID] = append(r.tasks[noteID], models.Task{
			ID:       int64(len(r.tasks[noteID]) + 1),
			NoteID:   noteID,
			Text:     t,
			Position: i,
		})
	}
	return nil
}

func (r *fakeNoteRepo) ListTasks(ctx context.Context, noteID int64) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Task(nil), r.tasks[noteID]...), nil
}

func (r *fakeNoteRepo) ListEmbeddings(ctx context.Context, ownerID int64, orgID *int64, excludeNoteID int64) ([]ports.NoteEmbedding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.NoteEmbedding
	for _, n := range r.notes {
		if n.OwnerID != ownerID || n.ID == excludeNoteID || n.Deleted() || len(n.Embedding) == 0 {
			continue
		}
		out = append(out, ports.NoteEmbedding{NoteID: n.ID, Vector: n.Embedding})
	}
	return out, nil
}

func (r *fakeNoteRepo) EnqueueCleanup(ctx context.Context, noteID int64, storageKey, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backlog = append(r.backlog, ports.CleanupEntry{
		ID:         int64(len(r.backlog) + 1),
		NoteID:     noteID,
		StorageKey: storageKey,
		LastErr:    lastErr,
		Attempts:   1,
	})
	return nil
}

func (r *fakeNoteRepo) ListCleanupBacklog(ctx context.Context, limit int) ([]ports.CleanupEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.backlog) {
		limit = len(r.backlog)
	}
	return append([]ports.CleanupEntry(nil), r.backlog[:limit]...), nil
}

func (r *fakeNoteRepo) ResolveCleanup(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.backlog[:0]
	for _, e := range r.backlog {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	r.backlog = kept
	return nil
}

// softDelete flips the cancellation flag the worker checks at stage
// boundaries.
func (r *fakeNoteRepo) softDelete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		now := time.Now()
		n.DeletedAt = &now
	}
}

func (r *fakeNoteRepo) status(id int64) models.NoteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.notes[id]; ok {
		return n.Status
	}
	return ""
}

// fakeWalletRepo keeps wallets and the ledger in memory with the same
// idempotency semantics as the Postgres implementation.
type fakeWalletRepo struct {
	mu        sync.Mutex
	wallets   map[int64]*models.Wallet
	charged   map[int64]int64 // note id -> transaction id
	txns      []models.Transaction
	locations []models.WorkLocation
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{
		wallets: make(map[int64]*models.Wallet),
		charged: make(map[int64]int64),
	}
}

func (r *fakeWalletRepo) addWallet(w models.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := w
	r.wallets[w.ID] = &cp
}

func (r *fakeWalletRepo) GetPersonal(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.Kind == models.WalletPersonal && w.OwnerID != nil && *w.OwnerID == ownerID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, ports.ErrWalletNotFound
}

func (r *fakeWalletRepo) GetCorporate(ctx context.Context, orgID int64) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.Kind == models.WalletCorporate && w.OrgID != nil && *w.OrgID == orgID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, ports.ErrWalletNotFound
}

func (r *fakeWalletRepo) GetByID(ctx context.Context, id int64) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, ports.ErrWalletNotFound
}

func (r *fakeWalletRepo) Debit(ctx context.Context, walletID, noteID, amountCents int64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.charged[noteID]; done {
		return nil, ports.ErrAlreadyCharged
	}
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, ports.ErrWalletNotFound
	}
	if w.Frozen || w.BalanceCents < amountCents {
		return nil, ports.ErrInsufficientFunds
	}

	w.BalanceCents -= amountCents
	t := models.Transaction{
		ID:          int64(len(r.txns) + 1),
		WalletID:    walletID,
		NoteID:      noteID,
		AmountCents: amountCents,
		CreatedAt:   time.Now(),
	}
	r.txns = append(r.txns, t)
	r.charged[noteID] = t.ID
	return &t, nil
}

func (r *fakeWalletRepo) ListWorkLocations(ctx context.Context, orgID int64) ([]models.WorkLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WorkLocation
	for _, l := range r.locations {
		if l.OrgID == orgID {
			out = append(out, l)
		}
	}
	return out, nil
}

// fakeBlobStore keeps objects in memory and can be told to fail deletes.
type fakeBlobStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failDelete bool
	deletes    int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (b *fakeBlobStore) PresignPut(key string) ports.UploadCredential {
	return ports.UploadCredential{
		StorageKey: key,
		UploadURL:  "https://blob.test/" + key,
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}
}

func (b *fakeBlobStore) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, ports.ErrBlobNotFound
	}
	return data, nil
}

func (b *fakeBlobStore) Head(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return 0, ports.ErrBlobNotFound
	}
	return int64(len(data)), nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.failDelete {
		return fmt.Errorf("store unavailable")
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobStore) exists(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// fakeSTT is a scriptable STT provider counting its calls. onCall, when set,
// runs before the scripted reply; tests use it to delete the note mid-flight.
type fakeSTT struct {
	mu      sync.Mutex
	name    string
	result  *ports.STTResult
	errs    []error // consumed one per call; nil means success
	onCall  func()
	calls   int
	rotates int
}

func (f *fakeSTT) Name() string { return f.name }

func (f *fakeSTT) Recognize(ctx context.Context, audio []byte, opts ports.STTOptions) (*ports.STTResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.result != nil {
		res := *f.result
		res.Provider = f.name
		return &res, nil
	}
	return &ports.STTResult{Text: "hello world", Provider: f.name, Model: "m1", DurationSec: 30}, nil
}

func (f *fakeSTT) RotateKey() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotates++
	return true
}

func (f *fakeSTT) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLLM returns scripted completions in order.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return `{"title":"Note","summary":"A note.","tasks":[]}`, nil
	}
	out := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return out, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEmbedder returns a fixed vector.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vec != nil {
		return f.vec, nil
	}
	return []float32{1, 0, 0}, nil
}
