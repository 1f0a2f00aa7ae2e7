package delivery

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/vonote/vonote/internal/domain"
	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
)

// maxInlineUpload caps the legacy multipart path.
const maxInlineUpload = 50 << 20

type NoteHandler struct {
	notes      ports.NoteRepository
	upload     *domain.UploadService
	classifier *domain.Classifier
	dispatcher ports.JobDispatcher
	blob       ports.BlobStore
	log        *logger.ZapLogger
}

func NewNoteHandler(
	notes ports.NoteRepository,
	upload *domain.UploadService,
	classifier *domain.Classifier,
	dispatcher ports.JobDispatcher,
	blob ports.BlobStore,
	log *logger.ZapLogger,
) *NoteHandler {
	return &NoteHandler{
		notes:      notes,
		upload:     upload,
		classifier: classifier,
		dispatcher: dispatcher,
		blob:       blob,
		log:        log,
	}
}

// POST /api/notes/upload-credential
func (h *NoteHandler) CreateUploadCredential(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerFromContext(r.Context())
	orgID := OrgFromContext(r.Context())

	note, cred, err := h.upload.CreateUploadCredential(r.Context(), ownerID, orgID)
	if err != nil {
		http.Error(w, "credential issue failed", http.StatusUnprocessableEntity)
		return
	}

	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "upload credential issued",
		Fields: map[string]any{
			"noteID":  note.ID,
			"ownerID": ownerID,
		},
	})

	writeJSON(w, map[string]any{
		"note_id":     note.ID,
		"storage_key": cred.StorageKey,
		"upload_url":  cred.UploadURL,
		"expires_at":  cred.ExpiresAt.Format(time.RFC3339),
		"status":      note.Status,
	})
}

type processRequest struct {
	StorageKey    string           `json:"storage_key"`
	STTPreference string           `json:"stt_preference"`
	GPS           *models.GeoPoint `json:"gps_coordinates"`
}

// POST /api/notes/{id}/process — decoupled path: the client uploaded to the
// signed URL and now signals readiness.
func (h *NoteHandler) Process(w http.ResponseWriter, r *http.Request) {
	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	var req processRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	res, err := h.dispatcher.Dispatch(r.Context(), ports.DispatchRequest{
		NoteID:        noteID,
		OwnerID:       OwnerFromContext(r.Context()),
		StorageKey:    req.StorageKey,
		STTPreference: req.STTPreference,
		Coords:        req.GPS,
	})
	if err != nil {
		h.dispatchError(w, noteID, err)
		return
	}

	writeJSON(w, map[string]any{
		"status":   res.Status,
		"enqueued": res.Enqueued,
		"class":    res.Class,
	})
}

// POST /api/notes/process — legacy inline path: multipart bytes, classified
// in-process, stored to the blob store by the server, then dispatched.
func (h *NoteHandler) ProcessUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxInlineUpload); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxInlineUpload))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	ownerID := OwnerFromContext(r.Context())
	orgID := OrgFromContext(r.Context())

	note, cred, err := h.upload.CreateUploadCredential(r.Context(), ownerID, orgID)
	if err != nil {
		http.Error(w, "credential issue failed", http.StatusUnprocessableEntity)
		return
	}

	if err := h.blob.Put(r.Context(), cred.StorageKey, data); err != nil {
		http.Error(w, "blob store unavailable", http.StatusServiceUnavailable)
		return
	}

	class, est := h.classifier.ClassifyBytes(data)

	var gps *models.GeoPoint
	if lat, lon := r.FormValue("lat"), r.FormValue("lon"); lat != "" && lon != "" {
		latF, errLat := strconv.ParseFloat(lat, 64)
		lonF, errLon := strconv.ParseFloat(lon, 64)
		if errLat == nil && errLon == nil {
			gps = &models.GeoPoint{Lat: latF, Lon: lonF}
		}
	}

	res, err := h.dispatcher.Dispatch(r.Context(), ports.DispatchRequest{
		NoteID:        note.ID,
		OwnerID:       ownerID,
		StorageKey:    cred.StorageKey,
		STTPreference: r.FormValue("stt_preference"),
		Coords:        gps,
		Class:         class,
		EstimatedSecs: est,
	})
	if err != nil {
		h.dispatchError(w, note.ID, err)
		return
	}

	writeJSON(w, map[string]any{
		"note_id":  note.ID,
		"status":   res.Status,
		"enqueued": res.Enqueued,
		"class":    res.Class,
	})
}

// GET /api/notes/{id}
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	note, err := h.notes.GetByID(r.Context(), noteID)
	if err != nil {
		http.Error(w, "failed to load note", http.StatusInternalServerError)
		return
	}
	if note == nil || note.Deleted() || note.OwnerID != OwnerFromContext(r.Context()) {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}

	tasks, err := h.notes.ListTasks(r.Context(), noteID)
	if err != nil {
		http.Error(w, "failed to load tasks", http.StatusInternalServerError)
		return
	}

	taskViews := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		taskViews = append(taskViews, map[string]any{
			"id":   t.ID,
			"text": t.Text,
			"done": t.Done,
		})
	}

	writeJSON(w, map[string]any{
		"id":                  note.ID,
		"status":              note.Status,
		"fail_reason":         note.FailReason,
		"transcript":          note.Transcript,
		"transcript_provider": note.TranscriptProvider,
		"transcript_lang":     note.TranscriptLang,
		"title":               note.Title,
		"summary":             note.Summary,
		"extraction_degraded": note.ExtractionDegraded,
		"related_notes":       note.RelatedNoteIDs,
		"tasks":               taskViews,
		"created_at":          note.CreatedAt.Format(time.RFC3339),
		"updated_at":          note.UpdatedAt.Format(time.RFC3339),
	})
}

// POST /api/notes/{id}/retry — operator resubmission of a FAILED note.
func (h *NoteHandler) Retry(w http.ResponseWriter, r *http.Request) {
	noteID, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.dispatcher.Retry(r.Context(), noteID)
	if err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			http.Error(w, "note is not in FAILED state", http.StatusConflict)
			return
		}
		h.dispatchError(w, noteID, err)
		return
	}

	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "note retry requested",
		Fields:  map[string]any{"noteID": noteID},
	})

	writeJSON(w, map[string]any{
		"status":   res.Status,
		"enqueued": res.Enqueued,
	})
}

func (h *NoteHandler) dispatchError(w http.ResponseWriter, noteID int64, err error) {
	switch {
	case errors.Is(err, domain.ErrNoteNotFound):
		http.Error(w, "note not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrNoteDeleted):
		http.Error(w, "note deleted", http.StatusGone)
	case errors.Is(err, domain.ErrDispatch):
		// retryable: queues saturated, note stays PENDING
		http.Error(w, "processing queues unavailable, retry later", http.StatusServiceUnavailable)
	default:
		h.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "dispatch failed",
			Error:   err,
			Fields:  map[string]any{"noteID": noteID},
		})
		http.Error(w, "dispatch failed", http.StatusInternalServerError)
	}
}

func noteIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
