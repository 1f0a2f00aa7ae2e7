package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
)

type PostgresNoteRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresNoteRepo(pool *pgxpool.Pool) ports.NoteRepository {
	return &PostgresNoteRepo{pool: pool}
}

const noteColumns = `
	id, owner_id, org_id, storage_key, status, fail_reason,
	transcript, transcript_provider, transcript_lang,
	title, summary, extraction_degraded,
	embedding, related_note_ids,
	deleted_at, created_at, updated_at
`

func scanNote(row pgx.Row) (*models.Note, error) {
	var n models.Note
	err := row.Scan(
		&n.ID, &n.OwnerID, &n.OrgID, &n.StorageKey, &n.Status, &n.FailReason,
		&n.Transcript, &n.TranscriptProvider, &n.TranscriptLang,
		&n.Title, &n.Summary, &n.ExtractionDegraded,
		&n.Embedding, &n.RelatedNoteIDs,
		&n.DeletedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	return &n, nil
}

func (r *PostgresNoteRepo) InsertPending(ctx context.Context, ownerID int64, orgID *int64, storageKey string) (*models.Note, error) {
	query := `
		INSERT INTO notes (owner_id, org_id, storage_key, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + noteColumns
	return scanNote(r.pool.QueryRow(ctx, query, ownerID, orgID, storageKey, models.StatusPending))
}

func (r *PostgresNoteRepo) GetByID(ctx context.Context, id int64) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`
	return scanNote(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresNoteRepo) UpdateStatus(ctx context.Context, id int64, from, to models.NoteStatus, failReason string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("update status note=%d: illegal transition %s -> %s", id, from, to)
	}

	query := `
		UPDATE notes
		SET status = $1, fail_reason = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, to, failReason, id, from)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrStatusConflict
	}
	return nil
}

func (r *PostgresNoteRepo) SetTranscript(ctx context.Context, id int64, text, provider, lang string) error {
	query := `
		UPDATE notes
		SET transcript = $1, transcript_provider = $2, transcript_lang = $3, updated_at = now()
		WHERE id = $4
	`
	if _, err := r.pool.Exec(ctx, query, text, provider, lang, id); err != nil {
		return fmt.Errorf("set transcript: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepo) SetExtraction(ctx context.Context, id int64, title, summary string, degraded bool) error {
	query := `
		UPDATE notes
		SET title = $1, summary = $2, extraction_degraded = $3, updated_at = now()
		WHERE id = $4
	`
	if _, err := r.pool.Exec(ctx, query, title, summary, degraded, id); err != nil {
		return fmt.Errorf("set extraction: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepo) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	query := `
		UPDATE notes
		SET embedding = $1, updated_at = now()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, query, vec, id); err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepo) SetRelatedNotes(ctx context.Context, id int64, related []int64) error {
	query := `
		UPDATE notes
		SET related_note_ids = $1, updated_at = now()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, query, related, id); err != nil {
		return fmt.Errorf("set related notes: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepo) ClearStorageKey(ctx context.Context, id int64) error {
	query := `
		UPDATE notes
		SET storage_key = NULL, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear storage key: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepo) GetOwnerProfile(ctx context.Context, ownerID int64) (string, error) {
	var hint *string
	err := r.pool.QueryRow(ctx,
		`SELECT profile_hint FROM users WHERE id = $1`,
		ownerID,
	).Scan(&hint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get owner profile: %w", err)
	}
	if hint == nil {
		return "", nil
	}
	return *hint, nil
}

func (r *PostgresNoteRepo) InsertTasks(ctx context.Context, noteID int64, texts []string) error {
	if len(texts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, text := range texts {
		batch.Queue(
			`INSERT INTO tasks (note_id, text, position) VALUES ($1, $2, $3)`,
			noteID, text, i,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range texts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert tasks note=%d: %w", noteID, err)
		}
	}
	return nil
}

func (r *PostgresNoteRepo) ListTasks(ctx context.Context, noteID int64) ([]models.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, note_id, text, done, position
         FROM tasks
         WHERE note_id = $1
         ORDER BY position ASC`,
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.NoteID, &t.Text, &t.Done, &t.Position); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PostgresNoteRepo) ListEmbeddings(ctx context.Context, ownerID int64, orgID *int64, excludeNoteID int64) ([]ports.NoteEmbedding, error) {
	query := `
		SELECT id, embedding
		FROM notes
		WHERE owner_id = $1
		  AND ($2::bigint IS NULL OR org_id = $2)
		  AND id <> $3
		  AND deleted_at IS NULL
		  AND embedding IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query, ownerID, orgID, excludeNoteID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []ports.NoteEmbedding
	for rows.Next() {
		var e ports.NoteEmbedding
		if err := rows.Scan(&e.NoteID, &e.Vector); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresNoteRepo) EnqueueCleanup(ctx context.Context, noteID int64, storageKey, lastErr string) error {
	query := `
		INSERT INTO cleanup_deadletter (note_id, storage_key, last_err, attempts)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (storage_key)
		DO UPDATE SET last_err = $3, attempts = cleanup_deadletter.attempts + 1
	`
	if _, err := r.pool.Exec(ctx, query, noteID, storageKey, lastErr); err != nil {
		return fmt.Errorf("enqueue cleanup: %w", err)
	}
	return nil
}

func (r *PostgresNoteRepo) ListCleanupBacklog(ctx context.Context, limit int) ([]ports.CleanupEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, note_id, storage_key, last_err, attempts
         FROM cleanup_deadletter
         ORDER BY id ASC
         LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list cleanup backlog: %w", err)
	}
	defer rows.Close()

	var out []ports.CleanupEntry
	for rows.Next() {
		var e ports.CleanupEntry
		if err := rows.Scan(&e.ID, &e.NoteID, &e.StorageKey, &e.LastErr, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan cleanup entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresNoteRepo) ResolveCleanup(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cleanup_deadletter WHERE id = $1`, id); err != nil {
		return fmt.Errorf("resolve cleanup: %w", err)
	}
	return nil
}
