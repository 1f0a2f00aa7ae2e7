package models

// Task is owned exclusively by a Note; deleting the note purges its tasks.
type Task struct {
	ID       int64  `db:"id"`
	NoteID   int64  `db:"note_id"`
	Text     string `db:"text"`
	Done     bool   `db:"done"`
	Position int    `db:"position"`
}
