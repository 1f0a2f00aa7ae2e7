package models

// DurationClass is the coarse queue-routing bucket for a recording.
type DurationClass string

const (
	ClassShort DurationClass = "SHORT"
	ClassLong  DurationClass = "LONG"
)

// GeoPoint is a WGS84 coordinate attached to a processing request.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ProcessingJob is an ephemeral queue message, never a durable row. Identity
// is the note id; per-note uniqueness is enforced by the dispatcher.
type ProcessingJob struct {
	NoteID        int64
	OwnerID       int64
	OrgID         *int64
	StorageKey    string
	Class         DurationClass
	EstimatedSecs float64
	STTPreference string
	Coords        *GeoPoint
	Attempt       int
}
