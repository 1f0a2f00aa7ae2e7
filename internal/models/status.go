package models

// NoteStatus is the lifecycle state of a note's processing job.
type NoteStatus string

const (
	StatusPending    NoteStatus = "PENDING"
	StatusProcessing NoteStatus = "PROCESSING"
	StatusDone       NoteStatus = "DONE"
	StatusFailed     NoteStatus = "FAILED"
	StatusDelayed    NoteStatus = "DELAYED"
)

// Fail reason codes surfaced to polling clients on FAILED.
const (
	ReasonSTTUnavailable = "STT_UNAVAILABLE"
	ReasonProviderAuth   = "PROVIDER_AUTH"
	ReasonBillingDenied  = "BILLING_DENIED"
	ReasonExtraction     = "EXTRACTION_FAILED"
	ReasonUnsupported    = "UNSUPPORTED_FORMAT"
	ReasonCancelled      = "CANCELLED"
	ReasonInternal       = "INTERNAL"
)

var allStatuses = []NoteStatus{
	StatusPending,
	StatusProcessing,
	StatusDone,
	StatusFailed,
	StatusDelayed,
}

// transitions is the only set of legal status moves. Everything else is a bug
// or a stale concurrent writer and must be rejected at the repo layer.
var transitions = map[NoteStatus][]NoteStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusDone, StatusFailed, StatusDelayed},
	// DELAYED goes FAILED directly when the requeue ceiling is hit
	StatusDelayed: {StatusProcessing, StatusFailed},
	// operator-triggered retry only
	StatusFailed: {StatusPending},
}

// ValidStatus reports whether s is a known note status.
func ValidStatus(s NoteStatus) bool {
	for _, st := range allStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether moving from → to is legal.
func CanTransition(from, to NoteStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a stable end state.
func (s NoteStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}
