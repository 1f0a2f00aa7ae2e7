package domain

import "errors"

var (
	// ErrCredential: upload credential could not be issued; nothing was created.
	ErrCredential = errors.New("credential error")

	// ErrDispatch: all queues unreachable; the note stays PENDING and the
	// caller may retry (surfaced as a 5xx).
	ErrDispatch = errors.New("dispatch error")

	ErrNoteNotFound = errors.New("note not found")
	ErrNoteDeleted  = errors.New("note deleted")

	// ErrBillingDenied: estimated cost exceeds the payer's available balance;
	// no provider call was made.
	ErrBillingDenied = errors.New("billing denied")
)
