package models

import "time"

// WalletKind separates personal wallets from corporate ones.
type WalletKind string

const (
	WalletPersonal  WalletKind = "personal"
	WalletCorporate WalletKind = "corporate"
)

// Wallet holds a metered-usage balance. A frozen wallet behaves as
// zero-balance for charging but still reports its real balance to the owner.
type Wallet struct {
	ID           int64      `db:"id"`
	OwnerID      *int64     `db:"owner_id"`
	OrgID        *int64     `db:"org_id"`
	Kind         WalletKind `db:"kind"`
	BalanceCents int64      `db:"balance_cents"`
	Frozen       bool       `db:"frozen"`
}

// Transaction is an immutable ledger entry. NoteID carries a unique
// constraint: at most one successful debit per note, ever.
type Transaction struct {
	ID          int64     `db:"id"`
	WalletID    int64     `db:"wallet_id"`
	NoteID      int64     `db:"note_id"`
	AmountCents int64     `db:"amount_cents"`
	CreatedAt   time.Time `db:"created_at"`
}

// WorkLocation is a registered geofence for an organization. Usage inside the
// radius is billed to the corporate wallet.
type WorkLocation struct {
	ID      int64   `db:"id"`
	OrgID   int64   `db:"org_id"`
	Lat     float64 `db:"lat"`
	Lon     float64 `db:"lon"`
	RadiusM float64 `db:"radius_m"`
}
