package ports

import (
	"context"
	"errors"

	"github.com/vonote/vonote/internal/models"
)

var (
	// ErrInsufficientFunds covers both a short balance and a frozen wallet;
	// frozen wallets charge as if empty.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyCharged means the note id already has a debit transaction.
	// Callers treat it as a successful no-op.
	ErrAlreadyCharged = errors.New("note already charged")

	ErrWalletNotFound = errors.New("wallet not found")
)

type WalletRepository interface {
	GetPersonal(ctx context.Context, ownerID int64) (*models.Wallet, error)
	GetCorporate(ctx context.Context, orgID int64) (*models.Wallet, error)
	GetByID(ctx context.Context, id int64) (*models.Wallet, error)

	// Debit applies one idempotent ledger entry keyed by note id and
	// decrements the balance under a row lock. Returns ErrAlreadyCharged when
	// the note was debited before and ErrInsufficientFunds when the balance
	// (or a frozen flag) blocks the charge.
	Debit(ctx context.Context, walletID, noteID, amountCents int64) (*models.Transaction, error)

	ListWorkLocations(ctx context.Context, orgID int64) ([]models.WorkLocation, error)
}
