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

type PostgresWalletRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresWalletRepo(pool *pgxpool.Pool) ports.WalletRepository {
	return &PostgresWalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.OrgID, &w.Kind, &w.BalanceCents, &w.Frozen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrWalletNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return &w, nil
}

func (r *PostgresWalletRepo) GetPersonal(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	query := `
		SELECT id, owner_id, org_id, kind, balance_cents, frozen
		FROM wallets
		WHERE owner_id = $1 AND kind = $2
	`
	return scanWallet(r.pool.QueryRow(ctx, query, ownerID, models.WalletPersonal))
}

func (r *PostgresWalletRepo) GetCorporate(ctx context.Context, orgID int64) (*models.Wallet, error) {
	query := `
		SELECT id, owner_id, org_id, kind, balance_cents, frozen
		FROM wallets
		WHERE org_id = $1 AND kind = $2
	`
	return scanWallet(r.pool.QueryRow(ctx, query, orgID, models.WalletCorporate))
}

func (r *PostgresWalletRepo) GetByID(ctx context.Context, id int64) (*models.Wallet, error) {
	query := `
		SELECT id, owner_id, org_id, kind, balance_cents, frozen
		FROM wallets
		WHERE id = $1
	`
	return scanWallet(r.pool.QueryRow(ctx, query, id))
}

// Debit runs the two ledger writes in one transaction: the idempotency insert
// first (unique note_id detects a prior charge), then the balance decrement
// under the row lock the UPDATE takes. Concurrent jobs for the same wallet
// serialize on that lock and cannot race past zero.
func (r *PostgresWalletRepo) Debit(ctx context.Context, walletID, noteID, amountCents int64) (*models.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("debit begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var t models.Transaction
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (wallet_id, note_id, amount_cents)
         VALUES ($1, $2, $3)
         ON CONFLICT (note_id) DO NOTHING
         RETURNING id, wallet_id, note_id, amount_cents, created_at`,
		walletID, noteID, amountCents,
	).Scan(&t.ID, &t.WalletID, &t.NoteID, &t.AmountCents, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// conflict path: the note was already charged
			return nil, ports.ErrAlreadyCharged
		}
		return nil, fmt.Errorf("debit insert: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wallets
         SET balance_cents = balance_cents - $1
         WHERE id = $2 AND NOT frozen AND balance_cents >= $1`,
		amountCents, walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("debit update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ports.ErrInsufficientFunds
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("debit commit: %w", err)
	}
	return &t, nil
}

func (r *PostgresWalletRepo) ListWorkLocations(ctx context.Context, orgID int64) ([]models.WorkLocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, org_id, lat, lon, radius_m
         FROM work_locations
         WHERE org_id = $1`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list work locations: %w", err)
	}
	defer rows.Close()

	var out []models.WorkLocation
	for rows.Next() {
		var wl models.WorkLocation
		if err := rows.Scan(&wl.ID, &wl.OrgID, &wl.Lat, &wl.Lon, &wl.RadiusM); err != nil {
			return nil, fmt.Errorf("scan work location: %w", err)
		}
		out = append(out, wl)
	}
	return out, rows.Err()
}
