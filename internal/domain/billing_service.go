package domain

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vonote/vonote/internal/models"
	"github.com/vonote/vonote/internal/ports"
	"go.uber.org/zap"
)

// BillingService charges exactly one wallet exactly once per note.
// Pre-check runs on the duration estimate before any provider call; the
// reconciling debit uses the measured duration and is idempotent on note id.
type BillingService struct {
	wallets       ports.WalletRepository
	priceCentsMin int64
	log           *zap.SugaredLogger
}

func NewBillingService(wallets ports.WalletRepository, priceCentsPerMinute int64, log *zap.SugaredLogger) *BillingService {
	return &BillingService{
		wallets:       wallets,
		priceCentsMin: priceCentsPerMinute,
		log:           log,
	}
}

// EstimateCents prices a duration; partial minutes round up and every note
// costs at least one minute.
func (b *BillingService) EstimateCents(seconds float64) int64 {
	minutes := int64(math.Ceil(seconds / 60))
	if minutes < 1 {
		minutes = 1
	}
	return minutes * b.priceCentsMin
}

// SelectPayer picks the corporate wallet when the job's coordinates fall
// inside a registered work-location geofence of the owner's organization,
// otherwise the personal wallet.
func (b *BillingService) SelectPayer(ctx context.Context, ownerID int64, orgID *int64, coords *models.GeoPoint) (*models.Wallet, error) {
	if orgID != nil && coords != nil {
		locs, err := b.wallets.ListWorkLocations(ctx, *orgID)
		if err != nil {
			return nil, fmt.Errorf("select payer: %w", err)
		}
		for _, loc := range locs {
			if haversineMeters(coords.Lat, coords.Lon, loc.Lat, loc.Lon) <= loc.RadiusM {
				w, err := b.wallets.GetCorporate(ctx, *orgID)
				if err == nil {
					b.log.Infow("[BILLING] corporate payer", "org_id", *orgID, "location_id", loc.ID)
					return w, nil
				}
				if !errors.Is(err, ports.ErrWalletNotFound) {
					return nil, err
				}
				// org without a wallet falls through to personal
				break
			}
		}
	}
	return b.wallets.GetPersonal(ctx, ownerID)
}

// PreCheck fails fast with ErrBillingDenied when the estimated cost exceeds
// the available non-frozen balance. Frozen wallets charge as zero-balance.
func (b *BillingService) PreCheck(wallet *models.Wallet, estimatedSeconds float64) error {
	est := b.EstimateCents(estimatedSeconds)
	if wallet.Frozen || wallet.BalanceCents < est {
		return fmt.Errorf("%w: wallet=%d estimate=%d", ErrBillingDenied, wallet.ID, est)
	}
	return nil
}

// Settle applies the reconciling debit for the measured duration. A repeat
// settle for the same note is a no-op detected by the ledger's uniqueness
// constraint.
func (b *BillingService) Settle(ctx context.Context, walletID, noteID int64, actualSeconds float64) (*models.Transaction, error) {
	amount := b.EstimateCents(actualSeconds)
	t, err := b.wallets.Debit(ctx, walletID, noteID, amount)
	if err != nil {
		if errors.Is(err, ports.ErrAlreadyCharged) {
			b.log.Infow("[BILLING] settle no-op, note already charged", "note_id", noteID)
			return nil, nil
		}
		return nil, err
	}
	b.log.Infow("[BILLING] debit recorded",
		"note_id", noteID, "wallet_id", walletID, "amount_cents", amount)
	return t, nil
}

// haversineMeters is the great-circle distance between two WGS84 points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000

	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
