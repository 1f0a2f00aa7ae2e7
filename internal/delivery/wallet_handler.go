package delivery

import (
	"errors"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/vonote/vonote/internal/ports"
)

type WalletHandler struct {
	wallets ports.WalletRepository
	log     *logger.ZapLogger
}

func NewWalletHandler(wallets ports.WalletRepository, log *logger.ZapLogger) *WalletHandler {
	return &WalletHandler{
		wallets: wallets,
		log:     log,
	}
}

// GET /api/wallet — the owner's personal wallet. Frozen wallets still show
// their real balance; freezing only affects charging.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID := OwnerFromContext(r.Context())

	wallet, err := h.wallets.GetPersonal(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, ports.ErrWalletNotFound) {
			http.Error(w, "wallet not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load wallet", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"id":            wallet.ID,
		"kind":          wallet.Kind,
		"balance_cents": wallet.BalanceCents,
		"frozen":        wallet.Frozen,
	})
}
