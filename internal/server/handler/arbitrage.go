package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sofmarkets/infofid/internal/domain"
)

// ArbReader defines the store methods the arbitrage handler requires.
type ArbReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
}

// ArbHandler serves arbitrage-related HTTP endpoints.
type ArbHandler struct {
	arbs   ArbReader
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler with the given store and logger.
func NewArbHandler(arbs ArbReader, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{arbs: arbs, logger: logger}
}

// arbView is the JSON shape of one opportunity record.
type arbView struct {
	ID                 string  `json:"id"`
	SeasonID           int64   `json:"seasonId"`
	PlayerAddress      string  `json:"playerAddress"`
	MarketID           int64   `json:"marketId"`
	RafflePricePct     float64 `json:"rafflePricePct"`
	MarketPricePct     float64 `json:"marketPricePct"`
	PriceDifferencePct float64 `json:"priceDifferencePct"`
	ProfitabilityPct   float64 `json:"profitabilityPct"`
	Strategy           string  `json:"strategy"`
	CreatedAt          string  `json:"createdAt"`
}

// ListRecent returns the most recent arbitrage opportunities.
// GET /api/arbitrage?limit=20
func (h *ArbHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 200)

	opps, err := h.arbs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list arbitrage failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list arbitrage opportunities")
		return
	}

	out := make([]arbView, 0, len(opps))
	for _, o := range opps {
		out = append(out, arbView{
			ID:                 o.ID,
			SeasonID:           o.SeasonID,
			PlayerAddress:      o.PlayerAddress,
			MarketID:           o.MarketID,
			RafflePricePct:     o.RafflePricePct,
			MarketPricePct:     o.MarketPricePct,
			PriceDifferencePct: o.PriceDifferencePct,
			ProfitabilityPct:   o.ProfitabilityPct,
			Strategy:           o.StrategyText,
			CreatedAt:          o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"opportunities": out})
}
