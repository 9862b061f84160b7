package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sofmarkets/infofid/internal/domain"
)

// MarketReader defines the store methods the market handler requires. It is
// declared locally so the handler package does not depend on the concrete
// store implementation.
type MarketReader interface {
	GetByID(ctx context.Context, id int64) (domain.Market, error)
	ListBySeason(ctx context.Context, seasonID int64) ([]domain.Market, error)
	ListActiveSeasons(ctx context.Context) ([]int64, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given store and logger.
func NewMarketHandler(markets MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// marketView is the JSON shape of one market row.
type marketView struct {
	ID                    int64  `json:"id"`
	SeasonID              int64  `json:"seasonId"`
	PlayerAddress         string `json:"playerAddress"`
	MarketType            string `json:"marketType"`
	InitialProbabilityBps int    `json:"initialProbabilityBps"`
	CurrentProbabilityBps int    `json:"currentProbabilityBps"`
	ConditionID           string `json:"conditionId,omitempty"`
	ContractAddress       string `json:"contractAddress,omitempty"`
	IsActive              bool   `json:"isActive"`
	IsSettled             bool   `json:"isSettled"`
}

func toMarketView(m domain.Market) marketView {
	return marketView{
		ID:                    m.ID,
		SeasonID:              m.SeasonID,
		PlayerAddress:         m.PlayerAddress,
		MarketType:            string(m.MarketType),
		InitialProbabilityBps: m.InitialProbabilityBps,
		CurrentProbabilityBps: m.CurrentProbabilityBps,
		ConditionID:           m.ConditionID,
		ContractAddress:       m.ContractAddress,
		IsActive:              m.IsActive,
		IsSettled:             m.IsSettled,
	}
}

// ListMarkets returns active markets, scoped to one season when the season
// query parameter is present and to every active season otherwise.
// GET /api/markets?season=3
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	seasons := []int64{}
	if id, ok := queryInt64(r, "season"); ok {
		seasons = append(seasons, id)
	} else {
		active, err := h.markets.ListActiveSeasons(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list seasons failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list markets")
			return
		}
		seasons = active
	}

	out := []marketView{}
	for _, seasonID := range seasons {
		markets, err := h.markets.ListBySeason(r.Context(), seasonID)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list markets failed",
				slog.Int64("season", seasonID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list markets")
			return
		}
		for _, m := range markets {
			out = append(out, toMarketView(m))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

// GetMarket returns a single market by its numeric ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	m, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketView(m))
}
