package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sofmarkets/infofid/internal/domain"
)

// mirrorSet tracks the market ids present in the mirror so All can enumerate
// them without a SCAN.
const mirrorSet = "price:markets"

// PriceMirror implements domain.PriceMirror using Redis hashes. Each market's
// latest price blend is stored at "price:{marketId}" so the stream hub can
// warm its in-memory cache across restarts.
type PriceMirror struct {
	rdb *redis.Client
}

// NewPriceMirror creates a PriceMirror backed by the given Client.
func NewPriceMirror(c *Client) *PriceMirror {
	return &PriceMirror{rdb: c.Underlying()}
}

func priceKey(marketID int64) string {
	return "price:" + strconv.FormatInt(marketID, 10)
}

// Set stores the latest price blend for a market.
func (pm *PriceMirror) Set(ctx context.Context, row domain.PricingCacheRow) error {
	key := priceKey(row.MarketID)
	fields := map[string]interface{}{
		"raffle":    row.RaffleProbabilityBps,
		"sentiment": row.MarketSentimentBps,
		"hybrid":    row.HybridPriceBps,
		"rw":        row.RaffleWeightBps,
		"mw":        row.MarketWeightBps,
		"ts":        row.LastUpdated.UnixNano(),
	}

	pipe := pm.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, mirrorSet, row.MarketID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mirror price for market %d: %w", row.MarketID, err)
	}
	return nil
}

// All returns every mirrored row. Entries with missing or malformed fields
// are skipped rather than failing the warm-up.
func (pm *PriceMirror) All(ctx context.Context) ([]domain.PricingCacheRow, error) {
	ids, err := pm.rdb.SMembers(ctx, mirrorSet).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list mirrored markets: %w", err)
	}

	out := make([]domain.PricingCacheRow, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		vals, err := pm.rdb.HGetAll(ctx, priceKey(id)).Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		row := domain.PricingCacheRow{MarketID: id}
		row.RaffleProbabilityBps = atoiField(vals, "raffle")
		row.MarketSentimentBps = atoiField(vals, "sentiment")
		row.HybridPriceBps = atoiField(vals, "hybrid")
		row.RaffleWeightBps = atoiField(vals, "rw")
		row.MarketWeightBps = atoiField(vals, "mw")
		if ns, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
			row.LastUpdated = time.Unix(0, ns)
		}
		out = append(out, row)
	}
	return out, nil
}

func atoiField(vals map[string]string, field string) int {
	n, _ := strconv.Atoi(vals[field])
	return n
}
