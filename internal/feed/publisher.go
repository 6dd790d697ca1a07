// Package feed pushes live scan results to Redis for external consumers.
// It is fire-and-forget: a failed publish is logged by the caller and
// dropped, never retried, and nothing here affects the scan decision.
package feed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fclmail/ARBBOT1/internal/config"
	"github.com/fclmail/ARBBOT1/internal/types"
	"github.com/fclmail/ARBBOT1/internal/units"
)

type Publisher struct {
	rdb    *redis.Client
	stream string
	snapNS string
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Publisher{
		rdb:    rdb,
		stream: cfg.Redis.Stream,
		snapNS: cfg.Redis.SnapNS,
	}
}

// PublishSnapshot overwrites the latest quote snapshot for a direction.
func (p *Publisher) PublishSnapshot(ctx context.Context, opp *types.Opportunity) error {
	key := p.snapNS + ":" + opp.Direction
	return p.rdb.HSet(ctx, key, map[string]interface{}{
		"direction":  opp.Direction,
		"block":      opp.Block,
		"amount_in":  units.ToHuman(opp.AmountIn, opp.Quote.Decimals),
		"amount_out": units.ToHuman(opp.AmountOut, opp.Quote.Decimals),
		"profit":     units.ToHuman(opp.Profit, opp.Quote.Decimals),
		"profit_pct": opp.ProfitPct,
		"ts_ms":      opp.Ts.UnixMilli(),
	}).Err()
}

// PublishOpportunity appends a threshold-clearing opportunity to the
// stream, capped so the feed never grows unbounded.
func (p *Publisher) PublishOpportunity(ctx context.Context, opp *types.Opportunity) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: 10_000,
		Approx: true,
		Values: map[string]interface{}{
			"direction":  opp.Direction,
			"buy_venue":  opp.BuyVenue,
			"sell_venue": opp.SellVenue,
			"asset":      opp.Asset.Symbol,
			"block":      opp.Block,
			"amount_in":  units.ToHuman(opp.AmountIn, opp.Quote.Decimals),
			"profit":     units.ToHuman(opp.Profit, opp.Quote.Decimals),
			"ts":         opp.Ts.Format(time.RFC3339Nano),
		},
	}).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
