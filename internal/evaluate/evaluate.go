// Package evaluate runs the two-leg round trip for one direction of a
// venue pair and turns the quotes into an Opportunity record.
package evaluate

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fclmail/ARBBOT1/internal/types"
	"github.com/fclmail/ARBBOT1/internal/units"
	"github.com/fclmail/ARBBOT1/internal/venue"
)

// QuoteSource is the one venue capability the evaluator needs.
type QuoteSource interface {
	Quote(ctx context.Context, path []common.Address, amountIn *big.Int) venue.QuoteResult
}

// Skip explains why a direction produced no opportunity this cycle.
type Skip struct {
	Leg    string // "buy" or "sell"
	Venue  string
	Reason venue.FailReason
}

func (s *Skip) String() string {
	return fmt.Sprintf("%s leg on %s: %s", s.Leg, s.Venue, s.Reason)
}

// Direction is a fixed buy/sell venue pair. The two directions of a pair
// are evaluated independently each cycle; they are not arithmetic
// inverses of each other.
type Direction struct {
	Label     string
	Buy, Sell QuoteSource
	BuyName   string
	SellName  string
}

type Evaluator struct {
	asset types.Token
	quote types.Token
	log   *zap.Logger
}

func New(asset, quote types.Token, log *zap.Logger) *Evaluator {
	return &Evaluator{asset: asset, quote: quote, log: log}
}

// Evaluate quotes amountIn of the quote asset into the traded asset on
// the buy venue, then back into the quote asset on the sell venue.
// Profit is exact integer subtraction; a negative profit is a valid
// result, not an error. The sell leg is never issued when the buy leg
// fails.
func (e *Evaluator) Evaluate(ctx context.Context, dir Direction, amountIn *big.Int) (*types.Opportunity, *Skip) {
	if amountIn == nil || amountIn.Sign() == 0 {
		return nil, &Skip{Leg: "buy", Venue: dir.BuyName, Reason: venue.ZeroOut}
	}

	buyPath := []common.Address{e.quote.Address, e.asset.Address}
	buyRes := dir.Buy.Quote(ctx, buyPath, amountIn)
	if !buyRes.Ok() {
		return nil, &Skip{Leg: "buy", Venue: dir.BuyName, Reason: buyRes.Reason}
	}

	sellPath := []common.Address{e.asset.Address, e.quote.Address}
	sellRes := dir.Sell.Quote(ctx, sellPath, buyRes.AmountOut)
	if !sellRes.Ok() {
		return nil, &Skip{Leg: "sell", Venue: dir.SellName, Reason: sellRes.Reason}
	}

	profit := new(big.Int).Sub(sellRes.AmountOut, amountIn)
	opp := &types.Opportunity{
		Direction:    dir.Label,
		BuyVenue:     dir.BuyName,
		SellVenue:    dir.SellName,
		Asset:        e.asset,
		Quote:        e.quote,
		AmountIn:     new(big.Int).Set(amountIn),
		Intermediate: buyRes.AmountOut,
		AmountOut:    sellRes.AmountOut,
		Profit:       profit,
		ProfitPct:    displayPct(profit, amountIn, e.quote.Decimals),
		Ts:           time.Now(),
	}

	e.log.Debug("direction evaluated",
		zap.String("direction", dir.Label),
		zap.String("amount_in", units.ToHuman(opp.AmountIn, e.quote.Decimals)),
		zap.String("intermediate", units.ToHuman(opp.Intermediate, e.asset.Decimals)),
		zap.String("amount_out", units.ToHuman(opp.AmountOut, e.quote.Decimals)),
		zap.String("profit", units.ToHuman(opp.Profit, e.quote.Decimals)),
		zap.Float64("profit_pct", opp.ProfitPct),
	)
	return opp, nil
}

// displayPct is advisory only: floats are derived from the formatted
// human strings and never flow back into an amount.
func displayPct(profit, amountIn *big.Int, decimals uint8) float64 {
	pf, err := strconv.ParseFloat(units.ToHuman(profit, decimals), 64)
	if err != nil {
		return 0
	}
	af, err := strconv.ParseFloat(units.ToHuman(amountIn, decimals), 64)
	if err != nil || af == 0 {
		return 0
	}
	return pf / af * 100
}
