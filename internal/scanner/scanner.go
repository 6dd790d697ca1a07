// Package scanner drives the scan loop: evaluate both directions of the
// venue pair each cycle, and push anything that clears the profit
// threshold through the safety gate and the execution guard. A failure
// anywhere inside a cycle means "no opportunity this cycle", never a
// dead loop.
package scanner

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fclmail/ARBBOT1/internal/evaluate"
	"github.com/fclmail/ARBBOT1/internal/guard"
	"github.com/fclmail/ARBBOT1/internal/metrics"
	"github.com/fclmail/ARBBOT1/internal/types"
	"github.com/fclmail/ARBBOT1/internal/units"
)

type evaluator interface {
	Evaluate(ctx context.Context, dir evaluate.Direction, amountIn *big.Int) (*types.Opportunity, *evaluate.Skip)
}

type gate interface {
	Simulate(ctx context.Context, buyRouter, sellRouter, token common.Address, amountIn *big.Int) error
}

type executor interface {
	TryExecute(ctx context.Context, opp *types.Opportunity, buyRouter, sellRouter common.Address) guard.Outcome
}

type heightReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Feed receives scan results for external consumers. Implementations
// must tolerate being called on every cycle; errors are logged and
// dropped.
type Feed interface {
	PublishSnapshot(ctx context.Context, opp *types.Opportunity) error
	PublishOpportunity(ctx context.Context, opp *types.Opportunity) error
}

// Pair binds one evaluation direction to the router addresses handed to
// the settlement contract for that direction.
type Pair struct {
	Dir        evaluate.Direction
	BuyRouter  common.Address
	SellRouter common.Address
}

type Scanner struct {
	pairs     []Pair
	amountIn  *big.Int
	minProfit *big.Int
	interval  time.Duration
	dryRun    bool

	eval   evaluator
	gate   gate
	exec   executor
	height heightReader
	feed   Feed // nil = disabled
	log    *zap.Logger
}

func New(pairs []Pair, amountIn, minProfit *big.Int, interval time.Duration, dryRun bool,
	eval evaluator, g gate, exec executor, height heightReader, feed Feed, log *zap.Logger) *Scanner {
	return &Scanner{
		pairs:     pairs,
		amountIn:  amountIn,
		minProfit: minProfit,
		interval:  interval,
		dryRun:    dryRun,
		eval:      eval,
		gate:      g,
		exec:      exec,
		height:    height,
		feed:      feed,
		log:       log,
	}
}

// Run scans until ctx is cancelled. When heads is non-nil a cycle runs
// on each new block; the ticker keeps cycles coming when the
// subscription goes quiet or closes.
func (s *Scanner) Run(ctx context.Context, heads <-chan uint64) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info("scan loop started",
		zap.String("amount_in", s.amountIn.String()),
		zap.String("min_profit", s.minProfit.String()),
		zap.Duration("interval", s.interval),
		zap.Bool("dry_run", s.dryRun),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scan loop stopped")
			return
		case _, open := <-heads:
			if !open {
				heads = nil // subscription gone, ticker takes over
				continue
			}
			s.runCycle(ctx)
			t.Reset(s.interval)
		case <-t.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle is one complete scan: read height, evaluate every direction,
// decide. Every error inside is contained here.
func (s *Scanner) runCycle(ctx context.Context) {
	defer metrics.ScanCycles.Inc()

	block, err := s.height.BlockNumber(ctx)
	if err != nil {
		// Height is for logging correlation only; the cycle goes on.
		s.log.Warn("block height read failed", zap.Error(err))
	}

	for _, p := range s.pairs {
		s.scanDirection(ctx, p, block)
	}
}

func (s *Scanner) scanDirection(ctx context.Context, p Pair, block uint64) {
	started := time.Now()
	opp, skip := s.eval.Evaluate(ctx, p.Dir, s.amountIn)
	metrics.QuoteLatency.Observe(time.Since(started).Seconds())

	if skip != nil {
		metrics.QuoteFailures.WithLabelValues(skip.Venue, string(skip.Reason)).Inc()
		s.log.Debug("direction skipped",
			zap.Uint64("block", block),
			zap.String("direction", p.Dir.Label),
			zap.String("skip", skip.String()),
		)
		return
	}
	opp.Block = block

	profitHuman := units.ToHuman(opp.Profit, opp.Quote.Decimals)
	if f, err := strconv.ParseFloat(profitHuman, 64); err == nil {
		metrics.LastProfit.WithLabelValues(opp.Direction).Set(f)
	}

	s.log.Info("cycle quote",
		zap.Uint64("block", block),
		zap.String("direction", opp.Direction),
		zap.String("amount_in", units.ToHuman(opp.AmountIn, opp.Quote.Decimals)),
		zap.String("amount_out", units.ToHuman(opp.AmountOut, opp.Quote.Decimals)),
		zap.String("profit", profitHuman),
		zap.Float64("profit_pct", opp.ProfitPct),
	)

	if s.feed != nil {
		if err := s.feed.PublishSnapshot(ctx, opp); err != nil {
			s.log.Debug("feed snapshot failed", zap.Error(err))
		}
	}

	if opp.Profit.Cmp(s.minProfit) < 0 {
		return
	}
	metrics.Opportunities.WithLabelValues(opp.Direction).Inc()
	s.log.Info("opportunity clears threshold",
		zap.Uint64("block", block),
		zap.String("direction", opp.Direction),
		zap.String("profit", profitHuman),
	)

	if s.feed != nil {
		if err := s.feed.PublishOpportunity(ctx, opp); err != nil {
			s.log.Debug("feed publish failed", zap.Error(err))
		}
	}

	if s.dryRun {
		s.log.Warn("dry-run: skipping settlement", zap.String("direction", opp.Direction))
		return
	}

	if err := s.gate.Simulate(ctx, p.BuyRouter, p.SellRouter, opp.Asset.Address, opp.AmountIn); err != nil {
		metrics.SimulationRejects.Inc()
		s.log.Warn("simulation rejected",
			zap.String("direction", opp.Direction),
			zap.Error(err),
		)
		return
	}

	out := s.exec.TryExecute(ctx, opp, p.BuyRouter, p.SellRouter)
	switch out.Status {
	case guard.Busy:
		metrics.BusyDrops.Inc()
		s.log.Info("execution busy, opportunity dropped", zap.String("direction", opp.Direction))
	case guard.Rejected:
		s.log.Warn("execution rejected",
			zap.String("direction", opp.Direction),
			zap.String("reason", out.Reason),
			zap.Error(out.Err),
		)
	case guard.Submitted:
		metrics.Submissions.Inc()
		if out.Reverted {
			metrics.Reverts.Inc()
			s.log.Error("settlement reverted",
				zap.String("tx", out.TxHash.Hex()),
				zap.Uint64("block", out.BlockNum),
			)
			return
		}
		if out.Err != nil {
			s.log.Warn("confirmation wait failed",
				zap.String("tx", out.TxHash.Hex()),
				zap.Error(out.Err),
			)
			return
		}
		s.log.Info("settlement confirmed",
			zap.String("tx", out.TxHash.Hex()),
			zap.Uint64("block", out.BlockNum),
			zap.String("profit", profitHuman),
		)
	}
}
