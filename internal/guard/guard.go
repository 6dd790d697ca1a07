// Package guard serializes settlement submissions. At most one attempt
// is in flight at any instant; overlapping opportunities are dropped,
// not queued, because a queued opportunity is stale by the time its turn
// arrives.
package guard

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/fclmail/ARBBOT1/internal/types"
)

type Status int

const (
	Submitted Status = iota
	Rejected
	Busy
)

const (
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonGasBudget           = "gas_budget_exceeded"
	ReasonSubmitFailed        = "submit_failed"
)

// Outcome reports one TryExecute attempt. For a Submitted outcome the
// confirmation fields say how the transaction landed; Err carries a
// confirmation-wait failure (the tx is on chain either way).
type Outcome struct {
	Status    Status
	Reason    string
	TxHash    common.Hash
	Confirmed bool
	Reverted  bool
	BlockNum  uint64
	Err       error
}

// Ledger is the write-side chain surface the guard drives.
type Ledger interface {
	EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error)
	SuggestFees(ctx context.Context) (tip, feeCap *big.Int, err error)
	NativeBalance(ctx context.Context) (*big.Int, error)
	Submit(ctx context.Context, to common.Address, data []byte, gas uint64, tip, feeCap *big.Int) (*gethtypes.Transaction, error)
	AwaitInclusion(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Settlement builds the calldata for the settlement contract.
type Settlement interface {
	Address() common.Address
	Calldata(buyRouter, sellRouter, token common.Address, amountIn *big.Int) ([]byte, error)
}

type Guard struct {
	ledger     Ledger
	settlement Settlement
	log        *zap.Logger

	marginBps   int64
	gasFallback uint64
	maxGasWei   *big.Int // nil = no budget cap

	inFlight atomic.Bool
}

func New(ledger Ledger, settlement Settlement, marginBps int, gasFallback uint64, maxGasWei *big.Int, log *zap.Logger) *Guard {
	return &Guard{
		ledger:      ledger,
		settlement:  settlement,
		log:         log,
		marginBps:   int64(marginBps),
		gasFallback: gasFallback,
		maxGasWei:   maxGasWei,
	}
}

// InFlight reports whether a settlement attempt currently holds the
// single-flight slot.
func (g *Guard) InFlight() bool { return g.inFlight.Load() }

// TryExecute attempts the settlement for an opportunity. It returns Busy
// immediately when another attempt holds the slot. The slot is released
// on every exit path; a stuck slot would permanently disable execution.
func (g *Guard) TryExecute(ctx context.Context, opp *types.Opportunity, buyRouter, sellRouter common.Address) Outcome {
	if !g.inFlight.CompareAndSwap(false, true) {
		return Outcome{Status: Busy}
	}
	defer g.inFlight.Store(false)

	data, err := g.settlement.Calldata(buyRouter, sellRouter, opp.Asset.Address, opp.AmountIn)
	if err != nil {
		return Outcome{Status: Rejected, Reason: ReasonSubmitFailed, Err: err}
	}
	target := g.settlement.Address()

	gas, err := g.ledger.EstimateGas(ctx, target, data)
	if err != nil || gas == 0 {
		g.log.Warn("gas estimate failed, using fallback limit",
			zap.Uint64("fallback", g.gasFallback), zap.Error(err))
		gas = g.gasFallback
	}
	// Margin absorbs estimate drift between estimation and inclusion.
	gas = uint64(int64(gas) * (10_000 + g.marginBps) / 10_000)

	tip, feeCap, err := g.ledger.SuggestFees(ctx)
	if err != nil {
		return Outcome{Status: Rejected, Reason: ReasonSubmitFailed, Err: err}
	}
	worstCost := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gas))
	if g.maxGasWei != nil && worstCost.Cmp(g.maxGasWei) > 0 {
		return Outcome{Status: Rejected, Reason: ReasonGasBudget}
	}

	// A submission the account cannot pay for would certainly fail,
	// waste the in-flight slot and burn a nonce.
	bal, err := g.ledger.NativeBalance(ctx)
	if err != nil {
		return Outcome{Status: Rejected, Reason: ReasonSubmitFailed, Err: err}
	}
	if bal.Cmp(worstCost) < 0 {
		g.log.Warn("native balance below worst-case gas cost",
			zap.String("balance_wei", bal.String()),
			zap.String("worst_cost_wei", worstCost.String()))
		return Outcome{Status: Rejected, Reason: ReasonInsufficientBalance}
	}

	g.log.Info("submitting settlement",
		zap.String("direction", opp.Direction),
		zap.Uint64("gas", gas),
		zap.String("fee_cap_wei", feeCap.String()))
	tx, err := g.ledger.Submit(ctx, target, data, gas, tip, feeCap)
	if err != nil {
		return Outcome{Status: Rejected, Reason: ReasonSubmitFailed, Err: err}
	}

	// Once submitted we wait for definitive inclusion or failure before
	// releasing the slot; abandoning the wait does not un-submit the tx.
	// The wait runs detached from ctx so a stop signal cannot cancel it.
	rcpt, err := g.ledger.AwaitInclusion(context.WithoutCancel(ctx), tx.Hash())
	if err != nil {
		return Outcome{Status: Submitted, TxHash: tx.Hash(), Err: err}
	}
	out := Outcome{
		Status:    Submitted,
		TxHash:    tx.Hash(),
		Confirmed: rcpt.Status == gethtypes.ReceiptStatusSuccessful,
		Reverted:  rcpt.Status != gethtypes.ReceiptStatusSuccessful,
	}
	if rcpt.BlockNumber != nil {
		out.BlockNum = rcpt.BlockNumber.Uint64()
	}
	return out
}
