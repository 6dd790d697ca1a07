// Package venue quotes a swap path against a V2-style DEX router. A
// failed quote is an ordinary outcome, not an error: the evaluator skips
// that venue for the cycle and moves on.
package venue

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

type FailReason string

const (
	NoLiquidity FailReason = "no_liquidity"
	RemoteCall  FailReason = "remote_call"
	BadResponse FailReason = "bad_response"
	ZeroOut     FailReason = "zero_out"
)

// QuoteResult is the tagged outcome of a quote: either an output amount
// or a reason the venue could not serve the path.
type QuoteResult struct {
	AmountOut *big.Int
	Reason    FailReason
	Err       error // underlying cause, for logging only
}

func (r QuoteResult) Ok() bool { return r.AmountOut != nil }

func ok(out *big.Int) QuoteResult { return QuoteResult{AmountOut: out} }

func failed(reason FailReason, err error) QuoteResult {
	return QuoteResult{Reason: reason, Err: err}
}

// Caller is the read-only ledger surface a venue needs.
type Caller interface {
	CallReadOnly(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type Venue struct {
	Name       string
	Router     common.Address
	DirectOnly bool

	caller Caller
	rabi   abi.ABI
}

func New(name string, router common.Address, directOnly bool, caller Caller) (*Venue, error) {
	rabi, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, err
	}
	return &Venue{
		Name:       name,
		Router:     router,
		DirectOnly: directOnly,
		caller:     caller,
		rabi:       rabi,
	}, nil
}

// Quote asks the router how many base units of the last path token it
// would return for amountIn of the first. It never returns a Go error:
// transport failures, reverts and malformed responses all come back as
// a Failed result.
func (v *Venue) Quote(ctx context.Context, path []common.Address, amountIn *big.Int) QuoteResult {
	if len(path) < 2 {
		return failed(BadResponse, nil)
	}
	if v.DirectOnly && len(path) > 2 {
		return failed(NoLiquidity, nil)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return failed(ZeroOut, nil)
	}

	data, err := v.rabi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return failed(BadResponse, err)
	}
	raw, err := v.caller.CallReadOnly(ctx, v.Router, data)
	if err != nil {
		// A revert here almost always means the pair does not exist.
		return failed(RemoteCall, err)
	}
	outs, err := v.rabi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return failed(BadResponse, err)
	}
	amounts, castOK := outs[0].([]*big.Int)
	if !castOK || len(amounts) < len(path) {
		return failed(BadResponse, nil)
	}
	last := amounts[len(amounts)-1]
	if last == nil || last.Sign() == 0 {
		return failed(ZeroOut, nil)
	}
	return ok(new(big.Int).Set(last))
}
