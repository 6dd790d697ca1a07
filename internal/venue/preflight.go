package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fclmail/ARBBOT1/internal/chain"
)

type aggregator interface {
	TryAggregate(ctx context.Context, calls []chain.Call) ([]chain.CallResult, error)
}

// Preflight probes every venue's router with one minimal getAmountsOut
// for the trade path, batched into a single call. A failed probe means
// the router has no pool for the path right now; the venue stays in the
// rotation (liquidity can appear later) but the operator should know at
// startup.
func Preflight(ctx context.Context, agg aggregator, venues []*Venue, path []common.Address) (ok, failed []string, err error) {
	if len(venues) == 0 {
		return nil, nil, nil
	}
	calls := make([]chain.Call, 0, len(venues))
	for _, v := range venues {
		data, perr := v.rabi.Pack("getAmountsOut", big.NewInt(1), path)
		if perr != nil {
			return nil, nil, fmt.Errorf("pack probe for %s: %w", v.Name, perr)
		}
		calls = append(calls, chain.Call{Target: v.Router, CallData: data})
	}

	results, err := agg.TryAggregate(ctx, calls)
	if err != nil {
		return nil, nil, err
	}
	for i, r := range results {
		if r.Success && len(r.Data) > 0 {
			ok = append(ok, venues[i].Name)
		} else {
			failed = append(failed, venues[i].Name)
		}
	}
	return ok, failed, nil
}
