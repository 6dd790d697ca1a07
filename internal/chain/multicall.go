package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 tryAggregate: per-call failure is reported, not fatal, so a
// router with no pool for the probe path does not fail the whole batch.
const multicallABI = `[
 {"inputs":[{"internalType":"bool","name":"requireSuccess","type":"bool"},{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call[]","name":"calls","type":"tuple[]"}],"name":"tryAggregate","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
]`

type Call struct {
	Target   common.Address
	CallData []byte
}

type CallResult struct {
	Success bool
	Data    []byte
}

type Multicall struct {
	client *Client
	addr   common.Address
	mabi   abi.ABI
}

func NewMulticall(client *Client, addr common.Address) (*Multicall, error) {
	mabi, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	return &Multicall{client: client, addr: addr, mabi: mabi}, nil
}

// TryAggregate runs the calls in one eth_call round trip and reports
// per-call success.
func (m *Multicall) TryAggregate(ctx context.Context, calls []Call) ([]CallResult, error) {
	type mcCall struct {
		Target   common.Address
		CallData []byte
	}
	packed := make([]mcCall, len(calls))
	for i, c := range calls {
		packed[i] = mcCall{Target: c.Target, CallData: c.CallData}
	}
	payload, err := m.mabi.Pack("tryAggregate", false, packed)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	raw, err := m.client.CallReadOnly(ctx, m.addr, payload)
	if err != nil {
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	var results []struct {
		Success    bool
		ReturnData []byte
	}
	if err := m.mabi.UnpackIntoInterface(&results, "tryAggregate", raw); err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("tryAggregate returned %d results for %d calls", len(results), len(calls))
	}

	out := make([]CallResult, len(results))
	for i, r := range results {
		out[i] = CallResult{Success: r.Success, Data: r.ReturnData}
	}
	return out, nil
}
