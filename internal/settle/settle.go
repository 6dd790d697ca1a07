// Package settle talks to the external settlement contract: the single
// on-chain method that performs the two-hop swap atomically. The
// contract itself is opaque to this process; we only build its calldata,
// dry-run it, and interpret success or revert.
package settle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const settlementABI = `[
 {"inputs":[{"internalType":"address","name":"buyRouter","type":"address"},{"internalType":"address","name":"sellRouter","type":"address"},{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"}],"name":"executeArbitrage","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Caller is the read-only ledger surface needed for simulation.
type Caller interface {
	CallReadOnly(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type Contract struct {
	addr   common.Address
	sabi   abi.ABI
	caller Caller
}

func New(addr common.Address, caller Caller) (*Contract, error) {
	sabi, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, fmt.Errorf("parse settlement abi: %w", err)
	}
	return &Contract{addr: addr, sabi: sabi, caller: caller}, nil
}

func (c *Contract) Address() common.Address { return c.addr }

// Calldata encodes the settlement call with the exact arguments the real
// submission would use.
func (c *Contract) Calldata(buyRouter, sellRouter, token common.Address, amountIn *big.Int) ([]byte, error) {
	data, err := c.sabi.Pack("executeArbitrage", buyRouter, sellRouter, token, amountIn)
	if err != nil {
		return nil, fmt.Errorf("pack executeArbitrage: %w", err)
	}
	return data, nil
}

// Simulate dry-runs the settlement call without mutating state. Any
// error closes the gate for this cycle regardless of the computed
// profit: quote-time liquidity and execution-time liquidity are not the
// same thing, and the contract enforces constraints the quoters cannot
// see.
func (c *Contract) Simulate(ctx context.Context, buyRouter, sellRouter, token common.Address, amountIn *big.Int) error {
	data, err := c.Calldata(buyRouter, sellRouter, token, amountIn)
	if err != nil {
		return err
	}
	if _, err := c.caller.CallReadOnly(ctx, c.addr, data); err != nil {
		return fmt.Errorf("settlement simulation: %w", err)
	}
	return nil
}
