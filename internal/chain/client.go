// Package chain wraps the ethclient surface the scanner needs: read-only
// calls, fee and gas estimation, submission and inclusion-wait. All remote
// errors come back as plain errors; callers decide whether they are fatal.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const erc20ABI = `[
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var ErrNotMined = errors.New("transaction not mined")

type Client struct {
	ec      *ethclient.Client
	wsURL   string
	log     *zap.Logger
	erc20   abi.ABI
	priv    *ecdsa.PrivateKey
	sender  common.Address
	chainID *big.Int

	decMu    sync.RWMutex
	decimals map[common.Address]uint8
}

// Dial connects to the HTTP RPC endpoint and, when pkHex is non-empty,
// derives the submitting account and chain ID for signing.
func Dial(ctx context.Context, rpcHTTP, rpcWS, pkHex string, log *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	eABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	c := &Client{
		ec:       ec,
		wsURL:    rpcWS,
		log:      log,
		erc20:    eABI,
		decimals: make(map[common.Address]uint8, 8),
	}

	if strings.TrimSpace(pkHex) != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bad private key: %w", err)
		}
		c.priv = key
		c.sender = crypto.PubkeyToAddress(key.PublicKey)
		c.chainID, err = ec.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
	}
	return c, nil
}

func (c *Client) Sender() common.Address { return c.sender }

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}

func (c *Client) CallReadOnly(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ec.CallContract(ctx, ethereum.CallMsg{From: c.sender, To: &to, Data: data}, nil)
}

func (c *Client) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	return c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.sender, To: &to, Data: data})
}

func (c *Client) NativeBalance(ctx context.Context) (*big.Int, error) {
	return c.ec.BalanceAt(ctx, c.sender, nil)
}

// SuggestFees returns the tip cap and fee cap for a dynamic-fee tx,
// fee cap = 2*baseFee + tip with static fallbacks when the node
// declines to suggest.
func (c *Client) SuggestFees(ctx context.Context) (tip, feeCap *big.Int, err error) {
	tip, err = c.ec.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = big.NewInt(2_000_000_000)
	}
	var baseFee *big.Int
	if h, _ := c.ec.HeaderByNumber(ctx, nil); h != nil && h.BaseFee != nil {
		baseFee = new(big.Int).Set(h.BaseFee)
	} else if sp, _ := c.ec.SuggestGasPrice(ctx); sp != nil {
		baseFee = sp
	} else {
		baseFee = big.NewInt(5_000_000_000)
	}
	feeCap = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	return tip, feeCap, nil
}

// Submit signs and sends a dynamic-fee transaction to the given contract.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte, gas uint64, tip, feeCap *big.Int) (*gethtypes.Transaction, error) {
	if c.priv == nil {
		return nil, errors.New("no private key configured")
	}
	nonce, err := c.ec.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &to,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
		Value:     big.NewInt(0),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.priv)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return signed, nil
}

// AwaitInclusion polls for the receipt of a submitted transaction until
// it is mined or ctx is done. A submitted tx cannot be un-submitted, so
// callers should pass a generous ctx.
func (c *Client) AwaitInclusion(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for {
		rcpt, err := c.ec.TransactionReceipt(ctx, txHash)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotMined, txHash.Hex(), ctx.Err())
		case <-t.C:
		}
	}
}

// TokenDecimals reads an ERC-20 decimals() once per token and caches it
// for the process lifetime.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	c.decMu.RLock()
	if d, ok := c.decimals[token]; ok {
		c.decMu.RUnlock()
		return d, nil
	}
	c.decMu.RUnlock()

	data, _ := c.erc20.Pack("decimals")
	raw, err := c.CallReadOnly(ctx, token, data)
	if err != nil {
		return 0, fmt.Errorf("decimals call: %w", err)
	}
	outs, err := c.erc20.Methods["decimals"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, errors.New("decode decimals")
	}
	var d uint8
	switch x := outs[0].(type) {
	case uint8:
		d = x
	case *big.Int:
		d = uint8(x.Uint64())
	default:
		return 0, errors.New("unexpected decimals type")
	}
	c.decMu.Lock()
	c.decimals[token] = d
	c.decMu.Unlock()
	return d, nil
}

// SubscribeNewHeads dials the WS endpoint and forwards block numbers to
// out until ctx is done. Returns an error when no WS URL is configured
// or the subscription cannot be established; a dropped subscription
// closes out so the caller can fall back to polling.
func (c *Client) SubscribeNewHeads(ctx context.Context, out chan<- uint64) error {
	if c.wsURL == "" {
		return errors.New("no ws endpoint configured")
	}
	ws, err := ethclient.DialContext(ctx, c.wsURL)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}
	heads := make(chan *gethtypes.Header, 16)
	sub, err := ws.SubscribeNewHead(ctx, heads)
	if err != nil {
		ws.Close()
		return fmt.Errorf("subscribe heads: %w", err)
	}
	go func() {
		defer ws.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case err := <-sub.Err():
				c.log.Warn("head subscription dropped", zap.Error(err))
				return
			case h := <-heads:
				select {
				case out <- h.Number.Uint64():
				default: // scanner busy, skip this head
				}
			}
		}
	}()
	return nil
}
