package venue

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	resp  []byte
	err   error
	calls int
}

func (f *fakeCaller) CallReadOnly(_ context.Context, _ common.Address, _ []byte) ([]byte, error) {
	f.calls++
	return f.resp, f.err
}

func packAmounts(t *testing.T, amounts []*big.Int) []byte {
	t.Helper()
	rabi, err := abi.JSON(strings.NewReader(routerABI))
	require.NoError(t, err)
	raw, err := rabi.Methods["getAmountsOut"].Outputs.Pack(amounts)
	require.NoError(t, err)
	return raw
}

var (
	router = common.HexToAddress("0x0000000000000000000000000000000000000101")
	tokenA = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
	tokenB = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	tokenC = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
)

func TestQuoteOk(t *testing.T) {
	fc := &fakeCaller{resp: packAmounts(t, []*big.Int{big.NewInt(100), big.NewInt(105)})}
	v, err := New("uni", router, false, fc)
	require.NoError(t, err)

	res := v.Quote(context.Background(), []common.Address{tokenA, tokenB}, big.NewInt(100))
	require.True(t, res.Ok())
	assert.Equal(t, "105", res.AmountOut.String())
	assert.Equal(t, 1, fc.calls)
}

func TestQuoteRemoteError(t *testing.T) {
	fc := &fakeCaller{err: errors.New("execution reverted")}
	v, _ := New("uni", router, false, fc)

	res := v.Quote(context.Background(), []common.Address{tokenA, tokenB}, big.NewInt(100))
	assert.False(t, res.Ok())
	assert.Equal(t, RemoteCall, res.Reason)
}

func TestQuoteShortResponse(t *testing.T) {
	fc := &fakeCaller{resp: packAmounts(t, []*big.Int{big.NewInt(100)})}
	v, _ := New("uni", router, false, fc)

	res := v.Quote(context.Background(), []common.Address{tokenA, tokenB}, big.NewInt(100))
	assert.False(t, res.Ok())
	assert.Equal(t, BadResponse, res.Reason)
}

func TestQuoteZeroFinalAmount(t *testing.T) {
	fc := &fakeCaller{resp: packAmounts(t, []*big.Int{big.NewInt(100), big.NewInt(0)})}
	v, _ := New("uni", router, false, fc)

	res := v.Quote(context.Background(), []common.Address{tokenA, tokenB}, big.NewInt(100))
	assert.False(t, res.Ok())
	assert.Equal(t, ZeroOut, res.Reason)
}

func TestQuoteDirectOnlyRejectsMultiHop(t *testing.T) {
	fc := &fakeCaller{resp: packAmounts(t, []*big.Int{big.NewInt(1), big.NewInt(1), big.NewInt(1)})}
	v, _ := New("sushi", router, true, fc)

	res := v.Quote(context.Background(), []common.Address{tokenA, tokenB, tokenC}, big.NewInt(100))
	assert.False(t, res.Ok())
	assert.Equal(t, NoLiquidity, res.Reason)
	assert.Zero(t, fc.calls, "direct-only venue must not issue the remote call")
}

func TestQuoteZeroIn(t *testing.T) {
	fc := &fakeCaller{}
	v, _ := New("uni", router, false, fc)

	res := v.Quote(context.Background(), []common.Address{tokenA, tokenB}, big.NewInt(0))
	assert.False(t, res.Ok())
	assert.Zero(t, fc.calls)
}
