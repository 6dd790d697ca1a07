package evaluate

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fclmail/ARBBOT1/internal/types"
	"github.com/fclmail/ARBBOT1/internal/venue"
)

type fakeSource struct {
	out   *big.Int
	fail  venue.FailReason
	calls int
	seen  *big.Int
}

func (f *fakeSource) Quote(_ context.Context, _ []common.Address, amountIn *big.Int) venue.QuoteResult {
	f.calls++
	f.seen = new(big.Int).Set(amountIn)
	if f.fail != "" {
		return venue.QuoteResult{Reason: f.fail}
	}
	return venue.QuoteResult{AmountOut: new(big.Int).Set(f.out)}
}

var (
	usdc = types.Token{Symbol: "USDC", Address: common.HexToAddress("0x01"), Decimals: 6}
	weth = types.Token{Symbol: "WETH", Address: common.HexToAddress("0x02"), Decimals: 18}
)

func dir(buy, sell QuoteSource) Direction {
	return Direction{Label: "uni->sushi", Buy: buy, Sell: sell, BuyName: "uni", SellName: "sushi"}
}

func TestEvaluateProfitIsExactIntegerDifference(t *testing.T) {
	buy := &fakeSource{out: big.NewInt(105)}
	sell := &fakeSource{out: big.NewInt(101)}
	ev := New(weth, usdc, zap.NewNop())

	opp, skip := ev.Evaluate(context.Background(), dir(buy, sell), big.NewInt(100))
	require.Nil(t, skip)
	require.NotNil(t, opp)

	assert.Equal(t, "105", opp.Intermediate.String())
	assert.Equal(t, "101", opp.AmountOut.String())
	assert.Equal(t, "1", opp.Profit.String())
	assert.Equal(t, "105", sell.seen.String(), "sell leg input must be the buy leg output")
}

func TestEvaluateNegativeProfitIsNotAnError(t *testing.T) {
	buy := &fakeSource{out: big.NewInt(105)}
	sell := &fakeSource{out: big.NewInt(90)}
	ev := New(weth, usdc, zap.NewNop())

	opp, skip := ev.Evaluate(context.Background(), dir(buy, sell), big.NewInt(100))
	require.Nil(t, skip)
	assert.Equal(t, "-10", opp.Profit.String())
	assert.False(t, opp.Profitable())
}

func TestEvaluateBuyLegFailureSkipsSellLeg(t *testing.T) {
	buy := &fakeSource{fail: venue.NoLiquidity}
	sell := &fakeSource{out: big.NewInt(1)}
	ev := New(weth, usdc, zap.NewNop())

	opp, skip := ev.Evaluate(context.Background(), dir(buy, sell), big.NewInt(100))
	assert.Nil(t, opp)
	require.NotNil(t, skip)
	assert.Equal(t, "buy", skip.Leg)
	assert.Equal(t, venue.NoLiquidity, skip.Reason)
	assert.Zero(t, sell.calls, "no sell-venue call after a failed buy leg")
}

func TestEvaluateSellLegFailure(t *testing.T) {
	buy := &fakeSource{out: big.NewInt(105)}
	sell := &fakeSource{fail: venue.RemoteCall}
	ev := New(weth, usdc, zap.NewNop())

	opp, skip := ev.Evaluate(context.Background(), dir(buy, sell), big.NewInt(100))
	assert.Nil(t, opp)
	require.NotNil(t, skip)
	assert.Equal(t, "sell", skip.Leg)
}

func TestEvaluateZeroAmountIn(t *testing.T) {
	buy := &fakeSource{out: big.NewInt(1)}
	sell := &fakeSource{out: big.NewInt(1)}
	ev := New(weth, usdc, zap.NewNop())

	opp, skip := ev.Evaluate(context.Background(), dir(buy, sell), big.NewInt(0))
	assert.Nil(t, opp)
	require.NotNil(t, skip)
	assert.Zero(t, buy.calls, "no venue call is useful for a zero input")
}

func TestEvaluateLargeAmountsStayExact(t *testing.T) {
	in, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	mid, _ := new(big.Int).SetString("999999999999999999999999999999", 10)
	out := new(big.Int).Add(in, big.NewInt(1))

	buy := &fakeSource{out: mid}
	sell := &fakeSource{out: out}
	ev := New(weth, usdc, zap.NewNop())

	opp, skip := ev.Evaluate(context.Background(), dir(buy, sell), in)
	require.Nil(t, skip)
	assert.Equal(t, "1", opp.Profit.String(), "no float rounding at any magnitude")
}
