package guard

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fclmail/ARBBOT1/internal/types"
)

type fakeLedger struct {
	mu sync.Mutex

	gas       uint64
	gasErr    error
	balance   *big.Int
	balErr    error
	submitErr error
	rcpt      *gethtypes.Receipt
	waitErr   error

	submitCalls int
	submitGas   uint64
	submitGate  chan struct{} // when set, Submit blocks until closed
	submitted   chan struct{} // signalled when Submit is entered
	waitGate    chan struct{} // when set, AwaitInclusion blocks until closed
}

func (f *fakeLedger) EstimateGas(context.Context, common.Address, []byte) (uint64, error) {
	return f.gas, f.gasErr
}

func (f *fakeLedger) SuggestFees(context.Context) (*big.Int, *big.Int, error) {
	return big.NewInt(1), big.NewInt(10), nil
}

func (f *fakeLedger) NativeBalance(context.Context) (*big.Int, error) {
	return f.balance, f.balErr
}

func (f *fakeLedger) Submit(_ context.Context, to common.Address, data []byte, gas uint64, tip, feeCap *big.Int) (*gethtypes.Transaction, error) {
	f.mu.Lock()
	f.submitCalls++
	f.submitGas = gas
	f.mu.Unlock()
	if f.submitted != nil {
		close(f.submitted)
		f.submitted = nil
	}
	if f.submitGate != nil {
		<-f.submitGate
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 1, To: &to, Gas: gas, GasPrice: feeCap, Data: data}), nil
}

func (f *fakeLedger) AwaitInclusion(ctx context.Context, _ common.Hash) (*gethtypes.Receipt, error) {
	if f.waitGate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.waitGate:
		}
	}
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	if f.rcpt != nil {
		return f.rcpt, nil
	}
	return &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1234)}, nil
}

func (f *fakeLedger) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

type fakeSettlement struct{}

func (fakeSettlement) Address() common.Address { return common.HexToAddress("0xff") }
func (fakeSettlement) Calldata(_, _, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x01, 0x02}, nil
}

func testOpp() *types.Opportunity {
	return &types.Opportunity{
		Direction: "uni->sushi",
		Asset:     types.Token{Address: common.HexToAddress("0x0a"), Decimals: 18},
		Quote:     types.Token{Address: common.HexToAddress("0x0b"), Decimals: 6},
		AmountIn:  big.NewInt(100),
		AmountOut: big.NewInt(105),
		Profit:    big.NewInt(5),
	}
}

var buyR, sellR = common.HexToAddress("0x0101"), common.HexToAddress("0x0202")

func newGuard(l Ledger) *Guard {
	return New(l, fakeSettlement{}, 1500, 600_000, nil, zap.NewNop())
}

func TestTryExecuteConfirms(t *testing.T) {
	fl := &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40)}
	g := newGuard(fl)

	out := g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	assert.Equal(t, Submitted, out.Status)
	assert.True(t, out.Confirmed)
	assert.Equal(t, uint64(1234), out.BlockNum)
	assert.False(t, g.InFlight())
}

func TestGasMarginApplied(t *testing.T) {
	fl := &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40)}
	g := newGuard(fl)

	g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	assert.Equal(t, uint64(115_000), fl.submitGas, "15% margin over the estimate")
}

func TestEstimateFailureFallsBackToConfiguredLimit(t *testing.T) {
	fl := &fakeLedger{gasErr: errors.New("rpc down"), balance: big.NewInt(1 << 40)}
	g := newGuard(fl)

	out := g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	assert.Equal(t, Submitted, out.Status)
	assert.Equal(t, uint64(690_000), fl.submitGas)
}

func TestInsufficientBalanceRejectsWithoutSubmitting(t *testing.T) {
	fl := &fakeLedger{gas: 100_000, balance: big.NewInt(10)}
	g := newGuard(fl)

	out := g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	assert.Equal(t, Rejected, out.Status)
	assert.Equal(t, ReasonInsufficientBalance, out.Reason)
	assert.Zero(t, fl.submits())
	assert.False(t, g.InFlight())
}

func TestGasBudgetCap(t *testing.T) {
	fl := &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40)}
	// worst case = feeCap(10) * gas(115000) = 1_150_000 wei > cap
	g := New(fl, fakeSettlement{}, 1500, 600_000, big.NewInt(1_000_000), zap.NewNop())

	out := g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	assert.Equal(t, Rejected, out.Status)
	assert.Equal(t, ReasonGasBudget, out.Reason)
	assert.Zero(t, fl.submits())
}

func TestBusyWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	fl := &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40), submitGate: gate, submitted: entered}
	g := newGuard(fl)

	done := make(chan Outcome, 1)
	go func() {
		done <- g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never reached submission")
	}

	out := g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	assert.Equal(t, Busy, out.Status)
	assert.Equal(t, 1, fl.submits(), "busy attempt must not submit")

	close(gate)
	first := <-done
	assert.Equal(t, Submitted, first.Status)
	assert.False(t, g.InFlight())
}

func TestSlotReleasedOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name string
		fl   *fakeLedger
	}{
		{"submit error", &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40), submitErr: errors.New("nonce too low")}},
		{"balance read error", &fakeLedger{gas: 100_000, balErr: errors.New("rpc timeout")}},
		{"reverted receipt", &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40), rcpt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(7)}}},
		{"confirmation wait error", &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40), waitErr: errors.New("ctx done")}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := newGuard(c.fl)
			g.TryExecute(context.Background(), testOpp(), buyR, sellR)
			assert.False(t, g.InFlight())
		})
	}
}

func TestConfirmationWaitSurvivesStopSignal(t *testing.T) {
	entered := make(chan struct{})
	wait := make(chan struct{})
	fl := &fakeLedger{gas: 100_000, balance: big.NewInt(1 << 40), submitted: entered, waitGate: wait}
	g := newGuard(fl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() {
		done <- g.TryExecute(ctx, testOpp(), buyR, sellR)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("attempt never reached submission")
	}

	// Operator stop arrives while the receipt is still pending. The tx
	// is already on the wire, so the wait must run to completion.
	cancel()
	close(wait)

	out := <-done
	assert.Equal(t, Submitted, out.Status)
	assert.True(t, out.Confirmed, "receipt must still be awaited after the stop signal")
	assert.NoError(t, out.Err)
	assert.False(t, g.InFlight())
}

func TestRevertedReceiptSurfacesInOutcome(t *testing.T) {
	fl := &fakeLedger{
		gas:     100_000,
		balance: big.NewInt(1 << 40),
		rcpt:    &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(7)},
	}
	g := newGuard(fl)

	out := g.TryExecute(context.Background(), testOpp(), buyR, sellR)
	require.Equal(t, Submitted, out.Status)
	assert.True(t, out.Reverted)
	assert.False(t, out.Confirmed)
}
