package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fclmail/ARBBOT1/internal/chain"
)

type fakeAgg struct {
	results []chain.CallResult
	err     error
	calls   []chain.Call
}

func (f *fakeAgg) TryAggregate(_ context.Context, calls []chain.Call) ([]chain.CallResult, error) {
	f.calls = calls
	return f.results, f.err
}

func TestPreflightSplitsOkAndFailed(t *testing.T) {
	v1, _ := New("uni", router, false, nil)
	v2, _ := New("sushi", common.HexToAddress("0x0202"), false, nil)

	agg := &fakeAgg{results: []chain.CallResult{
		{Success: true, Data: []byte{0x01}},
		{Success: false},
	}}

	ok, failed, err := Preflight(context.Background(), agg, []*Venue{v1, v2}, []common.Address{tokenA, tokenB})
	require.NoError(t, err)
	assert.Equal(t, []string{"uni"}, ok)
	assert.Equal(t, []string{"sushi"}, failed)
	assert.Len(t, agg.calls, 2)
	assert.Equal(t, router, agg.calls[0].Target)
}

func TestPreflightBatchError(t *testing.T) {
	v1, _ := New("uni", router, false, nil)
	agg := &fakeAgg{err: errors.New("rpc down")}

	_, _, err := Preflight(context.Background(), agg, []*Venue{v1}, []common.Address{tokenA, tokenB})
	assert.Error(t, err)
}

func TestPreflightNoVenues(t *testing.T) {
	ok, failed, err := Preflight(context.Background(), &fakeAgg{}, nil, []common.Address{tokenA, tokenB})
	require.NoError(t, err)
	assert.Empty(t, ok)
	assert.Empty(t, failed)
}
