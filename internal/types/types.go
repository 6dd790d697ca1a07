package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a resolved asset descriptor. Decimals are fetched (or taken
// from config) once at startup and never change afterwards.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// Opportunity is one evaluated round trip: quote asset in on the buy
// venue, asset back out on the sell venue. All amounts are base units of
// the quote asset except Intermediate, which is base units of the traded
// asset. Profit = AmountOut - AmountIn, exact integer arithmetic.
type Opportunity struct {
	Direction    string
	BuyVenue     string
	SellVenue    string
	Asset        Token
	Quote        Token
	AmountIn     *big.Int
	Intermediate *big.Int
	AmountOut    *big.Int
	Profit       *big.Int
	ProfitPct    float64 // display only, never fed back into amounts
	Block        uint64
	Ts           time.Time
}

func (o *Opportunity) Profitable() bool {
	return o.Profit != nil && o.Profit.Sign() > 0
}
