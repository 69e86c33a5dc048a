package fetcher

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrDataUnavailable wraps every failure to obtain a usable market snapshot.
var ErrDataUnavailable = errors.New("market data unavailable")

// Asset identifies one side of a lending market.
type Asset struct {
	Symbol  string
	Address string
}

// DisplayAddress returns the EIP-55 checksummed address, or "" when it is not a valid hex address.
func (a Asset) DisplayAddress() string {
	if !common.IsHexAddress(a.Address) {
		return ""
	}
	return common.HexToAddress(a.Address).Hex()
}

// MarketSnapshot is one observation of the market state. Rates are fractions.
type MarketSnapshot struct {
	UniqueKey   string
	ChainID     int
	BorrowAPY   decimal.Decimal
	Utilization decimal.Decimal
	Loan        Asset
	Collateral  Asset
}

// MarketFetcher retrieves the current market snapshot.
type MarketFetcher interface {
	FetchMarket(ctx context.Context) (MarketSnapshot, error)
}
