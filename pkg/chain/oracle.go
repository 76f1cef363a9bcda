package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StaticOracle implements PriceOracle from configured USD rates. Prices are
// reporting-only, so a fixed table is an acceptable collaborator for
// deployments without a feed.
type StaticOracle struct {
	tokenPrices  map[string]decimal.Decimal
	nativePrices map[string]decimal.Decimal
}

// NewStaticOracle builds an oracle over per-token and per-network USD rates.
func NewStaticOracle(tokenPrices map[string]float64, nativePrices map[string]float64) *StaticOracle {
	o := &StaticOracle{
		tokenPrices:  make(map[string]decimal.Decimal, len(tokenPrices)),
		nativePrices: make(map[string]decimal.Decimal, len(nativePrices)),
	}
	for symbol, price := range tokenPrices {
		o.tokenPrices[strings.ToLower(symbol)] = decimal.NewFromFloat(price)
	}
	for network, price := range nativePrices {
		o.nativePrices[strings.ToLower(network)] = decimal.NewFromFloat(price)
	}
	return o
}

func (o *StaticOracle) PriceOf(_ context.Context, token string) (decimal.Decimal, error) {
	price, ok := o.tokenPrices[strings.ToLower(token)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price configured for token %s", token)
	}
	return price, nil
}

func (o *StaticOracle) NativePriceOf(_ context.Context, network string) (decimal.Decimal, error) {
	price, ok := o.nativePrices[strings.ToLower(network)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no native price configured for network %s", network)
	}
	return price, nil
}
