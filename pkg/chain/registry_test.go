package chain

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *StaticRegistry {
	return NewStaticRegistry(
		map[string]NetworkInfo{
			"Ethereum": {EndpointID: 30101, NativeSymbol: "ETH"},
			"base":     {EndpointID: 30184, NativeSymbol: "ETH"},
		},
		map[string]TokenInfo{
			"USDC": {
				Decimals: 6,
				Addresses: map[string]string{
					"Ethereum": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
					"base":     "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
				},
			},
			"WETH": {
				Decimals:  18,
				Addresses: map[string]string{"ethereum": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
			},
		},
	)
}

func TestRegistryLookupsAreCaseInsensitive(t *testing.T) {
	r := testRegistry()

	addr, err := r.TokenAddress("ETHEREUM", "usdc")
	require.NoError(t, err)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", addr)

	eid, err := r.EndpointID("ethereum")
	require.NoError(t, err)
	assert.Equal(t, uint32(30101), eid)

	symbol, err := r.NativeSymbol("Base")
	require.NoError(t, err)
	assert.Equal(t, "ETH", symbol)

	decimals, err := r.TokenDecimals("Usdc")
	require.NoError(t, err)
	assert.Equal(t, int32(6), decimals)
}

func TestRegistryUnknownIdentifiers(t *testing.T) {
	r := testRegistry()

	_, err := r.TokenAddress("ethereum", "DAI")
	assert.Error(t, err)

	_, err = r.TokenAddress("solana", "USDC")
	assert.Error(t, err)

	_, err = r.EndpointID("solana")
	assert.Error(t, err)

	_, err = r.TokenDecimals("DAI")
	assert.Error(t, err)
}

func TestSupportsRoute(t *testing.T) {
	r := testRegistry()

	assert.True(t, r.SupportsRoute("ethereum", "base", "USDC"))
	assert.True(t, r.SupportsRoute("Base", "Ethereum", "usdc"))

	// WETH is only deployed on ethereum
	assert.False(t, r.SupportsRoute("ethereum", "base", "WETH"))
	assert.False(t, r.SupportsRoute("ethereum", "base", "DAI"))
	assert.False(t, r.SupportsRoute("ethereum", "solana", "USDC"))
	assert.False(t, r.SupportsRoute("solana", "base", "USDC"))
}

func TestStaticOraclePrices(t *testing.T) {
	o := NewStaticOracle(
		map[string]float64{"USDC": 1.0},
		map[string]float64{"Ethereum": 2000.0},
	)

	price, err := o.PriceOf(context.Background(), "usdc")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(1.0)))

	native, err := o.NativePriceOf(context.Background(), "ETHEREUM")
	require.NoError(t, err)
	assert.True(t, native.Equal(decimal.NewFromFloat(2000.0)))

	_, err = o.PriceOf(context.Background(), "DAI")
	assert.Error(t, err)
	_, err = o.NativePriceOf(context.Background(), "solana")
	assert.Error(t, err)
}

func TestAddressToBytes32LeftPads(t *testing.T) {
	got := AddressToBytes32("0x1111111111111111111111111111111111111111")

	for i := 0; i < 12; i++ {
		assert.Equal(t, byte(0), got[i], "byte %d must be padding", i)
	}
	for i := 12; i < 32; i++ {
		assert.Equal(t, byte(0x11), got[i], "byte %d must carry the address", i)
	}
}

func TestEventTopicIsStableAndDistinct(t *testing.T) {
	sent := EventTopic(OFTSentEvent)
	received := EventTopic(OFTReceivedEvent)

	assert.Len(t, sent, 66)
	assert.True(t, len(sent) > 2 && sent[:2] == "0x")
	assert.NotEqual(t, sent, received)
	assert.Equal(t, sent, EventTopic(OFTSentEvent))
}
