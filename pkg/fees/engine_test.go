package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/chain/chaintest"
	"omnibridge/pkg/types"
)

func testRegistry() *chain.StaticRegistry {
	return chain.NewStaticRegistry(
		map[string]chain.NetworkInfo{
			"ethereum": {EndpointID: 30101, NativeSymbol: "ETH"},
			"base":     {EndpointID: 30184, NativeSymbol: "ETH"},
		},
		map[string]chain.TokenInfo{
			"USDC": {
				Decimals: 6,
				Addresses: map[string]string{
					"ethereum": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
					"base":     "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
				},
			},
		},
	)
}

func testEngine(adapter chain.Adapter) *Engine {
	adapters := map[string]chain.Adapter{"ethereum": adapter, "base": adapter}
	oracle := chain.NewStaticOracle(
		map[string]float64{"usdc": 1.0},
		map[string]float64{"ethereum": 2000.0, "base": 2000.0},
	)
	return NewEngine(adapters, testRegistry(), oracle, zerolog.Nop())
}

func testRequest() types.TransferRequest {
	return types.TransferRequest{
		SourceNetwork:      "ethereum",
		DestinationNetwork: "base",
		Token:              "USDC",
		Amount:             "100",
		SenderAddress:      "0x1111111111111111111111111111111111111111",
		RecipientAddress:   "0x2222222222222222222222222222222222222222",
	}
}

func TestQuoteRejectsSameNetwork(t *testing.T) {
	engine := testEngine(&chaintest.FakeAdapter{Name: "ethereum"})

	req := testRequest()
	req.DestinationNetwork = "Ethereum"
	_, err := engine.Quote(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.CodeInvalidParams, types.CodeOf(err))
}

func TestQuoteTotalEqualsBreakdownSum(t *testing.T) {
	fake := &chaintest.FakeAdapter{
		Name:       "ethereum",
		QuoteFn:    func(chain.MessageFeeQuery) (*chain.MessageFee, error) {
			return &chain.MessageFee{NativeFee: big.NewInt(2e15), ProtocolTokenFee: big.NewInt(0)}, nil
		},
		GasPriceFn: func() (*big.Int, error) { return big.NewInt(2e9), nil },
	}
	engine := testEngine(fake)

	quote, err := engine.Quote(context.Background(), testRequest())
	require.NoError(t, err)

	sum := quote.Breakdown.ProtocolFee.Add(quote.Breakdown.GasFee).Add(quote.Breakdown.BridgeFee)
	assert.True(t, quote.TotalFeeUSD.Equal(sum), "total %s != sum %s", quote.TotalFeeUSD, sum)
	assert.False(t, quote.Fallback)

	// native fee of 0.002 ETH at $2000: protocol takes 10%, bridge the rest
	nativeUSD := decimal.NewFromFloat(4.0)
	assert.True(t, quote.Breakdown.ProtocolFee.Equal(nativeUSD.Mul(decimal.NewFromFloat(0.1))),
		"protocol fee %s", quote.Breakdown.ProtocolFee)
	assert.True(t, quote.Breakdown.BridgeFee.Equal(nativeUSD.Mul(decimal.NewFromFloat(0.9))),
		"bridge fee %s", quote.Breakdown.BridgeFee)

	// gas: 2 gwei * 250k gas = 0.0005 ETH = $1
	assert.True(t, quote.Breakdown.GasFee.Equal(decimal.NewFromFloat(1.0)),
		"gas fee %s", quote.Breakdown.GasFee)
}

func TestQuoteFallsBackWhenLiveQueryFails(t *testing.T) {
	fake := &chaintest.FakeAdapter{
		Name:    "ethereum",
		QuoteFn: func(chain.MessageFeeQuery) (*chain.MessageFee, error) { return nil, errors.New("rpc down") },
	}
	engine := testEngine(fake)

	quote, err := engine.Quote(context.Background(), testRequest())
	require.NoError(t, err, "fallback must not surface an error")
	assert.True(t, quote.Fallback)
	assert.Equal(t, staticNativeFees["ethereum:base"], quote.NativeFee)
}

func TestQuotePassesSlippageFloor(t *testing.T) {
	var captured chain.MessageFeeQuery
	fake := &chaintest.FakeAdapter{
		Name: "ethereum",
		QuoteFn: func(q chain.MessageFeeQuery) (*chain.MessageFee, error) {
			captured = q
			return &chain.MessageFee{NativeFee: big.NewInt(1e15), ProtocolTokenFee: big.NewInt(0)}, nil
		},
	}
	engine := testEngine(fake)

	_, err := engine.Quote(context.Background(), testRequest())
	require.NoError(t, err)

	// 100 USDC at 6 decimals, min amount 0.5% lower
	assert.Equal(t, big.NewInt(100_000_000), captured.Amount)
	assert.Equal(t, big.NewInt(99_500_000), captured.MinAmount)
	assert.Equal(t, uint32(30184), captured.DestinationEndpointID)
}

func TestEstimateFeeSkipsOracle(t *testing.T) {
	fake := &chaintest.FakeAdapter{Name: "ethereum"}
	// an engine whose oracle knows nothing still estimates
	adapters := map[string]chain.Adapter{"ethereum": fake}
	engine := NewEngine(adapters, testRegistry(), chain.NewStaticOracle(nil, nil), zerolog.Nop())

	est, err := engine.EstimateFee(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotNil(t, est.NativeFee)
	assert.Equal(t, big.NewInt(defaultTransferGas), est.EstimatedGas)
	assert.Equal(t, big.NewInt(1e9), est.GasPrice)
}

func TestQuoteUnknownNetwork(t *testing.T) {
	engine := testEngine(&chaintest.FakeAdapter{Name: "ethereum"})
	req := testRequest()
	req.SourceNetwork = "solana"
	_, err := engine.Quote(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.CodeInvalidParams, types.CodeOf(err))
}

func TestToBaseUnits(t *testing.T) {
	amount, err := ToBaseUnits("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_500_000), amount)

	amount, err = ToBaseUnits("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), amount)

	_, err = ToBaseUnits("abc", 6)
	assert.Error(t, err)
	_, err = ToBaseUnits("0", 6)
	assert.Error(t, err)
	_, err = ToBaseUnits("-1", 6)
	assert.Error(t, err)
}

func TestFromBaseUnits(t *testing.T) {
	assert.Equal(t, "1.5", FromBaseUnits(big.NewInt(1_500_000), 6).String())
	assert.Equal(t, "0.000000000000000001", FromBaseUnits(big.NewInt(1), 18).String())
}

func TestEstimatedRouteSeconds(t *testing.T) {
	assert.Equal(t, anchorRouteSeconds, EstimatedRouteSeconds("Ethereum", "base"))
	assert.Equal(t, anchorRouteSeconds, EstimatedRouteSeconds("base", "ethereum"))
	assert.Equal(t, defaultRouteSeconds, EstimatedRouteSeconds("arbitrum", "base"))
}
