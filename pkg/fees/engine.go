package fees

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/types"
)

const (
	// slippageBps is the fixed minimum-amount floor: 0.5%.
	slippageBps = 50
	// protocolFeeShare models the messaging protocol's cut of the native fee.
	protocolFeeShare = 0.10
	// defaultTransferGas is the gas limit assumed for an OFT send.
	defaultTransferGas = 250_000
	// defaultRouteSeconds is the estimated time for unknown routes.
	defaultRouteSeconds = 60
	// anchorRouteSeconds is the estimate for routes via the anchor network,
	// whose finality dominates delivery time.
	anchorRouteSeconds = 600

	anchorNetwork = "ethereum"

	nativeDecimals = 18
)

// staticNativeFees is the per-route fallback used when the live protocol
// query fails, in wei of the source network's native currency.
var staticNativeFees = map[string]*big.Int{
	"ethereum:arbitrum": big.NewInt(800_000_000_000_000), // 0.0008
	"ethereum:base":     big.NewInt(800_000_000_000_000),
	"arbitrum:ethereum": big.NewInt(300_000_000_000_000),
	"base:ethereum":     big.NewInt(300_000_000_000_000),
	"arbitrum:base":     big.NewInt(200_000_000_000_000),
	"base:arbitrum":     big.NewInt(200_000_000_000_000),
}

// defaultStaticFee covers routes absent from the table.
var defaultStaticFee = big.NewInt(500_000_000_000_000) // 0.0005

// Engine computes protocol messaging fees and full USD breakdowns for
// prospective transfers.
type Engine struct {
	adapters map[string]chain.Adapter
	registry chain.Registry
	oracle   chain.PriceOracle
	log      zerolog.Logger
}

// NewEngine builds a fee engine over the given per-network adapters.
func NewEngine(adapters map[string]chain.Adapter, registry chain.Registry, oracle chain.PriceOracle, log zerolog.Logger) *Engine {
	return &Engine{
		adapters: adapters,
		registry: registry,
		oracle:   oracle,
		log:      log.With().Str("component", "fees").Logger(),
	}
}

func (e *Engine) adapter(network string) (chain.Adapter, error) {
	a, ok := e.adapters[strings.ToLower(network)]
	if !ok {
		return nil, types.NewBridgeError(types.CodeInvalidParams, network, "no adapter configured for network %s", network)
	}
	return a, nil
}

// Quote returns the full fee breakdown for a prospective transfer. A failed
// live protocol query falls back to the static route table; the fallback is
// logged but never surfaced as an error.
func (e *Engine) Quote(ctx context.Context, req types.TransferRequest) (*types.FeeQuote, error) {
	if strings.EqualFold(req.SourceNetwork, req.DestinationNetwork) {
		return nil, types.NewBridgeError(types.CodeInvalidParams, req.SourceNetwork,
			"source and destination networks must differ")
	}

	adapter, err := e.adapter(req.SourceNetwork)
	if err != nil {
		return nil, err
	}

	amount, minAmount, err := e.amounts(req)
	if err != nil {
		return nil, err
	}

	nativeFee, protocolTokenFee, fallback := e.nativeFee(ctx, adapter, req, amount, minAmount)

	gasPrice, err := adapter.GetGasPrice(ctx)
	if err != nil {
		return nil, types.WrapBridgeError(types.CodeRPCError, req.SourceNetwork, err)
	}
	estimatedGas := big.NewInt(defaultTransferGas)
	gasCost := new(big.Int).Mul(gasPrice, estimatedGas)

	nativePrice, err := e.oracle.NativePriceOf(ctx, req.SourceNetwork)
	if err != nil {
		return nil, types.WrapBridgeError(types.CodeNetworkError, req.SourceNetwork, err)
	}

	nativeFeeUSD := weiToUSD(nativeFee, nativePrice)
	gasFeeUSD := weiToUSD(gasCost, nativePrice)

	protocolFeeUSD := nativeFeeUSD.Mul(decimal.NewFromFloat(protocolFeeShare))
	bridgeFeeUSD := nativeFeeUSD.Sub(protocolFeeUSD)
	if bridgeFeeUSD.IsNegative() {
		bridgeFeeUSD = decimal.Zero
	}

	quote := &types.FeeQuote{
		NativeFee:        nativeFee,
		ProtocolTokenFee: protocolTokenFee,
		EstimatedGas:     estimatedGas,
		Breakdown: types.FeeBreakdown{
			ProtocolFee: protocolFeeUSD,
			GasFee:      gasFeeUSD,
			BridgeFee:   bridgeFeeUSD,
		},
		EstimatedTimeSeconds: EstimatedRouteSeconds(req.SourceNetwork, req.DestinationNetwork),
		Fallback:             fallback,
	}
	// total is derived from the breakdown so recomputation always agrees
	quote.TotalFeeUSD = protocolFeeUSD.Add(gasFeeUSD).Add(bridgeFeeUSD)

	return quote, nil
}

// EstimateFee returns the native fee and gas estimate without consulting the
// price oracle.
func (e *Engine) EstimateFee(ctx context.Context, req types.TransferRequest) (*types.FeeEstimate, error) {
	if strings.EqualFold(req.SourceNetwork, req.DestinationNetwork) {
		return nil, types.NewBridgeError(types.CodeInvalidParams, req.SourceNetwork,
			"source and destination networks must differ")
	}

	adapter, err := e.adapter(req.SourceNetwork)
	if err != nil {
		return nil, err
	}

	amount, minAmount, err := e.amounts(req)
	if err != nil {
		return nil, err
	}

	nativeFee, _, _ := e.nativeFee(ctx, adapter, req, amount, minAmount)

	gasPrice, err := adapter.GetGasPrice(ctx)
	if err != nil {
		return nil, types.WrapBridgeError(types.CodeRPCError, req.SourceNetwork, err)
	}

	return &types.FeeEstimate{
		NativeFee:    nativeFee,
		EstimatedGas: big.NewInt(defaultTransferGas),
		GasPrice:     gasPrice,
	}, nil
}

// amounts converts the request amount into base units and applies the
// slippage floor.
func (e *Engine) amounts(req types.TransferRequest) (amount, minAmount *big.Int, err error) {
	decimals, err := e.registry.TokenDecimals(req.Token)
	if err != nil {
		return nil, nil, types.WrapBridgeError(types.CodeInvalidParams, req.SourceNetwork, err)
	}
	amount, err = ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return nil, nil, types.WrapBridgeError(types.CodeInvalidParams, req.SourceNetwork, err)
	}
	minAmount = new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(10_000-slippageBps)), big.NewInt(10_000))
	return amount, minAmount, nil
}

// nativeFee performs the live protocol quote, falling back to the static
// route table on failure.
func (e *Engine) nativeFee(ctx context.Context, adapter chain.Adapter, req types.TransferRequest, amount, minAmount *big.Int) (native, protocolToken *big.Int, fallback bool) {
	recipient := req.RecipientAddress
	if recipient == "" {
		recipient = req.SenderAddress
	}

	tokenAddress, tokenErr := e.registry.TokenAddress(req.SourceNetwork, req.Token)
	dstEid, eidErr := e.registry.EndpointID(req.DestinationNetwork)

	if tokenErr == nil && eidErr == nil {
		fee, err := adapter.QuoteMessageFee(ctx, chain.MessageFeeQuery{
			TokenAddress:          tokenAddress,
			DestinationEndpointID: dstEid,
			Recipient:             chain.AddressToBytes32(recipient),
			Amount:                amount,
			MinAmount:             minAmount,
		})
		if err == nil {
			return fee.NativeFee, fee.ProtocolTokenFee, false
		}
		e.log.Warn().Err(err).
			Str("route", routeID(req.SourceNetwork, req.DestinationNetwork)).
			Bool("fallback", true).
			Msg("live fee query failed, using static fee table")
	} else {
		e.log.Warn().
			AnErr("tokenErr", tokenErr).
			AnErr("eidErr", eidErr).
			Str("route", routeID(req.SourceNetwork, req.DestinationNetwork)).
			Bool("fallback", true).
			Msg("route not resolvable for live fee query, using static fee table")
	}

	staticFee, ok := staticNativeFees[routeID(req.SourceNetwork, req.DestinationNetwork)]
	if !ok {
		staticFee = defaultStaticFee
	}
	return new(big.Int).Set(staticFee), big.NewInt(0), true
}

// EstimatedRouteSeconds looks up the typical completion time for a route.
// Routes via the anchor network inherit its slower finality.
func EstimatedRouteSeconds(source, destination string) int {
	if strings.EqualFold(source, anchorNetwork) || strings.EqualFold(destination, anchorNetwork) {
		return anchorRouteSeconds
	}
	return defaultRouteSeconds
}

func routeID(source, destination string) string {
	return strings.ToLower(source + ":" + destination)
}

// ToBaseUnits converts a decimal token amount string into base units.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be greater than 0")
	}
	return d.Shift(decimals).BigInt(), nil
}

// FromBaseUnits converts base units back into a decimal token amount.
func FromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -decimals)
}

func weiToUSD(wei *big.Int, nativePriceUSD decimal.Decimal) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -nativeDecimals).Mul(nativePriceUSD)
}
