package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptStatus mirrors the on-chain execution result of a mined transaction.
type ReceiptStatus uint64

const (
	ReceiptReverted ReceiptStatus = 0
	ReceiptSuccess  ReceiptStatus = 1
)

// Log is one event record emitted by a mined transaction.
type Log struct {
	Address string
	Topics  []string
	Data    []byte
}

// Receipt is the mined-transaction summary the monitor polls for.
type Receipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber uint64
	Logs        []Log
}

// MessageFeeQuery describes a live fee query against the messaging protocol.
type MessageFeeQuery struct {
	TokenAddress          string
	DestinationEndpointID uint32
	Recipient             [32]byte
	Amount                *big.Int
	MinAmount             *big.Int
}

// MessageFee is the protocol's quoted cost for relaying one message.
type MessageFee struct {
	NativeFee        *big.Int
	ProtocolTokenFee *big.Int
}

// TransferTx describes the transfer transaction to submit on the source
// network. Value carries the quoted native fee.
type TransferTx struct {
	TokenAddress          string
	DestinationEndpointID uint32
	Recipient             [32]byte
	Amount                *big.Int
	MinAmount             *big.Int
	Value                 *big.Int
}

// Adapter is the per-network chain collaborator: balance/allowance reads, log
// queries, gas price, signed submission and receipt waits. Implementations
// must be safe for concurrent use.
type Adapter interface {
	// Network returns the logical network identifier this adapter serves.
	Network() string

	// GetBalance returns the native-currency balance of address, in wei.
	GetBalance(ctx context.Context, address string) (*big.Int, error)

	// GetTokenBalance returns the token balance of address, in base units.
	GetTokenBalance(ctx context.Context, tokenAddress, address string) (*big.Int, error)

	// GetAllowance returns the amount spender may move on behalf of owner.
	GetAllowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error)

	// GetReceipt returns the receipt for txHash, or nil if not yet mined.
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// GetBlockNumber returns the current chain height.
	GetBlockNumber(ctx context.Context) (uint64, error)

	// GetGasPrice returns the suggested gas price, in wei.
	GetGasPrice(ctx context.Context) (*big.Int, error)

	// SubmitApproval submits an ERC20 approval for spender and returns the
	// transaction hash.
	SubmitApproval(ctx context.Context, tokenAddress, spender string, amount *big.Int) (string, error)

	// SubmitTransfer submits the cross-network transfer and returns the
	// transaction hash.
	SubmitTransfer(ctx context.Context, tx TransferTx) (string, error)

	// WaitForReceipt blocks until txHash is mined or the timeout elapses.
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error)

	// QuoteMessageFee performs a live fee query against the messaging
	// protocol endpoint for this network.
	QuoteMessageFee(ctx context.Context, q MessageFeeQuery) (*MessageFee, error)

	// ReadOutboundCounter reads the endpoint's outbound nonce toward
	// dstEndpointID for sender.
	ReadOutboundCounter(ctx context.Context, dstEndpointID uint32, sender string) (uint64, error)

	// ReadInboundCounter reads the endpoint's inbound nonce from
	// srcEndpointID for the sender's protocol-registered address bytes.
	ReadInboundCounter(ctx context.Context, srcEndpointID uint32, senderBytes [32]byte) (uint64, error)

	// QueryRecentLogs returns logs emitted by contractAddress matching
	// eventSignature (topic0, hex) in [fromBlock, toBlock].
	QueryRecentLogs(ctx context.Context, contractAddress, eventSignature string, fromBlock, toBlock uint64) ([]Log, error)
}

// Registry maps logical network and token identifiers to on-chain facts.
type Registry interface {
	// TokenAddress returns the token's contract address on network.
	TokenAddress(network, token string) (string, error)

	// TokenDecimals returns the token's decimal precision.
	TokenDecimals(token string) (int32, error)

	// EndpointID returns the messaging-protocol endpoint identifier for
	// network.
	EndpointID(network string) (uint32, error)

	// NativeSymbol returns the native-currency symbol for network.
	NativeSymbol(network string) (string, error)

	// SupportsRoute reports whether token can be transferred directly from
	// source to destination.
	SupportsRoute(source, destination, token string) bool
}

// PriceOracle supplies USD conversion rates. Used for reporting only, never
// for correctness.
type PriceOracle interface {
	PriceOf(ctx context.Context, token string) (decimal.Decimal, error)
	NativePriceOf(ctx context.Context, network string) (decimal.Decimal, error)
}
