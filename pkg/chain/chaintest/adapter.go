// Package chaintest provides a configurable in-memory Adapter for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"
	"time"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/retry"
)

// FakeAdapter implements chain.Adapter with overridable behavior per method.
// The zero-value defaults describe a healthy network: large balances,
// unlimited allowance, successful receipts. Every call is recorded by method
// name.
type FakeAdapter struct {
	Name string

	BalanceFn        func(address string) (*big.Int, error)
	TokenBalanceFn   func(tokenAddress, address string) (*big.Int, error)
	AllowanceFn      func(tokenAddress, owner, spender string) (*big.Int, error)
	ReceiptFn        func(txHash string) (*chain.Receipt, error)
	BlockNumberFn    func() (uint64, error)
	GasPriceFn       func() (*big.Int, error)
	SubmitApprovalFn func(tokenAddress, spender string, amount *big.Int) (string, error)
	SubmitTransferFn func(tx chain.TransferTx) (string, error)
	QuoteFn          func(q chain.MessageFeeQuery) (*chain.MessageFee, error)
	OutboundFn       func(dstEndpointID uint32, sender string) (uint64, error)
	InboundFn        func(srcEndpointID uint32, senderBytes [32]byte) (uint64, error)
	LogsFn           func(contractAddress, eventSignature string, fromBlock, toBlock uint64) ([]chain.Log, error)

	mu    sync.Mutex
	calls []string
}

func (f *FakeAdapter) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
}

// Calls returns the recorded method names in call order.
func (f *FakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times method was called.
func (f *FakeAdapter) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *FakeAdapter) Network() string {
	if f.Name == "" {
		return "testnet"
	}
	return f.Name
}

func (f *FakeAdapter) GetBalance(_ context.Context, address string) (*big.Int, error) {
	f.record("GetBalance")
	if f.BalanceFn != nil {
		return f.BalanceFn(address)
	}
	return new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)), nil
}

func (f *FakeAdapter) GetTokenBalance(_ context.Context, tokenAddress, address string) (*big.Int, error) {
	f.record("GetTokenBalance")
	if f.TokenBalanceFn != nil {
		return f.TokenBalanceFn(tokenAddress, address)
	}
	return new(big.Int).Mul(big.NewInt(1e12), big.NewInt(1e12)), nil
}

func (f *FakeAdapter) GetAllowance(_ context.Context, tokenAddress, owner, spender string) (*big.Int, error) {
	f.record("GetAllowance")
	if f.AllowanceFn != nil {
		return f.AllowanceFn(tokenAddress, owner, spender)
	}
	return new(big.Int).Mul(big.NewInt(1e12), big.NewInt(1e12)), nil
}

func (f *FakeAdapter) GetReceipt(_ context.Context, txHash string) (*chain.Receipt, error) {
	f.record("GetReceipt")
	if f.ReceiptFn != nil {
		return f.ReceiptFn(txHash)
	}
	return &chain.Receipt{TxHash: txHash, Status: chain.ReceiptSuccess, BlockNumber: 100}, nil
}

func (f *FakeAdapter) GetBlockNumber(_ context.Context) (uint64, error) {
	f.record("GetBlockNumber")
	if f.BlockNumberFn != nil {
		return f.BlockNumberFn()
	}
	return 110, nil
}

func (f *FakeAdapter) GetGasPrice(_ context.Context) (*big.Int, error) {
	f.record("GetGasPrice")
	if f.GasPriceFn != nil {
		return f.GasPriceFn()
	}
	return big.NewInt(1e9), nil
}

func (f *FakeAdapter) SubmitApproval(_ context.Context, tokenAddress, spender string, amount *big.Int) (string, error) {
	f.record("SubmitApproval")
	if f.SubmitApprovalFn != nil {
		return f.SubmitApprovalFn(tokenAddress, spender, amount)
	}
	return "0xapproval", nil
}

func (f *FakeAdapter) SubmitTransfer(_ context.Context, tx chain.TransferTx) (string, error) {
	f.record("SubmitTransfer")
	if f.SubmitTransferFn != nil {
		return f.SubmitTransferFn(tx)
	}
	return "0xtransfer", nil
}

func (f *FakeAdapter) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*chain.Receipt, error) {
	f.record("WaitForReceipt")
	var receipt *chain.Receipt
	err := retry.WaitFor(ctx, 5*time.Millisecond, timeout, func(ctx context.Context) (bool, error) {
		r, err := f.GetReceipt(ctx, txHash)
		if err != nil {
			return false, nil
		}
		receipt = r
		return r != nil, nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (f *FakeAdapter) QuoteMessageFee(_ context.Context, q chain.MessageFeeQuery) (*chain.MessageFee, error) {
	f.record("QuoteMessageFee")
	if f.QuoteFn != nil {
		return f.QuoteFn(q)
	}
	return &chain.MessageFee{NativeFee: big.NewInt(1e15), ProtocolTokenFee: big.NewInt(0)}, nil
}

func (f *FakeAdapter) ReadOutboundCounter(_ context.Context, dstEndpointID uint32, sender string) (uint64, error) {
	f.record("ReadOutboundCounter")
	if f.OutboundFn != nil {
		return f.OutboundFn(dstEndpointID, sender)
	}
	return 1, nil
}

func (f *FakeAdapter) ReadInboundCounter(_ context.Context, srcEndpointID uint32, senderBytes [32]byte) (uint64, error) {
	f.record("ReadInboundCounter")
	if f.InboundFn != nil {
		return f.InboundFn(srcEndpointID, senderBytes)
	}
	return 1, nil
}

func (f *FakeAdapter) QueryRecentLogs(_ context.Context, contractAddress, eventSignature string, fromBlock, toBlock uint64) ([]chain.Log, error) {
	f.record("QueryRecentLogs")
	if f.LogsFn != nil {
		return f.LogsFn(contractAddress, eventSignature, fromBlock, toBlock)
	}
	return nil, nil
}

var _ chain.Adapter = (*FakeAdapter)(nil)
