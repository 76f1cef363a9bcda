package bridge

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/events"
	"omnibridge/pkg/fees"
	"omnibridge/pkg/history"
	"omnibridge/pkg/retry"
	"omnibridge/pkg/types"
)

// Options bound the executor's waits and submission retries.
type Options struct {
	ApprovalTimeout time.Duration
	ConfirmTimeout  time.Duration
	SubmitAttempts  int
	SubmitBaseDelay time.Duration
}

// DefaultOptions are the executor defaults.
func DefaultOptions() Options {
	return Options{
		ApprovalTimeout: 60 * time.Second,
		ConfirmTimeout:  120 * time.Second,
		SubmitAttempts:  retry.DefaultAttempts,
		SubmitBaseDelay: time.Second,
	}
}

// BatchOptions bound a batch submission.
type BatchOptions struct {
	MaxConcurrency int
	StopOnError    bool
}

// Payload is the event payload shape shared by all executor events.
type Payload struct {
	Request types.TransferRequest `json:"request"`
	TxHash  string                `json:"tx_hash,omitempty"`
	Code    types.Code            `json:"code,omitempty"`
	Error   string                `json:"error,omitempty"`
	Fees    *types.FeeQuote       `json:"fees,omitempty"`
}

// Executor validates, approves if required, submits and records transfers.
// Progress is reported through emitted events so callers never need to poll.
type Executor struct {
	adapters   map[string]chain.Adapter
	registry   chain.Registry
	fees       *fees.Engine
	history    *history.Store
	dispatcher *events.Dispatcher
	opts       Options
	log        zerolog.Logger
}

// NewExecutor builds an executor over the given collaborators.
func NewExecutor(adapters map[string]chain.Adapter, registry chain.Registry, feeEngine *fees.Engine,
	store *history.Store, dispatcher *events.Dispatcher, opts Options, log zerolog.Logger) *Executor {
	if opts.ApprovalTimeout == 0 {
		opts = DefaultOptions()
	}
	return &Executor{
		adapters:   adapters,
		registry:   registry,
		fees:       feeEngine,
		history:    store,
		dispatcher: dispatcher,
		opts:       opts,
		log:        log.With().Str("component", "executor").Logger(),
	}
}

// Bridge runs the full validate/approve/submit/record pipeline for one
// transfer. The returned Result always reflects the outcome; err carries the
// typed cause on failure.
func (e *Executor) Bridge(ctx context.Context, req types.TransferRequest) (*types.Result, error) {
	// 1. parameter and route validation, before any chain access
	if err := req.Validate(); err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeInvalidParams, req.SourceNetwork, err))
	}
	if !e.registry.SupportsRoute(req.SourceNetwork, req.DestinationNetwork, req.Token) {
		return e.fail(req, "", types.NewBridgeError(types.CodeInvalidParams, req.SourceNetwork,
			"route %s->%s does not support token %s", req.SourceNetwork, req.DestinationNetwork, req.Token))
	}

	adapter, ok := e.adapters[strings.ToLower(req.SourceNetwork)]
	if !ok {
		return e.fail(req, "", types.NewBridgeError(types.CodeInvalidParams, req.SourceNetwork,
			"no adapter configured for network %s", req.SourceNetwork))
	}

	tokenAddress, err := e.registry.TokenAddress(req.SourceNetwork, req.Token)
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeInvalidParams, req.SourceNetwork, err))
	}
	decimals, err := e.registry.TokenDecimals(req.Token)
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeInvalidParams, req.SourceNetwork, err))
	}
	amount, err := fees.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeInvalidParams, req.SourceNetwork, err))
	}

	// 2. token balance
	balance, err := adapter.GetTokenBalance(ctx, tokenAddress, req.SenderAddress)
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeRPCError, req.SourceNetwork, err))
	}
	if balance.Cmp(amount) < 0 {
		berr := types.NewBridgeError(types.CodeInsufficientBalance, req.SourceNetwork,
			"token balance %s below requested %s", balance, amount)
		e.dispatcher.Emit(events.KindBalanceInsufficient, Payload{Request: req, Code: berr.Code, Error: berr.Error()})
		return resultFor(req, "", berr), berr
	}

	// 3. fee quote
	quote, err := e.fees.Quote(ctx, req)
	if err != nil {
		return e.fail(req, "", err)
	}
	e.dispatcher.Emit(events.KindFeeEstimated, Payload{Request: req, Fees: quote})

	// 4. native balance covers the quoted fee
	nativeBalance, err := adapter.GetBalance(ctx, req.SenderAddress)
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeRPCError, req.SourceNetwork, err))
	}
	if nativeBalance.Cmp(quote.NativeFee) < 0 {
		berr := types.NewBridgeError(types.CodeInsufficientBalance, req.SourceNetwork,
			"native balance %s below quoted fee %s", nativeBalance, quote.NativeFee)
		e.dispatcher.Emit(events.KindBalanceInsufficient, Payload{Request: req, Code: berr.Code, Error: berr.Error()})
		return resultFor(req, "", berr), berr
	}

	// 5. allowance and bounded approval wait
	if err := e.ensureAllowance(ctx, adapter, req, tokenAddress, amount); err != nil {
		return e.fail(req, "", err)
	}

	// 6. submission, retried with backoff for transient errors only
	dstEid, err := e.registry.EndpointID(req.DestinationNetwork)
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeInvalidParams, req.DestinationNetwork, err))
	}
	minAmount := new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(9950)), big.NewInt(10_000))

	var txHash string
	err = retry.Do(ctx, e.opts.SubmitAttempts, e.opts.SubmitBaseDelay, func(ctx context.Context) error {
		hash, err := adapter.SubmitTransfer(ctx, chain.TransferTx{
			TokenAddress:          tokenAddress,
			DestinationEndpointID: dstEid,
			Recipient:             chain.AddressToBytes32(req.RecipientAddress),
			Amount:                amount,
			MinAmount:             minAmount,
			Value:                 quote.NativeFee,
		})
		if err != nil {
			return err
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return e.fail(req, "", types.WrapBridgeError(types.CodeTransactionFailed, req.SourceNetwork, err))
	}

	e.log.Info().Str("txHash", txHash).Str("route", req.SourceNetwork+"->"+req.DestinationNetwork).
		Msg("transfer submitted")
	e.dispatcher.Emit(events.KindTransactionSent, Payload{Request: req, TxHash: txHash, Fees: quote})

	// 7. record the attempt before confirmation so it survives caller death
	record := types.TransferRecord{
		TxHash:             txHash,
		SourceNetwork:      req.SourceNetwork,
		DestinationNetwork: req.DestinationNetwork,
		Token:              req.Token,
		Amount:             req.Amount,
		Status:             types.StatusPending,
		Timestamp:          time.Now().UTC(),
		SenderAddress:      req.SenderAddress,
		RecipientAddress:   req.RecipientAddress,
		FeeUSD:             quote.TotalFeeUSD,
	}
	if err := e.history.Add(ctx, record); err != nil {
		e.log.Error().Err(err).Str("txHash", txHash).Msg("failed to record transfer")
	}
	sample := types.FeeSample{
		SourceNetwork:      req.SourceNetwork,
		DestinationNetwork: req.DestinationNetwork,
		Token:              req.Token,
		FeeUSD:             quote.TotalFeeUSD,
		Timestamp:          record.Timestamp,
	}
	if err := e.history.AddFeeSample(ctx, sample); err != nil {
		e.log.Error().Err(err).Str("txHash", txHash).Msg("failed to record fee sample")
	}

	// 8. bounded wait for source inclusion
	receipt, err := adapter.WaitForReceipt(ctx, txHash, e.opts.ConfirmTimeout)
	if err != nil {
		if uerr := e.history.UpdateStatus(ctx, txHash, types.StatusFailed); uerr != nil {
			e.log.Error().Err(uerr).Str("txHash", txHash).Msg("failed to update record")
		}
		code := types.CodeTransactionTimeout
		if !errors.Is(err, retry.ErrWaitTimeout) {
			code = types.CodeRPCError
		}
		berr := types.WrapBridgeError(code, req.SourceNetwork, err).WithTxHash(txHash)
		return e.fail(req, txHash, berr)
	}
	if receipt.Status == chain.ReceiptReverted {
		if uerr := e.history.UpdateStatus(ctx, txHash, types.StatusFailed); uerr != nil {
			e.log.Error().Err(uerr).Str("txHash", txHash).Msg("failed to update record")
		}
		berr := types.NewBridgeError(types.CodeTransactionFailed, req.SourceNetwork,
			"transfer transaction reverted").WithTxHash(txHash)
		return e.fail(req, txHash, berr)
	}

	e.dispatcher.Emit(events.KindTransactionConfirmed, Payload{Request: req, TxHash: txHash, Fees: quote})

	return &types.Result{Success: true, TxHash: txHash, Fees: quote}, nil
}

// ensureAllowance checks the protocol allowance and submits a bounded-wait
// approval when short.
func (e *Executor) ensureAllowance(ctx context.Context, adapter chain.Adapter, req types.TransferRequest,
	tokenAddress string, amount *big.Int) error {
	allowance, err := adapter.GetAllowance(ctx, tokenAddress, req.SenderAddress, tokenAddress)
	if err != nil {
		return types.WrapBridgeError(types.CodeRPCError, req.SourceNetwork, err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	e.dispatcher.Emit(events.KindApprovalRequired, Payload{Request: req})

	approvalHash, err := adapter.SubmitApproval(ctx, tokenAddress, tokenAddress, amount)
	if err != nil {
		return types.WrapBridgeError(types.CodeTransactionFailed, req.SourceNetwork, err)
	}

	receipt, err := adapter.WaitForReceipt(ctx, approvalHash, e.opts.ApprovalTimeout)
	if err != nil || receipt.Status == chain.ReceiptReverted {
		return types.NewBridgeError(types.CodeTransactionFailed, req.SourceNetwork,
			"approval did not confirm").WithTxHash(approvalHash)
	}

	e.dispatcher.Emit(events.KindApprovalConfirmed, Payload{Request: req, TxHash: approvalHash})
	return nil
}

// fail emits the failure event and normalizes the result/error pair.
func (e *Executor) fail(req types.TransferRequest, txHash string, err error) (*types.Result, error) {
	code := types.CodeOf(err)
	e.dispatcher.Emit(events.KindTransactionFailed, Payload{
		Request: req, TxHash: txHash, Code: code, Error: err.Error(),
	})
	return resultFor(req, txHash, err), err
}

func resultFor(_ types.TransferRequest, txHash string, err error) *types.Result {
	return &types.Result{Success: false, TxHash: txHash, Error: err.Error()}
}

// BridgeBatch submits multiple transfers with bounded concurrency. With
// StopOnError the first failure halts scheduling of not-yet-started
// transfers; transfers already in flight always run to completion.
func (e *Executor) BridgeBatch(ctx context.Context, reqs []types.TransferRequest, opts BatchOptions) []types.Result {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}

	results := make([]types.Result, len(reqs))
	sem := make(chan struct{}, opts.MaxConcurrency)
	var stopped atomic.Bool
	var wg sync.WaitGroup

	for i, req := range reqs {
		if opts.StopOnError && stopped.Load() {
			results[i] = types.Result{Success: false, Error: "batch aborted after earlier failure"}
			continue
		}

		sem <- struct{}{}
		// re-check after acquiring a slot: an earlier failure may have
		// landed while this request was queued
		if opts.StopOnError && stopped.Load() {
			<-sem
			results[i] = types.Result{Success: false, Error: "batch aborted after earlier failure"}
			continue
		}

		wg.Add(1)
		go func(i int, req types.TransferRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := e.Bridge(ctx, req)
			results[i] = *result
			if err != nil && opts.StopOnError {
				stopped.Store(true)
			}
		}(i, req)
	}

	wg.Wait()
	return results
}
