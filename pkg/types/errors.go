package types

import (
	"errors"
	"fmt"
)

// Code classifies bridge failures.
type Code string

const (
	CodeInsufficientBalance       Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance     Code = "INSUFFICIENT_ALLOWANCE"
	CodeInvalidParams             Code = "INVALID_PARAMS"
	CodeNetworkError              Code = "NETWORK_ERROR"
	CodeTransactionFailed         Code = "TRANSACTION_FAILED"
	CodeTransactionTimeout        Code = "TRANSACTION_TIMEOUT"
	CodeMessageVerificationFailed Code = "MESSAGE_VERIFICATION_FAILED"
	CodeDestinationTxFailed       Code = "DESTINATION_TX_FAILED"
	CodeRPCError                  Code = "RPC_ERROR"
	CodeUnknown                   Code = "UNKNOWN_ERROR"
)

// retryableCodes is the fixed policy set; validation failures are never
// retried automatically.
var retryableCodes = map[Code]bool{
	CodeNetworkError:              true,
	CodeRPCError:                  true,
	CodeTransactionTimeout:        true,
	CodeMessageVerificationFailed: true,
}

// Retryable reports whether the code may be retried by policy.
func (c Code) Retryable() bool {
	return retryableCodes[c]
}

// BridgeError is the typed error surfaced by every component. It carries the
// offending network and, when known, the transaction hash.
type BridgeError struct {
	Code    Code
	Network string
	TxHash  string
	Message string
	Cause   error
}

func (e *BridgeError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Network != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Network, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error may be retried by policy.
func (e *BridgeError) Retryable() bool {
	return e.Code.Retryable()
}

// NewBridgeError builds a BridgeError with a formatted message.
func NewBridgeError(code Code, network string, format string, args ...interface{}) *BridgeError {
	return &BridgeError{
		Code:    code,
		Network: network,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapBridgeError attaches a code and network to an underlying cause.
func WrapBridgeError(code Code, network string, cause error) *BridgeError {
	return &BridgeError{Code: code, Network: network, Cause: cause}
}

// WithTxHash returns a copy of the error annotated with a transaction hash.
func (e *BridgeError) WithTxHash(txHash string) *BridgeError {
	clone := *e
	clone.TxHash = txHash
	return &clone
}

// CodeOf extracts the Code from err, or CodeUnknown if err is not a
// BridgeError.
func CodeOf(err error) Code {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnknown
}

// IsRetryable reports whether err is a retryable BridgeError.
func IsRetryable(err error) bool {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Retryable()
	}
	return false
}
