package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryablePolicy(t *testing.T) {
	retryable := []Code{CodeNetworkError, CodeRPCError, CodeTransactionTimeout, CodeMessageVerificationFailed}
	for _, code := range retryable {
		assert.True(t, code.Retryable(), "expected %s to be retryable", code)
	}

	terminal := []Code{CodeInsufficientBalance, CodeInsufficientAllowance, CodeInvalidParams,
		CodeTransactionFailed, CodeDestinationTxFailed, CodeUnknown}
	for _, code := range terminal {
		assert.False(t, code.Retryable(), "expected %s to be terminal", code)
	}
}

func TestBridgeErrorFormatting(t *testing.T) {
	err := NewBridgeError(CodeInvalidParams, "arbitrum", "bad amount %q", "x")
	assert.Equal(t, `INVALID_PARAMS [arbitrum]: bad amount "x"`, err.Error())

	bare := NewBridgeError(CodeUnknown, "", "mystery")
	assert.Equal(t, "UNKNOWN_ERROR: mystery", bare.Error())
}

func TestWrapBridgeErrorKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := WrapBridgeError(CodeRPCError, "base", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, CodeRPCError, CodeOf(err))
}

func TestCodeOfUnwrapsNestedErrors(t *testing.T) {
	inner := NewBridgeError(CodeTransactionTimeout, "ethereum", "too slow")
	wrapped := fmt.Errorf("bridge failed: %w", inner)

	assert.Equal(t, CodeTransactionTimeout, CodeOf(wrapped))
	assert.True(t, IsRetryable(wrapped))

	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestWithTxHashReturnsAnnotatedCopy(t *testing.T) {
	base := NewBridgeError(CodeTransactionFailed, "base", "reverted")
	annotated := base.WithTxHash("0xabc")

	assert.Equal(t, "0xabc", annotated.TxHash)
	assert.Empty(t, base.TxHash)
	assert.Equal(t, base.Code, annotated.Code)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusTimeout.IsTerminal())
	for _, s := range []Status{StatusPending, StatusSourceConfirmed, StatusMessageSent, StatusMessageDelivered} {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}

func TestTransferRequestValidate(t *testing.T) {
	valid := TransferRequest{
		SourceNetwork:      "arbitrum",
		DestinationNetwork: "base",
		Token:              "USDC",
		Amount:             "1.5",
		SenderAddress:      "0x1",
		RecipientAddress:   "0x2",
	}
	require.NoError(t, valid.Validate())

	sameNetwork := valid
	sameNetwork.DestinationNetwork = "Arbitrum"
	assert.Error(t, sameNetwork.Validate())

	zeroAmount := valid
	zeroAmount.Amount = "0"
	assert.Error(t, zeroAmount.Validate())

	noRecipient := valid
	noRecipient.RecipientAddress = ""
	assert.Error(t, noRecipient.Validate())
}
