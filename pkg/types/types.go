package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks a transfer through the delivery pipeline. Forward progress is
// total-ordered; failed and timeout are absorbing and reachable from any
// non-terminal state.
type Status string

const (
	StatusPending          Status = "pending"
	StatusSourceConfirmed  Status = "source_confirmed"
	StatusMessageSent      Status = "message_sent"
	StatusMessageDelivered Status = "message_delivered"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusTimeout          Status = "timeout"
)

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// Stage is the monitor's coarse phase indicator, independent of Status.
type Stage string

const (
	StageSource      Stage = "source"
	StageCrossChain  Stage = "cross_chain"
	StageDestination Stage = "destination"
)

// TransferRequest describes a cross-network token transfer. Immutable once
// submitted. Amount is a decimal string in token units (e.g. "1.5").
type TransferRequest struct {
	SourceNetwork      string `json:"source_network"`
	DestinationNetwork string `json:"destination_network"`
	Token              string `json:"token"`
	Amount             string `json:"amount"`
	SenderAddress      string `json:"sender_address"`
	RecipientAddress   string `json:"recipient_address"`
}

// Validate checks the request fields that do not require chain access.
func (r *TransferRequest) Validate() error {
	if r.SourceNetwork == "" {
		return fmt.Errorf("source network is required")
	}
	if r.DestinationNetwork == "" {
		return fmt.Errorf("destination network is required")
	}
	if strings.EqualFold(r.SourceNetwork, r.DestinationNetwork) {
		return fmt.Errorf("source and destination networks must differ")
	}
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	if r.Amount == "" || r.Amount == "0" {
		return fmt.Errorf("amount must be greater than 0")
	}
	if r.RecipientAddress == "" {
		return fmt.Errorf("recipient address is required")
	}
	return nil
}

// FeeBreakdown splits the total cost into its USD components.
type FeeBreakdown struct {
	ProtocolFee decimal.Decimal `json:"protocol_fee"`
	GasFee      decimal.Decimal `json:"gas_fee"`
	BridgeFee   decimal.Decimal `json:"bridge_fee"`
}

// FeeQuote is the full cost estimate for a prospective transfer. It is valid
// only for the instant it was computed; fees may drift before submission.
type FeeQuote struct {
	NativeFee            *big.Int        `json:"native_fee"`
	ProtocolTokenFee     *big.Int        `json:"protocol_token_fee"`
	EstimatedGas         *big.Int        `json:"estimated_gas"`
	TotalFeeUSD          decimal.Decimal `json:"total_fee_usd"`
	Breakdown            FeeBreakdown    `json:"breakdown"`
	EstimatedTimeSeconds int             `json:"estimated_time_seconds"`
	Fallback             bool            `json:"fallback,omitempty"`
}

// FeeEstimate is the lighter, oracle-free variant of a quote.
type FeeEstimate struct {
	NativeFee    *big.Int `json:"native_fee"`
	EstimatedGas *big.Int `json:"estimated_gas"`
	GasPrice     *big.Int `json:"gas_price"`
}

// TransferRecord is the durable ledger entry for one transfer attempt.
// Looked up by hash case-insensitively and mutated in place as the monitor
// advances it.
type TransferRecord struct {
	TxHash             string          `json:"tx_hash"`
	SourceNetwork      string          `json:"source_network"`
	DestinationNetwork string          `json:"destination_network"`
	Token              string          `json:"token"`
	Amount             string          `json:"amount"`
	Status             Status          `json:"status"`
	Timestamp          time.Time       `json:"timestamp"`
	SenderAddress      string          `json:"sender_address"`
	RecipientAddress   string          `json:"recipient_address"`
	FeeUSD             decimal.Decimal `json:"fee_usd"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// MonitorStatus is the live view of one in-flight transfer. Owned exclusively
// by its monitor session; callers receive copies.
type MonitorStatus struct {
	TxHash                  string     `json:"tx_hash"`
	SourceNetwork           string     `json:"source_network"`
	DestinationNetwork      string     `json:"destination_network"`
	Status                  Status     `json:"status"`
	Stage                   Stage      `json:"stage"`
	Progress                int        `json:"progress"`
	MessageHash             string     `json:"message_hash,omitempty"`
	SourceConfirmations     uint64     `json:"source_confirmations"`
	RequiredConfirmations   uint64     `json:"required_confirmations"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time,omitempty"`
	ActualCompletionTime    *time.Time `json:"actual_completion_time,omitempty"`
	Error                   string     `json:"error,omitempty"`
	RetryCount              int        `json:"retry_count"`
	LastUpdated             time.Time  `json:"last_updated"`
}

// Result is the outcome of a bridge submission.
type Result struct {
	Success bool      `json:"success"`
	TxHash  string    `json:"tx_hash,omitempty"`
	Error   string    `json:"error,omitempty"`
	Fees    *FeeQuote `json:"fees,omitempty"`
}

// FeeSample is one historical fee observation for a route+token, used by the
// fee-trend analysis.
type FeeSample struct {
	SourceNetwork      string          `json:"source_network"`
	DestinationNetwork string          `json:"destination_network"`
	Token              string          `json:"token"`
	FeeUSD             decimal.Decimal `json:"fee_usd"`
	Timestamp          time.Time       `json:"timestamp"`
}
