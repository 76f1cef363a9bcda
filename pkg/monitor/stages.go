package monitor

import (
	"context"
	"errors"
	"strings"
	"time"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/retry"
	"omnibridge/pkg/types"
)

// waitSource polls the source network for the transfer receipt until it has
// the required confirmations. A reverted receipt fails the transfer
// immediately. Read errors are absorbed and the poll continues.
func (m *Manager) waitSource(ctx context.Context, s *session) error {
	adapter, err := m.adapter(s.params.SourceNetwork)
	if err != nil {
		return err
	}

	required := s.snapshot().RequiredConfirmations
	var receipt *chain.Receipt

	err = retry.WaitFor(ctx, m.cfg.PollInterval, m.cfg.SourceTimeout, func(ctx context.Context) (bool, error) {
		r, pollErr := adapter.GetReceipt(ctx, s.params.TxHash)
		if pollErr != nil {
			m.log.Debug().Err(pollErr).Str("txHash", s.params.TxHash).Msg("receipt poll failed")
			return false, nil
		}
		if r == nil {
			return false, nil
		}
		if r.Status == chain.ReceiptReverted {
			return false, types.NewBridgeError(types.CodeTransactionFailed, s.params.SourceNetwork,
				"source transaction reverted").WithTxHash(s.params.TxHash)
		}

		head, headErr := adapter.GetBlockNumber(ctx)
		if headErr != nil {
			m.log.Debug().Err(headErr).Msg("block number poll failed")
			return false, nil
		}
		var confirmations uint64
		if head >= r.BlockNumber {
			confirmations = head - r.BlockNumber + 1
		}
		s.update(func(st *types.MonitorStatus) {
			st.SourceConfirmations = confirmations
		})
		if confirmations < required {
			return false, nil
		}
		receipt = r
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrWaitTimeout) {
			berr := types.NewBridgeError(types.CodeTransactionTimeout, s.params.SourceNetwork,
				"source transaction not confirmed within %s", m.cfg.SourceTimeout).WithTxHash(s.params.TxHash)
			berr.Cause = err
			return berr
		}
		return err
	}

	guid := extractMessageID(receipt.Logs)
	snap := s.update(func(st *types.MonitorStatus) {
		st.Status = types.StatusSourceConfirmed
		st.Stage = types.StageSource
		st.Progress = 33
		st.MessageHash = guid
	})
	m.emitUpdate(snap)
	m.log.Info().Str("txHash", s.params.TxHash).Str("messageHash", guid).
		Msg("source transaction confirmed")
	return nil
}

// extractMessageID pulls the protocol message GUID out of the send event's
// indexed topics.
func extractMessageID(logs []chain.Log) string {
	sentTopic := chain.EventTopic(chain.OFTSentEvent)
	for _, l := range logs {
		if len(l.Topics) >= 2 && strings.EqualFold(l.Topics[0], sentTopic) {
			return l.Topics[1]
		}
	}
	return ""
}

// waitDelivery compares the source endpoint's outbound counter with the
// destination endpoint's inbound counter until the message has been relayed.
// Progress ramps from 40 toward 66 as the wait elapses.
func (m *Manager) waitDelivery(ctx context.Context, s *session) error {
	srcAdapter, err := m.adapter(s.params.SourceNetwork)
	if err != nil {
		return err
	}
	dstAdapter, err := m.adapter(s.params.DestinationNetwork)
	if err != nil {
		return err
	}
	srcEid, err := m.registry.EndpointID(s.params.SourceNetwork)
	if err != nil {
		return types.WrapBridgeError(types.CodeInvalidParams, s.params.SourceNetwork, err)
	}
	dstEid, err := m.registry.EndpointID(s.params.DestinationNetwork)
	if err != nil {
		return types.WrapBridgeError(types.CodeInvalidParams, s.params.DestinationNetwork, err)
	}

	snap := s.update(func(st *types.MonitorStatus) {
		st.Status = types.StatusMessageSent
		st.Stage = types.StageCrossChain
		st.Progress = 40
	})
	m.emitUpdate(snap)

	senderBytes := chain.AddressToBytes32(s.params.SenderAddress)
	started := time.Now()

	err = retry.WaitFor(ctx, m.cfg.PollInterval, m.cfg.DeliveryTimeout, func(ctx context.Context) (bool, error) {
		outbound, pollErr := srcAdapter.ReadOutboundCounter(ctx, dstEid, s.params.SenderAddress)
		if pollErr != nil {
			m.log.Debug().Err(pollErr).Msg("outbound counter poll failed")
			return false, nil
		}
		inbound, pollErr := dstAdapter.ReadInboundCounter(ctx, srcEid, senderBytes)
		if pollErr != nil {
			m.log.Debug().Err(pollErr).Msg("inbound counter poll failed")
			return false, nil
		}
		if inbound >= outbound {
			return true, nil
		}

		s.update(func(st *types.MonitorStatus) {
			st.Progress = deliveryProgress(time.Since(started), m.cfg.DeliveryTimeout)
		})
		return false, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrWaitTimeout) {
			berr := types.NewBridgeError(types.CodeMessageVerificationFailed, s.params.SourceNetwork,
				"message not delivered within %s", m.cfg.DeliveryTimeout).WithTxHash(s.params.TxHash)
			berr.Cause = err
			return berr
		}
		return err
	}

	snap = s.update(func(st *types.MonitorStatus) {
		st.Status = types.StatusMessageDelivered
		st.Progress = 66
	})
	m.emitUpdate(snap)
	m.log.Info().Str("txHash", s.params.TxHash).Msg("message delivered to destination")
	return nil
}

// deliveryProgress ramps linearly from 40 to 66 as elapsed approaches the
// delivery timeout.
func deliveryProgress(elapsed, timeout time.Duration) int {
	if timeout <= 0 {
		return 40
	}
	progress := 40 + int(26*elapsed/timeout)
	if progress > 66 {
		progress = 66
	}
	return progress
}

// waitDestination scans the destination token contract's recent receive
// events for this transfer's message. The destination transaction is
// submitted by the protocol's relayer, so there is no hash to poll; if the
// window elapses without an event the transfer is still reported complete,
// with a warning, because a delivered message implies destination execution.
func (m *Manager) waitDestination(ctx context.Context, s *session) error {
	adapter, err := m.adapter(s.params.DestinationNetwork)
	if err != nil {
		return err
	}
	if s.params.Token == "" {
		// without a token there is no contract to scan; a delivered message
		// implies destination execution
		return nil
	}
	tokenAddress, err := m.registry.TokenAddress(s.params.DestinationNetwork, s.params.Token)
	if err != nil {
		return types.WrapBridgeError(types.CodeInvalidParams, s.params.DestinationNetwork, err)
	}

	receivedTopic := chain.EventTopic(chain.OFTReceivedEvent)
	messageHash := s.snapshot().MessageHash

	err = retry.WaitFor(ctx, m.cfg.PollInterval, m.cfg.DestinationTimeout, func(ctx context.Context) (bool, error) {
		head, pollErr := adapter.GetBlockNumber(ctx)
		if pollErr != nil {
			m.log.Debug().Err(pollErr).Msg("destination block number poll failed")
			return false, nil
		}
		from := uint64(0)
		if head > m.cfg.DestinationBlockWindow {
			from = head - m.cfg.DestinationBlockWindow
		}

		logs, pollErr := adapter.QueryRecentLogs(ctx, tokenAddress, receivedTopic, from, head)
		if pollErr != nil {
			m.log.Debug().Err(pollErr).Msg("destination log query failed")
			return false, nil
		}
		for _, l := range logs {
			if messageHash == "" {
				if len(l.Topics) > 0 {
					return true, nil
				}
				continue
			}
			if len(l.Topics) >= 2 && strings.EqualFold(l.Topics[1], messageHash) {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrWaitTimeout) {
			m.log.Warn().Str("txHash", s.params.TxHash).
				Msg("destination receive event not observed in window, treating delivered message as complete")
			return nil
		}
		return err
	}

	m.log.Info().Str("txHash", s.params.TxHash).Msg("destination transfer confirmed")
	return nil
}
