package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"omnibridge/pkg/chain"
	"omnibridge/pkg/events"
	"omnibridge/pkg/fees"
	"omnibridge/pkg/history"
	"omnibridge/pkg/retry"
	"omnibridge/pkg/types"
)

// Config bounds the monitor's polling and per-stage timeouts.
type Config struct {
	PollInterval           time.Duration
	SourceTimeout          time.Duration
	DeliveryTimeout        time.Duration
	DestinationTimeout     time.Duration
	DestinationBlockWindow uint64
	RequiredConfirmations  uint64
	StageRetries           int
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:           3 * time.Second,
		SourceTimeout:          120 * time.Second,
		DeliveryTimeout:        300 * time.Second,
		DestinationTimeout:     120 * time.Second,
		DestinationBlockWindow: 1000,
		RequiredConfirmations:  1,
		StageRetries:           3,
	}
}

// Params identifies one transfer to monitor.
type Params struct {
	TxHash             string
	SourceNetwork      string
	DestinationNetwork string
	Token              string
	SenderAddress      string
	Amount             string
	// RequiredConfirmations overrides the manager default when non-zero.
	RequiredConfirmations uint64
}

func (p Params) key() string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s", p.SourceNetwork, p.DestinationNetwork, p.TxHash))
}

// session owns one transfer's MonitorStatus for its lifetime. Nothing
// outside the session mutates the status; callers get copies.
type session struct {
	mu      sync.RWMutex
	status  types.MonitorStatus
	failure error
	params  Params
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *session) failureErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

func (s *session) snapshot() types.MonitorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *session) update(fn func(st *types.MonitorStatus)) types.MonitorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
	s.status.LastUpdated = time.Now().UTC()
	return s.status
}

// Manager runs one independent monitoring task per in-flight transfer.
// Active sessions are explicit instance state with start/stop lifecycle, not
// a process-wide registry.
type Manager struct {
	adapters   map[string]chain.Adapter
	registry   chain.Registry
	dispatcher *events.Dispatcher
	history    *history.Store
	cfg        Config
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager builds a monitor manager over the given collaborators.
func NewManager(adapters map[string]chain.Adapter, registry chain.Registry, dispatcher *events.Dispatcher,
	store *history.Store, cfg Config, log zerolog.Logger) *Manager {
	if cfg.PollInterval == 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		adapters:   adapters,
		registry:   registry,
		dispatcher: dispatcher,
		history:    store,
		cfg:        cfg,
		log:        log.With().Str("component", "monitor").Logger(),
		sessions:   make(map[string]*session),
	}
}

// Monitor tracks one transfer through source confirmation, message delivery
// and destination confirmation, blocking until a terminal state or timeout.
// The returned status is a snapshot; err is the typed failure cause, if any.
func (m *Manager) Monitor(ctx context.Context, params Params) (*types.MonitorStatus, error) {
	s, err := m.startSession(ctx, params)
	if err != nil {
		return nil, err
	}
	return m.await(ctx, s)
}

// await blocks until the session finishes and maps the outcome to a
// status/error pair.
func (m *Manager) await(ctx context.Context, s *session) (*types.MonitorStatus, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.cancel()
		<-s.done
	}

	final := s.snapshot()
	if final.Status == types.StatusCompleted {
		return &final, nil
	}
	if err := s.failureErr(); err != nil {
		return &final, err
	}
	if err := ctx.Err(); err != nil {
		return &final, err
	}
	return &final, errors.New("monitoring stopped before completion")
}

func (m *Manager) startSession(ctx context.Context, params Params) (*session, error) {
	required := params.RequiredConfirmations
	if required == 0 {
		required = m.cfg.RequiredConfirmations
	}

	key := params.key()
	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		if !existing.snapshot().Status.IsTerminal() {
			m.mu.Unlock()
			return nil, fmt.Errorf("transfer %s is already being monitored", params.TxHash)
		}
		delete(m.sessions, key)
	}

	runCtx, cancel := context.WithCancel(ctx)
	eta := time.Now().UTC().Add(time.Duration(fees.EstimatedRouteSeconds(params.SourceNetwork, params.DestinationNetwork)) * time.Second)
	s := &session{
		params: params,
		cancel: cancel,
		done:   make(chan struct{}),
		status: types.MonitorStatus{
			TxHash:                  params.TxHash,
			SourceNetwork:           params.SourceNetwork,
			DestinationNetwork:      params.DestinationNetwork,
			Status:                  types.StatusPending,
			Stage:                   types.StageSource,
			RequiredConfirmations:   required,
			EstimatedCompletionTime: &eta,
			LastUpdated:             time.Now().UTC(),
		},
	}
	m.sessions[key] = s
	m.mu.Unlock()

	go m.run(runCtx, s)
	return s, nil
}

func (m *Manager) run(ctx context.Context, s *session) {
	defer close(s.done)
	defer s.cancel()

	err := m.pipeline(ctx, s)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// stopped, not failed: leave the last observed status but free
			// the key so the transfer can be monitored again
			m.removeSession(s)
			return
		}
		finalStatus := types.StatusFailed
		if errors.Is(err, retry.ErrWaitTimeout) {
			finalStatus = types.StatusTimeout
		}
		s.fail(err)
		snap := s.update(func(st *types.MonitorStatus) {
			st.Status = finalStatus
			st.Error = err.Error()
		})
		m.recordStatus(snap)
		m.dispatcher.Emit(events.KindFailed, snap)
		m.log.Warn().Err(err).Str("txHash", s.params.TxHash).Msg("monitoring failed")
		return
	}

	now := time.Now().UTC()
	snap := s.update(func(st *types.MonitorStatus) {
		st.Status = types.StatusCompleted
		st.Stage = types.StageDestination
		st.Progress = 100
		st.ActualCompletionTime = &now
	})
	m.recordStatus(snap)
	m.dispatcher.Emit(events.KindCompleted, snap)
	m.removeSession(s)
}

// pipeline advances the transfer through the three stages, retrying each
// stage's transient errors up to the cap before escalating a typed failure.
func (m *Manager) pipeline(ctx context.Context, s *session) error {
	if err := m.runStage(ctx, s, types.CodeTransactionTimeout, s.params.SourceNetwork, m.waitSource); err != nil {
		return err
	}
	if err := m.runStage(ctx, s, types.CodeMessageVerificationFailed, s.params.SourceNetwork, m.waitDelivery); err != nil {
		return err
	}
	return m.runStage(ctx, s, types.CodeDestinationTxFailed, s.params.DestinationNetwork, m.waitDestination)
}

func (m *Manager) runStage(ctx context.Context, s *session, code types.Code, network string,
	stage func(ctx context.Context, s *session) error) error {
	var err error
	for attempt := 0; attempt < m.cfg.StageRetries; attempt++ {
		err = stage(ctx, s)
		if err == nil {
			return nil
		}
		// stage timeouts and terminal errors escalate immediately
		if errors.Is(err, retry.ErrWaitTimeout) || !retry.IsTransient(err) {
			break
		}
		m.log.Debug().Err(err).Int("attempt", attempt+1).Str("txHash", s.params.TxHash).
			Msg("transient stage error, retrying")
	}

	var berr *types.BridgeError
	if errors.As(err, &berr) {
		return berr
	}
	return types.WrapBridgeError(code, network, err).WithTxHash(s.params.TxHash)
}

func (m *Manager) adapter(network string) (chain.Adapter, error) {
	a, ok := m.adapters[strings.ToLower(network)]
	if !ok {
		return nil, types.NewBridgeError(types.CodeInvalidParams, network, "no adapter configured for network %s", network)
	}
	return a, nil
}

// recordStatus mirrors a status transition into the history ledger.
func (m *Manager) recordStatus(snap types.MonitorStatus) {
	if m.history == nil {
		return
	}
	if err := m.history.UpdateStatus(context.Background(), snap.TxHash, snap.Status); err != nil {
		m.log.Error().Err(err).Str("txHash", snap.TxHash).Msg("failed to update history")
	}
}

func (m *Manager) emitUpdate(snap types.MonitorStatus) {
	m.recordStatus(snap)
	m.dispatcher.Emit(events.KindStatusUpdate, snap)
}

// GetStatus returns a snapshot of the transfer's live status, if a monitor
// session exists for it.
func (m *Manager) GetStatus(txHash, source, destination string) (types.MonitorStatus, bool) {
	m.mu.Lock()
	s, ok := m.sessions[Params{TxHash: txHash, SourceNetwork: source, DestinationNetwork: destination}.key()]
	m.mu.Unlock()
	if !ok {
		return types.MonitorStatus{}, false
	}
	return s.snapshot(), true
}

// Stop cancels one monitor by key, unblocking any in-progress wait
// immediately.
func (m *Manager) Stop(txHash, source, destination string) {
	key := Params{TxHash: txHash, SourceNetwork: source, DestinationNetwork: destination}.key()
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if ok {
		s.cancel()
		<-s.done
	}
}

// StopAll cancels every active monitor.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		<-s.done
	}
}

// Retry restarts monitoring for a failed transfer from the pending state.
// The full pipeline re-runs because intermediate on-chain state may have
// changed since the failure.
func (m *Manager) Retry(ctx context.Context, txHash, source, destination string) (*types.MonitorStatus, error) {
	key := Params{TxHash: txHash, SourceNetwork: source, DestinationNetwork: destination}.key()

	m.mu.Lock()
	prev, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no monitor found for transfer %s", txHash)
	}
	snap := prev.snapshot()
	if !snap.Status.IsTerminal() {
		return nil, fmt.Errorf("transfer %s is still being monitored", txHash)
	}

	params := prev.params
	params.RequiredConfirmations = snap.RequiredConfirmations
	retryCount := snap.RetryCount + 1

	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()

	s, err := m.startSession(ctx, params)
	if err != nil {
		return nil, err
	}
	s.update(func(st *types.MonitorStatus) {
		st.RetryCount = retryCount
		st.Error = ""
	})
	return m.await(ctx, s)
}

// removeSession drops a completed or cancelled session; failed and timed-out
// sessions are retained so Retry can pick them up. Only s itself is removed,
// never a newer session registered under the same key.
func (m *Manager) removeSession(s *session) {
	key := s.params.key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
}
