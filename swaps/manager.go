package swaps

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config tunes a Manager. Zero values select the package defaults.
type Config struct {
	QuoteTTL         time.Duration
	PollInterval     time.Duration
	DefaultSlippage  float64
	InfiniteApproval bool
}

// Manager is the surface exposed to the presentation layer. Every configuration
// command is followed by a background quote refresh; readers follow the store.
type Manager struct {
	store     *Store
	session   *Session
	allowance *AllowanceManager
	executor  *Executor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	execMu     sync.Mutex
	execCancel context.CancelFunc
	execDone   chan struct{}
}

// NewManager wires a store, session, allowance manager and executor around the
// given collaborators.
func NewManager(client QuoteClient, signer Signer, reader ChainReader, cfg Config, opts ...ExecutorOption) *Manager {
	store := NewStore(cfg.DefaultSlippage)
	session := NewSession(store, NewGuard(cfg.QuoteTTL), client, signer.Address())

	opts = append([]ExecutorOption{WithPollInterval(cfg.PollInterval)}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		session:   session,
		allowance: NewAllowanceManager(store, signer, reader, cfg.InfiniteApproval),
		executor:  NewExecutor(store, client, signer, reader, opts...),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *Manager) Store() *Store          { return m.store }
func (m *Manager) Session() *Session      { return m.session }
func (m *Manager) Executor() *Executor    { return m.executor }
func (m *Manager) Sender() common.Address { return m.session.Sender() }

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	return m.store.Snapshot()
}

// Subscribe registers fn for every state change.
func (m *Manager) Subscribe(fn func(State)) func() {
	return m.store.Subscribe(fn)
}

// --- Configuration commands ---

func (m *Manager) SetInput(token Token, amount string) error {
	if err := m.store.SetInput(token, amount); err != nil {
		return err
	}
	m.RetrieveExpectedOut(false)
	return nil
}

func (m *Manager) SetInputAmount(amount string) error {
	if err := m.store.SetInputAmount(amount); err != nil {
		return err
	}
	m.RetrieveExpectedOut(false)
	return nil
}

func (m *Manager) SetOutput(token Token) {
	m.store.SetOutput(token)
	m.RetrieveExpectedOut(false)
}

func (m *Manager) SetReceiver(receiver common.Address) {
	m.store.SetReceiver(receiver)
	m.RetrieveExpectedOut(false)
}

func (m *Manager) SetSlippage(slippage float64) error {
	if err := m.store.SetSlippage(slippage); err != nil {
		return err
	}
	m.RetrieveExpectedOut(false)
	return nil
}

func (m *Manager) SetOrder(order RoutePreference) {
	m.store.SetOrder(order)
	m.RetrieveExpectedOut(false)
}

func (m *Manager) InverseTokens() {
	m.store.InverseTokens()
	m.RetrieveExpectedOut(false)
}

func (m *Manager) ResetInput() {
	m.store.ResetInput()
	m.RetrieveExpectedOut(false)
}

func (m *Manager) ResetOutput() {
	m.store.ResetOutput()
	m.RetrieveExpectedOut(false)
}

// Reset stops any running execution, drops the in-flight quote and restores the
// idle configuration.
func (m *Manager) Reset() {
	m.stopExecution()
	m.session.Invalidate()
	m.store.Reset()
}

// --- Quote ---

// RetrieveExpectedOut starts a quote refresh in the background and returns
// immediately. Results are published to the store.
func (m *Manager) RetrieveExpectedOut(force bool) {
	if m.ctx.Err() != nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.session.RetrieveExpectedOut(m.ctx, force)
	}()
}

// Wait blocks until every background refresh started so far has resolved.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// --- Allowance ---

func (m *Manager) HasAllowance(ctx context.Context) (bool, error) {
	return m.allowance.HasSufficientAllowance(ctx)
}

func (m *Manager) AllowanceState(ctx context.Context) (AllowanceState, error) {
	return m.allowance.State(ctx)
}

func (m *Manager) Approve(ctx context.Context, onSuccess func()) bool {
	return m.allowance.Approve(ctx, onSuccess)
}

// --- Execution ---

// ExecuteSwap runs the published quote to completion. Reset cancels it. On
// success the request is reset, so any quote refresh still in flight is dropped.
func (m *Manager) ExecuteSwap(ctx context.Context, handler StatusHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.execMu.Lock()
	if m.execCancel != nil {
		m.execMu.Unlock()
		return ErrSwapInProgress
	}
	done := make(chan struct{})
	m.execCancel, m.execDone = cancel, done
	m.execMu.Unlock()

	defer func() {
		m.execMu.Lock()
		m.execCancel, m.execDone = nil, nil
		m.execMu.Unlock()
		close(done)
	}()

	if err := m.executor.Execute(ctx, handler); err != nil {
		return err
	}
	m.session.Invalidate()
	return nil
}

// stopExecution cancels a running ExecuteSwap and waits for it to return, so
// nothing it writes can land after the caller resets the store.
func (m *Manager) stopExecution() {
	m.execMu.Lock()
	cancel, done := m.execCancel, m.execDone
	m.execMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close cancels everything in flight and waits for background refreshes.
func (m *Manager) Close() {
	m.cancel()
	m.stopExecution()
	m.session.Close()
	m.wg.Wait()
}
