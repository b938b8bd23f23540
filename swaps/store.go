package swaps

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxSlippage caps the user-configurable slippage tolerance (50%).
const MaxSlippage = 0.5

// State is an immutable snapshot of the store.
type State struct {
	Request SwapRequest `json:"request"`

	// Derived, read-only for the UI.
	Quote           *Quote            `json:"quote,omitempty"`
	OutputAmount    string            `json:"outputAmount"`
	FromAmountUSD   string            `json:"fromAmountUSD"`
	ToAmountUSD     string            `json:"toAmountUSD"`
	IsFetchingQuote bool              `json:"isFetchingQuote"`
	CurrentError    string            `json:"currentError,omitempty"`
	EstimatedTime   time.Duration     `json:"estimatedTime"`
	Approval        TransactionStatus `json:"approval"`
	Swap            TransactionStatus `json:"swap"`
	Stage           Stage             `json:"stage"`

	version uint64
}

// Store holds the swap configuration and the derived quote state. It is the only
// writer of SwapRequest; derived fields are written by the session, the allowance
// manager and the executor through unexported methods.
type Store struct {
	mu              sync.RWMutex
	state           State
	defaultSlippage float64

	version         uint64

	subMu     sync.Mutex
	subs      map[int]func(State)
	nextSub   int
	queue     []State
	draining  bool
	delivered uint64
}

// NewStore creates a store in its idle state. A zero defaultSlippage means DefaultSlippage.
func NewStore(defaultSlippage float64) *Store {
	if defaultSlippage <= 0 || defaultSlippage > MaxSlippage {
		defaultSlippage = DefaultSlippage
	}
	s := &Store{
		defaultSlippage: defaultSlippage,
		subs:            make(map[int]func(State)),
	}
	s.state = s.idleState()
	return s
}

func (s *Store) idleState() State {
	req := DefaultSwapRequest()
	req.Slippage = s.defaultSlippage
	return State{
		Request:  req,
		Approval: idleStatus(),
		Swap:     idleStatus(),
		Stage:    StageIdle,
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Request = s.state.Request.clone()
	st.version = s.version
	return st
}

// Request returns a copy of the current swap request.
func (s *Store) Request() SwapRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Request.clone()
}

// Quote returns the published quote, or nil.
func (s *Store) Quote() *Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Quote
}

// Subscribe registers fn to receive every new state. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) update(fn func(*State)) {
	s.notify(s.apply(fn))
}

// tryUpdate applies fn atomically. fn must validate before it mutates; on error
// nothing is published.
func (s *Store) tryUpdate(fn func(*State) error) error {
	s.mu.Lock()
	if err := fn(&s.state); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// apply mutates the state and returns the resulting snapshot without notifying.
func (s *Store) apply(fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	return s.commitLocked()
}

func (s *Store) commitLocked() State {
	s.version++
	snap := s.state
	snap.Request = s.state.Request.clone()
	snap.version = s.version
	return snap
}

// notify hands snap to the subscribers. Deliveries are serialized and never go
// backwards: a snapshot older than one already delivered is dropped. A write made
// from inside a subscriber is queued and delivered after that subscriber returns.
func (s *Store) notify(snap State) {
	s.subMu.Lock()
	s.queue = append(s.queue, snap)
	if s.draining {
		s.subMu.Unlock()
		return
	}
	s.draining = true

	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		if next.version <= s.delivered {
			continue
		}
		s.delivered = next.version

		subs := make([]func(State), 0, len(s.subs))
		for _, sub := range s.subs {
			subs = append(subs, sub)
		}
		s.subMu.Unlock()
		for _, sub := range subs {
			sub(next)
		}
		s.subMu.Lock()
	}

	s.draining = false
	s.subMu.Unlock()
}

// --- Commands ---

// SetInput selects the input token and amount. An empty display keeps the current
// amount, re-derived at the new token's precision. Selecting the current output
// token clears the output side.
func (s *Store) SetInput(token Token, display string) error {
	return s.tryUpdate(func(st *State) error {
		if display == "" {
			display = st.Request.InputAmount.Display
		}
		amount, err := ParseAmount(display, token.Decimals)
		if err != nil {
			return err
		}

		st.Request.InputToken = token
		st.Request.InputAmount = amount
		if st.Request.OutputToken.Same(token) {
			st.Request.OutputToken = Token{}
		}
		return nil
	})
}

// SetInputAmount changes the input amount, keeping the input token.
func (s *Store) SetInputAmount(display string) error {
	return s.tryUpdate(func(st *State) error {
		amount, err := ParseAmount(display, st.Request.InputToken.Decimals)
		if err != nil {
			return err
		}
		st.Request.InputAmount = amount
		return nil
	})
}

// SetOutput selects the output token. Selecting the current input token clears the input side.
func (s *Store) SetOutput(token Token) {
	s.update(func(st *State) {
		st.Request.OutputToken = token
		if st.Request.InputToken.Same(token) {
			st.Request.InputToken = Token{}
			st.Request.InputAmount = ZeroAmount()
		}
	})
}

// SetReceiver changes the address receiving the output token.
func (s *Store) SetReceiver(receiver common.Address) {
	s.update(func(st *State) {
		st.Request.Receiver = receiver
	})
}

// SetSlippage changes the slippage tolerance, expressed as a fraction.
func (s *Store) SetSlippage(slippage float64) error {
	if slippage <= 0 || slippage > MaxSlippage {
		return fmt.Errorf("slippage must be in (0, %g], got %g", MaxSlippage, slippage)
	}
	s.update(func(st *State) {
		st.Request.Slippage = slippage
	})
	return nil
}

// SetOrder changes the route preference.
func (s *Store) SetOrder(order RoutePreference) {
	s.update(func(st *State) {
		st.Request.Order = order
	})
}

// InverseTokens swaps input and output. The display amount is kept and its raw
// value re-derived at the new input token's precision.
func (s *Store) InverseTokens() {
	s.update(func(st *State) {
		in, out := st.Request.InputToken, st.Request.OutputToken
		st.Request.InputToken, st.Request.OutputToken = out, in

		amount, err := ParseAmount(st.Request.InputAmount.Display, out.Decimals)
		if err != nil {
			amount = ZeroAmount()
		}
		st.Request.InputAmount = amount
	})
}

// ResetInput clears the input token and amount.
func (s *Store) ResetInput() {
	s.update(func(st *State) {
		st.Request.InputToken = Token{}
		st.Request.InputAmount = ZeroAmount()
	})
}

// ResetOutput clears the output token.
func (s *Store) ResetOutput() {
	s.update(func(st *State) {
		st.Request.OutputToken = Token{}
	})
}

// Reset returns the store to its idle defaults.
func (s *Store) Reset() {
	s.update(func(st *State) {
		*st = s.idleState()
	})
}

// --- Derived state writers ---

// The quote writers below belong to the session. They apply under the session's
// lock and return the snapshot for the session to notify once it has unlocked.

func (s *Store) beginFetch() State {
	return s.apply(func(st *State) {
		st.OutputAmount = ""
		st.FromAmountUSD = ""
		st.ToAmountUSD = ""
		st.IsFetchingQuote = true
	})
}

func (s *Store) publishQuote(q *Quote) State {
	return s.apply(func(st *State) {
		st.Quote = q
		st.OutputAmount = q.OutputAmount()
		st.FromAmountUSD = q.FromAmountUSD
		st.ToAmountUSD = q.ToAmountUSD
		st.EstimatedTime = q.ExecutionDuration
		st.CurrentError = ""
		st.IsFetchingQuote = false
	})
}

func (s *Store) publishQuoteError(msg string) State {
	return s.apply(func(st *State) {
		st.Quote = nil
		st.OutputAmount = ""
		st.FromAmountUSD = ""
		st.ToAmountUSD = ""
		st.EstimatedTime = 0
		st.CurrentError = msg
		st.IsFetchingQuote = false
	})
}

func (s *Store) clearQuote() State {
	return s.apply(func(st *State) {
		st.Quote = nil
		st.OutputAmount = ""
		st.FromAmountUSD = ""
		st.ToAmountUSD = ""
		st.EstimatedTime = 0
		st.CurrentError = ""
		st.IsFetchingQuote = false
	})
}

func (s *Store) setApproval(ts TransactionStatus) {
	s.update(func(st *State) {
		st.Approval = ts
	})
}

func (s *Store) setExecution(stage Stage, ts TransactionStatus) {
	s.update(func(st *State) {
		st.Stage = stage
		st.Swap = ts
	})
}

func (s *Store) setCurrentError(msg string) {
	s.update(func(st *State) {
		st.CurrentError = msg
	})
}

// resetAfterSuccess restores the idle configuration but keeps the swap outcome
// visible until the next execution.
func (s *Store) resetAfterSuccess() {
	s.update(func(st *State) {
		swap := st.Swap
		*st = s.idleState()
		st.Swap = swap
		st.Stage = StageSuccess
	})
}
