package swaps

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// Session owns the single in-flight quote request for one swap intent.
// Only the most recent request may mutate the published quote state.
type Session struct {
	store  *Store
	guard  *Guard
	client QuoteClient
	sender common.Address

	// mu serializes every derived-state write made by the session, so a
	// superseded response can never land between a newer begin and publish.
	mu        sync.Mutex
	cancel    context.CancelFunc
	currentID string
	seq       uint64
}

// NewSession creates a session publishing into store. sender is the address funding swaps.
func NewSession(store *Store, guard *Guard, client QuoteClient, sender common.Address) *Session {
	if guard == nil {
		guard = NewGuard(DefaultQuoteTTL)
	}
	return &Session{
		store:  store,
		guard:  guard,
		client: client,
		sender: sender,
	}
}

// Sender returns the address quotes are requested for.
func (s *Session) Sender() common.Address {
	return s.sender
}

// Guard exposes the session's fingerprint guard.
func (s *Session) Guard() *Guard {
	return s.guard
}

// CurrentRequestID returns the identifier of the request allowed to publish.
func (s *Session) CurrentRequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// RetrieveExpectedOut fetches a quote for the store's current request when the
// fingerprint guard allows it (or force is set) and publishes the result. It
// blocks until this attempt resolves; failures are published, never returned.
//
// Store writes happen under mu; subscribers are notified after mu is released,
// so they may call back into the session.
func (s *Session) RetrieveExpectedOut(ctx context.Context, force bool) {
	s.mu.Lock()
	// The request is read under mu so concurrent callers always act on the
	// latest configuration, whichever of them runs last.
	req := s.store.Request()
	if !req.Fetchable() {
		s.abortLocked()
		s.guard.Reset()
		snap := s.store.clearQuote()
		s.mu.Unlock()
		s.store.notify(snap)
		return
	}
	if !s.guard.ShouldFetch(req, force) {
		s.mu.Unlock()
		return
	}
	fetchCtx, id, snap := s.beginLocked(ctx, req)
	s.mu.Unlock()
	s.store.notify(snap)

	q, err := s.client.FetchQuote(fetchCtx, s.params(req))

	if snap, ok := s.resolve(id, req, q, err); ok {
		s.store.notify(snap)
	}
}

// resolve writes the outcome of request id if it is still the current one.
func (s *Session) resolve(id string, req SwapRequest, q *Quote, err error) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.currentID {
		Metrics().discard()
		log.WithField("request_id", short(id)).Debug("session: discarding superseded quote response")
		return State{}, false
	}

	if err != nil {
		if IsCanceled(err) {
			Metrics().quote("canceled")
			return s.store.clearQuote(), true
		}
		Metrics().quote("error")
		log.WithField("request_id", short(id)).Printf("session: quote failed: %v", err)
		return s.store.publishQuoteError(quoteErrorMessage(err)), true
	}

	q.RequestID = id
	q.Request = req
	Metrics().quote("published")
	return s.store.publishQuote(q), true
}

// Invalidate cancels any in-flight request and clears the published quote.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.abortLocked()
	s.guard.Reset()
	snap := s.store.clearQuote()
	s.mu.Unlock()

	s.store.notify(snap)
}

// Close cancels the in-flight request, if any.
func (s *Session) Close() {
	s.mu.Lock()
	s.abortLocked()
	s.mu.Unlock()
}

func (s *Session) beginLocked(ctx context.Context, req SwapRequest) (context.Context, string, State) {
	s.abortLocked()

	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.seq++
	s.currentID = RequestID(req, s.seq)

	return fetchCtx, s.currentID, s.store.beginFetch()
}

func (s *Session) abortLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.currentID = ""
}

func (s *Session) params(req SwapRequest) QuoteParams {
	receiver := req.Receiver
	if receiver == (common.Address{}) {
		receiver = s.sender
	}
	return QuoteParams{
		FromChain:   req.InputToken.ChainID,
		ToChain:     req.OutputToken.ChainID,
		FromToken:   req.InputToken.Address,
		ToToken:     req.OutputToken.Address,
		FromAmount:  req.InputAmount.Raw,
		FromAddress: s.sender,
		ToAddress:   receiver,
		Slippage:    req.Slippage,
		Order:       req.Order,
	}
}

func quoteErrorMessage(err error) string {
	var qe *QuoteError
	if errors.As(err, &qe) && qe.Message != "" {
		return qe.Message
	}
	return ErrNoRoute.Error()
}

func short(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
