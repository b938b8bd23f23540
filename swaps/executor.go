package swaps

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is the delay between two cross-chain status polls.
const DefaultPollInterval = 5 * time.Second

// Executor drives the published quote through chain switching, gas estimation,
// submission, confirmation and, for bridges, status polling.
type Executor struct {
	store    *Store
	client   QuoteClient
	signer   Signer
	reader   ChainReader
	balances BalanceRefresher
	journal  Journal
	interval time.Duration

	mu        sync.Mutex
	running   bool
	current   string
	observers []Observer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithJournal persists every attempt.
func WithJournal(j Journal) ExecutorOption {
	return func(e *Executor) { e.journal = j }
}

// WithBalances sets the balance refresher invoked after a successful swap.
func WithBalances(b BalanceRefresher) ExecutorOption {
	return func(e *Executor) { e.balances = b }
}

// WithObserver subscribes o to every execution.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

func NewExecutor(store *Store, client QuoteClient, signer Signer, reader ChainReader, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		client:   client,
		signer:   signer,
		reader:   reader,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddObserver subscribes o to every execution started after the call.
func (e *Executor) AddObserver(o Observer) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

// Running reports whether an execution is in progress.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CurrentAttempt returns the id of the attempt in progress, or "".
func (e *Executor) CurrentAttempt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

type execution struct {
	Attempt
	quote     *Quote
	handler   StatusHandler
	observers []Observer
}

// Execute runs the published quote to a terminal state. Every failure is also
// recorded in the store's swap status; the returned error is informational. A
// canceled ctx stops the attempt without touching the store, leaving a journaled
// bridge transfer to be resumed later.
func (e *Executor) Execute(ctx context.Context, handler StatusHandler) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrSwapInProgress
	}
	e.running = true
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.current = ""
		e.mu.Unlock()
	}()

	q := e.store.Quote()
	if q == nil {
		e.store.setCurrentError(ErrNoQuote.Error())
		return ErrNoQuote
	}
	if !q.MatchesRequest(e.store.Request()) {
		e.store.setCurrentError(ErrStaleQuote.Error())
		return ErrStaleQuote
	}

	ex := &execution{
		Attempt: Attempt{
			ID:          uuid.NewString(),
			FromChainID: q.SourceChainID,
			ToChainID:   q.DestChainID,
			FromToken:   q.FromToken,
			ToToken:     q.ToToken,
			FromAmount:  q.FromAmount,
			Stage:       StageIdle,
			Status:      TxPending,
			StartedAt:   time.Now(),
		},
		quote:     q,
		handler:   handler,
		observers: observers,
	}

	e.mu.Lock()
	e.current = ex.ID
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.RecordAttempt(ctx, ex.Attempt); err != nil {
			log.Printf("executor: journaling attempt %s: %v", ex.ID, err)
		}
	}

	return e.run(ctx, ex)
}

func (e *Executor) run(ctx context.Context, ex *execution) error {
	q := ex.quote
	logger := log.WithFields(log.Fields{
		"attempt":    ex.ID,
		"from_chain": q.SourceChainID,
		"to_chain":   q.DestChainID,
		"tool":       q.Tool,
	})

	e.emit(ex, StageChainSwitching, pendingStatus(common.Hash{}), nil)
	active, err := e.signer.ActiveChainID(ctx)
	if err != nil || active != q.SourceChainID {
		if err := e.signer.SwitchChain(ctx, q.SourceChainID); err != nil {
			logger.Printf("executor: switching to chain %d: %v", q.SourceChainID, err)
			return e.fail(ctx, ex, StageChainSwitching, ErrChainSwitch, "")
		}
	}

	e.emit(ex, StageGasEstimating, pendingStatus(common.Hash{}), nil)
	tx := q.TransactionRequest
	if tx.From == (common.Address{}) {
		tx.From = e.signer.Address()
	}
	if tx.ChainID == 0 {
		tx.ChainID = q.SourceChainID
	}
	gas, err := e.reader.EstimateGas(ctx, tx)
	if err != nil {
		logger.Printf("executor: gas estimation: %v", err)
		return e.fail(ctx, ex, StageGasEstimating, ErrGasEstimation, err.Error())
	}
	if tx.GasLimit > gas {
		gas = tx.GasLimit
	}

	e.emit(ex, StageSubmitting, pendingStatus(common.Hash{}), nil)
	hash, err := e.signer.SignAndSend(ctx, tx, gas)
	if err != nil {
		logger.Printf("executor: broadcast: %v", err)
		return e.fail(ctx, ex, StageSubmitting, ErrTransactionFailed, "")
	}
	ex.TxHash = hash
	logger = logger.WithField("tx", hash.Hex())
	logger.Info("executor: transaction submitted")

	e.emit(ex, StageConfirming, pendingStatus(hash), nil)
	e.journalUpdate(ctx, ex)

	receipt, err := e.reader.WaitForReceipt(ctx, q.SourceChainID, hash)
	if err != nil {
		logger.Printf("executor: waiting for receipt: %v", err)
		return e.fail(ctx, ex, StageConfirming, ErrTransactionFailed, "")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return e.fail(ctx, ex, StageConfirming, ErrTransactionFailed, "")
	}

	if q.IsCrossChain() {
		e.emit(ex, StageCrossChainPolling, pendingStatus(hash), nil)
		e.journalUpdate(ctx, ex)

		final, err := e.pollBridge(ctx, ex)
		if err != nil {
			return e.fail(ctx, ex, StageCrossChainPolling, err, "")
		}
		if final.Status == BridgeFailed {
			return e.fail(ctx, ex, StageCrossChainPolling, ErrBridgeFailed, final.SubstatusMessage)
		}
	}

	return e.succeed(ctx, ex)
}

// pollBridge polls the aggregator until the transfer is DONE or FAILED. There is
// no retry cap; only ctx ends the loop early.
func (e *Executor) pollBridge(ctx context.Context, ex *execution) (CrossChainStatus, error) {
	q := ex.quote
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return CrossChainStatus{}, ctx.Err()
		case <-ticker.C:
		}

		st, err := e.client.FetchStatus(ctx, q.SourceChainID, q.DestChainID, ex.TxHash)
		if err != nil {
			if ctx.Err() != nil {
				return CrossChainStatus{}, ctx.Err()
			}
			log.Printf("executor: status poll for %s: %v", ex.TxHash.Hex(), err)
			continue
		}

		if ctx.Err() != nil {
			return CrossChainStatus{}, ctx.Err()
		}

		Metrics().poll(st.Status)
		ex.Bridge = st.Status

		if st.Terminal() {
			return st, nil
		}

		ts := pendingStatus(ex.TxHash)
		ts.Message = st.SubstatusMessage
		e.emit(ex, StageCrossChainPolling, ts, &st)
	}
}

func (e *Executor) succeed(ctx context.Context, ex *execution) error {
	q := ex.quote
	ts := successStatus(ex.TxHash)
	ex.Status = TxSuccess
	e.emit(ex, StageSuccess, ts, nil)

	if e.balances != nil {
		tokens := []Token{q.FromToken, q.ToToken, NativeToken(q.SourceChainID, "")}
		if q.IsCrossChain() {
			tokens = append(tokens, NativeToken(q.DestChainID, ""))
		}
		if err := e.balances.Refresh(ctx, e.signer.Address(), tokens...); err != nil {
			log.Printf("executor: refreshing balances: %v", err)
		}
	}

	e.store.resetAfterSuccess()
	e.journalUpdate(ctx, ex)
	Metrics().swap("success")

	log.WithFields(log.Fields{"attempt": ex.ID, "tx": ex.TxHash.Hex()}).Info("executor: swap complete")
	e.terminal(ex, ExecutionUpdate{
		AttemptID: ex.ID,
		Stage:     StageSuccess,
		Status:    ts,
		Quote:     q,
	})
	return nil
}

func (e *Executor) fail(ctx context.Context, ex *execution, stage Stage, cause error, detail string) error {
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return e.abandon(ex, stage, ctx.Err())
	}

	xerr := &ExecutionError{Stage: stage, Err: cause, Detail: detail}
	ts := errorStatus(ex.TxHash, xerr)
	ex.Stage = StageError
	ex.Status = TxError
	ex.Message = xerr.Error()

	e.store.setExecution(StageError, ts)
	e.journalUpdate(context.WithoutCancel(ctx), ex)
	Metrics().swap("failed_" + string(stage))

	log.WithFields(log.Fields{"attempt": ex.ID, "stage": stage}).Printf("executor: swap failed: %v", xerr)

	u := ExecutionUpdate{
		AttemptID: ex.ID,
		Stage:     StageError,
		Status:    ts,
		Quote:     ex.quote,
		Err:       xerr,
	}
	e.notify(ex, u)
	e.terminal(ex, u)
	return xerr
}

// abandon ends an attempt whose context was canceled. The store belongs to the
// caller that canceled, so it is left alone; the journal keeps the last stage.
func (e *Executor) abandon(ex *execution, stage Stage, err error) error {
	if err == nil {
		err = context.Canceled
	}
	Metrics().swap("canceled")
	log.WithFields(log.Fields{"attempt": ex.ID, "stage": stage}).Info("executor: attempt canceled")

	u := ExecutionUpdate{
		AttemptID: ex.ID,
		Stage:     stage,
		Status:    TransactionStatus{State: TxPending, TxHash: ex.TxHash, Message: "canceled"},
		Quote:     ex.quote,
		Err:       err,
	}
	e.notify(ex, u)
	e.terminal(ex, u)
	return err
}

func (e *Executor) emit(ex *execution, stage Stage, ts TransactionStatus, cross *CrossChainStatus) {
	ex.Stage = stage
	e.store.setExecution(stage, ts)
	e.notify(ex, ExecutionUpdate{
		AttemptID:  ex.ID,
		Stage:      stage,
		Status:     ts,
		CrossChain: cross,
		Quote:      ex.quote,
	})
}

func (e *Executor) notify(ex *execution, u ExecutionUpdate) {
	if ex.handler != nil {
		ex.handler(u)
	}
	for _, o := range ex.observers {
		o.OnStatusChange(u)
	}
}

func (e *Executor) terminal(ex *execution, u ExecutionUpdate) {
	for _, o := range ex.observers {
		o.OnTerminal(u)
	}
}

func (e *Executor) journalUpdate(ctx context.Context, ex *execution) {
	if e.journal == nil {
		return
	}
	if err := e.journal.UpdateAttempt(ctx, ex.Attempt); err != nil {
		log.Printf("executor: updating attempt %s: %v", ex.ID, err)
	}
}
